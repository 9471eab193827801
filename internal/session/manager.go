package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/gatekeeper/internal/audit"
	"github.com/yourusername/gatekeeper/internal/config"
)

const (
	CookieName   = "gk_session"
	cookieKeySID = "sid"

	csrfHeader = "X-CSRF-Token"
)

var (
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5
)

// ContextUserKey は、ハンドラー間でログイン済みユーザー名を共有するためのキーです。
const ContextUserKey = "session.user"

const contextRecordKey = "session.record"

type requestSessionKey struct{}

// requestSession はリクエスト内で一度だけ解決したセッションを保持します。
type requestSession struct {
	id string

	mu       sync.Mutex
	resolved bool
	record   *Record
}

// WithID はセッションIDをコンテキストに載せます。
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestSessionKey{}, &requestSession{id: id})
}

// IDFromContext はコンテキストからセッションIDを取り出します。
func IDFromContext(ctx context.Context) string {
	if rs, ok := ctx.Value(requestSessionKey{}).(*requestSession); ok {
		return rs.id
	}
	return ""
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Manager はログイン・ログアウトとセッション検証をまとめた構造体です。
type Manager struct {
	cfg      *config.Config
	store    *Store
	auditor  audit.Recorder
	logger   *log.Logger
	now      func() time.Time
	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewManager はセッションマネージャーを作成します。auditor は nil でも構いません。
func NewManager(cfg *config.Config, store *Store, auditor audit.Recorder, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		auditor:  auditor,
		logger:   logger,
		now:      time.Now,
		attempts: make(map[string]*attemptState),
	}, nil
}

// CookieMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func (m *Manager) CookieMaxAgeSeconds() int {
	return int(m.cfg.SessionMaxLifetime().Seconds())
}

// HasSession は現在のリクエストに有効なセッションがあるかを返します。
// guard.SessionProvider を満たします。
func (m *Manager) HasSession(ctx context.Context) (bool, error) {
	record, err := m.resolve(ctx)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// User はリクエストのセッションのユーザー名を返します。セッションがなければ空文字です。
// ガードで解決済みならストアへは問い合わせません。
func (m *Manager) User(c *gin.Context) string {
	record, err := m.resolve(c.Request.Context())
	if err != nil || record == nil {
		return ""
	}
	return record.User
}

// resolve はリクエストのセッションを解決します。結果はそのリクエストの間だけ保持し、
// エラーは保持しません。
func (m *Manager) resolve(ctx context.Context) (*Record, error) {
	rs, ok := ctx.Value(requestSessionKey{}).(*requestSession)
	if !ok || rs.id == "" {
		return nil, nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.resolved {
		return rs.record, nil
	}
	record, err := m.lookup(ctx, rs.id)
	if err != nil {
		return nil, err
	}
	rs.record = record
	rs.resolved = true
	return record, nil
}

// lookup は期限切れのセッションを削除しつつ有効なセッションを返します。
func (m *Manager) lookup(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, nil
	}
	record, err := m.store.Get(ctx, id)
	if err != nil || record == nil {
		return nil, err
	}

	now := m.now()
	if now.Sub(record.IssuedAt) > m.cfg.SessionMaxLifetime() || now.Sub(record.LastActive) > m.cfg.SessionIdleTimeout() {
		if err := m.store.Delete(ctx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if err := m.store.Touch(ctx, id, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// LoadSession はクッキーのセッションIDをリクエストコンテキストへ移すミドルウェアです。
func (m *Manager) LoadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie := sessions.Default(c)
		if sid, ok := cookie.Get(cookieKeySID).(string); ok && sid != "" {
			c.Request = c.Request.WithContext(WithID(c.Request.Context(), sid))
		}
		c.Next()
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login は /api/auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username と password を JSON で送ってください",
		})
		return
	}

	if err := m.ensureCredentials(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SERVER_MISCONFIGURATION",
			"message": err.Error(),
		})
		return
	}

	ip := c.ClientIP()
	if retryAfter := m.checkLock(ip); retryAfter > 0 {
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "一定時間後に再度お試しください",
		})
		return
	}

	if req.Username != m.cfg.AppUsername || !m.verifyPassword(req.Password) {
		remaining := m.recordFailure(ip)
		m.audit(c.Request.Context(), audit.KindLoginFailed, req.Username, ip)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":              "INVALID_CREDENTIALS",
			"message":           "ユーザー名またはパスワードが正しくありません",
			"remainingAttempts": remaining,
		})
		return
	}

	m.resetAttempts(ip)

	token, err := generateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "TOKEN_GENERATION_FAILED",
			"message": "CSRF トークンの生成に失敗しました",
		})
		return
	}

	record, err := m.store.Create(c.Request.Context(), m.cfg.AppUsername, token)
	if err != nil {
		m.logger.Printf("session: failed to create session: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました",
		})
		return
	}

	cookie := sessions.Default(c)
	cookie.Set(cookieKeySID, record.ID)
	if err := cookie.Save(); err != nil {
		_ = m.store.Delete(c.Request.Context(), record.ID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました",
		})
		return
	}

	m.audit(c.Request.Context(), audit.KindLogin, record.User, ip)
	c.Header(csrfHeader, token)
	c.Status(http.StatusNoContent)
}

// Logout は /api/auth/logout のハンドラーです。RequireLogin の後に置きます。
func (m *Manager) Logout(c *gin.Context) {
	cookie := sessions.Default(c)
	if sid, ok := cookie.Get(cookieKeySID).(string); ok && sid != "" {
		if err := m.store.Delete(c.Request.Context(), sid); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"code":    "SESSION_DELETE_FAILED",
				"message": "セッションの削除に失敗しました",
			})
			return
		}
	}
	cookie.Clear()
	if err := cookie.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの削除に失敗しました",
		})
		return
	}
	m.audit(c.Request.Context(), audit.KindLogout, c.GetString(ContextUserKey), c.ClientIP())
	c.Status(http.StatusNoContent)
}

// Current は GET /api/auth/session のハンドラーです。
// クライアント側のガードはこのエンドポイントでセッションの有無を確認します。
func (m *Manager) Current(c *gin.Context) {
	record, err := m.resolve(c.Request.Context())
	if err != nil {
		m.logger.Printf("session: lookup failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "SESSION_CHECK_FAILED",
			"message": "セッションの確認に失敗しました",
		})
		return
	}
	c.Header("Cache-Control", "no-store")
	if record == nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          record.User,
		"issuedAt":      record.IssuedAt,
	})
}

// RequireLogin は API 用にセッションを検証するミドルウェアを返します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := m.resolve(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"code":    "SESSION_CHECK_FAILED",
				"message": "セッションの確認に失敗しました",
			})
			return
		}
		if record == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "ログインが必要です",
			})
			return
		}
		c.Set(ContextUserKey, record.User)
		c.Set(contextRecordKey, record)
		c.Next()
	}
}

// VerifyCSRF は X-CSRF-Token ヘッダーを検証するミドルウェアです。RequireLogin の後に置きます。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		value, _ := c.Get(contextRecordKey)
		record, _ := value.(*Record)
		if record == nil || record.CSRFToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_MISSING",
				"message": "CSRF トークンが設定されていません",
			})
			return
		}

		received := c.GetHeader(csrfHeader)
		if subtle.ConstantTimeCompare([]byte(record.CSRFToken), []byte(received)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_INVALID",
				"message": "CSRF トークンが一致しません",
			})
			return
		}

		c.Next()
	}
}

func (m *Manager) audit(ctx context.Context, kind audit.Kind, subject, detail string) {
	if m.auditor == nil {
		return
	}
	m.auditor.Record(ctx, audit.Event{Kind: kind, Subject: subject, Detail: detail})
}

func (m *Manager) ensureCredentials() error {
	if m.cfg.AppUsername == "" {
		return errors.New("APP_USERNAME が設定されていません")
	}
	if m.cfg.AppPasswordHash == "" {
		return errors.New("APP_PASSWORD_HASH が設定されていません")
	}
	return nil
}

func (m *Manager) verifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(m.cfg.AppPasswordHash), []byte(password)) == nil
}

func (m *Manager) checkLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	now := m.now()
	if now.After(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

func (m *Manager) recordFailure(ip string) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		m.attempts[ip] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxLoginAttempts
	}

	remaining := maxLoginAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (m *Manager) resetAttempts(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, ip)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
