// Package main はサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/gatekeeper/internal/audit"
	"github.com/yourusername/gatekeeper/internal/config"
	"github.com/yourusername/gatekeeper/internal/guard"
	"github.com/yourusername/gatekeeper/internal/route"
	"github.com/yourusername/gatekeeper/internal/session"
	"github.com/yourusername/gatekeeper/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gin.SetMode(cfg.GinMode)
	logger := log.Default()

	opt, err := redis.ParseURL(cfg.SessionRedisURL)
	if err != nil {
		log.Fatalf("Failed to parse SESSION_REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	// 監査ログは任意。無効なら nil のまま渡す
	var auditor audit.Recorder
	if cfg.AuditEnabled {
		auditManager, err := audit.NewManager(cfg.SessionRedisURL, audit.NewStore(rdb, 0), logger)
		if err != nil {
			log.Fatalf("Failed to set up audit queue: %v", err)
		}
		auditManager.StartWorkers()
		defer shutdownWithLog(logger, "Audit queue", auditManager.Shutdown)
		auditor = auditManager
	}

	sessionManager, err := session.NewManager(cfg, session.NewStore(rdb, cfg.SessionMaxLifetime()), auditor, logger)
	if err != nil {
		log.Fatalf("Failed to set up sessions: %v", err)
	}

	navGuard, err := guard.New(sessionManager,
		guard.WithFailurePolicy(failurePolicy(cfg)),
		guard.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to set up guard: %v", err)
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// クッキーにはセッションIDのみを保存する
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   sessionManager.CookieMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(session.CookieName, store))
	router.Use(sessionManager.LoadSession())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"X-CSRF-Token",
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	table := route.Default(web.AuthView, web.HomeView(sessionManager.User))
	setupRoutes(router, table, navGuard, sessionManager, auditor)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting server on %s (mode: %s)", srv.Addr, cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "gatekeeper",
		"version": "0.1.0",
	})
}

// setupRoutes はページと認証 API の配線を行います。
func setupRoutes(router *gin.Engine, table *route.Table, navGuard *guard.Guard, sessionManager *session.Manager, auditor audit.Recorder) {
	router.GET("/health", handleHealth)

	// ページはすべてナビゲーションガードを通す
	web.Register(router, table, navGuard, auditor)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/login", sessionManager.Login)
			authRoutes.GET("/session", sessionManager.Current)
			authRoutes.POST("/logout",
				sessionManager.RequireLogin(),
				sessionManager.VerifyCSRF(),
				sessionManager.Logout,
			)
		}
	}
}

// shutdownWithLog は終了処理を実行し、失敗した場合はログに残します。
func shutdownWithLog(logger *log.Logger, name string, shutdown func(context.Context) error) {
	if err := shutdown(context.Background()); err != nil {
		logger.Printf("%s shutdown error: %v", name, err)
	}
}

func failurePolicy(cfg *config.Config) guard.FailurePolicy {
	if cfg.SessionFailurePolicy == config.FailurePolicyError {
		return guard.FailWithError
	}
	return guard.FailClosed
}
