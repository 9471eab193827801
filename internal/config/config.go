// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// セッション確認に失敗したときの扱い
const (
	FailurePolicyClosed = "closed" // セッションなしとして扱う
	FailurePolicyError  = "error"  // ナビゲーションエラーとして返す
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定
	AppUsername     string // ログイン用ユーザー名
	AppPasswordHash string // bcryptでハッシュ化されたパスワード
	SessionSecret   string // セッションCookie署名用の秘密鍵

	// サーバー設定
	Port    string // サーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// セッション設定
	SessionRedisURL       string // セッション保存先のRedis接続URL
	SessionMaxLifetimeMin int    // ログインからの最大有効期間（分）
	SessionIdleMin        int    // 無操作で失効するまでの時間（分）
	SessionFailurePolicy  string // セッション確認失敗時の扱い (closed, error)

	// 監査ログ設定
	AuditEnabled bool // 監査イベントをキューに投入するか
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		AppUsername:     getEnv("APP_USERNAME", ""),
		AppPasswordHash: getEnv("APP_PASSWORD_HASH", ""),
		SessionSecret:   getEnv("SESSION_SECRET", ""),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		SessionRedisURL:       getEnv("SESSION_REDIS_URL", "redis://127.0.0.1:6379/0"),
		SessionMaxLifetimeMin: getEnvAsInt("SESSION_MAX_LIFETIME_MINUTES", 12*60),
		SessionIdleMin:        getEnvAsInt("SESSION_IDLE_MINUTES", 30),
		SessionFailurePolicy:  strings.ToLower(getEnv("SESSION_FAILURE_POLICY", FailurePolicyClosed)),

		AuditEnabled: getEnvAsBool("AUDIT_ENABLED", false),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.SessionFailurePolicy {
	case FailurePolicyClosed, FailurePolicyError:
	default:
		return fmt.Errorf("SESSION_FAILURE_POLICY must be %q or %q, got %q",
			FailurePolicyClosed, FailurePolicyError, c.SessionFailurePolicy)
	}
	if c.SessionMaxLifetimeMin <= 0 {
		return fmt.Errorf("SESSION_MAX_LIFETIME_MINUTES must be positive")
	}
	if c.SessionIdleMin <= 0 {
		return fmt.Errorf("SESSION_IDLE_MINUTES must be positive")
	}

	// ローカル開発では認証設定は任意
	if c.GinMode == "release" {
		if c.AppUsername == "" {
			return fmt.Errorf("APP_USERNAME is required in release mode")
		}
		if c.AppPasswordHash == "" {
			return fmt.Errorf("APP_PASSWORD_HASH is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.SessionRedisURL == "" {
			return fmt.Errorf("SESSION_REDIS_URL is required in release mode")
		}
	}

	return nil
}

// SessionMaxLifetime はセッションの最大有効期間を返します。
func (c *Config) SessionMaxLifetime() time.Duration {
	return time.Duration(c.SessionMaxLifetimeMin) * time.Minute
}

// SessionIdleTimeout は無操作タイムアウトを返します。
func (c *Config) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleMin) * time.Minute
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
