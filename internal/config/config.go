package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Env はアプリケーションの実行モードを表す。
type Env string

const (
	// EnvDevelopment は開発モード。モックログインが有効になり、
	// DATABASE_URL未設定時はインメモリストアにフォールバックする。
	EnvDevelopment Env = "development"
	// EnvProduction は本番モード。OIDCフローとトークン期限検証が有効になる。
	EnvProduction Env = "production"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// 実行モード
	Env Env

	// Database（開発モードでは省略可。未設定時はインメモリストアを使用）
	DatabaseURL string

	// Session
	SessionSecret string // セッションCookieのHMAC署名キー
	SessionMaxAge int    // 秒。デフォルトは1週間

	// OIDC（本番モードで必須）
	IssuerURL         string
	OIDCClientID      string
	OIDCClientSecret  string
	OIDCRedirectURL   string
	DiscoveryCacheTTL time.Duration

	// 感情分析API
	OpenAIAPIKey string
	OpenAIModel  string

	// Rate Limit（req/min/user）
	RateLimitGeneral int
	RateLimitChat    int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// IsProduction は本番モードかどうかを返す。
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// 本番モードではOIDC関連の環境変数も必須となる。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = Env(getEnvString("APP_ENV", string(EnvDevelopment)))
	if cfg.Env != EnvDevelopment && cfg.Env != EnvProduction {
		return nil, fmt.Errorf("invalid APP_ENV: %s (must be development or production)", cfg.Env)
	}

	// Required fields
	var missing []string

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	// 本番モードではOIDC設定とDBが必須
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.IssuerURL = os.Getenv("ISSUER_URL")
	cfg.OIDCClientID = os.Getenv("OIDC_CLIENT_ID")
	cfg.OIDCClientSecret = os.Getenv("OIDC_CLIENT_SECRET")
	cfg.OIDCRedirectURL = os.Getenv("OIDC_REDIRECT_URL")

	if cfg.Env == EnvProduction {
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
		if cfg.IssuerURL == "" {
			missing = append(missing, "ISSUER_URL")
		}
		if cfg.OIDCClientID == "" {
			missing = append(missing, "OIDC_CLIENT_ID")
		}
		if cfg.OIDCClientSecret == "" {
			missing = append(missing, "OIDC_CLIENT_SECRET")
		}
		if cfg.OIDCRedirectURL == "" {
			missing = append(missing, "OIDC_REDIRECT_URL")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800) // 1週間
	cfg.DiscoveryCacheTTL = getEnvDuration("DISCOVERY_CACHE_TTL", time.Hour)
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitChat = getEnvInt("RATE_LIMIT_CHAT", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
