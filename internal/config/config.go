// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingSecret は署名用シークレットが未設定のときに返されます。
var ErrMissingSecret = errors.New("JWT_SECRET is required")

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// トークン設定
	JWTSecret string        // トークン署名用の秘密鍵（必須）
	JWTIssuer string        // iss クレーム
	TokenTTL  time.Duration // アクセストークンの有効期間

	// サーバー設定
	Port     string // APIサーバーのポート番号
	GinMode  string // Ginの実行モード (debug, release, test)
	LogLevel string // zap のログレベル

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// X-Forwarded-For を信用するプロキシ（カンマ区切りの IP / CIDR、空なら信用しない）
	TrustedProxiesList string

	// レート制限
	LoginRateLimit      int           // ログイン試行の上限回数（ウィンドウあたり）
	LoginRateWindow     time.Duration // ログイン試行のウィンドウ長
	APIRateLimit        int           // 一般APIの上限回数（ウィンドウあたり）
	APIRateWindow       time.Duration // 一般APIのウィンドウ長
	RateLimitSweepEvery time.Duration // 期限切れバケットの掃除間隔

	// パスワードハッシュ
	BcryptCost int

	// ユーザーストア（空ならメモリ上に保持）
	UserStoreRedisURL string
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "catalog-auth"),
		TokenTTL:  time.Duration(getEnvAsInt("TOKEN_TTL_MINUTES", 60)) * time.Minute,

		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		TrustedProxiesList: getEnv("TRUSTED_PROXIES", ""),

		LoginRateLimit:      getEnvAsInt("LOGIN_RATE_LIMIT", 5),
		LoginRateWindow:     time.Duration(getEnvAsInt("LOGIN_RATE_WINDOW_MINUTES", 15)) * time.Minute,
		APIRateLimit:        getEnvAsInt("API_RATE_LIMIT", 100),
		APIRateWindow:       time.Duration(getEnvAsInt("API_RATE_WINDOW_MINUTES", 60)) * time.Minute,
		RateLimitSweepEvery: time.Duration(getEnvAsInt("RATE_LIMIT_SWEEP_SECONDS", 60)) * time.Second,

		BcryptCost: getEnvAsInt("BCRYPT_COST", 10),

		UserStoreRedisURL: getEnv("USER_STORE_REDIS_URL", ""),
	}

	// 必須設定のバリデーション
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
// 署名用シークレットはモードに関係なく必須で、欠けている場合は起動を中止します。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return ErrMissingSecret
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL_MINUTES must be positive")
	}
	if c.LoginRateLimit <= 0 || c.LoginRateWindow <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT and LOGIN_RATE_WINDOW_MINUTES must be positive")
	}
	if c.APIRateLimit <= 0 || c.APIRateWindow <= 0 {
		return fmt.Errorf("API_RATE_LIMIT and API_RATE_WINDOW_MINUTES must be positive")
	}
	if c.RateLimitSweepEvery <= 0 {
		return fmt.Errorf("RATE_LIMIT_SWEEP_SECONDS must be positive")
	}
	if c.GinMode == "release" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes in release mode")
	}
	return nil
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// TrustedProxies は信用するプロキシの一覧を返します。
// 未設定なら nil を返し、クライアント IP は常に接続元アドレスから取ります。
func (c *Config) TrustedProxies() []string {
	return splitList(c.TrustedProxiesList)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
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
