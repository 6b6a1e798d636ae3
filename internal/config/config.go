package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Upstream (USDA FoodData Central)
	FDCAPIKey   string
	FDCBaseURL  string
	HTTPTimeout time.Duration

	// Rate Governor
	RateLimitHourly int
	// GovernorDenialWait が0より大きい場合、レート枠の回復がこの時間以内なら
	// 即時拒否ではなく回復を待ってから実行する。
	GovernorDenialWait time.Duration

	// Retry
	RetryMaxRetries int
	RetryBaseDelay  time.Duration

	// Transport Rate Limit
	RateLimitClientRPM int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.FDCAPIKey = os.Getenv("FDC_API_KEY")
	if cfg.FDCAPIKey == "" {
		missing = append(missing, "FDC_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.FDCBaseURL = getEnvString("FDC_BASE_URL", "https://api.nal.usda.gov/fdc/v1")
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 30*time.Second)
	cfg.RateLimitHourly = getEnvInt("RATE_LIMIT_HOURLY", 1000)
	cfg.GovernorDenialWait = getEnvDuration("GOVERNOR_DENIAL_WAIT", 0)
	cfg.RetryMaxRetries = getEnvInt("RETRY_MAX_RETRIES", 3)
	cfg.RetryBaseDelay = getEnvDuration("RETRY_BASE_DELAY", time.Second)
	cfg.RateLimitClientRPM = getEnvInt("RATE_LIMIT_CLIENT_RPM", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
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
