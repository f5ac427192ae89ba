package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// placeholderAccountSID はサンプル設定に含まれるダミーのSMSアカウントSIDの接頭辞。
// この値が設定されている場合は本番送信を行わない。
const placeholderAccountSID = "ACxxxxxxxx"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	JWTSecret   string
	JWTTTL      time.Duration
	AdminJWTTTL time.Duration

	// SMS
	SMSAccountSID string
	SMSAuthToken  string
	SMSFromNumber string
	SMSAPIBaseURL string
	PoliceNumber  string

	// Dispatch
	SendTimeout     time.Duration
	DispatchTimeout time.Duration

	// Supplementary sends
	RepeatSends           int
	RepeatSpacing         time.Duration
	RepeatMaxAttempts     int
	DeliveryMaxConcurrent int
	DeliveryPollInterval  time.Duration

	// Queue / Events
	RedisURL        string
	KafkaBrokers    []string
	KafkaAlertTopic string

	// Rate Limit
	RateLimitGeneral int

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// LiveSMS は実際のSMSプロバイダーに送信すべき設定かどうかを返す。
// 認証情報が揃っていない、またはダミー値の場合はデモモードとなる。
func (c *Config) LiveSMS() bool {
	if c.SMSAccountSID == "" || c.SMSAuthToken == "" || c.SMSFromNumber == "" {
		return false
	}
	return !strings.HasPrefix(c.SMSAccountSID, placeholderAccountSID)
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.JWTTTL = getEnvDuration("JWT_TTL", 168*time.Hour)
	cfg.AdminJWTTTL = getEnvDuration("ADMIN_JWT_TTL", 24*time.Hour)

	cfg.SMSAccountSID = os.Getenv("SMS_ACCOUNT_SID")
	cfg.SMSAuthToken = os.Getenv("SMS_AUTH_TOKEN")
	cfg.SMSFromNumber = os.Getenv("SMS_FROM_NUMBER")
	cfg.SMSAPIBaseURL = getEnvString("SMS_API_BASE_URL", "https://api.twilio.com")
	cfg.PoliceNumber = getEnvString("POLICE_NUMBER", "+91807643514")

	cfg.SendTimeout = getEnvDuration("SEND_TIMEOUT", 8*time.Second)
	cfg.DispatchTimeout = getEnvDuration("DISPATCH_TIMEOUT", 15*time.Second)

	cfg.RepeatSends = getEnvInt("REPEAT_SENDS", 2)
	cfg.RepeatSpacing = getEnvDuration("REPEAT_SPACING", 2*time.Second)
	cfg.RepeatMaxAttempts = getEnvInt("REPEAT_MAX_ATTEMPTS", 3)
	cfg.DeliveryMaxConcurrent = getEnvInt("DELIVERY_MAX_CONCURRENT", 10)
	cfg.DeliveryPollInterval = getEnvDuration("DELIVERY_POLL_INTERVAL", time.Second)

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS")
	cfg.KafkaAlertTopic = getEnvString("KAFKA_ALERT_TOPIC", "sos-alerts")

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvLevel("LOG_LEVEL", slog.LevelInfo)
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

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
