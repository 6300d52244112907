package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Evidence      EvidenceConfig
	Exports       ExportsConfig
	Notifications NotificationsConfig
	Summary       SummaryConfig
	Donations     DonationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EvidenceConfig controls storage of medical evidence documents attached
// to wig requests.
type EvidenceConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// ExportsConfig configures donation report rendering.
type ExportsConfig struct {
	StorageDir string
}

// NotificationsConfig tunes the in-process notification dispatcher.
type NotificationsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// SummaryConfig governs the optional Redis cache in front of request
// analysis summaries. Disabled by default: every read recomputes from
// the store unless the operator opts in.
type SummaryConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// DonationsConfig holds workflow tunables for donation finalization.
type DonationsConfig struct {
	RevertWindow time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxEvidenceSize := v.GetInt64("EVIDENCE_MAX_FILE_SIZE")
	if maxEvidenceSize <= 0 {
		maxEvidenceSize = 10 * 1024 * 1024
	}
	cfg.Evidence = EvidenceConfig{
		StorageDir:       v.GetString("EVIDENCE_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("EVIDENCE_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("EVIDENCE_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxEvidenceSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("EVIDENCE_ALLOWED_MIME_TYPES")),
	}

	cfg.Exports = ExportsConfig{
		StorageDir: v.GetString("EXPORTS_STORAGE_DIR"),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFICATIONS_WORKERS"),
		BufferSize: v.GetInt("NOTIFICATIONS_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFICATIONS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFICATIONS_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Summary = SummaryConfig{
		CacheEnabled: v.GetBool("SUMMARY_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("SUMMARY_CACHE_TTL"), 30*time.Second),
	}

	cfg.Donations = DonationsConfig{
		RevertWindow: parseDuration(v.GetString("DONATION_REVERT_WINDOW"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "wigshare")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EVIDENCE_STORAGE_DIR", "./evidence")
	v.SetDefault("EVIDENCE_SIGNED_URL_SECRET", "dev_evidence_secret")
	v.SetDefault("EVIDENCE_SIGNED_URL_TTL", "30m")
	v.SetDefault("EVIDENCE_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("EVIDENCE_ALLOWED_MIME_TYPES", "application/pdf,image/jpeg,image/png")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")

	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFICATIONS_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATIONS_RETRY_DELAY", "5s")

	v.SetDefault("SUMMARY_CACHE_ENABLED", false)
	v.SetDefault("SUMMARY_CACHE_TTL", "30s")

	v.SetDefault("DONATION_REVERT_WINDOW", "24h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
