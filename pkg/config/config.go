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
	Cache         CacheConfig
	Scheduler     SchedulerConfig
	Notifications NotificationConfig
	Requests      RequestsConfig
	Imports       ImportConfig
	RateLimit     RateLimitConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig tunes read-model caching for day views and exam dates.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// SchedulerConfig configures the allocation engine and its defaults.
type SchedulerConfig struct {
	SessionHours           int
	Policy                 string
	DefaultMaxHoursPerDay  int
	DefaultNoSameDayRepeat bool
	LockTTL                time.Duration
}

// NotificationConfig sizes the duty notification worker pool.
type NotificationConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// RequestsConfig governs change-request monitoring.
type RequestsConfig struct {
	DanglingCheckInterval time.Duration
}

// ImportConfig bounds roster uploads.
type ImportConfig struct {
	MaxFileSizeBytes int64
}

// RateLimitConfig throttles credential endpoints per client IP.
type RateLimitConfig struct {
	LoginPerSecond float64
	LoginBurst     int
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	sessionHours := v.GetInt("SCHEDULER_SESSION_HOURS")
	if sessionHours <= 0 {
		sessionHours = 1
	}
	cfg.Scheduler = SchedulerConfig{
		SessionHours:           sessionHours,
		Policy:                 v.GetString("SCHEDULER_POLICY"),
		DefaultMaxHoursPerDay:  v.GetInt("DEFAULT_MAX_HOURS_PER_DAY"),
		DefaultNoSameDayRepeat: v.GetBool("DEFAULT_NO_SAME_DAY_REPEAT"),
		LockTTL:                parseDuration(v.GetString("SCHEDULER_LOCK_TTL"), 30*time.Second),
	}

	cfg.Notifications = NotificationConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		Retries:    v.GetInt("NOTIFY_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Requests = RequestsConfig{
		DanglingCheckInterval: parseDuration(v.GetString("DANGLING_CHECK_INTERVAL"), 5*time.Minute),
	}

	maxImport := v.GetInt64("IMPORT_MAX_FILE_SIZE")
	if maxImport <= 0 {
		maxImport = 5 * 1024 * 1024
	}
	cfg.Imports = ImportConfig{MaxFileSizeBytes: maxImport}

	cfg.RateLimit = RateLimitConfig{
		LoginPerSecond: v.GetFloat64("LOGIN_RATE_PER_SEC"),
		LoginBurst:     v.GetInt("LOGIN_BURST"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 5000)
	v.SetDefault("API_PREFIX", "")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "invigilation")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "invigilation-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", true)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("SCHEDULER_SESSION_HOURS", 1)
	v.SetDefault("SCHEDULER_POLICY", "fewest-assignments")
	v.SetDefault("DEFAULT_MAX_HOURS_PER_DAY", 2)
	v.SetDefault("DEFAULT_NO_SAME_DAY_REPEAT", true)
	v.SetDefault("SCHEDULER_LOCK_TTL", "30s")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "2s")

	v.SetDefault("DANGLING_CHECK_INTERVAL", "5m")
	v.SetDefault("IMPORT_MAX_FILE_SIZE", 5*1024*1024)

	v.SetDefault("LOGIN_RATE_PER_SEC", 1.0)
	v.SetDefault("LOGIN_BURST", 5)
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
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
