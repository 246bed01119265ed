package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DefaultTimezone is the organization zone used when ORG_TIMEZONE is unset.
const DefaultTimezone = "Asia/Bangkok"

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Scheduling SchedulingConfig
	Workload   WorkloadConfig
	Downstream DownstreamConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulingConfig governs the session reconciler and its timer trigger.
type SchedulingConfig struct {
	Timezone        string
	CronEnabled     bool
	CronSpec        string
	LookaheadMonths int
	RunTimeout      time.Duration
}

// WorkloadConfig tunes caching for per-teacher workload summaries.
type WorkloadConfig struct {
	CacheTTL time.Duration
}

// DownstreamConfig configures the recalculation jobs fired after a successful run.
type DownstreamConfig struct {
	PayrollURL     string
	TuitionURL     string
	RequestTimeout time.Duration
	Workers        int
	MaxRetries     int
	RetryDelay     time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET"), Issuer: v.GetString("JWT_ISSUER")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	tz := strings.TrimSpace(v.GetString("ORG_TIMEZONE"))
	if tz == "" {
		tz = DefaultTimezone
	}
	lookahead := v.GetInt("SCHEDULE_SYNC_LOOKAHEAD_MONTHS")
	if lookahead < 0 {
		lookahead = 0
	}
	cfg.Scheduling = SchedulingConfig{
		Timezone:        tz,
		CronEnabled:     v.GetBool("ENABLE_SCHEDULE_SYNC_CRON"),
		CronSpec:        v.GetString("SCHEDULE_SYNC_CRON"),
		LookaheadMonths: lookahead,
		RunTimeout:      parseDuration(v.GetString("SCHEDULE_SYNC_TIMEOUT"), 5*time.Minute),
	}

	cfg.Workload = WorkloadConfig{
		CacheTTL: parseDuration(v.GetString("WORKLOAD_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Downstream = DownstreamConfig{
		PayrollURL:     v.GetString("PAYROLL_RECALC_URL"),
		TuitionURL:     v.GetString("TUITION_RECALC_URL"),
		RequestTimeout: parseDuration(v.GetString("DOWNSTREAM_TIMEOUT"), 10*time.Second),
		Workers:        v.GetInt("DOWNSTREAM_WORKERS"),
		MaxRetries:     v.GetInt("DOWNSTREAM_MAX_RETRIES"),
		RetryDelay:     parseDuration(v.GetString("DOWNSTREAM_RETRY_DELAY"), 5*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tutor_center")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ORG_TIMEZONE", DefaultTimezone)
	v.SetDefault("ENABLE_SCHEDULE_SYNC_CRON", false)
	v.SetDefault("SCHEDULE_SYNC_CRON", "0 2 * * *")
	v.SetDefault("SCHEDULE_SYNC_LOOKAHEAD_MONTHS", 1)
	v.SetDefault("SCHEDULE_SYNC_TIMEOUT", "5m")

	v.SetDefault("WORKLOAD_CACHE_TTL", "10m")

	v.SetDefault("PAYROLL_RECALC_URL", "")
	v.SetDefault("TUITION_RECALC_URL", "")
	v.SetDefault("DOWNSTREAM_TIMEOUT", "10s")
	v.SetDefault("DOWNSTREAM_WORKERS", 2)
	v.SetDefault("DOWNSTREAM_MAX_RETRIES", 3)
	v.SetDefault("DOWNSTREAM_RETRY_DELAY", "5s")
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
