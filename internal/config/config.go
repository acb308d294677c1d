package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	DatabaseURL         string
	RedisURL            string
	AMQPURL             string // empty disables event publishing
	OrderEventsQueue    string
	FrontendURLEndsWith string
	DevPassword         string
	HealthAdminKey      string
	AdminAPIKey         string // X-Admin-Key for cap administration; empty disables it
	BusinessTimezone    string
	DefaultDailyCap     int64 // used when no cap row exists for a key; 0 means none
	StorageMaxRetries   uint64
	StorageRetryInitial time.Duration
	StalePendingAfter   time.Duration
	SweepInterval       time.Duration
	LogLevel            string
}

func setDefaults() {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("ORDER_EVENTS_QUEUE", "order_events")
	viper.SetDefault("BUSINESS_TIMEZONE", "Asia/Dhaka")
	viper.SetDefault("DEFAULT_DAILY_CAP", 0)
	viper.SetDefault("STORAGE_MAX_RETRIES", 3)
	viper.SetDefault("STORAGE_RETRY_INITIAL", "50ms")
	viper.SetDefault("STALE_PENDING_AFTER", "5m")
	viper.SetDefault("SWEEP_INTERVAL", "1m")
	viper.SetDefault("LOG_LEVEL", "info")
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults()

	env := viper.GetString("APP_ENV")

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}

	return &Config{
		Env:                 env,
		Port:                viper.GetString("PORT"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		AMQPURL:             viper.GetString("AMQP_URL"),
		OrderEventsQueue:    viper.GetString("ORDER_EVENTS_QUEUE"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		AdminAPIKey:         viper.GetString("ADMIN_API_KEY"),
		BusinessTimezone:    viper.GetString("BUSINESS_TIMEZONE"),
		DefaultDailyCap:     viper.GetInt64("DEFAULT_DAILY_CAP"),
		StorageMaxRetries:   viper.GetUint64("STORAGE_MAX_RETRIES"),
		StorageRetryInitial: viper.GetDuration("STORAGE_RETRY_INITIAL"),
		StalePendingAfter:   viper.GetDuration("STALE_PENDING_AFTER"),
		SweepInterval:       viper.GetDuration("SWEEP_INTERVAL"),
		LogLevel:            viper.GetString("LOG_LEVEL"),
	}, nil
}
