package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort     string `mapstructure:"APP_PORT"`
	GinMode     string `mapstructure:"GIN_MODE"`
	Env         string `mapstructure:"APP_ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	AppURL      string `mapstructure:"APP_URL"`
	AppTimezone string `mapstructure:"APP_TIMEZONE"`

	// Database. DATABASE_URL wins over the individual parameters.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBHost      string `mapstructure:"DB_HOST"`
	DBUser      string `mapstructure:"DB_USER"`
	DBPassword  string `mapstructure:"DB_PASSWORD"`
	DBName      string `mapstructure:"DB_NAME"`
	DBPort      string `mapstructure:"DB_PORT"`
	DBSSLMode   string `mapstructure:"DB_SSL_MODE"`

	// JWTSecret verifies the identity provider's HS256 access tokens.
	JWTSecret  string `mapstructure:"JWT_SECRET"`
	CronSecret string `mapstructure:"CRON_SECRET"`

	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RateLimitPerMinute int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`

	// Reminder scheduling.
	RemindersEnabled       bool          `mapstructure:"REMINDERS_ENABLED"`
	ReminderWindowStart    time.Duration `mapstructure:"REMINDER_WINDOW_START"`
	ReminderWindowEnd      time.Duration `mapstructure:"REMINDER_WINDOW_END"`
	ReminderLeadTime       time.Duration `mapstructure:"REMINDER_LEAD_TIME"`
	ReminderWorkerInterval time.Duration `mapstructure:"REMINDER_WORKER_INTERVAL"`
	DrainBatchSize         int           `mapstructure:"DRAIN_BATCH_SIZE"`

	// Web push.
	VAPIDPublicKey      string `mapstructure:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey     string `mapstructure:"VAPID_PRIVATE_KEY"`
	VAPIDSubject        string `mapstructure:"VAPID_SUBJECT"`
	PushTTL             int    `mapstructure:"PUSH_TTL"`
	PushBulkConcurrency int    `mapstructure:"PUSH_BULK_CONCURRENCY"`

	// Fallback channels.
	SMSProvider       string `mapstructure:"SMS_PROVIDER"`
	SMSAPIKey         string `mapstructure:"SMS_API_KEY"`
	SMSSender         string `mapstructure:"SMS_SENDER"`
	SendGridAPIKey    string `mapstructure:"SENDGRID_API_KEY"`
	SendGridFromEmail string `mapstructure:"SENDGRID_FROM_EMAIL"`
	SendGridFromName  string `mapstructure:"SENDGRID_FROM_NAME"`
}

// Load reads an optional .env file and the process environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	// A missing .env is normal outside local development
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("No .env file found, using environment variables only")
	}

	v := viper.New()
	setDefaults(v)
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_URL", "http://localhost:3000")
	v.SetDefault("APP_TIMEZONE", "UTC")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("REMINDERS_ENABLED", true)
	v.SetDefault("REMINDER_WINDOW_START", "6h")
	v.SetDefault("REMINDER_WINDOW_END", "24h")
	v.SetDefault("REMINDER_LEAD_TIME", "5m")
	v.SetDefault("REMINDER_WORKER_INTERVAL", "0s")
	v.SetDefault("DRAIN_BATCH_SIZE", 500)
	v.SetDefault("VAPID_SUBJECT", "mailto:notifications@localhost")
	v.SetDefault("PUSH_TTL", 60*60*24)
	v.SetDefault("PUSH_BULK_CONCURRENCY", 8)
	v.SetDefault("SMS_PROVIDER", "")
	v.SetDefault("SENDGRID_FROM_NAME", "Clinic Reminders")
}

// keys lists every variable Load binds, defaulted or not.
var keys = []string{
	"APP_PORT", "GIN_MODE", "APP_ENV", "LOG_LEVEL", "APP_URL", "APP_TIMEZONE",
	"DATABASE_URL", "DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_PORT", "DB_SSL_MODE",
	"JWT_SECRET", "CRON_SECRET", "CORS_ALLOWED_ORIGINS", "RATE_LIMIT_PER_MINUTE",
	"REMINDERS_ENABLED", "REMINDER_WINDOW_START", "REMINDER_WINDOW_END", "REMINDER_LEAD_TIME",
	"REMINDER_WORKER_INTERVAL", "DRAIN_BATCH_SIZE",
	"VAPID_PUBLIC_KEY", "VAPID_PRIVATE_KEY", "VAPID_SUBJECT", "PUSH_TTL", "PUSH_BULK_CONCURRENCY",
	"SMS_PROVIDER", "SMS_API_KEY", "SMS_SENDER",
	"SENDGRID_API_KEY", "SENDGRID_FROM_EMAIL", "SENDGRID_FROM_NAME",
}

// IsProduction reports whether the service runs in release mode.
func (c *Config) IsProduction() bool {
	return c.GinMode == "release" || c.Env == "production"
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC connect_timeout=10",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Location resolves APP_TIMEZONE, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PushConfigured reports whether both VAPID keys are present.
func (c *Config) PushConfigured() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Validate checks the settings every entry point needs.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		for key, value := range map[string]string{
			"DB_HOST":     c.DBHost,
			"DB_USER":     c.DBUser,
			"DB_PASSWORD": c.DBPassword,
			"DB_NAME":     c.DBName,
			"DB_PORT":     c.DBPort,
		} {
			if value == "" {
				errs = append(errs, fmt.Errorf("%s must be set when DATABASE_URL is empty", key))
			}
		}
	}
	if c.ReminderWindowStart < 0 || c.ReminderWindowEnd <= c.ReminderWindowStart {
		errs = append(errs, fmt.Errorf("reminder window %s..%s is empty", c.ReminderWindowStart, c.ReminderWindowEnd))
	}
	if c.ReminderLeadTime < 0 {
		errs = append(errs, errors.New("REMINDER_LEAD_TIME must not be negative"))
	}
	if c.DrainBatchSize <= 0 {
		errs = append(errs, errors.New("DRAIN_BATCH_SIZE must be positive"))
	}
	if c.PushBulkConcurrency <= 0 {
		errs = append(errs, errors.New("PUSH_BULK_CONCURRENCY must be positive"))
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together"))
	}
	return errors.Join(errs...)
}
