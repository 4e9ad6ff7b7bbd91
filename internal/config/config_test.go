package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFromEnv(t *testing.T, env map[string]string) *Config {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadFromEnv(t, map[string]string{"DATABASE_URL": "postgres://localhost/clinic"})

	assert.Equal(t, "8080", cfg.AppPort)
	assert.True(t, cfg.RemindersEnabled)
	assert.Equal(t, 6*time.Hour, cfg.ReminderWindowStart)
	assert.Equal(t, 24*time.Hour, cfg.ReminderWindowEnd)
	assert.Equal(t, 5*time.Minute, cfg.ReminderLeadTime)
	assert.Equal(t, time.Duration(0), cfg.ReminderWorkerInterval)
	assert.Equal(t, 500, cfg.DrainBatchSize)
	assert.Equal(t, 86400, cfg.PushTTL)
	assert.False(t, cfg.PushConfigured())
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	cfg := loadFromEnv(t, map[string]string{
		"DATABASE_URL":          "postgres://localhost/clinic",
		"REMINDERS_ENABLED":     "false",
		"REMINDER_WINDOW_START": "2h",
		"REMINDER_WINDOW_END":   "12h",
		"DRAIN_BATCH_SIZE":      "25",
		"VAPID_PUBLIC_KEY":      "pub",
		"VAPID_PRIVATE_KEY":     "priv",
		"CORS_ALLOWED_ORIGINS":  "https://a.example, https://b.example,",
		"GIN_MODE":              "release",
	})

	assert.False(t, cfg.RemindersEnabled)
	assert.Equal(t, 2*time.Hour, cfg.ReminderWindowStart)
	assert.Equal(t, 12*time.Hour, cfg.ReminderWindowEnd)
	assert.Equal(t, 25, cfg.DrainBatchSize)
	assert.True(t, cfg.PushConfigured())
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "clinic", DBPort: "5432", DBSSLMode: "disable"}
	assert.Equal(t, "host=db user=u password=p dbname=clinic port=5432 sslmode=disable TimeZone=UTC connect_timeout=10", cfg.DSN())

	cfg.DatabaseURL = "postgres://elsewhere"
	assert.Equal(t, "postgres://elsewhere", cfg.DSN())
}

func TestValidate(t *testing.T) {
	valid := Config{
		DatabaseURL:         "postgres://localhost/clinic",
		ReminderWindowStart: 6 * time.Hour,
		ReminderWindowEnd:   24 * time.Hour,
		DrainBatchSize:      10,
		PushBulkConcurrency: 2,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing database", func(c *Config) { c.DatabaseURL = "" }},
		{"empty window", func(c *Config) { c.ReminderWindowEnd = c.ReminderWindowStart }},
		{"negative lead time", func(c *Config) { c.ReminderLeadTime = -time.Minute }},
		{"zero batch", func(c *Config) { c.DrainBatchSize = 0 }},
		{"zero concurrency", func(c *Config) { c.PushBulkConcurrency = 0 }},
		{"half vapid pair", func(c *Config) { c.VAPIDPublicKey = "pub" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{AppTimezone: "Not/AZone"}
	assert.Equal(t, time.UTC, cfg.Location())
}
