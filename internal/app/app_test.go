package app

import (
	"context"
	"testing"
	"time"

	"clinicnotify/internal/config"
	"clinicnotify/internal/services"
	"clinicnotify/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func baseConfig() *config.Config {
	return &config.Config{
		AppURL:              "https://clinic.example",
		AppTimezone:         "UTC",
		RemindersEnabled:    true,
		ReminderWindowStart: 6 * time.Hour,
		ReminderWindowEnd:   24 * time.Hour,
		ReminderLeadTime:    5 * time.Minute,
		DrainBatchSize:      50,
		PushTTL:             3600,
		PushBulkConcurrency: 2,
		VAPIDSubject:        "mailto:ops@clinic.example",
	}
}

func TestNewWithoutPush(t *testing.T) {
	a, err := New(baseConfig(), testutil.NewTestDB(t), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, a.Push)
	assert.Nil(t, a.Worker())
	assert.Empty(t, a.fallbacks())

	_, err = a.Drainer.DrainDue(context.Background(), time.Now())
	assert.ErrorIs(t, err, services.ErrPushNotConfigured)
}

func TestNewWithPushAndFallbacks(t *testing.T) {
	pub, priv, err := services.GenerateVAPIDKeys()
	require.NoError(t, err)
	cfg := baseConfig()
	cfg.VAPIDPublicKey = pub
	cfg.VAPIDPrivateKey = priv
	cfg.ReminderWorkerInterval = time.Minute
	cfg.SMSProvider = "kavenegar"
	cfg.SMSAPIKey = "key"
	cfg.SendGridAPIKey = "SG.key"
	cfg.SendGridFromEmail = "clinic@example.com"

	a, err := New(cfg, testutil.NewTestDB(t), zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, a.Push)
	assert.NotNil(t, a.Worker())

	channels := a.fallbacks()
	require.Len(t, channels, 2)
	assert.Equal(t, "sms", channels[0].Name())
	assert.Equal(t, "email", channels[1].Name())

	res, err := a.Drainer.DrainDue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
}
