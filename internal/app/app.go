// Package app wires the reminder pipeline from configuration. The HTTP server
// and the CLI share it.
package app

import (
	"fmt"

	"clinicnotify/internal/config"
	"clinicnotify/internal/metrics"
	"clinicnotify/internal/repository"
	"clinicnotify/internal/services"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	Metrics *metrics.Metrics

	Appointments  *repository.AppointmentRepository
	Notifications *repository.NotificationRepository
	Subscriptions *repository.SubscriptionRepository

	Scanner *services.ReminderScanner
	Drainer *services.NotificationDrainer
	// Push is nil when VAPID keys are not configured.
	Push *services.PushService
}

// New builds the pipeline on top of an open database.
func New(cfg *config.Config, db *gorm.DB, log *zap.Logger) (*App, error) {
	a := &App{
		Config:        cfg,
		DB:            db,
		Log:           log,
		Metrics:       metrics.New(),
		Appointments:  repository.NewAppointmentRepository(db),
		Notifications: repository.NewNotificationRepository(db),
		Subscriptions: repository.NewSubscriptionRepository(db),
	}

	a.Scanner = services.NewReminderScanner(a.Appointments, a.Notifications, services.ScannerConfig{
		Enabled:     cfg.RemindersEnabled,
		WindowStart: cfg.ReminderWindowStart,
		WindowEnd:   cfg.ReminderWindowEnd,
		LeadTime:    cfg.ReminderLeadTime,
		AppURL:      cfg.AppURL,
		Location:    cfg.Location(),
	}, log, a.Metrics)

	var pusher services.UserPusher
	if cfg.PushConfigured() {
		sender, err := services.NewWebPushSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject, cfg.PushTTL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to configure web push: %w", err)
		}
		a.Push = services.NewPushService(a.Subscriptions, sender, log, a.Metrics, cfg.PushBulkConcurrency)
		pusher = a.Push
	} else {
		log.Warn("VAPID keys not configured, web push disabled")
	}

	a.Drainer = services.NewNotificationDrainer(a.Notifications, pusher, a.Appointments,
		cfg.DrainBatchSize, log, a.Metrics, a.fallbacks()...)
	return a, nil
}

// fallbacks returns the configured channels in the order they are tried.
func (a *App) fallbacks() []services.FallbackChannel {
	var channels []services.FallbackChannel
	if sms := services.NewSMSService(a.Config.SMSProvider, a.Config.SMSAPIKey, a.Config.SMSSender, a.Log); sms != nil {
		channels = append(channels, sms)
	}
	if email := services.NewEmailService(a.Config.SendGridAPIKey, a.Config.SendGridFromEmail, a.Config.SendGridFromName); email != nil {
		a.Log.Info("email fallback enabled", zap.String("from", a.Config.SendGridFromEmail))
		channels = append(channels, email)
	}
	return channels
}

// Worker returns the in-process scheduler, nil when REMINDER_WORKER_INTERVAL
// is zero.
func (a *App) Worker() *services.ReminderWorker {
	if a.Config.ReminderWorkerInterval <= 0 {
		return nil
	}
	return services.NewReminderWorker(a.Scanner, a.Drainer, a.Config.ReminderWorkerInterval, a.Log)
}
