package database

import (
	"fmt"
	"time"

	"clinicnotify/internal/models"
	"clinicnotify/internal/utils"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// Polling queries issued on every trigger; logging them drowns everything else.
var ignoredQueries = []string{
	`FROM "appointment" WHERE status =`,
	`FROM "notification" WHERE sent_at IS NULL`,
}

// Options tunes the connection.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	LogLevel   logger.LogLevel
}

// DefaultOptions mirrors the production settings.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 5,
		RetryDelay: 5 * time.Second,
		LogLevel:   logger.Warn,
	}
}

// NewGormLogger routes gorm's SQL logging through zap and hides polling queries.
func NewGormLogger(log *zap.Logger, level logger.LogLevel) logger.Interface {
	base := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second, // Log queries slower than 1 second
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return utils.NewCustomGormLogger(base, ignoredQueries...)
}

// GormConfig is shared by the postgres connection and the test databases.
func GormConfig(l logger.Interface) *gorm.Config {
	return &gorm.Config{
		Logger: l,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true, // Use singular table names
		},
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction:                   false,
		DisableForeignKeyConstraintWhenMigrating: true, // patient and appointment are owned by the CRUD app
	}
}

// Open connects to postgres, configures the pool and migrates the schema.
func Open(dsn string, log *zap.Logger, opts Options) (*gorm.DB, error) {
	gormConfig := GormConfig(NewGormLogger(log, opts.LogLevel))
	gormConfig.PrepareStmt = true

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < opts.MaxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err == nil {
			break
		}
		log.Warn("database connection attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		if i < opts.MaxRetries-1 {
			log.Info("retrying database connection", zap.Duration("delay", opts.RetryDelay))
			time.Sleep(opts.RetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", opts.MaxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("database connection established and migrations completed")
	return db, nil
}

// Migrate creates or updates the tables this service owns or reads.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Patient{},
		&models.Appointment{},
		&models.Notification{},
		&models.PushSubscription{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
