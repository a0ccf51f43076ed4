package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/medlab/diagnosis-backend/internal/hash"
	"github.com/medlab/diagnosis-backend/internal/logging"
	"github.com/medlab/diagnosis-backend/internal/models"
	"github.com/medlab/diagnosis-backend/internal/repo"
)

const (
	migrateAttempts = 5
	migrateBaseWait = time.Second
)

func configurePool(sqlDB *sql.DB) {
	const (
		maxOpenConns    = 20
		maxIdleConns    = 10
		connMaxLifetime = 30 * time.Minute
		connMaxIdleTime = 5 * time.Minute
	)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
}

func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	configurePool(sqlDB)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return db, nil
}

// Migrate creates the schema, retrying with bounded exponential backoff so
// the service survives a database that is still starting up.
func Migrate(ctx context.Context, db *gorm.DB) error {
	l := logging.FromContext(ctx)

	var err error
	wait := migrateBaseWait
	for attempt := 1; attempt <= migrateAttempts; attempt++ {
		err = db.WithContext(ctx).AutoMigrate(
			&models.User{},
			&models.Patient{},
			&models.Consultant{},
			&models.LabTest{},
			&models.Order{},
			&models.OrderTest{},
			&models.TestReport{},
			&models.Billing{},
		)
		if err == nil {
			return nil
		}

		l.Warn("migration failed", "attempt", attempt, "error", err)
		if attempt == migrateAttempts {
			break
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		if wait < 10*time.Second {
			wait *= 2
		}
	}
	return fmt.Errorf("migrate after %d attempts: %w", migrateAttempts, err)
}

// SeedAdmin creates a default admin account when no active admin exists.
func SeedAdmin(ctx context.Context, db *gorm.DB, username, password string) error {
	l := logging.FromContext(ctx)
	users := &repo.UserRepo{DB: db}

	admins, err := users.ListByRole(ctx, models.RoleAdmin, true)
	if err != nil {
		return err
	}
	if len(admins) > 0 {
		return nil
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return err
	}

	admin, err := users.Create(ctx, username, pwHash, "System Administrator", models.RoleAdmin)
	if err != nil {
		return err
	}

	l.Info("default admin created", "user_id", admin.ID)
	l.Warn("default admin password is in use, change it")
	return nil
}
