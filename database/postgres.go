package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/meridian-courier/device-trust/models"
)

func NewPostgresClient(host, user, password, dbname, port string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable", host, user, password, dbname, port)

	pgClient, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return pgClient, nil
}

// Migrate creates or updates the schema. The activity_logs table is migrated
// separately: deployments may skip it entirely and the audit recorder
// degrades to a no-op when the table is absent.
func Migrate(db *gorm.DB, withActivityLog bool) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.TrustedDevice{},
	); err != nil {
		return err
	}

	if withActivityLog {
		if err := db.AutoMigrate(&models.ActivityLog{}); err != nil {
			return err
		}
	}

	// Composite index backing the primary-election check in the registry.
	// Intentionally not unique: the emergency recovery path is allowed to
	// produce a second primary for an account.
	if !db.Migrator().HasIndex(&models.TrustedDevice{}, "idx_trusted_devices_account_primary") {
		if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_trusted_devices_account_primary ON trusted_devices (account_id, is_primary)`).Error; err != nil {
			return err
		}
	}

	return nil
}
