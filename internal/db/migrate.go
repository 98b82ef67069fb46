package db

import (
	"fmt"

	"github.com/tatlabs/tatserver/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for all models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.CreditTransaction{},
		&models.CreditPackage{},
		&models.PaymentOrder{},
		&models.Test{},
		&models.TestSession{},
		&models.AnalysisResult{},
		&models.WebhookEvent{},
		&models.EmailCampaign{},
		&models.EmailDelivery{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}
