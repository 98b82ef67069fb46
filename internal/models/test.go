package models

import "time"

// Test represents a TAT test definition with its stimulus image.
type Test struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Title       string `gorm:"type:varchar(255);not null"` // Test title.
	Description string `gorm:"type:text"`                  // Instructions shown before starting.
	ImageURL    string `gorm:"type:text;not null"`         // Stimulus image location in object storage.

	DurationSeconds int   `gorm:"not null;default:600"` // Writing time limit.
	CreditCost      int64 `gorm:"not null;default:1"`   // Credits deducted on start.

	SortOrder int  `gorm:"not null;default:0"`    // Display ordering weight.
	IsEnabled bool `gorm:"not null;default:true"` // Whether the test can be started.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
