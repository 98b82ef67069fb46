package models

import (
	"time"

	"gorm.io/datatypes"
)

// CreditPackage represents a purchasable credit bundle.
type CreditPackage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:varchar(255);not null"` // Package name.
	Description string `gorm:"type:text"`                  // Package description.

	Credits     int64          `gorm:"not null"`                         // Credits granted on purchase.
	AmountMinor int64          `gorm:"not null"`                         // Price in minor currency units.
	Currency    string         `gorm:"type:varchar(8);not null"`         // ISO currency code.
	Features    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Marketing feature list.

	// ProDays extends pro membership by this many days when purchased; zero
	// for credit-only packages.
	ProDays int `gorm:"not null;default:0"`

	SortOrder int  `gorm:"not null;default:0"`    // Display ordering weight.
	IsEnabled bool `gorm:"not null;default:true"` // Whether the package is purchasable.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
