package models

import "time"

// MembershipTier identifies a user's membership level.
type MembershipTier string

// MembershipTier constants define membership levels.
const (
	// MembershipFree is the default tier for new accounts.
	MembershipFree MembershipTier = "free"
	// MembershipPro unlocks paid features until MembershipExpiresAt.
	MembershipPro MembershipTier = "pro"
)

// User represents an end-user account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    string `gorm:"type:text;not null;uniqueIndex"` // Unique sign-in email.
	Name     string `gorm:"type:text"`                      // Display name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Membership          MembershipTier `gorm:"type:varchar(16);not null;default:'free'"` // Current membership tier.
	MembershipExpiresAt *time.Time     // Pro membership expiry; nil for free accounts.

	CreditBalance         int64 `gorm:"not null;default:0"` // Current credit balance, never negative.
	TotalCreditsPurchased int64 `gorm:"not null;default:0"` // Lifetime purchased credits.
	TotalCreditsSpent     int64 `gorm:"not null;default:0"` // Lifetime spent credits.

	Active  bool `gorm:"not null;default:true"`  // Whether the user can sign in.
	IsAdmin bool `gorm:"not null;default:false"` // Grants access to admin endpoints.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
