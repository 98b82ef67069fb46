package models

import (
	"time"

	"gorm.io/datatypes"
)

// OrderStatus represents the lifecycle state of a payment order.
type OrderStatus string

// OrderStatus constants define payment order states. An order transitions
// from OrderStatusCreated to exactly one terminal state.
const (
	// OrderStatusCreated marks an order awaiting gateway confirmation.
	OrderStatusCreated OrderStatus = "created"
	// OrderStatusSuccess marks a paid order whose credits were granted.
	OrderStatusSuccess OrderStatus = "success"
	// OrderStatusFailed marks an order the gateway reported as failed.
	OrderStatusFailed OrderStatus = "failed"
	// OrderStatusExpired marks an order abandoned past its expiry window.
	OrderStatusExpired OrderStatus = "expired"
)

// Terminal reports whether the status is a terminal state.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusSuccess || s == OrderStatusFailed || s == OrderStatusExpired
}

// PaymentOrder records a purchase intent against a credit package.
type PaymentOrder struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Purchasing user ID.
	User   User   `gorm:"foreignKey:UserID"` // Purchasing user record.

	PackageID uint64        `gorm:"not null;index"`       // Purchased package ID.
	Package   CreditPackage `gorm:"foreignKey:PackageID"` // Purchased package record.

	MerchantOrderID string `gorm:"type:varchar(64);not null;uniqueIndex"` // Merchant-generated order id.
	GatewayOrderID  string `gorm:"type:text"`                             // Gateway-assigned order id.

	Credits     int64  `gorm:"not null"`                 // Credits to grant on success.
	AmountMinor int64  `gorm:"not null"`                 // Charged amount in minor units.
	Currency    string `gorm:"type:varchar(8);not null"` // ISO currency code.

	Status OrderStatus `gorm:"type:varchar(16);not null;default:'created';index"` // Current order status.

	ExpiresAt time.Time  `gorm:"not null"` // Checkout expiry, 15 minutes after creation.
	PaidAt    *time.Time // Set when the order transitions to success.

	GatewayMetadata datatypes.JSON `gorm:"type:jsonb"` // Raw gateway payload for the terminal transition.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
