package models

import "time"

// CreditTransactionType classifies a ledger entry.
type CreditTransactionType string

// CreditTransactionType constants define ledger entry kinds.
const (
	// CreditTxPurchase credits a completed package purchase.
	CreditTxPurchase CreditTransactionType = "purchase"
	// CreditTxTestDeduction debits the cost of starting a test session.
	CreditTxTestDeduction CreditTransactionType = "test_deduction"
	// CreditTxPromo credits a promotional grant.
	CreditTxPromo CreditTransactionType = "promo"
	// CreditTxRefund credits a reversed charge.
	CreditTxRefund CreditTransactionType = "refund"
)

// ReferenceType identifies what a ledger entry points back to.
type ReferenceType string

// ReferenceType constants define ledger reference kinds.
const (
	// RefPaymentOrder references a payment order by merchant order id.
	RefPaymentOrder ReferenceType = "payment_order"
	// RefTestSession references a test session by id.
	RefTestSession ReferenceType = "test_session"
	// RefPromo references a one-time promotional grant by promo key.
	RefPromo ReferenceType = "promo"
)

// CreditTransaction is an append-only ledger entry. Replaying all entries for
// a user in order must reproduce the user's current credit balance.
type CreditTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Related user ID.
	User   User   `gorm:"foreignKey:UserID"` // Related user record.

	Delta        int64                 `gorm:"not null"`                  // Signed credit change.
	BalanceAfter int64                 `gorm:"not null"`                  // Balance snapshot after applying Delta.
	Type         CreditTransactionType `gorm:"type:varchar(32);not null"` // Entry classification.

	// The (reference, type) pair is unique so the same external event can
	// never be applied twice.
	ReferenceType ReferenceType `gorm:"type:varchar(32);uniqueIndex:idx_credit_tx_reference,priority:1"` // Referenced record kind.
	ReferenceID   string        `gorm:"type:text;uniqueIndex:idx_credit_tx_reference,priority:2"`        // Referenced record id.

	Description string `gorm:"type:text"` // Human-readable note.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
