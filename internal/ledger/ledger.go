// Package ledger maintains the append-only credit ledger. All credit balance
// mutation in the system routes through Deduct and Credit so the running
// balance on the user row and the transaction log can never diverge.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tatlabs/tatserver/internal/models"

	"gorm.io/gorm"
)

var (
	// ErrInsufficientBalance indicates the user cannot afford the deduction.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrDuplicateReference indicates the reference was already applied.
	// Callers treat it as success to absorb duplicate external events.
	ErrDuplicateReference = errors.New("ledger: duplicate reference")
	// ErrUserNotFound indicates the user row does not exist.
	ErrUserNotFound = errors.New("ledger: user not found")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

// Deduct atomically removes amount credits from the user and appends a
// negative ledger entry referencing refID. The balance check and decrement are
// a single conditional UPDATE, so concurrent deductions can never drive the
// balance negative. Returns the new balance.
func Deduct(ctx context.Context, conn *gorm.DB, userID uint64, amount int64, refType models.ReferenceType, refID, description string) (int64, error) {
	if conn == nil {
		return 0, fmt.Errorf("ledger: nil connection")
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var balanceAfter int64
	errTx := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&models.User{}).
			Where("id = ? AND credit_balance >= ?", userID, amount).
			Updates(map[string]any{
				"credit_balance":      gorm.Expr("credit_balance - ?", amount),
				"total_credits_spent": gorm.Expr("total_credits_spent + ?", amount),
				"updated_at":          now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if errCount := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; errCount != nil {
				return errCount
			}
			if count == 0 {
				return ErrUserNotFound
			}
			return ErrInsufficientBalance
		}

		balance, errBalance := loadBalance(tx, userID)
		if errBalance != nil {
			return errBalance
		}

		entry := models.CreditTransaction{
			UserID:        userID,
			Delta:         -amount,
			BalanceAfter:  balance,
			Type:          models.CreditTxTestDeduction,
			ReferenceType: refType,
			ReferenceID:   refID,
			Description:   description,
			CreatedAt:     now,
		}
		if errCreate := tx.Create(&entry).Error; errCreate != nil {
			if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
				return ErrDuplicateReference
			}
			return errCreate
		}
		balanceAfter = balance
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	return balanceAfter, nil
}

// Credit atomically adds amount credits to the user and appends a positive
// ledger entry referencing refID. Purchase credits also bump the lifetime
// purchased counter. Returns the new balance.
func Credit(ctx context.Context, conn *gorm.DB, userID uint64, amount int64, txType models.CreditTransactionType, refType models.ReferenceType, refID, description string) (int64, error) {
	if conn == nil {
		return 0, fmt.Errorf("ledger: nil connection")
	}
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var balanceAfter int64
	errTx := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		updates := map[string]any{
			"credit_balance": gorm.Expr("credit_balance + ?", amount),
			"updated_at":     now,
		}
		if txType == models.CreditTxPurchase {
			updates["total_credits_purchased"] = gorm.Expr("total_credits_purchased + ?", amount)
		}
		res := tx.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}

		balance, errBalance := loadBalance(tx, userID)
		if errBalance != nil {
			return errBalance
		}

		entry := models.CreditTransaction{
			UserID:        userID,
			Delta:         amount,
			BalanceAfter:  balance,
			Type:          txType,
			ReferenceType: refType,
			ReferenceID:   refID,
			Description:   description,
			CreatedAt:     now,
		}
		if errCreate := tx.Create(&entry).Error; errCreate != nil {
			if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
				return ErrDuplicateReference
			}
			return errCreate
		}
		balanceAfter = balance
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	return balanceAfter, nil
}

// loadBalance reads the user's current credit balance inside a transaction.
func loadBalance(tx *gorm.DB, userID uint64) (int64, error) {
	// row holds the balance lookup result.
	var row struct {
		CreditBalance int64
	}
	if errTake := tx.Model(&models.User{}).
		Select("credit_balance").
		Where("id = ?", userID).
		Take(&row).Error; errTake != nil {
		return 0, errTake
	}
	return row.CreditBalance, nil
}
