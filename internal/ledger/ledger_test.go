package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tatlabs/tatserver/internal/db"
	"github.com/tatlabs/tatserver/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "ledger.db") + "?_pragma=busy_timeout(5000)"
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func createUser(t *testing.T, conn *gorm.DB, balance int64) *models.User {
	t.Helper()
	user := models.User{
		Email:         "user@example.com",
		Password:      "hashed",
		CreditBalance: balance,
		Active:        true,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return &user
}

func TestCreditThenDeduct(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn, 0)
	ctx := context.Background()

	balance, errCredit := Credit(ctx, conn, user.ID, 100, models.CreditTxPurchase, models.RefPaymentOrder, "order-1", "purchase")
	if errCredit != nil {
		t.Fatalf("credit: %v", errCredit)
	}
	if balance != 100 {
		t.Fatalf("balance after credit = %d, want 100", balance)
	}

	balance, errDeduct := Deduct(ctx, conn, user.ID, 30, models.RefTestSession, "1", "test started")
	if errDeduct != nil {
		t.Fatalf("deduct: %v", errDeduct)
	}
	if balance != 70 {
		t.Fatalf("balance after deduct = %d, want 70", balance)
	}

	var reloaded models.User
	if errFind := conn.First(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloaded.CreditBalance != 70 {
		t.Fatalf("stored balance = %d, want 70", reloaded.CreditBalance)
	}
	if reloaded.TotalCreditsPurchased != 100 {
		t.Fatalf("total purchased = %d, want 100", reloaded.TotalCreditsPurchased)
	}
	if reloaded.TotalCreditsSpent != 30 {
		t.Fatalf("total spent = %d, want 30", reloaded.TotalCreditsSpent)
	}
}

// Replaying all ledger entries in order must reproduce the stored balance.
func TestLedgerReplayMatchesBalance(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn, 0)
	ctx := context.Background()

	if _, err := Credit(ctx, conn, user.ID, 50, models.CreditTxPurchase, models.RefPaymentOrder, "order-a", ""); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := Deduct(ctx, conn, user.ID, 10, models.RefTestSession, "1", ""); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if _, err := Credit(ctx, conn, user.ID, 5, models.CreditTxPromo, models.RefPromo, "promo-1", ""); err != nil {
		t.Fatalf("promo credit: %v", err)
	}
	if _, err := Deduct(ctx, conn, user.ID, 20, models.RefTestSession, "2", ""); err != nil {
		t.Fatalf("deduct: %v", err)
	}

	var entries []models.CreditTransaction
	if errFind := conn.Where("user_id = ?", user.ID).Order("id ASC").Find(&entries).Error; errFind != nil {
		t.Fatalf("load entries: %v", errFind)
	}

	var replayed int64
	for _, entry := range entries {
		replayed += entry.Delta
		if entry.BalanceAfter != replayed {
			t.Fatalf("entry %d balance_after = %d, replay says %d", entry.ID, entry.BalanceAfter, replayed)
		}
	}

	var reloaded models.User
	if errFind := conn.First(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloaded.CreditBalance != replayed {
		t.Fatalf("stored balance = %d, replay = %d", reloaded.CreditBalance, replayed)
	}
}

func TestDeductInsufficientBalance(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn, 50)

	_, errDeduct := Deduct(context.Background(), conn, user.ID, 80, models.RefTestSession, "1", "")
	if !errors.Is(errDeduct, ErrInsufficientBalance) {
		t.Fatalf("deduct error = %v, want ErrInsufficientBalance", errDeduct)
	}

	var reloaded models.User
	if errFind := conn.First(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloaded.CreditBalance != 50 {
		t.Fatalf("balance = %d, want untouched 50", reloaded.CreditBalance)
	}

	var count int64
	if errCount := conn.Model(&models.CreditTransaction{}).Where("user_id = ?", user.ID).Count(&count).Error; errCount != nil {
		t.Fatalf("count entries: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("ledger entries = %d, want 0", count)
	}
}

func TestDuplicateReferenceRollsBack(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn, 0)
	ctx := context.Background()

	if _, err := Credit(ctx, conn, user.ID, 100, models.CreditTxPurchase, models.RefPaymentOrder, "order-1", ""); err != nil {
		t.Fatalf("first credit: %v", err)
	}
	_, errDup := Credit(ctx, conn, user.ID, 100, models.CreditTxPurchase, models.RefPaymentOrder, "order-1", "")
	if !errors.Is(errDup, ErrDuplicateReference) {
		t.Fatalf("second credit error = %v, want ErrDuplicateReference", errDup)
	}

	var reloaded models.User
	if errFind := conn.First(&reloaded, user.ID).Error; errFind != nil {
		t.Fatalf("reload user: %v", errFind)
	}
	if reloaded.CreditBalance != 100 {
		t.Fatalf("balance = %d, want 100 after duplicate rollback", reloaded.CreditBalance)
	}

	var count int64
	if errCount := conn.Model(&models.CreditTransaction{}).Where("user_id = ?", user.ID).Count(&count).Error; errCount != nil {
		t.Fatalf("count entries: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("ledger entries = %d, want 1", count)
	}
}

func TestUnknownUserAndInvalidAmount(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	if _, err := Credit(ctx, conn, 9999, 10, models.CreditTxPromo, models.RefPromo, "promo-x", ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("credit unknown user error = %v, want ErrUserNotFound", err)
	}
	if _, err := Deduct(ctx, conn, 9999, 10, models.RefTestSession, "1", ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("deduct unknown user error = %v, want ErrUserNotFound", err)
	}

	user := createUser(t, conn, 10)
	if _, err := Deduct(ctx, conn, user.ID, 0, models.RefTestSession, "1", ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero deduct error = %v, want ErrInvalidAmount", err)
	}
	if _, err := Credit(ctx, conn, user.ID, -5, models.CreditTxPromo, models.RefPromo, "promo-y", ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative credit error = %v, want ErrInvalidAmount", err)
	}
}
