package progress

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tatlabs/tatserver/internal/db"
	"github.com/tatlabs/tatserver/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "progress.db") + "?_pragma=busy_timeout(5000)"
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestSummarize(t *testing.T) {
	conn := openTestDB(t)
	user := models.User{Email: "p@example.com", Password: "hashed", Active: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	test := models.Test{Title: "Card 1", ImageURL: "u", DurationSeconds: 600, CreditCost: 1, IsEnabled: true}
	if errCreate := conn.Create(&test).Error; errCreate != nil {
		t.Fatalf("create test: %v", errCreate)
	}

	now := time.Now().UTC()
	addSession := func(status models.SessionStatus, completedAt *time.Time) {
		sess := models.TestSession{UserID: user.ID, TestID: test.ID, Status: status, StartedAt: now, DurationSeconds: 600, CompletedAt: completedAt}
		if errCreate := conn.Create(&sess).Error; errCreate != nil {
			t.Fatalf("create session: %v", errCreate)
		}
	}

	today := now
	yesterday := now.AddDate(0, 0, -1)
	addSession(models.SessionCompleted, &today)
	addSession(models.SessionCompleted, &yesterday)
	addSession(models.SessionAbandoned, &yesterday)

	summary, errSummarize := Summarize(context.Background(), conn, user.ID)
	if errSummarize != nil {
		t.Fatalf("summarize: %v", errSummarize)
	}
	if summary.TotalSessions != 3 {
		t.Fatalf("total sessions = %d, want 3", summary.TotalSessions)
	}
	if summary.TestsCompleted != 2 {
		t.Fatalf("tests completed = %d, want 2", summary.TestsCompleted)
	}
	if summary.StreakDays != 2 {
		t.Fatalf("streak = %d, want 2", summary.StreakDays)
	}
	if summary.Level != 1 {
		t.Fatalf("level = %d, want 1", summary.Level)
	}
}

func TestStreakDays(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	day := func(offset int) time.Time { return now.AddDate(0, 0, offset) }

	if got := streakDays(nil, now); got != 0 {
		t.Fatalf("empty streak = %d, want 0", got)
	}

	// Today plus two prior days.
	if got := streakDays([]time.Time{day(0), day(-1), day(-2)}, now); got != 3 {
		t.Fatalf("streak = %d, want 3", got)
	}

	// Nothing today yet; a run ending yesterday still counts.
	if got := streakDays([]time.Time{day(-1), day(-2)}, now); got != 2 {
		t.Fatalf("streak ending yesterday = %d, want 2", got)
	}

	// A gap before yesterday breaks the run.
	if got := streakDays([]time.Time{day(0), day(-2), day(-3)}, now); got != 1 {
		t.Fatalf("gapped streak = %d, want 1", got)
	}

	// Last completion two days ago: streak is over.
	if got := streakDays([]time.Time{day(-2), day(-3)}, now); got != 0 {
		t.Fatalf("stale streak = %d, want 0", got)
	}
}
