// Package progress derives gamified stats from a user's session history.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/tatlabs/tatserver/internal/models"

	"gorm.io/gorm"
)

// completionsPerLevel sets how many completed tests advance one level.
const completionsPerLevel = 5

// Summary aggregates a user's assessment progress.
type Summary struct {
	TestsCompleted int64 `json:"tests_completed"`
	TotalSessions  int64 `json:"total_sessions"`
	StreakDays     int   `json:"streak_days"`
	Level          int   `json:"level"`
}

// Summarize computes the progress summary for a user.
func Summarize(ctx context.Context, conn *gorm.DB, userID uint64) (Summary, error) {
	var summary Summary
	if conn == nil {
		return summary, fmt.Errorf("progress: nil connection")
	}

	if errCount := conn.WithContext(ctx).
		Model(&models.TestSession{}).
		Where("user_id = ?", userID).
		Count(&summary.TotalSessions).Error; errCount != nil {
		return summary, fmt.Errorf("progress: count sessions: %w", errCount)
	}

	if errCount := conn.WithContext(ctx).
		Model(&models.TestSession{}).
		Where("user_id = ? AND status = ?", userID, models.SessionCompleted).
		Count(&summary.TestsCompleted).Error; errCount != nil {
		return summary, fmt.Errorf("progress: count completions: %w", errCount)
	}

	var completedAt []time.Time
	if errFind := conn.WithContext(ctx).
		Model(&models.TestSession{}).
		Where("user_id = ? AND status = ? AND completed_at IS NOT NULL", userID, models.SessionCompleted).
		Order("completed_at DESC").
		Pluck("completed_at", &completedAt).Error; errFind != nil {
		return summary, fmt.Errorf("progress: load completion dates: %w", errFind)
	}

	summary.StreakDays = streakDays(completedAt, time.Now().UTC())
	summary.Level = int(summary.TestsCompleted/completionsPerLevel) + 1
	return summary, nil
}

// streakDays counts consecutive days with at least one completion, ending
// today or yesterday.
func streakDays(completions []time.Time, now time.Time) int {
	if len(completions) == 0 {
		return 0
	}

	seen := make(map[string]bool, len(completions))
	for _, t := range completions {
		seen[t.UTC().Format("2006-01-02")] = true
	}

	day := now
	if !seen[day.Format("2006-01-02")] {
		// A streak survives until the end of the next day.
		day = day.AddDate(0, 0, -1)
		if !seen[day.Format("2006-01-02")] {
			return 0
		}
	}

	streak := 0
	for seen[day.Format("2006-01-02")] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}
