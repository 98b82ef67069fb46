package models

import "time"

// SessionStatus represents the lifecycle state of a test session.
type SessionStatus string

// SessionStatus constants define session states. Completed and abandoned are
// terminal and mutually exclusive.
const (
	// SessionActive marks a session with a running countdown.
	SessionActive SessionStatus = "active"
	// SessionPaused marks a session whose countdown is suspended.
	SessionPaused SessionStatus = "paused"
	// SessionCompleted marks a session finished with a submitted story.
	SessionCompleted SessionStatus = "completed"
	// SessionAbandoned marks a session given up or superseded.
	SessionAbandoned SessionStatus = "abandoned"
)

// Terminal reports whether the status is a terminal state.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionAbandoned
}

// TestSession records one test-taking attempt.
type TestSession struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   User   `gorm:"foreignKey:UserID"` // Owning user record.

	TestID uint64 `gorm:"not null;index"`    // Related test ID.
	Test   Test   `gorm:"foreignKey:TestID"` // Related test record.

	Status SessionStatus `gorm:"type:varchar(16);not null;default:'active';index"` // Current session status.

	StartedAt   time.Time  `gorm:"not null"` // Countdown start time.
	CompletedAt *time.Time // Set when the session reaches a terminal state.

	DurationSeconds int `gorm:"not null"` // Time limit copied from the test at start.

	// PausedSeconds accumulates completed pauses; PausedAt holds the start of
	// a pause still in progress. The remaining time is always derived from
	// these fields server-side, never trusted from the client.
	PausedSeconds int        `gorm:"not null;default:0"`
	PausedAt      *time.Time

	Story string `gorm:"type:text"` // Submitted story text.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
