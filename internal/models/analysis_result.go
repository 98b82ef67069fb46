package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnalysisResult stores the opaque LLM analysis of a completed session.
// Exactly one result may exist per session.
type AnalysisResult struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	SessionID uint64      `gorm:"not null;uniqueIndex"` // Analyzed session ID.
	Session   TestSession `gorm:"foreignKey:SessionID"` // Analyzed session record.

	Result datatypes.JSON `gorm:"type:jsonb;not null"` // Raw analysis payload.
	Model  string         `gorm:"type:varchar(128)"`   // Model that produced the analysis.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
