package models

import "time"

// CampaignStatus represents the lifecycle state of an email campaign.
type CampaignStatus string

// CampaignStatus constants define campaign states.
const (
	// CampaignDraft marks a campaign not yet sent.
	CampaignDraft CampaignStatus = "draft"
	// CampaignSending marks a campaign mid-delivery.
	CampaignSending CampaignStatus = "sending"
	// CampaignSent marks a campaign whose deliveries were all attempted.
	CampaignSent CampaignStatus = "sent"
)

// CampaignSegment selects which users receive a campaign.
type CampaignSegment string

// CampaignSegment constants define recipient segments.
const (
	// SegmentAll targets every active user.
	SegmentAll CampaignSegment = "all"
	// SegmentFree targets active free-tier users.
	SegmentFree CampaignSegment = "free"
	// SegmentPro targets active pro-tier users.
	SegmentPro CampaignSegment = "pro"
)

// EmailCampaign represents a marketing email blast.
type EmailCampaign struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Subject string `gorm:"type:varchar(255);not null"` // Email subject line.
	Body    string `gorm:"type:text;not null"`         // Email HTML body.

	Segment CampaignSegment `gorm:"type:varchar(16);not null;default:'all'"` // Target segment.
	Status  CampaignStatus  `gorm:"type:varchar(16);not null;default:'draft'"` // Current status.

	SentCount   int        `gorm:"not null;default:0"` // Deliveries accepted by the email API.
	FailedCount int        `gorm:"not null;default:0"` // Deliveries the email API rejected.
	SentAt      *time.Time // Set when the send finishes.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// EmailDelivery records one recipient's delivery outcome for a campaign.
type EmailDelivery struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CampaignID uint64        `gorm:"not null;index"`        // Related campaign ID.
	Campaign   EmailCampaign `gorm:"foreignKey:CampaignID"` // Related campaign record.

	UserID uint64 `gorm:"not null;index"` // Recipient user ID.
	Email  string `gorm:"type:text;not null"` // Recipient address at send time.

	MessageID string `gorm:"type:varchar(128)"` // Email API message id.
	Delivered bool   `gorm:"not null;default:false"` // Whether the API accepted the message.
	Error     string `gorm:"type:text"` // Failure detail, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
