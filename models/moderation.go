package models

import (
	"time"
)

// Hold reasons produced by the anti-spam gate.
const (
	ReasonWordFilter = "word_filter"
	ReasonLink       = "link"
	ReasonRateLimit  = "rate_limit"
	ReasonBurst      = "burst"
	ReasonFirstPost  = "first_post"
)

// ModerationQueueItem is created when the gate holds a piece of content, and
// resolved by moderator review through the moderation.Queue service.
type ModerationQueueItem struct {
	ID          uint   `gorm:"primaryKey"`
	SubjectUri  string `gorm:"index;not null"`
	SubjectType string `gorm:"not null"`
	AuthorDid   string `gorm:"index;not null"`
	Community   string `gorm:"index;not null"`
	Reason      string `gorm:"not null"`
	Evidence    string
	Status      string `gorm:"index;default:pending"`
	ReviewedBy  string
	ReviewedAt  *time.Time
	CreatedAt   time.Time
}

// AccountTrust tracks per-community standing. IsTrusted is monotone: the
// ingestion path never resets it once set.
type AccountTrust struct {
	Did               string `gorm:"primaryKey"`
	Community         string `gorm:"primaryKey"`
	ApprovedPostCount int64  `gorm:"default:0"`
	IsTrusted         bool   `gorm:"default:false"`
	TrustedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
