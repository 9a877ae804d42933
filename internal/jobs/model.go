package jobs

import (
	"time"

	"waflow/internal/message"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
	StatusPaused  Status = "PAUSED"
)

// Kind groups jobs by what produced them.
type Kind string

const (
	KindCampaign Kind = "campaign"
	KindBot      Kind = "bot"
	KindForward  Kind = "forward"
	KindNurture  Kind = "nurture"
)

type Job struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Owner     string `gorm:"index;not null"`
	Recipient string `gorm:"type:text;not null"`

	Payload message.Payload `gorm:"serializer:json;type:text;not null"`

	Status      Status    `gorm:"type:varchar(16);not null;default:'PENDING'"`
	ScheduledAt time.Time `gorm:"not null"`
	PausedAt    *time.Time

	GroupKind Kind   `gorm:"type:varchar(16);not null"`
	GroupKey  string `gorm:"type:varchar(128);not null"`

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
