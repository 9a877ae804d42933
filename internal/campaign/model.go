package campaign

import (
	"time"

	"waflow/internal/message"
)

type Status string

const (
	// StatusCreated holds the name while recipients are being resolved.
	StatusCreated   Status = "CREATED"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

type Campaign struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Owner       string `gorm:"not null;uniqueIndex:uq_campaigns_owner_name" json:"owner"`
	Name        string `gorm:"not null;uniqueIndex:uq_campaigns_owner_name" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
	Status      Status `gorm:"type:varchar(16);not null" json:"status"`

	Payload message.Payload `gorm:"serializer:json;type:text;not null" json:"payload"`

	MinDelay     int    `gorm:"not null" json:"min_delay"`
	MaxDelay     int    `gorm:"not null" json:"max_delay"`
	BatchSize    int    `gorm:"not null" json:"batch_size"`
	BatchDelay   int    `gorm:"not null" json:"batch_delay"`
	StartDate    string `gorm:"type:varchar(10)" json:"start_date,omitempty"`
	StartTime    string `gorm:"type:varchar(8)" json:"start_time,omitempty"`
	EndTime      string `gorm:"type:varchar(8)" json:"end_time,omitempty"`
	RandomSuffix bool   `gorm:"not null;default:false" json:"random_suffix"`

	JobIDs         []string `gorm:"serializer:json;type:text" json:"job_ids,omitempty"`
	RecipientCount int      `gorm:"not null;default:0" json:"recipient_count"`
	FailureReason  *string  `gorm:"type:text" json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecipientSource names exactly one way of finding recipients.
type RecipientSource struct {
	Numbers []string `json:"numbers,omitempty"`
	// Rows are parsed spreadsheet rows; one column holds the number and
	// every column is available as a {{placeholder}}.
	Rows    []map[string]string `json:"rows,omitempty"`
	GroupID string              `json:"group_id,omitempty"`
	LabelID string              `json:"label_id,omitempty"`
}

func (s RecipientSource) kind() string {
	n := 0
	kind := ""
	if len(s.Numbers) > 0 {
		n, kind = n+1, "numbers"
	}
	if len(s.Rows) > 0 {
		n, kind = n+1, "rows"
	}
	if s.GroupID != "" {
		n, kind = n+1, "group"
	}
	if s.LabelID != "" {
		n, kind = n+1, "label"
	}
	if n != 1 {
		return ""
	}
	return kind
}

type Request struct {
	Owner       string          `json:"-"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Payload     message.Payload `json:"payload"`
	Recipients  RecipientSource `json:"recipients"`

	MinDelay     int    `json:"min_delay"`
	MaxDelay     int    `json:"max_delay"`
	BatchSize    int    `json:"batch_size"`
	BatchDelay   int    `json:"batch_delay"`
	StartDate    string `json:"start_date,omitempty"`
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
	RandomSuffix bool   `json:"random_suffix,omitempty"`
}

// Report is a campaign with its job counts.
type Report struct {
	Campaign *Campaign `json:"campaign"`
	Pending  int64     `json:"pending"`
	Paused   int64     `json:"paused"`
	Sent     int64     `json:"sent"`
	Failed   int64     `json:"failed"`
}
