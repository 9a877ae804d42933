package bot

import (
	"strings"
	"time"

	"waflow/internal/apperr"
	"waflow/internal/message"
	"waflow/internal/pacing"
)

type Audience string

const (
	AudienceAll      Audience = "ALL"
	AudienceSaved    Audience = "SAVED_CONTACTS"
	AudienceNonSaved Audience = "NON_SAVED_CONTACTS"
)

type MatchMode string

const (
	ExactCase           MatchMode = "EXACT_CASE"
	ExactIgnoreCase     MatchMode = "EXACT_IGNORE_CASE"
	SubstringCase       MatchMode = "SUBSTRING_CASE"
	SubstringIgnoreCase MatchMode = "SUBSTRING_IGNORE_CASE"
)

// Forward hands the conversation to a human: the sender's contact card and
// an optional note go to Number.
type Forward struct {
	Number  string `json:"number" yaml:"number"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// NurtureStep is one follow-up, sent After seconds after the rule fires,
// inside its own daily window.
type NurtureStep struct {
	Message     string `json:"message" yaml:"message"`
	After       int    `json:"after" yaml:"after"`
	WindowStart string `json:"window_start,omitempty" yaml:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty" yaml:"window_end,omitempty"`
}

type Rule struct {
	ID    string `gorm:"primaryKey;type:varchar(36)" json:"id" yaml:"-"`
	Owner string `gorm:"not null" json:"owner" yaml:"-"`
	Name  string `gorm:"type:text" json:"name" yaml:"name"`

	Audience  Audience  `gorm:"type:varchar(24);not null" json:"audience" yaml:"audience"`
	Trigger   string    `gorm:"type:text" json:"trigger" yaml:"trigger"`
	MatchMode MatchMode `gorm:"type:varchar(24);not null" json:"match_mode" yaml:"match_mode"`

	CooldownSeconds      int `gorm:"not null;default:0" json:"cooldown_seconds" yaml:"cooldown_seconds"`
	ResponseDelaySeconds int `gorm:"not null;default:0" json:"response_delay_seconds" yaml:"response_delay_seconds"`

	WindowStart string `gorm:"type:varchar(8)" json:"window_start,omitempty" yaml:"window_start,omitempty"`
	WindowEnd   string `gorm:"type:varchar(8)" json:"window_end,omitempty" yaml:"window_end,omitempty"`

	Response   message.Payload `gorm:"serializer:json;type:text;not null" json:"response" yaml:"response"`
	GroupReply bool            `gorm:"not null;default:false" json:"group_reply" yaml:"group_reply"`
	Forward    *Forward        `gorm:"serializer:json;type:text" json:"forward,omitempty" yaml:"forward,omitempty"`
	Nurturing  []NurtureStep   `gorm:"serializer:json;type:text" json:"nurturing,omitempty" yaml:"nurturing,omitempty"`

	Active bool `gorm:"not null" json:"active" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Validate normalises defaults and rejects rules the engine cannot run.
func (r *Rule) Validate() error {
	if r.Audience == "" {
		r.Audience = AudienceAll
	}
	if r.MatchMode == "" {
		r.MatchMode = SubstringIgnoreCase
	}
	switch r.Audience {
	case AudienceAll, AudienceSaved, AudienceNonSaved:
	default:
		return apperr.Invalid("audience", "unknown audience "+string(r.Audience))
	}
	switch r.MatchMode {
	case ExactCase, ExactIgnoreCase, SubstringCase, SubstringIgnoreCase:
	default:
		return apperr.Invalid("match_mode", "unknown match mode "+string(r.MatchMode))
	}
	if r.CooldownSeconds < 0 {
		return apperr.Invalid("cooldown_seconds", "must be >= 0")
	}
	if r.ResponseDelaySeconds < 0 {
		return apperr.Invalid("response_delay_seconds", "must be >= 0")
	}
	if _, err := pacing.ParseWindow(r.WindowStart, r.WindowEnd); err != nil {
		return apperr.Invalid("window", err.Error())
	}
	if msg := r.Response.Validate(); msg != "" {
		return apperr.Invalid("response", msg)
	}
	if r.Forward != nil && strings.TrimSpace(r.Forward.Number) == "" {
		return apperr.Invalid("forward.number", "required")
	}
	for _, s := range r.Nurturing {
		if strings.TrimSpace(s.Message) == "" {
			return apperr.Invalid("nurturing.message", "required")
		}
		if s.After < 0 {
			return apperr.Invalid("nurturing.after", "must be >= 0")
		}
		if _, err := pacing.ParseWindow(s.WindowStart, s.WindowEnd); err != nil {
			return apperr.Invalid("nurturing.window", err.Error())
		}
	}
	return nil
}

const maxHistory = 100

// FireRecord tracks when a rule last answered a recipient.
type FireRecord struct {
	RuleID      string      `gorm:"primaryKey;type:varchar(36)"`
	Recipient   string      `gorm:"primaryKey;type:varchar(128)"`
	LastFiredAt time.Time   `gorm:"not null"`
	FireCount   int         `gorm:"not null;default:0"`
	History     []time.Time `gorm:"serializer:json;type:text"`
}
