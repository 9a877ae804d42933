// Package events publishes job and campaign outcomes for downstream
// consumers (reporting, webhooks).
package events

import (
	"context"
	"sync"
	"time"
)

const (
	JobSent          = "job.sent"
	JobFailed        = "job.failed"
	JobDeliveryError = "job.delivery_error"
	CampaignReady    = "campaign.ready"
	CampaignFailed   = "campaign.failed"
	RuleFired        = "rule.fired"
)

type Event struct {
	Type       string    `json:"type"`
	Owner      string    `json:"owner"`
	JobID      string    `json:"job_id,omitempty"`
	CampaignID string    `json:"campaign_id,omitempty"`
	RuleID     string    `json:"rule_id,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(typ string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
