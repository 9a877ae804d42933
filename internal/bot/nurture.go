package bot

import (
	"context"
	"fmt"
	"time"

	"waflow/internal/jobs"
	"waflow/internal/message"
	"waflow/internal/metrics"
	"waflow/internal/pacing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Nurturer turns a rule's follow-up steps into standalone jobs.
type Nurturer struct {
	Jobs     *jobs.Repo
	Metrics  *metrics.Collector
	Location *time.Location
	Now      func() time.Time
}

// Schedule creates one job per nurturing step and returns the chain id the
// jobs are grouped under. Each step is timed from the moment of the call by
// its own After offset and pushed into its own window.
func (n *Nurturer) Schedule(ctx context.Context, r *Rule, recipient, contactName string) (string, error) {
	if len(r.Nurturing) == 0 {
		return "", nil
	}
	loc := n.Location
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}

	chain := uuid.NewString()
	start := now().In(loc)
	vars := map[string]string{"name": contactName}
	batch := make([]jobs.Job, 0, len(r.Nurturing))
	for i, step := range r.Nurturing {
		w, err := pacing.ParseWindow(step.WindowStart, step.WindowEnd)
		if err != nil {
			return "", fmt.Errorf("nurturing step %d: %w", i+1, err)
		}
		p := pacing.Pacing{Window: w}
		_, at := p.Next(p.Begin(start, time.Time{}, nil), time.Duration(step.After)*time.Second)
		batch = append(batch, jobs.Job{
			Owner:       r.Owner,
			Recipient:   recipient,
			Payload:     message.Payload{Text: message.Render(step.Message, vars)},
			ScheduledAt: at,
			GroupKind:   jobs.KindNurture,
			GroupKey:    r.ID + ":" + chain,
		})
	}
	if err := n.Jobs.Create(ctx, batch); err != nil {
		return "", err
	}
	if n.Metrics != nil {
		n.Metrics.JobsScheduled.WithLabelValues(string(jobs.KindNurture)).Add(float64(len(batch)))
	}
	log.Info().Str("rule_id", r.ID).Str("chain", chain).Str("recipient", recipient).
		Int("steps", len(batch)).Msg("nurturing scheduled")
	return chain, nil
}
