package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"waflow/internal/billing"
	"waflow/internal/events"
	"waflow/internal/jobs"
	"waflow/internal/message"
	"waflow/internal/metrics"
	"waflow/internal/pacing"

	"github.com/rs/zerolog/log"
)

type EngineConfig struct {
	Store   *Store
	Jobs    *jobs.Repo
	Billing billing.Billing
	Nurture *Nurturer

	Events  events.Publisher
	Metrics *metrics.Collector

	// Location is where rule windows are evaluated.
	Location *time.Location
	Now      func() time.Time
	// Sleep waits out the response delay; it returns early with the
	// context's error.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Inbound is one message received by an owner's session.
type Inbound struct {
	Sender      string
	Chat        string
	Body        string
	SenderSaved bool
	IsGroup     bool
	SenderName  string
}

// replyTo is the address responses go to: the group for group messages,
// the sender otherwise.
func (in Inbound) replyTo() string {
	if in.Chat != "" {
		return in.Chat
	}
	return in.Sender
}

type Engine struct {
	cfg      EngineConfig
	inflight sync.WaitGroup
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	if cfg.Nurture == nil {
		cfg.Nurture = &Nurturer{Jobs: cfg.Jobs, Metrics: cfg.Metrics, Location: cfg.Location, Now: cfg.Now}
	}
	return &Engine{cfg: cfg}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// HandleInbound evaluates the owner's active rules against one message and
// starts a fire for each rule that matches. It returns how many fired.
//
// The cooldown is checked here but recorded only after the response delay,
// so two messages arriving within that delay can both fire.
func (e *Engine) HandleInbound(ctx context.Context, owner string, in Inbound) (int, error) {
	standing, err := billing.StandingOf(ctx, e.cfg.Billing, owner)
	if err != nil {
		return 0, err
	}
	if !standing.CanSend() {
		log.Debug().Str("owner", owner).Msg("inbound ignored: subscription inactive")
		return 0, nil
	}

	rules, err := e.cfg.Store.Active(ctx, owner)
	if err != nil {
		return 0, err
	}

	now := e.cfg.Now()
	to := in.replyTo()
	fired := 0
	for i := range rules {
		r := &rules[i]
		if !audienceAllows(r.Audience, in.SenderSaved) {
			continue
		}
		w, err := pacing.ParseWindow(r.WindowStart, r.WindowEnd)
		if err != nil || !w.Contains(now.In(e.cfg.Location)) {
			continue
		}
		if in.IsGroup && !r.GroupReply {
			continue
		}
		if r.CooldownSeconds > 0 {
			last, err := e.cfg.Store.LastFire(ctx, r.ID, to)
			if err != nil {
				return fired, err
			}
			if last != nil && now.Sub(last.LastFiredAt) <= time.Duration(r.CooldownSeconds)*time.Second {
				continue
			}
		}
		if !Matches(r.MatchMode, r.Trigger, in.Body) {
			continue
		}

		fired++
		e.inflight.Add(1)
		go func(r Rule) {
			defer e.inflight.Done()
			e.fire(ctx, r, in)
		}(*r)
	}
	return fired, nil
}

func (e *Engine) fire(ctx context.Context, r Rule, in Inbound) {
	logger := log.With().Str("rule_id", r.ID).Str("owner", r.Owner).Str("chat", in.replyTo()).Logger()

	if err := e.cfg.Sleep(ctx, time.Duration(r.ResponseDelaySeconds)*time.Second); err != nil {
		logger.Warn().Err(err).Msg("rule fire abandoned")
		return
	}
	now := e.cfg.Now()
	to := in.replyTo()
	if err := e.cfg.Store.RecordFire(ctx, r.ID, to, now); err != nil {
		logger.Error().Err(err).Msg("record fire failed")
		return
	}

	vars := map[string]string{"name": in.SenderName}
	reply := jobs.Job{
		Owner:       r.Owner,
		Recipient:   to,
		Payload:     message.RenderPayload(r.Response, vars),
		ScheduledAt: now,
		GroupKind:   jobs.KindBot,
		GroupKey:    r.ID,
	}
	if err := e.cfg.Jobs.Enqueue(ctx, &reply); err != nil {
		logger.Error().Err(err).Msg("enqueue reply failed")
		return
	}
	e.cfg.Metrics.JobsScheduled.WithLabelValues(string(jobs.KindBot)).Inc()

	if r.Forward != nil && strings.TrimSpace(r.Forward.Number) != "" {
		fwd := jobs.Job{
			Owner:     r.Owner,
			Recipient: strings.TrimSpace(r.Forward.Number),
			Payload: message.Payload{
				Text:     message.Render(r.Forward.Message, vars),
				Contacts: []message.ContactCard{message.SenderCard(in.SenderName, in.Sender)},
			},
			ScheduledAt: now,
			GroupKind:   jobs.KindForward,
			GroupKey:    r.ID,
		}
		if err := e.cfg.Jobs.Enqueue(ctx, &fwd); err != nil {
			logger.Error().Err(err).Msg("enqueue forward failed")
		} else {
			e.cfg.Metrics.JobsScheduled.WithLabelValues(string(jobs.KindForward)).Inc()
		}
	}

	if len(r.Nurturing) > 0 {
		if _, err := e.cfg.Nurture.Schedule(ctx, &r, to, in.SenderName); err != nil {
			logger.Error().Err(err).Msg("schedule nurturing failed")
		}
	}

	e.cfg.Metrics.RuleFires.Inc()
	if err := e.cfg.Events.Publish(ctx, events.Event{
		Type:      events.RuleFired,
		Owner:     r.Owner,
		RuleID:    r.ID,
		JobID:     reply.ID,
		Recipient: to,
		At:        now,
	}); err != nil {
		logger.Warn().Err(err).Msg("publish event failed")
	}
	logger.Info().Str("job_id", reply.ID).Msg("rule fired")
}

func audienceAllows(a Audience, saved bool) bool {
	switch a {
	case AudienceSaved:
		return saved
	case AudienceNonSaved:
		return !saved
	default:
		return true
	}
}

// Wait blocks until every started fire has finished.
func (e *Engine) Wait() {
	e.inflight.Wait()
}
