package jobs

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"waflow/internal/apperr"
	"waflow/internal/billing"
	"waflow/internal/events"
	"waflow/internal/lock"
	"waflow/internal/metrics"
	"waflow/internal/session"

	"github.com/rs/zerolog/log"
)

const tickLockKey = "waflow:delivery-tick"

type WorkerConfig struct {
	Repo     *Repo
	Sessions *session.Registry
	Billing  billing.Billing

	Events  events.Publisher
	Metrics *metrics.Collector
	// Locker coordinates ticks across replicas; defaults to in-process.
	Locker lock.Locker

	Interval time.Duration
	Batch    int

	// TrialTrailer is appended to the text of jobs sent by trial accounts.
	// ContactTrailer is sent after the contact cards instead when the job
	// shares contacts.
	TrialTrailer   string
	ContactTrailer string

	Now func() time.Time
}

// Worker delivers due jobs. A job is marked SENT before anything is sent
// and is never retried: delivery is at most once.
type Worker struct {
	cfg WorkerConfig

	running  sync.Mutex
	inflight sync.WaitGroup
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Locker == nil {
		cfg.Locker = lock.NewLocal()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 200
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Worker{cfg: cfg}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", w.cfg.Interval).Msg("delivery worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("delivery worker stopping")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Wait blocks until dispatches started by earlier ticks have finished.
func (w *Worker) Wait() {
	w.inflight.Wait()
}

// Tick claims up to Batch jobs due now and hands each to its own dispatch
// goroutine. Overlapping ticks are skipped.
func (w *Worker) Tick(ctx context.Context) {
	if !w.running.TryLock() {
		w.cfg.Metrics.TicksSkipped.Inc()
		return
	}
	defer w.running.Unlock()

	ttl := 10 * w.cfg.Interval
	if ttl < 10*time.Second {
		ttl = 10 * time.Second
	}
	release, ok, err := w.cfg.Locker.TryLock(ctx, tickLockKey, ttl)
	if err != nil {
		log.Warn().Err(err).Msg("tick lock unavailable")
		return
	}
	if !ok {
		w.cfg.Metrics.TicksSkipped.Inc()
		return
	}
	defer release()

	started := time.Now()
	defer func() { w.cfg.Metrics.TickDuration.Observe(time.Since(started).Seconds()) }()
	w.cfg.Metrics.Ticks.Inc()

	now := w.cfg.Now()
	standings := map[string]billing.Standing{}
	held := map[string]bool{}
	budget := w.cfg.Batch
	for budget > 0 {
		due, err := w.cfg.Repo.Due(ctx, now, budget, slices.Sorted(maps.Keys(held))...)
		if err != nil {
			log.Error().Err(err).Msg("load due jobs")
			return
		}
		if len(due) == 0 {
			return
		}
		used, err := w.claim(ctx, due, standings, held)
		if err != nil {
			return
		}
		budget -= used
	}
}

// claim fails or dispatches each job of one page of due jobs and reports
// how many it consumed. Owners whose jobs must wait (session not ready or
// standing unknown) go into held so the next page skips their backlog.
func (w *Worker) claim(ctx context.Context, due []Job, standings map[string]billing.Standing, held map[string]bool) (int, error) {
	used := 0
	for _, job := range due {
		if held[job.Owner] {
			continue
		}
		st, known := standings[job.Owner]
		if !known {
			var err error
			st, err = billing.StandingOf(ctx, w.cfg.Billing, job.Owner)
			if err != nil {
				log.Warn().Err(err).Str("owner", job.Owner).Msg("billing check failed")
				held[job.Owner] = true
				continue
			}
			standings[job.Owner] = st
		}

		if !st.CanSend() {
			if err := w.fail(ctx, job, "subscription inactive"); err != nil {
				return used, err
			}
			used++
			continue
		}

		sess, ready := w.cfg.Sessions.Ready(job.Owner)
		if !ready {
			log.Debug().Str("owner", job.Owner).Msg("session not ready, jobs stay pending")
			held[job.Owner] = true
			continue
		}

		claimed, err := w.cfg.Repo.MarkSent(ctx, job.ID)
		if err != nil {
			log.Error().Err(err).Str("job", job.ID).Msg("mark sent")
			return used, err
		}
		if !claimed {
			continue
		}
		used++

		w.cfg.Metrics.JobsSent.Inc()
		w.publish(ctx, events.Event{Type: events.JobSent, Owner: job.Owner, JobID: job.ID, Recipient: job.Recipient})

		w.inflight.Add(1)
		go func(job Job, st billing.Standing) {
			defer w.inflight.Done()
			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
			defer cancel()
			w.dispatch(dctx, sess, job, st)
		}(job, st)
	}
	return used, nil
}

func (w *Worker) fail(ctx context.Context, job Job, reason string) error {
	ok, err := w.cfg.Repo.MarkFailed(ctx, job.ID, reason)
	if err != nil {
		log.Error().Err(err).Str("job", job.ID).Msg("mark failed")
		return err
	}
	if !ok {
		return nil
	}
	log.Info().Str("owner", job.Owner).Str("job", job.ID).Str("reason", reason).Msg("job failed")
	w.cfg.Metrics.JobsFailed.WithLabelValues("subscription").Inc()
	w.publish(ctx, events.Event{Type: events.JobFailed, Owner: job.Owner, JobID: job.ID, Recipient: job.Recipient, Detail: reason})
	return nil
}

// dispatch sends the parts of one job in order: text, attachments, contact
// cards, polls. A failed part is reported and the rest still go out.
func (w *Worker) dispatch(ctx context.Context, s session.Session, job Job, st billing.Standing) {
	p := job.Payload
	trial := st == billing.Trial
	to := job.Recipient

	text := p.Text
	if trial && len(p.Contacts) == 0 && w.cfg.TrialTrailer != "" {
		if text == "" {
			text = strings.TrimSpace(w.cfg.TrialTrailer)
		} else {
			text += w.cfg.TrialTrailer
		}
	}
	if text != "" {
		w.report(ctx, job, "text", s.SendText(ctx, to, text))
	}

	for _, a := range p.Attachments {
		w.report(ctx, job, "attachment", s.SendMedia(ctx, to, a))
	}

	for _, c := range p.Contacts {
		w.report(ctx, job, "contact", s.SendContactCard(ctx, to, c))
	}
	if trial && len(p.Contacts) > 0 && w.cfg.ContactTrailer != "" {
		w.report(ctx, job, "text", s.SendText(ctx, to, w.cfg.ContactTrailer))
	}

	for _, pl := range p.Polls {
		w.report(ctx, job, "poll", s.SendPoll(ctx, to, pl))
	}
}

func (w *Worker) report(ctx context.Context, job Job, part string, err error) {
	if err == nil {
		return
	}
	derr := &apperr.DeliveryError{JobID: job.ID, Part: part, Err: err}
	log.Error().Err(derr).Str("owner", job.Owner).Str("recipient", job.Recipient).Msg("delivery error")
	w.cfg.Metrics.DeliveryErrors.WithLabelValues(part).Inc()
	if nerr := w.cfg.Repo.NoteError(ctx, job.ID, derr.Error()); nerr != nil {
		log.Warn().Err(nerr).Str("job", job.ID).Msg("record delivery error")
	}
	w.publish(ctx, events.Event{Type: events.JobDeliveryError, Owner: job.Owner, JobID: job.ID, Recipient: job.Recipient, Detail: derr.Error()})
}

func (w *Worker) publish(ctx context.Context, e events.Event) {
	if e.At.IsZero() {
		e.At = w.cfg.Now().UTC()
	}
	if err := w.cfg.Events.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("type", e.Type).Msg("publish event")
	}
}
