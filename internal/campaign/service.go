package campaign

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"waflow/internal/apperr"
	"waflow/internal/events"
	"waflow/internal/jobs"
	"waflow/internal/message"
	"waflow/internal/metrics"
	"waflow/internal/pacing"
	"waflow/internal/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Config struct {
	DB       *gorm.DB
	Sessions *session.Registry
	Events   events.Publisher
	Metrics  *metrics.Collector

	// Location is the zone the daily window is evaluated in.
	Location *time.Location
	// NumberColumn is the row column holding the phone number.
	NumberColumn string

	Now     func() time.Time
	NewRand func() *rand.Rand
}

// Service turns campaign requests into paced jobs and controls campaigns
// afterwards.
type Service struct {
	cfg  Config
	jobs *jobs.Repo

	expanding sync.WaitGroup
}

func NewService(cfg Config) *Service {
	if cfg.Events == nil {
		cfg.Events = events.Noop{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.NumberColumn == "" {
		cfg.NumberColumn = "number"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRand == nil {
		cfg.NewRand = func() *rand.Rand { return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) }
	}
	return &Service{cfg: cfg, jobs: &jobs.Repo{DB: cfg.DB}}
}

type plan struct {
	pacing    pacing.Pacing
	startDate time.Time
	startTime *time.Duration
}

func (s *Service) validate(req Request) (plan, error) {
	var p plan
	if strings.TrimSpace(req.Owner) == "" {
		return p, apperr.Invalid("owner", "required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return p, apperr.Invalid("name", "required")
	}
	if msg := req.Payload.Validate(); msg != "" {
		return p, apperr.Invalid("payload", msg)
	}
	if req.Recipients.kind() == "" {
		return p, apperr.Invalid("recipients", "exactly one of numbers, rows, group_id or label_id is required")
	}

	window, err := pacing.ParseWindow(req.StartTime, req.EndTime)
	if err != nil {
		return p, apperr.Invalid("start_time/end_time", err.Error())
	}
	p.pacing = pacing.Pacing{
		MinDelay:   time.Duration(req.MinDelay) * time.Second,
		MaxDelay:   time.Duration(req.MaxDelay) * time.Second,
		BatchSize:  req.BatchSize,
		BatchDelay: time.Duration(req.BatchDelay) * time.Second,
		Window:     window,
	}
	if err := p.pacing.Validate(); err != nil {
		return p, apperr.Invalid("pacing", err.Error())
	}

	if req.StartDate != "" {
		d, err := time.ParseInLocation("2006-01-02", req.StartDate, s.cfg.Location)
		if err != nil {
			return p, apperr.Invalid("start_date", "expected YYYY-MM-DD")
		}
		p.startDate = d
	}
	if strings.TrimSpace(req.StartTime) != "" {
		st := window.Start
		p.startTime = &st
	}
	return p, nil
}

// reserve stores the campaign as CREATED, which claims its name.
func (s *Service) reserve(ctx context.Context, req Request) (*Campaign, error) {
	var n int64
	if err := s.cfg.DB.WithContext(ctx).Model(&Campaign{}).
		Where("owner = ? AND name = ?", req.Owner, req.Name).
		Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, &apperr.DuplicateNameError{Name: req.Name}
	}

	c := &Campaign{
		ID:           uuid.NewString(),
		Owner:        req.Owner,
		Name:         req.Name,
		Description:  req.Description,
		Status:       StatusCreated,
		Payload:      req.Payload,
		MinDelay:     req.MinDelay,
		MaxDelay:     req.MaxDelay,
		BatchSize:    req.BatchSize,
		BatchDelay:   req.BatchDelay,
		StartDate:    req.StartDate,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		RandomSuffix: req.RandomSuffix,
	}
	if err := s.cfg.DB.WithContext(ctx).Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &apperr.DuplicateNameError{Name: req.Name}
		}
		return nil, fmt.Errorf("insert campaign: %w", err)
	}
	return c, nil
}

// Submit validates and reserves the campaign, then resolves recipients and
// writes jobs in the background. Resolution failures mark the campaign
// FAILED instead of surfacing here.
func (s *Service) Submit(ctx context.Context, req Request) (*Campaign, error) {
	p, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	c, err := s.reserve(ctx, req)
	if err != nil {
		return nil, err
	}

	bgc := *c
	s.expanding.Add(1)
	go func() {
		defer s.expanding.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Minute)
		defer cancel()
		if _, err := s.expand(bg, &bgc, req, p); err != nil {
			log.Warn().Err(err).Str("campaign", c.ID).Msg("campaign expansion failed")
		}
	}()
	return c, nil
}

// Schedule is Submit without the background step: it returns once jobs are
// written or the campaign has been marked FAILED.
func (s *Service) Schedule(ctx context.Context, req Request) (*Campaign, error) {
	p, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	c, err := s.reserve(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.expand(ctx, c, req, p)
}

// Wait blocks until background expansions have finished.
func (s *Service) Wait() {
	s.expanding.Wait()
}

func (s *Service) expand(ctx context.Context, c *Campaign, req Request, p plan) (*Campaign, error) {
	recipients, err := s.resolve(ctx, req.Owner, req.Recipients)
	if err != nil {
		s.markFailed(ctx, c, err)
		return c, err
	}

	rng := s.cfg.NewRand()
	now := s.cfg.Now().In(s.cfg.Location)
	seq := pacing.NewSequencer(p.pacing, p.pacing.Begin(now, p.startDate, p.startTime), rng)

	batch := make([]jobs.Job, 0, len(recipients))
	ids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		payload := req.Payload.Clone()
		if r.vars != nil {
			payload = message.RenderPayload(payload, r.vars)
		}
		if req.RandomSuffix {
			payload = message.WithRandomSuffix(payload, rng)
		}
		j := jobs.Job{
			ID:          uuid.NewString(),
			Owner:       req.Owner,
			Recipient:   r.address,
			Payload:     payload,
			ScheduledAt: seq.Next(),
			GroupKind:   jobs.KindCampaign,
			GroupKey:    c.ID,
		}
		batch = append(batch, j)
		ids = append(ids, j.ID)
	}

	err = s.cfg.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.jobs.WithTx(tx).Create(ctx, batch); err != nil {
			return err
		}
		// a campaign deleted while resolving leaves nothing to activate
		res := tx.Model(&Campaign{ID: c.ID}).
			Where("status = ?", StatusCreated).
			Select("status", "job_ids", "recipient_count").
			Updates(&Campaign{Status: StatusActive, JobIDs: ids, RecipientCount: len(ids)})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("campaign", c.ID)
		}
		return nil
	})
	if err != nil {
		return c, fmt.Errorf("persist campaign %s: %w", c.ID, err)
	}

	c.Status = StatusActive
	c.JobIDs = ids
	c.RecipientCount = len(ids)
	s.cfg.Metrics.JobsScheduled.WithLabelValues(string(jobs.KindCampaign)).Add(float64(len(ids)))
	s.publish(ctx, events.Event{Type: events.CampaignReady, Owner: c.Owner, CampaignID: c.ID, Detail: fmt.Sprintf("%d jobs", len(ids))})
	log.Info().Str("owner", c.Owner).Str("campaign", c.ID).Int("jobs", len(ids)).Msg("campaign scheduled")
	return c, nil
}

func (s *Service) markFailed(ctx context.Context, c *Campaign, cause error) {
	reason := cause.Error()
	err := s.cfg.DB.WithContext(ctx).Model(&Campaign{}).
		Where("id = ? AND status = ?", c.ID, StatusCreated).
		Updates(map[string]any{"status": StatusFailed, "failure_reason": reason}).Error
	if err != nil {
		log.Error().Err(err).Str("campaign", c.ID).Msg("mark campaign failed")
		return
	}
	c.Status = StatusFailed
	c.FailureReason = &reason
	s.publish(ctx, events.Event{Type: events.CampaignFailed, Owner: c.Owner, CampaignID: c.ID, Detail: reason})
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if e.At.IsZero() {
		e.At = s.cfg.Now().UTC()
	}
	if err := s.cfg.Events.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("type", e.Type).Msg("publish event")
	}
}
