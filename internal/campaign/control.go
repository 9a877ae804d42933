package campaign

import (
	"context"
	"errors"
	"fmt"

	"waflow/internal/apperr"
	"waflow/internal/jobs"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

func (s *Service) load(ctx context.Context, db *gorm.DB, owner, id string) (*Campaign, error) {
	var c Campaign
	err := db.WithContext(ctx).Where("id = ? AND owner = ?", id, owner).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("campaign", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) Get(ctx context.Context, owner, id string) (*Campaign, error) {
	return s.load(ctx, s.cfg.DB, owner, id)
}

// List returns the owner's campaigns, newest first. Campaigns still
// resolving recipients are left out.
func (s *Service) List(ctx context.Context, owner string) ([]Campaign, error) {
	var out []Campaign
	err := s.cfg.DB.WithContext(ctx).
		Where("owner = ? AND status <> ?", owner, StatusCreated).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// Pause holds every pending job of the campaign.
func (s *Service) Pause(ctx context.Context, owner, id string) (*Campaign, error) {
	var c *Campaign
	err := s.cfg.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = s.load(ctx, tx, owner, id); err != nil {
			return err
		}
		if c.Status == StatusCreated {
			return apperr.Invalid("status", "campaign is still being prepared")
		}
		n, err := s.jobs.WithTx(tx).PauseGroup(ctx, jobs.KindCampaign, id, s.cfg.Now())
		if err != nil {
			return err
		}
		if c.Status == StatusActive {
			c.Status = StatusPaused
			if err := tx.Model(c).Update("status", StatusPaused).Error; err != nil {
				return err
			}
		}
		log.Info().Str("owner", owner).Str("campaign", id).Int64("jobs", n).Msg("campaign paused")
		return nil
	})
	return c, err
}

// Resume releases paused jobs, each shifted by how long it was held.
func (s *Service) Resume(ctx context.Context, owner, id string) (*Campaign, error) {
	var c *Campaign
	err := s.cfg.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = s.load(ctx, tx, owner, id); err != nil {
			return err
		}
		n, err := s.jobs.WithTx(tx).ResumeGroup(ctx, jobs.KindCampaign, id, s.cfg.Now())
		if err != nil {
			return err
		}
		if c.Status == StatusPaused {
			c.Status = StatusActive
			if err := tx.Model(c).Update("status", StatusActive).Error; err != nil {
				return err
			}
		}
		log.Info().Str("owner", owner).Str("campaign", id).Int64("jobs", n).Msg("campaign resumed")
		return nil
	})
	return c, err
}

// Delete removes the campaign and all of its jobs. A job already handed to
// the worker may still go out.
func (s *Service) Delete(ctx context.Context, owner, id string) error {
	return s.cfg.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.load(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		n, err := s.jobs.WithTx(tx).DeleteGroup(ctx, jobs.KindCampaign, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(c).Error; err != nil {
			return fmt.Errorf("delete campaign: %w", err)
		}
		log.Info().Str("owner", owner).Str("campaign", id).Int64("jobs", n).Msg("campaign deleted")
		return nil
	})
}

// Report counts the campaign's jobs by status and completes an active
// campaign that has nothing left to send.
func (s *Service) Report(ctx context.Context, owner, id string) (*Report, error) {
	c, err := s.load(ctx, s.cfg.DB, owner, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.jobs.CountByStatus(ctx, jobs.KindCampaign, id)
	if err != nil {
		return nil, err
	}
	r := &Report{
		Campaign: c,
		Pending:  counts[jobs.StatusPending],
		Paused:   counts[jobs.StatusPaused],
		Sent:     counts[jobs.StatusSent],
		Failed:   counts[jobs.StatusFailed],
	}
	if c.Status == StatusActive && r.Pending == 0 && r.Paused == 0 && r.Sent+r.Failed > 0 {
		if err := s.cfg.DB.WithContext(ctx).Model(c).Update("status", StatusCompleted).Error; err != nil {
			return nil, err
		}
		c.Status = StatusCompleted
	}
	return r, nil
}
