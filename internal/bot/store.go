package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"waflow/internal/apperr"
	"waflow/internal/jobs"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	DB *gorm.DB
}

func (s *Store) Create(ctx context.Context, r *Rule) error {
	if r.Owner == "" {
		return apperr.Invalid("owner", "required")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := s.DB.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// Import creates every rule or none.
func (s *Store) Import(ctx context.Context, owner string, rules []Rule) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txs := &Store{DB: tx}
		for i := range rules {
			rules[i].Owner = owner
			if err := txs.Create(ctx, &rules[i]); err != nil {
				return fmt.Errorf("rule %d (%s): %w", i+1, rules[i].Name, err)
			}
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, owner, id string) (*Rule, error) {
	var r Rule
	err := s.DB.WithContext(ctx).Where("id = ? AND owner = ?", id, owner).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("rule", id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) List(ctx context.Context, owner string) ([]Rule, error) {
	var out []Rule
	err := s.DB.WithContext(ctx).Where("owner = ?", owner).Order("created_at asc").Find(&out).Error
	return out, err
}

// Active returns the owner's enabled rules in creation order.
func (s *Store) Active(ctx context.Context, owner string) ([]Rule, error) {
	var out []Rule
	err := s.DB.WithContext(ctx).
		Where("owner = ? AND active = ?", owner, true).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// Update replaces an existing rule's settings.
func (s *Store) Update(ctx context.Context, r *Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	existing, err := s.Get(ctx, r.Owner, r.ID)
	if err != nil {
		return err
	}
	r.CreatedAt = existing.CreatedAt
	return s.DB.WithContext(ctx).Save(r).Error
}

func (s *Store) SetActive(ctx context.Context, owner, id string, active bool) error {
	res := s.DB.WithContext(ctx).Model(&Rule{}).
		Where("id = ? AND owner = ?", id, owner).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("rule", id)
	}
	return nil
}

// Delete removes the rule, its fire history and the nurturing steps it
// scheduled that have not gone out yet.
func (s *Store) Delete(ctx context.Context, owner, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND owner = ?", id, owner).Delete(&Rule{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("rule", id)
		}
		if err := tx.Where("rule_id = ?", id).Delete(&FireRecord{}).Error; err != nil {
			return err
		}
		_, err := (&jobs.Repo{DB: tx}).DeleteGroupPrefix(ctx, jobs.KindNurture, id+":")
		return err
	})
}

// LastFire returns nil when the rule never fired for recipient.
func (s *Store) LastFire(ctx context.Context, ruleID, recipient string) (*FireRecord, error) {
	var rec FireRecord
	err := s.DB.WithContext(ctx).Where("rule_id = ? AND recipient = ?", ruleID, recipient).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordFire creates or advances the fire record for (rule, recipient).
func (s *Store) RecordFire(ctx context.Context, ruleID, recipient string, at time.Time) error {
	at = at.UTC()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := FireRecord{RuleID: ruleID, Recipient: recipient, LastFiredAt: at, FireCount: 1, History: []time.Time{at}}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return nil
		}

		rec = FireRecord{}
		if err := tx.Where("rule_id = ? AND recipient = ?", ruleID, recipient).First(&rec).Error; err != nil {
			return err
		}
		rec.History = append(rec.History, at)
		if len(rec.History) > maxHistory {
			rec.History = rec.History[len(rec.History)-maxHistory:]
		}
		if at.After(rec.LastFiredAt) {
			rec.LastFiredAt = at
		}
		rec.FireCount++
		return tx.Model(&FireRecord{RuleID: ruleID, Recipient: recipient}).
			Select("last_fired_at", "fire_count", "history").
			Updates(&rec).Error
	})
}
