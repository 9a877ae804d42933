package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repo is the durable job store. Every status transition is a conditional
// single-row update, which is what keeps concurrent ticks from dispatching
// a job twice.
type Repo struct {
	DB *gorm.DB
}

// WithTx returns a Repo bound to an open transaction.
func (r *Repo) WithTx(tx *gorm.DB) *Repo {
	return &Repo{DB: tx}
}

func prepare(j *Job) error {
	if j.Owner == "" || j.Recipient == "" {
		return errors.New("job owner and recipient are required")
	}
	if j.GroupKind == "" || j.GroupKey == "" {
		return errors.New("job group is required")
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	j.ScheduledAt = j.ScheduledAt.UTC()
	return nil
}

// Create inserts jobs as given; callers wanting atomicity with other writes
// pass a transaction-bound Repo.
func (r *Repo) Create(ctx context.Context, batch []Job) error {
	if len(batch) == 0 {
		return nil
	}
	for i := range batch {
		if err := prepare(&batch[i]); err != nil {
			return err
		}
	}
	if err := r.DB.WithContext(ctx).CreateInBatches(batch, 200).Error; err != nil {
		return fmt.Errorf("insert jobs: %w", err)
	}
	return nil
}

func (r *Repo) Enqueue(ctx context.Context, j *Job) error {
	if err := prepare(j); err != nil {
		return err
	}
	if err := r.DB.WithContext(ctx).Create(j).Error; err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Due lists PENDING jobs whose instant has passed, oldest first, leaving
// out the jobs of the owners in skip.
func (r *Repo) Due(ctx context.Context, now time.Time, limit int, skip ...string) ([]Job, error) {
	var out []Job
	q := r.DB.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", StatusPending, now.UTC())
	if len(skip) > 0 {
		q = q.Where("owner NOT IN ?", skip)
	}
	q = q.Order("scheduled_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkSent claims a PENDING job. It reports false when another worker got
// there first or the job was paused or deleted meanwhile.
func (r *Repo) MarkSent(ctx context.Context, id string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("status", StatusSent)
	return res.RowsAffected == 1, res.Error
}

func (r *Repo) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{"status": StatusFailed, "last_error": reason})
	return res.RowsAffected == 1, res.Error
}

// NoteError records a send failure on an already SENT job without changing
// its status.
func (r *Repo) NoteError(ctx context.Context, id, msg string) error {
	return r.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Update("last_error", msg).Error
}

func (r *Repo) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) ListGroup(ctx context.Context, kind Kind, key string) ([]Job, error) {
	var out []Job
	err := r.DB.WithContext(ctx).
		Where("group_kind = ? AND group_key = ?", kind, key).
		Order("scheduled_at asc").
		Find(&out).Error
	return out, err
}

// PauseGroup moves the group's PENDING jobs to PAUSED and stamps them.
func (r *Repo) PauseGroup(ctx context.Context, kind Kind, key string, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&Job{}).
		Where("group_kind = ? AND group_key = ? AND status = ?", kind, key, StatusPending).
		Updates(map[string]any{"status": StatusPaused, "paused_at": now.UTC()})
	return res.RowsAffected, res.Error
}

// ResumeGroup shifts every PAUSED job of the group forward by the time it
// spent paused and makes it PENDING again.
func (r *Repo) ResumeGroup(ctx context.Context, kind Kind, key string, now time.Time) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var paused []Job
		if err := tx.Where("group_kind = ? AND group_key = ? AND status = ?", kind, key, StatusPaused).
			Find(&paused).Error; err != nil {
			return err
		}
		for _, j := range paused {
			next := j.ScheduledAt
			if j.PausedAt != nil {
				next = j.ScheduledAt.Add(now.Sub(*j.PausedAt))
			}
			res := tx.Model(&Job{}).
				Where("id = ? AND status = ?", j.ID, StatusPaused).
				Updates(map[string]any{"status": StatusPending, "scheduled_at": next.UTC(), "paused_at": nil})
			if res.Error != nil {
				return res.Error
			}
			n += res.RowsAffected
		}
		return nil
	})
	return n, err
}

func (r *Repo) DeleteGroup(ctx context.Context, kind Kind, key string) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("group_kind = ? AND group_key = ?", kind, key).
		Delete(&Job{})
	return res.RowsAffected, res.Error
}

// DeleteGroupPrefix removes every group of a kind whose key starts with
// prefix (nurturing chains of one rule).
func (r *Repo) DeleteGroupPrefix(ctx context.Context, kind Kind, prefix string) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("group_kind = ? AND group_key LIKE ? AND status IN ?", kind, prefix+"%", []Status{StatusPending, StatusPaused}).
		Delete(&Job{})
	return res.RowsAffected, res.Error
}

func (r *Repo) CountByStatus(ctx context.Context, kind Kind, key string) (map[Status]int64, error) {
	var rows []struct {
		Status Status
		N      int64
	}
	err := r.DB.WithContext(ctx).Model(&Job{}).
		Select("status, count(*) as n").
		Where("group_kind = ? AND group_key = ?", kind, key).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[Status]int64{}
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}
