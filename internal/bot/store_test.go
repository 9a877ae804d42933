package bot_test

import (
	"context"
	"testing"
	"time"

	"waflow/internal/apperr"
	"waflow/internal/bot"
	"waflow/internal/db/dbtest"
	"waflow/internal/jobs"
	"waflow/internal/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *bot.Store {
	gdb := dbtest.Open(t, &bot.Rule{}, &bot.FireRecord{}, &jobs.Job{})
	return &bot.Store{DB: gdb}
}

func greeting(owner string) *bot.Rule {
	return &bot.Rule{
		Owner:    owner,
		Name:     "greeting",
		Trigger:  "hello",
		Response: message.Payload{Text: "Hi {{name}}"},
		Active:   true,
	}
}

func TestStoreCreateAppliesDefaults(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	r := greeting("5511")
	require.NoError(t, s.Create(ctx, r))
	assert.NotEmpty(t, r.ID)

	got, err := s.Get(ctx, "5511", r.ID)
	require.NoError(t, err)
	assert.Equal(t, bot.AudienceAll, got.Audience)
	assert.Equal(t, bot.SubstringIgnoreCase, got.MatchMode)
	assert.Equal(t, "Hi {{name}}", got.Response.Text)
	assert.True(t, got.Active)
}

func TestStoreRejectsInvalidRules(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	r := greeting("5511")
	r.CooldownSeconds = -1
	assert.True(t, apperr.IsValidation(s.Create(ctx, r)))

	r = greeting("5511")
	r.MatchMode = "FUZZY"
	assert.True(t, apperr.IsValidation(s.Create(ctx, r)))

	r = greeting("5511")
	r.Response = message.Payload{}
	assert.True(t, apperr.IsValidation(s.Create(ctx, r)))

	r = greeting("5511")
	r.WindowStart = "25:00"
	assert.True(t, apperr.IsValidation(s.Create(ctx, r)))

	r = greeting("")
	assert.True(t, apperr.IsValidation(s.Create(ctx, r)))
}

func TestStoreIsOwnerScoped(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	r := greeting("5511")
	require.NoError(t, s.Create(ctx, r))

	_, err := s.Get(ctx, "3519", r.ID)
	assert.True(t, apperr.IsNotFound(err))
	assert.True(t, apperr.IsNotFound(s.SetActive(ctx, "3519", r.ID, false)))
	assert.True(t, apperr.IsNotFound(s.Delete(ctx, "3519", r.ID)))

	list, err := s.List(ctx, "3519")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStoreSetActiveAndUpdate(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	r := greeting("5511")
	require.NoError(t, s.Create(ctx, r))

	require.NoError(t, s.SetActive(ctx, "5511", r.ID, false))
	active, err := s.Active(ctx, "5511")
	require.NoError(t, err)
	assert.Empty(t, active)

	r.Trigger = "hi"
	r.Active = true
	r.CooldownSeconds = 60
	require.NoError(t, s.Update(ctx, r))

	got, err := s.Get(ctx, "5511", r.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Trigger)
	assert.Equal(t, 60, got.CooldownSeconds)
	assert.True(t, got.Active)

	missing := greeting("5511")
	missing.ID = "nope"
	assert.True(t, apperr.IsNotFound(s.Update(ctx, missing)))
}

func TestRecordFireAccumulatesHistory(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec, err := s.LastFire(ctx, "rule-1", "r1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, s.RecordFire(ctx, "rule-1", "r1", t0))
	require.NoError(t, s.RecordFire(ctx, "rule-1", "r1", t0.Add(time.Minute)))
	require.NoError(t, s.RecordFire(ctx, "rule-1", "r2", t0))

	rec, err = s.LastFire(ctx, "rule-1", "r1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.FireCount)
	assert.True(t, rec.LastFiredAt.Equal(t0.Add(time.Minute)))
	require.Len(t, rec.History, 2)
	assert.True(t, rec.History[0].Equal(t0))
}

func TestDeleteDropsFireHistory(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	r := greeting("5511")
	require.NoError(t, s.Create(ctx, r))
	require.NoError(t, s.RecordFire(ctx, r.ID, "r1", t0))

	require.NoError(t, s.Delete(ctx, "5511", r.ID))

	rec, err := s.LastFire(ctx, r.ID, "r1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDeleteDropsPendingNurtureChains(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	repo := &jobs.Repo{DB: s.DB}

	r := greeting("5511")
	other := greeting("5511")
	require.NoError(t, s.Create(ctx, r))
	require.NoError(t, s.Create(ctx, other))

	step := func(ruleID string) jobs.Job {
		return jobs.Job{
			Owner: "5511", Recipient: "r1", ScheduledAt: t0,
			Payload:   message.Payload{Text: "follow up"},
			GroupKind: jobs.KindNurture, GroupKey: ruleID + ":chain-1",
		}
	}
	pending, sent, kept := step(r.ID), step(r.ID), step(other.ID)
	sent.Status = jobs.StatusSent
	require.NoError(t, repo.Create(ctx, []jobs.Job{pending, sent, kept}))
	all, err := repo.ListGroup(ctx, jobs.KindNurture, r.ID+":chain-1")
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, s.Delete(ctx, "5511", r.ID))

	left, err := repo.ListGroup(ctx, jobs.KindNurture, r.ID+":chain-1")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, jobs.StatusSent, left[0].Status)

	untouched, err := repo.ListGroup(ctx, jobs.KindNurture, other.ID+":chain-1")
	require.NoError(t, err)
	assert.Len(t, untouched, 1)
}

func TestImportIsAllOrNothing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	bad := []bot.Rule{*greeting(""), {Name: "broken", CooldownSeconds: -5, Response: message.Payload{Text: "x"}}}
	err := s.Import(ctx, "5511", bad)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))

	list, err := s.List(ctx, "5511")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.Import(ctx, "5511", []bot.Rule{*greeting(""), *greeting("")}))
	list, err = s.List(ctx, "5511")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
