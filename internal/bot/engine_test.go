package bot_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"waflow/internal/billing"
	"waflow/internal/bot"
	"waflow/internal/events"
	"waflow/internal/jobs"
	"waflow/internal/message"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type rig struct {
	store  *bot.Store
	repo   *jobs.Repo
	clock  *clock
	events *events.Recorder
	bill   billing.Static
	sleep  func(ctx context.Context, d time.Duration) error
}

func newRig(t *testing.T) *rig {
	s := newStore(t)
	return &rig{
		store:  s,
		repo:   &jobs.Repo{DB: s.DB},
		clock:  &clock{t: t0},
		events: &events.Recorder{},
		bill:   billing.Static{Default: billing.Active},
		sleep:  func(context.Context, time.Duration) error { return nil },
	}
}

func (r *rig) engine() *bot.Engine {
	return bot.NewEngine(bot.EngineConfig{
		Store:   r.store,
		Jobs:    r.repo,
		Billing: r.bill,
		Events:  r.events,
		Now:     r.clock.Now,
		Sleep:   r.sleep,
	})
}

func (r *rig) rule(t *testing.T, mutate func(*bot.Rule)) *bot.Rule {
	rule := greeting("5511")
	if mutate != nil {
		mutate(rule)
	}
	require.NoError(t, r.store.Create(context.Background(), rule))
	return rule
}

func (r *rig) replies(t *testing.T, ruleID string) []jobs.Job {
	out, err := r.repo.ListGroup(context.Background(), jobs.KindBot, ruleID)
	require.NoError(t, err)
	return out
}

func hello(from string) bot.Inbound {
	return bot.Inbound{Sender: from, Chat: from, Body: "hello there", SenderName: "Ana"}
}

func handle(t *testing.T, e *bot.Engine, in bot.Inbound) int {
	n, err := e.HandleInbound(context.Background(), "5511", in)
	require.NoError(t, err)
	e.Wait()
	return n
}

func TestEngineEnqueuesRenderedReply(t *testing.T) {
	r := newRig(t)
	rule := r.rule(t, nil)
	e := r.engine()

	assert.Equal(t, 1, handle(t, e, hello("5511900000001@s.whatsapp.net")))

	replies := r.replies(t, rule.ID)
	require.Len(t, replies, 1)
	assert.Equal(t, "5511900000001@s.whatsapp.net", replies[0].Recipient)
	assert.Equal(t, "Hi Ana", replies[0].Payload.Text)
	assert.Equal(t, jobs.StatusPending, replies[0].Status)
	assert.True(t, replies[0].ScheduledAt.Equal(t0))
	assert.Len(t, r.events.OfType(events.RuleFired), 1)

	rec, err := r.store.LastFire(context.Background(), rule.ID, "5511900000001@s.whatsapp.net")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.FireCount)
}

func TestEngineCooldown(t *testing.T) {
	r := newRig(t)
	rule := r.rule(t, func(r *bot.Rule) { r.CooldownSeconds = 30 })
	e := r.engine()
	in := hello("r1")

	assert.Equal(t, 1, handle(t, e, in))

	r.clock.Set(t0.Add(10 * time.Second))
	assert.Equal(t, 0, handle(t, e, in))

	// exactly at the cooldown boundary still counts as inside it
	r.clock.Set(t0.Add(30 * time.Second))
	assert.Equal(t, 0, handle(t, e, in))

	r.clock.Set(t0.Add(31 * time.Second))
	assert.Equal(t, 1, handle(t, e, in))

	// other recipients have their own cooldown
	r.clock.Set(t0.Add(32 * time.Second))
	assert.Equal(t, 1, handle(t, e, hello("r2")))

	assert.Len(t, r.replies(t, rule.ID), 3)
}

func TestEngineFilters(t *testing.T) {
	cases := []struct {
		name   string
		rule   func(*bot.Rule)
		in     func(*bot.Inbound)
		expect int
	}{
		{"saved only skips strangers", func(r *bot.Rule) { r.Audience = bot.AudienceSaved }, nil, 0},
		{"saved only answers contacts", func(r *bot.Rule) { r.Audience = bot.AudienceSaved }, func(in *bot.Inbound) { in.SenderSaved = true }, 1},
		{"non saved skips contacts", func(r *bot.Rule) { r.Audience = bot.AudienceNonSaved }, func(in *bot.Inbound) { in.SenderSaved = true }, 0},
		{"outside window", func(r *bot.Rule) { r.WindowStart, r.WindowEnd = "09:00", "10:00" }, nil, 0},
		{"inside window", func(r *bot.Rule) { r.WindowStart, r.WindowEnd = "09:00", "10:01" }, nil, 1},
		{"group without opt in", nil, func(in *bot.Inbound) { in.IsGroup = true; in.Chat = "120363@g.us" }, 0},
		{"group with opt in", func(r *bot.Rule) { r.GroupReply = true }, func(in *bot.Inbound) { in.IsGroup = true; in.Chat = "120363@g.us" }, 1},
		{"no match", func(r *bot.Rule) { r.Trigger = "price" }, nil, 0},
		{"empty trigger", func(r *bot.Rule) { r.Trigger = "" }, nil, 1},
		{"inactive", func(r *bot.Rule) { r.Active = false }, nil, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := newRig(t)
			r.rule(t, c.rule)
			in := hello("r1")
			if c.in != nil {
				c.in(&in)
			}
			assert.Equal(t, c.expect, handle(t, r.engine(), in))
		})
	}
}

func TestEngineGroupReplyGoesToGroup(t *testing.T) {
	r := newRig(t)
	rule := r.rule(t, func(r *bot.Rule) { r.GroupReply = true })
	in := hello("r1")
	in.IsGroup = true
	in.Chat = "120363@g.us"

	assert.Equal(t, 1, handle(t, r.engine(), in))
	replies := r.replies(t, rule.ID)
	require.Len(t, replies, 1)
	assert.Equal(t, "120363@g.us", replies[0].Recipient)
}

func TestEngineMultipleRulesFireIndependently(t *testing.T) {
	r := newRig(t)
	a := r.rule(t, nil)
	b := r.rule(t, func(r *bot.Rule) { r.Name = "catch-all"; r.Trigger = "" })

	assert.Equal(t, 2, handle(t, r.engine(), hello("r1")))
	assert.Len(t, r.replies(t, a.ID), 1)
	assert.Len(t, r.replies(t, b.ID), 1)
}

func TestEngineIgnoresExpiredOwners(t *testing.T) {
	r := newRig(t)
	rule := r.rule(t, nil)
	r.bill = billing.Static{Default: billing.Expired}

	assert.Equal(t, 0, handle(t, r.engine(), hello("r1")))
	assert.Empty(t, r.replies(t, rule.ID))

	r.bill = billing.Static{Default: billing.Trial}
	assert.Equal(t, 1, handle(t, r.engine(), hello("r1")))
}

func TestEngineForwardsSenderCard(t *testing.T) {
	r := newRig(t)
	rule := r.rule(t, func(r *bot.Rule) {
		r.Forward = &bot.Forward{Number: "5511988887777", Message: "{{name}} asked for help"}
	})

	assert.Equal(t, 1, handle(t, r.engine(), hello("5511900000001@s.whatsapp.net")))

	fwd, err := r.repo.ListGroup(context.Background(), jobs.KindForward, rule.ID)
	require.NoError(t, err)
	require.Len(t, fwd, 1)
	assert.Equal(t, "5511988887777", fwd[0].Recipient)
	assert.Equal(t, "Ana asked for help", fwd[0].Payload.Text)
	require.Len(t, fwd[0].Payload.Contacts, 1)
	assert.Equal(t, message.SenderCard("Ana", "5511900000001@s.whatsapp.net"), fwd[0].Payload.Contacts[0])
}

func TestEngineWaitsResponseDelayBeforeRecording(t *testing.T) {
	r := newRig(t)
	rule := r.rule(t, func(r *bot.Rule) { r.ResponseDelaySeconds = 5 })
	var slept time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		r.clock.Set(t0.Add(d))
		return nil
	}

	assert.Equal(t, 1, handle(t, r.engine(), hello("r1")))
	assert.Equal(t, 5*time.Second, slept)

	replies := r.replies(t, rule.ID)
	require.Len(t, replies, 1)
	assert.True(t, replies[0].ScheduledAt.Equal(t0.Add(5*time.Second)))
}

func TestEngineAbandonsFireOnCancel(t *testing.T) {
	r := newRig(t)
	rule := r.rule(t, func(r *bot.Rule) { r.ResponseDelaySeconds = 60 })
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	}
	e := r.engine()

	ctx, cancel := context.WithCancel(context.Background())
	n, err := e.HandleInbound(ctx, "5511", hello("r1"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	cancel()
	e.Wait()

	assert.Empty(t, r.replies(t, rule.ID))
}

// Messages arriving while an earlier fire is still waiting out its response
// delay see no fire record yet, so both pass the cooldown check.
func TestEngineMessagesWithinResponseDelayBothFire(t *testing.T) {
	r := newRig(t)
	rule := r.rule(t, func(r *bot.Rule) {
		r.CooldownSeconds = 300
		r.ResponseDelaySeconds = 10
	})
	gate := make(chan struct{})
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e := r.engine()
	ctx := context.Background()

	n1, err := e.HandleInbound(ctx, "5511", hello("r1"))
	require.NoError(t, err)
	r.clock.Set(t0.Add(2 * time.Second))
	n2, err := e.HandleInbound(ctx, "5511", hello("r1"))
	require.NoError(t, err)
	close(gate)
	e.Wait()

	assert.Equal(t, 1, n1)
	assert.Equal(t, 1, n2)
	assert.Len(t, r.replies(t, rule.ID), 2)

	rec, err := r.store.LastFire(ctx, rule.ID, "r1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.FireCount)

	// once recorded, the cooldown holds
	r.clock.Set(t0.Add(time.Minute))
	assert.Equal(t, 0, handle(t, e, hello("r1")))
}
