package campaign_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"waflow/internal/apperr"
	"waflow/internal/campaign"
	"waflow/internal/db/dbtest"
	"waflow/internal/events"
	"waflow/internal/jobs"
	"waflow/internal/message"
	"waflow/internal/session"
	"waflow/internal/session/sessiontest"

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

type env struct {
	svc    *campaign.Service
	repo   *jobs.Repo
	fake   *sessiontest.Fake
	clock  *clock
	events *events.Recorder
}

func newEnv(t *testing.T) *env {
	gdb := dbtest.Open(t, &jobs.Job{}, &campaign.Campaign{})
	e := &env{
		repo:   &jobs.Repo{DB: gdb},
		fake:   sessiontest.New(),
		clock:  &clock{t: time.Date(2026, 3, 2, 8, 59, 59, 0, time.UTC)},
		events: &events.Recorder{},
	}
	reg := session.NewRegistry()
	reg.Register("5511", e.fake)
	e.svc = campaign.NewService(campaign.Config{
		DB:       gdb,
		Sessions: reg,
		Events:   e.events,
		Now:      e.clock.Now,
	})
	return e
}

func numbers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("55119000%04d", i+1)
	}
	return out
}

func baseRequest(name string) campaign.Request {
	return campaign.Request{
		Owner:      "5511",
		Name:       name,
		Payload:    message.Payload{Text: "Spring sale"},
		Recipients: campaign.RecipientSource{Numbers: numbers(3)},
		MinDelay:   5,
		MaxDelay:   5,
	}
}

func TestScheduleTwelveRecipients(t *testing.T) {
	e := newEnv(t)
	req := baseRequest("spring")
	req.Recipients = campaign.RecipientSource{Numbers: numbers(12)}
	req.BatchSize = 5
	req.BatchDelay = 60
	req.StartTime = "09:00"
	req.EndTime = "18:00"

	c, err := e.svc.Schedule(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusActive, c.Status)
	require.Len(t, c.JobIDs, 12)

	list, err := e.repo.ListGroup(context.Background(), jobs.KindCampaign, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 12)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.True(t, list[0].ScheduledAt.Equal(day.Add(9*time.Hour+4*time.Second)), list[0].ScheduledAt)
	assert.GreaterOrEqual(t, list[5].ScheduledAt.Sub(list[4].ScheduledAt), 65*time.Second)
	for i, j := range list {
		assert.Equal(t, 2, j.ScheduledAt.UTC().Day(), "job %d", i)
		assert.Equal(t, jobs.StatusPending, j.Status)
		assert.Equal(t, fmt.Sprintf("55119000%04d@s.whatsapp.net", i+1), j.Recipient)
	}
	assert.Len(t, e.events.OfType(events.CampaignReady), 1)

	stored, err := e.svc.Get(context.Background(), "5511", c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.JobIDs, stored.JobIDs)
	assert.Equal(t, 12, stored.RecipientCount)
}

func TestDuplicateNameCreatesNoJobs(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Schedule(ctx, baseRequest("promo"))
	require.NoError(t, err)

	_, err = e.svc.Schedule(ctx, baseRequest("promo"))
	require.Error(t, err)
	assert.True(t, apperr.IsDuplicateName(err))

	due, err := e.repo.Due(ctx, e.clock.Now().Add(24*time.Hour), 100)
	require.NoError(t, err)
	assert.Len(t, due, 3)

	other := baseRequest("promo")
	other.Owner = "3519"
	_, err = e.svc.Schedule(ctx, other)
	assert.False(t, apperr.IsDuplicateName(err), "names are unique per owner")
}

func TestRowsRenderPlaceholders(t *testing.T) {
	e := newEnv(t)
	req := baseRequest("rows")
	req.Payload = message.Payload{
		Text:        "Hi {{name}}, your code is {{code}}",
		Attachments: []message.Attachment{{Ref: "menu.pdf", Caption: "for {{name}}"}},
	}
	req.Recipients = campaign.RecipientSource{Rows: []map[string]string{
		{"number": "111", "name": "Ana", "code": "A1"},
		{"Number": "222", "name": "Ben", "code": "B2"},
		{"name": "nobody"},
		{"number": "111", "name": "Ana again"},
	}}

	c, err := e.svc.Schedule(context.Background(), req)
	require.NoError(t, err)

	list, err := e.repo.ListGroup(context.Background(), jobs.KindCampaign, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Hi Ana, your code is A1", list[0].Payload.Text)
	assert.Equal(t, "for Ana", list[0].Payload.Attachments[0].Caption)
	assert.Equal(t, "Hi Ben, your code is B2", list[1].Payload.Text)
}

func TestGroupAndLabelSources(t *testing.T) {
	e := newEnv(t)
	e.fake.Groups["g1"] = []string{"a@s.whatsapp.net", "b@s.whatsapp.net", "a@s.whatsapp.net"}
	e.fake.Labels["vip"] = []string{"c@s.whatsapp.net"}

	req := baseRequest("group")
	req.Recipients = campaign.RecipientSource{GroupID: "g1"}
	c, err := e.svc.Schedule(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, c.RecipientCount)

	req = baseRequest("label")
	req.Recipients = campaign.RecipientSource{LabelID: "vip"}
	c, err = e.svc.Schedule(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, c.RecipientCount)
}

func TestResolutionFailureMarksCampaignFailed(t *testing.T) {
	e := newEnv(t)
	e.fake.ResolveErr = errors.New("group gone")
	req := baseRequest("broken")
	req.Recipients = campaign.RecipientSource{GroupID: "g404"}

	c, err := e.svc.Schedule(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperr.IsRecipientResolution(err))

	stored, err := e.svc.Get(context.Background(), "5511", c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Contains(t, *stored.FailureReason, "group gone")
	assert.Len(t, e.events.OfType(events.CampaignFailed), 1)

	counts, err := e.repo.CountByStatus(context.Background(), jobs.KindCampaign, c.ID)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestSubmitExpandsInBackground(t *testing.T) {
	e := newEnv(t)

	c, err := e.svc.Submit(context.Background(), baseRequest("async"))
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCreated, c.Status)

	e.svc.Wait()
	stored, err := e.svc.Get(context.Background(), "5511", c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusActive, stored.Status)
	assert.Len(t, stored.JobIDs, 3)

	list, err := e.svc.List(context.Background(), "5511")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSubmitReportsFailureAsync(t *testing.T) {
	e := newEnv(t)
	e.fake.NotReady = true

	c, err := e.svc.Submit(context.Background(), baseRequest("offline"))
	require.NoError(t, err)
	e.svc.Wait()

	stored, err := e.svc.Get(context.Background(), "5511", c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusFailed, stored.Status)
}

func TestValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := map[string]func(r *campaign.Request){
		"no name":       func(r *campaign.Request) { r.Name = " " },
		"no content":    func(r *campaign.Request) { r.Payload = message.Payload{} },
		"two sources":   func(r *campaign.Request) { r.Recipients.GroupID = "g1" },
		"no source":     func(r *campaign.Request) { r.Recipients = campaign.RecipientSource{} },
		"max below min": func(r *campaign.Request) { r.MaxDelay = 1 },
		"bad window":    func(r *campaign.Request) { r.StartTime = "25:00" },
		"bad date":      func(r *campaign.Request) { r.StartDate = "02/03/2026" },
	}
	for name, mutate := range cases {
		req := baseRequest("v-" + name)
		mutate(&req)
		_, err := e.svc.Schedule(ctx, req)
		assert.True(t, apperr.IsValidation(err), name)
	}

	list, err := e.svc.List(ctx, "5511")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRandomSuffixMakesTextsDistinct(t *testing.T) {
	e := newEnv(t)
	req := baseRequest("suffix")
	req.RandomSuffix = true

	c, err := e.svc.Schedule(context.Background(), req)
	require.NoError(t, err)
	list, err := e.repo.ListGroup(context.Background(), jobs.KindCampaign, c.ID)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, j := range list {
		assert.Regexp(t, `^Spring sale\n\n[a-z2-9]{6}$`, j.Payload.Text)
		seen[j.Payload.Text] = true
	}
	assert.Len(t, seen, 3)
}
