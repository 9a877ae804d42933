// Package sessiontest provides an in-memory Session that records sends.
package sessiontest

import (
	"context"
	"errors"
	"sync"

	"waflow/internal/message"
)

// Call is one recorded send.
type Call struct {
	Kind string // text, media, contact, poll
	To   string
	Text string
}

type Fake struct {
	mu    sync.Mutex
	calls []Call

	NotReady bool
	// FailKinds makes sends of the listed kinds return an error.
	FailKinds map[string]bool

	Groups  map[string][]string
	Labels  map[string][]string
	Numbers map[string]string // number -> address; absent means unregistered
	// ResolveErr is returned by every Resolve call when set.
	ResolveErr error
}

func New() *Fake {
	return &Fake{
		Groups:  map[string][]string{},
		Labels:  map[string][]string{},
		Numbers: map[string]string{},
	}
}

func (f *Fake) Ready() bool { return !f.NotReady }

func (f *Fake) record(kind, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Kind: kind, To: to, Text: text})
	if f.FailKinds[kind] {
		return errors.New("send " + kind + " failed")
	}
	return nil
}

func (f *Fake) SendText(_ context.Context, to, text string) error {
	return f.record("text", to, text)
}

func (f *Fake) SendMedia(_ context.Context, to string, a message.Attachment) error {
	return f.record("media", to, a.Caption)
}

func (f *Fake) SendContactCard(_ context.Context, to string, c message.ContactCard) error {
	return f.record("contact", to, c.Name)
}

func (f *Fake) SendPoll(_ context.Context, to string, p message.Poll) error {
	return f.record("poll", to, p.Title)
}

func (f *Fake) ResolveGroupMembers(_ context.Context, groupID string) ([]string, error) {
	if f.ResolveErr != nil {
		return nil, f.ResolveErr
	}
	m, ok := f.Groups[groupID]
	if !ok {
		return nil, errors.New("unknown group " + groupID)
	}
	return append([]string(nil), m...), nil
}

func (f *Fake) ResolveLabelMembers(_ context.Context, labelID string) ([]string, error) {
	if f.ResolveErr != nil {
		return nil, f.ResolveErr
	}
	return append([]string(nil), f.Labels[labelID]...), nil
}

func (f *Fake) ResolveNumberIDs(_ context.Context, numbers []string) ([]string, error) {
	if f.ResolveErr != nil {
		return nil, f.ResolveErr
	}
	out := make([]string, len(numbers))
	for i, n := range numbers {
		if addr, ok := f.Numbers[n]; ok {
			out[i] = addr
			continue
		}
		if len(f.Numbers) == 0 {
			out[i] = n + "@s.whatsapp.net"
		}
	}
	return out, nil
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the calls addressed to one recipient, in order.
func (f *Fake) CallsTo(to string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.To == to {
			out = append(out, c)
		}
	}
	return out
}
