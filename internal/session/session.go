// Package session is the boundary to the messaging network: one Session per
// owner account, looked up through an explicit Registry.
package session

import (
	"context"
	"sync"

	"waflow/internal/message"
)

// Session is a logged-in messaging account. Addresses are JIDs as produced
// by the Resolve methods.
type Session interface {
	Ready() bool

	SendText(ctx context.Context, to, text string) error
	SendMedia(ctx context.Context, to string, a message.Attachment) error
	SendContactCard(ctx context.Context, to string, c message.ContactCard) error
	SendPoll(ctx context.Context, to string, p message.Poll) error

	ResolveGroupMembers(ctx context.Context, groupID string) ([]string, error)
	ResolveLabelMembers(ctx context.Context, labelID string) ([]string, error)
	// ResolveNumberIDs maps phone numbers to addresses, index-aligned with
	// numbers. Numbers not registered on the network resolve to "".
	ResolveNumberIDs(ctx context.Context, numbers []string) ([]string, error)
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

func (r *Registry) Register(owner string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[owner] = s
}

func (r *Registry) Remove(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, owner)
}

func (r *Registry) Get(owner string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[owner]
	return s, ok
}

// Ready returns the owner's session only when it can send right now.
func (r *Registry) Ready(owner string) (Session, bool) {
	s, ok := r.Get(owner)
	if !ok || !s.Ready() {
		return nil, false
	}
	return s, true
}
