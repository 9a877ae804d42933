// Package billing answers whether an owner may send and whether sends carry
// the trial promotion.
package billing

import (
	"context"
	"fmt"
)

type Billing interface {
	IsSubscribed(ctx context.Context, owner string) (bool, error)
	IsInTrial(ctx context.Context, owner string) (bool, error)
}

type Standing int

const (
	Expired Standing = iota
	Trial
	Active
)

func (s Standing) String() string {
	switch s {
	case Active:
		return "active"
	case Trial:
		return "trial"
	default:
		return "expired"
	}
}

func (s Standing) CanSend() bool { return s != Expired }

// StandingOf combines both checks; a subscription wins over a trial.
func StandingOf(ctx context.Context, b Billing, owner string) (Standing, error) {
	sub, err := b.IsSubscribed(ctx, owner)
	if err != nil {
		return Expired, fmt.Errorf("subscription check: %w", err)
	}
	if sub {
		return Active, nil
	}
	trial, err := b.IsInTrial(ctx, owner)
	if err != nil {
		return Expired, fmt.Errorf("trial check: %w", err)
	}
	if trial {
		return Trial, nil
	}
	return Expired, nil
}

// Static answers from fixed sets; used when no billing service is
// configured and in tests.
type Static struct {
	Subscribed map[string]bool
	Trials     map[string]bool
	// Default applies to owners in neither map.
	Default Standing
}

func (s Static) IsSubscribed(_ context.Context, owner string) (bool, error) {
	if v, ok := s.Subscribed[owner]; ok {
		return v, nil
	}
	if _, ok := s.Trials[owner]; ok {
		return false, nil
	}
	return s.Default == Active, nil
}

func (s Static) IsInTrial(_ context.Context, owner string) (bool, error) {
	if v, ok := s.Trials[owner]; ok {
		return v, nil
	}
	if _, ok := s.Subscribed[owner]; ok {
		return false, nil
	}
	return s.Default == Trial, nil
}
