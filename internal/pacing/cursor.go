// Package pacing computes send instants for a sequence of outbound messages:
// a random per-message delay, a pause after every batch, and a daily active
// window outside of which the sequence resumes the next morning.
package pacing

import (
	"fmt"
	"math/rand/v2"
	"time"
)

type Pacing struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	BatchSize  int
	BatchDelay time.Duration
	Window     Window
}

func (p Pacing) Validate() error {
	switch {
	case p.MinDelay < 0:
		return fmt.Errorf("min delay must be >= 0")
	case p.MaxDelay < p.MinDelay:
		return fmt.Errorf("max delay must be >= min delay")
	case p.BatchSize < 0:
		return fmt.Errorf("batch size must be >= 0")
	case p.BatchDelay < 0:
		return fmt.Errorf("batch delay must be >= 0")
	}
	return nil
}

// Cursor is the position of a sequence: the last produced instant and how
// many instants have been produced.
type Cursor struct {
	Current time.Time
	Count   int
}

// Begin positions a cursor at the later of now and startDate at startTime
// (midnight when startTime is nil). Without a start date the cursor starts
// at now; the window alone decides when sending may begin.
func (p Pacing) Begin(now time.Time, startDate time.Time, startTime *time.Duration) Cursor {
	now = now.Truncate(time.Second)
	if startDate.IsZero() {
		return Cursor{Current: now}
	}

	y, m, d := startDate.Date()
	var h, mi, s int
	if startTime != nil {
		h, mi, s = clockParts(*startTime)
	}
	anchor := time.Date(y, m, d, h, mi, s, 0, now.Location())
	if anchor.After(now) {
		return Cursor{Current: anchor}
	}
	return Cursor{Current: now}
}

// Next advances c by delay, adds the batch pause when a full batch has
// already been produced, and rolls over to the next day when the result
// leaves the window. It does not mutate c.
func (p Pacing) Next(c Cursor, delay time.Duration) (Cursor, time.Time) {
	cur := c.Current.Add(delay)
	if p.BatchSize > 0 && c.Count > 0 && c.Count%p.BatchSize == 0 {
		cur = cur.Add(p.BatchDelay)
	}
	if !p.Window.Contains(cur) {
		cur = p.Window.rollover(cur)
	}
	return Cursor{Current: cur, Count: c.Count + 1}, cur
}

// Delay draws a whole-second delay uniformly from [MinDelay, MaxDelay].
func (p Pacing) Delay(rng *rand.Rand) time.Duration {
	lo := int64(p.MinDelay / time.Second)
	hi := int64(p.MaxDelay / time.Second)
	if hi <= lo {
		return time.Duration(lo) * time.Second
	}
	return time.Duration(lo+rng.Int64N(hi-lo+1)) * time.Second
}

// Sequencer owns one cursor for a caller producing instants in order.
// It is not safe for concurrent use.
type Sequencer struct {
	pacing Pacing
	cursor Cursor
	rng    *rand.Rand
}

func NewSequencer(p Pacing, start Cursor, rng *rand.Rand) *Sequencer {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Sequencer{pacing: p, cursor: start, rng: rng}
}

// Next produces the next instant using a random delay.
func (s *Sequencer) Next() time.Time {
	return s.NextAfter(s.pacing.Delay(s.rng))
}

// NextAfter produces the next instant using a fixed delay.
func (s *Sequencer) NextAfter(delay time.Duration) time.Time {
	var at time.Time
	s.cursor, at = s.pacing.Next(s.cursor, delay)
	return at
}

func (s *Sequencer) Cursor() Cursor { return s.cursor }
