package pacing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Window is a daily active interval [Start, End) expressed as offsets from
// local midnight. End of zero means end of day; End before Start wraps
// past midnight.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// AllDay never rolls a cursor over.
var AllDay = Window{Start: 0, End: day}

// ParseClock parses "HH:MM" or "HH:MM:SS". "24:00" is accepted as end of day.
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	var vals [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid clock %q", s)
		}
		vals[i] = n
	}
	if vals[1] > 59 || vals[2] > 59 || vals[0] > 24 || (vals[0] == 24 && (vals[1] > 0 || vals[2] > 0)) {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return time.Duration(vals[0])*time.Hour + time.Duration(vals[1])*time.Minute + time.Duration(vals[2])*time.Second, nil
}

// ParseWindow builds a window from optional clock strings. Empty start means
// midnight, empty end means end of day.
func ParseWindow(start, end string) (Window, error) {
	w := AllDay
	if strings.TrimSpace(start) != "" {
		d, err := ParseClock(start)
		if err != nil {
			return Window{}, err
		}
		w.Start = d
	}
	if strings.TrimSpace(end) != "" {
		d, err := ParseClock(end)
		if err != nil {
			return Window{}, err
		}
		w.End = d
	}
	if w.Start >= day {
		return Window{}, fmt.Errorf("window start %q is end of day", start)
	}
	if w.end() == w.Start {
		return Window{}, fmt.Errorf("empty window %s-%s", start, end)
	}
	return w, nil
}

func (w Window) end() time.Duration {
	if w.End == 0 {
		return day
	}
	return w.End
}

// Contains reports whether t's local time of day falls inside the window.
func (w Window) Contains(t time.Time) bool {
	tod := timeOfDay(t)
	end := w.end()
	if w.Start < end {
		return tod >= w.Start && tod < end
	}
	return tod >= w.Start || tod < end
}

// rollover moves t to the next calendar day at Start plus one second.
func (w Window) rollover(t time.Time) time.Time {
	y, m, d := t.Date()
	h, mi, s := clockParts(w.Start)
	return time.Date(y, m, d+1, h, mi, s+1, 0, t.Location())
}

func (w Window) String() string {
	return fmt.Sprintf("%s-%s", formatClock(w.Start), formatClock(w.end()))
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

func clockParts(d time.Duration) (int, int, int) {
	sec := int(d / time.Second)
	return sec / 3600, (sec % 3600) / 60, sec % 60
}

func formatClock(d time.Duration) string {
	h, m, s := clockParts(d)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
