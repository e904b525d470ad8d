// Package period defines the half-open UTC time windows used by leaderboards and battles.
package period

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pnl-arena/internal/errs"
)

// Window is the half-open range [Start, End). A zero Start or End leaves that side unbounded.
type Window struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// AllTime returns an unbounded window.
func AllTime() Window {
	return Window{}
}

// Between returns [start, end) in UTC. End must be after start.
func Between(start, end time.Time) (Window, error) {
	if !end.After(start) {
		return Window{}, fmt.Errorf("%w: window end %s is not after start %s",
			errs.ErrInvalidConfiguration, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return Window{Start: start.UTC(), End: end.UTC()}, nil
}

// Day returns the UTC calendar day containing t.
func Day(t time.Time) Window {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Week returns the Monday-based UTC week containing t.
func Week(t time.Time) Window {
	day := Day(t).Start
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

// Month returns the given UTC calendar month.
func Month(year int, month time.Month) Window {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// LastDays returns the n days up to now.
func LastDays(now time.Time, days int) Window {
	now = now.UTC()
	return Window{Start: now.AddDate(0, 0, -days), End: now}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// Duration is the window length, zero when either side is unbounded.
func (w Window) Duration() time.Duration {
	if w.Start.IsZero() || w.End.IsZero() {
		return 0
	}
	return w.End.Sub(w.Start)
}

var lastDaysPattern = regexp.MustCompile(`^(\d{1,4})d$`)

// Parse resolves a window name relative to now: "all", "today", "week", "month" or
// "<n>d" for the last n days.
func Parse(name string, now time.Time) (Window, error) {
	now = now.UTC()
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "", "all", "alltime":
		return AllTime(), nil
	case "today", "day":
		return Day(now), nil
	case "week":
		return Week(now), nil
	case "month":
		return Month(now.Year(), now.Month()), nil
	default:
		m := lastDaysPattern.FindStringSubmatch(n)
		if m == nil {
			return Window{}, fmt.Errorf("%w: unknown window %q", errs.ErrInvalidConfiguration, name)
		}
		days, _ := strconv.Atoi(m[1])
		if days == 0 {
			return Window{}, fmt.Errorf("%w: window %q is empty", errs.ErrInvalidConfiguration, name)
		}
		return LastDays(now, days), nil
	}
}
