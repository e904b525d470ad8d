// Package session holds battle setup conversations between their steps.
package session

import (
	"errors"
	"fmt"
	"time"

	"pnl-arena/internal/battle"
	"pnl-arena/internal/errs"
	"pnl-arena/internal/identity"
)

// ErrOutOfOrder is returned when input arrives for a step the draft is not at.
var ErrOutOfOrder = errors.New("setup step out of order")

// Step is the position of a draft in the setup flow.
type Step int

const (
	StepPlayerCount Step = iota + 1
	StepDuration
	StepParticipants
	StepConfirm
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepPlayerCount:
		return "player_count"
	case StepDuration:
		return "duration"
	case StepParticipants:
		return "participants"
	case StepConfirm:
		return "confirm"
	case StepDone:
		return "done"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// MarshalText renders the step name in JSON.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a step name.
func (s *Step) UnmarshalText(b []byte) error {
	for c := StepPlayerCount; c <= StepDone; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown setup step %q", b)
}

// Draft is an in-progress battle setup. Every transition returns a new Draft and leaves
// the receiver unchanged.
type Draft struct {
	ID           string        `json:"id"`
	Creator      string        `json:"creator"`
	Kind         string        `json:"kind"`
	Step         Step          `json:"step"`
	PlayerCount  int           `json:"player_count,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Participants []string      `json:"participants,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Start opens a draft for creator. The creator always takes the first seat.
func Start(id, creator, kind string, now time.Time) (Draft, error) {
	if id == "" {
		return Draft{}, fmt.Errorf("%w: session id required", errs.ErrInvalidConfiguration)
	}
	if identity.Canonicalize(creator) == "" {
		return Draft{}, fmt.Errorf("%w: creator handle required", errs.ErrInvalidConfiguration)
	}
	if _, err := battle.ParseKind(kind); err != nil {
		return Draft{}, err
	}
	return Draft{ID: id, Creator: creator, Kind: kind, Step: StepPlayerCount, CreatedAt: now.UTC()}, nil
}

func (d Draft) expect(step Step) error {
	if d.Step != step {
		return fmt.Errorf("%w: draft is at %s, got input for %s", ErrOutOfOrder, d.Step, step)
	}
	return nil
}

func (d Draft) clone() Draft {
	out := d
	out.Participants = append([]string(nil), d.Participants...)
	return out
}

// WithPlayerCount records the total number of seats, creator included.
func (d Draft) WithPlayerCount(n int) (Draft, error) {
	if err := d.expect(StepPlayerCount); err != nil {
		return d, err
	}
	if n < battle.MinParticipants || n > battle.MaxParticipants {
		return d, fmt.Errorf("%w: player count must be %d-%d, got %d",
			errs.ErrInvalidConfiguration, battle.MinParticipants, battle.MaxParticipants, n)
	}
	out := d.clone()
	out.PlayerCount = n
	out.Step = StepDuration
	return out, nil
}

// WithDuration records the battle length, which must lie within [lo, hi].
func (d Draft) WithDuration(length, lo, hi time.Duration) (Draft, error) {
	if err := d.expect(StepDuration); err != nil {
		return d, err
	}
	if length < lo || length > hi {
		return d, fmt.Errorf("%w: duration %s outside [%s, %s]", errs.ErrInvalidConfiguration,
			battle.FormatDuration(length), battle.FormatDuration(lo), battle.FormatDuration(hi))
	}
	out := d.clone()
	out.Duration = length
	out.Step = StepParticipants
	return out, nil
}

// WithParticipants seats the creator and the given opponents. Naming the creator again
// is ignored; the seat count must match the player count.
func (d Draft) WithParticipants(handles []string) (Draft, error) {
	if err := d.expect(StepParticipants); err != nil {
		return d, err
	}
	creator := identity.Canonicalize(d.Creator)
	seats := []string{d.Creator}
	for _, h := range handles {
		if identity.Canonicalize(h) == creator {
			continue
		}
		seats = append(seats, h)
	}
	if _, err := battle.ValidateParticipants(seats); err != nil {
		return d, err
	}
	if len(seats) != d.PlayerCount {
		return d, fmt.Errorf("%w: expected %d opponents, got %d",
			errs.ErrInvalidConfiguration, d.PlayerCount-1, len(seats)-1)
	}
	out := d.clone()
	out.Participants = seats
	out.Step = StepConfirm
	return out, nil
}

// Confirm closes the draft. The caller creates the battle from it.
func (d Draft) Confirm() (Draft, error) {
	if err := d.expect(StepConfirm); err != nil {
		return d, err
	}
	out := d.clone()
	out.Step = StepDone
	return out, nil
}
