// Package ledger keeps cumulative battle points per canonical identity.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"pnl-arena/internal/errs"
	"pnl-arena/internal/identity"
	"pnl-arena/internal/leaderboard"
	"pnl-arena/internal/models"
	"pnl-arena/internal/stats"
	"pnl-arena/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Kind selects which points a ledger leaderboard ranks on.
type Kind string

const (
	Profit   Kind = models.KindProfit
	Volume   Kind = models.KindVolume
	Combined Kind = "combined"
)

// ParseKind validates a ledger leaderboard kind.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(name); k {
	case Profit, Volume, Combined:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown ledger kind %q", errs.ErrInvalidConfiguration, name)
	}
}

// Entry is the battle record of one identity.
type Entry struct {
	Rank                int     `json:"rank,omitempty"`
	CanonicalIdentity   string  `json:"canonical_identity"`
	Handle              string  `json:"handle"`
	ProfitPoints        int64   `json:"profit_points"`
	VolumePoints        int64   `json:"volume_points"`
	BattlesParticipated int64   `json:"battles_participated"`
	BattlesWon          int64   `json:"battles_won"`
	WinRate             float64 `json:"win_rate"`
}

// PointsByKind returns the points ranked under kind.
func (e Entry) PointsByKind(kind Kind) int64 {
	switch kind {
	case Profit:
		return e.ProfitPoints
	case Volume:
		return e.VolumePoints
	default:
		return e.ProfitPoints + e.VolumePoints
	}
}

func fromModel(m models.LedgerEntry) Entry {
	return Entry{
		CanonicalIdentity:   m.CanonicalIdentity,
		Handle:              m.Handle,
		ProfitPoints:        m.ProfitPoints,
		VolumePoints:        m.VolumePoints,
		BattlesParticipated: m.BattlesParticipated,
		BattlesWon:          m.BattlesWon,
		WinRate:             stats.WinRate(m.BattlesWon, m.BattlesParticipated),
	}
}

// Ledger credits and ranks battle points.
type Ledger struct {
	store  store.LedgerStore
	logger *zap.Logger
}

// New creates a ledger over s.
func New(s store.LedgerStore, logger *zap.Logger) *Ledger {
	return &Ledger{store: s, logger: logger.Named("ledger")}
}

// Credit awards points for one battle in its own transaction.
// Crediting the same (battle, identity) twice applies the points once.
func (l *Ledger) Credit(ctx context.Context, battleID, raw string, kind string, points int64, won bool) (bool, error) {
	var applied bool
	err := l.store.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		applied, err = l.CreditTx(ctx, tx, store.Credit{
			BattleID:          battleID,
			CanonicalIdentity: identity.Canonicalize(raw),
			Handle:            identity.Display(raw),
			Kind:              kind,
			Points:            points,
			Won:               won,
		})
		return err
	})
	return applied, err
}

// CreditTx awards points inside a caller's transaction.
func (l *Ledger) CreditTx(ctx context.Context, tx *gorm.DB, c store.Credit) (bool, error) {
	if c.Kind != models.KindProfit && c.Kind != models.KindVolume {
		return false, fmt.Errorf("%w: cannot credit kind %q", errs.ErrInvalidConfiguration, c.Kind)
	}
	if c.BattleID == "" || c.CanonicalIdentity == "" {
		return false, fmt.Errorf("%w: credit needs battle and identity", errs.ErrInvalidConfiguration)
	}
	if c.Points < 0 {
		return false, fmt.Errorf("%w: negative points %d", errs.ErrInvalidConfiguration, c.Points)
	}

	applied, err := l.store.CreditTx(ctx, tx, c)
	if err != nil {
		return false, err
	}
	if !applied {
		l.logger.Debug("Credit already applied",
			zap.String("battle_id", c.BattleID),
			zap.String("identity", c.CanonicalIdentity))
	}
	return applied, nil
}

// Entry returns the record for raw, zero-valued if the identity never battled.
func (l *Ledger) Entry(ctx context.Context, raw string) (Entry, error) {
	canonical := identity.Canonicalize(raw)
	m, err := l.store.GetEntry(ctx, canonical)
	if errors.Is(err, errs.ErrNotFound) {
		return Entry{CanonicalIdentity: canonical, Handle: identity.Display(raw)}, nil
	}
	if err != nil {
		return Entry{}, err
	}
	return fromModel(*m), nil
}

// RankOf returns the 1-based position of raw on the all-time combined board.
func (l *Ledger) RankOf(ctx context.Context, raw string) (int, bool, error) {
	ranked, err := l.ranked(ctx, Combined)
	if err != nil {
		return 0, false, err
	}
	canonical := identity.Canonicalize(raw)
	for _, e := range ranked {
		if e.CanonicalIdentity == canonical {
			return e.Rank, true, nil
		}
	}
	return 0, false, nil
}

// Leaderboard ranks entries by kind, highest points first. Ties keep insertion order.
func (l *Ledger) Leaderboard(ctx context.Context, kind Kind, limit int) ([]Entry, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if err := leaderboard.ValidateLimit(limit); err != nil {
		return nil, err
	}
	ranked, err := l.ranked(ctx, kind)
	if err != nil {
		return nil, err
	}
	return leaderboard.Truncate(ranked, limit), nil
}

func (l *Ledger) ranked(ctx context.Context, kind Kind) ([]Entry, error) {
	items, err := l.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(items))
	for _, m := range items {
		entries = append(entries, fromModel(m))
	}
	leaderboard.Order(entries, func(e Entry) decimal.Decimal {
		return decimal.NewFromInt(e.PointsByKind(kind))
	}, false)
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
