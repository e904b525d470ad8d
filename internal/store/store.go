// Package store defines the persistence contracts consumed by the engine and a gorm
// implementation that serves all of them.
package store

import (
	"context"
	"time"

	"pnl-arena/internal/identity"
	"pnl-arena/internal/models"
	"pnl-arena/internal/period"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TradeFilter narrows a trade query. Zero values mean "no constraint".
type TradeFilter struct {
	Predicate *identity.Predicate
	Window    period.Window
	Asset     string
	// MinInvestment and MaxInvestment bound each trade's invested amount, inclusive.
	// Zero leaves that side open.
	MinInvestment decimal.Decimal
	MaxInvestment decimal.Decimal
	Limit         int
	// Newest orders results newest first instead of oldest first.
	Newest bool
}

// Credit is one ledger award for a participant of a finished battle.
type Credit struct {
	BattleID          string
	CanonicalIdentity string
	Handle            string
	Kind              string
	Points            int64
	Won               bool
}

// TradeStore is the append-only trade record collection.
type TradeStore interface {
	Append(ctx context.Context, rec *models.TradeRecord) error
	Query(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error)
}

// LedgerStore holds cumulative battle points per canonical identity.
type LedgerStore interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	CreditTx(ctx context.Context, tx *gorm.DB, c Credit) (bool, error)
	GetEntry(ctx context.Context, canonical string) (*models.LedgerEntry, error)
	ListEntries(ctx context.Context) ([]models.LedgerEntry, error)
}

// BattleStore persists battles and their participants.
type BattleStore interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	CreateBattle(ctx context.Context, b *models.Battle) error
	GetBattle(ctx context.Context, battleID string) (*models.Battle, error)
	ListActiveBattles(ctx context.Context) ([]models.Battle, error)
	ListExpiredBattles(ctx context.Context, now time.Time) ([]models.Battle, error)
	FinalizeBattleTx(ctx context.Context, tx *gorm.DB, battleID string, result datatypes.JSON, at time.Time) (bool, error)
	CancelBattle(ctx context.Context, battleID string, at time.Time) (bool, error)
	ListBattlesByParticipant(ctx context.Context, canonical string, limit int) ([]models.Battle, error)
}
