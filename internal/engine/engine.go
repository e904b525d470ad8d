// Package engine is the entry point for front-ends: trade submission, statistics,
// leaderboards, battles and the battle setup flow.
package engine

import (
	"context"
	"time"

	"pnl-arena/internal/battle"
	"pnl-arena/internal/ledger"
	"pnl-arena/internal/rates"
	"pnl-arena/internal/session"
	"pnl-arena/internal/store"

	"go.uber.org/zap"
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultLimit        = 10
)

// Deps are the collaborators of an Engine. Rates may be nil, in which case SOL figures
// are never reported.
type Deps struct {
	Trades  store.TradeStore
	Battles *battle.Manager
	Ledger  *ledger.Ledger
	Drafts  *session.Drafts
	Rates   rates.Converter
	Logger  *zap.Logger
}

// Options tunes an Engine. Zero values fall back to defaults.
type Options struct {
	StoreTimeout time.Duration
	DefaultLimit int
	Now          func() time.Time
}

// Engine is the API exposed to callers.
type Engine struct {
	trades  store.TradeStore
	battles *battle.Manager
	ledger  *ledger.Ledger
	drafts  *session.Drafts
	rates   rates.Converter
	logger  *zap.Logger

	storeTimeout time.Duration
	defaultLimit int
	now          func() time.Time
}

// New creates an engine.
func New(deps Deps, opts Options) *Engine {
	e := &Engine{
		trades:       deps.Trades,
		battles:      deps.Battles,
		ledger:       deps.Ledger,
		drafts:       deps.Drafts,
		rates:        deps.Rates,
		logger:       deps.Logger.Named("engine"),
		storeTimeout: opts.StoreTimeout,
		defaultLimit: opts.DefaultLimit,
		now:          opts.Now,
	}
	if e.storeTimeout <= 0 {
		e.storeTimeout = defaultStoreTimeout
	}
	if e.defaultLimit <= 0 {
		e.defaultLimit = defaultLimit
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// DefaultLimit is the row count used when a caller does not ask for one.
func (e *Engine) DefaultLimit() int {
	return e.defaultLimit
}

// Now returns the engine clock in UTC.
func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

// withTimeout bounds a store round trip. A deadline surfaces as ErrTransientStore.
func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.storeTimeout)
}
