package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"pnl-arena/internal/errs"
	"pnl-arena/internal/identity"
	"pnl-arena/internal/leaderboard"
	"pnl-arena/internal/models"
	"pnl-arena/internal/period"
	"pnl-arena/internal/stats"
	"pnl-arena/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	tickerPattern = regexp.MustCompile(`^[A-Z0-9/\-.]{1,20}$`)
	maxAmount     = decimal.NewFromInt(1_000_000)
)

// TradeInput is a trade outcome reported by a trader.
type TradeInput struct {
	Handle     string          `json:"handle"`
	AccountID  string          `json:"account_id"`
	Asset      string          `json:"asset"`
	Profit     decimal.Decimal `json:"profit"`
	Investment decimal.Decimal `json:"investment"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Validate checks the input and returns it normalized.
func (in TradeInput) Validate() (TradeInput, error) {
	in.Handle = strings.TrimSpace(in.Handle)
	in.AccountID = strings.TrimSpace(in.AccountID)
	in.Asset = strings.ToUpper(strings.TrimSpace(in.Asset))

	if identity.Canonicalize(in.Handle) == "" {
		return in, fmt.Errorf("%w: handle required", errs.ErrInvalidConfiguration)
	}
	if !tickerPattern.MatchString(in.Asset) {
		return in, fmt.Errorf("%w: invalid ticker %q", errs.ErrInvalidConfiguration, in.Asset)
	}
	if in.Profit.Abs().GreaterThan(maxAmount) {
		return in, fmt.Errorf("%w: profit must be within ±%s", errs.ErrInvalidConfiguration, maxAmount)
	}
	if !in.Investment.IsPositive() || in.Investment.GreaterThan(maxAmount) {
		return in, fmt.Errorf("%w: investment must be in (0, %s]", errs.ErrInvalidConfiguration, maxAmount)
	}
	return in, nil
}

// SubmitTrade validates and appends one trade record.
func (e *Engine) SubmitTrade(ctx context.Context, in TradeInput) (*models.TradeRecord, error) {
	in, err := in.Validate()
	if err != nil {
		return nil, err
	}
	at := in.OccurredAt
	if at.IsZero() {
		at = e.Now()
	}
	rec := &models.TradeRecord{
		IdentityRaw:    in.Handle,
		AccountID:      in.AccountID,
		Asset:          in.Asset,
		InvestedAmount: in.Investment,
		ProfitAmount:   in.Profit,
		OccurredAt:     at.UTC(),
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := e.trades.Append(ctx, rec); err != nil {
		return nil, err
	}
	e.logger.Info("Trade recorded",
		zap.String("identity", rec.CanonicalIdentity),
		zap.String("asset", rec.Asset),
		zap.String("profit", rec.ProfitAmount.String()))
	return rec, nil
}

// UserHistory returns a trader's most recent trades, newest first.
func (e *Engine) UserHistory(ctx context.Context, accountID, handle string, limit int) ([]models.TradeRecord, error) {
	pred, err := identity.MatchPredicate(accountID, handle)
	if err != nil {
		return nil, err
	}
	if err := leaderboard.ValidateLimit(limit); err != nil {
		return nil, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.trades.Query(ctx, store.TradeFilter{Predicate: &pred, Newest: true, Limit: limit})
}

// GetLeaderboard ranks traders over window by metric.
func (e *Engine) GetLeaderboard(ctx context.Context, window period.Window, metric leaderboard.Metric, limit int) ([]leaderboard.Entry, error) {
	return e.board(ctx, store.TradeFilter{Window: window}, stats.ByIdentity, metric, limit)
}

// AssetLeaderboard ranks tickers over window by metric.
func (e *Engine) AssetLeaderboard(ctx context.Context, window period.Window, metric leaderboard.Metric, limit int) ([]leaderboard.Entry, error) {
	return e.board(ctx, store.TradeFilter{Window: window}, stats.ByAsset, metric, limit)
}

// AssetTraders ranks the traders of one ticker.
func (e *Engine) AssetTraders(ctx context.Context, asset string, window period.Window, metric leaderboard.Metric, limit int) ([]leaderboard.Entry, error) {
	return e.board(ctx, store.TradeFilter{Window: window, Asset: asset}, stats.ByIdentity, metric, limit)
}

func (e *Engine) board(ctx context.Context, filter store.TradeFilter, by stats.GroupBy, metric leaderboard.Metric, limit int) ([]leaderboard.Entry, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: unknown metric %q", errs.ErrInvalidConfiguration, metric)
	}
	if err := leaderboard.ValidateLimit(limit); err != nil {
		return nil, err
	}
	groups, err := e.aggregate(ctx, filter, by)
	if err != nil {
		return nil, err
	}
	return leaderboard.Build(groups, metric, limit)
}

func (e *Engine) aggregate(ctx context.Context, filter store.TradeFilter, by stats.GroupBy) (*stats.Groups, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	records, err := e.trades.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	return stats.Aggregate(records, by)
}

// UserStats is a trader's summary over a window.
type UserStats struct {
	Handle    string           `json:"handle"`
	Stats     *stats.Stats     `json:"stats"`
	Streaks   stats.Streaks    `json:"streaks"`
	ProfitSOL *decimal.Decimal `json:"profit_sol,omitempty"`
	SOLUSD    *decimal.Decimal `json:"sol_usd,omitempty"`

	Achievements  []stats.Achievement `json:"achievements"`
	NextMilestone string              `json:"next_milestone"`
}

// GetUserStats summarizes the trades matched by account id and/or handle.
// The SOL figures are left out when no rate is available.
func (e *Engine) GetUserStats(ctx context.Context, accountID, handle string, window period.Window) (*UserStats, error) {
	pred, err := identity.MatchPredicate(accountID, handle)
	if err != nil {
		return nil, err
	}

	qctx, cancel := e.withTimeout(ctx)
	records, err := e.trades.Query(qctx, store.TradeFilter{Predicate: &pred, Window: window})
	cancel()
	if err != nil {
		return nil, err
	}

	groups, err := stats.Aggregate(records, stats.ByNone)
	if err != nil {
		return nil, err
	}
	s, ok := groups.Get(stats.AllKey)
	if !ok {
		s = &stats.Stats{Key: stats.AllKey}
	}
	s.Key = pred.Canonical
	if s.Key == "" && len(records) > 0 {
		// Matched by account id only.
		s.Key = identity.Canonicalize(records[0].IdentityRaw)
	}
	s.Display = handle

	out := &UserStats{
		Handle:        handle,
		Stats:         s,
		Streaks:       stats.ComputeStreaks(records),
		Achievements:  stats.Achievements(s),
		NextMilestone: stats.NextMilestone(s),
	}
	if out.Handle == "" && len(records) > 0 {
		out.Handle = records[0].IdentityRaw
		s.Display = out.Handle
	}

	if e.rates != nil && s.TradeCount > 0 {
		rate, err := e.rates.SOLUSD(ctx)
		if err != nil {
			e.logger.Warn("SOL rate unavailable, omitting SOL profit", zap.Error(err))
		} else {
			sol := s.TotalProfit.Div(rate)
			out.ProfitSOL = &sol
			out.SOLUSD = &rate
		}
	}
	return out, nil
}

// AssetStats summarizes one ticker. ErrNotFound is returned when nobody traded it.
func (e *Engine) AssetStats(ctx context.Context, asset string, window period.Window) (*stats.Stats, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if !tickerPattern.MatchString(asset) {
		return nil, fmt.Errorf("%w: invalid ticker %q", errs.ErrInvalidConfiguration, asset)
	}
	groups, err := e.aggregate(ctx, store.TradeFilter{Window: window, Asset: asset}, stats.ByAsset)
	if err != nil {
		return nil, err
	}
	s, ok := groups.Get(asset)
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", asset, errs.ErrNotFound)
	}
	return s, nil
}

// CommunityStats summarizes every trade in window.
func (e *Engine) CommunityStats(ctx context.Context, window period.Window) (*stats.Stats, error) {
	groups, err := e.aggregate(ctx, store.TradeFilter{Window: window}, stats.ByNone)
	if err != nil {
		return nil, err
	}
	if s, ok := groups.Get(stats.AllKey); ok {
		return s, nil
	}
	return &stats.Stats{Key: stats.AllKey, Display: stats.AllKey}, nil
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	return errors.Is(err, errs.ErrTransientStore)
}
