package engine

import (
	"context"
	"fmt"

	"pnl-arena/internal/errs"
	"pnl-arena/internal/identity"
	"pnl-arena/internal/leaderboard"
	"pnl-arena/internal/period"
	"pnl-arena/internal/stats"
	"pnl-arena/internal/store"

	"github.com/shopspring/decimal"
)

// Portfolio is a trader's results broken down per ticker, most profitable first.
type Portfolio struct {
	Handle          string          `json:"handle"`
	Assets          []*stats.Stats  `json:"assets"`
	TradeCount      int64           `json:"trade_count"`
	TotalProfit     decimal.Decimal `json:"total_profit"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
	// Diversification scores 10 points per distinct ticker, capped at 100.
	Diversification int `json:"diversification"`
}

// UserPortfolio groups a trader's trades in window by ticker.
func (e *Engine) UserPortfolio(ctx context.Context, accountID, handle string, window period.Window) (*Portfolio, error) {
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
	groups, err := stats.Aggregate(records, stats.ByAsset)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{Handle: handle, Assets: groups.All()}
	if p.Handle == "" && len(records) > 0 {
		p.Handle = records[0].IdentityRaw
	}
	leaderboard.Order(p.Assets, func(s *stats.Stats) decimal.Decimal { return s.TotalProfit }, false)
	for _, s := range p.Assets {
		p.TradeCount += s.TradeCount
		p.TotalProfit = p.TotalProfit.Add(s.TotalProfit)
		p.TotalInvestment = p.TotalInvestment.Add(s.TotalInvestment)
	}
	p.Diversification = min(len(p.Assets)*10, 100)
	return p, nil
}

// InvestmentLeaderboard ranks traders by metric counting only trades whose investment
// lies within [lo, hi]. A zero bound leaves that side open.
func (e *Engine) InvestmentLeaderboard(ctx context.Context, window period.Window, lo, hi decimal.Decimal, metric leaderboard.Metric, limit int) ([]leaderboard.Entry, error) {
	if lo.IsNegative() || hi.IsNegative() {
		return nil, fmt.Errorf("%w: investment bounds must not be negative", errs.ErrInvalidConfiguration)
	}
	if !hi.IsZero() && hi.LessThan(lo) {
		return nil, fmt.Errorf("%w: max investment %s below min %s", errs.ErrInvalidConfiguration, hi, lo)
	}
	filter := store.TradeFilter{Window: window, MinInvestment: lo, MaxInvestment: hi}
	return e.board(ctx, filter, stats.ByIdentity, metric, limit)
}

// Legend is the leader of one hall of fame category.
type Legend struct {
	Title  string             `json:"title"`
	Metric leaderboard.Metric `json:"metric"`
	Entry  leaderboard.Entry  `json:"entry"`
}

// MinPrecisionTrades is the trade count needed to hold the win rate title.
const MinPrecisionTrades = 10

type hallCategory struct {
	title     string
	metric    leaderboard.Metric
	minTrades int64
}

var hallCategories = []hallCategory{
	{title: "Profit Emperor", metric: leaderboard.ProfitUSD},
	{title: "ROI Deity", metric: leaderboard.ROI},
	{title: "Volume Titan", metric: leaderboard.InvestmentTotal},
	{title: "Trade Gladiator", metric: leaderboard.TradeCount},
	{title: "Precision Master", metric: leaderboard.WinRate, minTrades: MinPrecisionTrades},
	{title: "Top Gainer", metric: leaderboard.PercentGain},
}

// HallOfFame names the leader of each category over window. Categories nobody
// qualifies for are left out.
func (e *Engine) HallOfFame(ctx context.Context, window period.Window) ([]Legend, error) {
	groups, err := e.aggregate(ctx, store.TradeFilter{Window: window}, stats.ByIdentity)
	if err != nil {
		return nil, err
	}
	legends := make([]Legend, 0, len(hallCategories))
	if groups.Len() == 0 {
		return legends, nil
	}
	for _, c := range hallCategories {
		limit := 1
		if c.minTrades > 0 {
			limit = groups.Len()
		}
		entries, err := leaderboard.Build(groups, c.metric, limit)
		if err != nil {
			return nil, err
		}
		for _, en := range entries {
			if en.Stats.TradeCount < c.minTrades {
				continue
			}
			en.Rank = 1
			legends = append(legends, Legend{Title: c.title, Metric: c.metric, Entry: en})
			break
		}
	}
	return legends, nil
}

// TopGainer returns the trader with the best single-trade percent gain in window.
func (e *Engine) TopGainer(ctx context.Context, window period.Window) (*leaderboard.Entry, error) {
	entries, err := e.GetLeaderboard(ctx, window, leaderboard.PercentGain, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("top gainer: %w", errs.ErrNotFound)
	}
	return &entries[0], nil
}
