// Package stats aggregates trade records into per-group summary statistics.
//
// Aggregation is a pure function over an already-filtered record set; it never talks to a
// store. Callers narrow records by window and identity before handing them in.
package stats

import (
	"fmt"
	"time"

	"pnl-arena/internal/errs"
	"pnl-arena/internal/identity"
	"pnl-arena/internal/models"

	"github.com/shopspring/decimal"
)

// GroupBy selects the aggregation key.
type GroupBy string

const (
	ByIdentity GroupBy = "identity"
	ByAsset    GroupBy = "asset"
	ByNone     GroupBy = "none"
)

// AllKey is the single group key used by ByNone.
const AllKey = "all"

var hundred = decimal.NewFromInt(100)

// Valid reports whether g is a known grouping.
func (g GroupBy) Valid() bool {
	switch g {
	case ByIdentity, ByAsset, ByNone:
		return true
	default:
		return false
	}
}

// Stats is the summary of one group. It is recomputed on demand and never persisted.
type Stats struct {
	Key             string          `json:"key"`
	Display         string          `json:"display"`
	TradeCount      int64           `json:"trade_count"`
	TotalProfit     decimal.Decimal `json:"total_profit"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
	MaxInvestment   decimal.Decimal `json:"max_investment"`
	WinningCount    int64           `json:"winning_count"`
	LosingCount     int64           `json:"losing_count"`
	Best            decimal.Decimal `json:"best"`
	Worst           decimal.Decimal `json:"worst"`
	AvgProfit       decimal.Decimal `json:"avg_profit"`
	WinRate         float64         `json:"win_rate"`
	ROI             float64         `json:"roi"`
	BestPercentGain float64         `json:"best_percent_gain"`
	HasPercentGain  bool            `json:"-"`
	DistinctAssets  int             `json:"distinct_assets"`
	DistinctTraders int             `json:"distinct_traders"`
	FirstAt         time.Time       `json:"first_at"`
	LastAt          time.Time       `json:"last_at"`

	assets  map[string]struct{}
	traders map[string]struct{}
}

// Groups is an insertion-ordered map of group key to Stats.
// Key order is the order in which each key was first seen in the input.
type Groups struct {
	keys  []string
	byKey map[string]*Stats
}

// Len returns the number of groups.
func (g *Groups) Len() int {
	return len(g.keys)
}

// Keys returns the group keys in first-seen order.
func (g *Groups) Keys() []string {
	out := make([]string, len(g.keys))
	copy(out, g.keys)
	return out
}

// Get returns the stats for key.
func (g *Groups) Get(key string) (*Stats, bool) {
	s, ok := g.byKey[key]
	return s, ok
}

// All returns every group in first-seen order.
func (g *Groups) All() []*Stats {
	out := make([]*Stats, 0, len(g.keys))
	for _, k := range g.keys {
		out = append(out, g.byKey[k])
	}
	return out
}

// Aggregate folds records into groups in a single pass.
func Aggregate(records []models.TradeRecord, by GroupBy) (*Groups, error) {
	if !by.Valid() {
		return nil, fmt.Errorf("%w: unknown grouping %q", errs.ErrInvalidConfiguration, by)
	}

	groups := &Groups{byKey: make(map[string]*Stats)}
	for i := range records {
		r := &records[i]
		key, display := groupKey(r, by)
		s, ok := groups.byKey[key]
		if !ok {
			s = &Stats{
				Key:     key,
				Display: display,
				assets:  make(map[string]struct{}),
				traders: make(map[string]struct{}),
			}
			groups.byKey[key] = s
			groups.keys = append(groups.keys, key)
		}
		s.add(r)
	}

	for _, s := range groups.byKey {
		s.finish()
	}
	return groups, nil
}

func groupKey(r *models.TradeRecord, by GroupBy) (key, display string) {
	switch by {
	case ByIdentity:
		return identity.Canonicalize(r.IdentityRaw), r.IdentityRaw
	case ByAsset:
		return r.Asset, r.Asset
	default:
		return AllKey, AllKey
	}
}

func (s *Stats) add(r *models.TradeRecord) {
	profit := r.ProfitAmount
	invested := r.InvestedAmount

	if s.TradeCount == 0 || profit.GreaterThan(s.Best) {
		s.Best = profit
	}
	if s.TradeCount == 0 || profit.LessThan(s.Worst) {
		s.Worst = profit
	}
	if s.TradeCount == 0 || invested.GreaterThan(s.MaxInvestment) {
		s.MaxInvestment = invested
	}
	if s.FirstAt.IsZero() || r.OccurredAt.Before(s.FirstAt) {
		s.FirstAt = r.OccurredAt
	}
	if r.OccurredAt.After(s.LastAt) {
		s.LastAt = r.OccurredAt
	}

	s.TradeCount++
	s.TotalProfit = s.TotalProfit.Add(profit)
	s.TotalInvestment = s.TotalInvestment.Add(invested)

	switch profit.Sign() {
	case 1:
		s.WinningCount++
	case -1:
		s.LosingCount++
	}

	if invested.IsPositive() && profit.IsPositive() {
		gain := profit.Div(invested).Mul(hundred).InexactFloat64()
		if !s.HasPercentGain || gain > s.BestPercentGain {
			s.BestPercentGain = gain
			s.HasPercentGain = true
		}
	}

	s.assets[r.Asset] = struct{}{}
	s.traders[identity.Canonicalize(r.IdentityRaw)] = struct{}{}
}

func (s *Stats) finish() {
	s.DistinctAssets = len(s.assets)
	s.DistinctTraders = len(s.traders)
	s.WinRate = WinRate(s.WinningCount, s.TradeCount)
	s.ROI = ROI(s.TotalProfit, s.TotalInvestment)
	if s.TradeCount > 0 {
		s.AvgProfit = s.TotalProfit.Div(decimal.NewFromInt(s.TradeCount))
	}
}

// WinRate is wins/trades*100, or 0 without trades.
func WinRate(wins, trades int64) float64 {
	if trades <= 0 {
		return 0
	}
	return float64(wins) / float64(trades) * 100
}

// ROI is profit/investment*100, or 0 when investment is not positive.
func ROI(profit, investment decimal.Decimal) float64 {
	if !investment.IsPositive() {
		return 0
	}
	return profit.Div(investment).Mul(hundred).InexactFloat64()
}
