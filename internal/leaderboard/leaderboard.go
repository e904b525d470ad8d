// Package leaderboard orders aggregated stats by a chosen metric.
package leaderboard

import (
	"fmt"
	"sort"

	"pnl-arena/internal/errs"
	"pnl-arena/internal/stats"

	"github.com/shopspring/decimal"
)

// Metric selects the ranking field and direction.
type Metric string

const (
	ProfitUSD       Metric = "profit_usd"
	ROI             Metric = "roi"
	TradeCount      Metric = "trade_count"
	InvestmentTotal Metric = "investment_total"
	PercentGain     Metric = "percent_gain"
	LossUSD         Metric = "loss_usd"
	WinRate         Metric = "win_rate"
)

// MinConsistencyTrades is the trade count a trader needs to appear on the win_rate board.
const MinConsistencyTrades = 3

type metricSpec struct {
	value     func(*stats.Stats) decimal.Decimal
	eligible  func(*stats.Stats) bool
	ascending bool
}

var metricSpecs = map[Metric]metricSpec{
	ProfitUSD: {
		value: func(s *stats.Stats) decimal.Decimal { return s.TotalProfit },
	},
	ROI: {
		value:    func(s *stats.Stats) decimal.Decimal { return decimal.NewFromFloat(s.ROI) },
		eligible: func(s *stats.Stats) bool { return s.TotalInvestment.IsPositive() },
	},
	TradeCount: {
		value: func(s *stats.Stats) decimal.Decimal { return decimal.NewFromInt(s.TradeCount) },
	},
	InvestmentTotal: {
		value: func(s *stats.Stats) decimal.Decimal { return s.TotalInvestment },
	},
	PercentGain: {
		value:    func(s *stats.Stats) decimal.Decimal { return decimal.NewFromFloat(s.BestPercentGain) },
		eligible: func(s *stats.Stats) bool { return s.HasPercentGain },
	},
	LossUSD: {
		value:     func(s *stats.Stats) decimal.Decimal { return s.Worst },
		eligible:  func(s *stats.Stats) bool { return s.LosingCount > 0 },
		ascending: true,
	},
	WinRate: {
		value:    func(s *stats.Stats) decimal.Decimal { return decimal.NewFromFloat(s.WinRate) },
		eligible: func(s *stats.Stats) bool { return s.TradeCount >= MinConsistencyTrades },
	},
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	_, ok := metricSpecs[m]
	return ok
}

// Ascending reports whether lower values rank first.
func (m Metric) Ascending() bool {
	return metricSpecs[m].ascending
}

// ParseMetric validates a metric name.
func ParseMetric(name string) (Metric, error) {
	m := Metric(name)
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown metric %q", errs.ErrInvalidConfiguration, name)
	}
	return m, nil
}

// Entry is one ranked row.
type Entry struct {
	Rank    int             `json:"rank"`
	Key     string          `json:"key"`
	Display string          `json:"display"`
	Value   decimal.Decimal `json:"value"`
	Stats   *stats.Stats    `json:"stats"`
}

// Build ranks groups by metric and keeps the first limit rows.
// Groups without a defined value for the metric are excluded, not ranked last.
func Build(groups *stats.Groups, metric Metric, limit int) ([]Entry, error) {
	spec, ok := metricSpecs[metric]
	if !ok {
		return nil, fmt.Errorf("%w: unknown metric %q", errs.ErrInvalidConfiguration, metric)
	}
	if err := ValidateLimit(limit); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, groups.Len())
	for _, s := range groups.All() {
		if spec.eligible != nil && !spec.eligible(s) {
			continue
		}
		entries = append(entries, Entry{Key: s.Key, Display: s.Display, Value: spec.value(s), Stats: s})
	}

	Order(entries, func(e Entry) decimal.Decimal { return e.Value }, spec.ascending)

	entries = Truncate(entries, limit)
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// ValidateLimit rejects non-positive limits.
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", errs.ErrInvalidConfiguration, limit)
	}
	return nil
}

// Order stable-sorts items by value. Equal values keep their incoming order.
func Order[T any](items []T, value func(T) decimal.Decimal, ascending bool) {
	sort.SliceStable(items, func(i, j int) bool {
		c := value(items[i]).Cmp(value(items[j]))
		if ascending {
			return c < 0
		}
		return c > 0
	})
}

// Truncate keeps at most limit items.
func Truncate[T any](items []T, limit int) []T {
	if limit < len(items) {
		return items[:limit]
	}
	return items
}
