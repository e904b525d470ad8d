package stats

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Achievement is a badge earned by crossing a threshold.
type Achievement struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type achievementRule struct {
	Achievement
	earned func(*Stats) bool
}

func minTrades(n int64) func(*Stats) bool {
	return func(s *Stats) bool { return s.TradeCount >= n }
}

func minProfit(usd int64) func(*Stats) bool {
	return func(s *Stats) bool { return s.TotalProfit.GreaterThanOrEqual(decimal.NewFromInt(usd)) }
}

func minWinRate(pct float64) func(*Stats) bool {
	return func(s *Stats) bool { return s.TradeCount > 0 && s.WinRate >= pct }
}

func minROI(pct float64) func(*Stats) bool {
	return func(s *Stats) bool { return s.TradeCount > 0 && s.ROI >= pct }
}

// Rules are listed in display order.
var achievementRules = []achievementRule{
	{Achievement{"First Trade", "volume"}, minTrades(1)},
	{Achievement{"Ten Trades", "volume"}, minTrades(10)},
	{Achievement{"Active Trader", "volume"}, minTrades(50)},
	{Achievement{"Trading Veteran", "volume"}, minTrades(100)},
	{Achievement{"First $100", "profit"}, minProfit(100)},
	{Achievement{"Thousand Club", "profit"}, minProfit(1_000)},
	{Achievement{"Ten K Club", "profit"}, minProfit(10_000)},
	{Achievement{"Balanced Trader", "win_rate"}, minWinRate(50)},
	{Achievement{"Sharp Shooter", "win_rate"}, minWinRate(70)},
	{Achievement{"Almost Perfect", "win_rate"}, minWinRate(90)},
	{Achievement{"Growth Hacker", "roi"}, minROI(50)},
	{Achievement{"Double Down", "roi"}, minROI(100)},
}

// Achievements lists the badges s has earned.
func Achievements(s *Stats) []Achievement {
	out := []Achievement{}
	if s == nil {
		return out
	}
	for _, r := range achievementRules {
		if r.earned(s) {
			out = append(out, r.Achievement)
		}
	}
	return out
}

// NextMilestone describes the next goal for s. Goals are checked in order: trade count,
// then profit, then win rate.
func NextMilestone(s *Stats) string {
	if s == nil || s.TradeCount < 1 {
		return "First Trade"
	}
	if s.TradeCount < 10 {
		return fmt.Sprintf("Reach 10 trades (%d to go)", 10-s.TradeCount)
	}
	for _, goal := range []int64{100, 1_000} {
		target := decimal.NewFromInt(goal)
		if s.TotalProfit.LessThan(target) {
			return fmt.Sprintf("Reach $%d profit ($%s to go)", goal, target.Sub(s.TotalProfit).StringFixed(2))
		}
	}
	if s.WinRate < 70 {
		return fmt.Sprintf("Reach 70%% win rate (%.1f%% to go)", 70-s.WinRate)
	}
	return "Master Trader Status!"
}
