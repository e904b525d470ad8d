package stats

import (
	"sort"

	"pnl-arena/internal/models"
)

// Streak kinds reported in Streaks.Type.
const (
	StreakWinning = "winning"
	StreakLosing  = "losing"
	StreakNeutral = "neutral"
)

// Streaks summarizes consecutive wins and losses in chronological order.
// A trade with profit <= 0 breaks a winning streak.
type Streaks struct {
	Current     int    `json:"current"`
	Type        string `json:"type"`
	LongestWin  int    `json:"longest_win"`
	LongestLoss int    `json:"longest_loss"`
}

// ComputeStreaks walks records oldest first. The input slice is not reordered.
func ComputeStreaks(records []models.TradeRecord) Streaks {
	ordered := make([]models.TradeRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
	})

	var out Streaks
	var wins, losses int
	for _, r := range ordered {
		if r.ProfitAmount.IsPositive() {
			wins++
			losses = 0
			out.LongestWin = max(out.LongestWin, wins)
		} else {
			losses++
			wins = 0
			out.LongestLoss = max(out.LongestLoss, losses)
		}
	}

	switch {
	case wins > 0:
		out.Current, out.Type = wins, StreakWinning
	case losses > 0:
		out.Current, out.Type = losses, StreakLosing
	default:
		out.Type = StreakNeutral
	}
	return out
}
