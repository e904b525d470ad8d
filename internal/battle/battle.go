// Package battle runs time-boxed competitions between traders and settles them into the
// points ledger.
package battle

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"pnl-arena/internal/errs"
	"pnl-arena/internal/models"

	"github.com/shopspring/decimal"
)

const (
	MinParticipants = 2
	MaxParticipants = 8
)

// Participation is awarded to every rank below the podium.
const participationPoints = 25

var podiumPoints = []int64{100, 75, 50}

// PointsForRank returns the ledger points for a 1-based competition rank.
func PointsForRank(rank int) int64 {
	if rank >= 1 && rank <= len(podiumPoints) {
		return podiumPoints[rank-1]
	}
	return participationPoints
}

// ParseKind validates a battle kind.
func ParseKind(kind string) (string, error) {
	switch kind {
	case models.KindProfit, models.KindVolume:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: unknown battle kind %q", errs.ErrInvalidConfiguration, kind)
	}
}

// Participant is one seat of a battle.
type Participant struct {
	CanonicalIdentity string `json:"canonical_identity"`
	Handle            string `json:"handle"`
}

// Score is a participant's live score. Profit battles score total profit, volume battles
// score trade count.
type Score struct {
	Participant
	Value       decimal.Decimal `json:"score"`
	TradeCount  int64           `json:"trade_count"`
	TotalProfit decimal.Decimal `json:"total_profit"`
}

// Ranking is one row of a ranked battle outcome.
type Ranking struct {
	Score
	Rank   int   `json:"rank"`
	Points int64 `json:"points"`
	Won    bool  `json:"won"`
}

// Result is the stored outcome of a completed battle.
type Result struct {
	BattleID    string    `json:"battle_id"`
	Kind        string    `json:"kind"`
	Rankings    []Ranking `json:"rankings"`
	CompletedAt time.Time `json:"completed_at"`
}

// Winners returns every rank-1 row.
func (r *Result) Winners() []Ranking {
	var out []Ranking
	for _, row := range r.Rankings {
		if row.Rank == 1 {
			out = append(out, row)
		}
	}
	return out
}

// Battle is the read model of a stored battle.
type Battle struct {
	ID           string        `json:"battle_id"`
	Kind         string        `json:"kind"`
	Creator      string        `json:"creator,omitempty"`
	Participants []Participant `json:"participants"`
	StartAt      time.Time     `json:"start_at"`
	EndAt        time.Time     `json:"end_at"`
	Status       string        `json:"status"`
	Result       *Result       `json:"result,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// Active reports whether the battle still accepts completion or cancellation.
func (b *Battle) Active() bool {
	return b.Status == models.BattleActive
}

// Remaining returns the time left before the window closes, never negative.
func (b *Battle) Remaining(now time.Time) time.Duration {
	if d := b.EndAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

func fromModel(m *models.Battle) (*Battle, error) {
	b := &Battle{
		ID:          m.BattleID,
		Kind:        m.Kind,
		Creator:     m.Creator,
		StartAt:     m.StartAt.UTC(),
		EndAt:       m.EndAt.UTC(),
		Status:      m.Status,
		CompletedAt: m.CompletedAt,
	}
	for _, p := range m.Participants {
		b.Participants = append(b.Participants, Participant{CanonicalIdentity: p.CanonicalIdentity, Handle: p.Handle})
	}
	if len(m.Result) > 0 && string(m.Result) != "null" {
		var r Result
		if err := json.Unmarshal(m.Result, &r); err != nil {
			return nil, fmt.Errorf("failed to decode result of battle %s: %w", m.BattleID, err)
		}
		b.Result = &r
	}
	return b, nil
}

// Rank orders scores descending, breaking ties by canonical identity for display.
// Tied scores share the better rank and its points; the following rank is skipped,
// so [100, 80, 80, 10] ranks 1, 2, 2, 4.
func Rank(scores []Score) []Ranking {
	rows := make([]Ranking, len(scores))
	for i, s := range scores {
		rows[i] = Ranking{Score: s}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].Value.Cmp(rows[j].Value); c != 0 {
			return c > 0
		}
		return rows[i].CanonicalIdentity < rows[j].CanonicalIdentity
	})
	for i := range rows {
		if i > 0 && rows[i].Value.Equal(rows[i-1].Value) {
			rows[i].Rank = rows[i-1].Rank
		} else {
			rows[i].Rank = i + 1
		}
		rows[i].Points = PointsForRank(rows[i].Rank)
		rows[i].Won = rows[i].Rank == 1
	}
	return rows
}
