package engine

import (
	"context"
	"errors"
	"time"

	"pnl-arena/internal/battle"
	"pnl-arena/internal/errs"
	"pnl-arena/internal/identity"
	"pnl-arena/internal/ledger"
	"pnl-arena/internal/period"

	"go.uber.org/zap"
)

// CreateBattle starts a battle that runs from now for length.
func (e *Engine) CreateBattle(ctx context.Context, kind, creator string, participants []string, length time.Duration) (*battle.Battle, error) {
	now := e.Now()
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.battles.Create(ctx, battle.CreateParams{
		Kind:         kind,
		Creator:      creator,
		Participants: participants,
		Window:       period.Window{Start: now, End: now.Add(length)},
	})
}

func (e *Engine) GetBattle(ctx context.Context, battleID string) (*battle.Battle, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.battles.Get(ctx, battleID)
}

func (e *Engine) ListActiveBattles(ctx context.Context) ([]*battle.Battle, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.battles.ListActive(ctx)
}

// BattleStandings returns the live ranking of an active battle, or the stored ranking of
// a completed one.
func (e *Engine) BattleStandings(ctx context.Context, battleID string) ([]battle.Ranking, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	b, err := e.battles.Get(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if b.Result != nil {
		return b.Result.Rankings, nil
	}
	return e.battles.Standings(ctx, b)
}

// PollExpired lists the active battles whose window has closed.
func (e *Engine) PollExpired(ctx context.Context) ([]*battle.Battle, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.battles.PollExpired(ctx)
}

// CompleteBattle settles a battle and credits the ledger exactly once.
func (e *Engine) CompleteBattle(ctx context.Context, battleID string) (*battle.Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.battles.Complete(ctx, battleID)
}

// CompleteExpired settles every expired battle. Each battle gets its own store deadline.
func (e *Engine) CompleteExpired(ctx context.Context) ([]*battle.Result, error) {
	expired, err := e.PollExpired(ctx)
	if err != nil {
		return nil, err
	}
	var results []*battle.Result
	var failed int
	for _, b := range expired {
		r, err := e.CompleteBattle(ctx, b.ID)
		if errors.Is(err, errs.ErrAlreadyFinalized) {
			continue
		}
		if err != nil {
			failed++
			e.logger.Warn("Battle completion failed",
				zap.String("battle_id", b.ID),
				zap.Bool("retryable", IsRetryable(err)),
				zap.Error(err))
			continue
		}
		results = append(results, r)
	}
	if len(expired) > 0 {
		e.logger.Info("Expired battles processed",
			zap.Int("expired", len(expired)),
			zap.Int("completed", len(results)),
			zap.Int("failed", failed))
	}
	return results, nil
}

// CancelBattle closes a battle that nobody has traded in yet.
func (e *Engine) CancelBattle(ctx context.Context, battleID string) (*battle.Battle, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.battles.Cancel(ctx, battleID)
}

// GetBattleLeaderboard ranks ledger entries by points of kind.
func (e *Engine) GetBattleLeaderboard(ctx context.Context, kind ledger.Kind, limit int) ([]ledger.Entry, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.ledger.Leaderboard(ctx, kind, limit)
}

// BattleRecord is a trader's battle career.
type BattleRecord struct {
	Entry  ledger.Entry     `json:"entry"`
	Rank   int              `json:"rank,omitempty"`
	Ranked bool             `json:"ranked"`
	Recent []*battle.Battle `json:"recent"`
}

// GetBattleRecord returns ledger points, overall rank and recent battles for handle.
func (e *Engine) GetBattleRecord(ctx context.Context, handle string, recent int) (*BattleRecord, error) {
	if _, err := identity.MatchPredicate("", handle); err != nil {
		return nil, err
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	entry, err := e.ledger.Entry(ctx, handle)
	if err != nil {
		return nil, err
	}
	rank, ranked, err := e.ledger.RankOf(ctx, handle)
	if err != nil {
		return nil, err
	}
	history, err := e.battles.History(ctx, handle, recent)
	if err != nil {
		return nil, err
	}
	entry.Rank = rank
	return &BattleRecord{Entry: entry, Rank: rank, Ranked: ranked, Recent: history}, nil
}
