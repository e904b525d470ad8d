package battle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pnl-arena/internal/errs"
	"pnl-arena/internal/identity"
	"pnl-arena/internal/ledger"
	"pnl-arena/internal/models"
	"pnl-arena/internal/period"
	"pnl-arena/internal/stats"
	"pnl-arena/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// errLostRace aborts a completion transaction whose battle left the active state
// between scoring and the conditional update.
var errLostRace = errors.New("battle no longer active")

// Options tunes a Manager. Zero values fall back to defaults.
type Options struct {
	MinDuration time.Duration
	MaxDuration time.Duration
	Now         func() time.Time
}

// CreateParams describes a new battle. Participants are raw handles.
type CreateParams struct {
	Kind         string
	Creator      string
	Participants []string
	Window       period.Window
}

// Manager drives the battle lifecycle: create, score, complete and cancel.
// The battle store and the ledger must share one database so completion and crediting
// commit together.
type Manager struct {
	battles store.BattleStore
	trades  store.TradeStore
	ledger  *ledger.Ledger
	logger  *zap.Logger

	minDuration time.Duration
	maxDuration time.Duration
	now         func() time.Time

	completions singleflight.Group
}

// NewManager creates a battle manager.
func NewManager(battles store.BattleStore, trades store.TradeStore, l *ledger.Ledger, logger *zap.Logger, opts Options) *Manager {
	m := &Manager{
		battles:     battles,
		trades:      trades,
		ledger:      l,
		logger:      logger.Named("battle"),
		minDuration: opts.MinDuration,
		maxDuration: opts.MaxDuration,
		now:         opts.Now,
	}
	if m.minDuration <= 0 {
		m.minDuration = DefaultMinDuration
	}
	if m.maxDuration <= 0 {
		m.maxDuration = DefaultMaxDuration
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Bounds returns the allowed battle length range.
func (m *Manager) Bounds() (time.Duration, time.Duration) {
	return m.minDuration, m.maxDuration
}

// Create validates and stores a new active battle.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Battle, error) {
	kind, err := ParseKind(p.Kind)
	if err != nil {
		return nil, err
	}
	participants, err := ValidateParticipants(p.Participants)
	if err != nil {
		return nil, err
	}
	if p.Window.Start.IsZero() || p.Window.End.IsZero() {
		return nil, fmt.Errorf("%w: battle window must be bounded", errs.ErrInvalidConfiguration)
	}
	if err := m.ValidateDuration(p.Window.Duration()); err != nil {
		return nil, err
	}

	row := &models.Battle{
		BattleID: uuid.NewString(),
		Kind:     kind,
		Creator:  identity.Canonicalize(p.Creator),
		StartAt:  p.Window.Start.UTC(),
		EndAt:    p.Window.End.UTC(),
		Status:   models.BattleActive,
	}
	for i, part := range participants {
		row.Participants = append(row.Participants, models.BattleParticipant{
			CanonicalIdentity: part.CanonicalIdentity,
			Handle:            part.Handle,
			Seat:              i,
		})
	}
	if err := m.battles.CreateBattle(ctx, row); err != nil {
		return nil, err
	}

	m.logger.Info("Battle created",
		zap.String("battle_id", row.BattleID),
		zap.String("kind", kind),
		zap.Int("participants", len(participants)),
		zap.Time("end_at", row.EndAt))
	return fromModel(row)
}

// ValidateParticipants canonicalizes raw handles and enforces the participant count.
// Two handles that canonicalize to the same identity are rejected.
func ValidateParticipants(raw []string) ([]Participant, error) {
	if len(raw) < MinParticipants || len(raw) > MaxParticipants {
		return nil, fmt.Errorf("%w: battles need %d-%d participants, got %d",
			errs.ErrInvalidConfiguration, MinParticipants, MaxParticipants, len(raw))
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]Participant, 0, len(raw))
	for _, h := range raw {
		canonical := identity.Canonicalize(h)
		if canonical == "" {
			return nil, fmt.Errorf("%w: empty participant handle", errs.ErrInvalidConfiguration)
		}
		if _, dup := seen[canonical]; dup {
			return nil, fmt.Errorf("%w: duplicate participant %q", errs.ErrInvalidConfiguration, h)
		}
		seen[canonical] = struct{}{}
		out = append(out, Participant{CanonicalIdentity: canonical, Handle: identity.Display(h)})
	}
	return out, nil
}

// ValidateDuration checks d against the configured bounds.
func (m *Manager) ValidateDuration(d time.Duration) error {
	if d < m.minDuration || d > m.maxDuration {
		return fmt.Errorf("%w: battle length %s outside [%s, %s]",
			errs.ErrInvalidConfiguration, d, FormatDuration(m.minDuration), FormatDuration(m.maxDuration))
	}
	return nil
}

// Get loads a battle by id.
func (m *Manager) Get(ctx context.Context, battleID string) (*Battle, error) {
	row, err := m.battles.GetBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	return fromModel(row)
}

// ListActive returns every active battle, soonest to end first.
func (m *Manager) ListActive(ctx context.Context) ([]*Battle, error) {
	rows, err := m.battles.ListActiveBattles(ctx)
	if err != nil {
		return nil, err
	}
	return fromModels(rows)
}

// History returns the battles raw took part in, newest first.
func (m *Manager) History(ctx context.Context, raw string, limit int) ([]*Battle, error) {
	rows, err := m.battles.ListBattlesByParticipant(ctx, identity.Canonicalize(raw), limit)
	if err != nil {
		return nil, err
	}
	return fromModels(rows)
}

// LiveScore scores every participant over the battle window, in seat order.
// A participant without trades scores zero. Any store failure fails the whole score.
func (m *Manager) LiveScore(ctx context.Context, b *Battle) ([]Score, error) {
	window := period.Window{Start: b.StartAt, End: b.EndAt}
	scores := make([]Score, len(b.Participants))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range b.Participants {
		g.Go(func() error {
			pred := identity.Predicate{Canonical: p.CanonicalIdentity}
			records, err := m.trades.Query(gctx, store.TradeFilter{Predicate: &pred, Window: window})
			if err != nil {
				return fmt.Errorf("score %s: %w", p.CanonicalIdentity, err)
			}
			groups, err := stats.Aggregate(records, stats.ByNone)
			if err != nil {
				return err
			}
			s := Score{Participant: p}
			if all, ok := groups.Get(stats.AllKey); ok {
				s.TradeCount = all.TradeCount
				s.TotalProfit = all.TotalProfit
			}
			if b.Kind == models.KindVolume {
				s.Value = decimal.NewFromInt(s.TradeCount)
			} else {
				s.Value = s.TotalProfit
			}
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// Standings ranks the live scores without crediting anything.
func (m *Manager) Standings(ctx context.Context, b *Battle) ([]Ranking, error) {
	scores, err := m.LiveScore(ctx, b)
	if err != nil {
		return nil, err
	}
	return Rank(scores), nil
}

// PollExpired returns every active battle whose window has closed.
func (m *Manager) PollExpired(ctx context.Context) ([]*Battle, error) {
	rows, err := m.battles.ListExpiredBattles(ctx, m.now())
	if err != nil {
		return nil, err
	}
	return fromModels(rows)
}

// Complete settles a battle whose window has closed: it ranks the participants, credits the
// ledger and stores the result in one transaction. A battle still running is refused with
// ErrInvalidConfiguration. Completing a settled battle returns its stored result;
// a battle closed without a result yields ErrAlreadyFinalized.
func (m *Manager) Complete(ctx context.Context, battleID string) (*Result, error) {
	v, err, shared := m.completions.Do(battleID, func() (any, error) {
		return m.complete(ctx, battleID)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.logger.Debug("Joined in-flight completion", zap.String("battle_id", battleID))
	}
	return v.(*Result), nil
}

func (m *Manager) complete(ctx context.Context, battleID string) (*Result, error) {
	b, err := m.Get(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if !b.Active() {
		return settled(b)
	}
	if now := m.now(); now.Before(b.EndAt) {
		return nil, fmt.Errorf("%w: battle %s is still running for %s",
			errs.ErrInvalidConfiguration, b.ID, b.Remaining(now).Round(time.Second))
	}

	// Scoring reads only; a failure here leaves the battle active for the next poll.
	rankings, err := m.Standings(ctx, b)
	if err != nil {
		return nil, err
	}

	result := &Result{
		BattleID:    b.ID,
		Kind:        b.Kind,
		Rankings:    rankings,
		CompletedAt: m.now().UTC(),
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode battle result: %w", err)
	}

	err = m.battles.InTx(ctx, func(tx *gorm.DB) error {
		ok, err := m.battles.FinalizeBattleTx(ctx, tx, b.ID, payload, result.CompletedAt)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		for _, r := range rankings {
			_, err := m.ledger.CreditTx(ctx, tx, store.Credit{
				BattleID:          b.ID,
				CanonicalIdentity: r.CanonicalIdentity,
				Handle:            r.Handle,
				Kind:              b.Kind,
				Points:            r.Points,
				Won:               r.Won,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		// Another process settled the battle first.
		current, err := m.Get(ctx, battleID)
		if err != nil {
			return nil, err
		}
		return settled(current)
	}
	if err != nil {
		return nil, err
	}

	m.logger.Info("Battle completed",
		zap.String("battle_id", b.ID),
		zap.String("kind", b.Kind),
		zap.Int("winners", len(result.Winners())))
	return result, nil
}

func settled(b *Battle) (*Result, error) {
	if b.Result != nil {
		return b.Result, nil
	}
	return nil, fmt.Errorf("battle %s is %s: %w", b.ID, b.Status, errs.ErrAlreadyFinalized)
}

// Cancel closes an active battle without awarding points. It is refused once any
// participant has a trade inside the window.
func (m *Manager) Cancel(ctx context.Context, battleID string) (*Battle, error) {
	b, err := m.Get(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if !b.Active() {
		return nil, fmt.Errorf("battle %s is %s: %w", b.ID, b.Status, errs.ErrAlreadyFinalized)
	}

	scores, err := m.LiveScore(ctx, b)
	if err != nil {
		return nil, err
	}
	for _, s := range scores {
		if s.TradeCount > 0 {
			return nil, fmt.Errorf("%w: battle %s already has trades", errs.ErrInvalidConfiguration, b.ID)
		}
	}

	ok, err := m.battles.CancelBattle(ctx, b.ID, m.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("battle %s: %w", b.ID, errs.ErrAlreadyFinalized)
	}
	m.logger.Info("Battle cancelled", zap.String("battle_id", b.ID))
	return m.Get(ctx, b.ID)
}

func fromModels(rows []models.Battle) ([]*Battle, error) {
	out := make([]*Battle, 0, len(rows))
	for i := range rows {
		b, err := fromModel(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
