package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pnl-arena/internal/errs"
	"pnl-arena/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements TradeStore, LedgerStore and BattleStore on a single gorm connection.
type Store struct {
	db *gorm.DB
}

var (
	_ TradeStore  = (*Store)(nil)
	_ LedgerStore = (*Store)(nil)
	_ BattleStore = (*Store)(nil)
)

// New wraps db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InTx runs fn in a transaction. fn must use only tx.
func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- trades -----------------------------------------------------------------

func (s *Store) Append(ctx context.Context, rec *models.TradeRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil trade record", errs.ErrInvalidConfiguration)
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return transient("append trade", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error) {
	query := s.db.WithContext(ctx).Model(&models.TradeRecord{})

	if p := filter.Predicate; p != nil {
		switch {
		case p.Canonical != "" && p.AccountID != "":
			query = query.Where("(canonical_identity = ? OR account_id = ?)", p.Canonical, p.AccountID)
		case p.AccountID != "":
			query = query.Where("account_id = ?", p.AccountID)
		default:
			query = query.Where("canonical_identity = ?", p.Canonical)
		}
	}
	if !filter.Window.Start.IsZero() {
		query = query.Where("occurred_at >= ?", filter.Window.Start.UTC())
	}
	if !filter.Window.End.IsZero() {
		query = query.Where("occurred_at < ?", filter.Window.End.UTC())
	}
	if asset := strings.TrimSpace(filter.Asset); asset != "" {
		query = query.Where("asset = ?", strings.ToUpper(asset))
	}

	// Amounts are stored as exact decimal text, so bounds compare numerically.
	if !filter.MinInvestment.IsZero() {
		query = query.Where("CAST(invested_amount AS NUMERIC) >= ?", filter.MinInvestment)
	}
	if !filter.MaxInvestment.IsZero() {
		query = query.Where("CAST(invested_amount AS NUMERIC) <= ?", filter.MaxInvestment)
	}

	if filter.Newest {
		query = query.Order("occurred_at desc").Order("id desc")
	} else {
		query = query.Order("occurred_at asc").Order("id asc")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var items []models.TradeRecord
	if err := query.Find(&items).Error; err != nil {
		return nil, transient("query trades", err)
	}
	return items, nil
}

// --- ledger -----------------------------------------------------------------

// CreditTx journals the credit and, only if this (battle, identity) pair was not credited
// before, increments the identity's ledger entry. It reports whether points were applied.
func (s *Store) CreditTx(ctx context.Context, tx *gorm.DB, c Credit) (bool, error) {
	journal := models.LedgerCredit{
		BattleID:          c.BattleID,
		CanonicalIdentity: c.CanonicalIdentity,
		Kind:              c.Kind,
		Points:            c.Points,
		Won:               c.Won,
	}
	res := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "battle_id"}, {Name: "canonical_identity"}},
		DoNothing: true,
	}).Create(&journal)
	if res.Error != nil {
		return false, transient("journal credit", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	entry := models.LedgerEntry{
		CanonicalIdentity:   c.CanonicalIdentity,
		Handle:              c.Handle,
		BattlesParticipated: 1,
	}
	if c.Won {
		entry.BattlesWon = 1
	}
	switch c.Kind {
	case models.KindVolume:
		entry.VolumePoints = c.Points
	default:
		entry.ProfitPoints = c.Points
	}

	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "canonical_identity"}},
		DoUpdates: clause.Assignments(map[string]any{
			"handle":               entry.Handle,
			"profit_points":        gorm.Expr("ledger_entries.profit_points + ?", entry.ProfitPoints),
			"volume_points":        gorm.Expr("ledger_entries.volume_points + ?", entry.VolumePoints),
			"battles_participated": gorm.Expr("ledger_entries.battles_participated + ?", entry.BattlesParticipated),
			"battles_won":          gorm.Expr("ledger_entries.battles_won + ?", entry.BattlesWon),
			"updated_at":           time.Now().UTC(),
		}),
	}).Create(&entry).Error
	if err != nil {
		return false, transient("credit ledger entry", err)
	}
	return true, nil
}

func (s *Store) GetEntry(ctx context.Context, canonical string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := s.db.WithContext(ctx).Where("canonical_identity = ?", canonical).First(&entry).Error
	if err != nil {
		return nil, notFoundOr("get ledger entry", err)
	}
	return &entry, nil
}

// ListEntries returns every ledger entry in insertion order.
func (s *Store) ListEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	var items []models.LedgerEntry
	if err := s.db.WithContext(ctx).Order("id asc").Find(&items).Error; err != nil {
		return nil, transient("list ledger entries", err)
	}
	return items, nil
}

// --- battles ----------------------------------------------------------------

func (s *Store) CreateBattle(ctx context.Context, b *models.Battle) error {
	if b == nil {
		return fmt.Errorf("%w: nil battle", errs.ErrInvalidConfiguration)
	}
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return transient("create battle", err)
	}
	return nil
}

func (s *Store) GetBattle(ctx context.Context, battleID string) (*models.Battle, error) {
	var b models.Battle
	err := s.withParticipants(ctx).Where("battle_id = ?", battleID).First(&b).Error
	if err != nil {
		return nil, notFoundOr("get battle", err)
	}
	return &b, nil
}

func (s *Store) ListActiveBattles(ctx context.Context) ([]models.Battle, error) {
	var items []models.Battle
	err := s.withParticipants(ctx).
		Where("status = ?", models.BattleActive).
		Order("end_at asc").
		Find(&items).Error
	if err != nil {
		return nil, transient("list active battles", err)
	}
	return items, nil
}

// ListExpiredBattles returns active battles whose window closed at or before now.
func (s *Store) ListExpiredBattles(ctx context.Context, now time.Time) ([]models.Battle, error) {
	var items []models.Battle
	err := s.withParticipants(ctx).
		Where("status = ?", models.BattleActive).
		Where("end_at <= ?", now.UTC()).
		Order("end_at asc").
		Find(&items).Error
	if err != nil {
		return nil, transient("list expired battles", err)
	}
	return items, nil
}

// FinalizeBattleTx moves an active battle to completed with its result. It reports false
// when the battle was no longer active, leaving the row untouched.
func (s *Store) FinalizeBattleTx(ctx context.Context, tx *gorm.DB, battleID string, result datatypes.JSON, at time.Time) (bool, error) {
	completedAt := at.UTC()
	res := tx.WithContext(ctx).Model(&models.Battle{}).
		Where("battle_id = ? AND status = ?", battleID, models.BattleActive).
		Updates(map[string]any{
			"status":       models.BattleCompleted,
			"result":       result,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return false, transient("finalize battle", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) CancelBattle(ctx context.Context, battleID string, at time.Time) (bool, error) {
	closedAt := at.UTC()
	res := s.db.WithContext(ctx).Model(&models.Battle{}).
		Where("battle_id = ? AND status = ?", battleID, models.BattleActive).
		Updates(map[string]any{
			"status":       models.BattleCancelled,
			"completed_at": closedAt,
		})
	if res.Error != nil {
		return false, transient("cancel battle", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListBattlesByParticipant returns the battles canonical took part in, newest first.
func (s *Store) ListBattlesByParticipant(ctx context.Context, canonical string, limit int) ([]models.Battle, error) {
	seats := s.db.WithContext(ctx).Model(&models.BattleParticipant{}).
		Select("battle_id").
		Where("canonical_identity = ?", canonical)

	query := s.withParticipants(ctx).
		Where("battle_id IN (?)", seats).
		Order("start_at desc").
		Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var items []models.Battle
	if err := query.Find(&items).Error; err != nil {
		return nil, transient("list battles by participant", err)
	}
	return items, nil
}

func (s *Store) withParticipants(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Participants", func(db *gorm.DB) *gorm.DB {
		return db.Order("seat asc")
	})
}

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, errs.ErrTransientStore, err)
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	}
	return transient(op, err)
}
