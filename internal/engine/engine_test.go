package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pnl-arena/internal/battle"
	"pnl-arena/internal/database"
	"pnl-arena/internal/errs"
	"pnl-arena/internal/leaderboard"
	"pnl-arena/internal/ledger"
	"pnl-arena/internal/models"
	"pnl-arena/internal/period"
	"pnl-arena/internal/rates"
	"pnl-arena/internal/session"
	"pnl-arena/internal/stats"
	"pnl-arena/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 6, 3, 15, 0, 0, 0, time.UTC)

// MockConverter is a mock of rates.Converter.
type MockConverter struct {
	mock.Mock
}

func (m *MockConverter) SOLUSD(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockConverter) USDToSOL(ctx context.Context, usd decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, usd)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type fixture struct {
	engine *Engine
	rates  *MockConverter
	clock  time.Time
}

func setupEngine(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewMemory()
	require.NoError(t, err)

	f := &fixture{rates: new(MockConverter), clock: now}
	clock := func() time.Time { return f.clock }
	s := store.New(db)
	l := ledger.New(s, zap.NewNop())
	m := battle.NewManager(s, s, l, zap.NewNop(), battle.Options{Now: clock})
	f.engine = New(Deps{
		Trades:  s,
		Battles: m,
		Ledger:  l,
		Drafts:  session.NewDrafts(session.NewMemoryStore(), 15*time.Minute),
		Rates:   f.rates,
		Logger:  zap.NewNop(),
	}, Options{Now: clock})
	return f
}

func (f *fixture) submit(t *testing.T, handle, asset string, profit, investment float64, at time.Time) {
	t.Helper()
	_, err := f.engine.SubmitTrade(context.Background(), TradeInput{
		Handle:     handle,
		Asset:      asset,
		Profit:     decimal.NewFromFloat(profit),
		Investment: decimal.NewFromFloat(investment),
		OccurredAt: at,
	})
	require.NoError(t, err)
}

func TestTradeInput_Validate(t *testing.T) {
	valid := TradeInput{
		Handle:     "@alice",
		Asset:      " sol ",
		Profit:     decimal.NewFromInt(10),
		Investment: decimal.NewFromInt(100),
	}

	tests := []struct {
		name    string
		mutate  func(*TradeInput)
		wantErr bool
	}{
		{name: "valid", mutate: func(*TradeInput) {}},
		{name: "pair ticker", mutate: func(in *TradeInput) { in.Asset = "btc/usdt" }},
		{name: "negative profit", mutate: func(in *TradeInput) { in.Profit = decimal.NewFromInt(-50) }},
		{name: "profit at bound", mutate: func(in *TradeInput) { in.Profit = decimal.NewFromInt(-1_000_000) }},
		{name: "missing handle", mutate: func(in *TradeInput) { in.Handle = " @ " }, wantErr: true},
		{name: "bad ticker", mutate: func(in *TradeInput) { in.Asset = "SO L" }, wantErr: true},
		{name: "empty ticker", mutate: func(in *TradeInput) { in.Asset = "" }, wantErr: true},
		{name: "profit too large", mutate: func(in *TradeInput) { in.Profit = decimal.NewFromInt(1_000_001) }, wantErr: true},
		{name: "zero investment", mutate: func(in *TradeInput) { in.Investment = decimal.Zero }, wantErr: true},
		{name: "investment too large", mutate: func(in *TradeInput) { in.Investment = decimal.NewFromInt(2_000_000) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)

			out, err := in.Validate()

			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.ToUpper(strings.TrimSpace(in.Asset)), out.Asset)
		})
	}
}

func TestEngine_SubmitTrade(t *testing.T) {
	// Arrange
	f := setupEngine(t)
	ctx := context.Background()

	// Act
	rec, err := f.engine.SubmitTrade(ctx, TradeInput{
		Handle:     " @Alice ",
		AccountID:  "acct-1",
		Asset:      "sol",
		Profit:     decimal.NewFromInt(25),
		Investment: decimal.NewFromInt(100),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.CanonicalIdentity)
	assert.Equal(t, "SOL", rec.Asset)
	assert.True(t, rec.OccurredAt.Equal(now), "occurred_at defaults to the engine clock")

	history, err := f.engine.UserHistory(ctx, "", "ALICE", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "acct-1", history[0].AccountID)
}

func TestEngine_UserHistoryNewestFirst(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		f.submit(t, "bob", "ETH", float64(i), 10, now.Add(time.Duration(i)*time.Minute))
	}

	history, err := f.engine.UserHistory(ctx, "", "@bob", 3)

	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "3", history[0].ProfitAmount.String())
	assert.Equal(t, "1", history[2].ProfitAmount.String())

	_, err = f.engine.UserHistory(ctx, "", "", 3)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
	_, err = f.engine.UserHistory(ctx, "", "bob", 0)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestEngine_GetLeaderboard(t *testing.T) {
	// Arrange
	f := setupEngine(t)
	ctx := context.Background()
	f.submit(t, "alice", "SOL", 120, 100, now.Add(-time.Hour))
	f.submit(t, "bob", "SOL", -30, 100, now.Add(-time.Hour))
	f.submit(t, "carol", "BTC", 60, 200, now.Add(-time.Hour))
	f.submit(t, "dave", "BTC", 500, 100, now.Add(-40*24*time.Hour))

	tests := []struct {
		name   string
		window period.Window
		metric leaderboard.Metric
		want   []string
	}{
		{name: "profit all time", window: period.AllTime(), metric: leaderboard.ProfitUSD, want: []string{"dave", "alice", "carol", "bob"}},
		{name: "profit today", window: period.Day(now), metric: leaderboard.ProfitUSD, want: []string{"alice", "carol", "bob"}},
		{name: "losses today", window: period.Day(now), metric: leaderboard.LossUSD, want: []string{"bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			entries, err := f.engine.GetLeaderboard(ctx, tt.window, tt.metric, 10)

			// Assert
			require.NoError(t, err)
			var keys []string
			for _, e := range entries {
				keys = append(keys, e.Key)
			}
			assert.Equal(t, tt.want, keys)
		})
	}

	_, err := f.engine.GetLeaderboard(ctx, period.AllTime(), leaderboard.Metric("karma"), 10)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestEngine_AssetBoards(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.submit(t, "alice", "SOL", 10, 100, now)
	f.submit(t, "bob", "sol", 30, 100, now)
	f.submit(t, "carol", "BTC", 5, 100, now)

	assets, err := f.engine.AssetLeaderboard(ctx, period.AllTime(), leaderboard.TradeCount, 10)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "SOL", assets[0].Key)

	traders, err := f.engine.AssetTraders(ctx, "SOL", period.AllTime(), leaderboard.ProfitUSD, 10)
	require.NoError(t, err)
	require.Len(t, traders, 2)
	assert.Equal(t, "bob", traders[0].Key)

	s, err := f.engine.AssetStats(ctx, "sol", period.AllTime())
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.TradeCount)
	assert.Equal(t, 2, s.DistinctTraders)

	_, err = f.engine.AssetStats(ctx, "DOGE", period.AllTime())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestEngine_GetUserStats(t *testing.T) {
	// Arrange
	f := setupEngine(t)
	ctx := context.Background()
	f.submit(t, "alice", "SOL", 50, 100, now.Add(-2*time.Hour))
	f.submit(t, "alice", "BTC", 50, 100, now.Add(-time.Hour))
	f.rates.On("SOLUSD", mock.Anything).Return(decimal.NewFromInt(200), nil).Once()

	// Act
	us, err := f.engine.GetUserStats(ctx, "", "@alice", period.AllTime())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(2), us.Stats.TradeCount)
	assert.Equal(t, "100", us.Stats.TotalProfit.String())
	assert.Equal(t, 2, us.Streaks.LongestWin)
	require.NotNil(t, us.ProfitSOL)
	assert.Equal(t, "0.5", us.ProfitSOL.String())
	assert.Equal(t, []stats.Achievement{
		{Name: "First Trade", Category: "volume"},
		{Name: "First $100", Category: "profit"},
		{Name: "Balanced Trader", Category: "win_rate"},
		{Name: "Sharp Shooter", Category: "win_rate"},
		{Name: "Almost Perfect", Category: "win_rate"},
		{Name: "Growth Hacker", Category: "roi"},
	}, us.Achievements)
	assert.Equal(t, "Reach 10 trades (8 to go)", us.NextMilestone)
	f.rates.AssertExpectations(t)
}

func TestEngine_GetUserStatsByAccountOnly(t *testing.T) {
	// Arrange
	f := setupEngine(t)
	ctx := context.Background()
	_, err := f.engine.SubmitTrade(ctx, TradeInput{
		Handle:     "@Alice",
		AccountID:  "42",
		Asset:      "SOL",
		Profit:     decimal.NewFromInt(5),
		Investment: decimal.NewFromInt(100),
		OccurredAt: now,
	})
	require.NoError(t, err)
	f.rates.On("SOLUSD", mock.Anything).Return(decimal.NewFromInt(100), nil).Once()

	// Act
	us, err := f.engine.GetUserStats(ctx, "42", "", period.AllTime())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "alice", us.Stats.Key)
	assert.Equal(t, "@Alice", us.Handle)
	assert.Equal(t, "@Alice", us.Stats.Display)
	assert.Equal(t, int64(1), us.Stats.TradeCount)
}

func TestEngine_GetUserStatsWithoutRate(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.submit(t, "alice", "SOL", 50, 100, now)
	f.rates.On("SOLUSD", mock.Anything).Return(decimal.Zero, rates.ErrNoRate).Once()

	us, err := f.engine.GetUserStats(ctx, "", "alice", period.AllTime())

	require.NoError(t, err)
	assert.Equal(t, int64(1), us.Stats.TradeCount)
	assert.Nil(t, us.ProfitSOL)
	assert.Nil(t, us.SOLUSD)
}

func TestEngine_GetUserStatsUnknownTrader(t *testing.T) {
	f := setupEngine(t)

	us, err := f.engine.GetUserStats(context.Background(), "", "ghost", period.AllTime())

	require.NoError(t, err)
	assert.Equal(t, int64(0), us.Stats.TradeCount)
	assert.Empty(t, us.Achievements)
	assert.Equal(t, "First Trade", us.NextMilestone)
	assert.Nil(t, us.ProfitSOL)
	f.rates.AssertNotCalled(t, "SOLUSD", mock.Anything)
}

func TestEngine_CommunityStats(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	empty, err := f.engine.CommunityStats(ctx, period.AllTime())
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.TradeCount)

	f.submit(t, "alice", "SOL", 10, 100, now)
	f.submit(t, "bob", "BTC", -5, 100, now)

	s, err := f.engine.CommunityStats(ctx, period.AllTime())
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.TradeCount)
	assert.Equal(t, 2, s.DistinctTraders)
	assert.Equal(t, 2, s.DistinctAssets)
	assert.Equal(t, "5", s.TotalProfit.String())
}

func TestEngine_UserPortfolio(t *testing.T) {
	// Arrange
	f := setupEngine(t)
	ctx := context.Background()
	f.submit(t, "alice", "SOL", 10, 100, now.Add(-3*time.Hour))
	f.submit(t, "@alice", "WIF", 40, 50, now.Add(-2*time.Hour))
	f.submit(t, "alice", "SOL", 5, 100, now.Add(-time.Hour))
	f.submit(t, "alice", "BONK", -20, 25, now)
	f.submit(t, "bob", "BTC", 99, 100, now)

	// Act
	p, err := f.engine.UserPortfolio(ctx, "", "alice", period.AllTime())

	// Assert
	require.NoError(t, err)
	var assets []string
	for _, s := range p.Assets {
		assets = append(assets, s.Key)
	}
	assert.Equal(t, []string{"WIF", "SOL", "BONK"}, assets)
	assert.Equal(t, int64(2), p.Assets[1].TradeCount)
	assert.Equal(t, int64(4), p.TradeCount)
	assert.Equal(t, "35", p.TotalProfit.String())
	assert.Equal(t, "275", p.TotalInvestment.String())
	assert.Equal(t, 30, p.Diversification)
}

func TestEngine_UserPortfolioEmpty(t *testing.T) {
	f := setupEngine(t)

	p, err := f.engine.UserPortfolio(context.Background(), "", "ghost", period.AllTime())

	require.NoError(t, err)
	assert.Empty(t, p.Assets)
	assert.Equal(t, 0, p.Diversification)
	assert.True(t, p.TotalProfit.IsZero())

	_, err = f.engine.UserPortfolio(context.Background(), "", "", period.AllTime())
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestEngine_InvestmentLeaderboard(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.submit(t, "whale", "SOL", 500, 5000, now)
	f.submit(t, "alice", "SOL", 30, 100, now)
	f.submit(t, "alice", "SOL", 400, 2000, now)
	f.submit(t, "bob", "SOL", 50, 250, now)

	tests := []struct {
		name     string
		lo, hi   int64
		expected []string
		wantErr  bool
	}{
		{name: "open band", expected: []string{"whale", "alice", "bob"}},
		{name: "small tickets", lo: 0, hi: 250, expected: []string{"bob", "alice"}},
		{name: "mid band", lo: 200, hi: 2000, expected: []string{"alice", "bob"}},
		{name: "high rollers", lo: 2500, expected: []string{"whale"}},
		{name: "inverted band", lo: 500, hi: 100, wantErr: true},
		{name: "negative bound", lo: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := f.engine.InvestmentLeaderboard(ctx, period.AllTime(),
				decimal.NewFromInt(tt.lo), decimal.NewFromInt(tt.hi), leaderboard.ProfitUSD, 10)

			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			var got []string
			for _, e := range entries {
				got = append(got, e.Key)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEngine_HallOfFame(t *testing.T) {
	// Arrange
	f := setupEngine(t)
	ctx := context.Background()
	f.submit(t, "whale", "SOL", 900, 9000, now)
	f.submit(t, "sniper", "WIF", 300, 100, now)
	for i := 0; i < 12; i++ {
		f.submit(t, "grinder", "BONK", 1, 10, now.Add(-time.Duration(i)*time.Minute))
	}

	// Act
	legends, err := f.engine.HallOfFame(ctx, period.AllTime())

	// Assert
	require.NoError(t, err)
	got := map[string]string{}
	for _, l := range legends {
		assert.Equal(t, 1, l.Entry.Rank)
		got[l.Title] = l.Entry.Key
	}
	assert.Equal(t, map[string]string{
		"Profit Emperor":   "whale",
		"ROI Deity":        "sniper",
		"Volume Titan":     "whale",
		"Trade Gladiator":  "grinder",
		"Precision Master": "grinder",
		"Top Gainer":       "sniper",
	}, got)
}

func TestEngine_HallOfFameSkipsUnqualifiedCategories(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	empty, err := f.engine.HallOfFame(ctx, period.AllTime())
	require.NoError(t, err)
	assert.Empty(t, empty)

	f.submit(t, "alice", "SOL", -10, 100, now)
	legends, err := f.engine.HallOfFame(ctx, period.AllTime())
	require.NoError(t, err)
	var titles []string
	for _, l := range legends {
		titles = append(titles, l.Title)
	}
	assert.Equal(t, []string{"Profit Emperor", "ROI Deity", "Volume Titan", "Trade Gladiator"}, titles)
}

func TestEngine_TopGainer(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	_, err := f.engine.TopGainer(ctx, period.AllTime())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	f.submit(t, "alice", "SOL", 50, 100, now.Add(-48*time.Hour))
	f.submit(t, "bob", "SOL", 20, 100, now.Add(-time.Hour))
	f.submit(t, "carol", "SOL", 200, 10000, now.Add(-time.Hour))

	day := period.Window{Start: now.Add(-24 * time.Hour), End: now.Add(time.Minute)}
	top, err := f.engine.TopGainer(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "bob", top.Key)
	assert.InDelta(t, 20.0, top.Value.InexactFloat64(), 1e-9)

	top, err = f.engine.TopGainer(ctx, period.AllTime())
	require.NoError(t, err)
	assert.Equal(t, "alice", top.Key)
}

func TestEngine_BattleFlow(t *testing.T) {
	// Arrange
	f := setupEngine(t)
	ctx := context.Background()
	b, err := f.engine.CreateBattle(ctx, models.KindProfit, "alice", []string{"alice", "bob", "carol"}, time.Hour)
	require.NoError(t, err)
	f.submit(t, "alice", "SOL", 10, 100, now.Add(10*time.Minute))
	f.submit(t, "bob", "SOL", 40, 100, now.Add(20*time.Minute))
	f.submit(t, "carol", "SOL", 40, 100, now.Add(2*time.Hour))

	live, err := f.engine.BattleStandings(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, live, 3)
	assert.Equal(t, "bob", live[0].CanonicalIdentity)

	active, err := f.engine.ListActiveBattles(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// Act
	f.clock = now.Add(time.Hour)
	results, err := f.engine.CompleteExpired(ctx)

	// Assert
	require.NoError(t, err)
	require.Len(t, results, 1)
	winners := results[0].Winners()
	require.Len(t, winners, 1)
	assert.Equal(t, "bob", winners[0].CanonicalIdentity)

	again, err := f.engine.CompleteExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	stored, err := f.engine.BattleStandings(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, results[0].Rankings[0].Points, stored[0].Points)

	board, err := f.engine.GetBattleLeaderboard(ctx, ledger.Profit, 10)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "bob", board[0].CanonicalIdentity)
	assert.Equal(t, int64(100), board[0].ProfitPoints)

	record, err := f.engine.GetBattleRecord(ctx, "@Bob", 5)
	require.NoError(t, err)
	assert.True(t, record.Ranked)
	assert.Equal(t, 1, record.Rank)
	assert.Equal(t, int64(1), record.Entry.BattlesWon)
	require.Len(t, record.Recent, 1)
	assert.Equal(t, b.ID, record.Recent[0].ID)
}

func TestEngine_CompleteBattleTwiceReturnsStoredResult(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	b, err := f.engine.CreateBattle(ctx, models.KindVolume, "alice", []string{"alice", "bob"}, time.Hour)
	require.NoError(t, err)
	f.submit(t, "bob", "SOL", -1, 10, now.Add(time.Minute))
	f.clock = now.Add(time.Hour)

	first, err := f.engine.CompleteBattle(ctx, b.ID)
	require.NoError(t, err)
	second, err := f.engine.CompleteBattle(ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, first.BattleID, second.BattleID)
	assert.Equal(t, first.Rankings[0].CanonicalIdentity, second.Rankings[0].CanonicalIdentity)
	entry, err := f.engine.GetBattleRecord(ctx, "bob", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.Entry.VolumePoints)
	assert.Equal(t, int64(1), entry.Entry.BattlesParticipated)
}

func TestEngine_CreateBattleValidation(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		kind         string
		participants []string
		length       time.Duration
	}{
		{name: "unknown kind", kind: "karma", participants: []string{"a", "b"}, length: time.Hour},
		{name: "too few", kind: models.KindProfit, participants: []string{"a"}, length: time.Hour},
		{name: "duplicate", kind: models.KindProfit, participants: []string{"@a", "A"}, length: time.Hour},
		{name: "too short", kind: models.KindProfit, participants: []string{"a", "b"}, length: time.Minute},
		{name: "too long", kind: models.KindProfit, participants: []string{"a", "b"}, length: 30 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateBattle(ctx, tt.kind, tt.participants[0], tt.participants, tt.length)
			assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
		})
	}
}

func TestEngine_CancelBattle(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	b, err := f.engine.CreateBattle(ctx, models.KindProfit, "alice", []string{"alice", "bob"}, time.Hour)
	require.NoError(t, err)

	cancelled, err := f.engine.CancelBattle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BattleCancelled, cancelled.Status)

	_, err = f.engine.CancelBattle(ctx, b.ID)
	assert.ErrorIs(t, err, errs.ErrAlreadyFinalized)
	_, err = f.engine.CompleteBattle(ctx, b.ID)
	assert.ErrorIs(t, err, errs.ErrAlreadyFinalized)
}

func TestEngine_GetBattleRecordUnknown(t *testing.T) {
	f := setupEngine(t)

	record, err := f.engine.GetBattleRecord(context.Background(), "ghost", 5)

	require.NoError(t, err)
	assert.False(t, record.Ranked)
	assert.Empty(t, record.Recent)
	assert.Equal(t, int64(0), record.Entry.BattlesParticipated)
}

func TestEngine_SetupWizard(t *testing.T) {
	// Arrange
	f := setupEngine(t)
	ctx := context.Background()

	// Act
	d, err := f.engine.StartSetup(ctx, "@Alice", models.KindProfit)
	require.NoError(t, err)
	d, err = f.engine.SetupPlayerCount(ctx, d.ID, 3)
	require.NoError(t, err)
	d, err = f.engine.SetupDuration(ctx, d.ID, "2h")
	require.NoError(t, err)
	d, err = f.engine.SetupParticipants(ctx, d.ID, []string{"bob", "@carol"})
	require.NoError(t, err)
	assert.Equal(t, session.StepConfirm, d.Step)
	b, err := f.engine.ConfirmSetup(ctx, d.ID)

	// Assert
	require.NoError(t, err)
	require.Len(t, b.Participants, 3)
	assert.Equal(t, "alice", b.Participants[0].CanonicalIdentity)
	assert.Equal(t, 2*time.Hour, b.EndAt.Sub(b.StartAt))

	_, err = f.engine.GetSetup(ctx, d.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestEngine_ConfirmSetupCreatesOneBattle(t *testing.T) {
	// Arrange
	f := setupEngine(t)
	ctx := context.Background()
	d, err := f.engine.StartSetup(ctx, "alice", models.KindProfit)
	require.NoError(t, err)
	d, err = f.engine.SetupPlayerCount(ctx, d.ID, 2)
	require.NoError(t, err)
	d, err = f.engine.SetupDuration(ctx, d.ID, "1h")
	require.NoError(t, err)
	d, err = f.engine.SetupParticipants(ctx, d.ID, []string{"bob"})
	require.NoError(t, err)

	// Act
	var wg sync.WaitGroup
	results := make([]error, 6)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.engine.ConfirmSetup(ctx, d.ID)
		}(i)
	}
	wg.Wait()

	// Assert
	var ok int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, errs.ErrNotFound)
	}
	assert.Equal(t, 1, ok)
	active, err := f.engine.ListActiveBattles(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestEngine_ConfirmSetupRestoresDraftOnFailure(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	d, err := f.engine.StartSetup(ctx, "alice", models.KindProfit)
	require.NoError(t, err)

	_, err = f.engine.ConfirmSetup(ctx, d.ID)
	assert.ErrorIs(t, err, session.ErrOutOfOrder)

	kept, err := f.engine.GetSetup(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StepPlayerCount, kept.Step)
}

func TestEngine_SetupRejectsBadInput(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	d, err := f.engine.StartSetup(ctx, "alice", models.KindVolume)
	require.NoError(t, err)

	_, err = f.engine.SetupDuration(ctx, d.ID, "2h")
	assert.True(t, errors.Is(err, session.ErrOutOfOrder))

	kept, err := f.engine.SetupPlayerCount(ctx, d.ID, 9)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
	assert.Equal(t, session.StepPlayerCount, kept.Step)

	d, err = f.engine.SetupPlayerCount(ctx, d.ID, 2)
	require.NoError(t, err)
	_, err = f.engine.SetupDuration(ctx, d.ID, "1m")
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
	_, err = f.engine.SetupDuration(ctx, d.ID, "soon")
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)

	stored, err := f.engine.GetSetup(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StepDuration, stored.Step)

	require.NoError(t, f.engine.CancelSetup(ctx, d.ID))
	_, err = f.engine.ConfirmSetup(ctx, d.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.Join(errors.New("read"), errs.ErrTransientStore)))
	assert.False(t, IsRetryable(errs.ErrNotFound))
	assert.False(t, IsRetryable(nil))
}
