package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pnl-arena/internal/battle"
	"pnl-arena/internal/engine"
	"pnl-arena/internal/errs"
	"pnl-arena/internal/identity"
	"pnl-arena/internal/leaderboard"
	"pnl-arena/internal/ledger"
	"pnl-arena/internal/period"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIHandler exposes the engine over JSON.
type APIHandler struct {
	log    *zap.Logger
	engine *engine.Engine
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, e *engine.Engine) *APIHandler {
	return &APIHandler{log: log.Named("api"), engine: e}
}

func (h *APIHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")

	g.POST("/trades", h.submitTrade)
	g.GET("/leaderboard", h.leaderboard)
	g.GET("/community", h.community)
	g.GET("/hall-of-fame", h.hallOfFame)
	g.GET("/top-gainer", h.topGainer)

	g.GET("/users/:handle/trades", h.userHistory)
	g.GET("/users/:handle/stats", h.userStats)
	g.GET("/users/:handle/portfolio", h.userPortfolio)
	g.GET("/users/:handle/battles", h.battleRecord)

	g.GET("/assets", h.assetLeaderboard)
	g.GET("/assets/:asset", h.assetStats)
	g.GET("/assets/:asset/traders", h.assetTraders)

	g.GET("/points", h.battleLeaderboard)
	g.GET("/battles", h.activeBattles)
	g.POST("/battles", h.createBattle)
	g.GET("/battles/:id", h.getBattle)
	g.GET("/battles/:id/standings", h.standings)
	g.POST("/battles/:id/complete", h.completeBattle)
	g.POST("/battles/:id/cancel", h.cancelBattle)

	g.POST("/setups", h.startSetup)
	g.GET("/setups/:id", h.getSetup)
	g.PUT("/setups/:id/player-count", h.setupPlayerCount)
	g.PUT("/setups/:id/duration", h.setupDuration)
	g.PUT("/setups/:id/participants", h.setupParticipants)
	g.POST("/setups/:id/confirm", h.confirmSetup)
	g.DELETE("/setups/:id", h.cancelSetup)
}

// fail writes err with its mapped status. Server-side failures are logged.
func (h *APIHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	Error(c, status, err.Error(), nil)
}

func (h *APIHandler) submitTrade(c *gin.Context) {
	var in engine.TradeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	rec, err := h.engine.SubmitTrade(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, rec, nil)
}

// leaderboard ranks traders. min_investment and max_investment restrict the ranking
// to trades inside that investment band.
func (h *APIHandler) leaderboard(c *gin.Context) {
	lo, err := amount(c, "min_investment")
	if err != nil {
		h.fail(c, err)
		return
	}
	hi, err := amount(c, "max_investment")
	if err != nil {
		h.fail(c, err)
		return
	}
	if lo.IsZero() && hi.IsZero() {
		h.board(c, h.engine.GetLeaderboard)
		return
	}
	h.board(c, func(ctx context.Context, w period.Window, m leaderboard.Metric, limit int) ([]leaderboard.Entry, error) {
		return h.engine.InvestmentLeaderboard(ctx, w, lo, hi, m, limit)
	})
}

func (h *APIHandler) assetLeaderboard(c *gin.Context) {
	h.board(c, h.engine.AssetLeaderboard)
}

func (h *APIHandler) assetTraders(c *gin.Context) {
	asset := strings.ToUpper(c.Param("asset"))
	h.board(c, func(ctx context.Context, w period.Window, m leaderboard.Metric, limit int) ([]leaderboard.Entry, error) {
		return h.engine.AssetTraders(ctx, asset, w, m, limit)
	})
}

type boardFunc func(ctx context.Context, w period.Window, m leaderboard.Metric, limit int) ([]leaderboard.Entry, error)

func (h *APIHandler) board(c *gin.Context, build boardFunc) {
	window, err := h.window(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	metric, err := leaderboard.ParseMetric(c.DefaultQuery("metric", string(leaderboard.ProfitUSD)))
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, err := h.limit(c, "limit")
	if err != nil {
		h.fail(c, err)
		return
	}
	entries, err := build(c.Request.Context(), window, metric, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, entries, map[string]any{"metric": metric, "window": window, "count": len(entries)})
}

func (h *APIHandler) community(c *gin.Context) {
	window, err := h.window(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	s, err := h.engine.CommunityStats(c.Request.Context(), window)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, s, nil)
}

func (h *APIHandler) hallOfFame(c *gin.Context) {
	window, err := h.window(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	legends, err := h.engine.HallOfFame(c.Request.Context(), window)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, legends, map[string]any{"window": window, "count": len(legends)})
}

func (h *APIHandler) topGainer(c *gin.Context) {
	window, err := h.window(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	top, err := h.engine.TopGainer(c.Request.Context(), window)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, top, map[string]any{"window": window})
}

func (h *APIHandler) userHistory(c *gin.Context) {
	limit, err := h.limit(c, "limit")
	if err != nil {
		h.fail(c, err)
		return
	}
	records, err := h.engine.UserHistory(c.Request.Context(), c.Query("account_id"), c.Param("handle"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, records, map[string]any{"count": len(records)})
}

func (h *APIHandler) userStats(c *gin.Context) {
	window, err := h.window(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	us, err := h.engine.GetUserStats(c.Request.Context(), c.Query("account_id"), c.Param("handle"), window)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, us, nil)
}

func (h *APIHandler) userPortfolio(c *gin.Context) {
	window, err := h.window(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.engine.UserPortfolio(c.Request.Context(), c.Query("account_id"), c.Param("handle"), window)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, p, nil)
}

func (h *APIHandler) battleRecord(c *gin.Context) {
	recent, err := h.limit(c, "recent")
	if err != nil {
		h.fail(c, err)
		return
	}
	record, err := h.engine.GetBattleRecord(c.Request.Context(), c.Param("handle"), recent)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, record, nil)
}

func (h *APIHandler) assetStats(c *gin.Context) {
	window, err := h.window(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	s, err := h.engine.AssetStats(c.Request.Context(), c.Param("asset"), window)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, s, nil)
}

func (h *APIHandler) battleLeaderboard(c *gin.Context) {
	kind, err := ledger.ParseKind(c.DefaultQuery("kind", string(ledger.Combined)))
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, err := h.limit(c, "limit")
	if err != nil {
		h.fail(c, err)
		return
	}
	entries, err := h.engine.GetBattleLeaderboard(c.Request.Context(), kind, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, entries, map[string]any{"kind": kind, "count": len(entries)})
}

func (h *APIHandler) activeBattles(c *gin.Context) {
	battles, err := h.engine.ListActiveBattles(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, battles, map[string]any{"count": len(battles)})
}

type createBattleRequest struct {
	Kind         string   `json:"kind"`
	Creator      string   `json:"creator"`
	Participants []string `json:"participants"`
	Duration     string   `json:"duration"`
}

func (h *APIHandler) createBattle(c *gin.Context) {
	var req createBattleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	length, err := battle.ParseDuration(req.Duration)
	if err != nil {
		h.fail(c, err)
		return
	}
	b, err := h.engine.CreateBattle(c.Request.Context(), req.Kind, req.Creator, req.Participants, length)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, apiResponse{Code: 0, Message: "ok", Data: b})
}

func (h *APIHandler) getBattle(c *gin.Context) {
	b, err := h.engine.GetBattle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, b, map[string]any{"remaining": b.Remaining(h.engine.Now()).String()})
}

func (h *APIHandler) standings(c *gin.Context) {
	rankings, err := h.engine.BattleStandings(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, rankings, nil)
}

func (h *APIHandler) completeBattle(c *gin.Context) {
	result, err := h.engine.CompleteBattle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, result, nil)
}

func (h *APIHandler) cancelBattle(c *gin.Context) {
	b, err := h.engine.CancelBattle(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, b, nil)
}

type startSetupRequest struct {
	Creator string `json:"creator"`
	Kind    string `json:"kind"`
}

func (h *APIHandler) startSetup(c *gin.Context) {
	var req startSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	d, err := h.engine.StartSetup(c.Request.Context(), req.Creator, req.Kind)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, apiResponse{Code: 0, Message: "ok", Data: d})
}

func (h *APIHandler) getSetup(c *gin.Context) {
	d, err := h.engine.GetSetup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, d, nil)
}

type setupStepRequest struct {
	Count        int      `json:"count"`
	Duration     string   `json:"duration"`
	Participants []string `json:"participants"`
	// Text is free text such as "me vs @bob and @carol"; its handles are used when
	// Participants is empty.
	Text string `json:"text"`
}

func (h *APIHandler) setupPlayerCount(c *gin.Context) {
	var req setupStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	d, err := h.engine.SetupPlayerCount(c.Request.Context(), c.Param("id"), req.Count)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, d, nil)
}

func (h *APIHandler) setupDuration(c *gin.Context) {
	var req setupStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	d, err := h.engine.SetupDuration(c.Request.Context(), c.Param("id"), req.Duration)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, d, nil)
}

func (h *APIHandler) setupParticipants(c *gin.Context) {
	var req setupStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	handles := req.Participants
	if len(handles) == 0 {
		handles = identity.ParseHandles(req.Text)
	}
	d, err := h.engine.SetupParticipants(c.Request.Context(), c.Param("id"), handles)
	if err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, d, nil)
}

func (h *APIHandler) confirmSetup(c *gin.Context) {
	b, err := h.engine.ConfirmSetup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, apiResponse{Code: 0, Message: "ok", Data: b})
}

func (h *APIHandler) cancelSetup(c *gin.Context) {
	if err := h.engine.CancelSetup(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	Ok(c, gin.H{"cancelled": true}, nil)
}

// window reads ?window= (all, today, week, month or Nd) or an explicit ?from=&to= pair
// in RFC3339.
func (h *APIHandler) window(c *gin.Context) (period.Window, error) {
	from, to := strings.TrimSpace(c.Query("from")), strings.TrimSpace(c.Query("to"))
	if from == "" && to == "" {
		return period.Parse(c.Query("window"), h.engine.Now())
	}
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return period.Window{}, fmt.Errorf("%w: from must be RFC3339", errs.ErrInvalidConfiguration)
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return period.Window{}, fmt.Errorf("%w: to must be RFC3339", errs.ErrInvalidConfiguration)
	}
	return period.Between(start, end)
}

// limit reads an integer query parameter, defaulting to the engine's limit.
func (h *APIHandler) limit(c *gin.Context, key string) (int, error) {
	val := c.Query(key)
	if val == "" {
		return h.engine.DefaultLimit(), nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errs.ErrInvalidConfiguration, key)
	}
	if err := leaderboard.ValidateLimit(n); err != nil {
		return 0, err
	}
	return n, nil
}

// amount reads an optional decimal query parameter. Missing means zero.
func amount(c *gin.Context, key string) (decimal.Decimal, error) {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a number", errs.ErrInvalidConfiguration, key)
	}
	return d, nil
}

// HealthHandler reports liveness and database readiness.
type HealthHandler struct {
	DB *gorm.DB
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) ready(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_error"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
