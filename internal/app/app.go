// Package app wires the configured stores and services into an Engine.
package app

import (
	"context"
	"errors"
	"fmt"

	"pnl-arena/internal/battle"
	"pnl-arena/internal/config"
	"pnl-arena/internal/database"
	"pnl-arena/internal/engine"
	"pnl-arena/internal/ledger"
	"pnl-arena/internal/rates"
	"pnl-arena/internal/session"
	"pnl-arena/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App owns the long-lived resources behind an Engine.
type App struct {
	DB     *gorm.DB
	Engine *engine.Engine

	redis *redis.Client
}

// New opens the database, picks the session backend and builds the engine.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))

	a := &App{DB: db}
	drafts, err := a.sessionStore(ctx, cfg, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	s := store.New(db)
	l := ledger.New(s, log)
	manager := battle.NewManager(s, s, l, log, battle.Options{
		MinDuration: cfg.Battle.MinDuration,
		MaxDuration: cfg.Battle.MaxDuration,
	})
	a.Engine = engine.New(engine.Deps{
		Trades:  s,
		Battles: manager,
		Ledger:  l,
		Drafts:  session.NewDrafts(drafts, cfg.Session.TTL),
		Rates:   rates.NewClient(cfg.Rates, log),
		Logger:  log,
	}, engine.Options{
		StoreTimeout: cfg.Engine.StoreTimeout,
		DefaultLimit: cfg.Engine.DefaultLimit,
	})
	return a, nil
}

func (a *App) sessionStore(ctx context.Context, cfg config.Config, log *zap.Logger) (session.Store, error) {
	if cfg.Session.Backend != "redis" {
		log.Info("Using in-memory setup sessions")
		return session.NewMemoryStore(), nil
	}
	rs := session.NewRedisStore(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.redis = rs.Client
	if err := rs.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	log.Info("Using redis setup sessions", zap.String("addr", cfg.Redis.Addr))
	return rs, nil
}

// Close releases the database pool and the redis client.
func (a *App) Close() error {
	var errList []error
	if a.redis != nil {
		errList = append(errList, a.redis.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errList = append(errList, sqlDB.Close())
		}
	}
	return errors.Join(errList...)
}
