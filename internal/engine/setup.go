package engine

import (
	"context"

	"pnl-arena/internal/battle"
	"pnl-arena/internal/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartSetup opens a battle setup draft for creator.
func (e *Engine) StartSetup(ctx context.Context, creator, kind string) (session.Draft, error) {
	d, err := session.Start(uuid.NewString(), creator, kind, e.Now())
	if err != nil {
		return session.Draft{}, err
	}
	if err := e.save(ctx, d); err != nil {
		return session.Draft{}, err
	}
	return d, nil
}

// GetSetup loads a draft.
func (e *Engine) GetSetup(ctx context.Context, id string) (session.Draft, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.drafts.Load(ctx, id)
}

// SetupPlayerCount answers the player count step.
func (e *Engine) SetupPlayerCount(ctx context.Context, id string, n int) (session.Draft, error) {
	return e.advance(ctx, id, func(d session.Draft) (session.Draft, error) {
		return d.WithPlayerCount(n)
	})
}

// SetupDuration answers the duration step with text such as "2h" or "3d".
func (e *Engine) SetupDuration(ctx context.Context, id, text string) (session.Draft, error) {
	length, err := battle.ParseDuration(text)
	if err != nil {
		return session.Draft{}, err
	}
	lo, hi := e.battles.Bounds()
	return e.advance(ctx, id, func(d session.Draft) (session.Draft, error) {
		return d.WithDuration(length, lo, hi)
	})
}

// SetupParticipants answers the participants step with the opponents' handles.
func (e *Engine) SetupParticipants(ctx context.Context, id string, handles []string) (session.Draft, error) {
	return e.advance(ctx, id, func(d session.Draft) (session.Draft, error) {
		return d.WithParticipants(handles)
	})
}

// ConfirmSetup creates the battle described by the draft. The draft is claimed before
// the battle is created, so concurrent confirmations yield a single battle. It is put
// back when the battle cannot be created.
func (e *Engine) ConfirmSetup(ctx context.Context, id string) (*battle.Battle, error) {
	cctx, cancel := e.withTimeout(ctx)
	d, err := e.drafts.Claim(cctx, id)
	cancel()
	if err != nil {
		return nil, err
	}
	done, err := d.Confirm()
	if err != nil {
		e.restore(ctx, d)
		return nil, err
	}
	b, err := e.CreateBattle(ctx, done.Kind, done.Creator, done.Participants, done.Duration)
	if err != nil {
		e.restore(ctx, d)
		return nil, err
	}
	return b, nil
}

func (e *Engine) restore(ctx context.Context, d session.Draft) {
	if err := e.save(ctx, d); err != nil {
		e.logger.Warn("Failed to restore claimed draft", zap.String("setup_id", d.ID), zap.Error(err))
	}
}

// CancelSetup discards a draft.
func (e *Engine) CancelSetup(ctx context.Context, id string) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.drafts.Discard(ctx, id)
}

func (e *Engine) advance(ctx context.Context, id string, step func(session.Draft) (session.Draft, error)) (session.Draft, error) {
	d, err := e.GetSetup(ctx, id)
	if err != nil {
		return session.Draft{}, err
	}
	next, err := step(d)
	if err != nil {
		return d, err
	}
	if err := e.save(ctx, next); err != nil {
		return d, err
	}
	return next, nil
}

func (e *Engine) save(ctx context.Context, d session.Draft) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	return e.drafts.Save(ctx, d)
}
