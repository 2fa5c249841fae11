package repository

import (
	"context"
	"sync/atomic"
	"time"

	"courtflow/internal/domain"
	"courtflow/internal/models"

	"github.com/rs/zerolog"
)

// FailoverDraftRepository serves from the primary store until it
// fails, then from the fallback, probing the primary again after a
// minute.
type FailoverDraftRepository struct {
	primary   domain.DraftRepository
	fallback  domain.DraftRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverDraftRepository(primary, fallback domain.DraftRepository, logger *zerolog.Logger) *FailoverDraftRepository {
	return &FailoverDraftRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverDraftRepository) Get(ctx context.Context, sessionID string) (*models.Draft, error) {
	if !r.isDown.Load() {
		draft, err := r.primary.Get(ctx, sessionID)
		if err == nil {
			return draft, nil
		}
		r.logger.Error().Err(err).Msg("primary draft repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		draft, err := r.primary.Get(ctx, sessionID)
		if err == nil {
			r.isDown.Store(false)
			return draft, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.Get(ctx, sessionID)
}

func (r *FailoverDraftRepository) Save(ctx context.Context, draft *models.Draft) error {
	if !r.isDown.Load() {
		err := r.primary.Save(ctx, draft)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("primary draft repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.Save(ctx, draft)
}

func (r *FailoverDraftRepository) Clear(ctx context.Context, sessionID string) error {
	if !r.isDown.Load() {
		err := r.primary.Clear(ctx, sessionID)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("primary draft repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.Clear(ctx, sessionID)
}
