package repository

import (
	"context"
	"sync"
	"time"

	"courtflow/internal/models"
)

// MemoryDraftRepository is the in-process fallback store. Entries
// carry the same TTL semantics as the Redis store so a failover does
// not resurrect stale drafts.
type MemoryDraftRepository struct {
	drafts sync.Map
	ttl    time.Duration
}

type memoryEntry struct {
	draft     *models.Draft
	expiresAt time.Time
}

func NewMemoryDraftRepository(ttl time.Duration) *MemoryDraftRepository {
	return &MemoryDraftRepository{
		ttl: ttl,
	}
}

func (r *MemoryDraftRepository) Get(ctx context.Context, sessionID string) (*models.Draft, error) {
	val, ok := r.drafts.Load(sessionID)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if r.ttl > 0 && time.Now().After(entry.expiresAt) {
		r.drafts.Delete(sessionID)
		return nil, nil
	}
	return entry.draft, nil
}

func (r *MemoryDraftRepository) Save(ctx context.Context, draft *models.Draft) error {
	r.drafts.Store(draft.SessionID, &memoryEntry{
		draft:     draft,
		expiresAt: time.Now().Add(r.ttl),
	})
	return nil
}

func (r *MemoryDraftRepository) Clear(ctx context.Context, sessionID string) error {
	r.drafts.Delete(sessionID)
	return nil
}
