package queues

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"submission-backend/internal/queuestore"
)

const (
	queueKeyPrefix   = "queue:"
	sessionKeyPrefix = "session:"
)

// Store persists deferred queues through the durable KV store. Every
// mutation is a single-key write of the whole serialized queue, so a crash
// between writes always leaves the last durably checkpointed state.
type Store struct {
	kv *queuestore.Store
}

// NewStore wraps the durable KV store.
func NewStore(kv *queuestore.Store) *Store {
	return &Store{kv: kv}
}

// Create persists a new queue and claims the session's active-queue slot.
// At most one active queue may exist per session.
func (s *Store) Create(ctx context.Context, q *DeferredQueue) error {
	existing, err := s.GetActiveForSession(ctx, q.SessionID)
	if err != nil && err != ErrNotFound {
		return err
	}
	if existing != nil {
		return ErrActiveQueueExists
	}

	if err := s.Save(ctx, q); err != nil {
		return err
	}
	if err := s.kv.Put(ctx, sessionKeyPrefix+q.SessionID, []byte(q.ID)); err != nil {
		return fmt.Errorf("index session queue: %w", err)
	}
	return nil
}

// Save durably checkpoints the queue's current state.
func (s *Store) Save(ctx context.Context, q *DeferredQueue) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode queue %s: %w", q.ID, err)
	}
	return s.kv.Put(ctx, queueKeyPrefix+q.ID, data)
}

// Get loads a queue by ID.
func (s *Store) Get(ctx context.Context, id string) (*DeferredQueue, error) {
	data, err := s.kv.Get(ctx, queueKeyPrefix+id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNotFound
	}
	var q DeferredQueue
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("decode queue %s: %w", id, err)
	}
	return &q, nil
}

// GetActiveForSession returns the session's active queue, or ErrNotFound.
// A completed or expired queue under the session index is treated as absent.
func (s *Store) GetActiveForSession(ctx context.Context, sessionID string) (*DeferredQueue, error) {
	idBytes, err := s.kv.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		return nil, err
	}
	if idBytes == nil {
		return nil, ErrNotFound
	}
	q, err := s.Get(ctx, string(idBytes))
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !q.Active(time.Now().UTC()) {
		return nil, ErrNotFound
	}
	return q, nil
}

// SaveOperation checkpoints a single operation inside its queue. Used by
// the upload orchestrator after every step so a crash mid-upload resumes
// from the last durable state.
func (s *Store) SaveOperation(ctx context.Context, queueID string, op UploadOperation) error {
	q, err := s.Get(ctx, queueID)
	if err != nil {
		return err
	}
	if q.Operations == nil {
		q.Operations = make(map[string]UploadOperation)
	}
	q.Operations[op.Slot] = op
	return s.Save(ctx, q)
}

// Purge removes the queue and releases its session index.
func (s *Store) Purge(ctx context.Context, q *DeferredQueue) error {
	if err := s.kv.Delete(ctx, queueKeyPrefix+q.ID); err != nil {
		return err
	}
	// Only clear the session index if it still points at this queue.
	idBytes, err := s.kv.Get(ctx, sessionKeyPrefix+q.SessionID)
	if err != nil {
		return err
	}
	if string(idBytes) == q.ID {
		return s.kv.Delete(ctx, sessionKeyPrefix+q.SessionID)
	}
	return nil
}

// ListExpired returns queues whose TTL has passed, for the janitor sweep.
func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*DeferredQueue, error) {
	keys, err := s.kv.Keys(ctx, queueKeyPrefix)
	if err != nil {
		return nil, err
	}
	var expired []*DeferredQueue
	for _, key := range keys {
		id := strings.TrimPrefix(key, queueKeyPrefix)
		q, err := s.Get(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if now.After(q.ExpiresAt) {
			expired = append(expired, q)
		}
	}
	return expired, nil
}
