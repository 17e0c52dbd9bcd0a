package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/jarvis/internal/storage"
)

const (
	// QueueKey is the storage key holding the offline queue.
	QueueKey = "ai_queue"

	// DefaultQueueMax is the number of entries kept.
	DefaultQueueMax = 50
)

// Kind distinguishes the two gateway operations.
type Kind string

const (
	KindComplete Kind = "complete"
	KindClassify Kind = "classify"
)

// QueuedRequest is a request that failed every attempt.
type QueuedRequest struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Payload    string    `json:"payload"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Queue is the durable, bounded offline queue. The whole list lives under a
// single storage key; read-modify-write cycles are serialized in-process.
type Queue struct {
	mu     sync.Mutex
	store  storage.Store
	max    int
	logger zerolog.Logger
}

// NewQueue creates a queue over store keeping at most max entries.
func NewQueue(store storage.Store, max int, logger zerolog.Logger) *Queue {
	if max < 1 {
		max = DefaultQueueMax
	}
	return &Queue{store: store, max: max, logger: logger}
}

// Max returns the queue bound.
func (q *Queue) Max() int {
	return q.max
}

// Append adds r, evicting the oldest entries beyond the bound, and returns
// the new depth.
func (q *Queue) Append(ctx context.Context, r QueuedRequest) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	entries = append(entries, r)
	if len(entries) > q.max {
		entries = entries[len(entries)-q.max:]
	}
	if err := q.save(ctx, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// List returns the queued requests, oldest first.
func (q *Queue) List(ctx context.Context) ([]QueuedRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the queue depth.
func (q *Queue) Len(ctx context.Context) (int, error) {
	entries, err := q.List(ctx)
	return len(entries), err
}

// Remove deletes the entry with id and returns the remaining depth. Removing
// an absent id is not an error.
func (q *Queue) Remove(ctx context.Context, id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return len(entries), nil
	}
	if err := q.save(ctx, kept); err != nil {
		return 0, err
	}
	return len(kept), nil
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.Remove(ctx, QueueKey); err != nil {
		return fmt.Errorf("queue: clear: %w", err)
	}
	return nil
}

func (q *Queue) load(ctx context.Context) ([]QueuedRequest, error) {
	rec, err := q.store.Get(ctx, QueueKey)
	if err != nil {
		return nil, fmt.Errorf("queue: load: %w", err)
	}
	raw, ok := rec[QueueKey]
	if !ok || raw == "" {
		return nil, nil
	}

	var entries []QueuedRequest
	if err := json.Unmarshal([]byte(raw), &entries); err == nil {
		return entries, nil
	}

	// Older installs stored bare prompt strings.
	var prompts []string
	if err := json.Unmarshal([]byte(raw), &prompts); err == nil {
		entries = make([]QueuedRequest, len(prompts))
		for i, p := range prompts {
			entries[i] = QueuedRequest{ID: fmt.Sprintf("legacy-%d", i), Kind: KindComplete, Payload: p}
		}
		return entries, nil
	}

	q.logger.Warn().Msg("offline queue is unreadable, starting empty")
	return nil, nil
}

func (q *Queue) save(ctx context.Context, entries []QueuedRequest) error {
	if len(entries) == 0 {
		if err := q.store.Remove(ctx, QueueKey); err != nil {
			return fmt.Errorf("queue: save: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("queue: encode: %w", err)
	}
	if err := q.store.Set(ctx, storage.Record{QueueKey: string(data)}); err != nil {
		return fmt.Errorf("queue: save: %w", err)
	}
	return nil
}
