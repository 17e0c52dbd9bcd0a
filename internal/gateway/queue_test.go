package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/jarvis/internal/storage"
)

func TestQueue_AppendListRemove(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(storage.NewMemoryStore(), 3, zerolog.Nop())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 4; i++ {
		depth, err := q.Append(ctx, QueuedRequest{ID: fmt.Sprintf("r%d", i), Kind: KindComplete, Payload: "p", EnqueuedAt: at})
		require.NoError(t, err)
		assert.LessOrEqual(t, depth, 3)
	}

	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "r1", entries[0].ID)
	assert.True(t, entries[0].EnqueuedAt.Equal(at))

	remaining, err := q.Remove(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	remaining, err = q.Remove(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	require.NoError(t, q.Clear(ctx))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(t.TempDir() + "/queue.db")
	require.NoError(t, err)
	defer store.Close()

	_, err = NewQueue(store, 50, zerolog.Nop()).Append(ctx, QueuedRequest{ID: "x", Kind: KindClassify, Payload: "louder"})
	require.NoError(t, err)

	entries, err := NewQueue(store, 50, zerolog.Nop()).List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindClassify, entries[0].Kind)
}

func TestQueue_ReadsLegacyStringList(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, storage.Record{QueueKey: `["first prompt","second prompt"]`}))

	q := NewQueue(store, 50, zerolog.Nop())
	entries, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindComplete, entries[0].Kind)
	assert.Equal(t, "second prompt", entries[1].Payload)

	remaining, err := q.Remove(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestQueue_CorruptValueStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, storage.Record{QueueKey: "{not json"}))

	q := NewQueue(store, 50, zerolog.Nop())
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	depth, err := q.Append(ctx, QueuedRequest{ID: "a", Kind: KindComplete, Payload: "p"})
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

type failingStore struct{ storage.Store }

func (failingStore) Get(context.Context, ...string) (storage.Record, error) {
	return nil, errors.New("io error")
}

func TestQueue_StorageErrors(t *testing.T) {
	q := NewQueue(failingStore{storage.NewMemoryStore()}, 50, zerolog.Nop())
	_, err := q.Append(context.Background(), QueuedRequest{ID: "a"})
	assert.Error(t, err)
	_, err = q.List(context.Background())
	assert.Error(t, err)
}

func TestConversation(t *testing.T) {
	c := NewConversation(2)
	c.Add("a", "1")
	c.Add("b", "2")
	c.Add("c", "3")

	assert.Equal(t, []Exchange{{"b", "2"}, {"c", "3"}}, c.Exchanges())
	msgs := c.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "b", msgs[0].Content)
	assert.Equal(t, "3", msgs[3].Content)

	c.Clear()
	assert.Zero(t, c.Len())

	off := NewConversation(0)
	off.Add("a", "1")
	assert.Zero(t, off.Len())
}
