package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// ============================================================================
// Contract Tests (every backend)
// ============================================================================

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	b := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kv.db"))
			require.NoError(t, err)
			return s
		},
		"keyring": func(t *testing.T) Store {
			keyring.MockInit()
			return NewKeyringStore("jarvis-test")
		},
	}

	if addr := os.Getenv("JARVIS_TEST_REDIS_ADDR"); addr != "" {
		b["redis"] = func(t *testing.T) Store {
			s, err := NewRedisStore(context.Background(), RedisOptions{
				Addr:      addr,
				KeyPrefix: "jarvis-test:" + uuid.NewString() + ":",
			})
			require.NoError(t, err)
			return s
		}
	}
	return b
}

func TestStoreContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			rec, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.Empty(t, rec)

			require.NoError(t, s.Set(ctx, Record{"a": "1", "b": "two"}))

			rec, err = s.Get(ctx, "a", "b", "c")
			require.NoError(t, err)
			assert.Equal(t, Record{"a": "1", "b": "two"}, rec)

			require.NoError(t, s.Set(ctx, Record{"a": "overwritten"}))
			rec, err = s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "overwritten", rec["a"])

			require.NoError(t, s.Remove(ctx, "a", "never-set"))
			rec, err = s.Get(ctx, "a", "b")
			require.NoError(t, err)
			assert.Equal(t, Record{"b": "two"}, rec)

			require.NoError(t, s.Remove(ctx, "b"))
		})
	}
}

func TestStore_EmptyOperations(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			rec, err := s.Get(ctx)
			require.NoError(t, err)
			assert.Empty(t, rec)
			assert.NoError(t, s.Set(ctx, Record{}))
			assert.NoError(t, s.Remove(ctx))
		})
	}
}

// ============================================================================
// Backend-specific Tests
// ============================================================================

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "kv.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, Record{"OPENAI_API_KEY_ENC": "cipher"}))
	require.NoError(t, s.Health(ctx))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Get(ctx, "OPENAI_API_KEY_ENC")
	require.NoError(t, err)
	assert.Equal(t, "cipher", rec["OPENAI_API_KEY_ENC"])
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(context.Background(), Record{"a": "b"}), ErrClosed)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Config{Driver: "SQLite", Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	_, err = Open(ctx, Config{Driver: "etcd"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: DriverRedis})
	assert.Error(t, err)
}

func TestSplitSQL(t *testing.T) {
	stmts := splitSQL(kvSchema)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS kv")
	assert.Contains(t, stmts[1], "CREATE INDEX")
}
