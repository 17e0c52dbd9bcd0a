package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/normanking/jarvis/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestVault uses a low iteration count so tests stay fast.
func newTestVault(store storage.Store) *Vault {
	return New(store, WithKeyDerivation(DefaultPassphrase, DefaultSalt, 1000))
}

func TestVault_RoundTrip(t *testing.T) {
	secrets := []string{
		"sk-test-1234567890",
		"a",
		"üñíçødé-key",
		"sk-proj with spaces inside",
		" sk-abc ",
		"sk-abc\n",
		"\t",
	}

	for _, secret := range secrets {
		t.Run(secret, func(t *testing.T) {
			ctx := context.Background()
			v := newTestVault(storage.NewMemoryStore())

			require.NoError(t, v.Set(ctx, secret))

			got, ok, err := v.Get(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, secret, got)
		})
	}
}

func TestVault_CiphertextIsNotPlaintext(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	v := newTestVault(store)

	require.NoError(t, v.Set(ctx, "sk-secret"))

	rec, err := store.Get(ctx, KeyCiphertext, KeyIV)
	require.NoError(t, err)
	assert.NotContains(t, rec[KeyCiphertext], "sk-secret")

	iv, err := base64.StdEncoding.DecodeString(rec[KeyIV])
	require.NoError(t, err)
	assert.Len(t, iv, ivLength)
}

func TestVault_FreshIVPerWrite(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	v := newTestVault(store)

	require.NoError(t, v.Set(ctx, "sk-same"))
	first, _ := store.Get(ctx, KeyIV)
	require.NoError(t, v.Set(ctx, "sk-same"))
	second, _ := store.Get(ctx, KeyIV)

	assert.NotEqual(t, first[KeyIV], second[KeyIV])
}

func TestVault_Missing(t *testing.T) {
	v := newTestVault(storage.NewMemoryStore())

	got, ok, err := v.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestVault_CorruptedIsAbsent(t *testing.T) {
	tests := []struct {
		name string
		rec  storage.Record
	}{
		{"tampered ciphertext", nil},
		{"bad base64", storage.Record{KeyCiphertext: "%%%", KeyIV: "AAAAAAAAAAAAAAAA"}},
		{"short iv", storage.Record{KeyCiphertext: "AAAA", KeyIV: "AAAA"}},
		{"only ciphertext", storage.Record{KeyCiphertext: "AAAA"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := storage.NewMemoryStore()
			v := newTestVault(store)

			if tt.rec == nil {
				require.NoError(t, v.Set(ctx, "sk-secret"))
				rec, _ := store.Get(ctx, KeyCiphertext)
				raw, _ := base64.StdEncoding.DecodeString(rec[KeyCiphertext])
				raw[0] ^= 0xff
				require.NoError(t, store.Set(ctx, storage.Record{KeyCiphertext: base64.StdEncoding.EncodeToString(raw)}))
			} else {
				require.NoError(t, store.Set(ctx, tt.rec))
			}

			got, ok, err := v.Get(ctx)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, got)
		})
	}
}

func TestVault_WrongPassphraseIsAbsent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	require.NoError(t, newTestVault(store).Set(ctx, "sk-secret"))

	other := New(store, WithKeyDerivation("another-passphrase", DefaultSalt, 1000))
	_, ok, err := other.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVault_Clear(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	v := newTestVault(store)

	require.NoError(t, v.Set(ctx, "sk-secret"))
	has, err := v.Has(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, v.Clear(ctx))
	has, err = v.Has(ctx)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, 0, store.Len())
}

func TestVault_RehydratesFromStorage(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	require.NoError(t, newTestVault(store).Set(ctx, "sk-persisted"))

	// A new instance stands in for a respawned process.
	got, ok, err := newTestVault(store).Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-persisted", got)
}

func TestVault_RejectsEmpty(t *testing.T) {
	v := newTestVault(storage.NewMemoryStore())
	assert.ErrorIs(t, v.Set(context.Background(), ""), ErrEmptySecret)
}

type failingStore struct{ storage.Store }

func (failingStore) Get(context.Context, ...string) (storage.Record, error) {
	return nil, errors.New("disk on fire")
}

func TestVault_StorageErrorSurfaces(t *testing.T) {
	v := newTestVault(failingStore{storage.NewMemoryStore()})
	_, _, err := v.Get(context.Background())
	assert.ErrorContains(t, err, "disk on fire")
}
