// Package vault stores the AI API key encrypted at rest.
//
// The encryption key is derived with PBKDF2-SHA256 from a passphrase and salt
// compiled into the binary. This keeps the key unreadable to someone browsing
// the storage backend; it does not protect against a compromised process.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/normanking/jarvis/internal/storage"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/pbkdf2"
)

// Storage keys for the encrypted credential.
const (
	KeyCiphertext = "OPENAI_API_KEY_ENC"
	KeyIV         = "OPENAI_API_KEY_IV"
)

// Key derivation parameters.
const (
	DefaultPassphrase = "jarvis-yt-assistant-fixed-salt"
	DefaultSalt       = "jarvis-salt"
	DefaultIterations = 100000
	keyLength         = 32 // AES-256
	ivLength          = 12 // GCM standard nonce
)

// ErrEmptySecret is returned when Set is called with a blank secret.
var ErrEmptySecret = errors.New("vault: secret is empty")

// Vault encrypts and decrypts the API key. The derived AES key is computed
// once on first use; the plaintext secret is never retained.
type Vault struct {
	store      storage.Store
	passphrase string
	salt       string
	iterations int
	logger     zerolog.Logger

	once sync.Once
	aead cipher.AEAD
	err  error
}

// Option configures a Vault.
type Option func(*Vault)

// WithKeyDerivation overrides the passphrase, salt and iteration count.
func WithKeyDerivation(passphrase, salt string, iterations int) Option {
	return func(v *Vault) {
		v.passphrase = passphrase
		v.salt = salt
		v.iterations = iterations
	}
}

// WithLogger sets the vault logger.
func WithLogger(l zerolog.Logger) Option {
	return func(v *Vault) {
		v.logger = l
	}
}

// New creates a vault over store.
func New(store storage.Store, opts ...Option) *Vault {
	v := &Vault{
		store:      store,
		passphrase: DefaultPassphrase,
		salt:       DefaultSalt,
		iterations: DefaultIterations,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Vault) loadAEAD() (cipher.AEAD, error) {
	v.once.Do(func() {
		key := pbkdf2.Key([]byte(v.passphrase), []byte(v.salt), v.iterations, keyLength, sha256.New)
		block, err := aes.NewCipher(key)
		if err != nil {
			v.err = fmt.Errorf("vault: create cipher: %w", err)
			return
		}
		v.aead, v.err = cipher.NewGCM(block)
	})
	return v.aead, v.err
}

// Set encrypts secret byte for byte and persists it, replacing any previous
// value.
func (v *Vault) Set(ctx context.Context, secret string) error {
	if secret == "" {
		return ErrEmptySecret
	}

	ciphertext, iv, err := v.encrypt([]byte(secret))
	if err != nil {
		return err
	}

	err = v.store.Set(ctx, storage.Record{
		KeyCiphertext: base64.StdEncoding.EncodeToString(ciphertext),
		KeyIV:         base64.StdEncoding.EncodeToString(iv),
	})
	if err != nil {
		return fmt.Errorf("vault: persist credential: %w", err)
	}

	v.logger.Info().Msg("credential stored")
	return nil
}

// Get returns the decrypted secret. ok is false when nothing is stored or the
// stored value cannot be decrypted; both cases are reported the same way.
func (v *Vault) Get(ctx context.Context) (secret string, ok bool, err error) {
	rec, err := v.store.Get(ctx, KeyCiphertext, KeyIV)
	if err != nil {
		return "", false, fmt.Errorf("vault: load credential: %w", err)
	}

	encCT, hasCT := rec[KeyCiphertext]
	encIV, hasIV := rec[KeyIV]
	if !hasCT || !hasIV {
		return "", false, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encCT)
	if err != nil {
		v.logger.Warn().Msg("stored credential is not valid base64")
		return "", false, nil
	}
	iv, err := base64.StdEncoding.DecodeString(encIV)
	if err != nil {
		v.logger.Warn().Msg("stored credential iv is not valid base64")
		return "", false, nil
	}

	plaintext, err := v.decrypt(ciphertext, iv)
	if err != nil {
		v.logger.Warn().Err(err).Msg("stored credential could not be decrypted")
		return "", false, nil
	}
	return string(plaintext), true, nil
}

// Has reports whether a decryptable credential is stored.
func (v *Vault) Has(ctx context.Context) (bool, error) {
	_, ok, err := v.Get(ctx)
	return ok, err
}

// Clear removes the stored credential.
func (v *Vault) Clear(ctx context.Context) error {
	if err := v.store.Remove(ctx, KeyCiphertext, KeyIV); err != nil {
		return fmt.Errorf("vault: clear credential: %w", err)
	}
	v.logger.Info().Msg("credential cleared")
	return nil
}

func (v *Vault) encrypt(plaintext []byte) (ciphertext, iv []byte, err error) {
	aead, err := v.loadAEAD()
	if err != nil {
		return nil, nil, err
	}

	iv = make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("vault: generate iv: %w", err)
	}
	return aead.Seal(nil, iv, plaintext, nil), iv, nil
}

func (v *Vault) decrypt(ciphertext, iv []byte) ([]byte, error) {
	aead, err := v.loadAEAD()
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("vault: iv length %d, want %d", len(iv), aead.NonceSize())
	}
	return aead.Open(nil, iv, ciphertext, nil)
}
