package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the service name records are filed under.
const DefaultKeyringService = "jarvis"

// KeyringStore keeps records in the operating system's credential store
// (macOS Keychain, Secret Service, Windows Credential Manager).
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a store filing entries under service.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service}
}

func (s *KeyringStore) Get(ctx context.Context, keys ...string) (Record, error) {
	rec := make(Record, len(keys))
	for _, k := range compactKeys(keys) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := keyring.Get(s.service, k)
		if errors.Is(err, keyring.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("keyring get %s: %w", k, err)
		}
		rec[k] = v
	}
	return rec, nil
}

func (s *KeyringStore) Set(ctx context.Context, rec Record) error {
	for k, v := range rec {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := keyring.Set(s.service, k, v); err != nil {
			return fmt.Errorf("keyring set %s: %w", k, err)
		}
	}
	return nil
}

func (s *KeyringStore) Remove(ctx context.Context, keys ...string) error {
	for _, k := range compactKeys(keys) {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := keyring.Delete(s.service, k)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keyring delete %s: %w", k, err)
		}
	}
	return nil
}

func (s *KeyringStore) Close() error { return nil }
