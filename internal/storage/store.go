// Package storage provides the durable key-value contract used by the
// credential vault and the offline request queue, with memory, SQLite, Redis
// and OS-keyring backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Record is a flat set of key/value pairs.
type Record map[string]string

// Store is an asynchronous key-value store. Get omits keys that are not
// present; Remove ignores keys that are not present.
type Store interface {
	Get(ctx context.Context, keys ...string) (Record, error)
	Set(ctx context.Context, rec Record) error
	Remove(ctx context.Context, keys ...string) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory  = "memory"
	DriverSQLite  = "sqlite"
	DriverRedis   = "redis"
	DriverKeyring = "keyring"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store is closed")

// Config selects and configures a backend.
type Config struct {
	Driver    string
	Path      string // sqlite database file
	RedisAddr string
	RedisDB   int
	KeyPrefix string // redis key prefix
	Service   string // keyring service name
}

// Open constructs the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(cfg.Path)
	case DriverRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:      cfg.RedisAddr,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
		})
	case DriverKeyring:
		return NewKeyringStore(cfg.Service), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

func compactKeys(keys []string) []string {
	out := keys[:0:0]
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
