// Package pebble implements key-value tiers on a local pebble database.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/pebble"
)

// DB is a pebble database shared by several namespaced KVs, such as the
// durable and the ephemeral tier of one profile.
type DB struct {
	db *pebble.DB
}

// Open opens or creates the database at path. pebble's own messages go to
// logger, informational ones at debug level. logger and opts may be nil.
func Open(path string, logger *slog.Logger, opts *pebble.Options) (*DB, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	if opts.Logger == nil {
		if logger == nil {
			logger = slog.Default()
		}
		opts.Logger = pebbleLogger{logger: logger}
	}
	if opts.FS == nil {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database. KVs obtained from d must not be used afterwards.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// KV returns the tier stored under namespace. Keys of one namespace are
// never visible from another.
func (d *DB) KV(namespace string) (*KV, error) {
	if namespace == "" {
		return nil, errors.New("namespace is required")
	}
	if strings.ContainsRune(namespace, 0) {
		return nil, fmt.Errorf("namespace %q contains NUL", namespace)
	}
	return &KV{db: d.db, prefix: []byte(namespace + "\x00")}, nil
}

// KV stores keys as namespace, NUL, key.
type KV struct {
	db     *pebble.DB
	prefix []byte
}

func (kv *KV) key(k string) []byte {
	return append(append([]byte(nil), kv.prefix...), k...)
}

func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, closer, err := kv.db.Get(kv.key(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()
	return string(v), true, nil
}

func (kv *KV) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := kv.db.Set(kv.key(key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (kv *KV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := kv.db.Delete(kv.key(key), pebble.Sync); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys lists the keys stored under the namespace.
func (kv *KV) Keys(ctx context.Context) ([]string, error) {
	upper := append([]byte(nil), kv.prefix...)
	upper[len(upper)-1]++
	it, err := kv.db.NewIter(&pebble.IterOptions{LowerBound: kv.prefix, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	defer it.Close()

	var keys []string
	for ok := it.First(); ok; ok = it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys = append(keys, string(it.Key()[len(kv.prefix):]))
	}
	return keys, it.Error()
}
