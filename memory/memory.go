// Package memory implements a process-scoped key-value tier.
package memory

import (
	"context"
	"sync"
)

// KV is a map guarded by a mutex. The zero value is ready to use.
type KV struct {
	mu   sync.RWMutex
	data map[string]string
}

// New returns a KV pre-filled with a copy of seed.
func New(seed map[string]string) *KV {
	kv := &KV{data: make(map[string]string, len(seed))}
	for k, v := range seed {
		kv.data[k] = v
	}
	return kv
}

func (kv *KV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	v, ok := kv.data[key]
	return v, ok, nil
}

func (kv *KV) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.data == nil {
		kv.data = make(map[string]string)
	}
	kv.data[key] = value
	return nil
}

func (kv *KV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, key)
	return nil
}

// Snapshot returns a copy of the stored pairs.
func (kv *KV) Snapshot() map[string]string {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	out := make(map[string]string, len(kv.data))
	for k, v := range kv.data {
		out[k] = v
	}
	return out
}
