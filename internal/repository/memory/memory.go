// Package memory implements repository.KVStore on a map with a total byte
// quota. It backs tests and ephemeral runs, and lets write failures be
// exercised the way a full browser local-storage area would produce them.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sakif/sql-snippets/internal/repository"
)

// DefaultQuota matches the common 5 MB local-storage budget.
const DefaultQuota int64 = 5 * 1024 * 1024

var _ repository.KVStore = (*KV)(nil)

// KV is a quota-bounded in-memory key/value medium. Safe for concurrent use.
type KV struct {
	mu    sync.RWMutex
	data  map[string][]byte
	used  int64
	quota int64
}

// New returns an empty KV. A quota <= 0 means unlimited.
func New(quota int64) *KV {
	return &KV{
		data:  make(map[string][]byte),
		quota: quota,
	}
}

// Get returns a copy of the value so callers cannot mutate stored bytes.
func (kv *KV) Get(_ context.Context, key string) ([]byte, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	v, ok := kv.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set stores value under key. Keys and values both count toward the quota.
func (kv *KV) Set(_ context.Context, key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	size := int64(len(key) + len(value))
	var prev int64
	if old, ok := kv.data[key]; ok {
		prev = int64(len(key) + len(old))
	}

	if kv.quota > 0 && kv.used-prev+size > kv.quota {
		return fmt.Errorf("memory: writing key %s (%d bytes): %w", key, size, repository.ErrQuotaExceeded)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	kv.data[key] = stored
	kv.used += size - prev
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (kv *KV) Delete(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if old, ok := kv.data[key]; ok {
		kv.used -= int64(len(key) + len(old))
		delete(kv.data, key)
	}
	return nil
}

// Used reports the bytes currently counted against the quota.
func (kv *KV) Used() int64 {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return kv.used
}
