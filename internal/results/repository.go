package results

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Change describes a repository mutation handed to a change publisher.
// Previous is nil when the key had no prior value; Current is nil when the
// key transitioned into absence.
type Change[T any] struct {
	Key      string
	Previous *T
	Current  *T
}

// Repository is a read-through cache in front of a RecordStore. The memory
// tier is the fast path; the store is the source of truth. Every durable
// write updates the memory tier so a save followed by a get returns the
// saved value without a re-fetch.
type Repository[T any] struct {
	store   RecordStore
	prefix  string
	publish func(Change[T])

	mu    sync.Mutex
	cache map[string]T
}

// NewRepository creates a repository whose keys live under the given prefix
// in the record store. The publish callback, when non-nil, is invoked after
// every observable state change.
func NewRepository[T any](store RecordStore, prefix string, publish func(Change[T])) *Repository[T] {
	return &Repository[T]{
		store:   store,
		prefix:  prefix,
		publish: publish,
		cache:   make(map[string]T),
	}
}

func (r *Repository[T]) recordKey(key string) string {
	return r.prefix + "/" + key
}

// Save writes the value durably, then updates the memory tier, then reports
// the change with the previous value when one existed.
func (r *Repository[T]) Save(ctx context.Context, key string, value T) error {
	previous, found, err := r.lookup(ctx, key, false)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s result: %w", r.prefix, err)
	}
	if err := r.store.WriteRecord(ctx, r.recordKey(key), data); err != nil {
		return err
	}

	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()

	if r.publish != nil {
		change := Change[T]{Key: key, Current: &value}
		if found {
			change.Previous = &previous
		}
		r.publish(change)
	}
	return nil
}

// Get returns the value for key, reading through to the store on a cache
// miss and populating the cache on a hit there. A miss in both tiers is a
// defined absence: ok is false and no cache entry is created.
func (r *Repository[T]) Get(ctx context.Context, key string) (T, bool, error) {
	return r.lookup(ctx, key, true)
}

func (r *Repository[T]) lookup(ctx context.Context, key string, populate bool) (T, bool, error) {
	var zero T

	r.mu.Lock()
	cached, hit := r.cache[key]
	r.mu.Unlock()
	if hit {
		return cached, true, nil
	}

	data, err := r.store.ReadRecord(ctx, r.recordKey(key))
	if err != nil {
		return zero, false, err
	}
	if data == nil {
		return zero, false, nil
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, false, fmt.Errorf("decode %s result: %w", r.prefix, err)
	}
	if populate {
		r.mu.Lock()
		r.cache[key] = value
		r.mu.Unlock()
	}
	return value, true, nil
}

// Has reports whether a value exists in either tier without populating the
// cache.
func (r *Repository[T]) Has(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	_, hit := r.cache[key]
	r.mu.Unlock()
	if hit {
		return true, nil
	}
	return r.store.HasRecord(ctx, r.recordKey(key))
}

// Delete removes the key from both tiers and reports the transition into
// absence when a value existed.
func (r *Repository[T]) Delete(ctx context.Context, key string) error {
	previous, found, err := r.lookup(ctx, key, false)
	if err != nil {
		return err
	}

	if err := r.store.DeleteRecord(ctx, r.recordKey(key)); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()

	if found && r.publish != nil {
		r.publish(Change[T]{Key: key, Previous: &previous})
	}
	return nil
}

// DeleteAllForMemo removes every key under the memo from both tiers and
// returns how many durable records were removed. Each removed value is
// reported as a transition into absence, the same as Delete.
func (r *Repository[T]) DeleteAllForMemo(ctx context.Context, memoID string) (int, error) {
	base := r.recordKey(memoID)
	keys, err := r.store.ListKeys(ctx, base)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, recordKey := range keys {
		// Prefix listing would also match memo-10 when deleting memo-1.
		if recordKey != base && !strings.HasPrefix(recordKey, base+"/") {
			continue
		}
		key := strings.TrimPrefix(recordKey, r.prefix+"/")
		previous, found, err := r.lookup(ctx, key, false)
		if err != nil {
			return removed, err
		}
		if err := r.store.DeleteRecord(ctx, recordKey); err != nil {
			return removed, err
		}
		r.mu.Lock()
		delete(r.cache, key)
		r.mu.Unlock()
		removed++
		if found && r.publish != nil {
			r.publish(Change[T]{Key: key, Previous: &previous})
		}
	}

	r.mu.Lock()
	for key := range r.cache {
		if key == memoID || strings.HasPrefix(key, memoID+"/") {
			delete(r.cache, key)
		}
	}
	r.mu.Unlock()
	return removed, nil
}

// ClearCache drops the memory tier. Durable data is untouched; the next Get
// transparently repopulates.
func (r *Repository[T]) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]T)
	r.mu.Unlock()
}

// GetMany returns the values for the given keys, serving cache hits from
// memory and reading through only for the misses. Absent keys are simply
// omitted from the result.
func (r *Repository[T]) GetMany(ctx context.Context, keys []string) (map[string]T, error) {
	out := make(map[string]T, len(keys))
	var misses []string

	r.mu.Lock()
	for _, key := range keys {
		if value, hit := r.cache[key]; hit {
			out[key] = value
		} else {
			misses = append(misses, key)
		}
	}
	r.mu.Unlock()

	for _, key := range misses {
		value, found, err := r.lookup(ctx, key, true)
		if err != nil {
			return nil, err
		}
		if found {
			out[key] = value
		}
	}
	return out, nil
}

// CacheSize returns the number of entries in the memory tier.
func (r *Repository[T]) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
