// Package core implements the entity repository, the migration engine,
// and the storage driver factory for the tabala domain.
package core

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"tabala/internal/validation"
	"tabala/pkg/domain"
)

// Repository provides CRUD and ordering over links, collections, and
// workspaces. Each operation reads the full list for a kind, mutates it
// in memory, and writes it back as a single KV set; the list is the unit
// of persistence. There are no transactions across keys.
type Repository struct {
	kv    domain.KV
	nowFn func() time.Time
	newID func() string
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithClock overrides the timestamp source.
func WithClock(fn func() time.Time) RepositoryOption {
	return func(r *Repository) { r.nowFn = fn }
}

// WithIDGenerator overrides the entity id source.
func WithIDGenerator(fn func() string) RepositoryOption {
	return func(r *Repository) { r.newID = fn }
}

// NewRepository constructs a repository over the supplied KV adapter.
func NewRepository(kv domain.KV, opts ...RepositoryOption) *Repository {
	r := &Repository{
		kv:    kv,
		nowFn: func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// readList decodes the full entity list stored under key. Absent keys
// decode as an empty list.
func readList[T any](ctx context.Context, kv domain.KV, key string) ([]T, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read", Key: key, Err: err}
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.PersistenceError{Op: "decode", Key: key, Err: err}
	}
	return out, nil
}

// writeList persists the full entity list under key as one set call.
func writeList[T any](ctx context.Context, kv domain.KV, key string, items []T) error {
	data, err := json.Marshal(items)
	if err != nil {
		return &domain.PersistenceError{Op: "encode", Key: key, Err: err}
	}
	if err := kv.Set(ctx, key, data); err != nil {
		return &domain.PersistenceError{Op: "write", Key: key, Err: err}
	}
	return nil
}

// nextOrder assigns max(existing)+1, or 0 for an empty list.
func nextOrder[T any](items []T, order func(T) int) int {
	if len(items) == 0 {
		return 0
	}
	max := order(items[0])
	for _, item := range items[1:] {
		if o := order(item); o > max {
			max = o
		}
	}
	return max + 1
}

// named projects entities into the shape the name validator consumes.
func named[T any](items []T, id func(T) string, name func(T) string) []validation.Named {
	out := make([]validation.Named, 0, len(items))
	for _, item := range items {
		out = append(out, validation.Named{ID: id(item), Name: name(item)})
	}
	return out
}

// applyOrder replaces every listed entity's order with its position in
// ids and re-sorts the slice. Entities missing from ids keep their order;
// the sort is stable so existing ties keep insertion order.
func applyOrder[T any](items []T, ids []string, id func(T) string, order func(T) int, setOrder func(*T, int)) {
	pos := make(map[string]int, len(ids))
	for i, v := range ids {
		pos[v] = i
	}
	for i := range items {
		if p, ok := pos[id(items[i])]; ok {
			setOrder(&items[i], p)
		}
	}
	sortByOrder(items, order)
}

// sortByOrder stable-sorts entities ascending by order so ties keep
// insertion order.
func sortByOrder[T any](items []T, order func(T) int) {
	sort.SliceStable(items, func(i, j int) bool {
		return order(items[i]) < order(items[j])
	})
}
