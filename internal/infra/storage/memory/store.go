// Package memory provides an in-process implementation of the shared
// key-value store, used for tests and ephemeral environments. Multiple
// sessions over one Store model independent browser contexts sharing a
// single storage area.
package memory

import (
	"context"
	"sync"

	"tabala/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.KV = (*Store)(nil)
	_ domain.KV = (*Session)(nil)
)

type watcher struct {
	fn    func(domain.ChangeSet)
	owner *Session
}

// Store is the shared hub holding durable state. It implements domain.KV
// through a root session; additional sessions share the same data but
// are excluded from notifications for their own writes.
type Store struct {
	mu        sync.Mutex
	data      map[string][]byte
	watchers  map[int]watcher
	nextWatch int
	failSet   map[string]error
	failGet   map[string]error
	root      *Session
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	s := &Store{
		data:     make(map[string][]byte),
		watchers: make(map[int]watcher),
		failSet:  make(map[string]error),
		failGet:  make(map[string]error),
	}
	s.root = &Session{hub: s}
	return s
}

// Session returns a new handle over the same shared state, representing
// an independently running context.
func (s *Store) Session() *Session {
	return &Session{hub: s}
}

// FailSets makes subsequent writes to key fail with err. Passing a nil
// err clears the injection. Test hook.
func (s *Store) FailSets(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failSet, key)
		return
	}
	s.failSet[key] = err
}

// FailGets makes subsequent reads of key fail with err. Passing a nil
// err clears the injection. Test hook.
func (s *Store) FailGets(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failGet, key)
		return
	}
	s.failGet[key] = err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.root.Get(ctx, key)
}

func (s *Store) Set(ctx context.Context, key string, payload []byte) error {
	return s.root.Set(ctx, key, payload)
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.root.Remove(ctx, key)
}

func (s *Store) Watch(fn func(domain.ChangeSet)) (func(), error) {
	return s.root.Watch(fn)
}

// Session is one context's handle on the shared store.
type Session struct {
	hub *Store
}

// Get returns the payload stored under key.
func (c *Session) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if err := c.hub.failGet[key]; err != nil {
		return nil, false, err
	}
	payload, ok := c.hub.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), payload...), true, nil
}

// Set stores payload under key and notifies every watcher registered
// through a different session. Delivery is synchronous.
func (c *Session) Set(_ context.Context, key string, payload []byte) error {
	c.hub.mu.Lock()
	if err := c.hub.failSet[key]; err != nil {
		c.hub.mu.Unlock()
		return err
	}
	old := c.hub.data[key]
	c.hub.data[key] = append([]byte(nil), payload...)
	targets := c.othersLocked()
	c.hub.mu.Unlock()

	change := domain.ChangeSet{key: {Old: old, New: append([]byte(nil), payload...)}}
	for _, fn := range targets {
		fn(change)
	}
	return nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (c *Session) Remove(_ context.Context, key string) error {
	c.hub.mu.Lock()
	old, ok := c.hub.data[key]
	if !ok {
		c.hub.mu.Unlock()
		return nil
	}
	delete(c.hub.data, key)
	targets := c.othersLocked()
	c.hub.mu.Unlock()

	change := domain.ChangeSet{key: {Old: old}}
	for _, fn := range targets {
		fn(change)
	}
	return nil
}

// Watch registers fn for changes written by other sessions.
func (c *Session) Watch(fn func(domain.ChangeSet)) (func(), error) {
	c.hub.mu.Lock()
	id := c.hub.nextWatch
	c.hub.nextWatch++
	c.hub.watchers[id] = watcher{fn: fn, owner: c}
	c.hub.mu.Unlock()
	return func() {
		c.hub.mu.Lock()
		delete(c.hub.watchers, id)
		c.hub.mu.Unlock()
	}, nil
}

func (c *Session) othersLocked() []func(domain.ChangeSet) {
	out := make([]func(domain.ChangeSet), 0, len(c.hub.watchers))
	for _, w := range c.hub.watchers {
		if w.owner == c {
			continue
		}
		out = append(out, w.fn)
	}
	return out
}
