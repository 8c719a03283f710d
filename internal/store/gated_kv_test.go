package store

import (
	"context"
	"sync"

	"tabala/pkg/domain"
)

// gatedKV wraps a KV adapter and can hold writes at the adapter
// boundary, keeping a coordinator mutation in its pending window for as
// long as the test needs.
type gatedKV struct {
	inner domain.KV

	mu      sync.Mutex
	held    bool
	entered chan struct{}
	release chan struct{}
}

func newGatedKV(inner domain.KV) *gatedKV {
	return &gatedKV{inner: inner}
}

// Hold makes the next writes block until Release.
func (g *gatedKV) Hold() {
	g.mu.Lock()
	g.held = true
	g.entered = make(chan struct{}, 1)
	g.release = make(chan struct{})
	g.mu.Unlock()
}

// Entered signals once a held write reached the adapter.
func (g *gatedKV) Entered() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entered
}

// Release lets held writes proceed.
func (g *gatedKV) Release() {
	g.mu.Lock()
	if g.held {
		g.held = false
		close(g.release)
	}
	g.mu.Unlock()
}

func (g *gatedKV) gate() {
	g.mu.Lock()
	if !g.held {
		g.mu.Unlock()
		return
	}
	entered, release := g.entered, g.release
	g.mu.Unlock()

	select {
	case entered <- struct{}{}:
	default:
	}
	<-release
}

func (g *gatedKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return g.inner.Get(ctx, key)
}

func (g *gatedKV) Set(ctx context.Context, key string, payload []byte) error {
	g.gate()
	return g.inner.Set(ctx, key, payload)
}

func (g *gatedKV) Remove(ctx context.Context, key string) error {
	g.gate()
	return g.inner.Remove(ctx, key)
}

func (g *gatedKV) Watch(fn func(domain.ChangeSet)) (func(), error) {
	return g.inner.Watch(fn)
}
