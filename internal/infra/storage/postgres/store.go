// Package postgres persists the shared store in a PostgreSQL table so
// contexts on different machines share one durable state. Change
// propagation is revision polling; the poll interval bounds staleness.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"tabala/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.KV = (*Store)(nil)

const (
	defaultDriver       = "pgx"
	defaultDSN          = "postgres://localhost/tabala?sslmode=disable"
	defaultPollInterval = 2 * time.Second
)

// Store is a postgres-backed shared store adapter.
type Store struct {
	db *sql.DB

	mu        sync.Mutex
	seen      map[string]int64
	cache     map[string][]byte
	watchers  map[int]func(domain.ChangeSet)
	nextWatch int

	pollInterval time.Duration

	loopOnce  sync.Once
	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithPollInterval sets the change-scan interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.pollInterval = d }
}

// NewStore opens a postgres-backed store using the provided DSN (falls
// back to a localhost default).
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(defaultDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tabala_state (
		key TEXT PRIMARY KEY,
		payload BYTEA NOT NULL,
		revision BIGINT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{
		db:           db,
		seen:         make(map[string]int64),
		cache:        make(map[string][]byte),
		watchers:     make(map[int]func(domain.ChangeSet)),
		pollInterval: defaultPollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.prime(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) prime(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key, payload, revision FROM tabala_state`)
	if err != nil {
		return fmt.Errorf("prime state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var key string
		var payload []byte
		var rev int64
		if err := rows.Scan(&key, &payload, &rev); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		s.seen[key] = rev
		s.cache[key] = payload
	}
	return rows.Err()
}

// Get returns the payload stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM tabala_state WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Set stores payload under key, bumping its revision.
func (s *Store) Set(ctx context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rev int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO tabala_state(key, payload, revision) VALUES($1, $2, 1)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, revision = tabala_state.revision + 1
		 RETURNING revision`, key, payload).Scan(&rev)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	s.seen[key] = rev
	s.cache[key] = append([]byte(nil), payload...)
	return nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tabala_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	delete(s.seen, key)
	delete(s.cache, key)
	return nil
}

// Watch registers fn for changes written by other processes. The first
// registration starts the polling loop.
func (s *Store) Watch(fn func(domain.ChangeSet)) (func(), error) {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.mu.Unlock()

	s.loopOnce.Do(func() { go s.pollLoop() })

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}, nil
}

// Close stops the polling loop and closes the database. Safe to call
// more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.loopOnce.Do(func() { close(s.doneCh) })
		<-s.doneCh
		err = s.db.Close()
	})
	return err
}

func (s *Store) pollLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.scan()
		}
	}
}

// scan diffs stored revisions against the last observed ones and
// delivers the resulting change set.
func (s *Store) scan() {
	rows, err := s.db.Query(`SELECT key, payload, revision FROM tabala_state`)
	if err != nil {
		return
	}
	type row struct {
		key     string
		payload []byte
		rev     int64
	}
	var current []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.payload, &r.rev); err != nil {
			_ = rows.Close()
			return
		}
		current = append(current, r)
	}
	_ = rows.Close()

	s.mu.Lock()
	changes := domain.ChangeSet{}
	live := make(map[string]struct{}, len(current))
	for _, r := range current {
		live[r.key] = struct{}{}
		if s.seen[r.key] == r.rev {
			continue
		}
		changes[r.key] = domain.KeyChange{Old: s.cache[r.key], New: r.payload}
		s.seen[r.key] = r.rev
		s.cache[r.key] = r.payload
	}
	for key := range s.seen {
		if _, ok := live[key]; ok {
			continue
		}
		changes[key] = domain.KeyChange{Old: s.cache[key]}
		delete(s.seen, key)
		delete(s.cache, key)
	}
	var targets []func(domain.ChangeSet)
	if len(changes) > 0 {
		targets = make([]func(domain.ChangeSet), 0, len(s.watchers))
		for _, fn := range s.watchers {
			targets = append(targets, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range targets {
		fn(changes)
	}
}
