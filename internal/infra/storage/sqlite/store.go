// Package sqlite persists the shared store in a single SQLite table,
// letting independent local processes share one durable state. Change
// propagation rides a sibling signal file watched with fsnotify, with a
// polling fallback when the watcher cannot be established.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"tabala/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.KV = (*Store)(nil)

const (
	defaultDebounce     = 200 * time.Millisecond
	defaultPollInterval = 10 * time.Second
)

// Store is a sqlite-backed shared store adapter. Every write bumps a
// per-key revision and touches the signal file; watchers rescan revisions
// and deliver the diff, skipping revisions this process wrote itself.
type Store struct {
	db         *sql.DB
	path       string
	signalPath string

	mu        sync.Mutex
	seen      map[string]int64
	cache     map[string][]byte
	watchers  map[int]func(domain.ChangeSet)
	nextWatch int

	debounce     time.Duration
	pollInterval time.Duration

	loopOnce  sync.Once
	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithPollInterval sets the fallback poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.pollInterval = d }
}

// WithDebounce sets the signal-file debounce window.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// NewStore opens (creating if needed) a sqlite-backed store at path.
func NewStore(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = "tabala.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		revision INTEGER NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{
		db:           db,
		path:         path,
		signalPath:   path + ".signal",
		seen:         make(map[string]int64),
		cache:        make(map[string][]byte),
		watchers:     make(map[int]func(domain.ChangeSet)),
		debounce:     defaultDebounce,
		pollInterval: defaultPollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.prime(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// prime records the current revisions so the first scan only reports
// writes made after this store opened.
func (s *Store) prime() error {
	rows, err := s.db.Query(`SELECT key, payload, revision FROM state`)
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
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Set stores payload under key, bumping its revision, and touches the
// signal file so other processes rescan.
func (s *Store) Set(ctx context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rev int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO state(key, payload, revision) VALUES(?, ?, 1)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, revision = state.revision + 1
		 RETURNING revision`, key, payload).Scan(&rev)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	s.seen[key] = rev
	s.cache[key] = append([]byte(nil), payload...)
	s.touchSignal()
	return nil
}

// Remove deletes key and touches the signal file.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	delete(s.seen, key)
	delete(s.cache, key)
	s.touchSignal()
	return nil
}

// Watch registers fn for changes written by other processes. The first
// registration starts the signal-file watcher.
func (s *Store) Watch(fn func(domain.ChangeSet)) (func(), error) {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.mu.Unlock()

	s.loopOnce.Do(func() { go s.watchLoop() })

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}, nil
}

// Close stops the watcher loop and closes the database. Safe to call
// more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		// When no Watch call ever started the loop, mark it done ourselves.
		s.loopOnce.Do(func() { close(s.doneCh) })
		<-s.doneCh
		err = s.db.Close()
	})
	return err
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func (s *Store) touchSignal() {
	// Best effort; a failed touch only delays remote pickup until the
	// next poll.
	_ = os.WriteFile(s.signalPath, []byte(strconv.FormatInt(time.Now().UnixNano(), 10)), 0o644)
}

// watchLoop mirrors the fsnotify-with-poll-fallback pattern: react to
// signal file events debounced, and rescan on a timer regardless.
func (s *Store) watchLoop() {
	defer close(s.doneCh)

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if werr := watcher.Add(filepath.Dir(s.signalPath)); werr == nil {
			events = make(chan fsnotify.Event, 16)
			go func() {
				for {
					select {
					case ev, ok := <-watcher.Events:
						if !ok {
							return
						}
						if filepath.Base(ev.Name) == filepath.Base(s.signalPath) {
							select {
							case events <- ev:
							default:
							}
						}
					case _, ok := <-watcher.Errors:
						if !ok {
							return
						}
					}
				}
			}()
		} else {
			_ = watcher.Close()
			watcher = nil
		}
	}
	if watcher != nil {
		defer func() { _ = watcher.Close() }()
	}

	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()
	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-s.stopCh:
			return
		case <-events:
			if debounce == nil {
				debounce = time.NewTimer(s.debounce)
				debounceCh = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(s.debounce)
			}
		case <-debounceCh:
			debounce = nil
			debounceCh = nil
			s.scan()
		case <-poll.C:
			s.scan()
		}
	}
}

// scan diffs stored revisions against the last observed ones and
// delivers the resulting change set. Own writes were already marked seen
// at write time and do not reappear here.
func (s *Store) scan() {
	rows, err := s.db.Query(`SELECT key, payload, revision FROM state`)
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
