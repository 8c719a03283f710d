package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tabala/internal/infra/storage/memory"
	"tabala/pkg/domain"
)

func testClock() func() time.Time {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return base }
}

func testIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// newTestRepo returns a repository over a fresh in-memory store with the
// default workspace and inbox already seeded.
func newTestRepo(t *testing.T) (*Repository, *memory.Store) {
	t.Helper()
	kv := memory.NewStore()
	migrator, err := NewMigrator(kv, WithMigratorClock(testClock()))
	if err != nil {
		t.Fatalf("new migrator: %v", err)
	}
	if _, err := migrator.Migrate(context.Background()); err != nil {
		t.Fatalf("seed migrate: %v", err)
	}
	repo := NewRepository(kv, WithClock(testClock()), WithIDGenerator(testIDs("id")))
	return repo, kv
}

func TestOrderAssignmentIsMonotonic(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c, err := repo.CreateCollection(ctx, domain.NewCollection{Name: fmt.Sprintf("Shelf %d", i)})
		if err != nil {
			t.Fatalf("create collection %d: %v", i, err)
		}
		// The inbox occupies order 0, so new collections start at 1.
		if c.Order != i+1 {
			t.Fatalf("collection %d: order = %d, want %d", i, c.Order, i+1)
		}
	}
}

func TestOrderStartsAtZeroOnEmptyList(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	w, err := repo.CreateWorkspace(ctx, domain.NewWorkspace{Name: "Research", Color: "#123abc"})
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	// The default workspace already holds 0.
	if w.Order != 1 {
		t.Fatalf("order = %d, want 1", w.Order)
	}

	link, err := repo.CreateLink(ctx, domain.NewLink{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("create link: %v", err)
	}
	if link.CollectionID != domain.InboxID {
		t.Fatalf("collection = %q, want inbox", link.CollectionID)
	}
}

func TestReorderIsAtomicSingleWrite(t *testing.T) {
	repo, kv := newTestRepo(t)
	ctx := context.Background()

	a, _ := repo.CreateCollection(ctx, domain.NewCollection{Name: "Alpha"})
	b, _ := repo.CreateCollection(ctx, domain.NewCollection{Name: "Beta"})
	c, _ := repo.CreateCollection(ctx, domain.NewCollection{Name: "Gamma"})

	got := 0
	session := kv.Session()
	cancel, err := session.Watch(func(cs domain.ChangeSet) {
		if _, ok := cs[domain.KeyCollections]; ok {
			got++
		}
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	if res := repo.ReorderCollections(ctx, []string{c.ID, a.ID, b.ID}); !res.Success {
		t.Fatalf("reorder failed: %s", res.Error)
	}
	if got != 1 {
		t.Fatalf("reorder produced %d collection writes, want 1", got)
	}

	collections, err := repo.Collections(ctx)
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	wantFirst := c.ID
	for _, col := range collections {
		if col.ID == domain.InboxID {
			continue
		}
		if col.ID != wantFirst {
			t.Fatalf("first reordered collection = %s, want %s", col.ID, wantFirst)
		}
		break
	}
}

func TestReorderKeepsUnlistedEntities(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	a, _ := repo.CreateCollection(ctx, domain.NewCollection{Name: "Alpha"})
	_, _ = repo.CreateCollection(ctx, domain.NewCollection{Name: "Beta"})

	if res := repo.ReorderCollections(ctx, []string{a.ID}); !res.Success {
		t.Fatalf("reorder failed: %s", res.Error)
	}
	collections, err := repo.Collections(ctx)
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if len(collections) != 3 {
		t.Fatalf("got %d collections, want 3 (inbox + 2)", len(collections))
	}
}

func TestPersistenceErrorsAreWrapped(t *testing.T) {
	repo, kv := newTestRepo(t)
	ctx := context.Background()

	kv.FailGets(domain.KeyLinks, fmt.Errorf("disk gone"))
	if _, err := repo.Links(ctx); err == nil {
		t.Fatal("expected read error")
	} else if _, ok := err.(*domain.PersistenceError); !ok {
		t.Fatalf("error type = %T, want *domain.PersistenceError", err)
	}
}
