package core

import (
	"context"
	"encoding/json"
	"testing"

	"tabala/internal/infra/storage/memory"
	"tabala/pkg/domain"
)

func newTestMigrator(t *testing.T, kv domain.KV) *Migrator {
	t.Helper()
	m, err := NewMigrator(kv, WithMigratorClock(testClock()))
	if err != nil {
		t.Fatalf("new migrator: %v", err)
	}
	return m
}

func TestMigrateSeedsEmptyStore(t *testing.T) {
	kv := memory.NewStore()
	m := newTestMigrator(t, kv)
	ctx := context.Background()

	report, err := m.Migrate(ctx)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !report.CreatedDefaultWorkspace || !report.CreatedInbox {
		t.Fatalf("report = %+v, want default workspace and inbox created", report)
	}

	workspaces, err := readList[domain.Workspace](ctx, kv, domain.KeyWorkspaces)
	if err != nil {
		t.Fatalf("read workspaces: %v", err)
	}
	if len(workspaces) != 1 || workspaces[0].ID != domain.DefaultWorkspaceID || !workspaces[0].IsDefault {
		t.Fatalf("workspaces = %+v", workspaces)
	}
	collections, err := readList[domain.Collection](ctx, kv, domain.KeyCollections)
	if err != nil {
		t.Fatalf("read collections: %v", err)
	}
	if len(collections) != 1 || collections[0].ID != domain.InboxID || !collections[0].IsDefault {
		t.Fatalf("collections = %+v", collections)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	kv := memory.NewStore()
	m := newTestMigrator(t, kv)
	ctx := context.Background()

	if _, err := m.Migrate(ctx); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	firstWorkspaces, _, _ := kv.Get(ctx, domain.KeyWorkspaces)
	firstCollections, _, _ := kv.Get(ctx, domain.KeyCollections)

	writes := 0
	session := kv.Session()
	cancel, err := session.Watch(func(domain.ChangeSet) { writes++ })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	report, err := m.Migrate(ctx)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if report.Changed() {
		t.Fatalf("second run reported changes: %+v", report)
	}
	if writes != 0 {
		t.Fatalf("second run wrote %d times, want 0", writes)
	}

	secondWorkspaces, _, _ := kv.Get(ctx, domain.KeyWorkspaces)
	secondCollections, _, _ := kv.Get(ctx, domain.KeyCollections)
	if string(firstWorkspaces) != string(secondWorkspaces) || string(firstCollections) != string(secondCollections) {
		t.Fatal("second run changed persisted payloads")
	}
}

func TestMigrateAdoptsOrphanCollections(t *testing.T) {
	kv := memory.NewStore()
	ctx := context.Background()

	legacy := []domain.Collection{
		{ID: domain.InboxID, Name: domain.InboxName, Order: 0, IsDefault: true},
		{ID: "c1", Name: "Old Stuff", Order: 1},
	}
	raw, _ := json.Marshal(legacy)
	if err := kv.Set(ctx, domain.KeyCollections, raw); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := newTestMigrator(t, kv)
	report, err := m.Migrate(ctx)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if report.AdoptedCollections != 1 {
		t.Fatalf("adopted = %d, want 1", report.AdoptedCollections)
	}

	collections, _ := readList[domain.Collection](ctx, kv, domain.KeyCollections)
	for _, c := range collections {
		if c.ID == "c1" && c.WorkspaceID != domain.DefaultWorkspaceID {
			t.Fatalf("orphan not adopted: %+v", c)
		}
		if c.ID == domain.InboxID && c.WorkspaceID != "" {
			t.Fatalf("inbox must stay global: %+v", c)
		}
	}
}

func TestMigratePreservesExistingDefaultWorkspace(t *testing.T) {
	kv := memory.NewStore()
	ctx := context.Background()

	existing := []domain.Workspace{{ID: "mine", Name: "Mine", Order: 0, IsDefault: true}}
	raw, _ := json.Marshal(existing)
	if err := kv.Set(ctx, domain.KeyWorkspaces, raw); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := newTestMigrator(t, kv)
	report, err := m.Migrate(ctx)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if report.CreatedDefaultWorkspace {
		t.Fatal("must not create a second default workspace")
	}
}

func TestMigrateRepairsUnflaggedDefaultWorkspace(t *testing.T) {
	kv := memory.NewStore()
	ctx := context.Background()

	existing := []domain.Workspace{{ID: domain.DefaultWorkspaceID, Name: domain.DefaultWorkspaceName, Color: domain.DefaultWorkspaceColor, Order: 0}}
	raw, _ := json.Marshal(existing)
	if err := kv.Set(ctx, domain.KeyWorkspaces, raw); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := newTestMigrator(t, kv)
	report, err := m.Migrate(ctx)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if report.CreatedDefaultWorkspace {
		t.Fatal("must not seed a duplicate of the canonical workspace id")
	}
	if !report.RepairedDefaultWorkspace {
		t.Fatal("missing flag not repaired")
	}

	workspaces, _ := readList[domain.Workspace](ctx, kv, domain.KeyWorkspaces)
	if len(workspaces) != 1 {
		t.Fatalf("workspaces = %+v, want a single row", workspaces)
	}
	if !workspaces[0].IsDefault {
		t.Fatalf("flag not persisted: %+v", workspaces[0])
	}

	// A second run must not touch anything.
	report, err = m.Migrate(ctx)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if report.RepairedDefaultWorkspace || report.Changed() {
		t.Fatalf("second run not a no-op: %+v", report)
	}
}

func TestMigrateAbortsOnCorruptPayload(t *testing.T) {
	kv := memory.NewStore()
	ctx := context.Background()

	if err := kv.Set(ctx, domain.KeyWorkspaces, []byte(`{"not":"a list"}`)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := newTestMigrator(t, kv)
	if _, err := m.Migrate(ctx); err == nil {
		t.Fatal("expected validation failure")
	} else if _, ok := err.(*domain.PersistenceError); !ok {
		t.Fatalf("error type = %T, want *domain.PersistenceError", err)
	}
}

func TestMigrateAbortsOnReadFailure(t *testing.T) {
	kv := memory.NewStore()
	kv.FailGets(domain.KeyWorkspaces, context.DeadlineExceeded)

	m := newTestMigrator(t, kv)
	if _, err := m.Migrate(context.Background()); err == nil {
		t.Fatal("expected read failure")
	}
}

func TestStateSchemaRejectsMalformedEntities(t *testing.T) {
	validator, err := newStateValidator()
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}

	cases := []struct {
		key     string
		raw     string
		wantErr bool
	}{
		{domain.KeyLinks, `[]`, false},
		{domain.KeyLinks, `[{"id":"l1","url":"https://a.test","collectionId":"inbox"}]`, false},
		{domain.KeyLinks, `[{"id":"l1"}]`, true},
		{domain.KeyCollections, `[{"id":"inbox","name":"Inbox","order":0}]`, false},
		{domain.KeyCollections, `[{"id":"inbox","name":"Inbox","order":"first"}]`, true},
		{domain.KeyWorkspaces, `[{"id":"w","name":"W","order":0}]`, false},
		{domain.KeyWorkspaces, `"nope"`, true},
		{domain.KeySettings, `"anything"`, false},
	}
	for _, tc := range cases {
		err := validator.validate(tc.key, []byte(tc.raw))
		if tc.wantErr && err == nil {
			t.Fatalf("%s %s: expected error", tc.key, tc.raw)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s %s: unexpected error %v", tc.key, tc.raw, err)
		}
	}
}
