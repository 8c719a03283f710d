package core

import (
	"context"
	"time"

	"tabala/pkg/domain"
)

// Migrator applies versionless, idempotent structural transforms to the
// persisted data. Running it N times yields the same state as running it
// once; any adapter failure aborts before the corresponding write.
type Migrator struct {
	kv        domain.KV
	nowFn     func() time.Time
	validator *stateValidator
}

// MigrationReport summarizes what a Migrate call changed.
type MigrationReport struct {
	CreatedDefaultWorkspace  bool
	RepairedDefaultWorkspace bool
	CreatedInbox             bool
	AdoptedCollections       int
}

// Changed reports whether the migration wrote anything.
func (r MigrationReport) Changed() bool {
	return r.CreatedDefaultWorkspace || r.RepairedDefaultWorkspace || r.CreatedInbox || r.AdoptedCollections > 0
}

// NewMigrator constructs a migrator over the supplied KV adapter.
func NewMigrator(kv domain.KV, opts ...MigratorOption) (*Migrator, error) {
	validator, err := newStateValidator()
	if err != nil {
		return nil, err
	}
	m := &Migrator{
		kv:        kv,
		nowFn:     func() time.Time { return time.Now().UTC() },
		validator: validator,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithMigratorClock overrides the timestamp source.
func WithMigratorClock(fn func() time.Time) MigratorOption {
	return func(m *Migrator) { m.nowFn = fn }
}

// Migrate brings the persisted data up to the current structure:
//
//  1. seed the default workspace when no workspace is marked default,
//  2. seed the inbox collection when absent,
//  3. adopt workspace-less, non-inbox collections into the default
//     workspace.
//
// Only keys that actually changed are written back.
func (m *Migrator) Migrate(ctx context.Context) (MigrationReport, error) {
	var report MigrationReport

	rawWorkspaces, _, err := m.kv.Get(ctx, domain.KeyWorkspaces)
	if err != nil {
		return report, &domain.PersistenceError{Op: "read", Key: domain.KeyWorkspaces, Err: err}
	}
	if err := m.validator.validate(domain.KeyWorkspaces, rawWorkspaces); err != nil {
		return report, err
	}
	rawCollections, _, err := m.kv.Get(ctx, domain.KeyCollections)
	if err != nil {
		return report, &domain.PersistenceError{Op: "read", Key: domain.KeyCollections, Err: err}
	}
	if err := m.validator.validate(domain.KeyCollections, rawCollections); err != nil {
		return report, err
	}

	workspaces, err := readList[domain.Workspace](ctx, m.kv, domain.KeyWorkspaces)
	if err != nil {
		return report, err
	}
	collections, err := readList[domain.Collection](ctx, m.kv, domain.KeyCollections)
	if err != nil {
		return report, err
	}

	defaultIdx := -1
	for i := range workspaces {
		if workspaces[i].IsDefault || workspaces[i].ID == domain.DefaultWorkspaceID {
			defaultIdx = i
			break
		}
	}
	switch {
	case defaultIdx == -1:
		workspaces = append(workspaces, domain.Workspace{
			ID:        domain.DefaultWorkspaceID,
			Name:      domain.DefaultWorkspaceName,
			Color:     domain.DefaultWorkspaceColor,
			Order:     0,
			CreatedAt: m.nowFn(),
			IsDefault: true,
		})
		report.CreatedDefaultWorkspace = true
	case !workspaces[defaultIdx].IsDefault:
		// A row already carries the canonical id but lost its flag.
		// Repair it in place rather than seeding a duplicate id.
		workspaces[defaultIdx].IsDefault = true
		report.RepairedDefaultWorkspace = true
	}

	hasInbox := false
	for _, c := range collections {
		if c.ID == domain.InboxID {
			hasInbox = true
			break
		}
	}
	if !hasInbox {
		collections = append(collections, domain.Collection{
			ID:        domain.InboxID,
			Name:      domain.InboxName,
			Order:     0,
			IsDefault: true,
		})
		report.CreatedInbox = true
	}

	for i := range collections {
		if collections[i].ID == domain.InboxID {
			continue
		}
		if collections[i].WorkspaceID == "" {
			collections[i].WorkspaceID = domain.DefaultWorkspaceID
			report.AdoptedCollections++
		}
	}

	if report.CreatedDefaultWorkspace || report.RepairedDefaultWorkspace {
		if err := writeList(ctx, m.kv, domain.KeyWorkspaces, workspaces); err != nil {
			return report, err
		}
	}
	if report.CreatedInbox || report.AdoptedCollections > 0 {
		if err := writeList(ctx, m.kv, domain.KeyCollections, collections); err != nil {
			return report, err
		}
	}
	return report, nil
}
