package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"tabala/internal/core"
	"tabala/pkg/domain"
)

// Store is the per-context synchronization coordinator. It keeps a
// snapshot of the shared state, applies mutations optimistically before
// the repository confirms them, rolls the affected fragment back on
// failure, and merges change feeds from other contexts.
//
// Every mutation follows the same protocol: capture the affected lists,
// apply the expected outcome to the snapshot, mark the touched entity id
// and storage keys as pending, run the repository call without holding
// the lock, then either confirm or restore the captured fragment.
type Store struct {
	kv       domain.KV
	repo     *core.Repository
	migrator *core.Migrator
	prefs    *Prefs

	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder

	mu          sync.Mutex
	snap        Snapshot
	pendingIDs  map[string]int
	pendingKeys map[string]int
	unwatch     func()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger wires a structured logger.
func WithLogger(l Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder wires a metrics sink for operation outcomes.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer wires a tracer opening one span per operation.
func WithTracer(t Tracer) Option {
	return func(s *Store) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder wires an audit sink receiving one entry per mutation.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Store) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithRepository replaces the default repository, e.g. to inject a
// deterministic clock or id generator in tests.
func WithRepository(r *core.Repository) Option {
	return func(s *Store) {
		if r != nil {
			s.repo = r
		}
	}
}

// WithMigrator replaces the default migrator.
func WithMigrator(m *core.Migrator) Option {
	return func(s *Store) {
		if m != nil {
			s.migrator = m
		}
	}
}

// WithPrefs wires the per-context preference file.
func WithPrefs(p *Prefs) Option {
	return func(s *Store) {
		if p != nil {
			s.prefs = p
		}
	}
}

// New constructs a coordinator over kv. The repository and migrator
// default to instances backed by the same kv.
func New(kv domain.KV, opts ...Option) (*Store, error) {
	s := &Store{
		kv:          kv,
		repo:        core.NewRepository(kv),
		logger:      noopLogger{},
		metrics:     noopMetrics{},
		tracer:      noopTracer{},
		audit:       noopAudit{},
		pendingIDs:  make(map[string]int),
		pendingKeys: make(map[string]int),
		snap:        Snapshot{ActiveWorkspaceID: domain.DefaultWorkspaceID},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.migrator == nil {
		m, err := core.NewMigrator(kv)
		if err != nil {
			return nil, fmt.Errorf("build migrator: %w", err)
		}
		s.migrator = m
	}
	if s.prefs == nil {
		p, err := NewPrefs("")
		if err != nil {
			return nil, err
		}
		s.prefs = p
	}
	return s, nil
}

// Load migrates the shared state, reads every list, and replaces the
// snapshot. Concurrent loads are not deduplicated; the last one to
// finish wins.
func (s *Store) Load(ctx context.Context) error {
	ctx, finish := s.instrument(ctx, "store.load", "", "")

	s.mu.Lock()
	s.snap.Loading = true
	s.mu.Unlock()

	err := s.load(ctx)

	s.mu.Lock()
	s.snap.Loading = false
	if err != nil {
		s.snap.Err = err.Error()
	}
	s.mu.Unlock()

	finish("", err)
	return err
}

func (s *Store) load(ctx context.Context) error {
	report, err := s.migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if report.Changed() {
		s.logger.Info("state migrated",
			"created_default_workspace", report.CreatedDefaultWorkspace,
			"created_inbox", report.CreatedInbox,
			"adopted_collections", report.AdoptedCollections)
	}

	links, err := s.repo.Links(ctx)
	if err != nil {
		return err
	}
	collections, err := s.repo.Collections(ctx)
	if err != nil {
		return err
	}
	workspaces, err := s.repo.Workspaces(ctx)
	if err != nil {
		return err
	}

	active := validActiveWorkspace(workspaces, func() string {
		if id, ok := s.prefs.ActiveWorkspace(); ok {
			return id
		}
		return ""
	}())

	s.mu.Lock()
	s.snap = Snapshot{
		Links:             links,
		Collections:       collections,
		Workspaces:        workspaces,
		ActiveWorkspaceID: active,
		Loading:           true,
	}
	s.mu.Unlock()
	return nil
}

// validActiveWorkspace returns candidate when it names an existing
// workspace, otherwise the default workspace id.
func validActiveWorkspace(workspaces []domain.Workspace, candidate string) string {
	fallback := domain.DefaultWorkspaceID
	for _, w := range workspaces {
		if w.IsDefault {
			fallback = w.ID
		}
		if candidate != "" && w.ID == candidate {
			return candidate
		}
	}
	return fallback
}

// Start subscribes to the change feed of the underlying store. Calling
// Start more than once replaces the previous subscription.
func (s *Store) Start() error {
	cancel, err := s.kv.Watch(s.handleRemote)
	if err != nil {
		return fmt.Errorf("watch store: %w", err)
	}
	s.mu.Lock()
	if s.unwatch != nil {
		s.unwatch()
	}
	s.unwatch = cancel
	s.mu.Unlock()
	return nil
}

// Close cancels the change feed subscription.
func (s *Store) Close() {
	s.mu.Lock()
	cancel := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// handleRemote merges a change set written by another context into the
// snapshot. Keys with a local write in flight are skipped; the local
// confirmation or rollback supersedes the stale notification.
func (s *Store) handleRemote(cs domain.ChangeSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, change := range cs {
		if s.pendingKeys[key] > 0 {
			s.logger.Debug("remote change suppressed", "key", key)
			continue
		}
		switch key {
		case domain.KeyLinks:
			var links []domain.Link
			if !decodeRemote(change.New, &links, s.logger, key) {
				continue
			}
			s.snap.Links = links
		case domain.KeyCollections:
			var collections []domain.Collection
			if !decodeRemote(change.New, &collections, s.logger, key) {
				continue
			}
			s.snap.Collections = collections
		case domain.KeyWorkspaces:
			var workspaces []domain.Workspace
			if !decodeRemote(change.New, &workspaces, s.logger, key) {
				continue
			}
			s.snap.Workspaces = workspaces
			s.snap.ActiveWorkspaceID = validActiveWorkspace(workspaces, s.snap.ActiveWorkspaceID)
		}
	}
}

func decodeRemote(raw []byte, dst any, logger Logger, key string) bool {
	if len(raw) == 0 {
		// Key removed remotely; treat as an empty list.
		return true
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.Warn("remote payload rejected", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) markPendingLocked(ids []string, keys ...string) {
	for _, id := range ids {
		s.pendingIDs[id]++
	}
	for _, key := range keys {
		s.pendingKeys[key]++
	}
}

func (s *Store) clearPendingLocked(ids []string, keys ...string) {
	for _, id := range ids {
		if s.pendingIDs[id]--; s.pendingIDs[id] <= 0 {
			delete(s.pendingIDs, id)
		}
	}
	for _, key := range keys {
		if s.pendingKeys[key]--; s.pendingKeys[key] <= 0 {
			delete(s.pendingKeys, key)
		}
	}
}

// AddLink persists a new link and appends it to the snapshot. The
// repository resolves an empty collection id to the inbox.
func (s *Store) AddLink(ctx context.Context, in domain.NewLink) (domain.Link, error) {
	ctx, finish := s.instrument(ctx, "store.add_link", domain.EntityLink, domain.ActionCreate)

	s.mu.Lock()
	s.markPendingLocked(nil, domain.KeyLinks)
	s.mu.Unlock()

	link, err := s.repo.CreateLink(ctx, in)

	s.mu.Lock()
	s.clearPendingLocked(nil, domain.KeyLinks)
	if err == nil {
		s.snap.Links = append(s.snap.Links, link)
		s.snap.Err = ""
	}
	s.mu.Unlock()

	finish(link.ID, err)
	return link, err
}

// RemoveLink deletes a link optimistically. When the link was the last
// one in a non-inbox collection, the repository removes that collection
// too and the snapshot is updated on confirmation.
func (s *Store) RemoveLink(ctx context.Context, id string) domain.LinkRemoval {
	ctx, finish := s.instrument(ctx, "store.remove_link", domain.EntityLink, domain.ActionDelete)

	s.mu.Lock()
	if s.pendingIDs[id] > 0 {
		s.mu.Unlock()
		finish(id, nil)
		return domain.LinkRemoval{MutationResult: domain.OK()}
	}
	beforeLinks := cloneLinks(s.snap.Links)
	beforeCollections := cloneCollections(s.snap.Collections)
	var emptied string
	kept := s.snap.Links[:0:0]
	for _, link := range s.snap.Links {
		if link.ID != id {
			kept = append(kept, link)
			continue
		}
		emptied = link.CollectionID
	}
	s.snap.Links = kept
	s.markPendingLocked([]string{id}, domain.KeyLinks, domain.KeyCollections)
	s.mu.Unlock()

	res := s.repo.RemoveLink(ctx, id)

	s.mu.Lock()
	s.clearPendingLocked([]string{id}, domain.KeyLinks, domain.KeyCollections)
	if res.Success {
		if res.CollectionRemoved {
			s.dropCollectionLocked(emptied)
		}
		s.snap.Err = ""
	} else {
		s.snap.Links = beforeLinks
		s.snap.Collections = beforeCollections
		s.snap.Err = res.Error
	}
	s.mu.Unlock()

	finish(id, res.Err())
	return res
}

// dropCollectionLocked removes the collection the repository confirmed
// as auto-removed, so the snapshot agrees with the persisted state.
// Only that one collection goes; other collections without links stay.
func (s *Store) dropCollectionLocked(id string) {
	if id == "" || id == domain.InboxID {
		return
	}
	kept := s.snap.Collections[:0:0]
	for _, c := range s.snap.Collections {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.snap.Collections = kept
}

// MoveLink retargets a link to another collection.
func (s *Store) MoveLink(ctx context.Context, id, collectionID string) domain.MutationResult {
	ctx, finish := s.instrument(ctx, "store.move_link", domain.EntityLink, domain.ActionUpdate)

	s.mu.Lock()
	if s.pendingIDs[id] > 0 {
		s.mu.Unlock()
		finish(id, nil)
		return domain.OK()
	}
	before := cloneLinks(s.snap.Links)
	target := collectionID
	if target == "" {
		target = domain.InboxID
	}
	for i := range s.snap.Links {
		if s.snap.Links[i].ID == id {
			s.snap.Links[i].CollectionID = target
		}
	}
	s.markPendingLocked([]string{id}, domain.KeyLinks)
	s.mu.Unlock()

	res := s.repo.MoveLink(ctx, id, collectionID)

	s.mu.Lock()
	s.clearPendingLocked([]string{id}, domain.KeyLinks)
	if res.Success {
		s.snap.Err = ""
	} else {
		s.snap.Links = before
		s.snap.Err = res.Error
	}
	s.mu.Unlock()

	finish(id, res.Err())
	return res
}

// AddCollection persists a new collection and appends it to the
// snapshot. An empty workspace id resolves to the default workspace.
func (s *Store) AddCollection(ctx context.Context, in domain.NewCollection) (domain.Collection, error) {
	ctx, finish := s.instrument(ctx, "store.add_collection", domain.EntityCollection, domain.ActionCreate)

	s.mu.Lock()
	s.markPendingLocked(nil, domain.KeyCollections)
	s.mu.Unlock()

	collection, err := s.repo.CreateCollection(ctx, in)

	s.mu.Lock()
	s.clearPendingLocked(nil, domain.KeyCollections)
	if err == nil {
		s.snap.Collections = append(s.snap.Collections, collection)
		s.snap.Err = ""
	}
	s.mu.Unlock()

	finish(collection.ID, err)
	return collection, err
}

// RenameCollection changes a collection name.
func (s *Store) RenameCollection(ctx context.Context, id, name string) domain.MutationResult {
	return s.UpdateCollection(ctx, id, domain.CollectionPatch{Name: &name})
}

// UpdateCollection applies a patch to a collection optimistically.
func (s *Store) UpdateCollection(ctx context.Context, id string, patch domain.CollectionPatch) domain.MutationResult {
	ctx, finish := s.instrument(ctx, "store.update_collection", domain.EntityCollection, domain.ActionUpdate)

	s.mu.Lock()
	if s.pendingIDs[id] > 0 {
		s.mu.Unlock()
		finish(id, nil)
		return domain.OK()
	}
	before := cloneCollections(s.snap.Collections)
	for i := range s.snap.Collections {
		if s.snap.Collections[i].ID != id {
			continue
		}
		if patch.Name != nil {
			s.snap.Collections[i].Name = *patch.Name
		}
		if patch.Color != nil {
			s.snap.Collections[i].Color = *patch.Color
		}
	}
	s.markPendingLocked([]string{id}, domain.KeyCollections)
	s.mu.Unlock()

	res := s.repo.UpdateCollection(ctx, id, patch)

	s.mu.Lock()
	s.clearPendingLocked([]string{id}, domain.KeyCollections)
	if res.Success {
		s.snap.Err = ""
	} else {
		s.snap.Collections = before
		s.snap.Err = res.Error
	}
	s.mu.Unlock()

	finish(id, res.Err())
	return res
}

// RemoveCollection deletes a collection, moving its links to the inbox.
// Both lists are applied optimistically and both roll back together.
func (s *Store) RemoveCollection(ctx context.Context, id string) domain.MutationResult {
	ctx, finish := s.instrument(ctx, "store.remove_collection", domain.EntityCollection, domain.ActionDelete)

	s.mu.Lock()
	if s.pendingIDs[id] > 0 {
		s.mu.Unlock()
		finish(id, nil)
		return domain.OK()
	}
	beforeLinks := cloneLinks(s.snap.Links)
	beforeCollections := cloneCollections(s.snap.Collections)
	for i := range s.snap.Links {
		if s.snap.Links[i].CollectionID == id {
			s.snap.Links[i].CollectionID = domain.InboxID
		}
	}
	kept := s.snap.Collections[:0:0]
	for _, c := range s.snap.Collections {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.snap.Collections = kept
	s.markPendingLocked([]string{id}, domain.KeyLinks, domain.KeyCollections)
	s.mu.Unlock()

	res := s.repo.RemoveCollection(ctx, id)

	s.mu.Lock()
	s.clearPendingLocked([]string{id}, domain.KeyLinks, domain.KeyCollections)
	if res.Success {
		s.snap.Err = ""
	} else {
		s.snap.Links = beforeLinks
		s.snap.Collections = beforeCollections
		s.snap.Err = res.Error
	}
	s.mu.Unlock()

	finish(id, res.Err())
	return res
}

// ReorderCollections rewrites collection order to match ids.
func (s *Store) ReorderCollections(ctx context.Context, ids []string) domain.MutationResult {
	ctx, finish := s.instrument(ctx, "store.reorder_collections", domain.EntityCollection, domain.ActionUpdate)

	s.mu.Lock()
	before := cloneCollections(s.snap.Collections)
	position := make(map[string]int, len(ids))
	for i, id := range ids {
		position[id] = i
	}
	for i := range s.snap.Collections {
		if pos, ok := position[s.snap.Collections[i].ID]; ok {
			s.snap.Collections[i].Order = pos
		}
	}
	sort.SliceStable(s.snap.Collections, func(i, j int) bool {
		return s.snap.Collections[i].Order < s.snap.Collections[j].Order
	})
	s.markPendingLocked(nil, domain.KeyCollections)
	s.mu.Unlock()

	res := s.repo.ReorderCollections(ctx, ids)

	s.mu.Lock()
	s.clearPendingLocked(nil, domain.KeyCollections)
	if res.Success {
		s.snap.Err = ""
	} else {
		s.snap.Collections = before
		s.snap.Err = res.Error
	}
	s.mu.Unlock()

	finish("", res.Err())
	return res
}

// MoveCollectionToWorkspace reassigns a collection to another workspace.
func (s *Store) MoveCollectionToWorkspace(ctx context.Context, collectionID, workspaceID string) domain.MutationResult {
	ctx, finish := s.instrument(ctx, "store.move_collection", domain.EntityCollection, domain.ActionUpdate)

	s.mu.Lock()
	if s.pendingIDs[collectionID] > 0 {
		s.mu.Unlock()
		finish(collectionID, nil)
		return domain.OK()
	}
	before := cloneCollections(s.snap.Collections)
	for i := range s.snap.Collections {
		if s.snap.Collections[i].ID == collectionID {
			s.snap.Collections[i].WorkspaceID = workspaceID
		}
	}
	s.markPendingLocked([]string{collectionID}, domain.KeyCollections)
	s.mu.Unlock()

	res := s.repo.MoveCollectionToWorkspace(ctx, collectionID, workspaceID)

	s.mu.Lock()
	s.clearPendingLocked([]string{collectionID}, domain.KeyCollections)
	if res.Success {
		s.snap.Err = ""
	} else {
		s.snap.Collections = before
		s.snap.Err = res.Error
	}
	s.mu.Unlock()

	finish(collectionID, res.Err())
	return res
}

// AddWorkspace persists a new workspace and appends it to the snapshot.
func (s *Store) AddWorkspace(ctx context.Context, in domain.NewWorkspace) (domain.Workspace, error) {
	ctx, finish := s.instrument(ctx, "store.add_workspace", domain.EntityWorkspace, domain.ActionCreate)

	s.mu.Lock()
	s.markPendingLocked(nil, domain.KeyWorkspaces)
	s.mu.Unlock()

	workspace, err := s.repo.CreateWorkspace(ctx, in)

	s.mu.Lock()
	s.clearPendingLocked(nil, domain.KeyWorkspaces)
	if err == nil {
		s.snap.Workspaces = append(s.snap.Workspaces, workspace)
		s.snap.Err = ""
	}
	s.mu.Unlock()

	finish(workspace.ID, err)
	return workspace, err
}

// UpdateWorkspace applies a patch to a workspace optimistically.
func (s *Store) UpdateWorkspace(ctx context.Context, id string, patch domain.WorkspacePatch) domain.MutationResult {
	ctx, finish := s.instrument(ctx, "store.update_workspace", domain.EntityWorkspace, domain.ActionUpdate)

	s.mu.Lock()
	if s.pendingIDs[id] > 0 {
		s.mu.Unlock()
		finish(id, nil)
		return domain.OK()
	}
	before := cloneWorkspaces(s.snap.Workspaces)
	for i := range s.snap.Workspaces {
		if s.snap.Workspaces[i].ID != id {
			continue
		}
		if patch.Name != nil {
			s.snap.Workspaces[i].Name = *patch.Name
		}
		if patch.Color != nil {
			s.snap.Workspaces[i].Color = *patch.Color
		}
		if patch.Description != nil {
			s.snap.Workspaces[i].Description = *patch.Description
		}
	}
	s.markPendingLocked([]string{id}, domain.KeyWorkspaces)
	s.mu.Unlock()

	res := s.repo.UpdateWorkspace(ctx, id, patch)

	s.mu.Lock()
	s.clearPendingLocked([]string{id}, domain.KeyWorkspaces)
	if res.Success {
		s.snap.Err = ""
	} else {
		s.snap.Workspaces = before
		s.snap.Err = res.Error
	}
	s.mu.Unlock()

	finish(id, res.Err())
	return res
}

// RemoveWorkspace deletes a workspace, reassigning its collections to
// the default workspace. On confirmation the dependent lists are
// re-read so the snapshot reflects the repository's retargeting.
func (s *Store) RemoveWorkspace(ctx context.Context, id string) domain.MutationResult {
	ctx, finish := s.instrument(ctx, "store.remove_workspace", domain.EntityWorkspace, domain.ActionDelete)

	s.mu.Lock()
	if s.pendingIDs[id] > 0 {
		s.mu.Unlock()
		finish(id, nil)
		return domain.OK()
	}
	beforeWorkspaces := cloneWorkspaces(s.snap.Workspaces)
	beforeCollections := cloneCollections(s.snap.Collections)
	beforeActive := s.snap.ActiveWorkspaceID
	keptWorkspaces := s.snap.Workspaces[:0:0]
	defaultID := domain.DefaultWorkspaceID
	for _, w := range s.snap.Workspaces {
		if w.IsDefault {
			defaultID = w.ID
		}
		if w.ID != id {
			keptWorkspaces = append(keptWorkspaces, w)
		}
	}
	s.snap.Workspaces = keptWorkspaces
	for i := range s.snap.Collections {
		if s.snap.Collections[i].WorkspaceID == id {
			s.snap.Collections[i].WorkspaceID = defaultID
		}
	}
	if s.snap.ActiveWorkspaceID == id {
		s.snap.ActiveWorkspaceID = defaultID
	}
	s.markPendingLocked([]string{id}, domain.KeyWorkspaces, domain.KeyCollections)
	s.mu.Unlock()

	res := s.repo.RemoveWorkspace(ctx, id)

	if res.Success {
		// Re-read so ordering and retargeting match the persisted state.
		if collections, err := s.repo.Collections(ctx); err == nil {
			s.mu.Lock()
			s.snap.Collections = collections
			s.mu.Unlock()
		} else {
			s.logger.Warn("collection refresh failed", "error", err)
		}
		if err := s.prefs.SetActiveWorkspace(s.Snapshot().ActiveWorkspaceID); err != nil {
			s.logger.Warn("active workspace not persisted", "error", err)
		}
	}

	s.mu.Lock()
	s.clearPendingLocked([]string{id}, domain.KeyWorkspaces, domain.KeyCollections)
	if res.Success {
		s.snap.Err = ""
	} else {
		s.snap.Workspaces = beforeWorkspaces
		s.snap.Collections = beforeCollections
		s.snap.ActiveWorkspaceID = beforeActive
		s.snap.Err = res.Error
	}
	s.mu.Unlock()

	finish(id, res.Err())
	return res
}

// ReorderWorkspaces rewrites workspace order to match ids.
func (s *Store) ReorderWorkspaces(ctx context.Context, ids []string) domain.MutationResult {
	ctx, finish := s.instrument(ctx, "store.reorder_workspaces", domain.EntityWorkspace, domain.ActionUpdate)

	s.mu.Lock()
	before := cloneWorkspaces(s.snap.Workspaces)
	position := make(map[string]int, len(ids))
	for i, id := range ids {
		position[id] = i
	}
	for i := range s.snap.Workspaces {
		if pos, ok := position[s.snap.Workspaces[i].ID]; ok {
			s.snap.Workspaces[i].Order = pos
		}
	}
	sort.SliceStable(s.snap.Workspaces, func(i, j int) bool {
		return s.snap.Workspaces[i].Order < s.snap.Workspaces[j].Order
	})
	s.markPendingLocked(nil, domain.KeyWorkspaces)
	s.mu.Unlock()

	res := s.repo.ReorderWorkspaces(ctx, ids)

	s.mu.Lock()
	s.clearPendingLocked(nil, domain.KeyWorkspaces)
	if res.Success {
		s.snap.Err = ""
	} else {
		s.snap.Workspaces = before
		s.snap.Err = res.Error
	}
	s.mu.Unlock()

	finish("", res.Err())
	return res
}

// SetActiveWorkspace switches the context-local workspace selection and
// persists it to the preference file. It is not a shared-state mutation;
// other contexts keep their own selection.
func (s *Store) SetActiveWorkspace(id string) domain.MutationResult {
	_, finish := s.instrument(context.Background(), "store.set_active_workspace", domain.EntityWorkspace, domain.ActionUpdate)

	s.mu.Lock()
	exists := false
	for _, w := range s.snap.Workspaces {
		if w.ID == id {
			exists = true
			break
		}
	}
	if !exists {
		s.mu.Unlock()
		err := &domain.NotFoundError{Entity: domain.EntityWorkspace, ID: id}
		finish(id, err)
		return domain.FailedErr(err)
	}
	s.snap.ActiveWorkspaceID = id
	s.mu.Unlock()

	if err := s.prefs.SetActiveWorkspace(id); err != nil {
		s.logger.Warn("active workspace not persisted", "error", err)
	}
	finish(id, nil)
	return domain.OK()
}
