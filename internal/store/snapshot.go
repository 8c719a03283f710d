package store

import (
	"strings"

	"tabala/pkg/domain"
)

// Snapshot is one context's in-memory view of the shared state. The
// coordinator owns it exclusively; other contexts see changes only
// through the store adapter's change feed.
type Snapshot struct {
	Links             []domain.Link
	Collections       []domain.Collection
	Workspaces        []domain.Workspace
	ActiveWorkspaceID string
	Loading           bool
	Err               string
}

func cloneLinks(links []domain.Link) []domain.Link {
	return append([]domain.Link(nil), links...)
}

func cloneCollections(collections []domain.Collection) []domain.Collection {
	return append([]domain.Collection(nil), collections...)
}

func cloneWorkspaces(workspaces []domain.Workspace) []domain.Workspace {
	return append([]domain.Workspace(nil), workspaces...)
}

func (s Snapshot) clone() Snapshot {
	cp := s
	cp.Links = cloneLinks(s.Links)
	cp.Collections = cloneCollections(s.Collections)
	cp.Workspaces = cloneWorkspaces(s.Workspaces)
	return cp
}

// Counts aggregates snapshot sizes for dashboard badges.
type Counts struct {
	Links       int
	Collections int
	Workspaces  int
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// GroupedLinks groups links by collection id. Links whose collection no
// longer exists fall back to the inbox group.
func (s *Store) GroupedLinks() map[string][]domain.Link {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[string]struct{}, len(s.snap.Collections))
	for _, c := range s.snap.Collections {
		live[c.ID] = struct{}{}
	}
	grouped := make(map[string][]domain.Link)
	for _, link := range s.snap.Links {
		target := link.CollectionID
		if target != domain.InboxID {
			if _, ok := live[target]; !ok {
				target = domain.InboxID
			}
		}
		grouped[target] = append(grouped[target], link)
	}
	return grouped
}

// VisibleCollections returns the collections of the active workspace.
// The inbox is global and always included.
func (s *Store) VisibleCollections() []domain.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Collection, 0, len(s.snap.Collections))
	for _, c := range s.snap.Collections {
		if c.ID == domain.InboxID || c.WorkspaceID == s.snap.ActiveWorkspaceID {
			out = append(out, c)
		}
	}
	return out
}

// Counts returns aggregate entity counts.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Links:       len(s.snap.Links),
		Collections: len(s.snap.Collections),
		Workspaces:  len(s.snap.Workspaces),
	}
}

// CollectionNameTaken reports whether name collides case-insensitively
// with an existing collection other than excludeID. UI-side pre-check;
// the repository re-validates on write.
func (s *Store) CollectionNameTaken(name, excludeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	folded := strings.ToLower(strings.TrimSpace(name))
	for _, c := range s.snap.Collections {
		if c.ID == excludeID {
			continue
		}
		if strings.ToLower(strings.TrimSpace(c.Name)) == folded {
			return true
		}
	}
	return false
}

// WorkspaceNameTaken reports whether name collides case-insensitively
// with an existing workspace other than excludeID.
func (s *Store) WorkspaceNameTaken(name, excludeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	folded := strings.ToLower(strings.TrimSpace(name))
	for _, w := range s.snap.Workspaces {
		if w.ID == excludeID {
			continue
		}
		if strings.ToLower(strings.TrimSpace(w.Name)) == folded {
			return true
		}
	}
	return false
}
