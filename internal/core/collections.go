package core

import (
	"context"
	"strings"

	"tabala/internal/validation"
	"tabala/pkg/domain"
)

func findCollection(collections []domain.Collection, id string) (domain.Collection, bool) {
	for _, c := range collections {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Collection{}, false
}

func collectionNames(collections []domain.Collection) []validation.Named {
	return named(collections,
		func(c domain.Collection) string { return c.ID },
		func(c domain.Collection) string { return c.Name })
}

// Collections returns all stored collections sorted by order, ties kept
// in insertion order.
func (r *Repository) Collections(ctx context.Context) ([]domain.Collection, error) {
	collections, err := readList[domain.Collection](ctx, r.kv, domain.KeyCollections)
	if err != nil {
		return nil, err
	}
	sortByOrder(collections, func(c domain.Collection) int { return c.Order })
	return collections, nil
}

// CreateCollection stores a new collection. An empty workspace id targets
// the default workspace.
func (r *Repository) CreateCollection(ctx context.Context, in domain.NewCollection) (domain.Collection, error) {
	collections, err := r.Collections(ctx)
	if err != nil {
		return domain.Collection{}, err
	}
	if verr := validation.Name(in.Name, "", collectionNames(collections)); verr != nil {
		return domain.Collection{}, verr
	}
	if verr := validation.Length(in.Name, domain.MaxNameLength); verr != nil {
		return domain.Collection{}, verr
	}
	if in.Color != "" {
		if verr := validation.Color(in.Color); verr != nil {
			return domain.Collection{}, verr
		}
	}
	workspaceID := in.WorkspaceID
	if workspaceID == "" {
		workspaceID = domain.DefaultWorkspaceID
	}
	workspaces, err := r.Workspaces(ctx)
	if err != nil {
		return domain.Collection{}, err
	}
	if _, ok := findWorkspace(workspaces, workspaceID); !ok {
		return domain.Collection{}, &domain.NotFoundError{Entity: domain.EntityWorkspace, ID: workspaceID}
	}
	now := r.nowFn()
	collection := domain.Collection{
		ID:          r.newID(),
		Name:        strings.TrimSpace(in.Name),
		Order:       nextOrder(collections, func(c domain.Collection) int { return c.Order }),
		Color:       in.Color,
		WorkspaceID: workspaceID,
		CreatedAt:   &now,
	}
	if err := writeList(ctx, r.kv, domain.KeyCollections, append(collections, collection)); err != nil {
		return domain.Collection{}, err
	}
	return collection, nil
}

// UpdateCollection applies a partial update. Renaming the inbox is
// rejected; name and color are re-validated when present.
func (r *Repository) UpdateCollection(ctx context.Context, id string, patch domain.CollectionPatch) domain.MutationResult {
	if patch.Name != nil && id == domain.InboxID {
		return domain.FailedErr(&domain.ProtectedEntityError{Entity: domain.EntityCollection, ID: id, Op: "rename"})
	}
	collections, err := r.Collections(ctx)
	if err != nil {
		return domain.FailedErr(err)
	}
	idx := -1
	for i, c := range collections {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.FailedErr(&domain.NotFoundError{Entity: domain.EntityCollection, ID: id})
	}
	if patch.Name != nil {
		if verr := validation.Name(*patch.Name, id, collectionNames(collections)); verr != nil {
			return domain.FailedErr(verr)
		}
		if verr := validation.Length(*patch.Name, domain.MaxNameLength); verr != nil {
			return domain.FailedErr(verr)
		}
		collections[idx].Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Color != nil {
		if verr := validation.Color(*patch.Color); verr != nil {
			return domain.FailedErr(verr)
		}
		collections[idx].Color = *patch.Color
	}
	if err := writeList(ctx, r.kv, domain.KeyCollections, collections); err != nil {
		return domain.FailedErr(err)
	}
	return domain.OK()
}

// RemoveCollection deletes a collection after retargeting its links to
// the inbox. The inbox itself is protected.
func (r *Repository) RemoveCollection(ctx context.Context, id string) domain.MutationResult {
	collections, err := r.Collections(ctx)
	if err != nil {
		return domain.FailedErr(err)
	}
	_, exists := findCollection(collections, id)
	if derr := validation.Deletion(domain.EntityCollection, id, exists, domain.InboxID); derr != nil {
		if id == domain.InboxID {
			return domain.Failed("the Inbox collection cannot be deleted")
		}
		return domain.FailedErr(derr)
	}

	links, err := r.Links(ctx)
	if err != nil {
		return domain.FailedErr(err)
	}
	retargeted := false
	for i := range links {
		if links[i].CollectionID == id {
			links[i].CollectionID = domain.InboxID
			retargeted = true
		}
	}
	if retargeted {
		if err := writeList(ctx, r.kv, domain.KeyLinks, links); err != nil {
			return domain.FailedErr(err)
		}
	}

	kept := collections[:0:0]
	for _, c := range collections {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if err := writeList(ctx, r.kv, domain.KeyCollections, kept); err != nil {
		return domain.FailedErr(err)
	}
	return domain.OK()
}

// ReorderCollections replaces every collection's order with its position
// in ids, as one atomic list write.
func (r *Repository) ReorderCollections(ctx context.Context, ids []string) domain.MutationResult {
	collections, err := r.Collections(ctx)
	if err != nil {
		return domain.FailedErr(err)
	}
	applyOrder(collections, ids,
		func(c domain.Collection) string { return c.ID },
		func(c domain.Collection) int { return c.Order },
		func(c *domain.Collection, o int) { c.Order = o })
	if err := writeList(ctx, r.kv, domain.KeyCollections, collections); err != nil {
		return domain.FailedErr(err)
	}
	return domain.OK()
}

// MoveCollectionToWorkspace rewrites a collection's workspace reference.
// The inbox is global and cannot be moved.
func (r *Repository) MoveCollectionToWorkspace(ctx context.Context, collectionID, workspaceID string) domain.MutationResult {
	if collectionID == domain.InboxID {
		return domain.Failed("the Inbox collection cannot be moved between workspaces")
	}
	workspaces, err := r.Workspaces(ctx)
	if err != nil {
		return domain.FailedErr(err)
	}
	if _, ok := findWorkspace(workspaces, workspaceID); !ok {
		return domain.FailedErr(&domain.NotFoundError{Entity: domain.EntityWorkspace, ID: workspaceID})
	}
	collections, err := r.Collections(ctx)
	if err != nil {
		return domain.FailedErr(err)
	}
	found := false
	for i := range collections {
		if collections[i].ID == collectionID {
			collections[i].WorkspaceID = workspaceID
			found = true
			break
		}
	}
	if !found {
		return domain.FailedErr(&domain.NotFoundError{Entity: domain.EntityCollection, ID: collectionID})
	}
	if err := writeList(ctx, r.kv, domain.KeyCollections, collections); err != nil {
		return domain.FailedErr(err)
	}
	return domain.OK()
}
