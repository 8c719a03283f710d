package core

import (
	"context"
	"strings"

	"tabala/internal/validation"
	"tabala/pkg/domain"
)

func findWorkspace(workspaces []domain.Workspace, id string) (domain.Workspace, bool) {
	for _, w := range workspaces {
		if w.ID == id {
			return w, true
		}
	}
	return domain.Workspace{}, false
}

func workspaceNames(workspaces []domain.Workspace) []validation.Named {
	return named(workspaces,
		func(w domain.Workspace) string { return w.ID },
		func(w domain.Workspace) string { return w.Name })
}

// Workspaces returns all stored workspaces sorted by order, ties kept in
// insertion order.
func (r *Repository) Workspaces(ctx context.Context) ([]domain.Workspace, error) {
	workspaces, err := readList[domain.Workspace](ctx, r.kv, domain.KeyWorkspaces)
	if err != nil {
		return nil, err
	}
	sortByOrder(workspaces, func(w domain.Workspace) int { return w.Order })
	return workspaces, nil
}

// CreateWorkspace stores a new workspace, enforcing the installation-wide
// workspace cap.
func (r *Repository) CreateWorkspace(ctx context.Context, in domain.NewWorkspace) (domain.Workspace, error) {
	workspaces, err := r.Workspaces(ctx)
	if err != nil {
		return domain.Workspace{}, err
	}
	if verr := validation.Capacity(len(workspaces), domain.WorkspaceLimit); verr != nil {
		return domain.Workspace{}, verr
	}
	if verr := validation.Name(in.Name, "", workspaceNames(workspaces)); verr != nil {
		return domain.Workspace{}, verr
	}
	if verr := validation.Length(in.Name, domain.MaxNameLength); verr != nil {
		return domain.Workspace{}, verr
	}
	if verr := validation.Color(in.Color); verr != nil {
		return domain.Workspace{}, verr
	}
	if verr := validation.Length(in.Description, domain.MaxDescriptionLength); verr != nil {
		return domain.Workspace{}, verr
	}
	workspace := domain.Workspace{
		ID:          r.newID(),
		Name:        strings.TrimSpace(in.Name),
		Color:       in.Color,
		Order:       nextOrder(workspaces, func(w domain.Workspace) int { return w.Order }),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   r.nowFn(),
	}
	if err := writeList(ctx, r.kv, domain.KeyWorkspaces, append(workspaces, workspace)); err != nil {
		return domain.Workspace{}, err
	}
	return workspace, nil
}

// UpdateWorkspace applies a partial update. Renaming the default
// workspace is rejected; its color and description remain mutable.
func (r *Repository) UpdateWorkspace(ctx context.Context, id string, patch domain.WorkspacePatch) domain.MutationResult {
	if patch.Name != nil && id == domain.DefaultWorkspaceID {
		return domain.FailedErr(&domain.ProtectedEntityError{Entity: domain.EntityWorkspace, ID: id, Op: "rename"})
	}
	workspaces, err := r.Workspaces(ctx)
	if err != nil {
		return domain.FailedErr(err)
	}
	idx := -1
	for i, w := range workspaces {
		if w.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.FailedErr(&domain.NotFoundError{Entity: domain.EntityWorkspace, ID: id})
	}
	if patch.Name != nil {
		if verr := validation.Name(*patch.Name, id, workspaceNames(workspaces)); verr != nil {
			return domain.FailedErr(verr)
		}
		if verr := validation.Length(*patch.Name, domain.MaxNameLength); verr != nil {
			return domain.FailedErr(verr)
		}
		workspaces[idx].Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Color != nil {
		if verr := validation.Color(*patch.Color); verr != nil {
			return domain.FailedErr(verr)
		}
		workspaces[idx].Color = *patch.Color
	}
	if patch.Description != nil {
		if verr := validation.Length(*patch.Description, domain.MaxDescriptionLength); verr != nil {
			return domain.FailedErr(verr)
		}
		workspaces[idx].Description = strings.TrimSpace(*patch.Description)
	}
	if err := writeList(ctx, r.kv, domain.KeyWorkspaces, workspaces); err != nil {
		return domain.FailedErr(err)
	}
	return domain.OK()
}

// RemoveWorkspace deletes a workspace after retargeting its collections
// to the default workspace. The default workspace is protected.
func (r *Repository) RemoveWorkspace(ctx context.Context, id string) domain.MutationResult {
	workspaces, err := r.Workspaces(ctx)
	if err != nil {
		return domain.FailedErr(err)
	}
	_, exists := findWorkspace(workspaces, id)
	if derr := validation.Deletion(domain.EntityWorkspace, id, exists, domain.DefaultWorkspaceID); derr != nil {
		return domain.FailedErr(derr)
	}

	collections, err := r.Collections(ctx)
	if err != nil {
		return domain.FailedErr(err)
	}
	retargeted := false
	for i := range collections {
		if collections[i].WorkspaceID == id {
			collections[i].WorkspaceID = domain.DefaultWorkspaceID
			retargeted = true
		}
	}
	if retargeted {
		if err := writeList(ctx, r.kv, domain.KeyCollections, collections); err != nil {
			return domain.FailedErr(err)
		}
	}

	kept := workspaces[:0:0]
	for _, w := range workspaces {
		if w.ID != id {
			kept = append(kept, w)
		}
	}
	if err := writeList(ctx, r.kv, domain.KeyWorkspaces, kept); err != nil {
		return domain.FailedErr(err)
	}
	return domain.OK()
}

// ReorderWorkspaces replaces every workspace's order with its position in
// ids, as one atomic list write.
func (r *Repository) ReorderWorkspaces(ctx context.Context, ids []string) domain.MutationResult {
	workspaces, err := r.Workspaces(ctx)
	if err != nil {
		return domain.FailedErr(err)
	}
	applyOrder(workspaces, ids,
		func(w domain.Workspace) string { return w.ID },
		func(w domain.Workspace) int { return w.Order },
		func(w *domain.Workspace, o int) { w.Order = o })
	if err := writeList(ctx, r.kv, domain.KeyWorkspaces, workspaces); err != nil {
		return domain.FailedErr(err)
	}
	return domain.OK()
}
