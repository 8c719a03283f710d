package core

import (
	"context"
	"strings"

	"tabala/pkg/domain"
)

// Links returns all stored links.
func (r *Repository) Links(ctx context.Context) ([]domain.Link, error) {
	return readList[domain.Link](ctx, r.kv, domain.KeyLinks)
}

// CreateLink stores a new link. An empty collection id targets the inbox;
// any other target must name a live collection.
func (r *Repository) CreateLink(ctx context.Context, in domain.NewLink) (domain.Link, error) {
	if strings.TrimSpace(in.URL) == "" {
		return domain.Link{}, &domain.ValidationError{Reason: domain.ReasonEmpty, Message: "url cannot be empty"}
	}
	collectionID := in.CollectionID
	if collectionID == "" {
		collectionID = domain.InboxID
	}
	if collectionID != domain.InboxID {
		collections, err := r.Collections(ctx)
		if err != nil {
			return domain.Link{}, err
		}
		if _, ok := findCollection(collections, collectionID); !ok {
			return domain.Link{}, &domain.NotFoundError{Entity: domain.EntityCollection, ID: collectionID}
		}
	}
	links, err := r.Links(ctx)
	if err != nil {
		return domain.Link{}, err
	}
	link := domain.Link{
		ID:           r.newID(),
		URL:          strings.TrimSpace(in.URL),
		Title:        strings.TrimSpace(in.Title),
		Favicon:      in.Favicon,
		CollectionID: collectionID,
		CreatedAt:    r.nowFn(),
	}
	if err := writeList(ctx, r.kv, domain.KeyLinks, append(links, link)); err != nil {
		return domain.Link{}, err
	}
	return link, nil
}

// RemoveLink deletes a link. When the link's collection becomes empty and
// is not the inbox, the collection is removed with it and the removal is
// reported so the UI can surface it.
func (r *Repository) RemoveLink(ctx context.Context, id string) domain.LinkRemoval {
	links, err := r.Links(ctx)
	if err != nil {
		return domain.LinkRemoval{MutationResult: domain.FailedErr(err)}
	}
	idx := -1
	for i, l := range links {
		if l.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.LinkRemoval{MutationResult: domain.Failed("Link not found")}
	}
	collectionID := links[idx].CollectionID
	remaining := append(append([]domain.Link(nil), links[:idx]...), links[idx+1:]...)

	if err := writeList(ctx, r.kv, domain.KeyLinks, remaining); err != nil {
		return domain.LinkRemoval{MutationResult: domain.FailedErr(err)}
	}

	if collectionID == domain.InboxID {
		return domain.LinkRemoval{MutationResult: domain.OK()}
	}
	for _, l := range remaining {
		if l.CollectionID == collectionID {
			return domain.LinkRemoval{MutationResult: domain.OK()}
		}
	}

	// Last link of a non-inbox collection: remove the now-empty collection.
	collections, cerr := r.Collections(ctx)
	if cerr != nil {
		return domain.LinkRemoval{MutationResult: domain.FailedErr(cerr)}
	}
	kept := collections[:0:0]
	removed := false
	for _, c := range collections {
		if c.ID == collectionID {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	if !removed {
		return domain.LinkRemoval{MutationResult: domain.OK()}
	}
	if err := writeList(ctx, r.kv, domain.KeyCollections, kept); err != nil {
		return domain.LinkRemoval{MutationResult: domain.FailedErr(err)}
	}
	return domain.LinkRemoval{MutationResult: domain.OK(), CollectionRemoved: true}
}

// MoveLink retargets a link to another collection. The inbox is always a
// valid target.
func (r *Repository) MoveLink(ctx context.Context, id, collectionID string) domain.MutationResult {
	if collectionID == "" {
		collectionID = domain.InboxID
	}
	if collectionID != domain.InboxID {
		collections, err := r.Collections(ctx)
		if err != nil {
			return domain.FailedErr(err)
		}
		if _, ok := findCollection(collections, collectionID); !ok {
			return domain.FailedErr(&domain.NotFoundError{Entity: domain.EntityCollection, ID: collectionID})
		}
	}
	links, err := r.Links(ctx)
	if err != nil {
		return domain.FailedErr(err)
	}
	found := false
	for i := range links {
		if links[i].ID == id {
			links[i].CollectionID = collectionID
			found = true
			break
		}
	}
	if !found {
		return domain.Failed("Link not found")
	}
	if err := writeList(ctx, r.kv, domain.KeyLinks, links); err != nil {
		return domain.FailedErr(err)
	}
	return domain.OK()
}
