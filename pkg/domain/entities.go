// Package domain defines the persistent entities, value types, change
// records, and storage contract shared by the tabala core.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence keys.
const (
	// EntityLink identifies a saved link record.
	EntityLink EntityType = "link"
	// EntityCollection identifies a collection record.
	EntityCollection EntityType = "collection"
	// EntityWorkspace identifies a workspace record.
	EntityWorkspace EntityType = "workspace"
)

// Reserved identifiers and hard limits. Exactly one collection carries
// InboxID and exactly one workspace carries DefaultWorkspaceID per
// installation; both are protected from deletion and rename.
const (
	// InboxID is the id of the global, undeletable inbox collection.
	InboxID = "inbox"
	// InboxName is the display name of the inbox collection.
	InboxName = "Inbox"
	// DefaultWorkspaceID is the id of the undeletable default workspace.
	DefaultWorkspaceID = "default-workspace"
	// DefaultWorkspaceName is the display name of the default workspace.
	DefaultWorkspaceName = "Default"
	// DefaultWorkspaceColor is assigned when the migrator seeds the default workspace.
	DefaultWorkspaceColor = "#6366f1"
	// WorkspaceLimit caps the number of workspaces per installation.
	WorkspaceLimit = 10
	// MaxNameLength bounds collection and workspace names.
	MaxNameLength = 50
	// MaxDescriptionLength bounds workspace descriptions.
	MaxDescriptionLength = 200
)

// Link is a saved reference to a web resource. Immutable after creation
// except CollectionID, which changes when the link is moved.
type Link struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Favicon      string    `json:"favicon,omitempty"`
	CollectionID string    `json:"collectionId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Collection is a named, ordered group of links. Every collection other
// than the inbox belongs to a workspace.
type Collection struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Order       int        `json:"order"`
	Color       string     `json:"color,omitempty"`
	WorkspaceID string     `json:"workspaceId,omitempty"`
	IsDefault   bool       `json:"isDefault,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

// Workspace is a named, ordered group of collections.
type Workspace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Order       int       `json:"order"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	IsDefault   bool      `json:"isDefault,omitempty"`
}

// NewLink carries caller-supplied fields for link creation.
type NewLink struct {
	URL          string
	Title        string
	Favicon      string
	CollectionID string
}

// NewCollection carries caller-supplied fields for collection creation.
type NewCollection struct {
	Name        string
	Color       string
	WorkspaceID string
}

// NewWorkspace carries caller-supplied fields for workspace creation.
type NewWorkspace struct {
	Name        string
	Color       string
	Description string
}

// CollectionPatch describes a partial collection update. Nil fields are
// left untouched.
type CollectionPatch struct {
	Name  *string
	Color *string
}

// WorkspacePatch describes a partial workspace update. Nil fields are
// left untouched. Renaming the default workspace is rejected; its color
// and description stay mutable.
type WorkspacePatch struct {
	Name        *string
	Color       *string
	Description *string
}

// Change describes a mutation applied to an entity during a persist step.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured for auditing.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
