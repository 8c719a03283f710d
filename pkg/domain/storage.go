package domain

import "context"

// Storage keys name the fixed set of top-level values in the shared
// store. Each key holds the full entity list for its kind; the list is
// the unit of read-modify-write.
const (
	KeyLinks       = "links"
	KeyCollections = "collections"
	KeyWorkspaces  = "workspaces"
	KeySettings    = "settings"
)

// StorageKeys lists every key a KV adapter is expected to serve.
var StorageKeys = []string{KeyLinks, KeyCollections, KeyWorkspaces, KeySettings}

// KeyChange carries the before/after payloads of a single changed key.
// Either side may be nil when the key was created or removed.
type KeyChange struct {
	Old []byte
	New []byte
}

// ChangeSet maps changed keys to their old and new payloads, as delivered
// to watchers after a write from another context.
type ChangeSet map[string]KeyChange

// KV is the asynchronous, non-transactional key-value capability the core
// consumes. Implementations share durable state across independently
// running contexts; there are no cross-key transactions and no locks.
// Watch notifications exclude the context that performed the write.
type KV interface {
	// Get returns the payload stored under key. The second result is
	// false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set durably stores payload under key, replacing any prior value.
	Set(ctx context.Context, key string, payload []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Watch registers fn to receive change sets originating from other
	// contexts. The returned cancel func unregisters it.
	Watch(fn func(ChangeSet)) (cancel func(), err error)
}
