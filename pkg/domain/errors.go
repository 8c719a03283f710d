package domain

import (
	"errors"
	"fmt"
)

// ValidationReason discriminates the causes of a failed input validation.
type ValidationReason string

// Validation reasons surfaced synchronously before any write is attempted.
const (
	ReasonEmpty        ValidationReason = "EMPTY"
	ReasonDuplicate    ValidationReason = "DUPLICATE"
	ReasonTooLong      ValidationReason = "TOO_LONG"
	ReasonInvalidColor ValidationReason = "INVALID_COLOR"
	ReasonLimitReached ValidationReason = "LIMIT_REACHED"
)

// ValidationError reports bad input on a creation path. It is never
// persisted and always precedes any store write.
type ValidationError struct {
	Reason  ValidationReason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// NotFoundError reports an operation against an id that does not exist.
// Mutation paths surface it as a MutationResult, not as a returned error.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ProtectedEntityError reports an attempt to rename or delete the inbox
// collection or the default workspace.
type ProtectedEntityError struct {
	Entity EntityType
	ID     string
	Op     string
}

func (e *ProtectedEntityError) Error() string {
	return fmt.Sprintf("cannot %s protected %s %s", e.Op, e.Entity, e.ID)
}

// PersistenceError wraps a store adapter failure. Raw adapter errors
// never escape the core uncaught.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// MutationResult reports the outcome of an update, delete, reorder, or
// move operation. These paths resolve with a result value instead of a
// returned error so callers can apply a uniform rollback protocol without
// exception-style control flow. Creation paths return (entity, error)
// instead; the asymmetry is deliberate.
type MutationResult struct {
	Success bool
	Error   string
}

// OK is the successful mutation result.
func OK() MutationResult { return MutationResult{Success: true} }

// Failed builds an unsuccessful result from a message.
func Failed(format string, args ...any) MutationResult {
	return MutationResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Err returns the failure as an error value, or nil on success.
func (r MutationResult) Err() error {
	if r.Success {
		return nil
	}
	return errors.New(r.Error)
}

// FailedErr builds an unsuccessful result from an error.
func FailedErr(err error) MutationResult {
	return MutationResult{Success: false, Error: err.Error()}
}

// LinkRemoval reports a link deletion. CollectionRemoved is set when the
// link's collection became empty and, not being the inbox, was removed
// together with the link. That auto-removal is a product rule, not a
// generic garbage collection.
type LinkRemoval struct {
	MutationResult
	CollectionRemoved bool
}
