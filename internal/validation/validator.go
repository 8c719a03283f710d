// Package validation holds the pure input checks applied before any
// repository write. All functions are synchronous and side-effect free;
// a nil result means the candidate is valid.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"tabala/pkg/domain"
)

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Named is the minimal shape Name needs from an existing entity.
type Named struct {
	ID   string
	Name string
}

// Name rejects empty candidates and case-insensitive duplicates among
// existing entities other than excludeID. Comparison is simple lowercase
// folding on the trimmed name; accented and unaccented variants remain
// distinct.
func Name(candidate, excludeID string, existing []Named) *domain.ValidationError {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return &domain.ValidationError{Reason: domain.ReasonEmpty, Message: "name cannot be empty"}
	}
	folded := strings.ToLower(trimmed)
	for _, e := range existing {
		if e.ID == excludeID {
			continue
		}
		if strings.ToLower(strings.TrimSpace(e.Name)) == folded {
			return &domain.ValidationError{
				Reason:  domain.ReasonDuplicate,
				Message: fmt.Sprintf("name %q is already in use", trimmed),
			}
		}
	}
	return nil
}

// Length rejects trimmed candidates longer than max runes.
func Length(candidate string, max int) *domain.ValidationError {
	if utf8.RuneCountInString(strings.TrimSpace(candidate)) > max {
		return &domain.ValidationError{
			Reason:  domain.ReasonTooLong,
			Message: fmt.Sprintf("name exceeds %d characters", max),
		}
	}
	return nil
}

// Color rejects anything but a 3- or 6-digit hex color prefixed with '#'.
func Color(candidate string) *domain.ValidationError {
	if !hexColorPattern.MatchString(candidate) {
		return &domain.ValidationError{
			Reason:  domain.ReasonInvalidColor,
			Message: fmt.Sprintf("%q is not a valid hex color", candidate),
		}
	}
	return nil
}

// Capacity rejects creation once count has reached limit.
func Capacity(count, limit int) *domain.ValidationError {
	if count >= limit {
		return &domain.ValidationError{
			Reason:  domain.ReasonLimitReached,
			Message: fmt.Sprintf("limit of %d reached", limit),
		}
	}
	return nil
}

// Deletion checks that id names a live, non-protected entity. It returns
// a ProtectedEntityError for defaultID, a NotFoundError when no entity
// matches, and nil otherwise. Callers surface both as mutation results.
func Deletion(entity domain.EntityType, id string, exists bool, defaultID string) error {
	if id == defaultID {
		return &domain.ProtectedEntityError{Entity: entity, ID: id, Op: "delete"}
	}
	if !exists {
		return &domain.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}
