/*
errors.go - Centralized error taxonomy for the shift engine

PURPOSE:
  All error kinds in one place. Callers (HTTP layer, CLI) classify errors
  with errors.Is / errors.As; the engine never downgrades an error kind on
  the way out.

ERROR CATEGORIES:
  1. Validation errors - malformed or out-of-range input
  2. Conflict errors   - invariant violations (duplicate open shift,
                         mutation of an immutable shift, ...)
  3. Not-found errors  - unknown shift/reading/payment/request ids
  4. Authorization     - actor lacks the role or ownership required
  5. Incomplete readings - completion attempted with missing closings

USAGE:
  if errors.Is(err, engine.ErrConflict) { ... }

  var inc *engine.IncompleteReadingsError
  if errors.As(err, &inc) {
      log.Printf("missing closings on nozzles %v", inc.MissingNozzleIDs)
  }

SEE ALSO:
  - api/handlers.go: maps these kinds to HTTP status codes
  - store/sqlite: maps unique-constraint violations to the store sentinels
*/
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks an invariant violation: duplicate open shift,
	// duplicate pending edit request, mutation on an immutable shift.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks an unknown shift, reading, payment or request id.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks an actor lacking role or ownership.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrIncompleteReadings marks a completion attempt while at least one
	// nozzle reading still has no closing value.
	ErrIncompleteReadings = errors.New("incomplete readings")

	// ErrDuplicateOpenShift is returned by the store when inserting an
	// OPEN shift for an attendant who already has one. Enforced by a
	// write-time uniqueness constraint, never by read-then-write.
	ErrDuplicateOpenShift = errors.New("attendant already has an open shift")

	// ErrDuplicatePendingEdit is returned by the store when inserting a
	// PENDING edit request for a shift that already has one.
	ErrDuplicatePendingEdit = errors.New("shift already has a pending edit request")

	// ErrStoreUnavailable surfaces a store that cannot start work at all,
	// such as a closed or unreachable database. Lock contention is a
	// conflict, not unavailability.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a specific field violation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError reports an invariant violation on a specific resource.
type ConflictError struct {
	Resource string // "shift", "payment", "edit_request"
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError identifies the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AuthorizationError reports who was denied what.
type AuthorizationError struct {
	ActorID   string
	Operation string
	Message   string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("actor %q may not %s: %s", e.ActorID, e.Operation, e.Message)
}

func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }

// IncompleteReadingsError lists the nozzles still missing a closing
// reading when completion was attempted.
type IncompleteReadingsError struct {
	ShiftID          string
	MissingNozzleIDs []string
}

func (e *IncompleteReadingsError) Error() string {
	return fmt.Sprintf("shift %s has no closing reading for nozzles: %s",
		e.ShiftID, strings.Join(e.MissingNozzleIDs, ", "))
}

func (e *IncompleteReadingsError) Unwrap() error { return ErrIncompleteReadings }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsConflict covers both engine-level conflicts and the store-level
// uniqueness sentinels, so callers see a single conflict kind.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrDuplicateOpenShift) ||
		errors.Is(err, ErrDuplicatePendingEdit)
}

func IsIncompleteReadings(err error) bool {
	return errors.Is(err, ErrIncompleteReadings)
}
