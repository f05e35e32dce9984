package remote

import "fmt"

// InvalidDomainError means the domain input is not a plausible hostname.
// Never retried.
type InvalidDomainError struct {
	Domain string
}

func (e *InvalidDomainError) Error() string {
	return fmt.Sprintf("invalid domain %q", e.Domain)
}

// RangeError means a numeric parameter falls outside its allowed bounds.
// Raised before any network call.
type RangeError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s must be between %d and %d, got %d", e.Field, e.Min, e.Max, e.Value)
}

// MissingCollectionError means the remote actor genuinely lacks the
// requested collection facet. Not retried.
type MissingCollectionError struct {
	ActorID string
	Facet   string
}

func (e *MissingCollectionError) Error() string {
	return fmt.Sprintf("actor %s advertises no %s collection", e.ActorID, e.Facet)
}

// CursorOriginError means a pagination cursor points at a different origin
// than the collection it continues. Rejected before any network call so a
// hostile cursor cannot redirect the fetch.
type CursorOriginError struct {
	Cursor string
	Origin string
}

func (e *CursorOriginError) Error() string {
	return fmt.Sprintf("cursor %q does not share origin %s", e.Cursor, e.Origin)
}
