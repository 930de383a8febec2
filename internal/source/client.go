// Package source defines the boundary to the external mapping service
// and its Overpass-style HTTP implementation.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poimirror/poimirror/internal/domain"
)

// Query scopes one fetch against the external source.
type Query struct {
	// Name identifies the scope. Syncs against the same name are
	// serialized; pick one name per logical working set.
	Name string

	// Filter is the element tag predicate in the source's query
	// language, e.g. `["currency:XBT"="yes"]`.
	Filter string
}

// Descriptor is one raw element as reported by the source.
type Descriptor struct {
	// Type and Ref form the source's namespaced id (node/way/relation).
	Type string
	Ref  int64

	// Point is the element's location. Nil when the source reports no
	// usable coordinate (some relations have no computable center).
	Point *domain.Point

	// Tags is the element's tag mapping.
	Tags map[string]string

	// Timestamp is the source-side last-modified time, zero if absent.
	Timestamp time.Time
}

// ExternalID returns the descriptor's id in canonical form.
func (d Descriptor) ExternalID() domain.ExternalID {
	return domain.ExternalID{Type: d.Type, Ref: d.Ref}
}

// Snapshot is the source's response to one query.
type Snapshot struct {
	// Complete reports whether the snapshot covers the full query scope.
	// Deletion inference is only valid against complete snapshots: an
	// entity missing from a partial one may simply not have been
	// returned.
	Complete bool

	FetchedAt time.Time
	Elements  []Descriptor
}

// Client fetches snapshots from the external source. The engine only
// consumes this interface; tests substitute fakes.
type Client interface {
	Fetch(ctx context.Context, q Query) (*Snapshot, error)
}

// TransportError reports a failed or timed-out fetch. The caller retries
// on its next scheduled pass, never in a tight loop.
type TransportError struct {
	Endpoint string
	Status   int // HTTP status, 0 for connection-level failures
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("source fetch failed: %s returned status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("source fetch failed: %s: %v", e.Endpoint, e.Err)
}

// Unwrap exposes the underlying error for errors.Is checks.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is a source transport failure.
// Uses errors.As to handle wrapped errors.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
