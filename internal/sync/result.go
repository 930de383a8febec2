package sync

import (
	"fmt"
	"time"

	"github.com/poimirror/poimirror/internal/domain"
)

// EntityError pairs a skipped element with the reason it was skipped.
type EntityError struct {
	External domain.ExternalID
	Err      error
}

// Result summarizes one sync pass.
type Result struct {
	// RunToken correlates log lines for one pass (UUIDv7, time-sortable).
	RunToken string

	// Scope is the query name the pass ran against.
	Scope string

	// Complete reports whether the source snapshot covered the full
	// scope. Deletions are only inferred from complete snapshots.
	Complete bool

	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	Skipped   int

	// Errors holds the per-element failures that did not abort the run.
	Errors []EntityError

	StartedAt time.Time
	Duration  time.Duration
}

// String returns a one-line summary suitable for logs.
func (r *Result) String() string {
	return fmt.Sprintf("created=%d updated=%d deleted=%d unchanged=%d skipped=%d errors=%d",
		r.Created, r.Updated, r.Deleted, r.Unchanged, r.Skipped, len(r.Errors))
}
