package sync

import (
	"errors"
	"fmt"

	"github.com/poimirror/poimirror/internal/domain"
)

// ErrSyncInProgress is returned when a sync is requested for a scope that
// already has one running. Two full syncs over overlapping scope would
// race on revision ordering, so the later request is rejected; the caller
// retries on its next polling tick.
var ErrSyncInProgress = errors.New("sync already in progress for this scope")

// ValidationError reports one malformed element in a snapshot. The
// element is skipped for the pass and the error is collected into the
// SyncResult; it never aborts the batch.
type ValidationError struct {
	External domain.ExternalID
	Reason   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid element %s: %s", e.External, e.Reason)
}

// IsValidationError reports whether err is a per-element validation
// failure. Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
