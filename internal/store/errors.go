package store

import (
	"errors"
	"fmt"

	"github.com/poimirror/poimirror/internal/domain"
)

// ErrNotFound is returned by lookups against an unknown id.
// It is an expected outcome for callers, not a logged failure.
var ErrNotFound = errors.New("record not found")

// ConsistencyError reports a revision conflict on append: another append
// committed the revision this one was about to take.
//
// Appends run on a single-writer connection inside a transaction, so this
// should not surface in practice. If it does, the append is aborted
// without a partial write and the caller must re-read and retry.
type ConsistencyError struct {
	Subject   domain.SubjectKind
	SubjectID int64
	Revision  int64
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("revision conflict: %s %d already has revision %d", e.Subject, e.SubjectID, e.Revision)
}

// IsConsistencyError reports whether err is a revision conflict.
// Uses errors.As to handle wrapped errors.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
