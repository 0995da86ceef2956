package dbsync

import (
	"errors"
	"fmt"

	"github.com/namohq/dbsync/internal/sqlitex"
)

// IntegrityError reports a failed verification of downloaded or applied
// snapshot content: digest mismatch, size mismatch, or the store
// serving a different version than addressed.
type IntegrityError struct {
	Reason string
	Err    error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dbsync: integrity: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("dbsync: integrity: %s", e.Reason)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// isIntegrityFailure reports whether err is a verification failure from
// either the transfer layer or the engine's post-apply check. Both are
// retried by the orchestrator with a fresh download.
func isIntegrityFailure(err error) bool {
	var de *IntegrityError
	var se *sqlitex.IntegrityError
	return errors.As(err, &de) || errors.As(err, &se)
}
