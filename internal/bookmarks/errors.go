package bookmarks

import "fmt"

// ValidationError reports a caller-supplied field rejected before any
// storage call was made. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bookmarks: invalid %s: %s", e.Field, e.Reason)
}

// BackendError wraps any failure surfaced by the storage backend:
// connectivity, authorization, constraint violations, or malformed rows.
// The core never retries these; callers own user-facing messaging.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("bookmarks: backend failure during %s", e.Op)
	}
	return fmt.Sprintf("bookmarks: backend failure during %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func newBackendError(op string, cause error) error {
	return &BackendError{Op: op, Err: cause}
}
