package board

import (
	"errors"
	"fmt"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidSlug      = errors.New("invalid slug")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("board not found")
	ErrAuditUnavailable = errors.New("audit log not configured")
)

// BackendError wraps a room store failure so the HTTP boundary can report
// the backend as unavailable instead of a generic server error.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("room store %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// PartialCreateError reports a board whose record was created but whose
// storage seed failed. The board exists without its initial document; no
// rollback is attempted since the store guarantees no compensating delete.
// Reconciliation is left to an external job reading the audit log.
type PartialCreateError struct {
	RoomID string
	Err    error
}

func (e *PartialCreateError) Error() string {
	return fmt.Sprintf("board %s created but not seeded: %v", e.RoomID, e.Err)
}

func (e *PartialCreateError) Unwrap() error { return e.Err }
