package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, source clients and the
// status client return these (optionally wrapped) so callers can branch with
// errors.Is without knowing which adapter produced them.
//
//   - ErrNotFound: record, run or statement does not exist
//   - ErrUnavailable: collaborator temporarily unavailable (circuit open, 5xx)
//   - ErrInvalidState: collaborator answered with something we cannot use
//   - ErrConflict: a write collided with an existing record
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidState = errors.New("invalid state")
)
