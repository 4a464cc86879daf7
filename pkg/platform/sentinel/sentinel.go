package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about stored records, not validation
// failures:
//   - ErrNotFound: identity, resume, job record, or request does not exist
//   - ErrAlreadyUsed: a uniqueness slot is taken (principal already registered,
//     resume already minted, validation hash already open)
//   - ErrInvalidState: record is in the wrong state for the requested mutation
//     (job already resolved, feedback already revoked, back-link already set)
//   - ErrUnavailable: backing resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
