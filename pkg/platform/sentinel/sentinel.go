package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Document stores, caches and the
// registry mirror return these (optionally wrapped) so services can translate
// them into domain errors.
//
//   - ErrNotFound: document or record does not exist
//   - ErrConflict: an operation on the same resource is already running
//   - ErrInvalidState: record exists but cannot be decoded into a known state
//   - ErrUnavailable: backing service is down or its circuit is open
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
