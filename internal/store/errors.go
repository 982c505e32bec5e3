package store

import "errors"

// Sentinel errors returned by Store methods. Callers use errors.Is against
// these rather than matching on message text.
var (
	// ErrNotFound is returned when a looked-up entity does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConsistency is returned when a hash field decodes to an entity
	// whose own uuid disagrees with the key it was stored under.
	ErrConsistency = errors.New("store: consistency violation")

	// ErrInvalidJobType is returned by DequeueJob when the job's JobType
	// cannot be resolved.
	ErrInvalidJobType = errors.New("store: invalid job type")
)
