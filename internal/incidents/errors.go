package incidents

import "errors"

// Domain errors raised by the incident engine. They propagate uncaught to
// the route layer; the engine never retries them.
var (
	// ErrValidation wraps every entity schema/invariant failure.
	ErrValidation = errors.New("incident validation failed")

	// ErrIncidentNotFound signals a stale or unknown incident id.
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrIncidentUpdateNotFound signals an unknown update entry id.
	ErrIncidentUpdateNotFound = errors.New("incident update not found")

	// ErrUpdateNotAllowed signals a structurally legal request forbidden by
	// the incident's variant or state.
	ErrUpdateNotAllowed = errors.New("incident cannot be updated")

	// ErrInvalidDate signals a scheduled start/end time violating ordering
	// or future-time constraints.
	ErrInvalidDate = errors.New("invalid scheduled time")

	// ErrInvalidIncidentStatus signals an update status not legal for the
	// incident's current scheduled phase.
	ErrInvalidIncidentStatus = errors.New("status not allowed in current incident phase")
)
