package model

import "errors"

// Sentinel errors shared across the domain. Driving adapters map these to
// HTTP statuses; driven adapters wrap underlying failures with them so the
// application layer can branch without inspecting strings.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an equivalent operation is already queued or processing.
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState indicates an operation was attempted against a record
	// whose status does not permit it (e.g. cancelling a processing operation).
	ErrInvalidState = errors.New("invalid state")

	// ErrNotConfigured indicates a required credential or setting is absent.
	ErrNotConfigured = errors.New("not configured")

	// ErrTruncated indicates an LLM response ended before the structured
	// payload was complete. Distinct from a generic parse failure so callers
	// can tell an over-budget response from model misbehavior.
	ErrTruncated = errors.New("response truncated")
)
