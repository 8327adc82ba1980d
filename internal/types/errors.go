package types

import "errors"

var (
	// ErrInvalidSchedule marks a malformed recurrence expression or timezone.
	// Registrations failing with it are rejected, never retried.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrNotFound marks a missing trigger, workflow or execution target, or
	// one the caller does not own.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks a webhook or integration secret mismatch. It
	// deliberately carries no detail about which part of the check failed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTriggerTypeMismatch marks an operation addressed to a trigger of the
	// wrong type, e.g. a webhook dispatch to a schedule trigger.
	ErrTriggerTypeMismatch = errors.New("trigger type mismatch")
)
