// Package queue abstracts the broker that holds armed schedule occurrences.
// The database remains the source of truth for schedule configuration; the
// broker is a disposable cache of "what fires next" that startup sync can
// rebuild at any time.
package queue

import (
	"context"
	"time"
)

type Broker interface {
	// Arm enqueues the occurrence of triggerID due at the given time,
	// replacing nothing: arming the same occurrence twice is a no-op.
	Arm(ctx context.Context, triggerID, workflowID string, at time.Time) error

	// Disarm removes every armed occurrence for triggerID. Disarming a
	// trigger with nothing armed is not an error.
	Disarm(ctx context.Context, triggerID string) error

	// Armed reports whether triggerID has at least one occurrence waiting.
	Armed(ctx context.Context, triggerID string) (bool, error)

	Close() error
}
