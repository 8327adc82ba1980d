package types

import "time"

// Workflow is the scheduler's view of an owning workflow. Only the fields the
// scheduler needs are carried; the rest of the workflow record belongs to the
// workflow management service.
type Workflow struct {
	ID        string    `json:"workflow_id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
