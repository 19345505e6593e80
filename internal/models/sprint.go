package models

import "time"

// SprintState is the one-way lifecycle future -> active -> closed.
type SprintState string

const (
	SprintFuture SprintState = "future"
	SprintActive SprintState = "active"
	SprintClosed SprintState = "closed"
)

// Sprint belongs to exactly one board.
type Sprint struct {
	ID          int64       `json:"id"`
	BoardID     int64       `json:"board_id"`
	Name        string      `json:"name"`
	Goal        string      `json:"goal,omitempty"`
	State       SprintState `json:"state"`
	StartDate   *time.Time  `json:"start_date,omitempty"`
	EndDate     *time.Time  `json:"end_date,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SprintTask is one membership row. Rows are never deleted; removal sets RemovedAt.
type SprintTask struct {
	ID        int64      `json:"id"`
	SprintID  int64      `json:"sprint_id"`
	TaskID    int64      `json:"task_id"`
	AddedAt   time.Time  `json:"added_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

// IsCurrent reports whether the membership has not been removed.
func (m SprintTask) IsCurrent() bool {
	return m.RemovedAt == nil
}
