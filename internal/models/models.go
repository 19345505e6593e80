package models

import "time"

// Project groups tasks inside a workspace.
type Project struct {
	ID          int64     `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Task represents a single issue tracked on boards and sprints.
// Status is owned by the workflow engine and is never written directly.
// WorkflowID is fixed at creation and names the graph governing Status.
type Task struct {
	ID          int64     `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	ProjectID   int64     `json:"project_id"`
	WorkflowID  int64     `json:"workflow_id"`
	IssueType   string    `json:"issue_type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	Assignee    string    `json:"assignee,omitempty"`
	Resolution  string    `json:"resolution,omitempty"`
	Position    int64     `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DefaultIssueType is used when a task is created without one.
const DefaultIssueType = "task"

// ValidPriorities enumerates the task priorities understood by boards.
var ValidPriorities = map[string]struct{}{
	"lowest":  {},
	"low":     {},
	"medium":  {},
	"high":    {},
	"highest": {},
}

// DefaultPriority is assigned when a task is created without one.
const DefaultPriority = "medium"

// Entity types used in activity records.
const (
	EntityTask = "TASK"
	EntityBug  = "BUG"
)

// ActionStatusChanged is the activity action type for status transitions.
const ActionStatusChanged = "STATUS_CHANGED"

// FieldChange describes a single attribute change carried by an activity record.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// ActivityRecord is emitted once per successful status change for the audit collaborator.
type ActivityRecord struct {
	ID         string      `json:"id"`
	ActionType string      `json:"action_type"`
	EntityType string      `json:"entity_type"`
	EntityID   int64       `json:"entity_id"`
	UserID     string      `json:"user_id"`
	Summary    string      `json:"summary"`
	Changes    FieldChange `json:"changes"`
	CreatedAt  time.Time   `json:"created_at"`
}
