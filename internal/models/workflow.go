package models

import "time"

// StatusCategory buckets workflow statuses for reporting.
type StatusCategory string

const (
	CategoryTodo       StatusCategory = "todo"
	CategoryInProgress StatusCategory = "in_progress"
	CategoryDone       StatusCategory = "done"
)

// IsValid checks if the category is one of the three known buckets.
func (c StatusCategory) IsValid() bool {
	switch c {
	case CategoryTodo, CategoryInProgress, CategoryDone:
		return true
	}
	return false
}

// WorkflowStatus is one node of a workflow graph.
type WorkflowStatus struct {
	Key      string         `json:"key" yaml:"key"`
	Name     string         `json:"name" yaml:"name"`
	Category StatusCategory `json:"category" yaml:"category"`
}

// TransitionRules are the guards evaluated before a transition is applied.
type TransitionRules struct {
	RequireComment    bool     `json:"require_comment,omitempty" yaml:"require_comment,omitempty"`
	RequireResolution bool     `json:"require_resolution,omitempty" yaml:"require_resolution,omitempty"`
	RequireFields     []string `json:"require_fields,omitempty" yaml:"require_fields,omitempty"`
}

// WorkflowTransition is a directed edge of a workflow graph. (From, To) is unique.
type WorkflowTransition struct {
	ID    string          `json:"id" yaml:"id,omitempty"`
	Name  string          `json:"name,omitempty" yaml:"name,omitempty"`
	From  string          `json:"from" yaml:"from"`
	To    string          `json:"to" yaml:"to"`
	Rules TransitionRules `json:"rules" yaml:"rules,omitempty"`
}

// Workflow is a named status graph, unique per (workspace, name).
type Workflow struct {
	ID          int64                `json:"id"`
	WorkspaceID string               `json:"workspace_id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	IsDefault   bool                 `json:"is_default"`
	Statuses    []WorkflowStatus     `json:"statuses"`
	Transitions []WorkflowTransition `json:"transitions"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Status returns the status with the given key.
func (w *Workflow) Status(key string) (WorkflowStatus, bool) {
	for _, s := range w.Statuses {
		if s.Key == key {
			return s, true
		}
	}
	return WorkflowStatus{}, false
}

// Transition returns the edge from -> to, if modeled.
func (w *Workflow) Transition(from, to string) (WorkflowTransition, bool) {
	for _, t := range w.Transitions {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return WorkflowTransition{}, false
}

// TransitionContext is what the caller supplies alongside a transition request.
type TransitionContext struct {
	Actor      string `json:"actor"`
	Comment    string `json:"comment,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}
