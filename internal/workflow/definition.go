// Package workflow validates workflow graphs and applies guarded status transitions.
package workflow

import (
	"strings"

	"github.com/google/uuid"

	"tracker/internal/models"
)

// Normalize fills defaults on a definition: trimmed names, status display
// names, todo category and transition ids. The input is not modified.
func Normalize(w models.Workflow) models.Workflow {
	w.Name = strings.TrimSpace(w.Name)

	statuses := make([]models.WorkflowStatus, len(w.Statuses))
	for i, s := range w.Statuses {
		s.Key = strings.TrimSpace(s.Key)
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			s.Name = s.Key
		}
		if s.Category == "" {
			s.Category = models.CategoryTodo
		}
		statuses[i] = s
	}
	w.Statuses = statuses

	transitions := make([]models.WorkflowTransition, len(w.Transitions))
	for i, t := range w.Transitions {
		t.From = strings.TrimSpace(t.From)
		t.To = strings.TrimSpace(t.To)
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.Rules.RequireFields = append([]string(nil), t.Rules.RequireFields...)
		transitions[i] = t
	}
	w.Transitions = transitions
	return w
}

// Validate checks the structural invariants of a workflow definition.
func Validate(w models.Workflow) error {
	if strings.TrimSpace(w.WorkspaceID) == "" {
		return models.NewValidationErrorf("workflow workspace id must not be empty")
	}
	if w.Name == "" {
		return models.NewValidationErrorf("workflow name must not be empty")
	}
	if len(w.Statuses) == 0 {
		return models.NewValidationErrorf("workflow %s: at least one status is required", w.Name)
	}

	keys := make(map[string]struct{}, len(w.Statuses))
	for _, s := range w.Statuses {
		if s.Key == "" {
			return models.NewValidationErrorf("workflow %s: status key must not be empty", w.Name)
		}
		if _, dup := keys[s.Key]; dup {
			return models.NewValidationErrorf("workflow %s: duplicate status %q", w.Name, s.Key)
		}
		if !s.Category.IsValid() {
			return models.NewValidationErrorf("workflow %s: status %q has unknown category %q", w.Name, s.Key, s.Category)
		}
		keys[s.Key] = struct{}{}
	}

	type edge struct{ from, to string }
	edges := make(map[edge]struct{}, len(w.Transitions))
	ids := make(map[string]struct{}, len(w.Transitions))
	for _, t := range w.Transitions {
		if _, ok := keys[t.From]; !ok {
			return models.NewValidationErrorf("workflow %s: transition %s references unknown status %q", w.Name, t.ID, t.From)
		}
		if _, ok := keys[t.To]; !ok {
			return models.NewValidationErrorf("workflow %s: transition %s references unknown status %q", w.Name, t.ID, t.To)
		}
		e := edge{t.From, t.To}
		if _, dup := edges[e]; dup {
			return models.NewValidationErrorf("workflow %s: duplicate transition %s -> %s", w.Name, t.From, t.To)
		}
		edges[e] = struct{}{}
		if t.ID != "" {
			if _, dup := ids[t.ID]; dup {
				return models.NewValidationErrorf("workflow %s: duplicate transition id %s", w.Name, t.ID)
			}
			ids[t.ID] = struct{}{}
		}
		for _, f := range t.Rules.RequireFields {
			if strings.TrimSpace(f) == "" {
				return models.NewValidationErrorf("workflow %s: transition %s -> %s requires an empty field key", w.Name, t.From, t.To)
			}
		}
	}
	return nil
}

// keepTransitionIDs copies the id of an existing edge onto every id-less
// transition with the same (from, to) pair.
func keepTransitionIDs(current *models.Workflow, transitions []models.WorkflowTransition) []models.WorkflowTransition {
	out := make([]models.WorkflowTransition, len(transitions))
	for i, t := range transitions {
		if t.ID == "" {
			if prev, ok := current.Transition(strings.TrimSpace(t.From), strings.TrimSpace(t.To)); ok {
				t.ID = prev.ID
			}
		}
		out[i] = t
	}
	return out
}

// CanTransition reports whether the edge from -> to is modeled. Self
// transitions are only allowed when explicitly present.
func CanTransition(w *models.Workflow, from, to string) bool {
	_, ok := w.Transition(from, to)
	return ok
}

// AvailableTransitions lists the outgoing edges of a status in definition order.
func AvailableTransitions(w *models.Workflow, from string) []models.WorkflowTransition {
	out := []models.WorkflowTransition{}
	for _, t := range w.Transitions {
		if t.From == from {
			out = append(out, t)
		}
	}
	return out
}

// InitialStatus is the status new issues start in: the first todo status,
// or the first status when none is categorised todo.
func InitialStatus(w *models.Workflow) string {
	for _, s := range w.Statuses {
		if s.Category == models.CategoryTodo {
			return s.Key
		}
	}
	if len(w.Statuses) == 0 {
		return ""
	}
	return w.Statuses[0].Key
}

// statusName returns the display name of a status, falling back to its key.
func statusName(w *models.Workflow, key string) string {
	if s, ok := w.Status(key); ok && s.Name != "" {
		return s.Name
	}
	return key
}
