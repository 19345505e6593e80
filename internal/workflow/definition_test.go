package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker/internal/models"
)

// bugWorkflow is Open -> In Progress -> Resolved -> Closed with a reopen edge.
func bugWorkflow() models.Workflow {
	return Normalize(models.Workflow{
		WorkspaceID: "ws",
		Name:        "Bugs",
		Statuses: []models.WorkflowStatus{
			{Key: "open", Name: "Open", Category: models.CategoryTodo},
			{Key: "in_progress", Name: "In Progress", Category: models.CategoryInProgress},
			{Key: "resolved", Name: "Resolved", Category: models.CategoryDone},
			{Key: "closed", Name: "Closed", Category: models.CategoryDone},
		},
		Transitions: []models.WorkflowTransition{
			{From: "open", To: "in_progress"},
			{From: "in_progress", To: "resolved", Rules: models.TransitionRules{RequireResolution: true}},
			{From: "resolved", To: "closed", Rules: models.TransitionRules{RequireFields: []string{"verified_by"}}},
			{From: "resolved", To: "open", Rules: models.TransitionRules{RequireComment: true}},
		},
	})
}

func TestNormalizeFillsDefaults(t *testing.T) {
	w := Normalize(models.Workflow{
		WorkspaceID: "ws",
		Name:        "  Simple ",
		Statuses:    []models.WorkflowStatus{{Key: " todo "}, {Key: "done", Category: models.CategoryDone}},
		Transitions: []models.WorkflowTransition{{From: "todo", To: "done"}},
	})

	assert.Equal(t, "Simple", w.Name)
	assert.Equal(t, "todo", w.Statuses[0].Key)
	assert.Equal(t, "todo", w.Statuses[0].Name)
	assert.Equal(t, models.CategoryTodo, w.Statuses[0].Category)
	assert.NotEmpty(t, w.Transitions[0].ID)
	require.NoError(t, Validate(w))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(w *models.Workflow)
	}{
		{name: "no workspace", mutate: func(w *models.Workflow) { w.WorkspaceID = "" }},
		{name: "no name", mutate: func(w *models.Workflow) { w.Name = "" }},
		{name: "no statuses", mutate: func(w *models.Workflow) { w.Statuses = nil; w.Transitions = nil }},
		{name: "duplicate status", mutate: func(w *models.Workflow) {
			w.Statuses = append(w.Statuses, models.WorkflowStatus{Key: "open", Category: models.CategoryTodo})
		}},
		{name: "unknown category", mutate: func(w *models.Workflow) { w.Statuses[0].Category = "blocked" }},
		{name: "unknown from", mutate: func(w *models.Workflow) {
			w.Transitions = append(w.Transitions, models.WorkflowTransition{ID: "x", From: "triage", To: "open"})
		}},
		{name: "unknown to", mutate: func(w *models.Workflow) {
			w.Transitions = append(w.Transitions, models.WorkflowTransition{ID: "x", From: "open", To: "wontfix"})
		}},
		{name: "duplicate edge", mutate: func(w *models.Workflow) {
			w.Transitions = append(w.Transitions, models.WorkflowTransition{ID: "x", From: "open", To: "in_progress"})
		}},
		{name: "duplicate transition id", mutate: func(w *models.Workflow) {
			w.Transitions[1].ID = w.Transitions[0].ID
		}},
		{name: "blank required field", mutate: func(w *models.Workflow) {
			w.Transitions[0].Rules.RequireFields = []string{" "}
		}},
	}

	require.NoError(t, Validate(bugWorkflow()))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := bugWorkflow()
			tc.mutate(&w)
			assert.ErrorIs(t, Validate(w), models.ErrValidation)
		})
	}
}

func TestCanTransitionOnlyFollowsModeledEdges(t *testing.T) {
	w := bugWorkflow()

	assert.True(t, CanTransition(&w, "open", "in_progress"))
	assert.False(t, CanTransition(&w, "in_progress", "open"), "edges are directed")
	assert.False(t, CanTransition(&w, "open", "closed"))
	assert.False(t, CanTransition(&w, "open", "open"), "self transitions need an explicit edge")

	w.Transitions = append(w.Transitions, models.WorkflowTransition{From: "open", To: "open"})
	assert.True(t, CanTransition(&w, "open", "open"))
}

func TestAvailableTransitions(t *testing.T) {
	w := bugWorkflow()

	got := AvailableTransitions(&w, "resolved")
	require.Len(t, got, 2)
	assert.Equal(t, "closed", got[0].To)
	assert.Equal(t, "open", got[1].To)

	none := AvailableTransitions(&w, "closed")
	assert.NotNil(t, none, "encodes as an empty list")
	assert.Empty(t, none)
}

func TestInitialStatus(t *testing.T) {
	w := bugWorkflow()
	assert.Equal(t, "open", InitialStatus(&w))

	w.Statuses[0].Category = models.CategoryInProgress
	w.Statuses[1].Category = models.CategoryTodo
	assert.Equal(t, "in_progress", InitialStatus(&w))

	for i := range w.Statuses {
		w.Statuses[i].Category = models.CategoryDone
	}
	assert.Equal(t, "open", InitialStatus(&w))

	assert.Equal(t, "", InitialStatus(&models.Workflow{}))
}
