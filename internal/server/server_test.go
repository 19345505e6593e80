package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker/internal/board"
	"tracker/internal/json"
	"tracker/internal/models"
	"tracker/internal/storage/sqlite"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "tracker.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, nil, "ws").Engine()
}

func do(t *testing.T, h http.Handler, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf.Write(raw)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(headerActor, actor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type taskBody struct {
	Task       models.Task       `json:"task"`
	Placements []board.Placement `json:"placements"`
}

type errorBody struct {
	Error string `json:"error"`
	Guard string `json:"guard"`
}

func softwareWorkflow() map[string]any {
	return map[string]any{
		"name": "Software",
		"statuses": []map[string]any{
			{"key": "todo", "name": "To Do", "category": "todo"},
			{"key": "doing", "name": "Doing", "category": "in_progress"},
			{"key": "done", "name": "Done", "category": "done"},
		},
		"transitions": []map[string]any{
			{"from": "todo", "to": "doing"},
			{"from": "doing", "to": "done", "rules": map[string]any{"require_resolution": true}},
		},
	}
}

// setupTask creates the default workflow, a project and one task in it.
func setupTask(t *testing.T, h http.Handler) (workflowID, projectID int64, task models.Task) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/workflows", "", softwareWorkflow())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	w := decode[struct {
		Workflow models.Workflow `json:"workflow"`
	}](t, rec).Workflow
	require.True(t, w.IsDefault)

	rec = do(t, h, http.MethodPost, "/api/projects", "", map[string]any{"name": "Core"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[struct {
		Project models.Project `json:"project"`
	}](t, rec).Project

	rec = do(t, h, http.MethodPost, "/api/projects/"+strconv.FormatInt(p.ID, 10)+"/tasks", "", map[string]any{"title": "Ship it"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return w.ID, p.ID, decode[taskBody](t, rec).Task
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTaskTransitionFlow(t *testing.T) {
	h := newTestServer(t)
	_, _, task := setupTask(t, h)
	assert.Equal(t, "todo", task.Status)
	path := "/api/tasks/" + strconv.FormatInt(task.ID, 10) + "/transitions"

	rec := do(t, h, http.MethodPost, path, "", map[string]any{"to": "doing"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, path, "u1", map[string]any{"to": "done"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	available := decode[struct {
		Transitions []models.WorkflowTransition `json:"transitions"`
	}](t, rec)
	require.Len(t, available.Transitions, 1)
	assert.Equal(t, "doing", available.Transitions[0].To)

	rec = do(t, h, http.MethodPost, path, "u1", map[string]any{"to": "doing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "doing", decode[taskBody](t, rec).Task.Status)

	rec = do(t, h, http.MethodPost, path, "u1", map[string]any{"to": "done"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, models.GuardResolution, decode[errorBody](t, rec).Guard)

	rec = do(t, h, http.MethodPost, path, "u1", map[string]any{"to": "done", "resolution": "fixed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[taskBody](t, rec).Task
	assert.Equal(t, "done", done.Status)
	assert.Equal(t, "fixed", done.Resolution)

	rec = do(t, h, http.MethodGet, "/api/tasks/"+strconv.FormatInt(task.ID, 10)+"/activity", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	activity := decode[struct {
		Activity []models.ActivityRecord `json:"activity"`
	}](t, rec).Activity
	require.Len(t, activity, 2)
	assert.Equal(t, "u1", activity[1].UserID)
	assert.Equal(t, "done", activity[1].Changes.NewValue)
}

func TestUpdateTaskIgnoresStatus(t *testing.T) {
	h := newTestServer(t)
	_, _, task := setupTask(t, h)

	rec := do(t, h, http.MethodPut, "/api/tasks/"+strconv.FormatInt(task.ID, 10), "", map[string]any{"title": "Renamed", "status": "done"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[taskBody](t, rec).Task
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, "todo", got.Status)

	rec = do(t, h, http.MethodPut, "/api/tasks/"+strconv.FormatInt(task.ID, 10), "", map[string]any{"priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTaskWithoutDefaultWorkflow(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/projects", "", map[string]any{"name": "Core"})
	require.Equal(t, http.StatusCreated, rec.Code)
	p := decode[struct {
		Project models.Project `json:"project"`
	}](t, rec).Project

	rec = do(t, h, http.MethodPost, "/api/projects/"+strconv.FormatInt(p.ID, 10)+"/tasks", "", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFieldValues(t *testing.T) {
	h := newTestServer(t)
	_, _, task := setupTask(t, h)
	base := "/api/tasks/" + strconv.FormatInt(task.ID, 10) + "/fields/severity"

	rec := do(t, h, http.MethodPost, "/api/fields", "", map[string]any{
		"field_key":  "severity",
		"name":       "Severity",
		"field_type": "select",
		"options":    map[string]any{"choices": []string{"minor", "major"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPut, base, "", map[string]any{"value": "blocker"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, base, "", map[string]any{"value": "major"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/tasks/"+strconv.FormatInt(task.ID, 10)+"/fields", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"major"`)

	rec = do(t, h, http.MethodDelete, base, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cleared")

	rec = do(t, h, http.MethodPut, "/api/tasks/"+strconv.FormatInt(task.ID, 10)+"/fields/unknown", "", map[string]any{"value": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBoardMoveAndWIPLimit(t *testing.T) {
	h := newTestServer(t)
	workflowID, projectID, first := setupTask(t, h)

	rec := do(t, h, http.MethodPost, "/api/projects/"+strconv.FormatInt(projectID, 10)+"/tasks", "", map[string]any{"title": "Second"})
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[taskBody](t, rec).Task

	rec = do(t, h, http.MethodPost, "/api/boards", "", map[string]any{
		"name":        "Team",
		"project_id":  projectID,
		"workflow_id": workflowID,
		"columns": []map[string]any{
			{"name": "To Do", "status_mapping": []string{"todo"}, "order": 0},
			{"name": "Doing", "status_mapping": []string{"doing"}, "wip_limit": 1, "order": 1},
			{"name": "Done", "status_mapping": []string{"done"}, "order": 2},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[struct {
		Board models.BoardConfig `json:"board"`
	}](t, rec).Board
	require.Len(t, b.Columns, 3)
	todo, doing := b.Columns[0].ID, b.Columns[1].ID
	movePath := "/api/boards/" + strconv.FormatInt(b.ID, 10) + "/moves"

	rec = do(t, h, http.MethodPost, movePath, "u1", map[string]any{"task_id": first.ID, "from_column": todo, "to_column": doing})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[taskBody](t, rec)
	assert.Equal(t, "doing", moved.Task.Status)
	require.Len(t, moved.Placements, 1)
	assert.Equal(t, doing, moved.Placements[0].ColumnID)

	rec = do(t, h, http.MethodPost, movePath, "u1", map[string]any{"task_id": second.ID, "from_column": todo, "to_column": doing})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/boards/"+strconv.FormatInt(b.ID, 10)+"/projection", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[struct {
		Projection board.Projection `json:"projection"`
	}](t, rec).Projection
	require.Len(t, p.Columns, 3)
	assert.Equal(t, 1, p.Columns[0].Count)
	assert.Equal(t, 1, p.Columns[1].Count)
}

func TestSprintLifecycle(t *testing.T) {
	h := newTestServer(t)
	workflowID, projectID, task := setupTask(t, h)

	rec := do(t, h, http.MethodPost, "/api/boards", "", map[string]any{
		"name":        "Team",
		"project_id":  projectID,
		"workflow_id": workflowID,
		"columns":     []map[string]any{{"name": "All", "status_mapping": []string{"todo", "doing", "done"}}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decode[struct {
		Board models.BoardConfig `json:"board"`
	}](t, rec).Board
	sprintsPath := "/api/boards/" + strconv.FormatInt(b.ID, 10) + "/sprints"

	ids := make([]int64, 2)
	for i, name := range []string{"Sprint 1", "Sprint 2"} {
		rec = do(t, h, http.MethodPost, sprintsPath, "", map[string]any{"name": name})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		ids[i] = decode[struct {
			Sprint models.Sprint `json:"sprint"`
		}](t, rec).Sprint.ID
	}

	rec = do(t, h, http.MethodPost, "/api/sprints/"+strconv.FormatInt(ids[0], 10)+"/start", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodPost, "/api/sprints/"+strconv.FormatInt(ids[1], 10)+"/start", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/sprints/"+strconv.FormatInt(ids[0], 10)+"/tasks", "", map[string]any{"task_id": task.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/tasks/"+strconv.FormatInt(task.ID, 10)+"/sprints", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		Memberships []models.SprintTask `json:"memberships"`
	}](t, rec).Memberships
	require.Len(t, history, 1)
	assert.Equal(t, ids[0], history[0].SprintID)
}

func TestBugPermissions(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/bugs", "", map[string]any{"title": "Crash", "assigned_to": "alex"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/bugs", "rita", map[string]any{"title": "Crash", "assigned_to": "alex"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bug := decode[struct {
		Bug models.Bug `json:"bug"`
	}](t, rec).Bug
	assert.Equal(t, "rita", bug.ReportedBy)
	statusPath := "/api/bugs/" + strconv.FormatInt(bug.ID, 10) + "/status"

	rec = do(t, h, http.MethodPost, statusPath, "rita", map[string]any{"status": "In Progress"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/bugs/"+strconv.FormatInt(bug.ID, 10), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.BugOpen, decode[struct {
		Bug models.Bug `json:"bug"`
	}](t, rec).Bug.Status)

	for _, st := range []string{"In Progress", "Resolved", "Closed"} {
		rec = do(t, h, http.MethodPost, statusPath, "alex", map[string]any{"status": st})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/bugs/"+strconv.FormatInt(bug.ID, 10)+"/reopen", "alex", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/bugs/"+strconv.FormatInt(bug.ID, 10)+"/reopen", "rita", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reopened := decode[struct {
		Bug     models.Bug        `json:"bug"`
		Comment models.BugComment `json:"comment"`
	}](t, rec)
	assert.Equal(t, models.BugOpen, reopened.Bug.Status)
	assert.Nil(t, reopened.Bug.ResolvedAt)
	assert.True(t, reopened.Comment.IsSystemComment)

	rec = do(t, h, http.MethodGet, "/api/bugs/"+strconv.FormatInt(bug.ID, 10)+"/activity", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	activity := decode[struct {
		Activity []models.ActivityRecord `json:"activity"`
	}](t, rec).Activity
	assert.Len(t, activity, 4)
}

func TestWorkspaceHeaderScopesLists(t *testing.T) {
	h := newTestServer(t)
	setupTask(t, h)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set(headerWorkspace, "elsewhere")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	projects := decode[struct {
		Projects []models.Project `json:"projects"`
	}](t, rec).Projects
	assert.Empty(t, projects)

	rec = do(t, h, http.MethodGet, "/api/projects", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[struct {
		Projects []models.Project `json:"projects"`
	}](t, rec).Projects, 1)
}

func createWorkflow(t *testing.T, h http.Handler, body map[string]any) models.Workflow {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/workflows", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[struct {
		Workflow models.Workflow `json:"workflow"`
	}](t, rec).Workflow
}

func TestTransitionRunsAgainstTheTaskWorkflow(t *testing.T) {
	h := newTestServer(t)
	softwareID, _, task := setupTask(t, h)
	require.Equal(t, softwareID, task.WorkflowID)

	lax := createWorkflow(t, h, map[string]any{
		"name": "Lax",
		"statuses": []map[string]any{
			{"key": "todo", "name": "To Do", "category": "todo"},
			{"key": "done", "name": "Done", "category": "done"},
		},
		"transitions": []map[string]any{{"from": "todo", "to": "done"}},
	})
	path := "/api/tasks/" + strconv.FormatInt(task.ID, 10) + "/transitions"

	rec := do(t, h, http.MethodPost, path, "u1", map[string]any{"to": "done", "workflow_id": lax.ID})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/tasks/"+strconv.FormatInt(task.ID, 10), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "todo", decode[taskBody](t, rec).Task.Status)
}

func TestSetDefaultKeepsExistingTasksMovable(t *testing.T) {
	h := newTestServer(t)
	softwareID, projectID, task := setupTask(t, h)

	tiny := createWorkflow(t, h, map[string]any{
		"name":        "Tiny",
		"statuses":    []map[string]any{{"key": "a", "category": "todo"}, {"key": "b", "category": "done"}},
		"transitions": []map[string]any{{"from": "a", "to": "b"}},
	})
	rec := do(t, h, http.MethodPost, "/api/workflows/"+strconv.FormatInt(tiny.ID, 10)+"/default", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	path := "/api/tasks/" + strconv.FormatInt(task.ID, 10) + "/transitions"
	rec = do(t, h, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	available := decode[struct {
		Transitions []models.WorkflowTransition `json:"transitions"`
	}](t, rec)
	require.Len(t, available.Transitions, 1)
	assert.Equal(t, "doing", available.Transitions[0].To)

	rec = do(t, h, http.MethodPost, path, "u1", map[string]any{"to": "doing"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/projects/"+strconv.FormatInt(projectID, 10)+"/tasks", "", map[string]any{"title": "Later"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	later := decode[taskBody](t, rec).Task
	assert.Equal(t, tiny.ID, later.WorkflowID)
	assert.Equal(t, "a", later.Status)

	shrunk := softwareWorkflow()
	shrunk["statuses"] = []map[string]any{
		{"key": "todo", "name": "To Do", "category": "todo"},
		{"key": "done", "name": "Done", "category": "done"},
	}
	shrunk["transitions"] = []map[string]any{{"from": "todo", "to": "done"}}
	rec = do(t, h, http.MethodPut, "/api/workflows/"+strconv.FormatInt(softwareID, 10), "", shrunk)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "a task still sits in doing")
}

func TestNoOutgoingTransitionsIsAnEmptyList(t *testing.T) {
	h := newTestServer(t)
	_, _, task := setupTask(t, h)
	path := "/api/tasks/" + strconv.FormatInt(task.ID, 10) + "/transitions"

	rec := do(t, h, http.MethodPost, path, "u1", map[string]any{"to": "doing"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, path, "u1", map[string]any{"to": "done", "resolution": "fixed"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"transitions":[]`)
}

func TestApplicableFields(t *testing.T) {
	h := newTestServer(t)
	_, projectID, _ := setupTask(t, h)

	for _, body := range []map[string]any{
		{"field_key": "severity", "name": "Severity", "field_type": "text", "issue_types": []string{"bug"}, "display_order": 2},
		{"field_key": "team", "name": "Team", "field_type": "text", "display_order": 1},
		{"field_key": "budget", "name": "Budget", "field_type": "number", "project_ids": []int64{projectID + 1}},
	} {
		rec := do(t, h, http.MethodPost, "/api/fields", "", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	keys := func(path string) []string {
		rec := do(t, h, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out []string
		for _, d := range decode[struct {
			Fields []models.FieldDefinition `json:"fields"`
		}](t, rec).Fields {
			out = append(out, d.FieldKey)
		}
		return out
	}
	project := strconv.FormatInt(projectID, 10)
	assert.Equal(t, []string{"team", "severity"}, keys("/api/fields/applicable?issue_type=bug&project_id="+project))
	assert.Equal(t, []string{"team"}, keys("/api/fields/applicable?issue_type=task&project_id="+project))
	assert.Len(t, keys("/api/fields"), 3)

	rec := do(t, h, http.MethodGet, "/api/fields/applicable?issue_type=bug", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTaskRecordsFieldDefaults(t *testing.T) {
	h := newTestServer(t)
	_, projectID, _ := setupTask(t, h)

	rec := do(t, h, http.MethodPost, "/api/fields", "", map[string]any{
		"field_key":     "story_points",
		"name":          "Story points",
		"field_type":    "number",
		"is_required":   true,
		"default_value": 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/projects/"+strconv.FormatInt(projectID, 10)+"/tasks", "", map[string]any{"title": "Estimated"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decode[taskBody](t, rec).Task

	rec = do(t, h, http.MethodGet, "/api/tasks/"+strconv.FormatInt(task.ID, 10), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		MissingRequired []string `json:"missing_required"`
	}](t, rec)
	assert.Empty(t, got.MissingRequired)
	assert.Contains(t, rec.Body.String(), `"story_points"`)
}
