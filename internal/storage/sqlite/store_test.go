package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"tracker/internal/bugs"
	"tracker/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "tracker.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTask(t *testing.T, s *Store, status string) models.Task {
	t.Helper()
	ctx := context.Background()
	p, err := s.CreateProject(ctx, "ws", "Project "+status, "")
	require.NoError(t, err)
	w, err := s.CreateWorkflow(ctx, models.Workflow{
		WorkspaceID: "ws",
		Name:        fmt.Sprintf("Flow %d", p.ID),
		Statuses:    []models.WorkflowStatus{{Key: status, Name: status, Category: models.CategoryTodo}},
	})
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, models.Task{ProjectID: p.ID, WorkflowID: w.ID, Title: "Task", Status: status})
	require.NoError(t, err)
	return task
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("", nil)
	assert.Error(t, err)
}

func TestProjects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "ws", "  Core ", "#123456")
	require.NoError(t, err)
	assert.Equal(t, "Core", p.Name)
	assert.Equal(t, "#123456", p.Color)

	_, err = s.CreateProject(ctx, "ws", "Core", "")
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = s.CreateProject(ctx, "other", "Core", "")
	assert.NoError(t, err)

	list, err := s.ListProjects(ctx, "ws")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.UpdateProject(ctx, 999, "x", "")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, s.DeleteProject(ctx, 999), models.ErrNotFound)
	require.NoError(t, s.DeleteProject(ctx, p.ID))
	_, err = s.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTaskDefaultsAndUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task := seedTask(t, s, "todo")

	assert.Equal(t, "ws", task.WorkspaceID)
	assert.Equal(t, models.DefaultIssueType, task.IssueType)
	assert.Equal(t, models.DefaultPriority, task.Priority)

	updated, err := s.UpdateTask(ctx, task.ID, map[string]any{"title": "Renamed", "priority": "high", "status": "done"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "high", updated.Priority)
	assert.Equal(t, "todo", updated.Status, "status only moves through compare-and-set")

	_, err = s.UpdateTask(ctx, task.ID, map[string]any{"priority": "urgent"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestTasksAreGovernedByTheirWorkflow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task := seedTask(t, s, "todo")
	require.NotZero(t, task.WorkflowID)

	_, err := s.CreateTask(ctx, models.Task{ProjectID: task.ProjectID, Title: "Loose", Status: "todo"})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = s.CreateTask(ctx, models.Task{ProjectID: task.ProjectID, WorkflowID: 999, Title: "Orphan", Status: "todo"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	foreign, err := s.CreateWorkflow(ctx, models.Workflow{
		WorkspaceID: "elsewhere",
		Name:        "Foreign",
		Statuses:    []models.WorkflowStatus{{Key: "todo", Name: "To Do", Category: models.CategoryTodo}},
	})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, models.Task{ProjectID: task.ProjectID, WorkflowID: foreign.ID, Title: "Cross", Status: "todo"})
	assert.ErrorIs(t, err, models.ErrValidation)

	other, err := s.CreateWorkflow(ctx, models.Workflow{
		WorkspaceID: "ws",
		Name:        "Other",
		Statuses:    []models.WorkflowStatus{{Key: "todo", Name: "To Do", Category: models.CategoryTodo}},
	})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, models.Task{ProjectID: task.ProjectID, WorkflowID: other.ID, Title: "Sibling", Status: "todo"})
	require.NoError(t, err)

	n, err := s.CountTasksInStatus(ctx, task.WorkflowID, "todo")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountTasksInStatus(ctx, other.ID, "todo")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := s.CreateBoard(ctx, models.BoardConfig{
		WorkspaceID: "ws",
		WorkflowID:  other.ID,
		Name:        "Other board",
		Columns:     []models.BoardColumn{{Name: "To Do", StatusMapping: []string{"todo"}}},
	})
	require.NoError(t, err)
	cards, err := s.ListBoardCards(ctx, b)
	require.NoError(t, err)
	require.Len(t, cards, 1, "boards only show tasks of their own workflow")
	assert.Equal(t, "Sibling", cards[0].Task.Title)
}

func TestCompareAndSetStatusSingleWinner(t *testing.T) {
	s := openTestStore(t)
	task := seedTask(t, s, "todo")

	const writers = 10
	results := make([]error, writers)
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, results[i] = s.CompareAndSetStatus(context.Background(), task.ID, "todo", "doing", "")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, models.ErrConcurrentModification)
	}
	assert.Equal(t, 1, wins)

	got, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "doing", got.Status)
}

func TestCompareAndSetStatusResolution(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task := seedTask(t, s, "doing")

	got, err := s.CompareAndSetStatus(ctx, task.ID, "doing", "done", "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", got.Resolution)

	got, err = s.CompareAndSetStatus(ctx, task.ID, "done", "doing", "")
	require.NoError(t, err)
	assert.Equal(t, "fixed", got.Resolution, "an empty resolution keeps the previous one")

	_, err = s.CompareAndSetStatus(ctx, 999, "doing", "done", "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFieldValueRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task := seedTask(t, s, "todo")

	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	seen := time.Date(2024, 6, 1, 13, 45, 30, 0, time.UTC)
	cases := []struct {
		key   string
		ft    models.FieldType
		value models.Value
	}{
		{key: "summary", ft: models.FieldText, value: models.StringValue("hello")},
		{key: "estimate", ft: models.FieldNumber, value: models.NumberValue(5.5)},
		{key: "due", ft: models.FieldDate, value: models.DateValue{Time: due, DateOnly: true}},
		{key: "seen", ft: models.FieldDateTime, value: models.DateValue{Time: seen}},
		{key: "reviewer", ft: models.FieldUser, value: models.UserValue("u-7")},
		{key: "labels", ft: models.FieldLabels, value: models.ListValue{"ui", "api"}},
		{key: "flag", ft: models.FieldCheckbox, value: models.BoolValue(true)},
	}

	for i, tc := range cases {
		d, err := s.CreateFieldDefinition(ctx, models.FieldDefinition{
			WorkspaceID: "ws", FieldKey: tc.key, Name: tc.key, FieldType: tc.ft, DisplayOrder: i,
		})
		require.NoError(t, err)

		stored, err := s.UpsertFieldValue(ctx, models.FieldValue{
			TaskID: task.ID, FieldDefinitionID: d.ID, FieldKey: tc.key, FieldType: tc.ft, Value: tc.value,
		})
		require.NoError(t, err, tc.key)
		if dv, ok := tc.value.(models.DateValue); ok {
			got, ok := stored.Value.(models.DateValue)
			require.True(t, ok)
			assert.True(t, dv.Time.Equal(got.Time), tc.key)
			assert.Equal(t, dv.DateOnly, got.DateOnly)
			continue
		}
		assert.Equal(t, tc.value, stored.Value, tc.key)
	}

	values, err := s.ListFieldValues(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, values, len(cases))
	for i, v := range values {
		assert.Equal(t, cases[i].key, v.FieldKey)
	}
}

func TestFieldValueSlotMismatchAndUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task := seedTask(t, s, "todo")

	d, err := s.CreateFieldDefinition(ctx, models.FieldDefinition{WorkspaceID: "ws", FieldKey: "points", Name: "Points", FieldType: models.FieldNumber})
	require.NoError(t, err)

	_, err = s.UpsertFieldValue(ctx, models.FieldValue{TaskID: task.ID, FieldDefinitionID: d.ID, FieldType: models.FieldNumber, Value: models.StringValue("3")})
	assert.ErrorIs(t, err, models.ErrValidation)

	first, err := s.UpsertFieldValue(ctx, models.FieldValue{TaskID: task.ID, FieldDefinitionID: d.ID, FieldType: models.FieldNumber, Value: models.NumberValue(3)})
	require.NoError(t, err)
	second, err := s.UpsertFieldValue(ctx, models.FieldValue{TaskID: task.ID, FieldDefinitionID: d.ID, FieldType: models.FieldNumber, Value: models.NumberValue(8)})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.NumberValue(8), second.Value)

	n, err := s.CountFieldValues(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	other, err := s.CreateFieldDefinition(ctx, models.FieldDefinition{WorkspaceID: "ws", FieldKey: "notes", Name: "Notes", FieldType: models.FieldText})
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO field_values(task_id, field_definition_id, string_value, number_value) VALUES(?, ?, 'a', 1)`,
		task.ID, other.ID)
	assert.Error(t, err, "two populated slots violate the check constraint")
}

func TestFieldDefinitionDeleteBlockedByValues(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task := seedTask(t, s, "todo")

	d, err := s.CreateFieldDefinition(ctx, models.FieldDefinition{WorkspaceID: "ws", FieldKey: "team", Name: "Team", FieldType: models.FieldText})
	require.NoError(t, err)
	_, err = s.CreateFieldDefinition(ctx, models.FieldDefinition{WorkspaceID: "ws", FieldKey: "team", Name: "Team again", FieldType: models.FieldText})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = s.UpsertFieldValue(ctx, models.FieldValue{TaskID: task.ID, FieldDefinitionID: d.ID, FieldType: models.FieldText, Value: models.StringValue("core")})
	require.NoError(t, err)
	assert.ErrorIs(t, s.DeleteFieldDefinition(ctx, d.ID), models.ErrValidation)

	require.NoError(t, s.DeleteFieldValue(ctx, task.ID, d.ID))
	require.NoError(t, s.DeleteFieldValue(ctx, task.ID, d.ID), "clearing twice is fine")
	require.NoError(t, s.DeleteFieldDefinition(ctx, d.ID))
	_, err = s.GetFieldDefinitionByKey(ctx, "ws", "team")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFieldDefinitionPersistsOptions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ceiling := 10.0

	d, err := s.CreateFieldDefinition(ctx, models.FieldDefinition{
		WorkspaceID:     "ws",
		FieldKey:        "severity",
		Name:            "Severity",
		FieldType:       models.FieldSelect,
		IsRequired:      true,
		DefaultValue:    "minor",
		Options:         models.FieldOptions{Choices: []string{"minor", "major"}, Max: &ceiling},
		IssueTypes:      []string{"bug"},
		ProjectIDs:      []int64{4, 5},
		VisibleInDetail: true,
	})
	require.NoError(t, err)

	got, err := s.GetFieldDefinition(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"minor", "major"}, got.Options.Choices)
	require.NotNil(t, got.Options.Max)
	assert.Equal(t, 10.0, *got.Options.Max)
	assert.Equal(t, []string{"bug"}, got.IssueTypes)
	assert.Equal(t, []int64{4, 5}, got.ProjectIDs)
	assert.Equal(t, "minor", got.DefaultValue)
	assert.True(t, got.IsRequired)
	assert.True(t, got.VisibleInDetail)
}

func TestWorkflowDefaultIsUnique(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mk := func(name string) models.Workflow {
		w, err := s.CreateWorkflow(ctx, models.Workflow{
			WorkspaceID: "ws",
			Name:        name,
			Statuses:    []models.WorkflowStatus{{Key: "todo", Name: "To Do", Category: models.CategoryTodo}},
			Transitions: []models.WorkflowTransition{},
		})
		require.NoError(t, err)
		return w
	}
	a, b := mk("A"), mk("B")

	_, err := s.DefaultWorkflow(ctx, "ws")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, s.SetDefaultWorkflow(ctx, "ws", a.ID))
	require.NoError(t, s.SetDefaultWorkflow(ctx, "ws", b.ID))
	def, err := s.DefaultWorkflow(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, b.ID, def.ID)

	got, err := s.GetWorkflow(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDefault)
	assert.Equal(t, "todo", got.Statuses[0].Key)

	assert.ErrorIs(t, s.SetDefaultWorkflow(ctx, "ws", 999), models.ErrNotFound)
	def, err = s.DefaultWorkflow(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, b.ID, def.ID, "a failed switch keeps the old default")
}

func TestBoardCardsCarryValues(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	task := seedTask(t, s, "todo")

	w, err := s.GetWorkflow(ctx, task.WorkflowID)
	require.NoError(t, err)
	limit := 3
	b, err := s.CreateBoard(ctx, models.BoardConfig{
		WorkspaceID: "ws",
		ProjectID:   &task.ProjectID,
		WorkflowID:  w.ID,
		Name:        "Board",
		SwimlanesBy: models.CustomDimension("team"),
		Columns:     []models.BoardColumn{{Name: "To Do", StatusMapping: []string{"todo"}, WIPLimit: &limit}},
	})
	require.NoError(t, err)
	require.Len(t, b.Columns, 1)
	require.NotNil(t, b.Columns[0].WIPLimit)
	assert.Equal(t, 3, *b.Columns[0].WIPLimit)

	d, err := s.CreateFieldDefinition(ctx, models.FieldDefinition{WorkspaceID: "ws", FieldKey: "team", Name: "Team", FieldType: models.FieldText})
	require.NoError(t, err)
	_, err = s.UpsertFieldValue(ctx, models.FieldValue{TaskID: task.ID, FieldDefinitionID: d.ID, FieldType: models.FieldText, Value: models.StringValue("core")})
	require.NoError(t, err)

	cards, err := s.ListBoardCards(ctx, b)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, models.StringValue("core"), cards[0].Values["team"])

	byWorkflow, err := s.ListBoardsByWorkflow(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, byWorkflow, 1)
	assert.Equal(t, []string{"todo"}, byWorkflow[0].Columns[0].StatusMapping)
}

func TestStartSprintConcurrently(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	w, err := s.CreateWorkflow(ctx, models.Workflow{
		WorkspaceID: "ws",
		Name:        "Simple",
		Statuses:    []models.WorkflowStatus{{Key: "todo", Name: "To Do", Category: models.CategoryTodo}},
	})
	require.NoError(t, err)
	b, err := s.CreateBoard(ctx, models.BoardConfig{WorkspaceID: "ws", WorkflowID: w.ID, Name: "Board",
		Columns: []models.BoardColumn{{Name: "To Do", StatusMapping: []string{"todo"}}}})
	require.NoError(t, err)

	one, err := s.CreateSprint(ctx, models.Sprint{BoardID: b.ID, Name: "One"})
	require.NoError(t, err)
	two, err := s.CreateSprint(ctx, models.Sprint{BoardID: b.ID, Name: "Two"})
	require.NoError(t, err)

	var g errgroup.Group
	errs := make([]error, 2)
	for i, id := range []int64{one.ID, two.ID} {
		g.Go(func() error {
			_, errs[i] = s.StartSprint(ctx, id, time.Now())
			return nil
		})
	}
	require.NoError(t, g.Wait())

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, models.ErrConflictingActiveSprint)
		}
	}
	assert.Equal(t, 1, failures)

	_, err = s.db.ExecContext(ctx, `UPDATE sprints SET state = 'active' WHERE board_id = ?`, b.ID)
	assert.Error(t, err, "the partial unique index rejects a second active sprint")
}

func TestBugResolvedAtCheck(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `INSERT INTO bugs(workspace_id, title, status, assigned_to, reported_by) VALUES('ws', 'x', 'Resolved', 'a', 'r')`)
	assert.Error(t, err, "resolved bugs need resolved_at")

	_, err = s.db.ExecContext(ctx, `INSERT INTO bugs(workspace_id, title, status, assigned_to, reported_by, resolved_at) VALUES('ws', 'x', 'Open', 'a', 'r', CURRENT_TIMESTAMP)`)
	assert.Error(t, err, "open bugs must not carry resolved_at")

	bug, err := s.CreateBug(ctx, models.Bug{WorkspaceID: "ws", Title: "x", Status: models.BugOpen, AssignedTo: "a", ReportedBy: "r"})
	require.NoError(t, err)

	_, err = s.CompareAndSetBugStatus(ctx, bug.ID, models.BugOpen, models.BugResolved, nil)
	assert.Error(t, err, "status and resolved_at move together")

	now := time.Now()
	_, err = s.CompareAndSetBugStatus(ctx, bug.ID, models.BugOpen, models.BugInProgress, nil)
	require.NoError(t, err)
	_, err = s.CompareAndSetBugStatus(ctx, bug.ID, models.BugOpen, models.BugInProgress, nil)
	assert.ErrorIs(t, err, models.ErrConcurrentModification)

	resolved, err := s.CompareAndSetBugStatus(ctx, bug.ID, models.BugInProgress, models.BugResolved, &now)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
}

func TestBugReopenAndFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	bug, err := s.CreateBug(ctx, models.Bug{WorkspaceID: "ws", Title: "x", Status: models.BugOpen, AssignedTo: "a", ReportedBy: "r"})
	require.NoError(t, err)

	_, _, err = s.ReopenBug(ctx, bug.ID, models.BugComment{AuthorID: "r", Body: "reopen", IsSystemComment: true})
	assert.ErrorIs(t, err, models.ErrConcurrentModification)

	got, err := s.SetBugFile(ctx, bug.ID, bugs.FileAttachment, "https://f/1", []models.BugStatus{models.BugOpen})
	require.NoError(t, err)
	assert.Equal(t, "https://f/1", got.FileURL)
	_, err = s.SetBugFile(ctx, bug.ID, bugs.FileOutput, "https://f/2", []models.BugStatus{models.BugResolved})
	assert.ErrorIs(t, err, models.ErrConcurrentModification)

	_, err = s.db.ExecContext(ctx, `UPDATE bugs SET status = 'Closed', resolved_at = ? WHERE id = ?`, now.UTC(), bug.ID)
	require.NoError(t, err)

	reopened, note, err := s.ReopenBug(ctx, bug.ID, models.BugComment{AuthorID: "r", Body: "Bug reopened by r", IsSystemComment: true})
	require.NoError(t, err)
	assert.Equal(t, models.BugOpen, reopened.Status)
	assert.Nil(t, reopened.ResolvedAt)
	assert.NotZero(t, note.ID)

	comments, err := s.ListBugComments(ctx, bug.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.True(t, comments[0].IsSystemComment)
	assert.Equal(t, "r", comments[0].AuthorID)
}

func TestActivityLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, to := range []string{"doing", "done"} {
		require.NoError(t, s.RecordActivity(ctx, models.ActivityRecord{
			ActionType: models.ActionStatusChanged,
			EntityType: models.EntityTask,
			EntityID:   1,
			UserID:     "u1",
			Changes:    models.FieldChange{Field: "status", NewValue: to},
		}))
	}
	require.NoError(t, s.RecordActivity(ctx, models.ActivityRecord{ActionType: models.ActionStatusChanged, EntityType: models.EntityBug, EntityID: 1}))

	records, err := s.ListActivity(ctx, models.EntityTask, 1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "doing", records[0].Changes.NewValue)
	assert.Equal(t, "done", records[1].Changes.NewValue)
	assert.NotEmpty(t, records[0].ID)
}
