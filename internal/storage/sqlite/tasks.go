package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tracker/internal/models"
)

const taskColumns = `id, workspace_id, project_id, workflow_id, issue_type, title, description, status, priority, assignee, resolution, position, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.ProjectID, &t.WorkflowID, &t.IssueType, &t.Title, &t.Description, &t.Status,
		&t.Priority, &t.Assignee, &t.Resolution, &t.Position, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// ListTasks returns tasks for the given project ordered by status and position.
func (s *Store) ListTasks(ctx context.Context, projectID int64) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+`
        FROM tasks WHERE project_id = ? ORDER BY status, position, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateTask inserts a new task for a project. The caller supplies the
// governing workflow and its initial status.
func (s *Store) CreateTask(ctx context.Context, t models.Task) (models.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return models.Task{}, models.NewValidationErrorf("task title must not be empty")
	}
	if t.Status == "" {
		return models.Task{}, models.NewValidationErrorf("task status must not be empty")
	}
	if t.WorkflowID == 0 {
		return models.Task{}, models.NewValidationErrorf("task workflow must be set")
	}
	if t.IssueType == "" {
		t.IssueType = models.DefaultIssueType
	}
	if _, ok := models.ValidPriorities[t.Priority]; !ok {
		t.Priority = models.DefaultPriority
	}

	project, err := s.GetProject(ctx, t.ProjectID)
	if err != nil {
		return models.Task{}, err
	}

	pos, err := s.nextPosition(ctx, s.db, t.ProjectID, t.Status)
	if err != nil {
		return models.Task{}, err
	}

	w, err := s.GetWorkflow(ctx, t.WorkflowID)
	if err != nil {
		return models.Task{}, err
	}
	if w.WorkspaceID != project.WorkspaceID {
		return models.Task{}, models.NewValidationErrorf("workflow %d belongs to another workspace", t.WorkflowID)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO tasks(workspace_id, project_id, workflow_id, issue_type, title, description, status, priority, assignee, position)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		project.WorkspaceID, t.ProjectID, t.WorkflowID, t.IssueType, strings.TrimSpace(t.Title), strings.TrimSpace(t.Description),
		t.Status, t.Priority, strings.TrimSpace(t.Assignee), pos)
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Task{}, fmt.Errorf("task id: %w", err)
	}
	return s.GetTask(ctx, id)
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (models.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q queryer, id int64) (models.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, models.NewNotFoundErrorf("task %d not found", id)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpdateTask updates descriptive task fields. Status is not among them: it
// only changes through CompareAndSetStatus.
func (s *Store) UpdateTask(ctx context.Context, id int64, changes map[string]any) (models.Task, error) {
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}

	title := current.Title
	description := current.Description
	priority := current.Priority
	assignee := current.Assignee
	issueType := current.IssueType

	if v, ok := changes["title"].(string); ok && strings.TrimSpace(v) != "" {
		title = strings.TrimSpace(v)
	}
	if v, ok := changes["description"].(string); ok {
		description = strings.TrimSpace(v)
	}
	if v, ok := changes["priority"].(string); ok {
		if _, valid := models.ValidPriorities[v]; !valid {
			return models.Task{}, models.NewValidationErrorf("invalid priority %q", v)
		}
		priority = v
	}
	if v, ok := changes["assignee"].(string); ok {
		assignee = strings.TrimSpace(v)
	}
	if v, ok := changes["issue_type"].(string); ok && strings.TrimSpace(v) != "" {
		issueType = strings.TrimSpace(v)
	}

	_, err = s.db.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, priority = ?, assignee = ?, issue_type = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		title, description, priority, assignee, issueType, id)
	if err != nil {
		return models.Task{}, fmt.Errorf("update task: %w", err)
	}
	return s.GetTask(ctx, id)
}

// CompareAndSetStatus moves a task from -> to only while its stored status is
// still from. The task goes to the end of the target status lane.
func (s *Store) CompareAndSetStatus(ctx context.Context, taskID int64, from, to, resolution string) (models.Task, error) {
	var out models.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if current.Status != from {
			return models.Wrapf(models.ErrConcurrentModification, "task %d status is %s, expected %s", taskID, current.Status, from)
		}
		pos, err := s.nextPosition(ctx, tx, current.ProjectID, to)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `UPDATE tasks
            SET status = ?, position = ?, resolution = CASE WHEN ? <> '' THEN ? ELSE resolution END, updated_at = CURRENT_TIMESTAMP
            WHERE id = ? AND status = ?`, to, pos, resolution, resolution, taskID, from)
		if err != nil {
			return fmt.Errorf("update task status: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return models.Wrapf(models.ErrConcurrentModification, "task %d changed status concurrently", taskID)
		}
		out, err = getTask(ctx, tx, taskID)
		return err
	})
	if err != nil {
		return models.Task{}, err
	}
	return out, nil
}

// CountTasksInStatus counts the tasks governed by workflowID that sit in status.
func (s *Store) CountTasksInStatus(ctx context.Context, workflowID int64, status string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE workflow_id = ? AND status = ?`, workflowID, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// DeleteTask removes a task by id.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.NewNotFoundErrorf("task %d not found", id)
	}
	return nil
}

func (s *Store) nextPosition(ctx context.Context, q queryer, projectID int64, status string) (int64, error) {
	var position sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT MAX(position) FROM tasks WHERE project_id = ? AND status = ?`, projectID, status).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("select position: %w", err)
	}
	if position.Valid {
		return position.Int64 + 1, nil
	}
	return 0, nil
}
