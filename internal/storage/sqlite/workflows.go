package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tracker/internal/json"
	"tracker/internal/models"
)

const workflowColumns = `id, workspace_id, name, description, is_default, statuses, transitions, created_at, updated_at`

func scanWorkflow(row interface{ Scan(...any) error }) (models.Workflow, error) {
	var (
		w                     models.Workflow
		statuses, transitions string
	)
	if err := row.Scan(&w.ID, &w.WorkspaceID, &w.Name, &w.Description, &w.IsDefault, &statuses, &transitions,
		&w.CreatedAt, &w.UpdatedAt); err != nil {
		return w, err
	}
	if err := json.UnmarshalString(statuses, &w.Statuses); err != nil {
		return w, fmt.Errorf("decode statuses: %w", err)
	}
	if err := json.UnmarshalString(transitions, &w.Transitions); err != nil {
		return w, fmt.Errorf("decode transitions: %w", err)
	}
	return w, nil
}

func encodeGraph(w models.Workflow) (string, string, error) {
	if w.Statuses == nil {
		w.Statuses = []models.WorkflowStatus{}
	}
	if w.Transitions == nil {
		w.Transitions = []models.WorkflowTransition{}
	}
	statuses, err := json.MarshalString(w.Statuses)
	if err != nil {
		return "", "", fmt.Errorf("encode statuses: %w", err)
	}
	transitions, err := json.MarshalString(w.Transitions)
	if err != nil {
		return "", "", fmt.Errorf("encode transitions: %w", err)
	}
	return statuses, transitions, nil
}

// CreateWorkflow inserts a workflow. The default flag is managed by SetDefaultWorkflow.
func (s *Store) CreateWorkflow(ctx context.Context, w models.Workflow) (models.Workflow, error) {
	statuses, transitions, err := encodeGraph(w)
	if err != nil {
		return models.Workflow{}, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO workflows(workspace_id, name, description, statuses, transitions)
        VALUES(?, ?, ?, ?, ?)`, w.WorkspaceID, w.Name, w.Description, statuses, transitions)
	if isUniqueViolation(err) {
		return models.Workflow{}, models.NewValidationErrorf("workflow %q already exists in workspace %s", w.Name, w.WorkspaceID)
	}
	if err != nil {
		return models.Workflow{}, fmt.Errorf("insert workflow: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Workflow{}, fmt.Errorf("workflow id: %w", err)
	}
	return s.GetWorkflow(ctx, id)
}

// GetWorkflow fetches a workflow by id.
func (s *Store) GetWorkflow(ctx context.Context, id int64) (models.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Workflow{}, models.NewNotFoundErrorf("workflow %d not found", id)
	}
	if err != nil {
		return models.Workflow{}, fmt.Errorf("get workflow: %w", err)
	}
	return w, nil
}

// GetWorkflowByName fetches a workflow by its workspace-unique name.
func (s *Store) GetWorkflowByName(ctx context.Context, workspaceID, name string) (models.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows
        WHERE workspace_id = ? AND name = ?`, workspaceID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Workflow{}, models.NewNotFoundErrorf("workflow %q not found", name)
	}
	if err != nil {
		return models.Workflow{}, fmt.Errorf("get workflow: %w", err)
	}
	return w, nil
}

// ListWorkflows returns the workflows of a workspace by name.
func (s *Store) ListWorkflows(ctx context.Context, workspaceID string) ([]models.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE workspace_id = ? ORDER BY name, id`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	workflows := []models.Workflow{}
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

// UpdateWorkflow rewrites name, description and graph. The default flag is untouched.
func (s *Store) UpdateWorkflow(ctx context.Context, w models.Workflow) (models.Workflow, error) {
	statuses, transitions, err := encodeGraph(w)
	if err != nil {
		return models.Workflow{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE workflows SET name = ?, description = ?, statuses = ?, transitions = ?,
        updated_at = CURRENT_TIMESTAMP WHERE id = ?`, w.Name, w.Description, statuses, transitions, w.ID)
	if isUniqueViolation(err) {
		return models.Workflow{}, models.NewValidationErrorf("workflow %q already exists in workspace %s", w.Name, w.WorkspaceID)
	}
	if err != nil {
		return models.Workflow{}, fmt.Errorf("update workflow: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Workflow{}, err
	}
	if affected == 0 {
		return models.Workflow{}, models.NewNotFoundErrorf("workflow %d not found", w.ID)
	}
	return s.GetWorkflow(ctx, w.ID)
}

// SetDefaultWorkflow makes id the only default workflow of its workspace.
func (s *Store) SetDefaultWorkflow(ctx context.Context, workspaceID string, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE workflows SET is_default = 0 WHERE workspace_id = ? AND is_default = 1`, workspaceID); err != nil {
			return fmt.Errorf("clear default workflow: %w", err)
		}
		res, err := tx.ExecContext(ctx, `UPDATE workflows SET is_default = 1 WHERE id = ? AND workspace_id = ?`, id, workspaceID)
		if err != nil {
			return fmt.Errorf("set default workflow: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return models.NewNotFoundErrorf("workflow %d not found in workspace %s", id, workspaceID)
		}
		return nil
	})
}

// DefaultWorkflow returns the default workflow of a workspace.
func (s *Store) DefaultWorkflow(ctx context.Context, workspaceID string) (models.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows
        WHERE workspace_id = ? AND is_default = 1`, workspaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Workflow{}, models.NewNotFoundErrorf("workspace %s has no default workflow", workspaceID)
	}
	if err != nil {
		return models.Workflow{}, fmt.Errorf("get default workflow: %w", err)
	}
	return w, nil
}
