package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tracker/internal/json"
	"tracker/internal/models"
)

const boardColumns = `id, workspace_id, project_id, workflow_id, name, card_color_by, swimlanes_by, created_at, updated_at`

func scanBoard(row interface{ Scan(...any) error }) (models.BoardConfig, error) {
	var (
		b         models.BoardConfig
		projectID sql.NullInt64
	)
	if err := row.Scan(&b.ID, &b.WorkspaceID, &projectID, &b.WorkflowID, &b.Name, &b.CardColorBy, &b.SwimlanesBy,
		&b.CreatedAt, &b.UpdatedAt); err != nil {
		return b, err
	}
	if projectID.Valid {
		id := projectID.Int64
		b.ProjectID = &id
	}
	return b, nil
}

// CreateBoard inserts a board and its columns in one transaction.
func (s *Store) CreateBoard(ctx context.Context, b models.BoardConfig) (models.BoardConfig, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var projectID sql.NullInt64
		if b.ProjectID != nil {
			projectID = sql.NullInt64{Int64: *b.ProjectID, Valid: true}
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO boards(workspace_id, project_id, workflow_id, name, card_color_by, swimlanes_by)
            VALUES(?, ?, ?, ?, ?, ?)`, b.WorkspaceID, projectID, b.WorkflowID, b.Name, b.CardColorBy, b.SwimlanesBy)
		if isForeignKeyViolation(err) {
			return models.NewNotFoundErrorf("project or workflow of board %q not found", b.Name)
		}
		if err != nil {
			return fmt.Errorf("insert board: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("board id: %w", err)
		}

		for _, c := range b.Columns {
			mapping := c.StatusMapping
			if mapping == nil {
				mapping = []string{}
			}
			encoded, err := json.MarshalString(mapping)
			if err != nil {
				return fmt.Errorf("encode status mapping: %w", err)
			}
			var limit sql.NullInt64
			if c.WIPLimit != nil {
				limit = sql.NullInt64{Int64: int64(*c.WIPLimit), Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO board_columns(board_id, name, status_mapping, wip_limit, sort_order)
                VALUES(?, ?, ?, ?, ?)`, id, c.Name, encoded, limit, c.Order); err != nil {
				return fmt.Errorf("insert board column: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return models.BoardConfig{}, err
	}
	return s.GetBoard(ctx, id)
}

// GetBoard fetches a board with its ordered columns.
func (s *Store) GetBoard(ctx context.Context, id int64) (models.BoardConfig, error) {
	b, err := scanBoard(s.db.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.BoardConfig{}, models.NewNotFoundErrorf("board %d not found", id)
	}
	if err != nil {
		return models.BoardConfig{}, fmt.Errorf("get board: %w", err)
	}
	if b.Columns, err = s.listBoardColumns(ctx, b.ID); err != nil {
		return models.BoardConfig{}, err
	}
	return b, nil
}

// ListBoards returns the boards of a workspace.
func (s *Store) ListBoards(ctx context.Context, workspaceID string) ([]models.BoardConfig, error) {
	return s.listBoards(ctx, `SELECT `+boardColumns+` FROM boards WHERE workspace_id = ? ORDER BY id`, workspaceID)
}

// ListBoardsByWorkflow returns every board rendering the workflow.
func (s *Store) ListBoardsByWorkflow(ctx context.Context, workflowID int64) ([]models.BoardConfig, error) {
	return s.listBoards(ctx, `SELECT `+boardColumns+` FROM boards WHERE workflow_id = ? ORDER BY id`, workflowID)
}

func (s *Store) listBoards(ctx context.Context, query string, arg any) ([]models.BoardConfig, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	boards := []models.BoardConfig{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Release the single connection before loading columns.
	rows.Close()

	for i := range boards {
		if boards[i].Columns, err = s.listBoardColumns(ctx, boards[i].ID); err != nil {
			return nil, err
		}
	}
	return boards, nil
}

func (s *Store) listBoardColumns(ctx context.Context, boardID int64) ([]models.BoardColumn, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, status_mapping, wip_limit, sort_order FROM board_columns
        WHERE board_id = ? ORDER BY sort_order, id`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list board columns: %w", err)
	}
	defer rows.Close()

	columns := []models.BoardColumn{}
	for rows.Next() {
		var (
			c       models.BoardColumn
			mapping string
			limit   sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Name, &mapping, &limit, &c.Order); err != nil {
			return nil, fmt.Errorf("scan board column: %w", err)
		}
		if err := json.UnmarshalString(mapping, &c.StatusMapping); err != nil {
			return nil, fmt.Errorf("decode status mapping: %w", err)
		}
		if limit.Valid {
			n := int(limit.Int64)
			c.WIPLimit = &n
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// ListBoardCards returns the issues a board renders: every task governed by
// the board's workflow, narrowed to its project when the board has one,
// together with their custom field values.
func (s *Store) ListBoardCards(ctx context.Context, b models.BoardConfig) ([]models.Card, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE workspace_id = ? AND workflow_id = ?`
	args := []any{b.WorkspaceID, b.WorkflowID}
	if b.ProjectID != nil {
		query += ` AND project_id = ?`
		args = append(args, *b.ProjectID)
	}
	query += ` ORDER BY position, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list board tasks: %w", err)
	}
	cards := []models.Card{}
	index := map[int64]int{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		index[t.ID] = len(cards)
		cards = append(cards, models.Card{Task: t, Values: map[string]models.Value{}})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	valueQuery := `SELECT ` + fieldValueColumns + `
        FROM field_values fv
        JOIN field_definitions fd ON fd.id = fv.field_definition_id
        JOIN tasks t ON t.id = fv.task_id
        WHERE t.workspace_id = ?`
	valueArgs := []any{b.WorkspaceID}
	if b.ProjectID != nil {
		valueQuery += ` AND t.project_id = ?`
		valueArgs = append(valueArgs, *b.ProjectID)
	}
	vrows, err := s.db.QueryContext(ctx, valueQuery, valueArgs...)
	if err != nil {
		return nil, fmt.Errorf("list board values: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		v, err := scanFieldValue(vrows)
		if err != nil {
			return nil, fmt.Errorf("scan field value: %w", err)
		}
		if i, ok := index[v.TaskID]; ok {
			cards[i].Values[v.FieldKey] = v.Value
		}
	}
	return cards, vrows.Err()
}
