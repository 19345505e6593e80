package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tracker/internal/models"
)

const sprintColumns = `id, board_id, name, goal, state, start_date, end_date, started_at, completed_at, created_at`

func scanSprint(row interface{ Scan(...any) error }) (models.Sprint, error) {
	var (
		sp                                        models.Sprint
		startDate, endDate, startedAt, completedAt sql.NullTime
	)
	if err := row.Scan(&sp.ID, &sp.BoardID, &sp.Name, &sp.Goal, &sp.State, &startDate, &endDate, &startedAt,
		&completedAt, &sp.CreatedAt); err != nil {
		return sp, err
	}
	sp.StartDate = timePtr(startDate)
	sp.EndDate = timePtr(endDate)
	sp.StartedAt = timePtr(startedAt)
	sp.CompletedAt = timePtr(completedAt)
	return sp, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// CreateSprint inserts a future sprint.
func (s *Store) CreateSprint(ctx context.Context, sp models.Sprint) (models.Sprint, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO sprints(board_id, name, goal, state, start_date, end_date)
        VALUES(?, ?, ?, ?, ?, ?)`, sp.BoardID, sp.Name, sp.Goal, models.SprintFuture, nullTime(sp.StartDate), nullTime(sp.EndDate))
	if isForeignKeyViolation(err) {
		return models.Sprint{}, models.NewNotFoundErrorf("board %d not found", sp.BoardID)
	}
	if err != nil {
		return models.Sprint{}, fmt.Errorf("insert sprint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Sprint{}, fmt.Errorf("sprint id: %w", err)
	}
	return s.GetSprint(ctx, id)
}

// GetSprint fetches a sprint by id.
func (s *Store) GetSprint(ctx context.Context, id int64) (models.Sprint, error) {
	return getSprint(ctx, s.db, id)
}

func getSprint(ctx context.Context, q queryer, id int64) (models.Sprint, error) {
	sp, err := scanSprint(q.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Sprint{}, models.NewNotFoundErrorf("sprint %d not found", id)
	}
	if err != nil {
		return models.Sprint{}, fmt.Errorf("get sprint: %w", err)
	}
	return sp, nil
}

// ListSprints returns the sprints of a board in creation order.
func (s *Store) ListSprints(ctx context.Context, boardID int64) ([]models.Sprint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE board_id = ? ORDER BY id`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	defer rows.Close()

	sprints := []models.Sprint{}
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		sprints = append(sprints, sp)
	}
	return sprints, rows.Err()
}

// StartSprint activates a future sprint with a single conditional update, so
// two concurrent starts on one board cannot both succeed. The partial unique
// index on active sprints backs the same rule.
func (s *Store) StartSprint(ctx context.Context, id int64, at time.Time) (models.Sprint, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sprints SET state = 'active', started_at = ?
        WHERE id = ? AND state = 'future'
          AND NOT EXISTS (SELECT 1 FROM sprints other
                          WHERE other.board_id = sprints.board_id AND other.state = 'active')`, at.UTC(), id)
	if isUniqueViolation(err) {
		return models.Sprint{}, models.Wrapf(models.ErrConflictingActiveSprint, "board already has an active sprint")
	}
	if err != nil {
		return models.Sprint{}, fmt.Errorf("start sprint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Sprint{}, err
	}
	if affected == 0 {
		sp, err := s.GetSprint(ctx, id)
		if err != nil {
			return models.Sprint{}, err
		}
		if sp.State != models.SprintFuture {
			return sp, models.Wrapf(models.ErrInvalidTransition, "sprint %s is %s, only future sprints can start", sp.Name, sp.State)
		}
		return sp, models.Wrapf(models.ErrConflictingActiveSprint, "board %d already has an active sprint", sp.BoardID)
	}
	return s.GetSprint(ctx, id)
}

// CompleteSprint closes an active sprint.
func (s *Store) CompleteSprint(ctx context.Context, id int64, at time.Time) (models.Sprint, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sprints SET state = 'closed', completed_at = ? WHERE id = ? AND state = 'active'`, at.UTC(), id)
	if err != nil {
		return models.Sprint{}, fmt.Errorf("complete sprint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Sprint{}, err
	}
	if affected == 0 {
		sp, err := s.GetSprint(ctx, id)
		if err != nil {
			return models.Sprint{}, err
		}
		return sp, models.Wrapf(models.ErrInvalidTransition, "sprint %s is %s, only active sprints can complete", sp.Name, sp.State)
	}
	return s.GetSprint(ctx, id)
}

const sprintTaskColumns = `id, sprint_id, task_id, added_at, removed_at`

func scanSprintTask(row interface{ Scan(...any) error }) (models.SprintTask, error) {
	var (
		m       models.SprintTask
		removed sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.SprintID, &m.TaskID, &m.AddedAt, &removed); err != nil {
		return m, err
	}
	m.RemovedAt = timePtr(removed)
	return m, nil
}

func currentMembership(ctx context.Context, q queryer, sprintID, taskID int64) (models.SprintTask, error) {
	m, err := scanSprintTask(q.QueryRowContext(ctx, `SELECT `+sprintTaskColumns+` FROM sprint_tasks
        WHERE sprint_id = ? AND task_id = ? AND removed_at IS NULL`, sprintID, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.SprintTask{}, models.NewNotFoundErrorf("task %d is not in sprint %d", taskID, sprintID)
	}
	if err != nil {
		return models.SprintTask{}, fmt.Errorf("get sprint membership: %w", err)
	}
	return m, nil
}

func addMembership(ctx context.Context, q queryer, sprintID, taskID int64, at time.Time) (models.SprintTask, error) {
	existing, err := currentMembership(ctx, q, sprintID, taskID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.SprintTask{}, err
	}
	res, err := q.ExecContext(ctx, `INSERT INTO sprint_tasks(sprint_id, task_id, added_at) VALUES(?, ?, ?)`, sprintID, taskID, at.UTC())
	if isForeignKeyViolation(err) {
		return models.SprintTask{}, models.NewNotFoundErrorf("sprint %d or task %d not found", sprintID, taskID)
	}
	if err != nil {
		return models.SprintTask{}, fmt.Errorf("insert sprint membership: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.SprintTask{}, fmt.Errorf("sprint membership id: %w", err)
	}
	return scanSprintTask(q.QueryRowContext(ctx, `SELECT `+sprintTaskColumns+` FROM sprint_tasks WHERE id = ?`, id))
}

func removeMembership(ctx context.Context, q queryer, sprintID, taskID int64, at time.Time) (models.SprintTask, error) {
	m, err := currentMembership(ctx, q, sprintID, taskID)
	if err != nil {
		return models.SprintTask{}, err
	}
	removed := at.UTC()
	if _, err := q.ExecContext(ctx, `UPDATE sprint_tasks SET removed_at = ? WHERE id = ?`, removed, m.ID); err != nil {
		return models.SprintTask{}, fmt.Errorf("remove sprint membership: %w", err)
	}
	m.RemovedAt = &removed
	return m, nil
}

// AddSprintTask inserts a current membership row unless one already exists.
func (s *Store) AddSprintTask(ctx context.Context, sprintID, taskID int64, at time.Time) (models.SprintTask, error) {
	var out models.SprintTask
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = addMembership(ctx, tx, sprintID, taskID, at)
		return err
	})
	return out, err
}

// RemoveSprintTask stamps removed_at on the current membership row.
func (s *Store) RemoveSprintTask(ctx context.Context, sprintID, taskID int64, at time.Time) (models.SprintTask, error) {
	var out models.SprintTask
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = removeMembership(ctx, tx, sprintID, taskID, at)
		return err
	})
	return out, err
}

// MoveSprintTask removes the task from one sprint and adds it to another in one transaction.
func (s *Store) MoveSprintTask(ctx context.Context, fromSprintID, toSprintID, taskID int64, at time.Time) (models.SprintTask, error) {
	var out models.SprintTask
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := removeMembership(ctx, tx, fromSprintID, taskID, at); err != nil {
			return err
		}
		var err error
		out, err = addMembership(ctx, tx, toSprintID, taskID, at)
		return err
	})
	return out, err
}

// ListSprintTasks returns membership rows of a sprint, optionally including removed ones.
func (s *Store) ListSprintTasks(ctx context.Context, sprintID int64, includeRemoved bool) ([]models.SprintTask, error) {
	query := `SELECT ` + sprintTaskColumns + ` FROM sprint_tasks WHERE sprint_id = ?`
	if !includeRemoved {
		query += ` AND removed_at IS NULL`
	}
	query += ` ORDER BY added_at, id`
	return s.listSprintTasks(ctx, query, sprintID)
}

// TaskSprintHistory returns every membership row of a task, oldest first.
func (s *Store) TaskSprintHistory(ctx context.Context, taskID int64) ([]models.SprintTask, error) {
	return s.listSprintTasks(ctx, `SELECT `+sprintTaskColumns+` FROM sprint_tasks WHERE task_id = ? ORDER BY added_at, id`, taskID)
}

func (s *Store) listSprintTasks(ctx context.Context, query string, arg any) ([]models.SprintTask, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list sprint tasks: %w", err)
	}
	defer rows.Close()

	members := []models.SprintTask{}
	for rows.Next() {
		m, err := scanSprintTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sprint task: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
