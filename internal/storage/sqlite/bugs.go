package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tracker/internal/bugs"
	"tracker/internal/models"
)

const bugColumns = `id, workspace_id, title, description, status, assigned_to, reported_by, file_url, output_file_url,
    resolved_at, created_at, updated_at`

func scanBug(row interface{ Scan(...any) error }) (models.Bug, error) {
	var (
		b          models.Bug
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.WorkspaceID, &b.Title, &b.Description, &b.Status, &b.AssignedTo, &b.ReportedBy,
		&b.FileURL, &b.OutputFileURL, &resolvedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return b, err
	}
	b.ResolvedAt = timePtr(resolvedAt)
	return b, nil
}

// CreateBug inserts an Open bug.
func (s *Store) CreateBug(ctx context.Context, b models.Bug) (models.Bug, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO bugs(workspace_id, title, description, status, assigned_to, reported_by, file_url)
        VALUES(?, ?, ?, ?, ?, ?, ?)`, b.WorkspaceID, b.Title, b.Description, models.BugOpen, b.AssignedTo, b.ReportedBy, b.FileURL)
	if err != nil {
		return models.Bug{}, fmt.Errorf("insert bug: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Bug{}, fmt.Errorf("bug id: %w", err)
	}
	return s.GetBug(ctx, id)
}

// GetBug fetches a bug by id.
func (s *Store) GetBug(ctx context.Context, id int64) (models.Bug, error) {
	return getBug(ctx, s.db, id)
}

func getBug(ctx context.Context, q queryer, id int64) (models.Bug, error) {
	b, err := scanBug(q.QueryRowContext(ctx, `SELECT `+bugColumns+` FROM bugs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Bug{}, models.NewNotFoundErrorf("bug %d not found", id)
	}
	if err != nil {
		return models.Bug{}, fmt.Errorf("get bug: %w", err)
	}
	return b, nil
}

// ListBugs returns the bugs of a workspace, newest first.
func (s *Store) ListBugs(ctx context.Context, workspaceID string) ([]models.Bug, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bugColumns+` FROM bugs WHERE workspace_id = ? ORDER BY created_at DESC, id DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list bugs: %w", err)
	}
	defer rows.Close()

	list := []models.Bug{}
	for rows.Next() {
		b, err := scanBug(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bug: %w", err)
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// CompareAndSetBugStatus writes status and resolved_at together, only while
// the stored status is still from.
func (s *Store) CompareAndSetBugStatus(ctx context.Context, id int64, from, to models.BugStatus, resolvedAt *time.Time) (models.Bug, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE bugs SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		to, nullTime(resolvedAt), id, from)
	if err != nil {
		return models.Bug{}, fmt.Errorf("update bug status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Bug{}, err
	}
	if affected == 0 {
		if _, err := s.GetBug(ctx, id); err != nil {
			return models.Bug{}, err
		}
		return models.Bug{}, models.Wrapf(models.ErrConcurrentModification, "bug %d is no longer %s", id, from)
	}
	return s.GetBug(ctx, id)
}

// ReopenBug moves a Closed bug to Open and clears resolved_at, then appends
// the system comment. Both writes commit together.
func (s *Store) ReopenBug(ctx context.Context, id int64, comment models.BugComment) (models.Bug, models.BugComment, error) {
	var (
		bug   models.Bug
		saved models.BugComment
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE bugs SET status = ?, resolved_at = NULL WHERE id = ? AND status = ?`,
			models.BugOpen, id, models.BugClosed)
		if err != nil {
			return fmt.Errorf("reopen bug: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			if _, err := getBug(ctx, tx, id); err != nil {
				return err
			}
			return models.Wrapf(models.ErrConcurrentModification, "bug %d is no longer closed", id)
		}
		comment.BugID = id
		if saved, err = addBugComment(ctx, tx, comment); err != nil {
			return err
		}
		bug, err = getBug(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.Bug{}, models.BugComment{}, err
	}
	return bug, saved, nil
}

// SetBugFile writes the attachment or output reference while the bug status is one of allowed.
func (s *Store) SetBugFile(ctx context.Context, id int64, kind bugs.FileKind, url string, allowed []models.BugStatus) (models.Bug, error) {
	var column string
	switch kind {
	case bugs.FileAttachment:
		column = "file_url"
	case bugs.FileOutput:
		column = "output_file_url"
	default:
		return models.Bug{}, models.NewValidationErrorf("unknown file kind %q", kind)
	}
	if len(allowed) == 0 {
		return models.Bug{}, models.NewValidationErrorf("no status allows changing %s", kind)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(allowed)), ", ")
	args := []any{url, id}
	for _, st := range allowed {
		args = append(args, st)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE bugs SET `+column+` = ? WHERE id = ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return models.Bug{}, fmt.Errorf("set bug %s: %w", kind, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Bug{}, err
	}
	if affected == 0 {
		if _, err := s.GetBug(ctx, id); err != nil {
			return models.Bug{}, err
		}
		return models.Bug{}, models.Wrapf(models.ErrConcurrentModification, "bug %d changed status before %s could be set", id, kind)
	}
	return s.GetBug(ctx, id)
}

// AddBugComment appends a comment to a bug.
func (s *Store) AddBugComment(ctx context.Context, c models.BugComment) (models.BugComment, error) {
	return addBugComment(ctx, s.db, c)
}

func addBugComment(ctx context.Context, q queryer, c models.BugComment) (models.BugComment, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `INSERT INTO bug_comments(bug_id, author_id, body, is_system, created_at) VALUES(?, ?, ?, ?, ?)`,
		c.BugID, c.AuthorID, c.Body, boolToInt(c.IsSystemComment), c.CreatedAt.UTC())
	if isForeignKeyViolation(err) {
		return models.BugComment{}, models.NewNotFoundErrorf("bug %d not found", c.BugID)
	}
	if err != nil {
		return models.BugComment{}, fmt.Errorf("insert bug comment: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return models.BugComment{}, fmt.Errorf("bug comment id: %w", err)
	}
	return c, nil
}

// ListBugComments returns the conversation of a bug in insertion order.
func (s *Store) ListBugComments(ctx context.Context, bugID int64) ([]models.BugComment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, bug_id, author_id, body, is_system, created_at FROM bug_comments
        WHERE bug_id = ? ORDER BY id`, bugID)
	if err != nil {
		return nil, fmt.Errorf("list bug comments: %w", err)
	}
	defer rows.Close()

	comments := []models.BugComment{}
	for rows.Next() {
		var c models.BugComment
		if err := rows.Scan(&c.ID, &c.BugID, &c.AuthorID, &c.Body, &c.IsSystemComment, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bug comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
