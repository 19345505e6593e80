package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tracker/internal/models"
)

// RecordActivity appends an audit record.
func (s *Store) RecordActivity(ctx context.Context, rec models.ActivityRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO activity_log(id, action_type, entity_type, entity_id, user_id, summary,
        change_field, old_value, new_value, created_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ActionType, rec.EntityType, rec.EntityID, rec.UserID, rec.Summary,
		rec.Changes.Field, rec.Changes.OldValue, rec.Changes.NewValue, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivity returns the audit trail of one entity, oldest first.
func (s *Store) ListActivity(ctx context.Context, entityType string, entityID int64) ([]models.ActivityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, action_type, entity_type, entity_id, user_id, summary,
        change_field, old_value, new_value, created_at FROM activity_log
        WHERE entity_type = ? AND entity_id = ? ORDER BY created_at, rowid`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	records := []models.ActivityRecord{}
	for rows.Next() {
		var r models.ActivityRecord
		if err := rows.Scan(&r.ID, &r.ActionType, &r.EntityType, &r.EntityID, &r.UserID, &r.Summary,
			&r.Changes.Field, &r.Changes.OldValue, &r.Changes.NewValue, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
