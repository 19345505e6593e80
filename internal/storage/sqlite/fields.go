package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tracker/internal/json"
	"tracker/internal/models"
)

const fieldDefinitionColumns = `id, workspace_id, field_key, name, field_type, is_required, default_value, options, issue_types, project_ids,
    visible_in_list, visible_in_detail, searchable, filterable, display_order, is_system, created_at, updated_at`

func scanFieldDefinition(row interface{ Scan(...any) error }) (models.FieldDefinition, error) {
	var (
		d                                  models.FieldDefinition
		defaultValue, options, types, pids string
	)
	err := row.Scan(&d.ID, &d.WorkspaceID, &d.FieldKey, &d.Name, &d.FieldType, &d.IsRequired, &defaultValue, &options,
		&types, &pids, &d.VisibleInList, &d.VisibleInDetail, &d.Searchable, &d.Filterable, &d.DisplayOrder, &d.IsSystem,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	if err := json.UnmarshalString(defaultValue, &d.DefaultValue); err != nil {
		return d, fmt.Errorf("decode default value: %w", err)
	}
	if err := json.UnmarshalString(options, &d.Options); err != nil {
		return d, fmt.Errorf("decode options: %w", err)
	}
	if err := json.UnmarshalString(types, &d.IssueTypes); err != nil {
		return d, fmt.Errorf("decode issue types: %w", err)
	}
	if err := json.UnmarshalString(pids, &d.ProjectIDs); err != nil {
		return d, fmt.Errorf("decode project ids: %w", err)
	}
	return d, nil
}

type encodedDefinition struct {
	defaultValue, options, issueTypes, projectIDs string
}

func encodeDefinition(d models.FieldDefinition) (encodedDefinition, error) {
	var (
		e   encodedDefinition
		err error
	)
	if d.DefaultValue != nil {
		if e.defaultValue, err = json.MarshalString(d.DefaultValue); err != nil {
			return e, fmt.Errorf("encode default value: %w", err)
		}
	}
	if e.options, err = json.MarshalString(d.Options); err != nil {
		return e, fmt.Errorf("encode options: %w", err)
	}
	if d.IssueTypes == nil {
		d.IssueTypes = []string{}
	}
	if e.issueTypes, err = json.MarshalString(d.IssueTypes); err != nil {
		return e, fmt.Errorf("encode issue types: %w", err)
	}
	if d.ProjectIDs == nil {
		d.ProjectIDs = []int64{}
	}
	if e.projectIDs, err = json.MarshalString(d.ProjectIDs); err != nil {
		return e, fmt.Errorf("encode project ids: %w", err)
	}
	return e, nil
}

// CreateFieldDefinition inserts a definition.
func (s *Store) CreateFieldDefinition(ctx context.Context, d models.FieldDefinition) (models.FieldDefinition, error) {
	e, err := encodeDefinition(d)
	if err != nil {
		return models.FieldDefinition{}, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO field_definitions(workspace_id, field_key, name, field_type, is_required,
        default_value, options, issue_types, project_ids, visible_in_list, visible_in_detail, searchable, filterable,
        display_order, is_system) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.WorkspaceID, d.FieldKey, d.Name, d.FieldType, boolToInt(d.IsRequired), e.defaultValue, e.options, e.issueTypes,
		e.projectIDs, boolToInt(d.VisibleInList), boolToInt(d.VisibleInDetail), boolToInt(d.Searchable),
		boolToInt(d.Filterable), d.DisplayOrder, boolToInt(d.IsSystem))
	if isUniqueViolation(err) {
		return models.FieldDefinition{}, models.NewValidationErrorf("field key %q already exists in workspace %s", d.FieldKey, d.WorkspaceID)
	}
	if err != nil {
		return models.FieldDefinition{}, fmt.Errorf("insert field definition: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.FieldDefinition{}, fmt.Errorf("field definition id: %w", err)
	}
	return s.GetFieldDefinition(ctx, id)
}

// GetFieldDefinition fetches a definition by id.
func (s *Store) GetFieldDefinition(ctx context.Context, id int64) (models.FieldDefinition, error) {
	d, err := scanFieldDefinition(s.db.QueryRowContext(ctx, `SELECT `+fieldDefinitionColumns+` FROM field_definitions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.FieldDefinition{}, models.NewNotFoundErrorf("field definition %d not found", id)
	}
	if err != nil {
		return models.FieldDefinition{}, fmt.Errorf("get field definition: %w", err)
	}
	return d, nil
}

// GetFieldDefinitionByKey fetches a definition by its workspace-unique key.
func (s *Store) GetFieldDefinitionByKey(ctx context.Context, workspaceID, fieldKey string) (models.FieldDefinition, error) {
	d, err := scanFieldDefinition(s.db.QueryRowContext(ctx, `SELECT `+fieldDefinitionColumns+` FROM field_definitions
        WHERE workspace_id = ? AND field_key = ?`, workspaceID, fieldKey))
	if errors.Is(err, sql.ErrNoRows) {
		return models.FieldDefinition{}, models.NewNotFoundErrorf("field %q not found", fieldKey)
	}
	if err != nil {
		return models.FieldDefinition{}, fmt.Errorf("get field definition: %w", err)
	}
	return d, nil
}

// ListFieldDefinitions returns the definitions of a workspace.
func (s *Store) ListFieldDefinitions(ctx context.Context, workspaceID string) ([]models.FieldDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fieldDefinitionColumns+` FROM field_definitions
        WHERE workspace_id = ? ORDER BY display_order, id`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list field definitions: %w", err)
	}
	defer rows.Close()

	defs := []models.FieldDefinition{}
	for rows.Next() {
		d, err := scanFieldDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan field definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// UpdateFieldDefinition rewrites a definition.
func (s *Store) UpdateFieldDefinition(ctx context.Context, d models.FieldDefinition) (models.FieldDefinition, error) {
	e, err := encodeDefinition(d)
	if err != nil {
		return models.FieldDefinition{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE field_definitions SET field_key = ?, name = ?, field_type = ?, is_required = ?,
        default_value = ?, options = ?, issue_types = ?, project_ids = ?, visible_in_list = ?, visible_in_detail = ?,
        searchable = ?, filterable = ?, display_order = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		d.FieldKey, d.Name, d.FieldType, boolToInt(d.IsRequired), e.defaultValue, e.options, e.issueTypes, e.projectIDs,
		boolToInt(d.VisibleInList), boolToInt(d.VisibleInDetail), boolToInt(d.Searchable), boolToInt(d.Filterable),
		d.DisplayOrder, d.ID)
	if isUniqueViolation(err) {
		return models.FieldDefinition{}, models.NewValidationErrorf("field key %q already exists in workspace %s", d.FieldKey, d.WorkspaceID)
	}
	if err != nil {
		return models.FieldDefinition{}, fmt.Errorf("update field definition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.FieldDefinition{}, err
	}
	if affected == 0 {
		return models.FieldDefinition{}, models.NewNotFoundErrorf("field definition %d not found", d.ID)
	}
	return s.GetFieldDefinition(ctx, d.ID)
}

// DeleteFieldDefinition removes a definition. The foreign key refuses the
// delete while values still reference it.
func (s *Store) DeleteFieldDefinition(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM field_definitions WHERE id = ?`, id)
	if isForeignKeyViolation(err) {
		return models.NewValidationErrorf("field definition %d still has recorded values", id)
	}
	if err != nil {
		return fmt.Errorf("delete field definition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.NewNotFoundErrorf("field definition %d not found", id)
	}
	return nil
}

// CountFieldValues counts the values recorded for a definition.
func (s *Store) CountFieldValues(ctx context.Context, definitionID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM field_values WHERE field_definition_id = ?`, definitionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count field values: %w", err)
	}
	return n, nil
}

// slots holds the five nullable value columns of a field_values row.
type slots struct {
	str  sql.NullString
	num  sql.NullFloat64
	date sql.NullTime
	user sql.NullString
	js   sql.NullString
}

func encodeValue(ft models.FieldType, v models.Value) (slots, error) {
	var sl slots
	if v.Slot() != ft.Slot() {
		return sl, models.NewValidationErrorf("a %s value cannot be stored in a %s field", v.Slot(), ft)
	}
	switch val := v.(type) {
	case models.StringValue:
		sl.str = sql.NullString{String: string(val), Valid: true}
	case models.NumberValue:
		sl.num = sql.NullFloat64{Float64: float64(val), Valid: true}
	case models.DateValue:
		sl.date = sql.NullTime{Time: val.Time.UTC(), Valid: true}
	case models.UserValue:
		sl.user = sql.NullString{String: string(val), Valid: true}
	case models.ListValue, models.BoolValue:
		raw, err := json.MarshalString(val.Raw())
		if err != nil {
			return sl, fmt.Errorf("encode field value: %w", err)
		}
		sl.js = sql.NullString{String: raw, Valid: true}
	default:
		return sl, models.NewValidationErrorf("unsupported field value %T", v)
	}
	return sl, nil
}

func decodeValue(ft models.FieldType, sl slots) (models.Value, error) {
	switch ft.Slot() {
	case models.SlotString:
		return models.StringValue(sl.str.String), nil
	case models.SlotNumber:
		return models.NumberValue(sl.num.Float64), nil
	case models.SlotDate:
		t := sl.date.Time.UTC()
		return models.DateValue{Time: t, DateOnly: ft == models.FieldDate}, nil
	case models.SlotUser:
		return models.UserValue(sl.user.String), nil
	}
	if ft == models.FieldCheckbox {
		var b bool
		if err := json.UnmarshalString(sl.js.String, &b); err != nil {
			return nil, fmt.Errorf("decode field value: %w", err)
		}
		return models.BoolValue(b), nil
	}
	var items []string
	if err := json.UnmarshalString(sl.js.String, &items); err != nil {
		return nil, fmt.Errorf("decode field value: %w", err)
	}
	return models.ListValue(items), nil
}

const fieldValueColumns = `fv.id, fv.task_id, fv.field_definition_id, fd.field_key, fd.field_type,
    fv.string_value, fv.number_value, fv.date_value, fv.user_value, fv.json_value, fv.updated_at`

func scanFieldValue(row interface{ Scan(...any) error }) (models.FieldValue, error) {
	var (
		v  models.FieldValue
		sl slots
	)
	if err := row.Scan(&v.ID, &v.TaskID, &v.FieldDefinitionID, &v.FieldKey, &v.FieldType,
		&sl.str, &sl.num, &sl.date, &sl.user, &sl.js, &v.UpdatedAt); err != nil {
		return v, err
	}
	val, err := decodeValue(v.FieldType, sl)
	if err != nil {
		return v, err
	}
	v.Value = val
	return v, nil
}

// UpsertFieldValue writes the single value row of (task, field).
func (s *Store) UpsertFieldValue(ctx context.Context, v models.FieldValue) (models.FieldValue, error) {
	sl, err := encodeValue(v.FieldType, v.Value)
	if err != nil {
		return models.FieldValue{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO field_values(task_id, field_definition_id, string_value, number_value, date_value, user_value, json_value, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(task_id, field_definition_id) DO UPDATE SET
            string_value = excluded.string_value,
            number_value = excluded.number_value,
            date_value = excluded.date_value,
            user_value = excluded.user_value,
            json_value = excluded.json_value,
            updated_at = excluded.updated_at`,
		v.TaskID, v.FieldDefinitionID, sl.str, sl.num, sl.date, sl.user, sl.js, time.Now().UTC())
	if isForeignKeyViolation(err) {
		return models.FieldValue{}, models.NewNotFoundErrorf("task %d or field %d not found", v.TaskID, v.FieldDefinitionID)
	}
	if err != nil {
		return models.FieldValue{}, fmt.Errorf("upsert field value: %w", err)
	}

	stored, err := scanFieldValue(s.db.QueryRowContext(ctx, `SELECT `+fieldValueColumns+`
        FROM field_values fv JOIN field_definitions fd ON fd.id = fv.field_definition_id
        WHERE fv.task_id = ? AND fv.field_definition_id = ?`, v.TaskID, v.FieldDefinitionID))
	if err != nil {
		return models.FieldValue{}, fmt.Errorf("get field value: %w", err)
	}
	return stored, nil
}

// DeleteFieldValue clears the value of (task, field). Clearing an absent value is not an error.
func (s *Store) DeleteFieldValue(ctx context.Context, taskID, definitionID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM field_values WHERE task_id = ? AND field_definition_id = ?`, taskID, definitionID); err != nil {
		return fmt.Errorf("delete field value: %w", err)
	}
	return nil
}

// ListFieldValues returns every value recorded on a task.
func (s *Store) ListFieldValues(ctx context.Context, taskID int64) ([]models.FieldValue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fieldValueColumns+`
        FROM field_values fv JOIN field_definitions fd ON fd.id = fv.field_definition_id
        WHERE fv.task_id = ? ORDER BY fd.display_order, fd.id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list field values: %w", err)
	}
	defer rows.Close()

	values := []models.FieldValue{}
	for rows.Next() {
		v, err := scanFieldValue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan field value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
