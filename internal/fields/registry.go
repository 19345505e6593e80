// Package fields holds the custom field definition registry and the per-task value store.
package fields

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"tracker/internal/models"
)

// Store is the persistence the registry needs.
type Store interface {
	CreateFieldDefinition(ctx context.Context, d models.FieldDefinition) (models.FieldDefinition, error)
	GetFieldDefinition(ctx context.Context, id int64) (models.FieldDefinition, error)
	GetFieldDefinitionByKey(ctx context.Context, workspaceID, fieldKey string) (models.FieldDefinition, error)
	ListFieldDefinitions(ctx context.Context, workspaceID string) ([]models.FieldDefinition, error)
	UpdateFieldDefinition(ctx context.Context, d models.FieldDefinition) (models.FieldDefinition, error)
	DeleteFieldDefinition(ctx context.Context, id int64) error
	CountFieldValues(ctx context.Context, definitionID int64) (int, error)

	GetTask(ctx context.Context, id int64) (models.Task, error)
	UpsertFieldValue(ctx context.Context, v models.FieldValue) (models.FieldValue, error)
	DeleteFieldValue(ctx context.Context, taskID, definitionID int64) error
	ListFieldValues(ctx context.Context, taskID int64) ([]models.FieldValue, error)
}

// Registry validates and stores field definitions and their values.
type Registry struct {
	store  Store
	logger *slog.Logger
}

// NewRegistry constructs a registry backed by store.
func NewRegistry(store Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, logger: logger}
}

// Define validates and persists a new field definition in the workspace.
func (r *Registry) Define(ctx context.Context, workspaceID string, d models.FieldDefinition) (models.FieldDefinition, error) {
	d.ID = 0
	d.WorkspaceID = workspaceID
	d.Name = strings.TrimSpace(d.Name)
	if err := ValidateDefinition(d); err != nil {
		return models.FieldDefinition{}, err
	}
	if err := r.ensureKeyFree(ctx, workspaceID, d.FieldKey); err != nil {
		return models.FieldDefinition{}, err
	}

	created, err := r.store.CreateFieldDefinition(ctx, d)
	if err != nil {
		return models.FieldDefinition{}, err
	}
	r.logger.Debug("field defined", "workspace", workspaceID, "key", created.FieldKey, "type", created.FieldType)
	return created, nil
}

// Get returns a definition by id.
func (r *Registry) Get(ctx context.Context, id int64) (models.FieldDefinition, error) {
	return r.store.GetFieldDefinition(ctx, id)
}

// List returns every definition of the workspace ordered by display order.
func (r *Registry) List(ctx context.Context, workspaceID string) ([]models.FieldDefinition, error) {
	defs, err := r.store.ListFieldDefinitions(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	sortByDisplayOrder(defs)
	return defs, nil
}

// ApplicableFields returns the definitions relevant to an issue type in a project,
// ordered by display order.
func (r *Registry) ApplicableFields(ctx context.Context, workspaceID, issueType string, projectID int64) ([]models.FieldDefinition, error) {
	defs, err := r.store.ListFieldDefinitions(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]models.FieldDefinition, 0, len(defs))
	for _, d := range defs {
		if d.AppliesTo(issueType, projectID) {
			out = append(out, d)
		}
	}
	sortByDisplayOrder(out)
	return out, nil
}

// UpdateDefinition replaces a definition. The key and type are frozen once any value exists.
func (r *Registry) UpdateDefinition(ctx context.Context, d models.FieldDefinition) (models.FieldDefinition, error) {
	current, err := r.store.GetFieldDefinition(ctx, d.ID)
	if err != nil {
		return models.FieldDefinition{}, err
	}
	d.WorkspaceID = current.WorkspaceID
	d.IsSystem = current.IsSystem
	d.Name = strings.TrimSpace(d.Name)

	if d.FieldKey != current.FieldKey || d.FieldType != current.FieldType {
		n, err := r.store.CountFieldValues(ctx, current.ID)
		if err != nil {
			return models.FieldDefinition{}, err
		}
		if n > 0 {
			return models.FieldDefinition{}, models.NewValidationErrorf("field %s: key and type cannot change once values are recorded", current.FieldKey)
		}
	}
	if err := ValidateDefinition(d); err != nil {
		return models.FieldDefinition{}, err
	}
	if d.FieldKey != current.FieldKey {
		if err := r.ensureKeyFree(ctx, d.WorkspaceID, d.FieldKey); err != nil {
			return models.FieldDefinition{}, err
		}
	}
	return r.store.UpdateFieldDefinition(ctx, d)
}

// DeleteDefinition removes a definition. System fields and fields that still
// have recorded values are refused.
func (r *Registry) DeleteDefinition(ctx context.Context, id int64) error {
	d, err := r.store.GetFieldDefinition(ctx, id)
	if err != nil {
		return err
	}
	if d.IsSystem {
		return models.NewValidationErrorf("field %s is a system field and cannot be deleted", d.FieldKey)
	}
	n, err := r.store.CountFieldValues(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return models.NewValidationErrorf("field %s still has %d recorded values", d.FieldKey, n)
	}
	return r.store.DeleteFieldDefinition(ctx, id)
}

// SetValue validates raw against the field and records it on the task.
// An empty raw value clears an optional field and returns nil.
func (r *Registry) SetValue(ctx context.Context, taskID int64, fieldKey string, raw any) (*models.FieldValue, error) {
	task, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	d, err := r.store.GetFieldDefinitionByKey(ctx, task.WorkspaceID, fieldKey)
	if err != nil {
		return nil, err
	}
	if !d.AppliesTo(task.IssueType, task.ProjectID) {
		return nil, models.NewValidationErrorf("field %s does not apply to %s issues in project %d", d.FieldKey, task.IssueType, task.ProjectID)
	}

	v, err := ValidateValue(d, raw)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if err := r.store.DeleteFieldValue(ctx, task.ID, d.ID); err != nil {
			return nil, err
		}
		r.logger.Debug("field value cleared", "task", task.ID, "key", d.FieldKey)
		return nil, nil
	}

	stored, err := r.store.UpsertFieldValue(ctx, models.FieldValue{
		TaskID:            task.ID,
		FieldDefinitionID: d.ID,
		FieldKey:          d.FieldKey,
		FieldType:         d.FieldType,
		Value:             v,
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("field value set", "task", task.ID, "key", d.FieldKey, "value", describe(v))
	return &stored, nil
}

// ApplyDefaults records the default value of every applicable field the task
// has no value for yet, and returns the values it wrote.
func (r *Registry) ApplyDefaults(ctx context.Context, task models.Task) ([]models.FieldValue, error) {
	defs, err := r.ApplicableFields(ctx, task.WorkspaceID, task.IssueType, task.ProjectID)
	if err != nil {
		return nil, err
	}
	existing, err := r.store.ListFieldValues(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	have := make(map[int64]struct{}, len(existing))
	for _, v := range existing {
		have[v.FieldDefinitionID] = struct{}{}
	}

	out := []models.FieldValue{}
	for _, d := range defs {
		if d.DefaultValue == nil {
			continue
		}
		if _, ok := have[d.ID]; ok {
			continue
		}
		v, err := ValidateValue(d, d.DefaultValue)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		stored, err := r.store.UpsertFieldValue(ctx, models.FieldValue{
			TaskID:            task.ID,
			FieldDefinitionID: d.ID,
			FieldKey:          d.FieldKey,
			FieldType:         d.FieldType,
			Value:             v,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	if len(out) > 0 {
		r.logger.Debug("field defaults applied", "task", task.ID, "count", len(out))
	}
	return out, nil
}

// Values returns every recorded value of the task.
func (r *Registry) Values(ctx context.Context, taskID int64) ([]models.FieldValue, error) {
	return r.store.ListFieldValues(ctx, taskID)
}

// MissingRequired lists the keys of required applicable fields the task has no value for.
func (r *Registry) MissingRequired(ctx context.Context, task models.Task) ([]string, error) {
	defs, err := r.ApplicableFields(ctx, task.WorkspaceID, task.IssueType, task.ProjectID)
	if err != nil {
		return nil, err
	}
	values, err := r.store.ListFieldValues(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	have := make(map[int64]struct{}, len(values))
	for _, v := range values {
		have[v.FieldDefinitionID] = struct{}{}
	}
	var missing []string
	for _, d := range defs {
		if !d.IsRequired {
			continue
		}
		if _, ok := have[d.ID]; !ok {
			missing = append(missing, d.FieldKey)
		}
	}
	return missing, nil
}

func (r *Registry) ensureKeyFree(ctx context.Context, workspaceID, key string) error {
	_, err := r.store.GetFieldDefinitionByKey(ctx, workspaceID, key)
	switch {
	case err == nil:
		return models.NewValidationErrorf("field key %q already exists in workspace %s", key, workspaceID)
	case errors.Is(err, models.ErrNotFound):
		return nil
	default:
		return err
	}
}

func sortByDisplayOrder(defs []models.FieldDefinition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].DisplayOrder != defs[j].DisplayOrder {
			return defs[i].DisplayOrder < defs[j].DisplayOrder
		}
		return defs[i].ID < defs[j].ID
	})
}
