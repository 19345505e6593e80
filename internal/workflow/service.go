package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"tracker/internal/models"
)

// Store persists workflow definitions.
type Store interface {
	CreateWorkflow(ctx context.Context, w models.Workflow) (models.Workflow, error)
	GetWorkflow(ctx context.Context, id int64) (models.Workflow, error)
	GetWorkflowByName(ctx context.Context, workspaceID, name string) (models.Workflow, error)
	ListWorkflows(ctx context.Context, workspaceID string) ([]models.Workflow, error)
	UpdateWorkflow(ctx context.Context, w models.Workflow) (models.Workflow, error)
	// SetDefaultWorkflow atomically makes id the only default of its workspace.
	SetDefaultWorkflow(ctx context.Context, workspaceID string, id int64) error
	DefaultWorkflow(ctx context.Context, workspaceID string) (models.Workflow, error)
	CountTasksInStatus(ctx context.Context, workflowID int64, status string) (int, error)
}

// Service manages workflow definitions. Edits are rare, so all of them are
// serialised on one mutex.
type Service struct {
	store  Store
	logger *slog.Logger
	mu     sync.Mutex
}

// NewService constructs a definition service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Create validates and stores a workflow. The first workflow of a workspace
// becomes its default.
func (s *Service) Create(ctx context.Context, w models.Workflow) (models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w = Normalize(w)
	if err := Validate(w); err != nil {
		return models.Workflow{}, err
	}
	if _, err := s.store.GetWorkflowByName(ctx, w.WorkspaceID, w.Name); err == nil {
		return models.Workflow{}, models.NewValidationErrorf("workflow %q already exists in workspace %s", w.Name, w.WorkspaceID)
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.Workflow{}, err
	}

	_, err := s.store.DefaultWorkflow(ctx, w.WorkspaceID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		w.IsDefault = true
	case err != nil:
		return models.Workflow{}, err
	}
	makeDefault := w.IsDefault
	w.IsDefault = false

	created, err := s.store.CreateWorkflow(ctx, w)
	if err != nil {
		return models.Workflow{}, err
	}
	if makeDefault {
		if err := s.store.SetDefaultWorkflow(ctx, created.WorkspaceID, created.ID); err != nil {
			return models.Workflow{}, err
		}
		created.IsDefault = true
	}
	s.logger.Debug("workflow created", "workspace", created.WorkspaceID, "name", created.Name, "default", created.IsDefault)
	return created, nil
}

// Update replaces statuses and transitions of an existing workflow. Removing a
// status that tasks governed by the workflow still occupy is refused.
func (s *Service) Update(ctx context.Context, w models.Workflow) (models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.GetWorkflow(ctx, w.ID)
	if err != nil {
		return models.Workflow{}, err
	}
	w.WorkspaceID = current.WorkspaceID
	w.IsDefault = current.IsDefault
	w.Transitions = keepTransitionIDs(&current, w.Transitions)
	w = Normalize(w)
	if err := Validate(w); err != nil {
		return models.Workflow{}, err
	}
	if w.Name != current.Name {
		if _, err := s.store.GetWorkflowByName(ctx, w.WorkspaceID, w.Name); err == nil {
			return models.Workflow{}, models.NewValidationErrorf("workflow %q already exists in workspace %s", w.Name, w.WorkspaceID)
		} else if !errors.Is(err, models.ErrNotFound) {
			return models.Workflow{}, err
		}
	}

	for _, old := range current.Statuses {
		if _, kept := w.Status(old.Key); kept {
			continue
		}
		n, err := s.store.CountTasksInStatus(ctx, w.ID, old.Key)
		if err != nil {
			return models.Workflow{}, err
		}
		if n > 0 {
			return models.Workflow{}, models.NewValidationErrorf("workflow %s: status %q is still used by %d tasks", w.Name, old.Key, n)
		}
	}
	return s.store.UpdateWorkflow(ctx, w)
}

// SetDefault makes the workflow the default of its workspace. Only tasks
// created afterwards use it; existing tasks keep the workflow they were
// created under.
func (s *Service) SetDefault(ctx context.Context, id int64) (models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return models.Workflow{}, err
	}
	if err := s.store.SetDefaultWorkflow(ctx, w.WorkspaceID, w.ID); err != nil {
		return models.Workflow{}, err
	}
	w.IsDefault = true
	return w, nil
}

// Get returns a workflow by id.
func (s *Service) Get(ctx context.Context, id int64) (models.Workflow, error) {
	return s.store.GetWorkflow(ctx, id)
}

// List returns the workflows of a workspace.
func (s *Service) List(ctx context.Context, workspaceID string) ([]models.Workflow, error) {
	return s.store.ListWorkflows(ctx, workspaceID)
}

// Default returns the default workflow of a workspace.
func (s *Service) Default(ctx context.Context, workspaceID string) (models.Workflow, error) {
	return s.store.DefaultWorkflow(ctx, workspaceID)
}
