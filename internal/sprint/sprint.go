// Package sprint manages the sprint lifecycle and append-only sprint membership.
package sprint

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"tracker/internal/models"
)

// Store persists sprints and membership rows.
type Store interface {
	CreateSprint(ctx context.Context, s models.Sprint) (models.Sprint, error)
	GetSprint(ctx context.Context, id int64) (models.Sprint, error)
	ListSprints(ctx context.Context, boardID int64) ([]models.Sprint, error)
	// StartSprint moves a future sprint to active in one atomic step that also
	// checks no other sprint of the board is active.
	StartSprint(ctx context.Context, id int64, at time.Time) (models.Sprint, error)
	// CompleteSprint moves an active sprint to closed.
	CompleteSprint(ctx context.Context, id int64, at time.Time) (models.Sprint, error)

	GetBoard(ctx context.Context, id int64) (models.BoardConfig, error)
	GetTask(ctx context.Context, id int64) (models.Task, error)

	AddSprintTask(ctx context.Context, sprintID, taskID int64, at time.Time) (models.SprintTask, error)
	RemoveSprintTask(ctx context.Context, sprintID, taskID int64, at time.Time) (models.SprintTask, error)
	MoveSprintTask(ctx context.Context, fromSprintID, toSprintID, taskID int64, at time.Time) (models.SprintTask, error)
	ListSprintTasks(ctx context.Context, sprintID int64, includeRemoved bool) ([]models.SprintTask, error)
	TaskSprintHistory(ctx context.Context, taskID int64) ([]models.SprintTask, error)
}

// Service drives sprint state and membership.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a sprint service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Create adds a future sprint to a board.
func (s *Service) Create(ctx context.Context, sp models.Sprint) (models.Sprint, error) {
	sp.Name = strings.TrimSpace(sp.Name)
	if sp.Name == "" {
		return models.Sprint{}, models.NewValidationErrorf("sprint name must not be empty")
	}
	if sp.StartDate != nil && sp.EndDate != nil && sp.EndDate.Before(*sp.StartDate) {
		return models.Sprint{}, models.NewValidationErrorf("sprint %s ends before it starts", sp.Name)
	}
	if _, err := s.store.GetBoard(ctx, sp.BoardID); err != nil {
		return models.Sprint{}, err
	}
	sp.State = models.SprintFuture
	sp.StartedAt = nil
	sp.CompletedAt = nil
	return s.store.CreateSprint(ctx, sp)
}

// Get returns a sprint by id.
func (s *Service) Get(ctx context.Context, id int64) (models.Sprint, error) {
	return s.store.GetSprint(ctx, id)
}

// List returns the sprints of a board.
func (s *Service) List(ctx context.Context, boardID int64) ([]models.Sprint, error) {
	return s.store.ListSprints(ctx, boardID)
}

// Start activates a future sprint. It fails with ErrInvalidTransition unless
// the sprint is future and with ErrConflictingActiveSprint when the board
// already has an active sprint.
func (s *Service) Start(ctx context.Context, id int64) (models.Sprint, error) {
	sp, err := s.store.GetSprint(ctx, id)
	if err != nil {
		return models.Sprint{}, err
	}
	if sp.State != models.SprintFuture {
		return sp, models.Wrapf(models.ErrInvalidTransition, "sprint %s is %s, only future sprints can start", sp.Name, sp.State)
	}
	started, err := s.store.StartSprint(ctx, id, s.now().UTC())
	if err != nil {
		return sp, err
	}
	s.logger.Debug("sprint started", "sprint", started.ID, "board", started.BoardID)
	return started, nil
}

// Complete closes an active sprint. Incomplete tasks stay where they are;
// rolling them over is the caller's decision.
func (s *Service) Complete(ctx context.Context, id int64) (models.Sprint, error) {
	sp, err := s.store.GetSprint(ctx, id)
	if err != nil {
		return models.Sprint{}, err
	}
	if sp.State != models.SprintActive {
		return sp, models.Wrapf(models.ErrInvalidTransition, "sprint %s is %s, only active sprints can complete", sp.Name, sp.State)
	}
	closed, err := s.store.CompleteSprint(ctx, id, s.now().UTC())
	if err != nil {
		return sp, err
	}
	s.logger.Debug("sprint completed", "sprint", closed.ID, "board", closed.BoardID)
	return closed, nil
}

// AddTask records the task as a current member of the sprint. Adding a task
// that is already a current member returns the existing row.
func (s *Service) AddTask(ctx context.Context, sprintID, taskID int64) (models.SprintTask, error) {
	if _, err := s.checkTarget(ctx, sprintID, taskID); err != nil {
		return models.SprintTask{}, err
	}
	return s.store.AddSprintTask(ctx, sprintID, taskID, s.now().UTC())
}

// RemoveTask stamps RemovedAt on the current membership row.
func (s *Service) RemoveTask(ctx context.Context, sprintID, taskID int64) (models.SprintTask, error) {
	if _, err := s.store.GetSprint(ctx, sprintID); err != nil {
		return models.SprintTask{}, err
	}
	return s.store.RemoveSprintTask(ctx, sprintID, taskID, s.now().UTC())
}

// MoveTask removes the task from one sprint and adds it to another in one step,
// the usual way to roll unfinished work over.
func (s *Service) MoveTask(ctx context.Context, fromSprintID, toSprintID, taskID int64) (models.SprintTask, error) {
	if fromSprintID == toSprintID {
		return models.SprintTask{}, models.NewValidationErrorf("source and target sprint are the same")
	}
	if _, err := s.store.GetSprint(ctx, fromSprintID); err != nil {
		return models.SprintTask{}, err
	}
	if _, err := s.checkTarget(ctx, toSprintID, taskID); err != nil {
		return models.SprintTask{}, err
	}
	return s.store.MoveSprintTask(ctx, fromSprintID, toSprintID, taskID, s.now().UTC())
}

// Members returns the current members of a sprint.
func (s *Service) Members(ctx context.Context, sprintID int64) ([]models.SprintTask, error) {
	return s.store.ListSprintTasks(ctx, sprintID, false)
}

// History returns every membership row of a task, oldest first.
func (s *Service) History(ctx context.Context, taskID int64) ([]models.SprintTask, error) {
	return s.store.TaskSprintHistory(ctx, taskID)
}

func (s *Service) checkTarget(ctx context.Context, sprintID, taskID int64) (models.Sprint, error) {
	sp, err := s.store.GetSprint(ctx, sprintID)
	if err != nil {
		return models.Sprint{}, err
	}
	if sp.State == models.SprintClosed {
		return sp, models.NewValidationErrorf("sprint %s is closed", sp.Name)
	}
	b, err := s.store.GetBoard(ctx, sp.BoardID)
	if err != nil {
		return sp, err
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return sp, err
	}
	if task.WorkspaceID != b.WorkspaceID {
		return sp, models.NewValidationErrorf("task %d belongs to another workspace", task.ID)
	}
	if b.ProjectID != nil && task.ProjectID != *b.ProjectID {
		return sp, models.NewValidationErrorf("task %d is not part of project %d", task.ID, *b.ProjectID)
	}
	return sp, nil
}
