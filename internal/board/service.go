package board

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"tracker/internal/models"
	"tracker/internal/workflow"
)

// Store is the persistence the board service needs.
type Store interface {
	CreateBoard(ctx context.Context, b models.BoardConfig) (models.BoardConfig, error)
	GetBoard(ctx context.Context, id int64) (models.BoardConfig, error)
	ListBoards(ctx context.Context, workspaceID string) ([]models.BoardConfig, error)
	ListBoardsByWorkflow(ctx context.Context, workflowID int64) ([]models.BoardConfig, error)
	GetWorkflow(ctx context.Context, id int64) (models.Workflow, error)
	GetTask(ctx context.Context, id int64) (models.Task, error)
	// ListBoardCards returns the tasks a board shows together with their field values.
	ListBoardCards(ctx context.Context, b models.BoardConfig) ([]models.Card, error)
}

// Transitioner applies a guarded status change.
type Transitioner interface {
	AttemptTransition(ctx context.Context, w *models.Workflow, task models.Task, to string, tc models.TransitionContext) (models.Task, error)
}

// Service loads boards and moves cards between columns.
type Service struct {
	store  Store
	engine Transitioner
	logger *slog.Logger
}

// NewService constructs a board service.
func NewService(store Store, engine Transitioner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, logger: logger}
}

// Create validates and stores a board configuration.
func (s *Service) Create(ctx context.Context, b models.BoardConfig) (models.BoardConfig, error) {
	b.Name = strings.TrimSpace(b.Name)
	if strings.TrimSpace(b.WorkspaceID) == "" {
		return models.BoardConfig{}, models.NewValidationErrorf("board workspace id must not be empty")
	}
	if b.Name == "" {
		return models.BoardConfig{}, models.NewValidationErrorf("board name must not be empty")
	}
	if !b.CardColorBy.IsValid() {
		return models.BoardConfig{}, models.NewValidationErrorf("board %s: invalid card colour dimension %q", b.Name, b.CardColorBy)
	}
	if !b.SwimlanesBy.IsValid() {
		return models.BoardConfig{}, models.NewValidationErrorf("board %s: invalid swimlane dimension %q", b.Name, b.SwimlanesBy)
	}

	w, err := s.store.GetWorkflow(ctx, b.WorkflowID)
	if err != nil {
		return models.BoardConfig{}, err
	}
	if w.WorkspaceID != b.WorkspaceID {
		return models.BoardConfig{}, models.NewValidationErrorf("board %s: workflow %d belongs to another workspace", b.Name, w.ID)
	}

	if len(b.Columns) == 0 {
		return models.BoardConfig{}, models.NewValidationErrorf("board %s: at least one column is required", b.Name)
	}
	ordered := true
	for _, c := range b.Columns {
		if c.Order != 0 {
			ordered = false
		}
	}
	for i := range b.Columns {
		c := &b.Columns[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return models.BoardConfig{}, models.NewValidationErrorf("board %s: column name must not be empty", b.Name)
		}
		if c.WIPLimit != nil && *c.WIPLimit < 1 {
			return models.BoardConfig{}, models.NewValidationErrorf("board %s: column %s: wip limit must be positive", b.Name, c.Name)
		}
		for _, st := range c.StatusMapping {
			if _, ok := w.Status(st); !ok {
				return models.BoardConfig{}, models.NewValidationErrorf("board %s: column %s maps unknown status %q", b.Name, c.Name, st)
			}
		}
		if ordered {
			c.Order = i
		}
	}

	if warn := Inspect(&w, b); !warn.Empty() {
		s.logger.Warn("board mapping incomplete", "board", b.Name, "unmapped", warn.UnmappedStatuses, "ambiguous", warn.AmbiguousStatuses)
	}
	return s.store.CreateBoard(ctx, b)
}

// Get returns a board configuration.
func (s *Service) Get(ctx context.Context, id int64) (models.BoardConfig, error) {
	return s.store.GetBoard(ctx, id)
}

// List returns the boards of a workspace.
func (s *Service) List(ctx context.Context, workspaceID string) ([]models.BoardConfig, error) {
	return s.store.ListBoards(ctx, workspaceID)
}

// Projection loads a board with its workflow and live cards and projects it.
func (s *Service) Projection(ctx context.Context, boardID int64) (Projection, error) {
	b, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return Projection{}, err
	}
	p, _, err := s.project(ctx, b)
	return p, err
}

func (s *Service) project(ctx context.Context, b models.BoardConfig) (Projection, models.Workflow, error) {
	w, err := s.store.GetWorkflow(ctx, b.WorkflowID)
	if err != nil {
		return Projection{}, models.Workflow{}, err
	}
	cards, err := s.store.ListBoardCards(ctx, b)
	if err != nil {
		return Projection{}, models.Workflow{}, err
	}
	return Project(&w, b, cards), w, nil
}

// MoveCard moves a task from one column into another by transitioning it to
// the first status of the target column reachable from its current status.
// Moving into a column at or above its WIP limit fails with ErrWipLimitExceeded.
func (s *Service) MoveCard(ctx context.Context, boardID, taskID, fromColumn, toColumn int64, tc models.TransitionContext) (models.Task, error) {
	b, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return models.Task{}, err
	}
	target, ok := b.Column(toColumn)
	if !ok {
		return models.Task{}, models.NewNotFoundErrorf("board %d has no column %d", boardID, toColumn)
	}

	p, w, err := s.project(ctx, b)
	if err != nil {
		return models.Task{}, err
	}
	current, onBoard := p.ColumnOf(taskID)
	if !onBoard {
		return models.Task{}, models.NewNotFoundErrorf("task %d is not on board %d", taskID, boardID)
	}
	if current != fromColumn {
		return models.Task{}, models.Wrapf(models.ErrConcurrentModification, "task %d is no longer in column %d", taskID, fromColumn)
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}
	if current == toColumn {
		return task, nil
	}

	view, _ := p.Column(toColumn)
	if target.WIPLimit != nil && view.Count >= *target.WIPLimit {
		return task, models.Wrapf(models.ErrWipLimitExceeded, "column %s is at its limit of %d", target.Name, *target.WIPLimit)
	}

	for _, st := range target.StatusMapping {
		if workflow.CanTransition(&w, task.Status, st) {
			moved, err := s.engine.AttemptTransition(ctx, &w, task, st, tc)
			if err != nil {
				return task, err
			}
			s.logger.Debug("card moved", "board", boardID, "task", taskID, "from", fromColumn, "to", toColumn)
			return moved, nil
		}
	}
	return task, models.Wrapf(models.ErrNoSuchTransition, "no transition from %s into column %s", task.Status, target.Name)
}

// Placement is where a task currently sits on one board.
type Placement struct {
	BoardID  int64  `json:"board_id"`
	ColumnID int64  `json:"column_id"`
	Swimlane string `json:"swimlane"`
}

// Placements recomputes the position of a task on every board governed by
// workflowID. Boards are projected concurrently; projection is read-only.
func (s *Service) Placements(ctx context.Context, workflowID, taskID int64) ([]Placement, error) {
	boards, err := s.store.ListBoardsByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	results := make([]*Placement, len(boards))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range boards {
		g.Go(func() error {
			p, _, err := s.project(gctx, b)
			if err != nil {
				return err
			}
			col, ok := p.ColumnOf(taskID)
			if !ok {
				return nil
			}
			pl := &Placement{BoardID: b.ID, ColumnID: col}
			for _, lane := range p.Swimlanes {
				for _, id := range lane.TaskIDs {
					if id == taskID {
						pl.Swimlane = lane.Key
					}
				}
			}
			results[i] = pl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Placement, 0, len(results))
	for _, pl := range results {
		if pl != nil {
			out = append(out, *pl)
		}
	}
	return out, nil
}
