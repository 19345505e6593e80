package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tracker/internal/models"
)

// TaskStore is the persistence the engine needs to apply a transition.
type TaskStore interface {
	// CompareAndSetStatus moves the task from -> to only if its stored status is
	// still from, and records resolution when non-empty. A lost race returns
	// an error classified as models.ErrConcurrentModification.
	CompareAndSetStatus(ctx context.Context, taskID int64, from, to, resolution string) (models.Task, error)
	ListFieldValues(ctx context.Context, taskID int64) ([]models.FieldValue, error)
}

// ActivitySink receives one record per successful transition.
type ActivitySink interface {
	RecordActivity(ctx context.Context, rec models.ActivityRecord) error
}

// Engine applies guarded transitions. It is the only writer of task status.
type Engine struct {
	store  TaskStore
	sink   ActivitySink
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine constructs an engine.
func NewEngine(store TaskStore, sink ActivitySink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, sink: sink, logger: logger, now: time.Now}
}

// AttemptTransition moves task to status to along an edge of w.
//
// Guards are evaluated in order requireComment, requireResolution,
// requireFields; the first failing one is returned as *models.GuardFailure.
// On success exactly one activity record is emitted.
func (e *Engine) AttemptTransition(ctx context.Context, w *models.Workflow, task models.Task, to string, tc models.TransitionContext) (models.Task, error) {
	edge, ok := w.Transition(task.Status, to)
	if !ok {
		return task, models.Wrapf(models.ErrNoSuchTransition, "workflow %s has no transition %s -> %s", w.Name, task.Status, to)
	}

	resolution := strings.TrimSpace(tc.Resolution)
	if err := e.checkGuards(ctx, edge, task, tc, resolution); err != nil {
		return task, err
	}

	updated, err := e.store.CompareAndSetStatus(ctx, task.ID, task.Status, to, resolution)
	if err != nil {
		return task, err
	}

	rec := models.ActivityRecord{
		ID:         uuid.NewString(),
		ActionType: models.ActionStatusChanged,
		EntityType: models.EntityTask,
		EntityID:   task.ID,
		UserID:     tc.Actor,
		Summary:    fmt.Sprintf("Status changed from %s to %s", statusName(w, task.Status), statusName(w, to)),
		Changes: models.FieldChange{
			Field:    "status",
			OldValue: task.Status,
			NewValue: to,
		},
		CreatedAt: e.now().UTC(),
	}
	if err := e.sink.RecordActivity(ctx, rec); err != nil {
		return updated, fmt.Errorf("record activity: %w", err)
	}

	e.logger.Debug("task transitioned", "task", task.ID, "from", task.Status, "to", to, "actor", tc.Actor)
	return updated, nil
}

func (e *Engine) checkGuards(ctx context.Context, edge models.WorkflowTransition, task models.Task, tc models.TransitionContext, resolution string) error {
	rules := edge.Rules
	if rules.RequireComment && strings.TrimSpace(tc.Comment) == "" {
		return &models.GuardFailure{Guard: models.GuardComment}
	}
	if rules.RequireResolution && resolution == "" && strings.TrimSpace(task.Resolution) == "" {
		return &models.GuardFailure{Guard: models.GuardResolution}
	}
	if len(rules.RequireFields) == 0 {
		return nil
	}

	values, err := e.store.ListFieldValues(ctx, task.ID)
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(values))
	for _, v := range values {
		have[v.FieldKey] = struct{}{}
	}
	for _, key := range rules.RequireFields {
		if _, ok := have[key]; !ok {
			return &models.GuardFailure{Guard: key}
		}
	}
	return nil
}
