package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker/internal/models"
)

type memTasks struct {
	mu     sync.Mutex
	tasks  map[int64]models.Task
	values map[int64][]models.FieldValue
}

func newMemTasks(tasks ...models.Task) *memTasks {
	m := &memTasks{tasks: map[int64]models.Task{}, values: map[int64][]models.FieldValue{}}
	for _, t := range tasks {
		m.tasks[t.ID] = t
	}
	return m
}

func (m *memTasks) CompareAndSetStatus(_ context.Context, taskID int64, from, to, resolution string) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return models.Task{}, models.NewNotFoundErrorf("task %d", taskID)
	}
	if t.Status != from {
		return models.Task{}, models.Wrapf(models.ErrConcurrentModification, "task %d is %s", taskID, t.Status)
	}
	t.Status = to
	if resolution != "" {
		t.Resolution = resolution
	}
	m.tasks[taskID] = t
	return t, nil
}

func (m *memTasks) ListFieldValues(_ context.Context, taskID int64) ([]models.FieldValue, error) {
	return m.values[taskID], nil
}

type memSink struct {
	mu      sync.Mutex
	records []models.ActivityRecord
}

func (s *memSink) RecordActivity(_ context.Context, rec models.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func TestAttemptTransitionRejectsUnmodeledEdge(t *testing.T) {
	w := bugWorkflow()
	task := models.Task{ID: 1, Status: "open"}
	store := newMemTasks(task)
	sink := &memSink{}
	e := NewEngine(store, sink, nil)

	_, err := e.AttemptTransition(context.Background(), &w, task, "closed", models.TransitionContext{Actor: "u1"})
	assert.ErrorIs(t, err, models.ErrNoSuchTransition)
	assert.Equal(t, "open", store.tasks[1].Status)
	assert.Empty(t, sink.records)
}

func TestAttemptTransitionSucceeds(t *testing.T) {
	w := bugWorkflow()
	task := models.Task{ID: 1, Status: "open"}
	store := newMemTasks(task)
	sink := &memSink{}
	e := NewEngine(store, sink, nil)

	got, err := e.AttemptTransition(context.Background(), &w, task, "in_progress", models.TransitionContext{Actor: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "in_progress", got.Status)
	assert.Equal(t, "in_progress", store.tasks[1].Status)

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, models.ActionStatusChanged, rec.ActionType)
	assert.Equal(t, models.EntityTask, rec.EntityType)
	assert.Equal(t, int64(1), rec.EntityID)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, "Status changed from Open to In Progress", rec.Summary)
	assert.Equal(t, models.FieldChange{Field: "status", OldValue: "open", NewValue: "in_progress"}, rec.Changes)
	assert.NotEmpty(t, rec.ID)
}

func TestAttemptTransitionGuards(t *testing.T) {
	ctx := context.Background()
	w := bugWorkflow()

	t.Run("resolution", func(t *testing.T) {
		task := models.Task{ID: 1, Status: "in_progress"}
		store := newMemTasks(task)
		sink := &memSink{}
		e := NewEngine(store, sink, nil)

		_, err := e.AttemptTransition(ctx, &w, task, "resolved", models.TransitionContext{Actor: "u1", Resolution: "  "})
		require.ErrorIs(t, err, models.ErrGuardFailure)
		gf, ok := models.AsGuardFailure(err)
		require.True(t, ok)
		assert.Equal(t, models.GuardResolution, gf.Guard)
		assert.Equal(t, "in_progress", store.tasks[1].Status)
		assert.Empty(t, sink.records)

		got, err := e.AttemptTransition(ctx, &w, task, "resolved", models.TransitionContext{Actor: "u1", Resolution: "fixed"})
		require.NoError(t, err)
		assert.Equal(t, "fixed", got.Resolution)
		assert.Len(t, sink.records, 1)
	})

	t.Run("existing resolution satisfies guard", func(t *testing.T) {
		task := models.Task{ID: 1, Status: "in_progress", Resolution: "duplicate"}
		e := NewEngine(newMemTasks(task), &memSink{}, nil)

		_, err := e.AttemptTransition(ctx, &w, task, "resolved", models.TransitionContext{Actor: "u1"})
		assert.NoError(t, err)
	})

	t.Run("comment", func(t *testing.T) {
		task := models.Task{ID: 1, Status: "resolved"}
		e := NewEngine(newMemTasks(task), &memSink{}, nil)

		_, err := e.AttemptTransition(ctx, &w, task, "open", models.TransitionContext{Actor: "u1"})
		gf, ok := models.AsGuardFailure(err)
		require.True(t, ok)
		assert.Equal(t, models.GuardComment, gf.Guard)

		_, err = e.AttemptTransition(ctx, &w, task, "open", models.TransitionContext{Actor: "u1", Comment: "still broken"})
		assert.NoError(t, err)
	})

	t.Run("required fields", func(t *testing.T) {
		task := models.Task{ID: 1, Status: "resolved"}
		store := newMemTasks(task)
		e := NewEngine(store, &memSink{}, nil)

		_, err := e.AttemptTransition(ctx, &w, task, "closed", models.TransitionContext{Actor: "u1"})
		gf, ok := models.AsGuardFailure(err)
		require.True(t, ok)
		assert.Equal(t, "verified_by", gf.Guard)

		store.values[1] = []models.FieldValue{{TaskID: 1, FieldKey: "verified_by", Value: models.UserValue("qa")}}
		got, err := e.AttemptTransition(ctx, &w, task, "closed", models.TransitionContext{Actor: "u1"})
		require.NoError(t, err)
		assert.Equal(t, "closed", got.Status)
	})
}

func TestAttemptTransitionGuardOrder(t *testing.T) {
	w := bugWorkflow()
	w.Transitions[1].Rules = models.TransitionRules{
		RequireComment:    true,
		RequireResolution: true,
		RequireFields:     []string{"root_cause"},
	}
	task := models.Task{ID: 1, Status: "in_progress"}
	e := NewEngine(newMemTasks(task), &memSink{}, nil)
	ctx := context.Background()

	steps := []struct {
		tc    models.TransitionContext
		guard string
	}{
		{tc: models.TransitionContext{}, guard: models.GuardComment},
		{tc: models.TransitionContext{Comment: "done"}, guard: models.GuardResolution},
		{tc: models.TransitionContext{Comment: "done", Resolution: "fixed"}, guard: "root_cause"},
	}
	for _, s := range steps {
		_, err := e.AttemptTransition(ctx, &w, task, "resolved", s.tc)
		gf, ok := models.AsGuardFailure(err)
		require.True(t, ok)
		assert.Equal(t, s.guard, gf.Guard)
	}
}

func TestAttemptTransitionConcurrentWritersOneWins(t *testing.T) {
	w := bugWorkflow()
	task := models.Task{ID: 1, Status: "open"}
	store := newMemTasks(task)
	sink := &memSink{}
	e := NewEngine(store, sink, nil)

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.AttemptTransition(context.Background(), &w, task, "in_progress", models.TransitionContext{Actor: "u1"})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, models.ErrConcurrentModification)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, sink.records, 1)
}
