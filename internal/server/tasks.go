package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker/internal/models"
	"tracker/internal/workflow"
)

type taskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IssueType   *string `json:"issue_type"`
	Priority    *string `json:"priority" binding:"omitempty,oneof=lowest low medium high highest"`
	Assignee    *string `json:"assignee"`
}

type transitionRequest struct {
	To         string `json:"to" binding:"required"`
	Comment    string `json:"comment"`
	Resolution string `json:"resolution"`
}

type fieldValueRequest struct {
	Value any `json:"value"`
}

// handleListTasks fetches tasks for a project.
func (s *Server) handleListTasks(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	tasks, err := s.store.ListTasks(c.Request.Context(), projectID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tasks": tasks})
}

// handleCreateTask inserts a new task governed by the current default workflow,
// in its initial status, and records the defaults of applicable fields.
func (s *Server) handleCreateTask(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if getString(req.Title) == "" {
		s.respondError(c, http.StatusBadRequest, models.NewValidationErrorf("title is required"))
		return
	}

	ctx := c.Request.Context()
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		s.fail(c, err)
		return
	}
	w, err := s.workflows.Default(ctx, project.WorkspaceID)
	if errors.Is(err, models.ErrNotFound) {
		s.fail(c, models.NewValidationErrorf("workspace %s has no default workflow", project.WorkspaceID))
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	task, err := s.store.CreateTask(ctx, models.Task{
		ProjectID:   projectID,
		Title:       getString(req.Title),
		Description: getString(req.Description),
		IssueType:   getString(req.IssueType),
		Priority:    getString(req.Priority),
		Assignee:    getString(req.Assignee),
		WorkflowID:  w.ID,
		Status:      workflow.InitialStatus(&w),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	defaults, err := s.fields.ApplyDefaults(ctx, task)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task, "fields": wireValues(defaults)})
}

// handleGetTask returns a task with its custom field values.
func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	values, err := s.fields.Values(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	missing, err := s.fields.MissingRequired(ctx, task)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task, "fields": wireValues(values), "missing_required": missing})
}

// handleUpdateTask updates descriptive task fields. Status is changed through transitions.
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	updates := map[string]any{}
	if req.Title != nil && *req.Title != "" {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.Assignee != nil {
		updates["assignee"] = *req.Assignee
	}
	if req.IssueType != nil {
		updates["issue_type"] = *req.IssueType
	}

	task, err := s.store.UpdateTask(c.Request.Context(), id, updates)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task})
}

// handleDeleteTask removes a task completely.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteTask(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// governingWorkflow returns the workflow the task was created under.
func (s *Server) governingWorkflow(ctx context.Context, task models.Task) (models.Workflow, error) {
	return s.workflows.Get(ctx, task.WorkflowID)
}

// handleAvailableTransitions lists the outgoing edges of the task's current status.
func (s *Server) handleAvailableTransitions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	w, err := s.governingWorkflow(ctx, task)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"status":      task.Status,
		"transitions": workflow.AvailableTransitions(&w, task.Status),
	})
}

// handleTransitionTask applies a guarded transition and returns the task with
// its recomputed board placements.
func (s *Server) handleTransitionTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	w, err := s.governingWorkflow(ctx, task)
	if err != nil {
		s.fail(c, err)
		return
	}

	moved, err := s.transition.AttemptTransition(ctx, &w, task, req.To, models.TransitionContext{
		Actor:      actor,
		Comment:    req.Comment,
		Resolution: req.Resolution,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	placements, err := s.boards.Placements(ctx, w.ID, moved.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": moved, "placements": placements})
}

// handleListFieldValues returns the custom field values of a task.
func (s *Server) handleListFieldValues(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	values, err := s.fields.Values(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"fields": wireValues(values)})
}

// handleSetFieldValue validates and records a custom field value.
func (s *Server) handleSetFieldValue(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req fieldValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	s.setFieldValue(c, id, req.Value)
}

// handleClearFieldValue removes an optional custom field value.
func (s *Server) handleClearFieldValue(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	s.setFieldValue(c, id, nil)
}

func (s *Server) setFieldValue(c *gin.Context, taskID int64, raw any) {
	stored, err := s.fields.SetValue(c.Request.Context(), taskID, c.Param("key"), raw)
	if err != nil {
		s.fail(c, err)
		return
	}
	if stored == nil {
		respondSuccess(c, http.StatusOK, gin.H{"status": "cleared"})
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"field": stored.Wire()})
}

// handleTaskSprintHistory returns every sprint membership row of a task.
func (s *Server) handleTaskSprintHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	history, err := s.sprints.History(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"memberships": history})
}

// handleTaskActivity returns the audit trail of a task.
func (s *Server) handleTaskActivity(c *gin.Context) {
	s.listActivity(c, models.EntityTask)
}

func (s *Server) listActivity(c *gin.Context, entityType string) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	records, err := s.store.ListActivity(c.Request.Context(), entityType, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"activity": records})
}

func wireValues(values []models.FieldValue) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v.Wire())
	}
	return out
}

func getString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
