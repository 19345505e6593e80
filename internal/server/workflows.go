package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker/internal/models"
)

type workflowRequest struct {
	Name        string                      `json:"name" binding:"required"`
	Description string                      `json:"description"`
	IsDefault   bool                        `json:"is_default"`
	Statuses    []models.WorkflowStatus     `json:"statuses" binding:"required,min=1"`
	Transitions []models.WorkflowTransition `json:"transitions"`
}

func (r workflowRequest) workflow(workspaceID string) models.Workflow {
	return models.Workflow{
		WorkspaceID: workspaceID,
		Name:        r.Name,
		Description: r.Description,
		IsDefault:   r.IsDefault,
		Statuses:    r.Statuses,
		Transitions: r.Transitions,
	}
}

func (s *Server) handleListWorkflows(c *gin.Context) {
	workflows, err := s.workflows.List(c.Request.Context(), s.workspaceOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"workflows": workflows})
}

func (s *Server) handleCreateWorkflow(c *gin.Context) {
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	w, err := s.workflows.Create(c.Request.Context(), req.workflow(s.workspaceOf(c)))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"workflow": w})
}

func (s *Server) handleDefaultWorkflow(c *gin.Context) {
	w, err := s.workflows.Default(c.Request.Context(), s.workspaceOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"workflow": w})
}

func (s *Server) handleGetWorkflow(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	w, err := s.workflows.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"workflow": w})
}

// handleUpdateWorkflow replaces the whole definition of a workflow.
func (s *Server) handleUpdateWorkflow(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	w := req.workflow(s.workspaceOf(c))
	w.ID = id
	updated, err := s.workflows.Update(c.Request.Context(), w)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"workflow": updated})
}

func (s *Server) handleSetDefaultWorkflow(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	w, err := s.workflows.SetDefault(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"workflow": w})
}
