package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tracker/internal/models"
)

type sprintRequest struct {
	Name      string     `json:"name" binding:"required"`
	Goal      string     `json:"goal"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

type sprintTaskRequest struct {
	TaskID int64 `json:"task_id" binding:"required"`
}

type moveSprintTaskRequest struct {
	ToSprintID int64 `json:"to_sprint_id" binding:"required"`
}

func (s *Server) handleListSprints(c *gin.Context) {
	boardID, ok := parseID(c, "id")
	if !ok {
		return
	}
	sprints, err := s.sprints.List(c.Request.Context(), boardID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprints": sprints})
}

func (s *Server) handleCreateSprint(c *gin.Context) {
	boardID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req sprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	sp, err := s.sprints.Create(c.Request.Context(), models.Sprint{
		BoardID:   boardID,
		Name:      req.Name,
		Goal:      req.Goal,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"sprint": sp})
}

func (s *Server) handleGetSprint(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sp, err := s.sprints.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sp})
}

func (s *Server) handleStartSprint(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sp, err := s.sprints.Start(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sp})
}

func (s *Server) handleCompleteSprint(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sp, err := s.sprints.Complete(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"sprint": sp})
}

func (s *Server) handleSprintMembers(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	members, err := s.sprints.Members(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"memberships": members})
}

func (s *Server) handleAddSprintTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req sprintTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	m, err := s.sprints.AddTask(c.Request.Context(), id, req.TaskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"membership": m})
}

func (s *Server) handleRemoveSprintTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "taskID")
	if !ok {
		return
	}
	m, err := s.sprints.RemoveTask(c.Request.Context(), id, taskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"membership": m})
}

// handleMoveSprintTask rolls a task over into another sprint.
func (s *Server) handleMoveSprintTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	taskID, ok := parseID(c, "taskID")
	if !ok {
		return
	}
	var req moveSprintTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	m, err := s.sprints.MoveTask(c.Request.Context(), id, req.ToSprintID, taskID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"membership": m})
}
