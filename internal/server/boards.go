package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker/internal/models"
)

type boardColumnRequest struct {
	Name          string   `json:"name" binding:"required"`
	StatusMapping []string `json:"status_mapping"`
	WIPLimit      *int     `json:"wip_limit" binding:"omitempty,min=1"`
	Order         int      `json:"order"`
}

type boardRequest struct {
	Name        string               `json:"name" binding:"required"`
	ProjectID   *int64               `json:"project_id"`
	WorkflowID  int64                `json:"workflow_id" binding:"required"`
	Columns     []boardColumnRequest `json:"columns" binding:"required,min=1,dive"`
	CardColorBy models.Dimension     `json:"card_color_by"`
	SwimlanesBy models.Dimension     `json:"swimlanes_by"`
}

type moveCardRequest struct {
	TaskID     int64  `json:"task_id" binding:"required"`
	FromColumn int64  `json:"from_column"`
	ToColumn   int64  `json:"to_column" binding:"required"`
	Comment    string `json:"comment"`
	Resolution string `json:"resolution"`
}

func (s *Server) handleListBoards(c *gin.Context) {
	boards, err := s.boards.List(c.Request.Context(), s.workspaceOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"boards": boards})
}

func (s *Server) handleCreateBoard(c *gin.Context) {
	var req boardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	workspace := s.workspaceOf(c)
	if req.ProjectID != nil {
		project, err := s.store.GetProject(ctx, *req.ProjectID)
		if err != nil {
			s.fail(c, err)
			return
		}
		if project.WorkspaceID != workspace {
			s.fail(c, models.NewValidationErrorf("project %d belongs to another workspace", project.ID))
			return
		}
	}

	cfg := models.BoardConfig{
		WorkspaceID: workspace,
		ProjectID:   req.ProjectID,
		WorkflowID:  req.WorkflowID,
		Name:        req.Name,
		CardColorBy: req.CardColorBy,
		SwimlanesBy: req.SwimlanesBy,
	}
	for _, col := range req.Columns {
		cfg.Columns = append(cfg.Columns, models.BoardColumn{
			Name:          col.Name,
			StatusMapping: col.StatusMapping,
			WIPLimit:      col.WIPLimit,
			Order:         col.Order,
		})
	}

	b, err := s.boards.Create(ctx, cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"board": b})
}

func (s *Server) handleGetBoard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	b, err := s.boards.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"board": b})
}

// handleBoardProjection renders columns, swimlanes and configuration warnings.
func (s *Server) handleBoardProjection(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := s.boards.Projection(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"projection": p})
}

// handleMoveCard is a drag between columns. It is refused when the target
// column is at its WIP limit.
func (s *Server) handleMoveCard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req moveCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	task, err := s.boards.MoveCard(ctx, id, req.TaskID, req.FromColumn, req.ToColumn, models.TransitionContext{
		Actor:      actor,
		Comment:    req.Comment,
		Resolution: req.Resolution,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	b, err := s.boards.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	placements, err := s.boards.Placements(ctx, b.WorkflowID, task.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"task": task, "placements": placements})
}
