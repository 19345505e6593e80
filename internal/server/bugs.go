package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker/internal/models"
)

type bugRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	AssignedTo  string `json:"assigned_to" binding:"required"`
	FileURL     string `json:"file_url" binding:"omitempty,url"`
}

type bugStatusRequest struct {
	Status models.BugStatus `json:"status" binding:"required"`
}

type bugFileRequest struct {
	URL string `json:"url" binding:"required,url"`
}

type bugCommentRequest struct {
	Body string `json:"body" binding:"required"`
}

func (s *Server) handleListBugs(c *gin.Context) {
	list, err := s.bugs.List(c.Request.Context(), s.workspaceOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"bugs": list})
}

// handleCreateBug files a bug reported by the calling actor.
func (s *Server) handleCreateBug(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req bugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	bug, err := s.bugs.Create(c.Request.Context(), models.Bug{
		WorkspaceID: s.workspaceOf(c),
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
		ReportedBy:  actor,
		FileURL:     req.FileURL,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"bug": bug})
}

func (s *Server) handleGetBug(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	bug, err := s.bugs.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"bug": bug})
}

func (s *Server) handleChangeBugStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req bugStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	bug, err := s.bugs.ChangeStatus(c.Request.Context(), id, req.Status, actor)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"bug": bug})
}

func (s *Server) handleReopenBug(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	bug, comment, err := s.bugs.Reopen(c.Request.Context(), id, actor)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"bug": bug, "comment": comment})
}

func (s *Server) handleReplaceAttachment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req bugFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	bug, err := s.bugs.ReplaceAttachment(c.Request.Context(), id, actor, req.URL)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"bug": bug})
}

func (s *Server) handleRemoveAttachment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	bug, err := s.bugs.RemoveAttachment(c.Request.Context(), id, actor)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"bug": bug})
}

func (s *Server) handleUploadOutput(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req bugFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	bug, err := s.bugs.UploadOutput(c.Request.Context(), id, actor, req.URL)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"bug": bug})
}

func (s *Server) handleListBugComments(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	comments, err := s.bugs.Comments(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"comments": comments})
}

func (s *Server) handleAddBugComment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req bugCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	comment, err := s.bugs.AddComment(c.Request.Context(), id, actor, req.Body)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"comment": comment})
}

func (s *Server) handleBugActivity(c *gin.Context) {
	s.listActivity(c, models.EntityBug)
}
