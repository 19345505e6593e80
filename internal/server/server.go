package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tracker/internal/board"
	"tracker/internal/bugs"
	"tracker/internal/fields"
	"tracker/internal/models"
	"tracker/internal/sprint"
	"tracker/internal/storage/sqlite"
	"tracker/internal/workflow"
)

// Request headers carrying the caller identity. Authentication happens upstream.
const (
	headerActor     = "X-Actor-ID"
	headerWorkspace = "X-Workspace-ID"
)

// Server provides HTTP handlers for the issue tracker.
type Server struct {
	engine    *gin.Engine
	store     *sqlite.Store
	logger    *slog.Logger
	workspace string

	fields     *fields.Registry
	workflows  *workflow.Service
	transition *workflow.Engine
	boards     *board.Service
	sprints    *sprint.Service
	bugs       *bugs.Service
}

// New constructs the HTTP server with routes and middleware configured.
// Requests without an X-Workspace-ID header operate on defaultWorkspace.
func New(store *sqlite.Store, logger *slog.Logger, defaultWorkspace string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api/healthz"))

	engine := workflow.NewEngine(store, store, logger)
	srv := &Server{
		engine:     router,
		store:      store,
		logger:     logger,
		workspace:  defaultWorkspace,
		fields:     fields.NewRegistry(store, logger),
		workflows:  workflow.NewService(store, logger),
		transition: engine,
		boards:     board.NewService(store, engine, logger),
		sprints:    sprint.NewService(store, logger),
		bugs:       bugs.NewService(store, store, logger),
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		projects := api.Group("/projects")
		{
			projects.GET("", s.handleListProjects)
			projects.POST("", s.handleCreateProject)
			projects.PUT(":id", s.handleUpdateProject)
			projects.DELETE(":id", s.handleDeleteProject)
			projects.GET(":id/tasks", s.handleListTasks)
			projects.POST(":id/tasks", s.handleCreateTask)
		}

		tasks := api.Group("/tasks")
		{
			tasks.GET(":id", s.handleGetTask)
			tasks.PUT(":id", s.handleUpdateTask)
			tasks.DELETE(":id", s.handleDeleteTask)
			tasks.GET(":id/transitions", s.handleAvailableTransitions)
			tasks.POST(":id/transitions", s.handleTransitionTask)
			tasks.GET(":id/fields", s.handleListFieldValues)
			tasks.PUT(":id/fields/:key", s.handleSetFieldValue)
			tasks.DELETE(":id/fields/:key", s.handleClearFieldValue)
			tasks.GET(":id/sprints", s.handleTaskSprintHistory)
			tasks.GET(":id/activity", s.handleTaskActivity)
		}

		defs := api.Group("/fields")
		{
			defs.GET("", s.handleListFieldDefinitions)
			defs.POST("", s.handleDefineField)
			defs.GET("applicable", s.handleApplicableFields)
			defs.GET(":id", s.handleGetFieldDefinition)
			defs.PUT(":id", s.handleUpdateFieldDefinition)
			defs.DELETE(":id", s.handleDeleteFieldDefinition)
		}

		workflows := api.Group("/workflows")
		{
			workflows.GET("", s.handleListWorkflows)
			workflows.POST("", s.handleCreateWorkflow)
			workflows.GET("default", s.handleDefaultWorkflow)
			workflows.GET(":id", s.handleGetWorkflow)
			workflows.PUT(":id", s.handleUpdateWorkflow)
			workflows.POST(":id/default", s.handleSetDefaultWorkflow)
		}

		boards := api.Group("/boards")
		{
			boards.GET("", s.handleListBoards)
			boards.POST("", s.handleCreateBoard)
			boards.GET(":id", s.handleGetBoard)
			boards.GET(":id/projection", s.handleBoardProjection)
			boards.POST(":id/moves", s.handleMoveCard)
			boards.GET(":id/sprints", s.handleListSprints)
			boards.POST(":id/sprints", s.handleCreateSprint)
		}

		sprints := api.Group("/sprints")
		{
			sprints.GET(":id", s.handleGetSprint)
			sprints.POST(":id/start", s.handleStartSprint)
			sprints.POST(":id/complete", s.handleCompleteSprint)
			sprints.GET(":id/tasks", s.handleSprintMembers)
			sprints.POST(":id/tasks", s.handleAddSprintTask)
			sprints.DELETE(":id/tasks/:taskID", s.handleRemoveSprintTask)
			sprints.POST(":id/tasks/:taskID/move", s.handleMoveSprintTask)
		}

		bugRoutes := api.Group("/bugs")
		{
			bugRoutes.GET("", s.handleListBugs)
			bugRoutes.POST("", s.handleCreateBug)
			bugRoutes.GET(":id", s.handleGetBug)
			bugRoutes.POST(":id/status", s.handleChangeBugStatus)
			bugRoutes.POST(":id/reopen", s.handleReopenBug)
			bugRoutes.PUT(":id/attachment", s.handleReplaceAttachment)
			bugRoutes.DELETE(":id/attachment", s.handleRemoveAttachment)
			bugRoutes.PUT(":id/output", s.handleUploadOutput)
			bugRoutes.GET(":id/comments", s.handleListBugComments)
			bugRoutes.POST(":id/comments", s.handleAddBugComment)
			bugRoutes.GET(":id/activity", s.handleBugActivity)
		}
	}
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.respondError(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// workspaceOf returns the workspace a request operates on.
func (s *Server) workspaceOf(c *gin.Context) string {
	if ws := strings.TrimSpace(c.GetHeader(headerWorkspace)); ws != "" {
		return ws
	}
	return s.workspace
}

// requireActor reads the acting user. Mutations affecting permissions or
// audit records refuse anonymous callers.
func requireActor(c *gin.Context) (string, bool) {
	actor := strings.TrimSpace(c.GetHeader(headerActor))
	if actor == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + headerActor + " header"})
		return "", false
	}
	return actor, true
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrGuardFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoSuchTransition),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrConflictingActiveSprint),
		errors.Is(err, models.ErrWipLimitExceeded),
		errors.Is(err, models.ErrConcurrentModification):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail responds with the status matching the error kind.
func (s *Server) fail(c *gin.Context, err error) {
	s.respondError(c, statusFor(err), err)
}

// respondError logs the error and returns a JSON payload. Guard failures
// carry the name of the failing guard.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	} else {
		s.logger.Debug("request rejected", slog.String("path", c.FullPath()), slog.Int("status", status), slog.String("error", err.Error()))
	}
	body := gin.H{"error": err.Error()}
	if gf, ok := models.AsGuardFailure(err); ok {
		body["guard"] = gf.Guard
	}
	c.JSON(status, body)
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
