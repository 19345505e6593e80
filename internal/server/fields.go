package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker/internal/models"
)

type fieldDefinitionRequest struct {
	FieldKey        string              `json:"field_key" binding:"required"`
	Name            string              `json:"name" binding:"required"`
	FieldType       models.FieldType    `json:"field_type" binding:"required"`
	IsRequired      bool                `json:"is_required"`
	DefaultValue    any                 `json:"default_value"`
	Options         models.FieldOptions `json:"options"`
	IssueTypes      []string            `json:"issue_types"`
	ProjectIDs      []int64             `json:"project_ids"`
	VisibleInList   bool                `json:"visible_in_list"`
	VisibleInDetail *bool               `json:"visible_in_detail"`
	Searchable      bool                `json:"searchable"`
	Filterable      bool                `json:"filterable"`
	DisplayOrder    int                 `json:"display_order"`
}

type applicableFieldsQuery struct {
	IssueType string `form:"issue_type" binding:"required"`
	ProjectID int64  `form:"project_id" binding:"required,min=1"`
}

func (r fieldDefinitionRequest) definition() models.FieldDefinition {
	d := models.FieldDefinition{
		FieldKey:        r.FieldKey,
		Name:            r.Name,
		FieldType:       r.FieldType,
		IsRequired:      r.IsRequired,
		DefaultValue:    r.DefaultValue,
		Options:         r.Options,
		IssueTypes:      r.IssueTypes,
		ProjectIDs:      r.ProjectIDs,
		VisibleInList:   r.VisibleInList,
		VisibleInDetail: true,
		Searchable:      r.Searchable,
		Filterable:      r.Filterable,
		DisplayOrder:    r.DisplayOrder,
	}
	if r.VisibleInDetail != nil {
		d.VisibleInDetail = *r.VisibleInDetail
	}
	return d
}

func (s *Server) handleListFieldDefinitions(c *gin.Context) {
	defs, err := s.fields.List(c.Request.Context(), s.workspaceOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"fields": defs})
}

// handleApplicableFields lists the definitions relevant to an issue type in a project.
func (s *Server) handleApplicableFields(c *gin.Context) {
	var q applicableFieldsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	defs, err := s.fields.ApplicableFields(c.Request.Context(), s.workspaceOf(c), q.IssueType, q.ProjectID)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"fields": defs})
}

func (s *Server) handleDefineField(c *gin.Context) {
	var req fieldDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	d, err := s.fields.Define(c.Request.Context(), s.workspaceOf(c), req.definition())
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"field": d})
}

func (s *Server) handleGetFieldDefinition(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	d, err := s.fields.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"field": d})
}

// handleUpdateFieldDefinition replaces a definition. Key and type are frozen
// once values exist.
func (s *Server) handleUpdateFieldDefinition(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req fieldDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	d := req.definition()
	d.ID = id
	updated, err := s.fields.UpdateDefinition(c.Request.Context(), d)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"field": updated})
}

func (s *Server) handleDeleteFieldDefinition(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.fields.DeleteDefinition(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
