package models

import (
	"strings"
	"time"
)

// Dimension selects the categorical attribute used for swimlanes or card colour.
// Built-in dimensions are priority, issue_type and assignee; "field:<key>" selects
// a custom field.
type Dimension string

const (
	DimensionNone      Dimension = ""
	DimensionPriority  Dimension = "priority"
	DimensionIssueType Dimension = "issue_type"
	DimensionAssignee  Dimension = "assignee"

	customDimensionPrefix = "field:"
)

// CustomDimension builds the dimension for a custom field key.
func CustomDimension(fieldKey string) Dimension {
	return Dimension(customDimensionPrefix + fieldKey)
}

// FieldKey returns the custom field key of a field dimension.
func (d Dimension) FieldKey() (string, bool) {
	key, ok := strings.CutPrefix(string(d), customDimensionPrefix)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// IsValid checks if the dimension is a built-in or a well-formed custom dimension.
func (d Dimension) IsValid() bool {
	switch d {
	case DimensionNone, DimensionPriority, DimensionIssueType, DimensionAssignee:
		return true
	}
	_, ok := d.FieldKey()
	return ok
}

// BoardColumn is an ordered column fed by a set of workflow statuses.
type BoardColumn struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	StatusMapping []string `json:"status_mapping"`
	WIPLimit      *int     `json:"wip_limit,omitempty"`
	Order         int      `json:"order"`
}

// Accepts reports whether status feeds this column.
func (c BoardColumn) Accepts(status string) bool {
	for _, s := range c.StatusMapping {
		if s == status {
			return true
		}
	}
	return false
}

// BoardConfig describes how a board renders a workflow.
type BoardConfig struct {
	ID          int64         `json:"id"`
	WorkspaceID string        `json:"workspace_id"`
	ProjectID   *int64        `json:"project_id,omitempty"`
	WorkflowID  int64         `json:"workflow_id"`
	Name        string        `json:"name"`
	Columns     []BoardColumn `json:"columns"`
	CardColorBy Dimension     `json:"card_color_by,omitempty"`
	SwimlanesBy Dimension     `json:"swimlanes_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Column returns the column with the given id.
func (b *BoardConfig) Column(id int64) (BoardColumn, bool) {
	for _, c := range b.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return BoardColumn{}, false
}

// Card is an issue as seen by a board: the task plus its custom field values keyed by field key.
type Card struct {
	Task   Task             `json:"task"`
	Values map[string]Value `json:"-"`
}
