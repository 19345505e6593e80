// Package board derives board columns and swimlanes from a workflow and a live issue set.
package board

import (
	"sort"

	"tracker/internal/models"
)

// UnmappedColumnID identifies the synthetic bucket of issues whose status feeds no column.
const UnmappedColumnID int64 = 0

// CardView is one issue placed on a board.
type CardView struct {
	Task     models.Task `json:"task"`
	ColumnID int64       `json:"column_id"`
	Color    string      `json:"color,omitempty"`
	Swimlane string      `json:"swimlane"`
}

// ColumnView is a rendered column. OverLimit is advisory at projection time.
type ColumnView struct {
	Column    models.BoardColumn `json:"column"`
	Cards     []CardView         `json:"cards"`
	Count     int                `json:"count"`
	OverLimit bool               `json:"over_limit"`
}

// Swimlane groups cards by the resolved value of the board's swimlane dimension.
type Swimlane struct {
	Key     string  `json:"key"`
	TaskIDs []int64 `json:"task_ids"`
}

// Warnings are configuration problems that do not prevent rendering.
type Warnings struct {
	// UnmappedStatuses are workflow statuses that feed no column.
	UnmappedStatuses []string `json:"unmapped_statuses,omitempty"`
	// AmbiguousStatuses feed more than one column; only the first is used.
	AmbiguousStatuses []string `json:"ambiguous_statuses,omitempty"`
	// UnknownStatuses appear in a column mapping but not in the workflow.
	UnknownStatuses []string `json:"unknown_statuses,omitempty"`
}

// Empty reports whether no warning is present.
func (w Warnings) Empty() bool {
	return len(w.UnmappedStatuses) == 0 && len(w.AmbiguousStatuses) == 0 && len(w.UnknownStatuses) == 0
}

// Projection is the read-only board structure handed to the presentation layer.
type Projection struct {
	BoardID   int64        `json:"board_id"`
	Columns   []ColumnView `json:"columns"`
	Unmapped  []CardView   `json:"unmapped"`
	Swimlanes []Swimlane   `json:"swimlanes"`
	Warnings  Warnings     `json:"warnings"`
}

// Column returns the view of a column by id.
func (p *Projection) Column(id int64) (*ColumnView, bool) {
	for i := range p.Columns {
		if p.Columns[i].Column.ID == id {
			return &p.Columns[i], true
		}
	}
	return nil, false
}

// ColumnOf returns the column a task was placed in, UnmappedColumnID when it
// sits in the unmapped bucket, and false when it is not on the board.
func (p *Projection) ColumnOf(taskID int64) (int64, bool) {
	for _, c := range p.Columns {
		for _, card := range c.Cards {
			if card.Task.ID == taskID {
				return c.Column.ID, true
			}
		}
	}
	for _, card := range p.Unmapped {
		if card.Task.ID == taskID {
			return UnmappedColumnID, true
		}
	}
	return 0, false
}

// Project places every card in the first column whose mapping contains its
// status. The result depends only on the inputs.
func Project(w *models.Workflow, cfg models.BoardConfig, cards []models.Card) Projection {
	columns := orderedColumns(cfg.Columns)

	sorted := make([]models.Card, len(cards))
	copy(sorted, cards)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Task, sorted[j].Task
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})

	p := Projection{
		BoardID:  cfg.ID,
		Columns:  make([]ColumnView, len(columns)),
		Unmapped: []CardView{},
		Warnings: Inspect(w, cfg),
	}
	for i, c := range columns {
		p.Columns[i] = ColumnView{Column: c, Cards: []CardView{}}
	}

	lanes := map[string][]int64{}
	for _, card := range sorted {
		view := CardView{
			Task:     card.Task,
			Color:    Resolve(cfg.CardColorBy, card),
			Swimlane: Resolve(cfg.SwimlanesBy, card),
		}
		lanes[view.Swimlane] = append(lanes[view.Swimlane], card.Task.ID)

		idx := columnIndex(columns, card.Task.Status)
		if idx < 0 {
			view.ColumnID = UnmappedColumnID
			p.Unmapped = append(p.Unmapped, view)
			continue
		}
		view.ColumnID = columns[idx].ID
		p.Columns[idx].Cards = append(p.Columns[idx].Cards, view)
	}

	for i := range p.Columns {
		col := &p.Columns[i]
		col.Count = len(col.Cards)
		col.OverLimit = col.Column.WIPLimit != nil && col.Count > *col.Column.WIPLimit
	}

	p.Swimlanes = make([]Swimlane, 0, len(lanes))
	for key, ids := range lanes {
		p.Swimlanes = append(p.Swimlanes, Swimlane{Key: key, TaskIDs: ids})
	}
	sort.Slice(p.Swimlanes, func(i, j int) bool {
		a, b := p.Swimlanes[i].Key, p.Swimlanes[j].Key
		if (a == "") != (b == "") {
			return b == ""
		}
		return a < b
	})
	return p
}

// Inspect reports mapping problems between a workflow and a board.
func Inspect(w *models.Workflow, cfg models.BoardConfig) Warnings {
	var warn Warnings
	feeds := map[string]int{}
	known := map[string]struct{}{}
	if w != nil {
		for _, s := range w.Statuses {
			known[s.Key] = struct{}{}
		}
	}
	unknown := map[string]struct{}{}
	for _, c := range orderedColumns(cfg.Columns) {
		for _, s := range c.StatusMapping {
			feeds[s]++
			if _, ok := known[s]; !ok && w != nil {
				if _, seen := unknown[s]; !seen {
					unknown[s] = struct{}{}
					warn.UnknownStatuses = append(warn.UnknownStatuses, s)
				}
			}
		}
	}
	if w != nil {
		for _, s := range w.Statuses {
			switch n := feeds[s.Key]; {
			case n == 0:
				warn.UnmappedStatuses = append(warn.UnmappedStatuses, s.Key)
			case n > 1:
				warn.AmbiguousStatuses = append(warn.AmbiguousStatuses, s.Key)
			}
		}
	}
	return warn
}

// Resolve returns the categorical value of a card along a dimension. An empty
// string means the card has no value.
func Resolve(d models.Dimension, card models.Card) string {
	switch d {
	case models.DimensionNone:
		return ""
	case models.DimensionPriority:
		return card.Task.Priority
	case models.DimensionIssueType:
		return card.Task.IssueType
	case models.DimensionAssignee:
		return card.Task.Assignee
	}
	key, ok := d.FieldKey()
	if !ok {
		return ""
	}
	v, ok := card.Values[key]
	if !ok || v == nil {
		return ""
	}
	return v.String()
}

func orderedColumns(cols []models.BoardColumn) []models.BoardColumn {
	out := make([]models.BoardColumn, len(cols))
	copy(out, cols)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func columnIndex(cols []models.BoardColumn, status string) int {
	for i, c := range cols {
		if c.Accepts(status) {
			return i
		}
	}
	return -1
}
