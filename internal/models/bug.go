package models

import "time"

// BugStatus is one of the four fixed bug statuses.
type BugStatus string

const (
	BugOpen       BugStatus = "Open"
	BugInProgress BugStatus = "In Progress"
	BugResolved   BugStatus = "Resolved"
	BugClosed     BugStatus = "Closed"
)

// IsValid checks if the status is one of the fixed bug statuses.
func (s BugStatus) IsValid() bool {
	switch s {
	case BugOpen, BugInProgress, BugResolved, BugClosed:
		return true
	}
	return false
}

// IsResolved reports whether resolvedAt must be set while in this status.
func (s BugStatus) IsResolved() bool {
	return s == BugResolved || s == BugClosed
}

// Bug is a defect report with a reporter and an assignee.
type Bug struct {
	ID            int64      `json:"id"`
	WorkspaceID   string     `json:"workspace_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Status        BugStatus  `json:"status"`
	AssignedTo    string     `json:"assigned_to"`
	ReportedBy    string     `json:"reported_by"`
	FileURL       string     `json:"file_url,omitempty"`
	OutputFileURL string     `json:"output_file_url,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// BugComment is one append-only entry of a bug conversation.
type BugComment struct {
	ID              int64     `json:"id"`
	BugID           int64     `json:"bug_id"`
	AuthorID        string    `json:"author_id"`
	Body            string    `json:"body"`
	IsSystemComment bool      `json:"is_system_comment"`
	CreatedAt       time.Time `json:"created_at"`
}
