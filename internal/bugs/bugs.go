// Package bugs implements the fixed reporter/assignee bug workflow.
package bugs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"tracker/internal/models"
)

// Store persists bugs and their conversation.
type Store interface {
	CreateBug(ctx context.Context, b models.Bug) (models.Bug, error)
	GetBug(ctx context.Context, id int64) (models.Bug, error)
	ListBugs(ctx context.Context, workspaceID string) ([]models.Bug, error)
	// CompareAndSetBugStatus moves the bug from -> to only if its stored status
	// is still from, writing resolvedAt in the same statement.
	CompareAndSetBugStatus(ctx context.Context, id int64, from, to models.BugStatus, resolvedAt *time.Time) (models.Bug, error)
	// ReopenBug flips a Closed bug to Open, clears resolvedAt, and only then
	// appends the system comment, all in one transaction.
	ReopenBug(ctx context.Context, id int64, comment models.BugComment) (models.Bug, models.BugComment, error)
	// SetBugFile writes the attachment or output reference if the bug status is one of allowed.
	SetBugFile(ctx context.Context, id int64, kind FileKind, url string, allowed []models.BugStatus) (models.Bug, error)
	AddBugComment(ctx context.Context, c models.BugComment) (models.BugComment, error)
	ListBugComments(ctx context.Context, bugID int64) ([]models.BugComment, error)
}

// ActivitySink receives one record per bug status change.
type ActivitySink interface {
	RecordActivity(ctx context.Context, rec models.ActivityRecord) error
}

// FileKind selects which attachment reference a write targets.
type FileKind string

const (
	FileAttachment FileKind = "file"
	FileOutput     FileKind = "output"
)

// forward is the assignee path. Reopen is handled separately.
var forward = map[models.BugStatus]models.BugStatus{
	models.BugOpen:       models.BugInProgress,
	models.BugInProgress: models.BugResolved,
	models.BugResolved:   models.BugClosed,
}

// CanChangeStatus reports whether from -> to is on the assignee path.
func CanChangeStatus(from, to models.BugStatus) bool {
	next, ok := forward[from]
	return ok && next == to
}

// Service applies the bug workflow rules.
type Service struct {
	store  Store
	sink   ActivitySink
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a bug service. sink may be nil.
func NewService(store Store, sink ActivitySink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, sink: sink, logger: logger, now: time.Now}
}

// Create files a new Open bug.
func (s *Service) Create(ctx context.Context, b models.Bug) (models.Bug, error) {
	b.Title = strings.TrimSpace(b.Title)
	b.Description = strings.TrimSpace(b.Description)
	if b.Title == "" {
		return models.Bug{}, models.NewValidationErrorf("bug title must not be empty")
	}
	if strings.TrimSpace(b.ReportedBy) == "" {
		return models.Bug{}, models.NewValidationErrorf("bug reporter must not be empty")
	}
	if strings.TrimSpace(b.AssignedTo) == "" {
		return models.Bug{}, models.NewValidationErrorf("bug assignee must not be empty")
	}
	b.Status = models.BugOpen
	b.ResolvedAt = nil
	b.OutputFileURL = ""
	return s.store.CreateBug(ctx, b)
}

// Get returns a bug by id.
func (s *Service) Get(ctx context.Context, id int64) (models.Bug, error) {
	return s.store.GetBug(ctx, id)
}

// List returns the bugs of a workspace.
func (s *Service) List(ctx context.Context, workspaceID string) ([]models.Bug, error) {
	return s.store.ListBugs(ctx, workspaceID)
}

// Comments returns the conversation of a bug in order.
func (s *Service) Comments(ctx context.Context, bugID int64) ([]models.BugComment, error) {
	if _, err := s.store.GetBug(ctx, bugID); err != nil {
		return nil, err
	}
	return s.store.ListBugComments(ctx, bugID)
}

// ChangeStatus moves the bug one step along Open -> In Progress -> Resolved -> Closed.
// Only the assignee may do it.
func (s *Service) ChangeStatus(ctx context.Context, bugID int64, to models.BugStatus, actor string) (models.Bug, error) {
	bug, err := s.store.GetBug(ctx, bugID)
	if err != nil {
		return models.Bug{}, err
	}
	if !Can(bug, actor, ActionChangeStatus, false) {
		return bug, models.NewForbiddenErrorf("only the assignee can change the status of bug %d", bug.ID)
	}
	if !to.IsValid() || !CanChangeStatus(bug.Status, to) {
		return bug, models.Wrapf(models.ErrNoSuchTransition, "bug %d cannot move from %s to %s", bug.ID, bug.Status, to)
	}

	resolvedAt := bug.ResolvedAt
	if to.IsResolved() && resolvedAt == nil {
		now := s.now().UTC()
		resolvedAt = &now
	}
	updated, err := s.store.CompareAndSetBugStatus(ctx, bug.ID, bug.Status, to, resolvedAt)
	if err != nil {
		return bug, err
	}
	if err := s.emit(ctx, bug, to, actor); err != nil {
		return updated, err
	}
	return updated, nil
}

// Reopen moves a Closed bug back to Open. Only the reporter may do it. The
// engine appends a system comment once the status has flipped.
func (s *Service) Reopen(ctx context.Context, bugID int64, actor string) (models.Bug, models.BugComment, error) {
	bug, err := s.store.GetBug(ctx, bugID)
	if err != nil {
		return models.Bug{}, models.BugComment{}, err
	}
	if !Can(bug, actor, ActionReopen, false) {
		return bug, models.BugComment{}, models.NewForbiddenErrorf("only the reporter can reopen bug %d once it is closed", bug.ID)
	}

	note := models.BugComment{
		BugID:           bug.ID,
		AuthorID:        actor,
		Body:            fmt.Sprintf("Bug reopened by %s", actor),
		IsSystemComment: true,
		CreatedAt:       s.now().UTC(),
	}
	reopened, comment, err := s.store.ReopenBug(ctx, bug.ID, note)
	if err != nil {
		return bug, models.BugComment{}, err
	}
	if err := s.emit(ctx, bug, models.BugOpen, actor); err != nil {
		return reopened, comment, err
	}
	return reopened, comment, nil
}

// ReplaceAttachment sets the reporter's attachment reference while the bug is Open.
func (s *Service) ReplaceAttachment(ctx context.Context, bugID int64, actor, url string) (models.Bug, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return models.Bug{}, models.NewValidationErrorf("attachment reference must not be empty")
	}
	return s.setAttachment(ctx, bugID, actor, url)
}

// RemoveAttachment clears the reporter's attachment while the bug is Open.
func (s *Service) RemoveAttachment(ctx context.Context, bugID int64, actor string) (models.Bug, error) {
	return s.setAttachment(ctx, bugID, actor, "")
}

func (s *Service) setAttachment(ctx context.Context, bugID int64, actor, url string) (models.Bug, error) {
	bug, err := s.store.GetBug(ctx, bugID)
	if err != nil {
		return models.Bug{}, err
	}
	if !Can(bug, actor, ActionReplaceAttachment, false) {
		return bug, models.NewForbiddenErrorf("only the reporter can change the attachment of bug %d while it is open", bug.ID)
	}
	return s.store.SetBugFile(ctx, bug.ID, FileAttachment, url, []models.BugStatus{models.BugOpen})
}

// UploadOutput sets the assignee's resolution output once the bug is Resolved or Closed.
func (s *Service) UploadOutput(ctx context.Context, bugID int64, actor, url string) (models.Bug, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return models.Bug{}, models.NewValidationErrorf("output file reference must not be empty")
	}
	bug, err := s.store.GetBug(ctx, bugID)
	if err != nil {
		return models.Bug{}, err
	}
	if !Can(bug, actor, ActionUploadOutput, false) {
		return bug, models.NewForbiddenErrorf("only the assignee can upload output for bug %d once it is resolved", bug.ID)
	}
	return s.store.SetBugFile(ctx, bug.ID, FileOutput, url, []models.BugStatus{models.BugResolved, models.BugClosed})
}

// AddComment appends a human comment. The reporter may always comment; the
// assignee only after the reporter's first comment and while the bug is not Closed.
func (s *Service) AddComment(ctx context.Context, bugID int64, actor, body string) (models.BugComment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.BugComment{}, models.NewValidationErrorf("comment must not be empty")
	}
	bug, err := s.store.GetBug(ctx, bugID)
	if err != nil {
		return models.BugComment{}, err
	}
	comments, err := s.store.ListBugComments(ctx, bug.ID)
	if err != nil {
		return models.BugComment{}, err
	}
	if !Can(bug, actor, ActionComment, reporterCommented(bug, comments)) {
		return models.BugComment{}, models.NewForbiddenErrorf("%s cannot comment on bug %d now", actor, bug.ID)
	}
	return s.store.AddBugComment(ctx, models.BugComment{
		BugID:     bug.ID,
		AuthorID:  actor,
		Body:      body,
		CreatedAt: s.now().UTC(),
	})
}

func reporterCommented(bug models.Bug, comments []models.BugComment) bool {
	for _, c := range comments {
		if !c.IsSystemComment && c.AuthorID == bug.ReportedBy {
			return true
		}
	}
	return false
}

func (s *Service) emit(ctx context.Context, bug models.Bug, to models.BugStatus, actor string) error {
	s.logger.Debug("bug status changed", "bug", bug.ID, "from", bug.Status, "to", to, "actor", actor)
	if s.sink == nil {
		return nil
	}
	err := s.sink.RecordActivity(ctx, models.ActivityRecord{
		ID:         uuid.NewString(),
		ActionType: models.ActionStatusChanged,
		EntityType: models.EntityBug,
		EntityID:   bug.ID,
		UserID:     actor,
		Summary:    fmt.Sprintf("Status changed from %s to %s", bug.Status, to),
		Changes: models.FieldChange{
			Field:    "status",
			OldValue: string(bug.Status),
			NewValue: string(to),
		},
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}
