package bugs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tracker/internal/models"
)

func TestRolesOf(t *testing.T) {
	bug := models.Bug{ReportedBy: "rita", AssignedTo: "alex"}

	assert.Equal(t, []Role{RoleReporter}, RolesOf(bug, "rita"))
	assert.Equal(t, []Role{RoleAssignee}, RolesOf(bug, "alex"))
	assert.Empty(t, RolesOf(bug, "mallory"))
	assert.Empty(t, RolesOf(bug, ""))

	self := models.Bug{ReportedBy: "sam", AssignedTo: "sam"}
	assert.Equal(t, []Role{RoleReporter, RoleAssignee}, RolesOf(self, "sam"))
}

func TestCan(t *testing.T) {
	statuses := []models.BugStatus{models.BugOpen, models.BugInProgress, models.BugResolved, models.BugClosed}

	cases := []struct {
		action            Action
		actor             string
		reporterCommented bool
		allowed           []models.BugStatus
	}{
		{action: ActionChangeStatus, actor: "alex", allowed: statuses},
		{action: ActionChangeStatus, actor: "rita"},
		{action: ActionReplaceAttachment, actor: "rita", allowed: []models.BugStatus{models.BugOpen}},
		{action: ActionReplaceAttachment, actor: "alex"},
		{action: ActionUploadOutput, actor: "alex", allowed: []models.BugStatus{models.BugResolved, models.BugClosed}},
		{action: ActionUploadOutput, actor: "rita"},
		{action: ActionComment, actor: "rita", allowed: statuses},
		{action: ActionComment, actor: "alex"},
		{action: ActionComment, actor: "alex", reporterCommented: true,
			allowed: []models.BugStatus{models.BugOpen, models.BugInProgress, models.BugResolved}},
		{action: ActionReopen, actor: "rita", allowed: []models.BugStatus{models.BugClosed}},
		{action: ActionReopen, actor: "alex"},
		{action: ActionComment, actor: "mallory", reporterCommented: true},
	}

	for _, tc := range cases {
		for _, st := range statuses {
			bug := models.Bug{ReportedBy: "rita", AssignedTo: "alex", Status: st}
			want := false
			for _, a := range tc.allowed {
				if a == st {
					want = true
				}
			}
			assert.Equal(t, want, Can(bug, tc.actor, tc.action, tc.reporterCommented),
				"%s by %s in %s (reporter commented: %v)", tc.action, tc.actor, st, tc.reporterCommented)
		}
	}
}

func TestCanChangeStatus(t *testing.T) {
	assert.True(t, CanChangeStatus(models.BugOpen, models.BugInProgress))
	assert.True(t, CanChangeStatus(models.BugInProgress, models.BugResolved))
	assert.True(t, CanChangeStatus(models.BugResolved, models.BugClosed))

	assert.False(t, CanChangeStatus(models.BugOpen, models.BugResolved), "no skipping")
	assert.False(t, CanChangeStatus(models.BugResolved, models.BugInProgress), "no going back")
	assert.False(t, CanChangeStatus(models.BugClosed, models.BugOpen), "reopen is separate")
}
