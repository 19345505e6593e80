package bugs

import (
	"slices"

	"tracker/internal/models"
)

// Action is something an actor can attempt on a bug.
type Action string

const (
	ActionChangeStatus      Action = "change_status"
	ActionReplaceAttachment Action = "replace_attachment"
	ActionUploadOutput      Action = "upload_output"
	ActionComment           Action = "comment"
	ActionReopen            Action = "reopen"
)

// Role is the structural relation of an actor to a bug.
type Role string

const (
	RoleReporter Role = "reporter"
	RoleAssignee Role = "assignee"
)

// grant is one cell of the permission table.
type grant struct {
	// onlyIn restricts the grant to these statuses; empty means any status.
	onlyIn []models.BugStatus
	// notIn excludes these statuses.
	notIn []models.BugStatus
	// afterReporterComment requires the reporter to have spoken first.
	afterReporterComment bool
}

// permissionTable lists who may do what. A missing (action, role) cell is a denial.
var permissionTable = map[Action]map[Role]grant{
	ActionChangeStatus: {
		RoleAssignee: {},
	},
	ActionReplaceAttachment: {
		RoleReporter: {onlyIn: []models.BugStatus{models.BugOpen}},
	},
	ActionUploadOutput: {
		RoleAssignee: {onlyIn: []models.BugStatus{models.BugResolved, models.BugClosed}},
	},
	ActionComment: {
		RoleReporter: {},
		RoleAssignee: {notIn: []models.BugStatus{models.BugClosed}, afterReporterComment: true},
	},
	ActionReopen: {
		RoleReporter: {onlyIn: []models.BugStatus{models.BugClosed}},
	},
}

// RolesOf returns the structural roles actor holds on the bug.
func RolesOf(bug models.Bug, actor string) []Role {
	var roles []Role
	if actor == "" {
		return roles
	}
	if actor == bug.ReportedBy {
		roles = append(roles, RoleReporter)
	}
	if actor == bug.AssignedTo {
		roles = append(roles, RoleAssignee)
	}
	return roles
}

// Can reports whether actor may perform action on bug. reporterCommented
// tells whether the reporter has posted a human comment yet.
func Can(bug models.Bug, actor string, action Action, reporterCommented bool) bool {
	cells := permissionTable[action]
	for _, role := range RolesOf(bug, actor) {
		g, ok := cells[role]
		if !ok {
			continue
		}
		if len(g.onlyIn) > 0 && !slices.Contains(g.onlyIn, bug.Status) {
			continue
		}
		if slices.Contains(g.notIn, bug.Status) {
			continue
		}
		if g.afterReporterComment && !reporterCommented {
			continue
		}
		return true
	}
	return false
}
