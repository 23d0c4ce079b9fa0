// Package policy is the single authorization entry point. Every mutating or
// sensitive read operation asks Authorize before touching a store; handlers
// never compare roles themselves.
package policy

import (
	"github.com/docvault/backend/internal/models"
	"github.com/google/uuid"
)

type Action string

const (
	ActionViewDocument   Action = "document.view"
	ActionUploadDocument Action = "document.upload"
	ActionDeleteDocument Action = "document.delete"
	ActionCreateGroup    Action = "group.create"
	ActionUpdateGroup    Action = "group.update"
	ActionDeleteGroup    Action = "group.delete"
	ActionListGroupUsers Action = "group.list_users"
	ActionCreateUser     Action = "user.create"
	ActionUpdateUser     Action = "user.update"
	ActionDeleteUser     Action = "user.delete"
)

// Caller is the identity threaded through every policy and store call. A nil
// *Caller means an anonymous request.
type Caller struct {
	ID      uuid.UUID
	Role    models.UserRole
	GroupID *uuid.UUID
}

func CallerFrom(user *models.User) *Caller {
	if user == nil {
		return nil
	}
	return &Caller{ID: user.ID, Role: user.Role, GroupID: user.GroupID}
}

// DocumentTarget carries the scoping fields of the document an action is
// aimed at.
type DocumentTarget struct {
	GroupID      *uuid.UUID
	UploadedByID uuid.UUID
}

type GroupTarget struct {
	ID uuid.UUID
}

// UserTarget describes the user a CRUD action is aimed at. ChangesGroup is
// set when an update would modify the group field.
type UserTarget struct {
	ID           uuid.UUID
	GroupID      *uuid.UUID
	Bootstrap    bool
	ChangesGroup bool
}

// Target holds exactly the resource kind the action applies to; unused
// fields stay nil.
type Target struct {
	Document *DocumentTarget
	Group    *GroupTarget
	User     *UserTarget
}

type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Authorize decides whether caller may perform action on target. It is pure:
// all store state the decision needs arrives in the target snapshot. First
// matching rule wins; the bootstrap-admin guards outrank even the admin
// role.
func Authorize(caller *Caller, action Action, target Target) Decision {
	if t := target.User; t != nil && t.Bootstrap {
		if action == ActionDeleteUser {
			return Deny("the bootstrap administrator cannot be deleted")
		}
		if action == ActionUpdateUser && t.ChangesGroup {
			return Deny("the bootstrap administrator's group cannot be changed")
		}
	}

	if caller == nil {
		return Deny("authentication required")
	}

	if caller.Role == models.UserRoleAdmin {
		return Allow()
	}

	switch action {
	case ActionViewDocument:
		return authorizeViewDocument(caller, target.Document)
	case ActionUploadDocument:
		// Any authenticated caller may upload; the document is bound to the
		// caller's own group, so there is nothing to cross-check.
		return Allow()
	case ActionDeleteDocument:
		return authorizeDeleteDocument(caller, target.Document)
	case ActionCreateGroup, ActionDeleteGroup:
		return Deny("administrator privileges required")
	case ActionUpdateGroup:
		return authorizeUpdateGroup(caller, target.Group)
	case ActionListGroupUsers:
		return authorizeListGroupUsers(caller, target.Group)
	case ActionCreateUser:
		return authorizeCreateUser(caller, target.User)
	case ActionUpdateUser:
		return authorizeUpdateUser(caller, target.User)
	case ActionDeleteUser:
		return authorizeDeleteUser(caller, target.User)
	default:
		return Deny("unknown action")
	}
}

func authorizeViewDocument(caller *Caller, doc *DocumentTarget) Decision {
	if doc == nil {
		return Deny("missing document target")
	}
	if doc.UploadedByID == caller.ID {
		return Allow()
	}
	if doc.GroupID != nil && caller.GroupID != nil && *doc.GroupID == *caller.GroupID {
		return Allow()
	}
	return Deny("you do not have permission to view this document")
}

func authorizeDeleteDocument(caller *Caller, doc *DocumentTarget) Decision {
	if doc == nil {
		return Deny("missing document target")
	}
	if doc.UploadedByID == caller.ID {
		return Allow()
	}
	if caller.Role != models.UserRoleGroupAdmin {
		return Deny("only administrators can delete documents")
	}
	if doc.GroupID != nil && caller.GroupID != nil && *doc.GroupID == *caller.GroupID {
		return Allow()
	}
	return Deny("you do not have permission to delete this document")
}

func authorizeUpdateGroup(caller *Caller, group *GroupTarget) Decision {
	if group == nil {
		return Deny("missing group target")
	}
	if caller.Role != models.UserRoleGroupAdmin {
		return Deny("you do not have permission to update this group")
	}
	if caller.GroupID == nil || *caller.GroupID != group.ID {
		return Deny("you do not have permission to update this group")
	}
	return Allow()
}

// authorizeListGroupUsers implements the strict metadata-visibility variant:
// a plain user cannot read group details even for their own group.
func authorizeListGroupUsers(caller *Caller, group *GroupTarget) Decision {
	if group == nil {
		return Deny("missing group target")
	}
	if caller.GroupID == nil || *caller.GroupID != group.ID {
		return Deny("you do not have permission to view this group")
	}
	if caller.Role != models.UserRoleGroupAdmin {
		return Deny("regular users cannot view group details")
	}
	return Allow()
}

func authorizeCreateUser(caller *Caller, target *UserTarget) Decision {
	if target == nil {
		return Deny("missing user target")
	}
	if caller.GroupID == nil {
		return Deny("you do not have permission to create users")
	}
	if target.GroupID == nil || *target.GroupID != *caller.GroupID {
		return Deny("you can only create users in your own group")
	}
	return Allow()
}

func authorizeUpdateUser(caller *Caller, target *UserTarget) Decision {
	if target == nil {
		return Deny("missing user target")
	}
	if target.ChangesGroup {
		return Deny("only administrators can change group assignments")
	}
	if target.ID == caller.ID {
		return Allow()
	}
	if caller.GroupID != nil && target.GroupID != nil && *target.GroupID == *caller.GroupID {
		return Allow()
	}
	return Deny("you do not have permission to update this user")
}

func authorizeDeleteUser(caller *Caller, target *UserTarget) Decision {
	if target == nil {
		return Deny("missing user target")
	}
	if caller.GroupID != nil && target.GroupID != nil && *target.GroupID == *caller.GroupID {
		return Allow()
	}
	return Deny("you do not have permission to delete this user")
}
