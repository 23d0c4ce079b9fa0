package policy

import (
	"github.com/docvault/backend/internal/models"
	"github.com/google/uuid"
)

// DocumentScope describes which documents a caller may list. Exactly one of
// the three shapes applies: everything, group-or-own, or own-only.
type DocumentScope struct {
	All        bool
	GroupID    *uuid.UUID
	UploaderID uuid.UUID
}

// DocumentListScope never denies: every authenticated caller may list, the
// scope just shrinks with their privileges.
func DocumentListScope(caller *Caller) DocumentScope {
	if caller.Role == models.UserRoleAdmin {
		return DocumentScope{All: true}
	}
	return DocumentScope{GroupID: caller.GroupID, UploaderID: caller.ID}
}

// UserScope describes which users a caller may list. Empty means the caller
// sees nobody (an ungrouped non-admin).
type UserScope struct {
	All     bool
	GroupID *uuid.UUID
	Empty   bool
}

func UserListScope(caller *Caller) UserScope {
	if caller.Role == models.UserRoleAdmin {
		return UserScope{All: true}
	}
	if caller.GroupID == nil {
		return UserScope{Empty: true}
	}
	return UserScope{GroupID: caller.GroupID}
}

// GroupScope describes which groups a caller may list. Denied carries a
// reason when the caller may not list groups at all (plain users, under the
// strict metadata-visibility variant).
type GroupScope struct {
	All     bool
	GroupID *uuid.UUID
	Empty   bool
	Denied  string
}

func GroupListScope(caller *Caller) GroupScope {
	switch caller.Role {
	case models.UserRoleAdmin:
		return GroupScope{All: true}
	case models.UserRoleGroupAdmin:
		if caller.GroupID == nil {
			return GroupScope{Empty: true}
		}
		return GroupScope{GroupID: caller.GroupID}
	default:
		return GroupScope{Denied: "you do not have permission to view groups"}
	}
}

// CanViewUser covers the single-user read path: admin, self, or same group.
func CanViewUser(caller *Caller, target *UserTarget) Decision {
	if caller == nil {
		return Deny("authentication required")
	}
	if caller.Role == models.UserRoleAdmin || target.ID == caller.ID {
		return Allow()
	}
	if caller.GroupID != nil && target.GroupID != nil && *target.GroupID == *caller.GroupID {
		return Allow()
	}
	return Deny("you do not have permission to view this user")
}
