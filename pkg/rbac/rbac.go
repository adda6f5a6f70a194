// Package rbac provides the permission checks of bot commands.
package rbac

import (
	"errors"

	"github.com/NicolasHaas/partyvc/pkg/model"
)

// Role is what an actor is relative to a session.
type Role int

const (
	RoleMember Role = iota // anyone without special standing
	RoleCreator
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleCreator:
		return "creator"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Permission is a privileged bot action.
type Permission int

const (
	PermCloseSession Permission = iota + 1
	PermPruneSessions
)

var ErrPermissionDenied = errors.New("permission denied")

// permissionMatrix maps roles to their allowed permissions.
var permissionMatrix = map[Role]map[Permission]bool{
	RoleAdmin: {
		PermCloseSession:  true,
		PermPruneSessions: true,
	},
	RoleCreator: {
		PermCloseSession: true,
	},
	RoleMember: {
		// Joining and listing members need no permission
	},
}

// Actor is the member invoking a command. Admin is the platform's
// administrator flag for the member.
type Actor struct {
	MemberID string
	Admin    bool
}

// RoleOf returns the actor's role for sess. sess may be nil for commands
// that do not target a session.
func RoleOf(a Actor, sess *model.Session) Role {
	if a.Admin {
		return RoleAdmin
	}
	if sess != nil && sess.CreatorID == a.MemberID {
		return RoleCreator
	}
	return RoleMember
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := permissionMatrix[role]
	if !ok {
		return false
	}
	return perms[perm]
}

// Require returns ErrPermissionDenied, wrapped with the permission name,
// if the actor may not perform perm on sess.
func Require(a Actor, sess *model.Session, perm Permission) error {
	if HasPermission(RoleOf(a, sess), perm) {
		return nil
	}
	return &DeniedError{Perm: perm}
}

// DeniedError reports the permission an actor lacked.
type DeniedError struct {
	Perm Permission
}

func (e *DeniedError) Error() string {
	return "permission denied: " + permName(e.Perm) + " requires higher role"
}

func (e *DeniedError) Unwrap() error { return ErrPermissionDenied }

func permName(p Permission) string {
	switch p {
	case PermCloseSession:
		return "close_session"
	case PermPruneSessions:
		return "db_cleanup"
	default:
		return "unknown"
	}
}
