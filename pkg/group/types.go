package group

import (
	"errors"
	"fmt"
	"time"
)

// Role names from the closed role set. Group-type plugins may define
// additional roles (e.g. tutor); admin and member are universal.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleNone   = ""
)

// EditRoles settings controlling which roles may edit group views.
const (
	EditRolesAll       = "all"
	EditRolesNotMember = "notmember"
	EditRolesAdmin     = "admin"
)

// Group is a collaboration group. EditWindowStart/End bound the period in
// which non-admin members may edit group content; a zero bound is open on
// that side.
type Group struct {
	ID              int64
	Name            string
	Type            string
	Institution     string
	EditRoles       string
	EditWindowStart time.Time
	EditWindowEnd   time.Time
	Deleted         bool
}

// WithinEditWindow reports whether the group's edit window is open at now
// for the given role. Admins are exempt unless adminAlwaysOk is false. The
// window is half-open: [start, end).
func (g *Group) WithinEditWindow(role string, adminAlwaysOk bool, now time.Time) bool {
	if adminAlwaysOk && role == RoleAdmin {
		return true
	}
	if !g.EditWindowStart.IsZero() && now.Before(g.EditWindowStart) {
		return false
	}
	if !g.EditWindowEnd.IsZero() && !now.Before(g.EditWindowEnd) {
		return false
	}
	return true
}

// UnknownGroupError indicates a lookup for a group that does not exist or
// is deleted.
type UnknownGroupError struct {
	ID int64
}

func (e *UnknownGroupError) Error() string {
	return fmt.Sprintf("unknown group %d", e.ID)
}

// IsUnknownGroup checks whether an error is an UnknownGroupError.
func IsUnknownGroup(err error) bool {
	var uge *UnknownGroupError
	return errors.As(err, &uge)
}
