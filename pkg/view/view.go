package view

import (
	"errors"
	"fmt"
	"time"
)

// View types. Profile and dashboard are the special per-user views
// installed automatically at first login; a group homepage belongs to a
// group and is only editable by its admins.
const (
	TypePortfolio     = "portfolio"
	TypeProfile       = "profile"
	TypeDashboard     = "dashboard"
	TypeGroupHomepage = "grouphomepage"
)

// View is a composed page. Exactly one of Owner, GroupID and Institution
// is set. A locked view is under submission and may only be edited by a
// group admin.
type View struct {
	ID          int64
	Title       string
	Type        string
	Owner       int64
	GroupID     int64
	Institution string
	Locked      bool
	CreatedAt   time.Time
}

// Special reports whether the view is one of the auto-installed per-user
// views.
func (v *View) Special() bool {
	return v.Type == TypeProfile || v.Type == TypeDashboard
}

// Collection is an ordered set of views sharing access rules. Collections
// cannot be locked the way views can.
type Collection struct {
	ID          int64
	Name        string
	Owner       int64
	GroupID     int64
	Institution string
	CreatedAt   time.Time
}

// Archive is a generated portfolio export. GroupID is set when the export
// was taken of group content.
type Archive struct {
	ID        int64
	UserID    int64
	GroupID   int64
	Filename  string
	CreatedAt time.Time
}

// UnknownViewError indicates a lookup for a view that does not exist.
type UnknownViewError struct {
	ID int64
}

func (e *UnknownViewError) Error() string {
	return fmt.Sprintf("unknown view %d", e.ID)
}

// IsUnknownView checks whether an error is an UnknownViewError.
func IsUnknownView(err error) bool {
	var uve *UnknownViewError
	return errors.As(err, &uve)
}
