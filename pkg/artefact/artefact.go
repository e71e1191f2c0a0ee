package artefact

import (
	"errors"
	"fmt"
	"time"
)

// Artefact types with special treatment in permission checks. Plugins add
// concrete content types (file, image, blogpost); the tree logic only
// distinguishes folders.
const (
	TypeFolder       = "folder"
	TypePublicFolder = "publicfolder"
)

// Artefact is one node of the artefact tree. Exactly one of Owner, GroupID
// and Institution is set, naming the owning principal. Author is the
// original uploader, which may differ from the owner for group content.
type Artefact struct {
	ID          int64
	Type        string
	Title       string
	Owner       int64
	GroupID     int64
	Institution string
	Author      int64
	Parent      int64
	CreatedAt   time.Time
}

// IsPublicFolder reports whether this artefact is an institution's public
// folder.
func (a *Artefact) IsPublicFolder() bool {
	return a.Type == TypePublicFolder && a.Institution != ""
}

// RoleGrant is a per-role access grant on a group-owned artefact.
type RoleGrant struct {
	Artefact  int64
	Role      string
	View      bool
	Edit      bool
	Republish bool
}

// UnknownArtefactError indicates a lookup for an artefact that does not
// exist.
type UnknownArtefactError struct {
	ID int64
}

func (e *UnknownArtefactError) Error() string {
	return fmt.Sprintf("unknown artefact %d", e.ID)
}

// IsUnknownArtefact checks whether an error is an UnknownArtefactError.
func IsUnknownArtefact(err error) bool {
	var uae *UnknownArtefactError
	return errors.As(err, &uae)
}
