package group

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/openfolio/identity/pkg/user"
)

// TypePlugin describes a group type: the roles it offers, which of those
// may moderate views, and who may create groups of this type.
type TypePlugin interface {
	Name() string
	Roles() []string
	ViewModeratingRoles() []string
	CanBeCreatedBy(u *user.User) bool
}

var (
	typesMu sync.RWMutex
	types   = make(map[string]TypePlugin)
	typeLog = logrus.StandardLogger()
)

// RegisterType adds a group-type plugin. Registering the same name twice
// replaces the previous plugin.
func RegisterType(p TypePlugin) {
	typesMu.Lock()
	defer typesMu.Unlock()

	if _, exists := types[p.Name()]; exists {
		typeLog.Warnf("Replacing group type plugin %q", p.Name())
	}
	types[p.Name()] = p
	typeLog.Infof("Registered group type plugin %q", p.Name())
}

// TypeFor returns the plugin handling the given group type.
func TypeFor(name string) (TypePlugin, error) {
	typesMu.RLock()
	defer typesMu.RUnlock()

	p, ok := types[name]
	if !ok {
		return nil, fmt.Errorf("no group type plugin registered for %q", name)
	}
	return p, nil
}

// standardType is the default open group type: admins and members, no
// moderation tier, creatable by any authenticated user.
type standardType struct{}

func (standardType) Name() string                  { return "standard" }
func (standardType) Roles() []string               { return []string{RoleAdmin, RoleMember} }
func (standardType) ViewModeratingRoles() []string { return nil }
func (standardType) CanBeCreatedBy(u *user.User) bool {
	return u != nil && u.ID() != 0
}

// courseType adds a tutor tier that moderates submitted views. Creating a
// course group requires staff or admin standing somewhere.
type courseType struct{}

func (courseType) Name() string                  { return "course" }
func (courseType) Roles() []string               { return []string{RoleAdmin, "tutor", RoleMember} }
func (courseType) ViewModeratingRoles() []string { return []string{"tutor"} }
func (courseType) CanBeCreatedBy(u *user.User) bool {
	if u == nil || u.ID() == 0 {
		return false
	}
	return u.Admin() || u.Staff() ||
		len(u.AdminInstitutions()) > 0 || len(u.StaffInstitutions()) > 0
}

func init() {
	RegisterType(standardType{})
	RegisterType(courseType{})
}
