package perm

import (
	"context"
	"time"

	"github.com/openfolio/identity/pkg/artefact"
	"github.com/openfolio/identity/pkg/group"
	"github.com/openfolio/identity/pkg/observability"
	"github.com/openfolio/identity/pkg/user"
	"github.com/openfolio/identity/pkg/view"
)

// Evaluator answers permission questions against the stored ownership and
// grant data. It holds no per-request state and is safe for concurrent use.
type Evaluator struct {
	users     *user.Store
	artefacts *artefact.Store
	views     *view.Store
	groups    *group.Store
	roles     *group.Resolver
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewEvaluator creates a permission evaluator. metrics may be nil.
func NewEvaluator(users *user.Store, artefacts *artefact.Store, views *view.Store, groups *group.Store, roles *group.Resolver, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{
		users:     users,
		artefacts: artefacts,
		views:     views,
		groups:    groups,
		roles:     roles,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (e *Evaluator) record(entity string, allowed bool) {
	if e.metrics != nil {
		e.metrics.RecordPermissionCheck(entity, allowed)
	}
}

// CanViewArtefact reports whether the caller may view the artefact. The
// cheap checks short-circuit in order: public-folder placement, then site
// admin / ownership / institution admin, then the site institution's public
// folder, and only then the group grant queries, which additionally require
// every ancestor to be viewable.
func (e *Evaluator) CanViewArtefact(ctx context.Context, u *user.User, a *artefact.Artefact) (bool, error) {
	allowed, err := e.canViewArtefact(ctx, u, a)
	if err != nil {
		return false, err
	}
	e.record("artefact", allowed)
	return allowed, nil
}

func (e *Evaluator) canViewArtefact(ctx context.Context, u *user.User, a *artefact.Artefact) (bool, error) {
	if u == nil {
		u = user.New()
	}

	// Content under an institution public folder is world-readable.
	under, err := e.artefacts.UnderPublicFolder(ctx, a)
	if err != nil {
		return false, err
	}
	if under || a.IsPublicFolder() {
		return true, nil
	}

	if u.Admin() {
		return true, nil
	}
	if u.ID() != 0 && a.Owner == u.ID() {
		return true, nil
	}
	if a.Institution != "" && u.IsInstitutionAdmin(a.Institution) {
		return true, nil
	}

	// The site institution's public folder and its direct children are
	// visible even before the folder contents are placed.
	if a.Institution == user.SiteInstitution {
		pub, err := e.artefacts.PublicFolderID(ctx, user.SiteInstitution)
		if err != nil {
			return false, err
		}
		if pub != 0 && (a.ID == pub || a.Parent == pub) {
			return true, nil
		}
	}

	if a.GroupID == 0 {
		return false, nil
	}

	// Group content: every ancestor must be viewable too.
	parent, err := e.artefacts.GetParent(ctx, a)
	if err != nil {
		return false, err
	}
	if parent != nil {
		ok, err := e.canViewArtefact(ctx, u, parent)
		if err != nil || !ok {
			return false, err
		}
	}

	if u.ID() != 0 && a.Author == u.ID() {
		return true, nil
	}

	role, err := e.roles.UserAccess(ctx, a.GroupID, u.ID())
	if err != nil {
		return false, err
	}
	if role != group.RoleNone {
		grant, err := e.artefacts.RoleGrant(ctx, a.ID, role)
		if err != nil {
			return false, err
		}
		if grant != nil && grant.View {
			return true, nil
		}
	}

	if u.ID() != 0 {
		ok, err := e.artefacts.UserCanViewGrant(ctx, a.ID, u.ID())
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}

// CanEditArtefact reports whether the caller may edit the artefact. Editing
// requires edit rights on the immediate parent folder but only view rights
// further up: you may add to a folder you can edit even when you merely see
// its enclosing folders.
func (e *Evaluator) CanEditArtefact(ctx context.Context, u *user.User, a *artefact.Artefact) (bool, error) {
	allowed, err := e.canEditArtefact(ctx, u, a, false)
	if err != nil {
		return false, err
	}
	e.record("artefact", allowed)
	return allowed, nil
}

func (e *Evaluator) canEditArtefact(ctx context.Context, u *user.User, a *artefact.Artefact, viewParent bool) (bool, error) {
	if u == nil {
		u = user.New()
	}

	parent, err := e.artefacts.GetParent(ctx, a)
	if err != nil {
		return false, err
	}
	if parent != nil {
		var ok bool
		if viewParent {
			ok, err = e.canViewArtefact(ctx, u, parent)
		} else {
			ok, err = e.canEditArtefact(ctx, u, parent, true)
		}
		if err != nil || !ok {
			return false, err
		}
	}

	if u.Admin() {
		return true, nil
	}
	if u.ID() != 0 && a.Owner == u.ID() {
		return true, nil
	}
	if a.Institution != "" && u.IsInstitutionAdmin(a.Institution) {
		return true, nil
	}

	if a.GroupID == 0 {
		return false, nil
	}

	role, err := e.roles.UserAccess(ctx, a.GroupID, u.ID())
	if err != nil {
		return false, err
	}
	if role == group.RoleNone {
		return false, nil
	}
	if role == group.RoleAdmin {
		return true, nil
	}

	g, err := e.groups.Get(ctx, a.GroupID)
	if err != nil {
		return false, err
	}
	if !g.WithinEditWindow(role, true, e.now()) {
		return false, nil
	}

	if u.ID() != 0 && a.Author == u.ID() {
		return true, nil
	}
	grant, err := e.artefacts.RoleGrant(ctx, a.ID, role)
	if err != nil {
		return false, err
	}
	return grant != nil && grant.Edit, nil
}

// CanPublishArtefact reports whether the caller may republish the artefact
// elsewhere.
func (e *Evaluator) CanPublishArtefact(ctx context.Context, u *user.User, a *artefact.Artefact) (bool, error) {
	allowed, err := e.canPublishArtefact(ctx, u, a)
	if err != nil {
		return false, err
	}
	e.record("artefact", allowed)
	return allowed, nil
}

func (e *Evaluator) canPublishArtefact(ctx context.Context, u *user.User, a *artefact.Artefact) (bool, error) {
	if u == nil {
		u = user.New()
	}

	if u.ID() != 0 && a.Owner == u.ID() {
		return true, nil
	}

	if a.Institution != "" {
		if a.Institution == user.SiteInstitution {
			return u.Admin(), nil
		}
		return u.InInstitution(a.Institution) || u.IsInstitutionAdmin(a.Institution), nil
	}

	if a.GroupID != 0 {
		if u.ID() != 0 && a.Author == u.ID() {
			return true, nil
		}
		role, err := e.roles.UserAccess(ctx, a.GroupID, u.ID())
		if err != nil {
			return false, err
		}
		if role == group.RoleNone {
			return false, nil
		}
		grant, err := e.artefacts.RoleGrant(ctx, a.ID, role)
		if err != nil {
			return false, err
		}
		return grant != nil && grant.Republish, nil
	}

	return false, nil
}

// CanEditView reports whether the caller may edit the view. A group
// homepage or a locked view is only editable by the group's admins, no
// matter what the group's editroles setting says.
func (e *Evaluator) CanEditView(ctx context.Context, u *user.User, v *view.View) (bool, error) {
	allowed, err := e.canEditView(ctx, u, v)
	if err != nil {
		return false, err
	}
	e.record("view", allowed)
	return allowed, nil
}

func (e *Evaluator) canEditView(ctx context.Context, u *user.User, v *view.View) (bool, error) {
	if u == nil {
		u = user.New()
	}

	if v.GroupID != 0 {
		role, err := e.roles.UserAccess(ctx, v.GroupID, u.ID())
		if err != nil {
			return false, err
		}
		if role == group.RoleNone {
			return false, nil
		}
		if v.Type == view.TypeGroupHomepage || v.Locked {
			return role == group.RoleAdmin, nil
		}
		g, err := e.groups.Get(ctx, v.GroupID)
		if err != nil {
			return false, err
		}
		return group.RoleCanEditViews(g, role, e.now()), nil
	}

	if v.Owner != 0 {
		return u.ID() != 0 && v.Owner == u.ID(), nil
	}
	if v.Institution != "" {
		return u.IsInstitutionAdmin(v.Institution), nil
	}
	// An unowned site-level view belongs to the site administrators.
	return u.Admin(), nil
}

// CanModerateView reports whether the caller may moderate the view.
func (e *Evaluator) CanModerateView(ctx context.Context, u *user.User, v *view.View) (bool, error) {
	allowed, err := e.canModerateView(ctx, u, v)
	if err != nil {
		return false, err
	}
	e.record("view", allowed)
	return allowed, nil
}

func (e *Evaluator) canModerateView(ctx context.Context, u *user.User, v *view.View) (bool, error) {
	if u == nil {
		u = user.New()
	}

	if v.Owner != 0 && u.ID() != 0 && v.Owner == u.ID() {
		return true, nil
	}
	if v.GroupID == 0 {
		return false, nil
	}

	role, err := e.roles.UserAccess(ctx, v.GroupID, u.ID())
	if err != nil {
		return false, err
	}
	if role == group.RoleNone {
		return false, nil
	}
	g, err := e.groups.Get(ctx, v.GroupID)
	if err != nil {
		return false, err
	}
	return group.RoleCanModerateViews(g, role), nil
}

// CanEditCollection reports whether the caller may edit the collection.
// Collections have no homepage/locked special case.
func (e *Evaluator) CanEditCollection(ctx context.Context, u *user.User, c *view.Collection) (bool, error) {
	allowed, err := e.canEditCollection(ctx, u, c)
	if err != nil {
		return false, err
	}
	e.record("collection", allowed)
	return allowed, nil
}

func (e *Evaluator) canEditCollection(ctx context.Context, u *user.User, c *view.Collection) (bool, error) {
	if u == nil {
		u = user.New()
	}

	if c.Owner != 0 {
		return u.ID() != 0 && c.Owner == u.ID(), nil
	}
	if c.GroupID != 0 {
		role, err := e.roles.UserAccess(ctx, c.GroupID, u.ID())
		if err != nil {
			return false, err
		}
		if role == group.RoleNone {
			return false, nil
		}
		g, err := e.groups.Get(ctx, c.GroupID)
		if err != nil {
			return false, err
		}
		return group.RoleCanEditViews(g, role, e.now()), nil
	}
	if c.Institution != "" {
		return u.IsInstitutionAdmin(c.Institution), nil
	}
	return false, nil
}

// CanViewArchive reports whether the caller may view an export archive.
// Beyond the owner, site admins and group admins of an archived group
// submission, an institution admin sharing any institution with the
// archive's owner may view it. That last check is deliberately loose.
func (e *Evaluator) CanViewArchive(ctx context.Context, u *user.User, a *view.Archive) (bool, error) {
	allowed, err := e.canViewArchive(ctx, u, a)
	if err != nil {
		return false, err
	}
	e.record("archive", allowed)
	return allowed, nil
}

func (e *Evaluator) canViewArchive(ctx context.Context, u *user.User, a *view.Archive) (bool, error) {
	if u == nil {
		u = user.New()
	}

	if u.ID() != 0 && a.UserID == u.ID() {
		return true, nil
	}
	if u.Admin() {
		return true, nil
	}

	if a.GroupID != 0 {
		role, err := e.roles.UserAccess(ctx, a.GroupID, u.ID())
		if err != nil {
			return false, err
		}
		if role == group.RoleAdmin {
			return true, nil
		}
		g, err := e.groups.Get(ctx, a.GroupID)
		if err != nil {
			return false, err
		}
		if u.IsInstitutionAdmin(g.Institution) {
			return true, nil
		}
	}

	if len(u.AdminInstitutions()) == 0 {
		return false, nil
	}
	owned, err := e.users.InstitutionsOf(ctx, a.UserID)
	if err != nil {
		return false, err
	}
	for _, institution := range u.AdminInstitutions() {
		if _, ok := owned[institution]; ok {
			return true, nil
		}
	}
	return false, nil
}
