package perm

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfolio/identity/pkg/artefact"
	"github.com/openfolio/identity/pkg/group"
	"github.com/openfolio/identity/pkg/user"
	"github.com/openfolio/identity/pkg/view"
)

func newMockEvaluator(t *testing.T) (*Evaluator, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	groups := group.NewStore(db, user.NewGenerations())
	e := NewEvaluator(
		user.NewStore(db),
		artefact.NewStore(db),
		view.NewStore(db),
		groups,
		group.NewResolver(groups, nil),
		nil,
	)
	return e, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

func artefactRow(a *artefact.Artefact) *sqlmock.Rows {
	owner := nullID(a.Owner)
	groupID := nullID(a.GroupID)
	author := nullID(a.Author)
	parent := nullID(a.Parent)
	var institution interface{}
	if a.Institution != "" {
		institution = a.Institution
	}
	return sqlmock.NewRows([]string{
		"id", "artefact_type", "title", "owner", "group_id", "institution", "author", "parent", "created_at",
	}).AddRow(a.ID, a.Type, a.Title, owner, groupID, institution, author, parent, time.Now())
}

func nullID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

func expectArtefact(mock sqlmock.Sqlmock, a *artefact.Artefact) {
	mock.ExpectQuery("SELECT (.+) FROM artefact\\s+WHERE id = \\$1").
		WithArgs(a.ID).
		WillReturnRows(artefactRow(a))
}

func expectRole(mock sqlmock.Sqlmock, groupID, userID int64, role string) {
	rows := sqlmock.NewRows([]string{"role"})
	if role != group.RoleNone {
		rows.AddRow(role)
	}
	mock.ExpectQuery("SELECT role FROM group_member").
		WithArgs(groupID, userID).
		WillReturnRows(rows)
}

// Artefact F is owned by user 3 and sits under a folder placed inside the
// institution public folder. User 99 owns nothing and administers nothing,
// yet sees F purely through the public-folder rule.
func TestCanViewArtefactPublicFolder(t *testing.T) {
	e, mock, done := newMockEvaluator(t)
	defer done()

	f := &artefact.Artefact{ID: 10, Type: "file", Owner: 3, Parent: 5}
	folder := &artefact.Artefact{ID: 5, Type: artefact.TypeFolder, Owner: 3, Parent: 2}
	public := &artefact.Artefact{ID: 2, Type: artefact.TypePublicFolder, Institution: user.SiteInstitution}

	// The ancestor walk reaches the public folder; no further queries run.
	expectArtefact(mock, folder)
	expectArtefact(mock, public)

	stranger := user.New()
	require.NoError(t, stranger.Set(user.FieldID, int64(99)))

	ok, err := e.CanViewArtefact(context.Background(), stranger, f)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanViewArtefactOwnerShortCircuits(t *testing.T) {
	e, _, done := newMockEvaluator(t)
	defer done()

	a := &artefact.Artefact{ID: 10, Type: "file", Owner: 3}

	owner := user.New()
	require.NoError(t, owner.Set(user.FieldID, int64(3)))

	// Only the (empty) ancestor walk runs; ownership answers without any
	// group grant query.
	ok, err := e.CanViewArtefact(context.Background(), owner, a)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanViewArtefactAnonymousDenied(t *testing.T) {
	e, _, done := newMockEvaluator(t)
	defer done()

	a := &artefact.Artefact{ID: 10, Type: "file", Owner: 3}

	ok, err := e.CanViewArtefact(context.Background(), nil, a)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanViewArtefactSitePublicFolderChild(t *testing.T) {
	e, mock, done := newMockEvaluator(t)
	defer done()

	// Direct child of the site institution's public folder, before any
	// content placement.
	a := &artefact.Artefact{ID: 10, Type: artefact.TypeFolder, Institution: user.SiteInstitution, Parent: 2}
	public := &artefact.Artefact{ID: 2, Type: artefact.TypePublicFolder, Institution: user.SiteInstitution}

	expectArtefact(mock, public)

	stranger := user.New()
	require.NoError(t, stranger.Set(user.FieldID, int64(99)))

	ok, err := e.CanViewArtefact(context.Background(), stranger, a)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanViewArtefactGroupGrant(t *testing.T) {
	e, mock, done := newMockEvaluator(t)
	defer done()

	a := &artefact.Artefact{ID: 10, Type: "file", GroupID: 42, Author: 3}

	viewer := user.New()
	require.NoError(t, viewer.Set(user.FieldID, int64(7)))

	expectRole(mock, 42, 7, group.RoleMember)
	mock.ExpectQuery("SELECT (.+) FROM artefact_access_role").
		WithArgs(int64(10), group.RoleMember).
		WillReturnRows(sqlmock.NewRows([]string{"artefact", "role", "can_view", "can_edit", "can_republish"}).
			AddRow(int64(10), group.RoleMember, true, false, false))

	ok, err := e.CanViewArtefact(context.Background(), viewer, a)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanViewArtefactGroupAuthor(t *testing.T) {
	e, _, done := newMockEvaluator(t)
	defer done()

	a := &artefact.Artefact{ID: 10, Type: "file", GroupID: 42, Author: 3}

	author := user.New()
	require.NoError(t, author.Set(user.FieldID, int64(3)))

	ok, err := e.CanViewArtefact(context.Background(), author, a)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanEditArtefactRequiresOpenWindow(t *testing.T) {
	e, mock, done := newMockEvaluator(t)
	defer done()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	a := &artefact.Artefact{ID: 10, Type: "file", GroupID: 42, Author: 9}

	member := user.New()
	require.NoError(t, member.Set(user.FieldID, int64(7)))

	expectRole(mock, 42, 7, group.RoleMember)
	mock.ExpectQuery("SELECT (.+) FROM folio_group").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "group_type", "institution", "edit_roles",
			"edit_window_start", "edit_window_end", "deleted",
		}).AddRow(int64(42), "g", "standard", "uni-a", group.EditRolesAll,
			nil, now.Add(-time.Hour), false))

	ok, err := e.CanEditArtefact(context.Background(), member, a)
	require.NoError(t, err)
	assert.False(t, ok, "edit window closed an hour ago")
}

func TestCanEditArtefactGroupAdminBypassesWindow(t *testing.T) {
	e, mock, done := newMockEvaluator(t)
	defer done()

	a := &artefact.Artefact{ID: 10, Type: "file", GroupID: 42}

	admin := user.New()
	require.NoError(t, admin.Set(user.FieldID, int64(7)))

	expectRole(mock, 42, 7, group.RoleAdmin)

	ok, err := e.CanEditArtefact(context.Background(), admin, a)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanPublishArtefact(t *testing.T) {
	e, _, done := newMockEvaluator(t)
	defer done()

	siteOwned := &artefact.Artefact{ID: 10, Institution: user.SiteInstitution}
	instOwned := &artefact.Artefact{ID: 11, Institution: "uni-a"}

	member := user.New()
	require.NoError(t, member.Set(user.FieldID, int64(7)))
	require.NoError(t, member.Set(user.FieldInstitutions, map[string]user.InstitutionMembership{
		"uni-a": {Institution: "uni-a"},
	}))

	ok, err := e.CanPublishArtefact(context.Background(), member, siteOwned)
	require.NoError(t, err)
	assert.False(t, ok, "site-owned content needs a site admin")

	ok, err = e.CanPublishArtefact(context.Background(), member, instOwned)
	require.NoError(t, err)
	assert.True(t, ok, "institution membership suffices")
}

func TestCanEditViewLockedNeedsGroupAdmin(t *testing.T) {
	e, mock, done := newMockEvaluator(t)
	defer done()

	locked := &view.View{ID: 5, Type: view.TypePortfolio, GroupID: 42, Locked: true}

	member := user.New()
	require.NoError(t, member.Set(user.FieldID, int64(7)))

	expectRole(mock, 42, 7, group.RoleMember)

	ok, err := e.CanEditView(context.Background(), member, locked)
	require.NoError(t, err)
	assert.False(t, ok, "editroles never unlocks a locked view for a member")
}

func TestCanEditViewGroupHomepage(t *testing.T) {
	e, mock, done := newMockEvaluator(t)
	defer done()

	homepage := &view.View{ID: 5, Type: view.TypeGroupHomepage, GroupID: 42}

	admin := user.New()
	require.NoError(t, admin.Set(user.FieldID, int64(7)))

	expectRole(mock, 42, 7, group.RoleAdmin)

	ok, err := e.CanEditView(context.Background(), admin, homepage)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanEditViewOwnerAndInstitution(t *testing.T) {
	e, _, done := newMockEvaluator(t)
	defer done()

	owned := &view.View{ID: 5, Type: view.TypePortfolio, Owner: 7}
	instOwned := &view.View{ID: 6, Type: view.TypePortfolio, Institution: "uni-a"}
	siteView := &view.View{ID: 8, Type: view.TypePortfolio}

	u := user.New()
	require.NoError(t, u.Set(user.FieldID, int64(7)))

	ok, err := e.CanEditView(context.Background(), u, owned)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.CanEditView(context.Background(), u, instOwned)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.CanEditView(context.Background(), u, siteView)
	require.NoError(t, err)
	assert.False(t, ok, "unowned site view needs a site admin")

	require.NoError(t, u.Set(user.FieldAdmin, true))
	ok, err = e.CanEditView(context.Background(), u, siteView)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanModerateView(t *testing.T) {
	e, mock, done := newMockEvaluator(t)
	defer done()

	v := &view.View{ID: 5, Type: view.TypePortfolio, GroupID: 42}

	tutor := user.New()
	require.NoError(t, tutor.Set(user.FieldID, int64(7)))

	expectRole(mock, 42, 7, "tutor")
	mock.ExpectQuery("SELECT (.+) FROM folio_group").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "group_type", "institution", "edit_roles",
			"edit_window_start", "edit_window_end", "deleted",
		}).AddRow(int64(42), "g", "course", "uni-a", group.EditRolesAll, nil, nil, false))

	ok, err := e.CanModerateView(context.Background(), tutor, v)
	require.NoError(t, err)
	assert.True(t, ok, "tutors moderate course group views")
}

func TestCanEditCollectionNoLockedCase(t *testing.T) {
	e, mock, done := newMockEvaluator(t)
	defer done()

	c := &view.Collection{ID: 5, GroupID: 42}

	member := user.New()
	require.NoError(t, member.Set(user.FieldID, int64(7)))

	expectRole(mock, 42, 7, group.RoleMember)
	mock.ExpectQuery("SELECT (.+) FROM folio_group").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "group_type", "institution", "edit_roles",
			"edit_window_start", "edit_window_end", "deleted",
		}).AddRow(int64(42), "g", "standard", "uni-a", group.EditRolesAll, nil, nil, false))

	ok, err := e.CanEditCollection(context.Background(), member, c)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanViewArchiveLooseInstitutionFallback(t *testing.T) {
	e, mock, done := newMockEvaluator(t)
	defer done()

	archive := &view.Archive{ID: 3, UserID: 9, Filename: "export.zip"}

	instAdmin := user.New()
	require.NoError(t, instAdmin.Set(user.FieldID, int64(7)))
	require.NoError(t, instAdmin.Set(user.FieldAdminInstitutions, []string{"uni-a"}))

	// The archive owner shares uni-a with the caller.
	mock.ExpectQuery("SELECT (.+) FROM usr_institution").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{
			"institution", "display_name", "admin", "staff", "theme", "suspended", "register_allowed",
		}).AddRow("uni-a", "University A", false, false, "", false, true))

	ok, err := e.CanViewArchive(context.Background(), instAdmin, archive)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanViewArchiveDenied(t *testing.T) {
	e, _, done := newMockEvaluator(t)
	defer done()

	archive := &view.Archive{ID: 3, UserID: 9, Filename: "export.zip"}

	stranger := user.New()
	require.NoError(t, stranger.Set(user.FieldID, int64(7)))

	ok, err := e.CanViewArchive(context.Background(), stranger, archive)
	require.NoError(t, err)
	assert.False(t, ok)
}
