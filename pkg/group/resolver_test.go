package group

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfolio/identity/pkg/user"
)

func newMockResolver(t *testing.T) (*Resolver, *Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewStore(db, user.NewGenerations())
	return NewResolver(store, nil), store, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

func expectRole(mock sqlmock.Sqlmock, groupID, userID int64, role string) {
	rows := sqlmock.NewRows([]string{"role"})
	if role != RoleNone {
		rows.AddRow(role)
	}
	mock.ExpectQuery("SELECT role FROM group_member").
		WithArgs(groupID, userID).
		WillReturnRows(rows)
}

func expectAdminCount(mock sqlmock.Sqlmock, groupID int64, count int) {
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM group_member").
		WithArgs(groupID, RoleAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func TestUserAccessMemoized(t *testing.T) {
	resolver, _, mock, done := newMockResolver(t)
	defer done()

	// One query serves both lookups.
	expectRole(mock, 42, 7, RoleMember)

	role, err := resolver.UserAccess(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, RoleMember, role)

	role, err = resolver.UserAccess(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, RoleMember, role)
}

func TestUserAccessNonMember(t *testing.T) {
	resolver, _, mock, done := newMockResolver(t)
	defer done()

	expectRole(mock, 42, 9, RoleNone)

	role, err := resolver.UserAccess(context.Background(), 42, 9)
	require.NoError(t, err)
	assert.Equal(t, RoleNone, role)
}

func TestRefreshBypassesCache(t *testing.T) {
	resolver, _, mock, done := newMockResolver(t)
	defer done()

	expectRole(mock, 42, 7, RoleMember)
	expectRole(mock, 42, 7, RoleAdmin)

	role, err := resolver.UserAccess(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, RoleMember, role)

	role, err = resolver.Refresh(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
}

func TestIsOnlyAdmin(t *testing.T) {
	resolver, _, mock, done := newMockResolver(t)
	defer done()

	expectRole(mock, 42, 7, RoleAdmin)
	expectAdminCount(mock, 42, 1)

	only, err := resolver.IsOnlyAdmin(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.True(t, only)

	// A non-admin member is never the only admin; no count query happens.
	expectRole(mock, 42, 8, RoleMember)
	only, err = resolver.IsOnlyAdmin(context.Background(), 42, 8)
	require.NoError(t, err)
	assert.False(t, only)
}

// bob is the sole admin of group 42; carol is a member. bob cannot change
// role. Once dave joins as a second admin, bob can.
func TestSoleAdminRoleChange(t *testing.T) {
	resolver, store, mock, done := newMockResolver(t)
	defer done()

	expectRole(mock, 42, 1, RoleAdmin) // bob, memoized below
	expectAdminCount(mock, 42, 1)

	ok, err := resolver.CanChangeRole(context.Background(), 42, 1, RoleMember)
	require.NoError(t, err)
	assert.False(t, ok, "sole admin must not be able to step down")

	mock.ExpectExec("INSERT INTO group_member").
		WithArgs(int64(42), int64(3), RoleAdmin).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.AddMember(context.Background(), 42, 3, RoleAdmin))

	expectAdminCount(mock, 42, 2)
	ok, err = resolver.CanChangeRole(context.Background(), 42, 1, RoleMember)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanChangeRoleNonMember(t *testing.T) {
	resolver, _, mock, done := newMockResolver(t)
	defer done()

	expectRole(mock, 42, 9, RoleNone)

	ok, err := resolver.CanChangeRole(context.Background(), 42, 9, RoleMember)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMembershipMutationsBumpGeneration(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	gens := user.NewGenerations()
	store := NewStore(db, gens)

	mock.ExpectExec("INSERT INTO group_member").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE group_member SET role").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM group_member").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.AddMember(context.Background(), 42, 7, RoleMember))
	require.NoError(t, store.UpdateMemberRole(context.Background(), 42, 7, RoleAdmin))
	require.NoError(t, store.RemoveMember(context.Background(), 42, 7))

	assert.Equal(t, int64(3), gens.Current(7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinEditWindow(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	open := &Group{ID: 1}
	assert.True(t, open.WithinEditWindow(RoleMember, true, now), "unbounded window is always open")

	bounded := &Group{
		EditWindowStart: now.Add(-time.Hour),
		EditWindowEnd:   now.Add(time.Hour),
	}
	assert.True(t, bounded.WithinEditWindow(RoleMember, true, now))
	assert.False(t, bounded.WithinEditWindow(RoleMember, true, now.Add(2*time.Hour)))
	assert.False(t, bounded.WithinEditWindow(RoleMember, true, now.Add(-2*time.Hour)))

	// Half-open: the end instant itself is outside.
	assert.False(t, bounded.WithinEditWindow(RoleMember, true, bounded.EditWindowEnd))
	assert.True(t, bounded.WithinEditWindow(RoleMember, true, bounded.EditWindowStart))

	// Admins bypass a closed window unless told otherwise.
	assert.True(t, bounded.WithinEditWindow(RoleAdmin, true, now.Add(2*time.Hour)))
	assert.False(t, bounded.WithinEditWindow(RoleAdmin, false, now.Add(2*time.Hour)))

	startOnly := &Group{EditWindowStart: now.Add(time.Hour)}
	assert.False(t, startOnly.WithinEditWindow(RoleMember, true, now))
	assert.True(t, startOnly.WithinEditWindow(RoleMember, true, now.Add(2*time.Hour)))
}

func TestRoleCanEditViews(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	all := &Group{EditRoles: EditRolesAll}
	notMember := &Group{EditRoles: EditRolesNotMember}
	adminOnly := &Group{EditRoles: EditRolesAdmin}

	assert.True(t, RoleCanEditViews(all, RoleAdmin, now))
	assert.True(t, RoleCanEditViews(adminOnly, RoleAdmin, now))

	assert.True(t, RoleCanEditViews(all, RoleMember, now))
	assert.False(t, RoleCanEditViews(notMember, RoleMember, now))
	assert.False(t, RoleCanEditViews(adminOnly, RoleMember, now))

	assert.True(t, RoleCanEditViews(all, "tutor", now))
	assert.True(t, RoleCanEditViews(notMember, "tutor", now))
	assert.False(t, RoleCanEditViews(adminOnly, "tutor", now))

	assert.False(t, RoleCanEditViews(all, RoleNone, now))

	// A closed window blocks everyone but the admin.
	closed := &Group{
		EditRoles:     EditRolesAll,
		EditWindowEnd: now.Add(-time.Hour),
	}
	assert.False(t, RoleCanEditViews(closed, RoleMember, now))
	assert.False(t, RoleCanEditViews(closed, "tutor", now))
	assert.True(t, RoleCanEditViews(closed, RoleAdmin, now))
}

func TestRoleCanModerateViews(t *testing.T) {
	course := &Group{Type: "course"}
	standard := &Group{Type: "standard"}

	assert.True(t, RoleCanModerateViews(course, RoleAdmin))
	assert.True(t, RoleCanModerateViews(course, "tutor"))
	assert.False(t, RoleCanModerateViews(course, RoleMember))

	assert.True(t, RoleCanModerateViews(standard, RoleAdmin))
	assert.False(t, RoleCanModerateViews(standard, RoleMember))

	unknown := &Group{Type: "nosuchtype"}
	assert.True(t, RoleCanModerateViews(unknown, RoleAdmin))
	assert.False(t, RoleCanModerateViews(unknown, "tutor"))
}

func TestGroupTypePlugins(t *testing.T) {
	course, err := TypeFor("course")
	require.NoError(t, err)
	assert.Contains(t, course.Roles(), "tutor")

	anonymous := user.New()
	member := user.New()
	require.NoError(t, member.Set(user.FieldID, int64(7)))
	staff := user.New()
	require.NoError(t, staff.Set(user.FieldID, int64(8)))
	require.NoError(t, staff.Set(user.FieldStaff, true))

	standard, err := TypeFor("standard")
	require.NoError(t, err)
	assert.False(t, standard.CanBeCreatedBy(anonymous))
	assert.True(t, standard.CanBeCreatedBy(member))

	assert.False(t, course.CanBeCreatedBy(member))
	assert.True(t, course.CanBeCreatedBy(staff))

	_, err = TypeFor("nosuchtype")
	require.Error(t, err)
}
