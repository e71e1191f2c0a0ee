package user

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfolio/identity/pkg/auth"
)

var userCols = []string{
	"id", "username", "password", "salt", "email", "first_name", "last_name", "preferred_name",
	"admin", "staff", "active", "deleted", "suspended_at", "suspended_reason",
	"expiry", "expiry_mail_sent", "last_login", "last_last_login", "last_access",
	"login_tries", "quota", "quota_used", "unread", "auth_instance_id", "url_id", "theme", "created_at",
}

func userRow(id int64, username string) *sqlmock.Rows {
	return sqlmock.NewRows(userCols).AddRow(
		id, username, "$2a$10$hash", "", username+"@example.org", "", "", "",
		false, false, true, false, nil, nil,
		nil, false, nil, nil, nil,
		0, int64(1000), int64(0), 0, int64(1), nil, nil, time.Now(),
	)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewStore(db), mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

func TestFindByID(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM usr WHERE id = \\$1 AND NOT deleted").
		WithArgs(int64(7)).
		WillReturnRows(userRow(7, "bob"))

	u, err := store.FindByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID())
	assert.Equal(t, "bob", u.Username())
	assert.False(t, u.Dirty(), "a freshly loaded record is clean")

	limit, ok := u.Quota()
	assert.True(t, ok)
	assert.Equal(t, int64(1000), limit)
}

func TestFindByIDNotFound(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM usr WHERE id = \\$1 AND NOT deleted").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := store.FindByID(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, IsUnknownPrincipal(err))
}

func TestFindByUsernameCaseInsensitive(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM usr WHERE LOWER\\(username\\) = LOWER\\(\\$1\\)").
		WithArgs("BoB").
		WillReturnRows(userRow(7, "bob"))

	u, err := store.FindByUsername(context.Background(), "BoB")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Username())
}

func TestFindByInstanceAndUsernameRemoteFallsBackToParent(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	child := &auth.Instance{ID: 3, Institution: "uni-a"}
	parent := &auth.Instance{ID: 1, Institution: "uni-a"}

	// Leg one: no remote mapping under the child instance.
	mock.ExpectQuery("SELECT (.+) FROM auth_remote_user").
		WithArgs(int64(3), "bob@remote").
		WillReturnRows(sqlmock.NewRows(userCols))

	// Leg two: native username under the parent.
	mock.ExpectQuery("SELECT (.+) FROM usr WHERE auth_instance_id = \\$1").
		WithArgs(int64(1), "bob@remote").
		WillReturnRows(userRow(7, "bob@remote"))

	u, err := store.FindByInstanceAndUsername(context.Background(), child, parent, "bob@remote", true)
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID())
}

func TestFindByInstanceAndUsernameRemoteNoParent(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	child := &auth.Instance{ID: 3, Institution: "uni-a"}

	mock.ExpectQuery("SELECT (.+) FROM auth_remote_user").
		WithArgs(int64(3), "bob@remote").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := store.FindByInstanceAndUsername(context.Background(), child, nil, "bob@remote", true)
	require.Error(t, err)
	assert.True(t, IsUnknownPrincipal(err))
}

func TestStoreQuotaAdd(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT quota, quota_used FROM usr WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"quota", "quota_used"}).AddRow(int64(1000), int64(400)))
	mock.ExpectExec("UPDATE usr SET quota_used = quota_used \\+ \\$1").
		WithArgs(int64(500), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.QuotaAdd(context.Background(), 7, 500))
}

func TestStoreQuotaAddExceededRollsBack(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT quota, quota_used FROM usr WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"quota", "quota_used"}).AddRow(int64(1000), int64(900)))
	mock.ExpectRollback()

	err := store.QuotaAdd(context.Background(), 7, 200)
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))
}

func TestStoreQuotaAddUnlimited(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT quota, quota_used FROM usr WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"quota", "quota_used"}).AddRow(nil, int64(900)))
	mock.ExpectExec("UPDATE usr SET quota_used = quota_used \\+ \\$1").
		WithArgs(int64(1<<40), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.QuotaAdd(context.Background(), 7, 1<<40))
}

func TestCommitCleanIsNoOp(t *testing.T) {
	store, _, done := newMockStore(t)
	defer done()

	u := New()
	require.NoError(t, store.Commit(context.Background(), u))
}

func TestCommitUpdateReloadsBackgroundFields(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM usr WHERE id = \\$1 AND NOT deleted").
		WithArgs(int64(7)).
		WillReturnRows(userRow(7, "bob"))

	u, err := store.FindByID(context.Background(), 7)
	require.NoError(t, err)
	require.NoError(t, u.Set(FieldEmail, "new@example.org"))

	// The background fields come back fresh: a job suspended the account
	// and shrank the quota behind our back.
	suspendedAt := time.Now().Add(-time.Hour)
	mock.ExpectQuery("SELECT active, deleted, suspended_at").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"active", "deleted", "suspended_at", "suspended_reason", "expiry", "quota", "unread",
		}).AddRow(true, false, suspendedAt, "spam", nil, int64(500), 3))
	mock.ExpectExec("UPDATE usr SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Commit(context.Background(), u))

	assert.True(t, u.Suspended())
	limit, _ := u.Quota()
	assert.Equal(t, int64(500), limit)
	assert.False(t, u.Dirty())
}

func TestCommitInsertAssignsID(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	u := New()
	require.NoError(t, u.Set(FieldUsername, "alice"))

	mock.ExpectQuery("INSERT INTO usr").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	require.NoError(t, store.Commit(context.Background(), u))
	assert.Equal(t, int64(42), u.ID())
	assert.False(t, u.Dirty())
}

func TestCreateReservesURLSlug(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	u := New()
	require.NoError(t, u.Set(FieldUsername, "Bob Jones"))

	// "bob-jones" is taken, "bob-jones-1" is free.
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM usr WHERE url_id = \\$1\\)").
		WithArgs("bob-jones").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM usr WHERE url_id = \\$1\\)").
		WithArgs("bob-jones-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO usr").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	require.NoError(t, store.Create(context.Background(), u, true))

	urlID, err := u.Get(FieldURLID)
	require.NoError(t, err)
	assert.Equal(t, "bob-jones-1", urlID)
}

func TestIncrementLoginTries(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec("UPDATE usr SET login_tries = login_tries \\+ 1 WHERE id = \\$1").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.IncrementLoginTries(context.Background(), 7))
}

func TestCanDeleteSelfSoleSiteAdmin(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	admin := New()
	require.NoError(t, admin.Set(FieldAdmin, true))

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM usr WHERE admin AND NOT deleted").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := store.CanDeleteSelf(context.Background(), admin)
	require.NoError(t, err)
	assert.False(t, ok, "the last site admin cannot delete itself")
}

func TestCanDeleteSelfInstitutionAdmin(t *testing.T) {
	store, _, done := newMockStore(t)
	defer done()

	u := New()
	require.NoError(t, u.Set(FieldAdminInstitutions, []string{"uni-a"}))

	ok, err := store.CanDeleteSelf(context.Background(), u)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetInstitutions(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	u := New()
	require.NoError(t, u.Set(FieldID, int64(7)))

	gens := NewGenerations()
	gens.Bump(7)

	mock.ExpectQuery("SELECT (.+) FROM usr_institution").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"institution", "display_name", "admin", "staff", "theme", "suspended", "register_allowed",
		}).
			AddRow("uni-b", "University B", false, true, "ocean", false, true).
			AddRow("uni-a", "University A", true, false, "raw", false, true))

	require.NoError(t, store.ResetInstitutions(context.Background(), u, gens, false))

	assert.Equal(t, []string{"uni-a"}, u.AdminInstitutions())
	assert.Equal(t, []string{"uni-b"}, u.StaffInstitutions())
	assert.False(t, u.InstitutionsStale(gens))

	// Deterministic tie-break: no personal theme and no auth instance, so
	// the lexicographically smallest themed institution wins.
	theme := u.InstitutionTheme()
	require.NotNil(t, theme)
	assert.Equal(t, "raw", theme.Name)
	assert.Equal(t, "uni-a", theme.Institution)
}

func TestResetGroupRoles(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	u := New()
	require.NoError(t, u.Set(FieldID, int64(7)))
	gens := NewGenerations()

	mock.ExpectQuery("SELECT gm.group_id, gm.role").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "role"}).
			AddRow(int64(1), "admin").
			AddRow(int64(2), "member"))

	require.NoError(t, store.ResetGroupRoles(context.Background(), u, gens))

	roles := u.GroupRoles()
	assert.Equal(t, "admin", roles[1])
	assert.Equal(t, "member", roles[2])
}

func TestFindByMobileTokenConsumesToken(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT usr FROM usr_mobile_token WHERE token = \\$1").
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"usr"}).AddRow(int64(7)))
	mock.ExpectQuery("SELECT (.+) FROM usr").
		WithArgs(int64(7), "bob").
		WillReturnRows(userRow(7, "bob"))
	mock.ExpectExec("DELETE FROM usr_mobile_token WHERE token = \\$1").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u, err := store.FindByMobileToken(context.Background(), "tok-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID())
}
