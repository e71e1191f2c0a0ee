package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserDefaults(t *testing.T) {
	u := New()

	assert.Equal(t, int64(0), u.ID())
	assert.True(t, u.Active())
	assert.False(t, u.Admin())
	assert.False(t, u.Suspended())

	_, limited := u.Quota()
	assert.False(t, limited, "a fresh record has no quota limit")
	assert.Equal(t, int64(0), u.QuotaUsed())
}

func TestUnknownAttributeRejected(t *testing.T) {
	u := New()

	_, err := u.Get("nosuchfield")
	require.Error(t, err)

	err = u.Set("nosuchfield", 1)
	require.Error(t, err)
}

func TestQuotaUsedNotDirectlyAssignable(t *testing.T) {
	u := New()

	err := u.Set(FieldQuotaUsed, int64(100))
	require.Error(t, err)
	assert.True(t, IsInvalidOperation(err))
	assert.Equal(t, int64(0), u.QuotaUsed())
}

func TestQuotaAdd(t *testing.T) {
	u := New()
	require.NoError(t, u.Set(FieldQuota, int64(1000)))

	require.NoError(t, u.QuotaAdd(400))
	assert.Equal(t, int64(400), u.QuotaUsed())

	require.NoError(t, u.QuotaAdd(600))
	assert.Equal(t, int64(1000), u.QuotaUsed())
}

func TestQuotaAddExceededLeavesUsageUnchanged(t *testing.T) {
	u := New()
	require.NoError(t, u.Set(FieldQuota, int64(1000)))
	require.NoError(t, u.QuotaAdd(900))

	err := u.QuotaAdd(200)
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))
	assert.Equal(t, int64(900), u.QuotaUsed(), "failed debit must not change usage")

	var qerr *QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, int64(200), qerr.Requested)
	assert.Equal(t, int64(900), qerr.Used)
	assert.Equal(t, int64(1000), qerr.Limit)
}

func TestQuotaAddUnlimited(t *testing.T) {
	u := New()

	require.NoError(t, u.QuotaAdd(1<<40))
	assert.Equal(t, int64(1<<40), u.QuotaUsed())
}

func TestQuotaAddNegative(t *testing.T) {
	u := New()

	err := u.QuotaAdd(-1)
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
}

func TestQuotaRemoveFloorsAtZero(t *testing.T) {
	u := New()
	require.NoError(t, u.QuotaAdd(100))

	require.NoError(t, u.QuotaRemove(250))
	assert.Equal(t, int64(0), u.QuotaUsed())
}

func TestDisplayName(t *testing.T) {
	u := New()
	require.NoError(t, u.Set(FieldUsername, "bob"))
	assert.Equal(t, "bob", u.DisplayName())

	require.NoError(t, u.Set(FieldFirstName, "Bob"))
	require.NoError(t, u.Set(FieldLastName, "Jones"))
	assert.Equal(t, "Bob Jones", u.DisplayName())

	require.NoError(t, u.Set(FieldPreferredName, "Bobby"))
	assert.Equal(t, "Bobby", u.DisplayName())
}

func TestSuspendedAndExpired(t *testing.T) {
	u := New()
	assert.False(t, u.Suspended())
	assert.False(t, u.Expired(time.Now()))

	require.NoError(t, u.Set(FieldSuspendedAt, time.Now()))
	assert.True(t, u.Suspended())

	require.NoError(t, u.Set(FieldExpiry, time.Now().Add(-time.Hour)))
	assert.True(t, u.Expired(time.Now()))

	require.NoError(t, u.Set(FieldExpiry, time.Now().Add(time.Hour)))
	assert.False(t, u.Expired(time.Now()))
}

func TestIsInstitutionAdmin(t *testing.T) {
	u := New()
	require.NoError(t, u.Set(FieldInstitutions, map[string]InstitutionMembership{
		"uni-a": {Institution: "uni-a", Admin: true},
		"uni-b": {Institution: "uni-b"},
	}))

	assert.True(t, u.IsInstitutionAdmin("uni-a"))
	assert.False(t, u.IsInstitutionAdmin("uni-b"))
	assert.False(t, u.IsInstitutionAdmin("uni-c"))

	// A site admin administers every institution.
	require.NoError(t, u.Set(FieldAdmin, true))
	assert.True(t, u.IsInstitutionAdmin("uni-c"))
}

func TestIsAdminForUser(t *testing.T) {
	siteAdmin := New()
	require.NoError(t, siteAdmin.Set(FieldAdmin, true))

	instAdmin := New()
	require.NoError(t, instAdmin.Set(FieldInstitutions, map[string]InstitutionMembership{
		"uni-a": {Institution: "uni-a", Admin: true},
	}))
	require.NoError(t, instAdmin.Set(FieldAdminInstitutions, []string{"uni-a"}))

	member := New()
	require.NoError(t, member.Set(FieldInstitutions, map[string]InstitutionMembership{
		"uni-a": {Institution: "uni-a"},
	}))

	outsider := New()

	assert.True(t, IsAdminForUser(siteAdmin, member))
	assert.True(t, IsAdminForUser(siteAdmin, instAdmin))
	assert.True(t, IsAdminForUser(instAdmin, member))
	assert.False(t, IsAdminForUser(instAdmin, outsider), "no shared institution")
	assert.False(t, IsAdminForUser(instAdmin, siteAdmin), "site admins are off limits")
	assert.False(t, IsAdminForUser(member, member))
}

func TestGenerations(t *testing.T) {
	gens := NewGenerations()

	assert.Equal(t, int64(0), gens.Current(7))
	gens.Bump(7)
	gens.Bump(7)
	assert.Equal(t, int64(2), gens.Current(7))
	assert.Equal(t, int64(0), gens.Current(8), "bumps are per user")
}

func TestInstitutionsStale(t *testing.T) {
	gens := NewGenerations()
	u := New()
	require.NoError(t, u.Set(FieldID, int64(7)))

	assert.False(t, u.InstitutionsStale(gens))

	gens.Bump(7)
	assert.True(t, u.InstitutionsStale(gens))

	require.NoError(t, u.Set(FieldInstitutionsGen, gens.Current(7)))
	assert.False(t, u.InstitutionsStale(gens))
}

func TestDirtyTracking(t *testing.T) {
	u := New()
	assert.False(t, u.Dirty())

	require.NoError(t, u.Set(FieldEmail, "bob@example.org"))
	assert.True(t, u.Dirty())

	u.Attrs().MarkClean()
	assert.False(t, u.Dirty())

	// Derived caches and session fields never dirty the record.
	require.NoError(t, u.Set(FieldGroupRoles, map[int64]string{1: "member"}))
	require.NoError(t, u.Set(FieldSessKey, "abc"))
	assert.False(t, u.Dirty())
}
