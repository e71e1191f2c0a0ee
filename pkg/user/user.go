package user

import (
	"time"

	"github.com/openfolio/identity/pkg/attr"
)

// User is one principal's identity record.
type User struct {
	attrs *attr.Store
}

// New creates an unpersisted record with every field at its default.
func New() *User {
	return &User{attrs: attr.NewStore(Schema())}
}

// Get reads an attribute by name, returning its default when unset.
func (u *User) Get(name string) (interface{}, error) {
	return u.attrs.Get(name)
}

// Set writes an attribute by name. Direct assignment of quotaused is
// forbidden so every quota mutation goes through the checked add/remove
// path.
func (u *User) Set(name string, value interface{}) error {
	if name == FieldQuotaUsed {
		return &InvalidOperationError{Reason: "quotaused must be mutated via QuotaAdd/QuotaRemove"}
	}
	return u.attrs.Set(name, value)
}

// Attrs exposes the underlying store for callers that persist or snapshot
// the whole record.
func (u *User) Attrs() *attr.Store {
	return u.attrs
}

// Dirty reports whether unsaved changes exist.
func (u *User) Dirty() bool {
	return u.attrs.Dirty()
}

func (u *User) boolAttr(name string) bool {
	v, _ := u.attrs.Bool(name)
	return v
}

func (u *User) int64Attr(name string) int64 {
	v, _ := u.attrs.Int64(name)
	return v
}

func (u *User) stringAttr(name string) string {
	v, _ := u.attrs.String(name)
	return v
}

func (u *User) timeAttr(name string) time.Time {
	v, _ := u.attrs.Time(name)
	return v
}

// ID returns the account id; 0 for an unpersisted or anonymous record.
func (u *User) ID() int64 { return u.int64Attr(FieldID) }

// Username returns the login name.
func (u *User) Username() string { return u.stringAttr(FieldUsername) }

// Admin reports site-wide administrator status.
func (u *User) Admin() bool { return u.boolAttr(FieldAdmin) }

// Staff reports site-wide staff status.
func (u *User) Staff() bool { return u.boolAttr(FieldStaff) }

// Active reports whether the account may log in.
func (u *User) Active() bool { return u.boolAttr(FieldActive) }

// Deleted reports the soft-deletion flag.
func (u *User) Deleted() bool { return u.boolAttr(FieldDeleted) }

// Suspended reports whether a suspension timestamp is set.
func (u *User) Suspended() bool { return !u.timeAttr(FieldSuspendedAt).IsZero() }

// Expired reports whether the account expiry has passed.
func (u *User) Expired(now time.Time) bool {
	expiry := u.timeAttr(FieldExpiry)
	return !expiry.IsZero() && expiry.Before(now)
}

// LoginTries returns the consecutive failed-login counter.
func (u *User) LoginTries() int { return int(u.int64Attr(FieldLoginTries)) }

// AuthInstanceID returns the id of the auth instance owning this account.
func (u *User) AuthInstanceID() int64 { return u.int64Attr(FieldAuthInstance) }

// DisplayName is the preferred name when set, else "first last", else the
// username.
func (u *User) DisplayName() string {
	if name := u.stringAttr(FieldPreferredName); name != "" {
		return name
	}
	first, last := u.stringAttr(FieldFirstName), u.stringAttr(FieldLastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	}
	return u.stringAttr(FieldUsername)
}

// Quota returns the storage limit and whether one is set. An unset quota
// means the site default has not been applied yet.
func (u *User) Quota() (int64, bool) {
	v, _ := u.attrs.Get(FieldQuota)
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// QuotaUsed returns the running usage total.
func (u *User) QuotaUsed() int64 { return u.int64Attr(FieldQuotaUsed) }

// Institutions returns the cached institution membership map.
func (u *User) Institutions() map[string]InstitutionMembership {
	v, _ := u.attrs.Get(FieldInstitutions)
	m, _ := v.(map[string]InstitutionMembership)
	return m
}

// InInstitution reports cached membership in the named institution.
func (u *User) InInstitution(name string) bool {
	_, ok := u.Institutions()[name]
	return ok
}

// AdminInstitutions returns the cached names of institutions this user
// administers.
func (u *User) AdminInstitutions() []string {
	v, _ := u.attrs.Get(FieldAdminInstitutions)
	names, _ := v.([]string)
	return names
}

// StaffInstitutions returns the cached names of institutions this user has
// staff status in.
func (u *User) StaffInstitutions() []string {
	v, _ := u.attrs.Get(FieldStaffInstitutions)
	names, _ := v.([]string)
	return names
}

// IsInstitutionAdmin reports cached admin status in the named institution.
// Site admins are institution admins everywhere.
func (u *User) IsInstitutionAdmin(institution string) bool {
	if u.Admin() {
		return true
	}
	m, ok := u.Institutions()[institution]
	return ok && m.Admin
}

// InstitutionTheme returns the cached resolved theme descriptor, or nil.
func (u *User) InstitutionTheme() *Theme {
	v, _ := u.attrs.Get(FieldInstitutionTheme)
	t, _ := v.(*Theme)
	return t
}

// GroupRoles returns the cached group id to role map.
func (u *User) GroupRoles() map[int64]string {
	v, _ := u.attrs.Get(FieldGroupRoles)
	m, _ := v.(map[int64]string)
	return m
}

// AccountPrefs returns the side-channel account preference map.
func (u *User) AccountPrefs() map[string]string {
	v, _ := u.attrs.Get(FieldAccountPrefs)
	m, _ := v.(map[string]string)
	return m
}

// ActivityPrefs returns the side-channel activity preference map.
func (u *User) ActivityPrefs() map[string]string {
	v, _ := u.attrs.Get(FieldActivityPrefs)
	m, _ := v.(map[string]string)
	return m
}

// SpecialViews returns the side-channel map of special view type to view id.
func (u *User) SpecialViews() map[string]int64 {
	v, _ := u.attrs.Get(FieldViews)
	m, _ := v.(map[string]int64)
	return m
}

// QuotaAdd increases the in-memory usage total by bytes after validating the
// limit. The record must be committed for the change to persist; upload
// pipelines working directly against storage use Store.QuotaAdd, which locks
// the row so check and debit cannot interleave with another debit.
func (u *User) QuotaAdd(bytes int64) error {
	if bytes < 0 {
		return &InvalidArgumentError{Reason: "quota add of negative bytes"}
	}
	used := u.QuotaUsed()
	limit, ok := u.Quota()
	if ok && used+bytes > limit {
		return &QuotaExceededError{Requested: bytes, Used: used, Limit: limit}
	}
	return u.attrs.Set(FieldQuotaUsed, used+bytes)
}

// QuotaRemove decreases the in-memory usage total by bytes, flooring at
// zero.
func (u *User) QuotaRemove(bytes int64) error {
	if bytes < 0 {
		return &InvalidArgumentError{Reason: "quota remove of negative bytes"}
	}
	used := u.QuotaUsed() - bytes
	if used < 0 {
		used = 0
	}
	return u.attrs.Set(FieldQuotaUsed, used)
}
