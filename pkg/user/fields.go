package user

import "github.com/openfolio/identity/pkg/attr"

// Field names of the closed account schema. Every attribute read or write
// goes through these; anything else is an UnknownAttributeError.
const (
	FieldID              = "id"
	FieldUsername        = "username"
	FieldPassword        = "password"
	FieldSalt            = "salt"
	FieldEmail           = "email"
	FieldFirstName       = "firstname"
	FieldLastName        = "lastname"
	FieldPreferredName   = "preferredname"
	FieldAdmin           = "admin"
	FieldStaff           = "staff"
	FieldActive          = "active"
	FieldDeleted         = "deleted"
	FieldSuspendedAt     = "suspendedat"
	FieldSuspendedReason = "suspendedreason"
	FieldExpiry          = "expiry"
	FieldExpiryMailSent  = "expirymailsent"
	FieldLastLogin       = "lastlogin"
	FieldLastLastLogin   = "lastlastlogin"
	FieldLastAccess      = "lastaccess"
	FieldLoginTries      = "logintries"
	FieldQuota           = "quota"
	FieldQuotaUsed       = "quotaused"
	FieldUnread          = "unread"
	FieldAuthInstance    = "authinstance"
	FieldURLID           = "urlid"
	FieldTheme           = "theme"
	FieldCreatedAt       = "createdat"

	// Derived caches, recomputed from the membership tables.
	FieldInstitutions      = "institutions"
	FieldGroupRoles        = "grouproles"
	FieldInstitutionTheme  = "institutiontheme"
	FieldAdminInstitutions = "admininstitutions"
	FieldStaffInstitutions = "staffinstitutions"
	FieldInstitutionsGen   = "institutionsgen"
	FieldGroupRolesGen     = "grouprolesgen"

	// Side-channel fields, saved through dedicated calls.
	FieldActivityPrefs = "activityprefs"
	FieldAccountPrefs  = "accountprefs"
	FieldViews         = "views"

	// Session-only fields, never part of the main commit.
	FieldAuthenticated = "authenticated"
	FieldSessionID     = "sessionid"
	FieldSessKey       = "sesskey"
	FieldParentUser    = "parentuser"
	FieldLogoutTime    = "logouttime"
)

// Schema returns the account attribute schema. Persisted fields map to usr
// columns; the rest are derived caches, side-channel fields or session
// state.
func Schema() []attr.Field {
	return []attr.Field{
		{Name: FieldID, Kind: attr.KindInt, Persisted: true},
		{Name: FieldUsername, Kind: attr.KindString, Persisted: true},
		{Name: FieldPassword, Kind: attr.KindString, Persisted: true},
		{Name: FieldSalt, Kind: attr.KindString, Persisted: true},
		{Name: FieldEmail, Kind: attr.KindString, Persisted: true},
		{Name: FieldFirstName, Kind: attr.KindString, Persisted: true},
		{Name: FieldLastName, Kind: attr.KindString, Persisted: true},
		{Name: FieldPreferredName, Kind: attr.KindString, Persisted: true},
		{Name: FieldAdmin, Kind: attr.KindBool, Persisted: true},
		{Name: FieldStaff, Kind: attr.KindBool, Persisted: true},
		{Name: FieldActive, Kind: attr.KindBool, Default: true, Persisted: true},
		{Name: FieldDeleted, Kind: attr.KindBool, Persisted: true},
		{Name: FieldSuspendedAt, Kind: attr.KindTime, Persisted: true},
		{Name: FieldSuspendedReason, Kind: attr.KindString, Persisted: true},
		{Name: FieldExpiry, Kind: attr.KindTime, Persisted: true},
		{Name: FieldExpiryMailSent, Kind: attr.KindBool, Persisted: true},
		{Name: FieldLastLogin, Kind: attr.KindTime, Persisted: true},
		{Name: FieldLastLastLogin, Kind: attr.KindTime, Persisted: true},
		{Name: FieldLastAccess, Kind: attr.KindTime, Persisted: true},
		{Name: FieldLoginTries, Kind: attr.KindInt, Persisted: true},
		{Name: FieldQuota, Kind: attr.KindAny, Persisted: true},
		{Name: FieldQuotaUsed, Kind: attr.KindInt, Persisted: true},
		{Name: FieldUnread, Kind: attr.KindInt, Persisted: true},
		{Name: FieldAuthInstance, Kind: attr.KindInt, Persisted: true},
		{Name: FieldURLID, Kind: attr.KindString, Persisted: true},
		{Name: FieldTheme, Kind: attr.KindString, Persisted: true},
		{Name: FieldCreatedAt, Kind: attr.KindTime, Persisted: true},

		{Name: FieldInstitutions, Kind: attr.KindAny, SideChannel: true, New: func() interface{} { return map[string]InstitutionMembership{} }},
		{Name: FieldGroupRoles, Kind: attr.KindAny, SideChannel: true, New: func() interface{} { return map[int64]string{} }},
		{Name: FieldInstitutionTheme, Kind: attr.KindAny, SideChannel: true},
		{Name: FieldAdminInstitutions, Kind: attr.KindAny, SideChannel: true, New: func() interface{} { return []string{} }},
		{Name: FieldStaffInstitutions, Kind: attr.KindAny, SideChannel: true, New: func() interface{} { return []string{} }},
		{Name: FieldInstitutionsGen, Kind: attr.KindInt, SideChannel: true},
		{Name: FieldGroupRolesGen, Kind: attr.KindInt, SideChannel: true},

		{Name: FieldActivityPrefs, Kind: attr.KindAny, SideChannel: true, New: func() interface{} { return map[string]string{} }},
		{Name: FieldAccountPrefs, Kind: attr.KindAny, SideChannel: true, New: func() interface{} { return map[string]string{} }},
		{Name: FieldViews, Kind: attr.KindAny, SideChannel: true, New: func() interface{} { return map[string]int64{} }},

		{Name: FieldAuthenticated, Kind: attr.KindBool, SideChannel: true},
		{Name: FieldSessionID, Kind: attr.KindString, SideChannel: true},
		{Name: FieldSessKey, Kind: attr.KindString, SideChannel: true},
		{Name: FieldParentUser, Kind: attr.KindAny, SideChannel: true},
		{Name: FieldLogoutTime, Kind: attr.KindTime, SideChannel: true},
	}
}
