package user

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/openfolio/identity/pkg/auth"
)

// userColumns is the persisted column list, kept in one place so lookups and
// scans cannot drift apart.
const userColumns = `
	id, username, password, salt, email, first_name, last_name, preferred_name,
	admin, staff, active, deleted, suspended_at, suspended_reason,
	expiry, expiry_mail_sent, last_login, last_last_login, last_access,
	login_tries, quota, quota_used, unread, auth_instance_id, url_id, theme, created_at
`

// Store persists identity records.
type Store struct {
	db *sql.DB
	// flight collapses concurrent cache refreshes for the same user into a
	// single storage round-trip.
	flight singleflight.Group
}

// NewStore creates a new identity store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// FindByID retrieves an account by id.
func (s *Store) FindByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM usr WHERE id = $1 AND NOT deleted`
	return s.findOne(ctx, "id", query, id)
}

// FindByUsername retrieves an account by username, case-insensitively.
func (s *Store) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM usr WHERE LOWER(username) = LOWER($1) AND NOT deleted`
	return s.findOne(ctx, "username", query, username)
}

// FindByInstanceAndUsername retrieves the account owned by an auth instance.
// With remote set, the username is a remote-mapped name: it matches either
// the remote mapping under the instance itself or, when the instance
// delegates to a parent, the native username under that parent. Both paths
// are acceptable matches; the parent hop is exactly one level.
func (s *Store) FindByInstanceAndUsername(ctx context.Context, instance *auth.Instance, parent *auth.Instance, username string, remote bool) (*User, error) {
	if instance == nil {
		return nil, &InvalidArgumentError{Reason: "nil auth instance"}
	}

	if !remote {
		query := `SELECT ` + userColumns + ` FROM usr
			WHERE auth_instance_id = $1 AND LOWER(username) = LOWER($2) AND NOT deleted`
		return s.findOne(ctx, "instance+username", query, instance.ID, username)
	}

	// Remote path, leg one: the mapping table under the child instance.
	query := `SELECT ` + userColumns + ` FROM usr
		WHERE id = (
			SELECT local_usr FROM auth_remote_user
			WHERE auth_instance_id = $1 AND remote_username = $2
		) AND NOT deleted`
	u, err := s.findOne(ctx, "instance+username", query, instance.ID, username)
	if err == nil {
		return u, nil
	}
	if !IsUnknownPrincipal(err) {
		return nil, err
	}

	// Leg two: the native username under the parent instance.
	if parent == nil {
		return nil, &UnknownPrincipalError{Lookup: "instance+username"}
	}
	query = `SELECT ` + userColumns + ` FROM usr
		WHERE auth_instance_id = $1 AND LOWER(username) = LOWER($2) AND NOT deleted`
	return s.findOne(ctx, "instance+username", query, parent.ID, username)
}

// FindByMobileToken retrieves an account by a one-time mobile token. The
// token is consumed: a second lookup with the same token fails.
func (s *Store) FindByMobileToken(ctx context.Context, token, username string) (*User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	err = tx.QueryRowContext(ctx,
		`SELECT usr FROM usr_mobile_token WHERE token = $1`, token,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return nil, &UnknownPrincipalError{Lookup: "mobile token"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up mobile token: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM usr
		WHERE id = $1 AND LOWER(username) = LOWER($2) AND NOT deleted`
	row := tx.QueryRowContext(ctx, query, userID, username)
	u, err := scanUser(row, "mobile token")
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM usr_mobile_token WHERE token = $1`, token); err != nil {
		return nil, fmt.Errorf("failed to consume mobile token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit token consumption: %w", err)
	}

	return u, nil
}

func (s *Store) findOne(ctx context.Context, lookup, query string, args ...interface{}) (*User, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	return scanUser(row, lookup)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner, lookup string) (*User, error) {
	var (
		id                          int64
		username, password, salt    string
		email, first, last, pref    string
		admin, staff, active        bool
		deleted, expiryMailSent     bool
		suspendedAt                 sql.NullTime
		suspendedReason             sql.NullString
		expiry                      sql.NullTime
		lastLogin, lastLast         sql.NullTime
		lastAccess                  sql.NullTime
		loginTries                  int
		quota                       sql.NullInt64
		quotaUsed                   int64
		unread                      int
		authInstanceID              sql.NullInt64
		urlID, theme                sql.NullString
		createdAt                   time.Time
	)

	err := row.Scan(
		&id, &username, &password, &salt, &email, &first, &last, &pref,
		&admin, &staff, &active, &deleted, &suspendedAt, &suspendedReason,
		&expiry, &expiryMailSent, &lastLogin, &lastLast, &lastAccess,
		&loginTries, &quota, &quotaUsed, &unread, &authInstanceID, &urlID, &theme, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, &UnknownPrincipalError{Lookup: lookup}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u := New()
	a := u.attrs
	a.Set(FieldID, id)
	a.Set(FieldUsername, username)
	a.Set(FieldPassword, password)
	a.Set(FieldSalt, salt)
	a.Set(FieldEmail, email)
	a.Set(FieldFirstName, first)
	a.Set(FieldLastName, last)
	a.Set(FieldPreferredName, pref)
	a.Set(FieldAdmin, admin)
	a.Set(FieldStaff, staff)
	a.Set(FieldActive, active)
	a.Set(FieldDeleted, deleted)
	if suspendedAt.Valid {
		a.Set(FieldSuspendedAt, suspendedAt.Time)
	}
	if suspendedReason.Valid {
		a.Set(FieldSuspendedReason, suspendedReason.String)
	}
	if expiry.Valid {
		a.Set(FieldExpiry, expiry.Time)
	}
	a.Set(FieldExpiryMailSent, expiryMailSent)
	if lastLogin.Valid {
		a.Set(FieldLastLogin, lastLogin.Time)
	}
	if lastLast.Valid {
		a.Set(FieldLastLastLogin, lastLast.Time)
	}
	if lastAccess.Valid {
		a.Set(FieldLastAccess, lastAccess.Time)
	}
	a.Set(FieldLoginTries, int64(loginTries))
	if quota.Valid {
		a.Set(FieldQuota, quota.Int64)
	}
	a.Set(FieldQuotaUsed, quotaUsed)
	a.Set(FieldUnread, int64(unread))
	if authInstanceID.Valid {
		a.Set(FieldAuthInstance, authInstanceID.Int64)
	}
	if urlID.Valid {
		a.Set(FieldURLID, urlID.String)
	}
	if theme.Valid {
		a.Set(FieldTheme, theme.String)
	}
	a.Set(FieldCreatedAt, createdAt)
	a.MarkClean()

	return u, nil
}

// Create stamps the creation time, reserves a clean URL slug when enabled,
// and inserts the record, storing the new id on it.
func (s *Store) Create(ctx context.Context, u *User, cleanURLs bool) error {
	if u.ID() != 0 {
		return &InvalidOperationError{Reason: "record already persisted"}
	}
	now := time.Now()
	u.attrs.Set(FieldCreatedAt, now)

	if cleanURLs {
		slug, err := s.reserveURLID(ctx, u.Username())
		if err != nil {
			return err
		}
		u.attrs.Set(FieldURLID, slug)
	}

	return s.insert(ctx, u)
}

// reserveURLID derives a unique slug from the username, disambiguating with
// a numeric suffix when taken.
func (s *Store) reserveURLID(ctx context.Context, username string) (string, error) {
	base := slugify(username)
	candidate := base
	for i := 1; ; i++ {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM usr WHERE url_id = $1)`, candidate,
		).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("failed to check url slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "user"
	}
	return slug
}

// Commit writes unsaved changes. A clean record is a no-op. Before an
// update, a whitelisted subset of fields is re-pulled fresh from storage so
// out-of-band changes (a scheduled job suspending the account, a background
// quota adjustment) are not clobbered by a stale in-memory copy.
func (s *Store) Commit(ctx context.Context, u *User) error {
	if !u.attrs.Dirty() {
		return nil
	}
	if u.ID() == 0 {
		return s.insert(ctx, u)
	}

	if err := s.reloadBackgroundFields(ctx, u); err != nil {
		return err
	}

	query := `
		UPDATE usr SET
			username = $1, password = $2, salt = $3, email = $4,
			first_name = $5, last_name = $6, preferred_name = $7,
			admin = $8, staff = $9, active = $10, deleted = $11,
			suspended_at = $12, suspended_reason = $13,
			expiry = $14, expiry_mail_sent = $15,
			last_login = $16, last_last_login = $17, last_access = $18,
			login_tries = $19, quota = $20, quota_used = $21, unread = $22,
			auth_instance_id = $23, url_id = $24, theme = $25
		WHERE id = $26
	`
	_, err := s.db.ExecContext(ctx, query, append(s.persistedArgs(u), u.ID())...)
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", u.ID(), err)
	}
	u.attrs.MarkClean()
	return nil
}

func (s *Store) insert(ctx context.Context, u *User) error {
	query := `
		INSERT INTO usr (
			username, password, salt, email, first_name, last_name, preferred_name,
			admin, staff, active, deleted, suspended_at, suspended_reason,
			expiry, expiry_mail_sent, last_login, last_last_login, last_access,
			login_tries, quota, quota_used, unread, auth_instance_id, url_id, theme,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		RETURNING id
	`
	args := append(s.persistedArgs(u), u.timeAttr(FieldCreatedAt))
	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.attrs.Set(FieldID, id)
	u.attrs.MarkClean()
	return nil
}

// persistedArgs collects the raw persisted columns in upsert order. Derived
// caches and session fields are never written.
func (s *Store) persistedArgs(u *User) []interface{} {
	var quota interface{}
	if limit, ok := u.Quota(); ok {
		quota = limit
	}
	return []interface{}{
		u.stringAttr(FieldUsername),
		u.stringAttr(FieldPassword),
		u.stringAttr(FieldSalt),
		u.stringAttr(FieldEmail),
		u.stringAttr(FieldFirstName),
		u.stringAttr(FieldLastName),
		u.stringAttr(FieldPreferredName),
		u.boolAttr(FieldAdmin),
		u.boolAttr(FieldStaff),
		u.boolAttr(FieldActive),
		u.boolAttr(FieldDeleted),
		nullTime(u.timeAttr(FieldSuspendedAt)),
		u.stringAttr(FieldSuspendedReason),
		nullTime(u.timeAttr(FieldExpiry)),
		u.boolAttr(FieldExpiryMailSent),
		nullTime(u.timeAttr(FieldLastLogin)),
		nullTime(u.timeAttr(FieldLastLastLogin)),
		nullTime(u.timeAttr(FieldLastAccess)),
		u.LoginTries(),
		quota,
		u.QuotaUsed(),
		u.int64Attr(FieldUnread),
		nullInt(u.int64Attr(FieldAuthInstance)),
		nullString(u.stringAttr(FieldURLID)),
		nullString(u.stringAttr(FieldTheme)),
	}
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullInt(n int64) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// reloadBackgroundFields re-pulls externally mutable fields from storage
// onto the record.
func (s *Store) reloadBackgroundFields(ctx context.Context, u *User) error {
	query := `
		SELECT active, deleted, suspended_at, suspended_reason, expiry, quota, unread
		FROM usr WHERE id = $1
	`
	var (
		active, deleted bool
		suspendedAt     sql.NullTime
		suspendedReason sql.NullString
		expiry          sql.NullTime
		quota           sql.NullInt64
		unread          int
	)
	err := s.db.QueryRowContext(ctx, query, u.ID()).Scan(
		&active, &deleted, &suspendedAt, &suspendedReason, &expiry, &quota, &unread,
	)
	if err == sql.ErrNoRows {
		return &UnknownPrincipalError{Lookup: "id"}
	}
	if err != nil {
		return fmt.Errorf("failed to reload background fields: %w", err)
	}

	a := u.attrs
	a.Set(FieldActive, active)
	a.Set(FieldDeleted, deleted)
	if suspendedAt.Valid {
		a.Set(FieldSuspendedAt, suspendedAt.Time)
	} else {
		a.Set(FieldSuspendedAt, time.Time{})
	}
	if suspendedReason.Valid {
		a.Set(FieldSuspendedReason, suspendedReason.String)
	} else {
		a.Set(FieldSuspendedReason, "")
	}
	if expiry.Valid {
		a.Set(FieldExpiry, expiry.Time)
	} else {
		a.Set(FieldExpiry, time.Time{})
	}
	if quota.Valid {
		a.Set(FieldQuota, quota.Int64)
	} else {
		a.Set(FieldQuota, nil)
	}
	a.Set(FieldUnread, int64(unread))
	return nil
}

// IncrementLoginTries bumps the failed-login counter as a narrow
// single-column update, separate from the main commit. Best-effort under
// concurrency by design.
func (s *Store) IncrementLoginTries(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE usr SET login_tries = login_tries + 1 WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to increment login tries: %w", err)
	}
	return nil
}

// ResetLoginTries clears the failed-login counter.
func (s *Store) ResetLoginTries(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE usr SET login_tries = 0 WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to reset login tries: %w", err)
	}
	return nil
}

// UpdateLastAccess stamps the last-access time as a narrow update. Callers
// throttle this to avoid a write per request.
func (s *Store) UpdateLastAccess(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE usr SET last_access = $1 WHERE id = $2`, at, userID)
	if err != nil {
		return fmt.Errorf("failed to update last access: %w", err)
	}
	return nil
}

// SetActive flips the active flag as a narrow update, used to reactivate an
// account that was auto-marked inactive.
func (s *Store) SetActive(ctx context.Context, userID int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE usr SET active = $1 WHERE id = $2`, active, userID)
	if err != nil {
		return fmt.Errorf("failed to set active flag: %w", err)
	}
	return nil
}

// QuotaAdd debits bytes against the user's quota inside one transaction.
// The row is locked so the limit check and the debit cannot be separated by
// another debit for the same user.
func (s *Store) QuotaAdd(ctx context.Context, userID, bytes int64) error {
	if bytes < 0 {
		return &InvalidArgumentError{Reason: "quota add of negative bytes"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var quota sql.NullInt64
	var used int64
	err = tx.QueryRowContext(ctx,
		`SELECT quota, quota_used FROM usr WHERE id = $1 FOR UPDATE`, userID,
	).Scan(&quota, &used)
	if err == sql.ErrNoRows {
		return &UnknownPrincipalError{Lookup: "id"}
	}
	if err != nil {
		return fmt.Errorf("failed to lock quota row: %w", err)
	}

	if quota.Valid && used+bytes > quota.Int64 {
		return &QuotaExceededError{Requested: bytes, Used: used, Limit: quota.Int64}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE usr SET quota_used = quota_used + $1 WHERE id = $2`, bytes, userID,
	); err != nil {
		return fmt.Errorf("failed to debit quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit quota debit: %w", err)
	}
	return nil
}

// QuotaRemove credits bytes back, flooring the running total at zero.
func (s *Store) QuotaRemove(ctx context.Context, userID, bytes int64) error {
	if bytes < 0 {
		return &InvalidArgumentError{Reason: "quota remove of negative bytes"}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE usr SET quota_used = CASE
			WHEN quota_used - $1 < 0 THEN 0
			ELSE quota_used - $1
		END
		WHERE id = $2
	`, bytes, userID)
	if err != nil {
		return fmt.Errorf("failed to credit quota: %w", err)
	}
	return nil
}

// CountSiteAdmins counts live site administrator accounts.
func (s *Store) CountSiteAdmins(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM usr WHERE admin AND NOT deleted`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count site admins: %w", err)
	}
	return count, nil
}

// InstitutionsOf returns the institution memberships of an arbitrary user,
// without touching any identity record.
func (s *Store) InstitutionsOf(ctx context.Context, userID int64) (map[string]InstitutionMembership, error) {
	return s.loadInstitutions(ctx, userID)
}

// loadInstitutions reads the institution membership relation for a user.
// Concurrent loads for the same user collapse into one query.
func (s *Store) loadInstitutions(ctx context.Context, userID int64) (map[string]InstitutionMembership, error) {
	v, err, _ := s.flight.Do(fmt.Sprintf("inst:%d", userID), func() (interface{}, error) {
		query := `
			SELECT ui.institution, i.display_name, ui.admin, ui.staff,
			       COALESCE(ui.theme, i.theme, ''), i.suspended, i.register_allowed
			FROM usr_institution ui
			JOIN institution i ON i.name = ui.institution
			WHERE ui.usr = $1
		`
		rows, err := s.db.QueryContext(ctx, query, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load institutions: %w", err)
		}
		defer rows.Close()

		memberships := make(map[string]InstitutionMembership)
		for rows.Next() {
			var m InstitutionMembership
			if err := rows.Scan(
				&m.Institution, &m.DisplayName, &m.Admin, &m.Staff,
				&m.Theme, &m.Suspended, &m.RegisterAllowed,
			); err != nil {
				return nil, fmt.Errorf("failed to scan institution membership: %w", err)
			}
			memberships[m.Institution] = m
		}
		return memberships, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]InstitutionMembership), nil
}

// loadGroupRoles reads the group membership relation for a user. Concurrent
// loads for the same user collapse into one query.
func (s *Store) loadGroupRoles(ctx context.Context, userID int64) (map[int64]string, error) {
	v, err, _ := s.flight.Do(fmt.Sprintf("roles:%d", userID), func() (interface{}, error) {
		query := `
			SELECT gm.group_id, gm.role
			FROM group_member gm
			JOIN folio_group g ON g.id = gm.group_id
			WHERE gm.member = $1 AND NOT g.deleted
		`
		rows, err := s.db.QueryContext(ctx, query, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load group roles: %w", err)
		}
		defer rows.Close()

		roles := make(map[int64]string)
		for rows.Next() {
			var groupID int64
			var role string
			if err := rows.Scan(&groupID, &role); err != nil {
				return nil, fmt.Errorf("failed to scan group role: %w", err)
			}
			roles[groupID] = role
		}
		return roles, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return v.(map[int64]string), nil
}

// InstitutionOfInstance returns the institution an auth instance belongs to,
// with its theme name when theming is enabled.
func (s *Store) InstitutionOfInstance(ctx context.Context, instanceID int64) (name string, theme string, err error) {
	query := `
		SELECT i.name, COALESCE(i.theme, '')
		FROM auth_instance ai
		JOIN institution i ON i.name = ai.institution
		WHERE ai.id = $1
	`
	err = s.db.QueryRowContext(ctx, query, instanceID).Scan(&name, &theme)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve instance institution: %w", err)
	}
	return name, theme, nil
}

// LoadAccountPreferences reads the side-channel account preference rows.
func (s *Store) LoadAccountPreferences(ctx context.Context, userID int64) (map[string]string, error) {
	return s.loadPrefs(ctx, `SELECT field, value FROM usr_account_preference WHERE usr = $1`, userID)
}

// LoadActivityPreferences reads the side-channel activity preference rows.
func (s *Store) LoadActivityPreferences(ctx context.Context, userID int64) (map[string]string, error) {
	return s.loadPrefs(ctx, `SELECT activity, method FROM usr_activity_preference WHERE usr = $1`, userID)
}

func (s *Store) loadPrefs(ctx context.Context, query string, userID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	defer rows.Close()

	prefs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs[k] = v
	}
	return prefs, rows.Err()
}

// SaveAccountPreference upserts one account preference row. Preferences are
// a side channel: saving one never touches the main usr row.
func (s *Store) SaveAccountPreference(ctx context.Context, userID int64, field, value string) error {
	query := `
		INSERT INTO usr_account_preference (usr, field, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (usr, field) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := s.db.ExecContext(ctx, query, userID, field, value); err != nil {
		return fmt.Errorf("failed to save account preference: %w", err)
	}
	return nil
}

// SaveActivityPreference upserts one activity preference row.
func (s *Store) SaveActivityPreference(ctx context.Context, userID int64, activity, method string) error {
	query := `
		INSERT INTO usr_activity_preference (usr, activity, method)
		VALUES ($1, $2, $3)
		ON CONFLICT (usr, activity) DO UPDATE SET method = EXCLUDED.method
	`
	if _, err := s.db.ExecContext(ctx, query, userID, activity, method); err != nil {
		return fmt.Errorf("failed to save activity preference: %w", err)
	}
	return nil
}

// ReplaceSessionRecord stores the session-id to user mapping, replacing any
// prior mapping for the session.
func (s *Store) ReplaceSessionRecord(ctx context.Context, sessionID string, userID int64, expiresAt time.Time) error {
	query := `
		INSERT INTO usr_session (session_id, usr, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET usr = EXCLUDED.usr, expires_at = EXCLUDED.expires_at
	`
	if _, err := s.db.ExecContext(ctx, query, sessionID, userID, expiresAt); err != nil {
		return fmt.Errorf("failed to replace session record: %w", err)
	}
	return nil
}

// DeleteSessionRecord removes the session-id to user mapping.
func (s *Store) DeleteSessionRecord(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM usr_session WHERE session_id = $1`, sessionID,
	); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return nil
}

// PurgeExpiredSessions removes session mappings past their expiry and
// returns how many were dropped.
func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM usr_session WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ResetStaleLoginTries clears failed-login counters for accounts whose last
// access predates the cutoff. The lockout is sticky until this runs.
func (s *Store) ResetStaleLoginTries(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE usr SET login_tries = 0
		WHERE login_tries > 0 AND (last_access IS NULL OR last_access < $1)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale login tries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
