package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openfolio/identity/pkg/auth"
	"github.com/openfolio/identity/pkg/config"
	"github.com/openfolio/identity/pkg/contextkeys"
	"github.com/openfolio/identity/pkg/observability"
	"github.com/openfolio/identity/pkg/user"
	"github.com/openfolio/identity/pkg/view"
)

// State is the authentication state of a session.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
	StateImpersonating
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateImpersonating:
		return "impersonating"
	default:
		return "anonymous"
	}
}

// ImpersonationSnapshot remembers who started an impersonation so the
// original identity can be restored. One level only: impersonating while
// already impersonating is rejected.
type ImpersonationSnapshot struct {
	UserID      int64
	DisplayName string
}

// AccessDeniedError indicates a state-machine transition refused for
// authorization or account-state reasons.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

// IsAccessDenied checks whether an error is an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var ade *AccessDeniedError
	return errors.As(err, &ade)
}

// Session value fields.
const (
	sessAuthenticated = "authenticated"
	sessUserID        = "usr"
	sessSessKey       = "sesskey"
	sessLogoutTime    = "logouttime"
	sessParentID      = "parentusr"
	sessParentName    = "parentname"
	sessPendingLang   = "pendinglang"
	sessLastInst      = "lastinstitution"

	// viewAccessPrefix namespaces the secret-URL access grants staged in
	// the session; they are wiped at logout.
	viewAccessPrefix = "viewaccess:"

	langPreference = "lang"
)

// Manager wires the collaborators every session identity needs.
type Manager struct {
	sessions  *Store
	users     *user.Store
	auths     *auth.Resolver
	registry  *auth.Registry
	views     *view.Store
	templates view.TemplateService
	gens      *user.Generations

	session config.SessionConfig
	site    config.SiteConfig

	metrics *observability.Metrics
	log     *observability.Logger
}

// NewManager creates a session manager. metrics may be nil.
func NewManager(sessions *Store, users *user.Store, auths *auth.Resolver, registry *auth.Registry, views *view.Store, templates view.TemplateService, gens *user.Generations, sessionCfg config.SessionConfig, siteCfg config.SiteConfig, metrics *observability.Metrics, log *observability.Logger) *Manager {
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Manager{
		sessions:  sessions,
		users:     users,
		auths:     auths,
		registry:  registry,
		views:     views,
		templates: templates,
		gens:      gens,
		session:   sessionCfg,
		site:      siteCfg,
		metrics:   metrics,
		log:       log,
	}
}

// Identity is the per-request session identity. It is not safe for
// concurrent use; each request constructs or resumes its own.
type Identity struct {
	m         *Manager
	state     State
	user      *user.User
	sessionID string
	parent    *ImpersonationSnapshot
}

// NewSession creates a fresh anonymous identity with its own session id.
func (m *Manager) NewSession() *Identity {
	return &Identity{
		m:         m,
		state:     StateAnonymous,
		user:      user.New(),
		sessionID: uuid.NewString(),
	}
}

// Resume rebuilds an identity from a stored session. An unknown, expired or
// anonymous session resumes as Anonymous under the same id.
func (m *Manager) Resume(ctx context.Context, sessionID string) (*Identity, error) {
	id := &Identity{
		m:         m,
		state:     StateAnonymous,
		user:      user.New(),
		sessionID: sessionID,
	}

	values, err := m.sessions.Values(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if values[sessAuthenticated] != "1" {
		return id, nil
	}
	if expired(values[sessLogoutTime], time.Now()) {
		return id, nil
	}

	userID, err := strconv.ParseInt(values[sessUserID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session user id: %w", err)
	}
	u, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	id.user = u
	id.state = StateAuthenticated
	u.Set(user.FieldAuthenticated, true)
	u.Set(user.FieldSessionID, sessionID)
	u.Set(user.FieldSessKey, values[sessSessKey])

	if raw := values[sessParentID]; raw != "" {
		parentID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt impersonation snapshot: %w", err)
		}
		id.parent = &ImpersonationSnapshot{UserID: parentID, DisplayName: values[sessParentName]}
		id.state = StateImpersonating
	}
	return id, nil
}

func expired(logoutTime string, now time.Time) bool {
	if logoutTime == "" {
		return true
	}
	t, err := time.Parse(time.RFC3339, logoutTime)
	if err != nil {
		return true
	}
	return !now.Before(t)
}

// Bind attaches the identity to a request context.
func (i *Identity) Bind(ctx context.Context) context.Context {
	return contextkeys.WithPrincipal(ctx, i)
}

// FromContext retrieves the identity bound to the request context, or nil.
func FromContext(ctx context.Context) *Identity {
	i, _ := contextkeys.Principal(ctx).(*Identity)
	return i
}

// State returns the identity's authentication state.
func (i *Identity) State() State { return i.state }

// User returns the current identity record. While impersonating this is
// the target, not the administrator who started it.
func (i *Identity) User() *user.User { return i.user }

// SessionID returns the current session identifier.
func (i *Identity) SessionID() string { return i.sessionID }

// Parent returns the impersonation snapshot, nil when not impersonating.
func (i *Identity) Parent() *ImpersonationSnapshot { return i.parent }

// Get reads an attribute of the current identity record.
func (i *Identity) Get(name string) (interface{}, error) {
	return i.user.Get(name)
}

// Set writes an attribute of the current identity record.
func (i *Identity) Set(name string, value interface{}) error {
	return i.user.Set(name, value)
}

// Login authenticates a username and password. It returns plain false for
// every normal failure: unknown username, wrong password, locked account or
// closed site look identical to the caller so usernames cannot be
// enumerated. An error means storage failure or a denied account state.
func (i *Identity) Login(ctx context.Context, username, password string) (bool, error) {
	ctx, span := observability.Tracer().Start(ctx, "session.Login")
	defer span.End()

	m := i.m
	log := m.log.WithContext(ctx).WithField("username", username)

	u, err := m.users.FindByUsername(ctx, username)
	if err != nil {
		if user.IsUnknownPrincipal(err) {
			i.recordLogin("failure")
			return false, nil
		}
		return false, err
	}

	if m.site.Closed && !u.Admin() {
		log.Info("Login rejected: site closed")
		i.recordLogin("rejected")
		return false, nil
	}

	// Sticky lockout: once the counter reaches the threshold, even correct
	// credentials fail until the counter is externally reset.
	if m.session.MaxLoginTries > 0 && u.LoginTries() >= m.session.MaxLoginTries {
		log.WithField("tries", u.LoginTries()).Info("Login rejected: account locked")
		i.recordLogin("locked")
		return false, nil
	}

	instance, parent, err := m.auths.Resolve(ctx, u.AuthInstanceID())
	if err != nil {
		return false, err
	}
	effective := instance
	if parent != nil {
		effective = parent
	}
	if !effective.Active {
		log.Info("Login rejected: auth instance inactive")
		i.recordLogin("rejected")
		return false, nil
	}

	authenticator, err := m.registry.For(effective.Type)
	if err != nil {
		return false, err
	}

	creds, err := credentialsOf(u)
	if err != nil {
		return false, err
	}
	ok, err := authenticator.AuthenticateUserAccount(ctx, creds, password)
	if err != nil && !errors.Is(err, auth.ErrInstanceDeclined) {
		return false, err
	}
	if err != nil || !ok {
		if terr := m.users.IncrementLoginTries(ctx, u.ID()); terr != nil {
			return false, terr
		}
		i.recordLogin("failure")
		return false, nil
	}

	// Credentials are good. Suspension is denied with a reason, which is
	// safe to surface post-credential: a suspended owning institution (the
	// one the auth instance belongs to) blocks the login outright, and an
	// account whose every membership is suspended has nowhere left to act.
	memberships, err := m.users.InstitutionsOf(ctx, u.ID())
	if err != nil {
		return false, err
	}
	if reason := suspensionReason(instance, memberships); reason != "" {
		i.recordLogin("suspended")
		return false, &AccessDeniedError{Reason: reason}
	}

	if err := m.users.ResetLoginTries(ctx, u.ID()); err != nil {
		return false, err
	}

	if err := i.Authenticate(ctx, u, instance); err != nil {
		i.recordLogin("failure")
		return false, err
	}

	i.recordLogin("success")
	log.WithField("usr", u.ID()).Info("Login succeeded")
	return true, nil
}

func credentialsOf(u *user.User) (auth.Credentials, error) {
	hash, err := u.Get(user.FieldPassword)
	if err != nil {
		return auth.Credentials{}, err
	}
	salt, err := u.Get(user.FieldSalt)
	if err != nil {
		return auth.Credentials{}, err
	}
	return auth.Credentials{
		UserID:       u.ID(),
		Username:     u.Username(),
		PasswordHash: hash.(string),
		Salt:         salt.(string),
	}, nil
}

func suspensionReason(instance *auth.Instance, memberships map[string]user.InstitutionMembership) string {
	if instance != nil && instance.Institution != "" {
		if membership, ok := memberships[instance.Institution]; ok && membership.Suspended {
			return "institution suspended"
		}
	}
	if len(memberships) == 0 {
		return ""
	}
	for _, m := range memberships {
		if !m.Suspended {
			return ""
		}
	}
	return "all institutions suspended"
}

// reloadProfile refreshes the preference side channels and installs any
// missing special views for the account now bound to the session. It runs
// on every identity switch: authenticate, login-as, and the return from it.
func (m *Manager) reloadProfile(ctx context.Context, u *user.User) error {
	accountPrefs, err := m.users.LoadAccountPreferences(ctx, u.ID())
	if err != nil {
		return err
	}
	activityPrefs, err := m.users.LoadActivityPreferences(ctx, u.ID())
	if err != nil {
		return err
	}
	u.Set(user.FieldAccountPrefs, accountPrefs)
	u.Set(user.FieldActivityPrefs, activityPrefs)

	if m.templates != nil {
		views, err := m.views.EnsureSpecialViews(ctx, u.ID(), m.templates)
		if err != nil {
			return err
		}
		u.Set(user.FieldViews, views)
	}
	return nil
}

// Authenticate transitions the session to Authenticated for the given
// account. The account-state checks run before the first side effect;
// every failure after that is fatal for the attempt and the caller must
// discard the identity rather than trust partial state.
func (i *Identity) Authenticate(ctx context.Context, u *user.User, instance *auth.Instance) error {
	ctx, span := observability.Tracer().Start(ctx, "session.Authenticate")
	defer span.End()

	m := i.m
	now := time.Now()

	if u.Deleted() {
		return &AccessDeniedError{Reason: "account deleted"}
	}
	if u.Suspended() {
		return &AccessDeniedError{Reason: "account suspended"}
	}
	if u.Expired(now) {
		return &AccessDeniedError{Reason: "account expired"}
	}

	u.Set(user.FieldAuthenticated, true)

	// Fixation defense: a fresh session id, carrying over any staged
	// pre-login values (pending language, last institution).
	oldID := i.sessionID
	newID := uuid.NewString()
	if err := m.sessions.Migrate(ctx, oldID, newID); err != nil {
		return err
	}
	i.sessionID = newID
	u.Set(user.FieldSessionID, newID)

	u.Set(user.FieldLastLastLogin, timeAttr(u, user.FieldLastLogin))
	u.Set(user.FieldLastLogin, now)
	u.Set(user.FieldLastAccess, now)

	sesskey := uuid.NewString()
	u.Set(user.FieldSessKey, sesskey)

	if err := m.reloadProfile(ctx, u); err != nil {
		return err
	}

	// Adopt a language chosen while logged out.
	pending, err := m.sessions.Value(ctx, newID, sessPendingLang)
	if err != nil {
		return err
	}
	if pending != "" {
		if err := m.users.SaveAccountPreference(ctx, u.ID(), langPreference, pending); err != nil {
			return err
		}
		prefs := u.AccountPrefs()
		prefs[langPreference] = pending
		u.Set(user.FieldAccountPrefs, prefs)
		if err := m.sessions.DeleteValues(ctx, newID, sessPendingLang); err != nil {
			return err
		}
	}

	if err := m.users.ResetInstitutions(ctx, u, m.gens, false); err != nil {
		return err
	}
	if err := m.users.ResetGroupRoles(ctx, u, m.gens); err != nil {
		return err
	}

	logoutTime := now.Add(m.session.Timeout)
	u.Set(user.FieldLogoutTime, logoutTime)

	if err := m.users.ReplaceSessionRecord(ctx, newID, u.ID(), logoutTime); err != nil {
		return err
	}

	// An account auto-marked inactive comes back on successful login.
	if !u.Active() {
		if err := m.users.SetActive(ctx, u.ID(), true); err != nil {
			return err
		}
		u.Set(user.FieldActive, true)
	}

	if err := m.users.Commit(ctx, u); err != nil {
		return err
	}

	if err := m.sessions.SetValues(ctx, newID, map[string]string{
		sessAuthenticated: "1",
		sessUserID:        strconv.FormatInt(u.ID(), 10),
		sessSessKey:       sesskey,
		sessLogoutTime:    logoutTime.Format(time.RFC3339),
	}); err != nil {
		return err
	}

	i.user = u
	i.state = StateAuthenticated
	i.parent = nil

	if instance != nil {
		authenticator, err := m.registry.For(instance.Type)
		if err == nil {
			if err := authenticator.PostLogin(ctx, u.ID()); err != nil {
				return fmt.Errorf("post-login hook failed: %w", err)
			}
		}
	}

	if m.metrics != nil {
		m.metrics.ActiveSessions.Inc()
	}
	return nil
}

// Logout tears the session back down to Anonymous. The last institution is
// staged in the fresh session so the login page can theme itself; every
// identity field returns to its default and the record is left clean, so a
// commit after logout is a no-op.
func (i *Identity) Logout(ctx context.Context) error {
	m := i.m

	// The institution actually used is the one the auth instance belongs
	// to; accounts without an institution-bound instance fall back to the
	// smallest membership name so the choice stays deterministic.
	lastInstitution := ""
	if instanceID := i.user.AuthInstanceID(); instanceID != 0 {
		name, _, err := m.users.InstitutionOfInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		lastInstitution = name
	}
	if lastInstitution == "" {
		for name := range i.user.Institutions() {
			if lastInstitution == "" || name < lastInstitution {
				lastInstitution = name
			}
		}
	}

	if err := m.users.DeleteSessionRecord(ctx, i.sessionID); err != nil {
		return err
	}
	if err := m.sessions.ClearPrefix(ctx, i.sessionID, viewAccessPrefix); err != nil {
		return err
	}
	if err := m.sessions.DeleteValues(ctx, i.sessionID,
		sessAuthenticated, sessUserID, sessSessKey, sessLogoutTime,
		sessParentID, sessParentName,
	); err != nil {
		return err
	}
	if lastInstitution != "" {
		if err := m.sessions.SetValue(ctx, i.sessionID, sessLastInst, lastInstitution); err != nil {
			return err
		}
	}

	wasAuthenticated := i.state != StateAnonymous

	i.user.Attrs().Reset()
	i.user.Attrs().MarkClean()
	i.state = StateAnonymous
	i.parent = nil

	if wasAuthenticated && m.metrics != nil {
		m.metrics.ActiveSessions.Dec()
	}
	return nil
}

// Renew extends the session's absolute expiry and stamps last access,
// throttled by the configured frequency so busy users do not write a row
// per request.
func (i *Identity) Renew(ctx context.Context) error {
	if i.state == StateAnonymous {
		return nil
	}
	m := i.m
	now := time.Now()

	logoutTime := now.Add(m.session.Timeout)
	i.user.Set(user.FieldLogoutTime, logoutTime)
	if err := m.sessions.SetValue(ctx, i.sessionID, sessLogoutTime, logoutTime.Format(time.RFC3339)); err != nil {
		return err
	}

	last := timeAttr(i.user, user.FieldLastAccess)
	if last.IsZero() || now.Sub(last) >= m.session.LastAccessUpdateFrequency {
		if err := m.users.UpdateLastAccess(ctx, i.user.ID(), now); err != nil {
			return err
		}
		i.user.Set(user.FieldLastAccess, now)
	}

	if m.metrics != nil {
		m.metrics.SessionRenewalsTotal.Inc()
	}
	return nil
}

// ChangeIdentityTo switches the session to act as the target account
// ("login as"), keeping a snapshot of the administrator for restore. The
// session is fully reloaded as the target: record, caches, preferences and
// special views. No credential check runs and the session id is kept,
// unlike a real login. Nested impersonation is rejected and the identity
// stays on the current target.
func (i *Identity) ChangeIdentityTo(ctx context.Context, targetID int64) error {
	m := i.m

	if i.state == StateAnonymous {
		return &AccessDeniedError{Reason: "not authenticated"}
	}
	if i.parent != nil {
		return &AccessDeniedError{Reason: "already impersonating"}
	}

	target, err := m.users.FindByID(ctx, targetID)
	if err != nil {
		return err
	}

	// The admin check needs fresh institution data on both sides.
	if err := m.users.ResetInstitutions(ctx, i.user, m.gens, false); err != nil {
		return err
	}
	if err := m.users.ResetInstitutions(ctx, target, m.gens, false); err != nil {
		return err
	}
	if !user.IsAdminForUser(i.user, target) {
		return &AccessDeniedError{Reason: "not an administrator for target user"}
	}

	snapshot := &ImpersonationSnapshot{
		UserID:      i.user.ID(),
		DisplayName: i.user.DisplayName(),
	}

	if err := m.users.ResetGroupRoles(ctx, target, m.gens); err != nil {
		return err
	}
	if err := m.reloadProfile(ctx, target); err != nil {
		return err
	}
	target.Set(user.FieldAuthenticated, true)
	target.Set(user.FieldSessionID, i.sessionID)
	target.Set(user.FieldSessKey, uuid.NewString())
	target.Set(user.FieldParentUser, snapshot)

	if err := m.sessions.SetValues(ctx, i.sessionID, map[string]string{
		sessUserID:     strconv.FormatInt(target.ID(), 10),
		sessParentID:   strconv.FormatInt(snapshot.UserID, 10),
		sessParentName: snapshot.DisplayName,
	}); err != nil {
		return err
	}

	i.user = target
	i.parent = snapshot
	i.state = StateImpersonating

	if m.metrics != nil {
		m.metrics.ImpersonationsTotal.Inc()
	}
	m.log.WithContext(ctx).WithFields(map[string]interface{}{
		"admin": snapshot.UserID,
		"usr":   target.ID(),
	}).Info("Impersonation started")
	return nil
}

// RestoreIdentity returns from an impersonation to the administrator who
// started it.
func (i *Identity) RestoreIdentity(ctx context.Context) error {
	m := i.m

	if i.parent == nil {
		return &AccessDeniedError{Reason: "not impersonating"}
	}

	original, err := m.users.FindByID(ctx, i.parent.UserID)
	if err != nil {
		return err
	}
	if err := m.users.ResetInstitutions(ctx, original, m.gens, false); err != nil {
		return err
	}
	if err := m.users.ResetGroupRoles(ctx, original, m.gens); err != nil {
		return err
	}
	if err := m.reloadProfile(ctx, original); err != nil {
		return err
	}
	original.Set(user.FieldAuthenticated, true)
	original.Set(user.FieldSessionID, i.sessionID)
	original.Set(user.FieldSessKey, uuid.NewString())

	if err := m.sessions.SetValues(ctx, i.sessionID, map[string]string{
		sessUserID: strconv.FormatInt(original.ID(), 10),
	}); err != nil {
		return err
	}
	if err := m.sessions.DeleteValues(ctx, i.sessionID, sessParentID, sessParentName); err != nil {
		return err
	}

	i.user = original
	i.parent = nil
	i.state = StateAuthenticated
	return nil
}

// StageLanguage stages a language preference chosen while logged out; it is
// adopted into the account preferences at the next authenticate.
func (i *Identity) StageLanguage(ctx context.Context, lang string) error {
	return i.m.sessions.SetValue(ctx, i.sessionID, sessPendingLang, lang)
}

// GrantViewAccess stages a secret-URL view access token in the session.
func (i *Identity) GrantViewAccess(ctx context.Context, token string) error {
	return i.m.sessions.SetValue(ctx, i.sessionID, viewAccessPrefix+token, "1")
}

func (i *Identity) recordLogin(outcome string) {
	if i.m.metrics != nil {
		i.m.metrics.RecordLogin(outcome)
	}
}

func timeAttr(u *user.User, name string) time.Time {
	v, err := u.Get(name)
	if err != nil {
		return time.Time{}
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}
	}
	return t
}
