package group

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/openfolio/identity/pkg/observability"
)

const (
	defaultCacheSize = 4096
	defaultCacheTTL  = 5 * time.Minute
)

// Resolver answers role questions for (group, user) pairs. Lookups are
// memoized with a bounded TTL cache; a forced refresh bypasses and
// repopulates the cache entry.
type Resolver struct {
	store   *Store
	cache   *lru.LRU[string, string]
	flight  singleflight.Group
	metrics *observability.Metrics
}

// NewResolver creates a role resolver backed by the given store. metrics
// may be nil.
func NewResolver(store *Store, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		store:   store,
		cache:   lru.NewLRU[string, string](defaultCacheSize, nil, defaultCacheTTL),
		metrics: metrics,
	}
}

func roleKey(groupID, userID int64) string {
	return fmt.Sprintf("%d:%d", groupID, userID)
}

// UserAccess resolves the user's role in the group, RoleNone when not a
// member. Concurrent lookups for the same pair collapse into one query.
func (r *Resolver) UserAccess(ctx context.Context, groupID, userID int64) (string, error) {
	key := roleKey(groupID, userID)
	if role, ok := r.cache.Get(key); ok {
		if r.metrics != nil {
			r.metrics.RoleCacheHitsTotal.Inc()
		}
		return role, nil
	}
	if r.metrics != nil {
		r.metrics.RoleCacheMissesTotal.Inc()
	}

	v, err, _ := r.flight.Do(key, func() (interface{}, error) {
		role, err := r.store.UserRole(ctx, groupID, userID)
		if err != nil {
			return RoleNone, err
		}
		r.cache.Add(key, role)
		return role, nil
	})
	if err != nil {
		return RoleNone, err
	}
	return v.(string), nil
}

// Refresh drops the memoized entry and re-resolves the role from storage.
func (r *Resolver) Refresh(ctx context.Context, groupID, userID int64) (string, error) {
	r.cache.Remove(roleKey(groupID, userID))
	return r.UserAccess(ctx, groupID, userID)
}

// IsOnlyAdmin reports whether the user is the group's sole admin-role
// member.
func (r *Resolver) IsOnlyAdmin(ctx context.Context, groupID, userID int64) (bool, error) {
	role, err := r.UserAccess(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	if role != RoleAdmin {
		return false, nil
	}
	count, err := r.store.CountAdmins(ctx, groupID)
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

// CanChangeRole reports whether the user's role in the group may be changed.
// Non-members have no role to change, and the sole admin can never change
// away from admin, which would orphan the group.
func (r *Resolver) CanChangeRole(ctx context.Context, groupID, userID int64, newRole string) (bool, error) {
	role, err := r.UserAccess(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	if role == RoleNone {
		return false, nil
	}
	only, err := r.IsOnlyAdmin(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	if only {
		return false, nil
	}
	return true, nil
}

// RoleCanEditViews reports whether a role may edit the group's views at
// now. Admins always can. Other roles are gated by the group's editroles
// setting and then by the edit window.
func RoleCanEditViews(g *Group, role string, now time.Time) bool {
	if role == RoleAdmin {
		return true
	}
	if g.EditRoles == EditRolesAdmin {
		return false
	}
	if role == RoleMember && g.EditRoles != EditRolesAll {
		return false
	}
	if role == RoleNone {
		return false
	}
	return g.WithinEditWindow(role, false, now)
}

// RoleCanModerateViews reports whether a role may moderate the group's
// views. Admins always can; other roles come from the group-type plugin's
// moderating role list.
func RoleCanModerateViews(g *Group, role string) bool {
	if role == RoleAdmin {
		return true
	}
	if role == RoleNone {
		return false
	}
	plugin, err := TypeFor(g.Type)
	if err != nil {
		return false
	}
	for _, moderating := range plugin.ViewModeratingRoles() {
		if role == moderating {
			return true
		}
	}
	return false
}
