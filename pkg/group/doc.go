// Package group resolves group membership roles and role-based
// permissions. Role lookups are memoized per (group, user) with a bounded
// TTL cache; membership mutations bump the affected users' generation
// counters so identity-side caches recompute lazily.
package group
