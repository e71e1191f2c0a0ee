// Package user implements the identity record: the persisted principal with
// its attribute store, derived institution and group-role caches, quota
// accounting, and admin-over-user determination.
//
// A User with id 0 is an unpersisted or anonymous record. The institutions
// and grouproles fields are caches over the membership tables; they carry a
// generation stamp and recompute lazily once the membership generation for
// the user has advanced (see Generations). Stale values between refreshes
// are by design, but no cache survives a join or leave operation unseen.
package user
