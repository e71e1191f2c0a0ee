// Package session implements the per-request identity: a Redis-backed
// session value store and the authentication state machine that moves a
// session between anonymous, authenticated and impersonating.
package session
