// Package auth models authentication instances and the pluggable
// authenticators behind them.
//
// An auth instance binds one authentication method (internal password,
// OIDC, ...) to one institution. An instance may delegate identity to a
// configured parent instance; delegation is exactly one hop, never a chain.
// The Resolver makes that one-hop invariant explicit: every lookup either
// uses the instance itself or its direct parent, nothing deeper.
//
// Authenticators are registered per auth type in a Registry. A declined
// authentication (the method does not handle this account) is reported with
// ErrInstanceDeclined and is distinct from wrong credentials.
package auth
