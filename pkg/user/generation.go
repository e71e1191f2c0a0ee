package user

import "sync"

// Generations is a monotonic membership generation counter per user. Every
// operation that changes a user's group or institution membership bumps the
// counter; the institutions and grouproles caches stamp the generation they
// were computed at and recompute lazily once their stamp falls behind.
//
// This replaces a manual call-site discipline of refreshing caches after
// every membership mutation with a contract the caches enforce themselves.
type Generations struct {
	mu   sync.Mutex
	gens map[int64]int64
}

// NewGenerations creates an empty generation counter source.
func NewGenerations() *Generations {
	return &Generations{gens: make(map[int64]int64)}
}

// Bump advances the generation for a user. Called by membership-mutating
// operations, after the storage write succeeds.
func (g *Generations) Bump(userID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gens[userID]++
}

// Current returns the generation for a user. A user never bumped is at
// generation 0.
func (g *Generations) Current(userID int64) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[userID]
}
