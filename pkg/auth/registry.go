package auth

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry maps auth types to their authenticator implementations.
type Registry struct {
	authenticators map[Type]Authenticator
	mu             sync.RWMutex
	log            *logrus.Logger
}

// NewRegistry creates an empty authenticator registry.
func NewRegistry(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		authenticators: make(map[Type]Authenticator),
		log:            log,
	}
}

// Register adds an authenticator for an auth type. Registering the same type
// twice replaces the previous authenticator.
func (r *Registry) Register(t Type, a Authenticator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.authenticators[t]; exists {
		r.log.Warnf("Replacing authenticator for auth type %q", t)
	}
	r.authenticators[t] = a
	r.log.Infof("Registered authenticator for auth type %q", t)
}

// For returns the authenticator handling the given auth type.
func (r *Registry) For(t Type) (Authenticator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.authenticators[t]
	if !ok {
		return nil, fmt.Errorf("no authenticator registered for auth type %q", t)
	}
	return a, nil
}

// Types lists the registered auth types.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.authenticators))
	for t := range r.authenticators {
		types = append(types, t)
	}
	return types
}
