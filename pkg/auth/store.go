package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// Store reads auth instance configuration rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a new auth instance store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetInstance retrieves an auth instance by id.
func (s *Store) GetInstance(ctx context.Context, id int64) (*Instance, error) {
	query := `
		SELECT id, instance_name, auth_type, institution, parent_id, active, login_message
		FROM auth_instance
		WHERE id = $1
	`
	inst := &Instance{}
	var parentID sql.NullInt64
	var loginMessage sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&inst.ID, &inst.Name, &inst.Type, &inst.Institution,
		&parentID, &inst.Active, &loginMessage,
	)
	if err == sql.ErrNoRows {
		return nil, &UnknownInstanceError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth instance: %w", err)
	}

	if parentID.Valid {
		pid := parentID.Int64
		inst.ParentID = &pid
	}
	if loginMessage.Valid {
		inst.LoginMessage = loginMessage.String
	}

	return inst, nil
}

// Resolver resolves instances together with their optional parent.
type Resolver struct {
	store *Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the instance and, when one is configured, its direct
// parent. Delegation is exactly one hop: a parent's own parent is never
// followed.
func (r *Resolver) Resolve(ctx context.Context, id int64) (instance *Instance, parent *Instance, err error) {
	instance, err = r.store.GetInstance(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if instance.ParentID != nil {
		parent, err = r.store.GetInstance(ctx, *instance.ParentID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve parent instance: %w", err)
		}
	}

	return instance, parent, nil
}

// Effective returns the instance that actually performs credential checks:
// the parent when delegation is configured, the instance itself otherwise.
func (r *Resolver) Effective(ctx context.Context, id int64) (*Instance, error) {
	instance, parent, err := r.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		return parent, nil
	}
	return instance, nil
}
