package artefact

import (
	"context"
	"database/sql"
	"fmt"
)

// Store persists artefacts and their access grants.
type Store struct {
	db *sql.DB
}

// NewStore creates a new artefact store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get retrieves an artefact by id.
func (s *Store) Get(ctx context.Context, id int64) (*Artefact, error) {
	query := `
		SELECT id, artefact_type, title, owner, group_id, institution, author, parent, created_at
		FROM artefact
		WHERE id = $1
	`
	var a Artefact
	var owner, groupID, author, parent sql.NullInt64
	var institution sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Type, &a.Title, &owner, &groupID, &institution, &author, &parent, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &UnknownArtefactError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artefact %d: %w", id, err)
	}
	a.Owner = owner.Int64
	a.GroupID = groupID.Int64
	a.Institution = institution.String
	a.Author = author.Int64
	a.Parent = parent.Int64
	return &a, nil
}

// GetParent retrieves the artefact's parent, or nil at the tree root.
func (s *Store) GetParent(ctx context.Context, a *Artefact) (*Artefact, error) {
	if a.Parent == 0 {
		return nil, nil
	}
	return s.Get(ctx, a.Parent)
}

// UnderPublicFolder reports whether any strict ancestor of the artefact is
// an institution public folder. The walk is bounded to guard against a
// corrupted cyclic parent chain.
func (s *Store) UnderPublicFolder(ctx context.Context, a *Artefact) (bool, error) {
	const maxDepth = 64
	current := a
	for depth := 0; depth < maxDepth; depth++ {
		parent, err := s.GetParent(ctx, current)
		if err != nil {
			return false, err
		}
		if parent == nil {
			return false, nil
		}
		if parent.IsPublicFolder() {
			return true, nil
		}
		current = parent
	}
	return false, fmt.Errorf("artefact %d parent chain exceeds depth %d", a.ID, maxDepth)
}

// PublicFolderID returns the id of the institution's public folder, or 0
// when the institution has none.
func (s *Store) PublicFolderID(ctx context.Context, institution string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM artefact
		WHERE institution = $1 AND artefact_type = $2
	`, institution, TypePublicFolder).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up public folder: %w", err)
	}
	return id, nil
}

// RoleGrant retrieves the per-role grant on a group-owned artefact, or nil
// when none exists for the role.
func (s *Store) RoleGrant(ctx context.Context, artefactID int64, role string) (*RoleGrant, error) {
	var g RoleGrant
	err := s.db.QueryRowContext(ctx, `
		SELECT artefact, role, can_view, can_edit, can_republish
		FROM artefact_access_role
		WHERE artefact = $1 AND role = $2
	`, artefactID, role).Scan(&g.Artefact, &g.Role, &g.View, &g.Edit, &g.Republish)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up role grant: %w", err)
	}
	return &g, nil
}

// UserCanViewGrant reports whether an explicit per-user view grant exists
// on the artefact.
func (s *Store) UserCanViewGrant(ctx context.Context, artefactID, userID int64) (bool, error) {
	var canView bool
	err := s.db.QueryRowContext(ctx, `
		SELECT can_view FROM artefact_access_usr
		WHERE artefact = $1 AND usr = $2
	`, artefactID, userID).Scan(&canView)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up user grant: %w", err)
	}
	return canView, nil
}

// GrantRole upserts a per-role grant on a group-owned artefact.
func (s *Store) GrantRole(ctx context.Context, g *RoleGrant) error {
	query := `
		INSERT INTO artefact_access_role (artefact, role, can_view, can_edit, can_republish)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (artefact, role) DO UPDATE SET
			can_view = EXCLUDED.can_view,
			can_edit = EXCLUDED.can_edit,
			can_republish = EXCLUDED.can_republish
	`
	if _, err := s.db.ExecContext(ctx, query, g.Artefact, g.Role, g.View, g.Edit, g.Republish); err != nil {
		return fmt.Errorf("failed to grant role access: %w", err)
	}
	return nil
}

// GrantUserView upserts a per-user view grant on an artefact.
func (s *Store) GrantUserView(ctx context.Context, artefactID, userID int64, canView bool) error {
	query := `
		INSERT INTO artefact_access_usr (artefact, usr, can_view)
		VALUES ($1, $2, $3)
		ON CONFLICT (artefact, usr) DO UPDATE SET can_view = EXCLUDED.can_view
	`
	if _, err := s.db.ExecContext(ctx, query, artefactID, userID, canView); err != nil {
		return fmt.Errorf("failed to grant user access: %w", err)
	}
	return nil
}
