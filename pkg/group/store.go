package group

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openfolio/identity/pkg/user"
)

// Store persists groups and their membership relation.
type Store struct {
	db   *sql.DB
	gens *user.Generations
}

// NewStore creates a new group store. Membership mutations bump the
// affected user's generation so identity-side role caches go stale.
func NewStore(db *sql.DB, gens *user.Generations) *Store {
	return &Store{db: db, gens: gens}
}

// Get retrieves a group by id.
func (s *Store) Get(ctx context.Context, id int64) (*Group, error) {
	query := `
		SELECT id, name, group_type, institution, edit_roles,
		       edit_window_start, edit_window_end, deleted
		FROM folio_group
		WHERE id = $1 AND NOT deleted
	`
	var g Group
	var start, end sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.Name, &g.Type, &g.Institution, &g.EditRoles,
		&start, &end, &g.Deleted,
	)
	if err == sql.ErrNoRows {
		return nil, &UnknownGroupError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group %d: %w", id, err)
	}
	if start.Valid {
		g.EditWindowStart = start.Time
	}
	if end.Valid {
		g.EditWindowEnd = end.Time
	}
	return &g, nil
}

// UserRole looks up the raw membership role for a user in a group.
// RoleNone means not a member. Callers wanting memoization go through the
// Resolver instead.
func (s *Store) UserRole(ctx context.Context, groupID, userID int64) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM group_member WHERE group_id = $1 AND member = $2`,
		groupID, userID,
	).Scan(&role)
	if err == sql.ErrNoRows {
		return RoleNone, nil
	}
	if err != nil {
		return RoleNone, fmt.Errorf("failed to look up group role: %w", err)
	}
	return role, nil
}

// CountAdmins counts admin-role members of a group.
func (s *Store) CountAdmins(ctx context.Context, groupID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_member WHERE group_id = $1 AND role = $2`,
		groupID, RoleAdmin,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count group admins: %w", err)
	}
	return count, nil
}

// AddMember adds a user to a group with a role and bumps the user's
// generation.
func (s *Store) AddMember(ctx context.Context, groupID, userID int64, role string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_member (group_id, member, role) VALUES ($1, $2, $3)`,
		groupID, userID, role,
	)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	s.gens.Bump(userID)
	return nil
}

// RemoveMember removes a user from a group and bumps the user's generation.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM group_member WHERE group_id = $1 AND member = $2`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	s.gens.Bump(userID)
	return nil
}

// UpdateMemberRole changes a member's role and bumps the user's generation.
func (s *Store) UpdateMemberRole(ctx context.Context, groupID, userID int64, role string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE group_member SET role = $1 WHERE group_id = $2 AND member = $3`,
		role, groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	s.gens.Bump(userID)
	return nil
}
