package view

import (
	"context"
	"database/sql"
	"fmt"
)

// TemplateService creates views from system templates. The real
// implementation lives with the page-composition code; identity only needs
// enough to install the special views at login.
type TemplateService interface {
	// CreateFromTemplate creates a view of the given type for the owner
	// from the system template and returns its id.
	CreateFromTemplate(ctx context.Context, ownerID int64, viewType string) (int64, error)
}

// Store persists views, collections and export archives.
type Store struct {
	db *sql.DB
}

// NewStore creates a new view store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get retrieves a view by id.
func (s *Store) Get(ctx context.Context, id int64) (*View, error) {
	query := `
		SELECT id, title, view_type, owner, group_id, institution, locked, created_at
		FROM view
		WHERE id = $1
	`
	var v View
	var owner, groupID sql.NullInt64
	var institution sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID, &v.Title, &v.Type, &owner, &groupID, &institution, &v.Locked, &v.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &UnknownViewError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get view %d: %w", id, err)
	}
	v.Owner = owner.Int64
	v.GroupID = groupID.Int64
	v.Institution = institution.String
	return &v, nil
}

// GetCollection retrieves a collection by id.
func (s *Store) GetCollection(ctx context.Context, id int64) (*Collection, error) {
	query := `
		SELECT id, name, owner, group_id, institution, created_at
		FROM collection
		WHERE id = $1
	`
	var c Collection
	var owner, groupID sql.NullInt64
	var institution sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &owner, &groupID, &institution, &c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &UnknownViewError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection %d: %w", id, err)
	}
	c.Owner = owner.Int64
	c.GroupID = groupID.Int64
	c.Institution = institution.String
	return &c, nil
}

// GetArchive retrieves an export archive by id.
func (s *Store) GetArchive(ctx context.Context, id int64) (*Archive, error) {
	query := `
		SELECT id, usr, group_id, filename, created_at
		FROM export_archive
		WHERE id = $1
	`
	var a Archive
	var groupID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.UserID, &groupID, &a.Filename, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, &UnknownViewError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archive %d: %w", id, err)
	}
	a.GroupID = groupID.Int64
	return &a, nil
}

// SpecialViews returns the user's special view ids keyed by view type.
func (s *Store) SpecialViews(ctx context.Context, ownerID int64) (map[string]int64, error) {
	query := `
		SELECT view_type, id FROM view
		WHERE owner = $1 AND view_type IN ($2, $3)
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID, TypeProfile, TypeDashboard)
	if err != nil {
		return nil, fmt.Errorf("failed to load special views: %w", err)
	}
	defer rows.Close()

	views := make(map[string]int64)
	for rows.Next() {
		var viewType string
		var id int64
		if err := rows.Scan(&viewType, &id); err != nil {
			return nil, fmt.Errorf("failed to scan special view: %w", err)
		}
		views[viewType] = id
	}
	return views, rows.Err()
}

// EnsureSpecialViews returns the user's special view ids, creating any
// missing ones from the system templates.
func (s *Store) EnsureSpecialViews(ctx context.Context, ownerID int64, templates TemplateService) (map[string]int64, error) {
	views, err := s.SpecialViews(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, viewType := range []string{TypeProfile, TypeDashboard} {
		if _, ok := views[viewType]; ok {
			continue
		}
		id, err := templates.CreateFromTemplate(ctx, ownerID, viewType)
		if err != nil {
			return nil, fmt.Errorf("failed to install %s view: %w", viewType, err)
		}
		views[viewType] = id
	}
	return views, nil
}
