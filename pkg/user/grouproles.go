package user

import "context"

// ResetGroupRoles reloads the user's group role map from storage and stamps
// the record with the current generation for the user.
func (s *Store) ResetGroupRoles(ctx context.Context, u *User, gens *Generations) error {
	gen := gens.Current(u.ID())

	roles, err := s.loadGroupRoles(ctx, u.ID())
	if err != nil {
		return err
	}

	a := u.attrs
	a.Set(FieldGroupRoles, roles)
	a.Set(FieldGroupRolesGen, gen)
	return nil
}

// GroupRolesStale reports whether the record's group role cache predates
// the current generation for the user.
func (u *User) GroupRolesStale(gens *Generations) bool {
	return u.int64Attr(FieldGroupRolesGen) < gens.Current(u.ID())
}
