package user

import "context"

// IsAdminForUser reports whether the actor may administer the target
// account. Site administrators may administer anyone. Institution
// administrators may administer non-site-admin accounts that share one of
// their administered institutions.
func IsAdminForUser(actor, target *User) bool {
	if actor == nil || target == nil {
		return false
	}
	if actor.Admin() {
		return true
	}
	if target.Admin() {
		return false
	}
	for _, institution := range actor.AdminInstitutions() {
		if target.InInstitution(institution) {
			return true
		}
	}
	return false
}

// CanDeleteSelf reports whether the account may delete itself. The last
// remaining site administrator may not, administering an institution
// requires relinquishing it first, and institutions that disallow
// self-registration also disallow self-deletion for their members.
func (s *Store) CanDeleteSelf(ctx context.Context, u *User) (bool, error) {
	if u.Admin() {
		count, err := s.CountSiteAdmins(ctx)
		if err != nil {
			return false, err
		}
		return count > 1, nil
	}

	if len(u.AdminInstitutions()) > 0 {
		return false, nil
	}

	for _, m := range u.Institutions() {
		if !m.RegisterAllowed {
			return false, nil
		}
	}
	return true, nil
}
