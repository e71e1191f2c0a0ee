package user

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ResetInstitutions reloads the user's institution memberships from storage
// and recomputes the derived fields: the membership map, the admin and
// staff subsets, and the resolved theme. The record is stamped with the
// current generation for the user so stale caches can be detected.
func (s *Store) ResetInstitutions(ctx context.Context, u *User, gens *Generations, noCacheCSS bool) error {
	gen := gens.Current(u.ID())

	memberships, err := s.loadInstitutions(ctx, u.ID())
	if err != nil {
		return err
	}

	var admins, staff []string
	for name, m := range memberships {
		if m.Admin {
			admins = append(admins, name)
		}
		if m.Staff {
			staff = append(staff, name)
		}
	}
	sort.Strings(admins)
	sort.Strings(staff)
	if admins == nil {
		admins = []string{}
	}
	if staff == nil {
		staff = []string{}
	}

	theme, err := s.resolveTheme(ctx, u, memberships, noCacheCSS)
	if err != nil {
		return err
	}

	a := u.attrs
	a.Set(FieldInstitutions, memberships)
	a.Set(FieldAdminInstitutions, admins)
	a.Set(FieldStaffInstitutions, staff)
	a.Set(FieldInstitutionTheme, theme)
	a.Set(FieldInstitutionsGen, gen)
	return nil
}

// resolveTheme picks the theme the user sees. A personal theme choice wins
// outright. Otherwise a themed institution is chosen: the institution of
// the user's auth instance when it carries a theme, else the themed
// institution with the lexicographically smallest name, so the result is
// stable across map iteration order.
func (s *Store) resolveTheme(ctx context.Context, u *User, memberships map[string]InstitutionMembership, noCacheCSS bool) (*Theme, error) {
	if personal := u.stringAttr(FieldTheme); personal != "" {
		return newTheme(personal, "", noCacheCSS), nil
	}

	if instanceID := u.AuthInstanceID(); instanceID != 0 {
		institution, theme, err := s.InstitutionOfInstance(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		if theme != "" {
			if _, member := memberships[institution]; member {
				return newTheme(theme, institution, noCacheCSS), nil
			}
		}
	}

	var names []string
	for name, m := range memberships {
		if m.Theme != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)
	chosen := names[0]
	return newTheme(memberships[chosen].Theme, chosen, noCacheCSS), nil
}

func newTheme(name, institution string, noCacheCSS bool) *Theme {
	url := fmt.Sprintf("/theme/%s/style.css", name)
	if noCacheCSS {
		// Cache-busting param so a freshly switched theme is not served
		// from the browser cache.
		url = fmt.Sprintf("%s?v=%d", url, time.Now().Unix())
	}
	return &Theme{Name: name, Institution: institution, StylesheetURL: url}
}

// InstitutionsStale reports whether the record's institution cache predates
// the current generation for the user.
func (u *User) InstitutionsStale(gens *Generations) bool {
	return u.int64Attr(FieldInstitutionsGen) < gens.Current(u.ID())
}
