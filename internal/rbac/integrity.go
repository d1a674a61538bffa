package rbac

import (
	"context"
	"fmt"
)

// DanglingProfiles returns the profiles whose role code names no role.
func DanglingProfiles(profiles []Profile, roles []Role) []Profile {
	codes := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		codes[r.Code] = struct{}{}
	}
	var out []Profile
	for _, p := range profiles {
		if _, ok := codes[p.Role]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// DanglingProfiles scans the store for profiles with an unknown role code.
func (s *Service) DanglingProfiles(ctx context.Context) ([]Profile, error) {
	profiles, err := s.repo.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: dangling profiles: %w", err)
	}
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: dangling profiles: %w", err)
	}
	return DanglingProfiles(profiles, roles), nil
}
