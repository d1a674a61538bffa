package rbac

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Matrix is the role×scope grant projection.
type Matrix struct {
	Roles  []Role
	Scopes []Scope
	edges  map[RoleGrant]struct{}
}

// NewMatrix builds a projection from rows.
func NewMatrix(roles []Role, scopes []Scope, grants []RoleGrant) *Matrix {
	m := &Matrix{Roles: roles, Scopes: scopes, edges: make(map[RoleGrant]struct{}, len(grants))}
	for _, g := range grants {
		m.edges[g] = struct{}{}
	}
	return m
}

// Has reports whether roleID holds scopeID.
func (m *Matrix) Has(roleID, scopeID int64) bool {
	_, ok := m.edges[RoleGrant{RoleID: roleID, ScopeID: scopeID}]
	return ok
}

// Apply updates the projection with the state returned by ToggleGrant.
func (m *Matrix) Apply(roleID, scopeID int64, granted bool) {
	g := RoleGrant{RoleID: roleID, ScopeID: scopeID}
	if granted {
		m.edges[g] = struct{}{}
		return
	}
	delete(m.edges, g)
}

// Grants lists the edges in role, then scope order.
func (m *Matrix) Grants() []RoleGrant {
	out := make([]RoleGrant, 0, len(m.edges))
	for _, r := range m.Roles {
		for _, s := range m.Scopes {
			if m.Has(r.ID, s.ID) {
				out = append(out, RoleGrant{RoleID: r.ID, ScopeID: s.ID})
			}
		}
	}
	return out
}

// MarshalJSON renders roles, scopes and the edge list.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Roles  []Role      `json:"roles"`
		Scopes []Scope     `json:"scopes"`
		Grants []RoleGrant `json:"grants"`
	}{m.Roles, m.Scopes, m.Grants()})
}

// Matrix loads roles, scopes and grants concurrently.
func (s *Service) Matrix(ctx context.Context) (*Matrix, error) {
	var (
		roles  []Role
		scopes []Scope
		grants []RoleGrant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		roles, err = s.ListRoles(gctx)
		return err
	})
	g.Go(func() (err error) {
		scopes, err = s.ListScopes(gctx)
		return err
	})
	g.Go(func() (err error) {
		grants, err = s.repo.ListGrants(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("rbac: load matrix: %w", err)
	}
	return NewMatrix(roles, scopes, grants), nil
}
