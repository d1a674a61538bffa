package rbac

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// MemoryRepository is an in-process permission store used by
// STORE_DRIVER=memory and by tests. Transactions run against a copy of the
// state that replaces the original only when fn succeeds. It also serves the
// audit timeline.
type MemoryRepository struct {
	mu    sync.RWMutex
	state *memState
	now   func() time.Time
}

type overrideKey struct {
	user  uuid.UUID
	scope int64
}

type memState struct {
	roles     map[int64]Role
	scopes    map[int64]Scope
	grants    map[RoleGrant]struct{}
	profiles  map[uuid.UUID]Profile
	overrides map[overrideKey]bool
	audit     []audit.Record

	nextRole  int64
	nextScope int64
	nextAudit int64

	now func() time.Time
}

// NewMemoryRepository returns an empty store.
func NewMemoryRepository() *MemoryRepository {
	r := &MemoryRepository{now: time.Now}
	r.state = &memState{
		roles:     map[int64]Role{},
		scopes:    map[int64]Scope{},
		grants:    map[RoleGrant]struct{}{},
		profiles:  map[uuid.UUID]Profile{},
		overrides: map[overrideKey]bool{},
		now:       func() time.Time { return r.now() },
	}
	return r
}

func (s *memState) clone() *memState {
	c := *s
	c.roles = maps.Clone(s.roles)
	c.scopes = maps.Clone(s.scopes)
	c.grants = maps.Clone(s.grants)
	c.profiles = maps.Clone(s.profiles)
	c.overrides = maps.Clone(s.overrides)
	c.audit = slices.Clone(s.audit)
	return &c
}

// WithTx runs fn against a private copy of the state and commits it when fn
// returns nil. Writers are serialized.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.state.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	r.state = work
	return nil
}

func read[T any](r *MemoryRepository, fn func(*memState) (T, error)) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(r.state)
}

// PutRole stores a role with an explicit id. Fixture loader.
func (r *MemoryRepository) PutRole(role Role) Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = r.now()
	}
	r.state.roles[role.ID] = role
	r.state.nextRole = max(r.state.nextRole, role.ID)
	return role
}

// PutScope stores a scope with an explicit id. Fixture loader.
func (r *MemoryRepository) PutScope(scope Scope) Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	if scope.CreatedAt.IsZero() {
		scope.CreatedAt = r.now()
	}
	r.state.scopes[scope.ID] = scope
	r.state.nextScope = max(r.state.nextScope, scope.ID)
	return scope
}

// PutGrant stores a grant edge. Fixture loader.
func (r *MemoryRepository) PutGrant(roleID, scopeID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.grants[RoleGrant{RoleID: roleID, ScopeID: scopeID}] = struct{}{}
}

// PutProfile stores a profile. Profiles are owned by the auth backend, so
// this is the only way to create one in memory mode.
func (r *MemoryRepository) PutProfile(p Profile) Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}
	r.state.profiles[p.ID] = p
	return p
}

// ListRoles returns all roles ordered by id.
func (r *MemoryRepository) ListRoles(ctx context.Context) ([]Role, error) {
	return read(r, func(s *memState) ([]Role, error) { return s.ListRoles(ctx) })
}

// GetRole fetches a role by id.
func (r *MemoryRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	return read(r, func(s *memState) (Role, error) { return s.GetRole(ctx, id) })
}

// GetRoleByCode fetches a role by its normalized code.
func (r *MemoryRepository) GetRoleByCode(ctx context.Context, code string) (Role, error) {
	return read(r, func(s *memState) (Role, error) { return s.GetRoleByCode(ctx, code) })
}

// ListScopes returns all scopes ordered by code.
func (r *MemoryRepository) ListScopes(ctx context.Context) ([]Scope, error) {
	return read(r, func(s *memState) ([]Scope, error) { return s.ListScopes(ctx) })
}

// GetScope fetches a scope by id.
func (r *MemoryRepository) GetScope(ctx context.Context, id int64) (Scope, error) {
	return read(r, func(s *memState) (Scope, error) { return s.GetScope(ctx, id) })
}

// ListGrants returns every role-scope edge.
func (r *MemoryRepository) ListGrants(ctx context.Context) ([]RoleGrant, error) {
	return read(r, func(s *memState) ([]RoleGrant, error) { return s.ListGrants(ctx) })
}

// HasGrant reports whether the role confers the scope.
func (r *MemoryRepository) HasGrant(ctx context.Context, roleID, scopeID int64) (bool, error) {
	return read(r, func(s *memState) (bool, error) { return s.HasGrant(ctx, roleID, scopeID) })
}

// ListRoleScopeIDs returns the scope ids a role confers.
func (r *MemoryRepository) ListRoleScopeIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return read(r, func(s *memState) ([]int64, error) { return s.ListRoleScopeIDs(ctx, roleID) })
}

// ListProfiles returns all profiles ordered by name.
func (r *MemoryRepository) ListProfiles(ctx context.Context) ([]Profile, error) {
	return read(r, func(s *memState) ([]Profile, error) { return s.ListProfiles(ctx) })
}

// GetProfile fetches a profile by id.
func (r *MemoryRepository) GetProfile(ctx context.Context, id uuid.UUID) (Profile, error) {
	return read(r, func(s *memState) (Profile, error) { return s.GetProfile(ctx, id) })
}

// GetOverride returns the override row for a user and scope, if any.
func (r *MemoryRepository) GetOverride(ctx context.Context, userID uuid.UUID, scopeID int64) (UserOverride, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.GetOverride(ctx, userID, scopeID)
}

// ListUserOverrides returns a user's override rows ordered by scope id.
func (r *MemoryRepository) ListUserOverrides(ctx context.Context, userID uuid.UUID) ([]UserOverride, error) {
	return read(r, func(s *memState) ([]UserOverride, error) { return s.ListUserOverrides(ctx, userID) })
}

// EffectiveScopes resolves a user's scopes with ComputeEffective.
func (r *MemoryRepository) EffectiveScopes(ctx context.Context, userID uuid.UUID) ([]EffectiveScope, error) {
	return read(r, func(s *memState) ([]EffectiveScope, error) { return s.EffectiveScopes(ctx, userID) })
}

// ListEntries implements audit.Repository.
func (r *MemoryRepository) ListEntries(_ context.Context, q audit.Query) ([]audit.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []audit.Record
	skipped := 0
	for i := len(r.state.audit) - 1; i >= 0; i-- {
		rec := r.state.audit[i]
		if !q.Matches(rec) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func notFound(what string, id any) error {
	return fmt.Errorf("%w: %s %v", shared.ErrNotFound, what, id)
}

func sortedValues[K comparable, V any](m map[K]V, less func(a, b V) int) []V {
	out := slices.Collect(maps.Values(m))
	slices.SortFunc(out, less)
	return out
}

func (s *memState) ListRoles(context.Context) ([]Role, error) {
	return sortedValues(s.roles, func(a, b Role) int { return cmp.Compare(a.ID, b.ID) }), nil
}

func (s *memState) GetRole(_ context.Context, id int64) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, notFound("role", id)
	}
	return role, nil
}

func (s *memState) GetRoleByCode(_ context.Context, code string) (Role, error) {
	for _, role := range s.roles {
		if role.Code == code {
			return role, nil
		}
	}
	return Role{}, notFound("role", code)
}

func (s *memState) InsertRole(_ context.Context, name, code string) (Role, error) {
	if s.roleCodeTaken(code, 0) {
		return Role{}, fmt.Errorf("%w: roles_code_key", shared.ErrDuplicate)
	}
	s.nextRole++
	role := Role{ID: s.nextRole, Name: name, Code: code, CreatedAt: s.now()}
	s.roles[role.ID] = role
	return role, nil
}

func (s *memState) UpdateRole(_ context.Context, role Role) (Role, error) {
	current, ok := s.roles[role.ID]
	if !ok {
		return Role{}, notFound("role", role.ID)
	}
	if s.roleCodeTaken(role.Code, role.ID) {
		return Role{}, fmt.Errorf("%w: roles_code_key", shared.ErrDuplicate)
	}
	current.Name, current.Code = role.Name, role.Code
	s.roles[role.ID] = current
	return current, nil
}

func (s *memState) roleCodeTaken(code string, except int64) bool {
	for id, role := range s.roles {
		if id != except && role.Code == code {
			return true
		}
	}
	return false
}

func (s *memState) DeleteRole(_ context.Context, id int64) error {
	if _, ok := s.roles[id]; !ok {
		return notFound("role", id)
	}
	for g := range s.grants {
		if g.RoleID == id {
			delete(s.grants, g)
		}
	}
	delete(s.roles, id)
	return nil
}

func (s *memState) CountProfilesWithRole(_ context.Context, code string) (int, error) {
	n := 0
	for _, p := range s.profiles {
		if p.Role == code {
			n++
		}
	}
	return n, nil
}

func (s *memState) RenameProfileRole(_ context.Context, oldCode, newCode string) (int, error) {
	n := 0
	for id, p := range s.profiles {
		if p.Role == oldCode {
			p.Role = newCode
			s.profiles[id] = p
			n++
		}
	}
	return n, nil
}

func (s *memState) DeleteGrantsForRole(_ context.Context, roleID int64) (int, error) {
	n := 0
	for g := range s.grants {
		if g.RoleID == roleID {
			delete(s.grants, g)
			n++
		}
	}
	return n, nil
}

func (s *memState) ListScopes(context.Context) ([]Scope, error) {
	return sortedValues(s.scopes, func(a, b Scope) int { return cmp.Compare(a.Code, b.Code) }), nil
}

func (s *memState) GetScope(_ context.Context, id int64) (Scope, error) {
	scope, ok := s.scopes[id]
	if !ok {
		return Scope{}, notFound("scope", id)
	}
	return scope, nil
}

func (s *memState) InsertScope(_ context.Context, code, description string) (Scope, error) {
	if s.scopeCodeTaken(code, 0) {
		return Scope{}, fmt.Errorf("%w: scopes_code_key", shared.ErrDuplicate)
	}
	s.nextScope++
	scope := Scope{ID: s.nextScope, Code: code, Description: description, CreatedAt: s.now()}
	s.scopes[scope.ID] = scope
	return scope, nil
}

func (s *memState) UpdateScope(_ context.Context, scope Scope) (Scope, error) {
	current, ok := s.scopes[scope.ID]
	if !ok {
		return Scope{}, notFound("scope", scope.ID)
	}
	if s.scopeCodeTaken(scope.Code, scope.ID) {
		return Scope{}, fmt.Errorf("%w: scopes_code_key", shared.ErrDuplicate)
	}
	current.Code, current.Description = scope.Code, scope.Description
	s.scopes[scope.ID] = current
	return current, nil
}

func (s *memState) scopeCodeTaken(code string, except int64) bool {
	for id, scope := range s.scopes {
		if id != except && scope.Code == code {
			return true
		}
	}
	return false
}

func (s *memState) DeleteScope(_ context.Context, id int64) error {
	if _, ok := s.scopes[id]; !ok {
		return notFound("scope", id)
	}
	for g := range s.grants {
		if g.ScopeID == id {
			delete(s.grants, g)
		}
	}
	for k := range s.overrides {
		if k.scope == id {
			delete(s.overrides, k)
		}
	}
	delete(s.scopes, id)
	return nil
}

func (s *memState) DeleteGrantsForScope(_ context.Context, scopeID int64) (int, error) {
	n := 0
	for g := range s.grants {
		if g.ScopeID == scopeID {
			delete(s.grants, g)
			n++
		}
	}
	return n, nil
}

func (s *memState) DeleteOverridesForScope(_ context.Context, scopeID int64) (int, error) {
	n := 0
	for k := range s.overrides {
		if k.scope == scopeID {
			delete(s.overrides, k)
			n++
		}
	}
	return n, nil
}

func (s *memState) ListGrants(context.Context) ([]RoleGrant, error) {
	out := slices.Collect(maps.Keys(s.grants))
	slices.SortFunc(out, func(a, b RoleGrant) int {
		return cmp.Or(cmp.Compare(a.RoleID, b.RoleID), cmp.Compare(a.ScopeID, b.ScopeID))
	})
	return out, nil
}

func (s *memState) HasGrant(_ context.Context, roleID, scopeID int64) (bool, error) {
	_, ok := s.grants[RoleGrant{RoleID: roleID, ScopeID: scopeID}]
	return ok, nil
}

func (s *memState) ListRoleScopeIDs(_ context.Context, roleID int64) ([]int64, error) {
	var ids []int64
	for g := range s.grants {
		if g.RoleID == roleID {
			ids = append(ids, g.ScopeID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *memState) InsertGrant(_ context.Context, roleID, scopeID int64) error {
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("%w: role_scopes_role_id_fkey", shared.ErrConflict)
	}
	if _, ok := s.scopes[scopeID]; !ok {
		return fmt.Errorf("%w: role_scopes_scope_id_fkey", shared.ErrConflict)
	}
	g := RoleGrant{RoleID: roleID, ScopeID: scopeID}
	if _, ok := s.grants[g]; ok {
		return fmt.Errorf("%w: role_scopes_pkey", shared.ErrDuplicate)
	}
	s.grants[g] = struct{}{}
	return nil
}

func (s *memState) DeleteGrant(_ context.Context, roleID, scopeID int64) error {
	g := RoleGrant{RoleID: roleID, ScopeID: scopeID}
	if _, ok := s.grants[g]; !ok {
		return notFound("grant", g)
	}
	delete(s.grants, g)
	return nil
}

func (s *memState) ListProfiles(context.Context) ([]Profile, error) {
	return sortedValues(s.profiles, func(a, b Profile) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID.String(), b.ID.String()))
	}), nil
}

func (s *memState) GetProfile(_ context.Context, id uuid.UUID) (Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, notFound("profile", id)
	}
	return p, nil
}

func (s *memState) UpdateProfileRole(_ context.Context, userID uuid.UUID, code string) error {
	p, ok := s.profiles[userID]
	if !ok {
		return notFound("profile", userID)
	}
	p.Role = code
	s.profiles[userID] = p
	return nil
}

func (s *memState) GetOverride(_ context.Context, userID uuid.UUID, scopeID int64) (UserOverride, bool, error) {
	allow, ok := s.overrides[overrideKey{userID, scopeID}]
	if !ok {
		return UserOverride{}, false, nil
	}
	return UserOverride{UserID: userID, ScopeID: scopeID, Allow: allow}, true, nil
}

func (s *memState) ListUserOverrides(_ context.Context, userID uuid.UUID) ([]UserOverride, error) {
	var out []UserOverride
	for k, allow := range s.overrides {
		if k.user == userID {
			out = append(out, UserOverride{UserID: k.user, ScopeID: k.scope, Allow: allow})
		}
	}
	slices.SortFunc(out, func(a, b UserOverride) int { return cmp.Compare(a.ScopeID, b.ScopeID) })
	return out, nil
}

func (s *memState) InsertOverride(_ context.Context, o UserOverride) error {
	if _, ok := s.profiles[o.UserID]; !ok {
		return fmt.Errorf("%w: user_scopes_user_id_fkey", shared.ErrConflict)
	}
	if _, ok := s.scopes[o.ScopeID]; !ok {
		return fmt.Errorf("%w: user_scopes_scope_id_fkey", shared.ErrConflict)
	}
	k := overrideKey{o.UserID, o.ScopeID}
	if _, ok := s.overrides[k]; ok {
		return fmt.Errorf("%w: user_scopes_pkey", shared.ErrDuplicate)
	}
	s.overrides[k] = o.Allow
	return nil
}

func (s *memState) DeleteOverride(_ context.Context, userID uuid.UUID, scopeID int64) error {
	k := overrideKey{userID, scopeID}
	if _, ok := s.overrides[k]; !ok {
		return notFound("override", k)
	}
	delete(s.overrides, k)
	return nil
}

// EffectiveScopes mirrors get_user_effective_scopes: unknown users and
// dangling role codes resolve to role-derived nothing.
func (s *memState) EffectiveScopes(ctx context.Context, userID uuid.UUID) ([]EffectiveScope, error) {
	var roleScopes []int64
	if p, ok := s.profiles[userID]; ok {
		if role, err := s.GetRoleByCode(ctx, p.Role); err == nil {
			roleScopes, _ = s.ListRoleScopeIDs(ctx, role.ID)
		}
	}
	overrides, _ := s.ListUserOverrides(ctx, userID)
	scopes, _ := s.ListScopes(ctx)
	return ComputeEffective(roleScopes, overrides, scopes), nil
}

// Append implements audit.Recorder.
func (s *memState) Append(ctx context.Context, e audit.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}
	s.nextAudit++
	rec := audit.Record{
		ID:         s.nextAudit,
		At:         s.now(),
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Details:    details,
	}
	if actor := shared.ActorFromContext(ctx); actor != uuid.Nil {
		rec.ActorID = &actor
	}
	s.audit = append(s.audit, rec)
	return nil
}
