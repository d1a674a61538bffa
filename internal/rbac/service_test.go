package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

func strPtr(s string) *string { return &s }

func TestCreateRoleNormalizesAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.svc.CreateRole(ctx, RoleInput{Name: "  Closer ", Code: " closer "})
	require.NoError(t, err)
	assert.Equal(t, "Closer", role.Name)
	assert.Equal(t, "CLOSER", role.Code)
	assert.Equal(t, int64(4), role.ID)

	log := f.auditLog(t)
	require.Len(t, log, 1)
	assert.Equal(t, audit.ActionCreate, log[0].Action)
	assert.Equal(t, audit.EntityRole, log[0].EntityType)
	require.NotNil(t, log[0].EntityID)
	assert.Equal(t, "4", *log[0].EntityID)
	assert.JSONEq(t, `{"new":{"id":4,"name":"Closer","code":"CLOSER"}}`, string(log[0].Details))
}

func TestCreateRoleRejectsEmptyFieldsBeforeStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRole(ctx, RoleInput{Name: "   ", Code: "X"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Contains(t, err.Error(), "name is required")

	_, err = f.svc.CreateRole(ctx, RoleInput{Name: "X", Code: ""})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Contains(t, err.Error(), "code is required")

	_, err = f.svc.CreateScope(ctx, ScopeInput{Code: "leads:export"})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Contains(t, err.Error(), "description is required")

	assert.Empty(t, f.auditLog(t))
}

func TestCodesAreUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRole(ctx, RoleInput{Name: "Another gestor", Code: "gestor"})
	assert.ErrorIs(t, err, shared.ErrDuplicate)

	_, err = f.svc.CreateScope(ctx, ScopeInput{Code: "LEADS:READ", Description: "dup"})
	assert.ErrorIs(t, err, shared.ErrDuplicate)

	_, err = f.svc.UpdateRole(ctx, f.sdr.ID, RolePatch{Code: strPtr("Gestor")})
	assert.ErrorIs(t, err, shared.ErrDuplicate)

	_, err = f.svc.UpdateScope(ctx, f.adminWrite.ID, ScopePatch{Code: strPtr("leads:read")})
	assert.ErrorIs(t, err, shared.ErrDuplicate)

	roles, err := f.svc.ListRoles(ctx)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, r := range roles {
		assert.False(t, seen[r.Code], r.Code)
		seen[r.Code] = true
	}
	assert.Empty(t, f.auditLog(t))
}

func TestUpdateRoleRequiresAField(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateRole(context.Background(), f.sdr.ID, RolePatch{})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.UpdateRole(context.Background(), f.sdr.ID, RolePatch{Name: strPtr(" ")})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.UpdateRole(context.Background(), 99, RolePatch{Name: strPtr("Ghost")})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateRoleCodeRenamesProfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.svc.UpdateRole(ctx, f.gestor.ID, RolePatch{Code: strPtr("manager")})
	require.NoError(t, err)
	assert.Equal(t, "MANAGER", role.Code)
	assert.Equal(t, "Gestor", role.Name)

	profile, err := f.repo.GetProfile(ctx, f.u.ID)
	require.NoError(t, err)
	assert.Equal(t, "MANAGER", profile.Role)

	scopes, err := f.svc.Resolve(ctx, f.u.ID)
	require.NoError(t, err)
	assert.Equal(t, []EffectiveScope{{ScopeCode: "leads:read", ScopeDescription: "View leads", Source: SourceRole}}, scopes)

	log := f.auditLog(t)
	require.Len(t, log, 1)
	var details audit.RoleUpdated
	require.NoError(t, json.Unmarshal(log[0].Details, &details))
	assert.Equal(t, "GESTOR", details.Old.Code)
	assert.Equal(t, "MANAGER", details.New.Code)
	assert.Equal(t, 1, details.ProfilesRenamed)
}

func TestDeleteRoleGuardsAssignedProfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.DeleteRole(ctx, f.gestor.ID)
	assert.ErrorIs(t, err, shared.ErrConflict)
	_, err = f.repo.GetRole(ctx, f.gestor.ID)
	assert.NoError(t, err)
	assert.Empty(t, f.auditLog(t))
}

func TestDeleteRoleCascadesGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.PutGrant(f.admin.ID, f.leadsRead.ID)
	f.repo.PutGrant(f.admin.ID, f.adminWrite.ID)

	require.NoError(t, f.svc.DeleteRole(ctx, f.admin.ID))

	grants, err := f.repo.ListGrants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []RoleGrant{{RoleID: 2, ScopeID: 5}}, grants)

	log := f.auditLog(t)
	require.Len(t, log, 1)
	assert.Equal(t, audit.ActionDelete, log[0].Action)
	assert.JSONEq(t, `{"old":{"id":1,"name":"Administrador","code":"ADMIN"},"grants_removed":2}`, string(log[0].Details))

	assert.ErrorIs(t, f.svc.DeleteRole(ctx, f.admin.ID), shared.ErrNotFound)
}

func TestDeleteScopeCascadesGrantsAndOverrides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ToggleOverride(ctx, f.u.ID, f.leadsRead.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteScope(ctx, f.leadsRead.ID))

	grants, err := f.repo.ListGrants(ctx)
	require.NoError(t, err)
	assert.Empty(t, grants)
	overrides, err := f.repo.ListUserOverrides(ctx, f.u.ID)
	require.NoError(t, err)
	assert.Empty(t, overrides)

	log := f.auditLog(t)
	require.Len(t, log, 2)
	var details audit.ScopeDeleted
	require.NoError(t, json.Unmarshal(log[0].Details, &details))
	assert.Equal(t, 1, details.GrantsRemoved)
	assert.Equal(t, 1, details.OverridesRemoved)
}

func TestToggleGrantTwiceRestoresMatrix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.svc.Matrix(ctx)
	require.NoError(t, err)
	require.True(t, before.Has(f.gestor.ID, f.leadsRead.ID))

	granted, err := f.svc.ToggleGrant(ctx, f.gestor.ID, f.leadsRead.ID)
	require.NoError(t, err)
	assert.False(t, granted)
	granted, err = f.svc.ToggleGrant(ctx, f.gestor.ID, f.leadsRead.ID)
	require.NoError(t, err)
	assert.True(t, granted)

	after, err := f.svc.Matrix(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Grants(), after.Grants())

	log := f.auditLog(t)
	require.Len(t, log, 2)
	assert.Equal(t, audit.ActionGrant, log[0].Action)
	assert.Equal(t, audit.ActionRevoke, log[1].Action)
	for _, rec := range log {
		assert.Equal(t, audit.EntityRoleScope, rec.EntityType)
		assert.Nil(t, rec.EntityID)
		assert.JSONEq(t, `{"role_id":2,"scope_id":5}`, string(rec.Details))
	}
}

func TestToggleGrantUnknownCell(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ToggleGrant(context.Background(), 42, f.leadsRead.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.ToggleGrant(context.Background(), f.gestor.ID, 42)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, f.auditLog(t))
}

func TestMatrixApplyTracksToggleResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := f.svc.Matrix(ctx)
	require.NoError(t, err)

	granted, err := f.svc.ToggleGrant(ctx, f.sdr.ID, f.adminWrite.ID)
	require.NoError(t, err)
	m.Apply(f.sdr.ID, f.adminWrite.ID, granted)

	fresh, err := f.svc.Matrix(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh.Grants(), m.Grants())
}

func TestOverrideCycleWhenRoleConfersScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.svc.UserScopeStatus(ctx, f.u.ID, f.leadsRead.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInherited, status)

	status, err = f.svc.ToggleOverride(ctx, f.u.ID, f.leadsRead.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, status)

	status, err = f.svc.ToggleOverride(ctx, f.u.ID, f.leadsRead.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInherited, status)

	overrides, err := f.repo.ListUserOverrides(ctx, f.u.ID)
	require.NoError(t, err)
	assert.Empty(t, overrides)

	log := f.auditLog(t)
	require.Len(t, log, 2)
	assert.Equal(t, audit.ActionUpdate, log[0].Action)
	assert.Contains(t, string(log[0].Details), `"action":"remove_revocation"`)
	assert.Equal(t, audit.ActionRevoke, log[1].Action)
	assert.Contains(t, string(log[1].Details), `"allow":false`)
}

func TestOverrideCycleWhenRoleDoesNotConferScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.svc.UserScopeStatus(ctx, f.v.ID, f.adminWrite.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNone, status)

	status, err = f.svc.ToggleOverride(ctx, f.v.ID, f.adminWrite.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusGranted, status)

	status, err = f.svc.ToggleOverride(ctx, f.v.ID, f.adminWrite.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNone, status)

	log := f.auditLog(t)
	require.Len(t, log, 2)
	assert.Equal(t, audit.ActionUpdate, log[0].Action)
	assert.Contains(t, string(log[0].Details), `"action":"remove_grant"`)
	assert.Equal(t, audit.ActionGrant, log[1].Action)
}

func TestGrantedOverrideOnInheritedScopeFallsBackToInherited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertOverride(ctx, UserOverride{UserID: f.u.ID, ScopeID: f.leadsRead.ID, Allow: true})
	}))

	status, err := f.svc.ToggleOverride(ctx, f.u.ID, f.leadsRead.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInherited, status)
}

func TestToggleOverrideUnknownUserOrScope(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ToggleOverride(context.Background(), uuid.New(), f.leadsRead.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.ToggleOverride(context.Background(), f.u.ID, 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, f.auditLog(t))
}

func TestDanglingRoleCodeConfersNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ghost := f.repo.PutProfile(Profile{Name: "Ghost", Role: "RETIRED"})

	status, err := f.svc.UserScopeStatus(ctx, ghost.ID, f.leadsRead.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNone, status)

	scopes, err := f.svc.Resolve(ctx, ghost.ID)
	require.NoError(t, err)
	assert.Empty(t, scopes)

	dangling, err := f.svc.DanglingProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, dangling, 1)
	assert.Equal(t, ghost.ID, dangling[0].ID)
}

func TestUserScopeStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ToggleOverride(ctx, f.u.ID, f.adminWrite.ID)
	require.NoError(t, err)

	statuses, err := f.svc.UserScopeStatuses(ctx, f.u.ID)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "admin:write", statuses[0].Scope.Code)
	require.NotNil(t, statuses[0].Status)
	assert.Equal(t, "granted", *statuses[0].Status)
	assert.Equal(t, "leads:read", statuses[1].Scope.Code)
	require.NotNil(t, statuses[1].Status)
	assert.Equal(t, "inherited", *statuses[1].Status)

	statuses, err = f.svc.UserScopeStatuses(ctx, f.v.ID)
	require.NoError(t, err)
	for _, st := range statuses {
		assert.Nil(t, st.Status, st.Scope.Code)
	}
}

// Every combination of role grant and override must agree between the
// resolver and the status view.
func TestEffectiveScopeCorrectness(t *testing.T) {
	type override int
	const (
		noOverride override = iota
		allowOverride
		denyOverride
	)
	for _, confers := range []bool{false, true} {
		for _, ov := range []override{noOverride, allowOverride, denyOverride} {
			f := newFixture(t)
			ctx := context.Background()
			scope := f.adminWrite
			if confers {
				f.repo.PutGrant(f.sdr.ID, scope.ID)
			}
			if ov != noOverride {
				require.NoError(t, f.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
					return tx.InsertOverride(ctx, UserOverride{UserID: f.v.ID, ScopeID: scope.ID, Allow: ov == allowOverride})
				}))
			}

			want := (confers && ov != denyOverride) || ov == allowOverride
			scopes, err := f.svc.Resolve(ctx, f.v.ID)
			require.NoError(t, err)
			got := false
			for _, s := range scopes {
				if s.ScopeCode == scope.Code {
					got = true
					wantSource := SourceRole
					if ov == allowOverride {
						wantSource = SourceOverride
					}
					assert.Equal(t, wantSource, s.Source)
				}
			}
			assert.Equal(t, want, got, "confers=%v override=%d", confers, ov)

			status, err := f.svc.UserScopeStatus(ctx, f.v.ID, scope.ID)
			require.NoError(t, err)
			assert.Equal(t, want, status == StatusGranted || status == StatusInherited)

			allowed, err := f.svc.Allowed(ctx, f.v.ID, scope.Code)
			require.NoError(t, err)
			assert.Equal(t, want, allowed)
		}
	}
}

func TestScenarioRevokeInheritedScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	want := []EffectiveScope{{ScopeCode: "leads:read", ScopeDescription: "View leads", Source: SourceRole}}

	scopes, err := f.svc.Resolve(ctx, f.u.ID)
	require.NoError(t, err)
	assert.Equal(t, want, scopes)

	_, err = f.svc.ToggleOverride(ctx, f.u.ID, 5)
	require.NoError(t, err)
	o, ok, err := f.repo.GetOverride(ctx, f.u.ID, 5)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, UserOverride{UserID: f.u.ID, ScopeID: 5, Allow: false}, o)

	scopes, err = f.svc.Resolve(ctx, f.u.ID)
	require.NoError(t, err)
	assert.Empty(t, scopes)

	_, err = f.svc.ToggleOverride(ctx, f.u.ID, 5)
	require.NoError(t, err)
	_, ok, err = f.repo.GetOverride(ctx, f.u.ID, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	scopes, err = f.svc.Resolve(ctx, f.u.ID)
	require.NoError(t, err)
	assert.Equal(t, want, scopes)
}

func TestScenarioGrantScopeOutsideRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ToggleOverride(ctx, f.v.ID, 9)
	require.NoError(t, err)
	o, ok, err := f.repo.GetOverride(ctx, f.v.ID, 9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, o.Allow)

	scopes, err := f.svc.Resolve(ctx, f.v.ID)
	require.NoError(t, err)
	assert.Contains(t, scopes, EffectiveScope{ScopeCode: "admin:write", ScopeDescription: "Administer the dashboard", Source: SourceOverride})

	_, err = f.svc.ToggleOverride(ctx, f.v.ID, 9)
	require.NoError(t, err)
	scopes, err = f.svc.Resolve(ctx, f.v.ID)
	require.NoError(t, err)
	for _, s := range scopes {
		assert.NotEqual(t, "admin:write", s.ScopeCode)
	}
}

func TestAuditCompleteness(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()
	ctx := shared.ContextWithActor(context.Background(), actor)

	type step struct {
		entity audit.EntityType
		action audit.Action
		run    func() error
	}
	var created Role
	var scope Scope
	steps := []step{
		{audit.EntityRole, audit.ActionCreate, func() (err error) {
			created, err = f.svc.CreateRole(ctx, RoleInput{Name: "Closer", Code: "CLOSER"})
			return err
		}},
		{audit.EntityRole, audit.ActionUpdate, func() error {
			_, err := f.svc.UpdateRole(ctx, created.ID, RolePatch{Name: strPtr("Closer II")})
			return err
		}},
		{audit.EntityScope, audit.ActionCreate, func() (err error) {
			scope, err = f.svc.CreateScope(ctx, ScopeInput{Code: "leads:export", Description: "Export leads"})
			return err
		}},
		{audit.EntityScope, audit.ActionUpdate, func() error {
			_, err := f.svc.UpdateScope(ctx, scope.ID, ScopePatch{Description: strPtr("Export lead lists")})
			return err
		}},
		{audit.EntityRoleScope, audit.ActionGrant, func() error {
			_, err := f.svc.ToggleGrant(ctx, created.ID, scope.ID)
			return err
		}},
		{audit.EntityRoleScope, audit.ActionRevoke, func() error {
			_, err := f.svc.ToggleGrant(ctx, created.ID, scope.ID)
			return err
		}},
		{audit.EntityUserScope, audit.ActionRevoke, func() error {
			_, err := f.svc.ToggleOverride(ctx, f.u.ID, f.leadsRead.ID)
			return err
		}},
		{audit.EntityUserScope, audit.ActionUpdate, func() error {
			_, err := f.svc.ToggleOverride(ctx, f.u.ID, f.leadsRead.ID)
			return err
		}},
		{audit.EntityUserScope, audit.ActionGrant, func() error {
			_, err := f.svc.ToggleOverride(ctx, f.u.ID, f.adminWrite.ID)
			return err
		}},
		{audit.EntityScope, audit.ActionDelete, func() error { return f.svc.DeleteScope(ctx, scope.ID) }},
		{audit.EntityRole, audit.ActionDelete, func() error { return f.svc.DeleteRole(ctx, created.ID) }},
	}
	for i, st := range steps {
		require.NoError(t, st.run(), "step %d", i)
		log := f.auditLog(t)
		require.Len(t, log, i+1, "step %d", i)
		assert.Equal(t, st.entity, log[0].EntityType, "step %d", i)
		assert.Equal(t, st.action, log[0].Action, "step %d", i)
		require.NotNil(t, log[0].ActorID)
		assert.Equal(t, actor, *log[0].ActorID)
	}
}

type failingRecorderRepo struct {
	*MemoryRepository
}

type failingTx struct {
	TxRepository
}

func (failingTx) Append(context.Context, audit.Entry) error { return errors.New("audit down") }

func (r failingRecorderRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.MemoryRepository.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return fn(ctx, failingTx{tx})
	})
}

func TestMutationRollsBackWhenAuditFails(t *testing.T) {
	f := newFixture(t)
	svc := NewService(failingRecorderRepo{f.repo})
	ctx := context.Background()

	_, err := svc.ToggleGrant(ctx, f.gestor.ID, f.leadsRead.ID)
	require.Error(t, err)
	has, err := f.repo.HasGrant(ctx, f.gestor.ID, f.leadsRead.ID)
	require.NoError(t, err)
	assert.True(t, has)

	role, err := svc.CreateRole(ctx, RoleInput{Name: "Closer", Code: "CLOSER"})
	require.Error(t, err)
	assert.Equal(t, Role{}, role)
	_, err = f.repo.GetRoleByCode(ctx, "CLOSER")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	scope, err := svc.CreateScope(ctx, ScopeInput{Code: "sales:read", Description: "View sales"})
	require.Error(t, err)
	assert.Equal(t, Scope{}, scope)

	code := "MANAGER"
	role, err = svc.UpdateRole(ctx, f.gestor.ID, RolePatch{Code: &code})
	require.Error(t, err)
	assert.Equal(t, Role{}, role)
	stored, err := f.repo.GetRole(ctx, f.gestor.ID)
	require.NoError(t, err)
	assert.Equal(t, "GESTOR", stored.Code)
}

func TestResolveUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Resolve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

type busyGuard struct{ keys []string }

func (g *busyGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.keys = append(g.keys, key)
	return nil, shared.ErrBusy
}

func TestToggleRespectsGuard(t *testing.T) {
	f := newFixture(t)
	guard := &busyGuard{}
	svc := NewService(f.repo, WithGuard(guard))

	_, err := svc.ToggleGrant(context.Background(), 2, 5)
	assert.ErrorIs(t, err, shared.ErrBusy)
	_, err = svc.ToggleOverride(context.Background(), f.u.ID, 5)
	assert.ErrorIs(t, err, shared.ErrBusy)

	assert.Equal(t, []string{"perm:toggle:role:2:5", "perm:toggle:user:" + f.u.ID.String() + ":5"}, guard.keys)
	assert.Empty(t, f.auditLog(t))
}

type countingObserver struct{ seen []string }

func (o *countingObserver) ObserveMutation(entity, action string) {
	o.seen = append(o.seen, entity+"/"+action)
}

func TestObserverSeesCommittedMutations(t *testing.T) {
	f := newFixture(t)
	obs := &countingObserver{}
	svc := NewService(f.repo, WithObserver(obs))
	ctx := context.Background()

	_, err := svc.ToggleGrant(ctx, 2, 5)
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, RoleInput{Name: "", Code: "X"})
	require.Error(t, err)

	assert.Equal(t, []string{"role_scope/revoke"}, obs.seen)
}
