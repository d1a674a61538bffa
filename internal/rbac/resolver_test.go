package rbac

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestComputeEffective(t *testing.T) {
	user := uuid.New()
	scopes := []Scope{
		{ID: 1, Code: "leads:write", Description: "Edit leads"},
		{ID: 2, Code: "leads:read", Description: "View leads"},
		{ID: 3, Code: "sales:read", Description: "View sales"},
		{ID: 4, Code: "admin:write", Description: "Admin"},
	}
	got := ComputeEffective(
		[]int64{1, 2, 3},
		[]UserOverride{
			{UserID: user, ScopeID: 1, Allow: false},
			{UserID: user, ScopeID: 2, Allow: true},
			{UserID: user, ScopeID: 4, Allow: true},
		},
		scopes,
	)
	assert.Equal(t, []EffectiveScope{
		{ScopeCode: "admin:write", ScopeDescription: "Admin", Source: SourceOverride},
		{ScopeCode: "leads:read", ScopeDescription: "View leads", Source: SourceOverride},
		{ScopeCode: "sales:read", ScopeDescription: "View sales", Source: SourceRole},
	}, got)
}

func TestComputeEffectiveEmpty(t *testing.T) {
	got := ComputeEffective(nil, nil, []Scope{{ID: 1, Code: "leads:read"}})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestComputeEffectiveRevokeWithoutRoleGrantIsHarmless(t *testing.T) {
	got := ComputeEffective([]int64{1}, []UserOverride{{ScopeID: 2, Allow: false}}, []Scope{{ID: 1, Code: "a"}, {ID: 2, Code: "b"}})
	assert.Equal(t, []EffectiveScope{{ScopeCode: "a", Source: SourceRole}}, got)
}

func TestDanglingProfilesPure(t *testing.T) {
	roles := []Role{{ID: 1, Code: "ADMIN"}, {ID: 2, Code: "SDR"}}
	profiles := []Profile{{Name: "a", Role: "ADMIN"}, {Name: "b", Role: "CLOSER"}, {Name: "c", Role: ""}}
	got := DanglingProfiles(profiles, roles)
	assert.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, "c", got[1].Name)
}

func TestNormalizeCodes(t *testing.T) {
	assert.Equal(t, "GESTOR", NormalizeRoleCode("  gestor "))
	assert.Equal(t, "ÇLOSER", NormalizeRoleCode("çloser"))
	assert.Equal(t, "leads:read", NormalizeScopeCode(" Leads:READ "))
}
