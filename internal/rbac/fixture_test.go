package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
)

type fixture struct {
	repo *MemoryRepository
	svc  *Service

	admin, gestor, sdr    Role
	leadsRead, adminWrite Scope
	u, v                  Profile
}

// newFixture seeds GESTOR(2) -> leads:read(5), an SDR role without
// admin:write(9), user U holding GESTOR and user V holding SDR.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := NewMemoryRepository()
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	f := &fixture{repo: repo, svc: NewService(repo)}
	f.admin = repo.PutRole(Role{ID: 1, Name: "Administrador", Code: "ADMIN"})
	f.gestor = repo.PutRole(Role{ID: 2, Name: "Gestor", Code: "GESTOR"})
	f.sdr = repo.PutRole(Role{ID: 3, Name: "SDR", Code: "SDR"})
	f.leadsRead = repo.PutScope(Scope{ID: 5, Code: "leads:read", Description: "View leads"})
	f.adminWrite = repo.PutScope(Scope{ID: 9, Code: "admin:write", Description: "Administer the dashboard"})
	repo.PutGrant(f.gestor.ID, f.leadsRead.ID)
	f.u = repo.PutProfile(Profile{Name: "Ursula", Email: "u@example.com", Role: "GESTOR"})
	f.v = repo.PutProfile(Profile{Name: "Vitor", Email: "v@example.com", Role: "SDR"})
	return f
}

func (f *fixture) auditLog(t *testing.T) []audit.Record {
	t.Helper()
	rows, err := f.repo.ListEntries(context.Background(), audit.Query{})
	require.NoError(t, err)
	return rows
}
