package service_test

import (
	"context"
	"testing"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newUsuarioService(t *testing.T) (*service.UsuarioService, *fakeStore, *fakeAuth) {
	t.Helper()
	store := newFakeStore()
	store.usuarios["u-gestor"] = &domain.Usuario{ID: "u-gestor", Role: domain.RoleGestor, Ativo: true}
	store.usuarios["u-auditor"] = &domain.Usuario{ID: "u-auditor", Role: domain.RoleAuditor, Ativo: true}
	auth := &fakeAuth{}
	sessions := newSessionService(t, store, auth, testJWTSecret)
	return service.NewUsuarioService(auth, store, sessions, zap.NewNop()), store, auth
}

func TestUsuario_Create(t *testing.T) {
	svc, store, auth := newUsuarioService(t)
	ctx := context.Background()

	req := &domain.CreateUsuarioRequest{
		Email: "  Bruno@MetaLav.com.br ",
		Nome:  " Bruno ",
		Senha: "senha-forte",
		Role:  domain.RoleAuditor,
	}

	_, err := svc.Create(ctx, interno, req)
	var ferr *domain.ErrForbidden
	require.ErrorAs(t, err, &ferr)

	u, err := svc.Create(ctx, gestor, req)
	require.NoError(t, err)
	assert.Equal(t, "bruno@metalav.com.br", u.Email)
	assert.Equal(t, "Bruno", u.Nome)
	assert.True(t, u.Ativo)
	assert.Equal(t, []string{"bruno@metalav.com.br"}, auth.created)
	assert.Contains(t, store.usuarios, "auth-bruno@metalav.com.br")
}

func TestUsuario_CreateValidation(t *testing.T) {
	svc, _, auth := newUsuarioService(t)
	var verr *domain.ErrValidation

	_, err := svc.Create(context.Background(), gestor, &domain.CreateUsuarioRequest{
		Email: "bruno@metalav.com.br", Nome: "Bruno", Senha: "curta", Role: domain.RoleAuditor,
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "senha", verr.Field)

	_, err = svc.Create(context.Background(), gestor, &domain.CreateUsuarioRequest{
		Email: "bruno@metalav.com.br", Nome: "Bruno", Senha: "senha-forte", Role: "admin",
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "role", verr.Field)
	assert.Empty(t, auth.created)
}

func TestUsuario_CreateAuthFailure(t *testing.T) {
	svc, store, auth := newUsuarioService(t)
	auth.err = &domain.ErrConflict{Message: "e-mail já cadastrado"}

	_, err := svc.Create(context.Background(), gestor, &domain.CreateUsuarioRequest{
		Email: "bruno@metalav.com.br", Nome: "Bruno", Senha: "senha-forte", Role: domain.RoleAuditor,
	})
	var cerr *domain.ErrConflict
	require.ErrorAs(t, err, &cerr)
	assert.Len(t, store.usuarios, 2)
}

func TestUsuario_Update(t *testing.T) {
	svc, store, _ := newUsuarioService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, gestor, "u-auditor", &domain.UpdateUsuarioRequest{})
	var verr *domain.ErrValidation
	require.ErrorAs(t, err, &verr)

	role := domain.RoleInterno
	u, err := svc.Update(ctx, gestor, "u-auditor", &domain.UpdateUsuarioRequest{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleInterno, u.Role)
	assert.Equal(t, domain.RoleInterno, store.usuarios["u-auditor"].Role)

	off := false
	u, err = svc.Update(ctx, gestor, "u-auditor", &domain.UpdateUsuarioRequest{Ativo: &off})
	require.NoError(t, err)
	assert.False(t, u.Ativo)
}

func TestUsuario_GestorCannotDemoteSelf(t *testing.T) {
	svc, _, _ := newUsuarioService(t)
	ctx := context.Background()
	var verr *domain.ErrValidation

	role := domain.RoleAuditor
	_, err := svc.Update(ctx, gestor, "u-gestor", &domain.UpdateUsuarioRequest{Role: &role})
	require.ErrorAs(t, err, &verr)

	off := false
	_, err = svc.Update(ctx, gestor, "u-gestor", &domain.UpdateUsuarioRequest{Ativo: &off})
	require.ErrorAs(t, err, &verr)

	_, err = svc.Update(ctx, gestor, "u-gestor", &domain.UpdateUsuarioRequest{Nome: ptr("Gestora")})
	require.NoError(t, err)
}

func TestUsuario_ListFiltersRole(t *testing.T) {
	svc, _, _ := newUsuarioService(t)
	ctx := context.Background()

	list, err := svc.List(ctx, interno, "auditor")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "u-auditor", list[0].ID)

	_, err = svc.List(ctx, interno, "root")
	var verr *domain.ErrValidation
	assert.ErrorAs(t, err, &verr)

	_, err = svc.List(ctx, auditor, "")
	var ferr *domain.ErrForbidden
	assert.ErrorAs(t, err, &ferr)
}
