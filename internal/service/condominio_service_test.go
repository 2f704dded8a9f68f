package service_test

import (
	"context"
	"testing"

	"github.com/metalav/auditorias-bfa-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondominio_GetReadsThroughCache(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := fx.cond.Get(ctx, auditor, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Residencial Aurora", c.Nome)
	}
	assert.Equal(t, 1, fx.store.getCalls)
}

func TestCondominio_UpdateInvalidatesCache(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.cond.Get(ctx, interno, "c1")
	require.NoError(t, err)

	_, err = fx.cond.Update(ctx, interno, "c1", &domain.CondominioInput{Nome: ptr("Aurora II")})
	require.NoError(t, err)

	c, err := fx.cond.Get(ctx, interno, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Aurora II", c.Nome)
	assert.Equal(t, 2, fx.store.getCalls)
}

func TestCondominio_Validation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	var verr *domain.ErrValidation

	_, err := fx.cond.Create(ctx, interno, &domain.CondominioInput{})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "nome", verr.Field)

	_, err = fx.cond.Create(ctx, interno, &domain.CondominioInput{Nome: ptr("Solar"), CashbackPercent: ptr(dec("150"))})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "cashback_percent", verr.Field)

	_, err = fx.cond.Update(ctx, interno, "c1", &domain.CondominioInput{TarifaAgua: ptr(dec("-0.01"))})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tarifa_agua", verr.Field)

	tipo := domain.TipoPagamento("pix")
	_, err = fx.cond.Update(ctx, interno, "c1", &domain.CondominioInput{TipoPagamento: &tipo})
	require.ErrorAs(t, err, &verr)
}

func TestCondominio_Permissions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	var ferr *domain.ErrForbidden

	_, err := fx.cond.Create(ctx, auditor, &domain.CondominioInput{Nome: ptr("Solar")})
	assert.ErrorAs(t, err, &ferr)

	err = fx.cond.Delete(ctx, interno, "c1")
	assert.ErrorAs(t, err, &ferr)

	require.NoError(t, fx.cond.Delete(ctx, gestor, "c1"))
	_, err = fx.cond.Get(ctx, gestor, "c1")
	var nerr *domain.ErrNotFound
	assert.ErrorAs(t, err, &nerr)
}

func TestCondominio_CreateMaquinaInvalidatesMachines(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	before, err := fx.cond.ListMaquinas(ctx, auditor, "c1")
	require.NoError(t, err)
	require.Len(t, before, 2)

	cat := domain.CategoriaLavadora
	_, err = fx.cond.CreateMaquina(ctx, interno, "c1", &domain.MaquinaInput{
		Categoria:  &cat,
		Capacidade: ptr("15kg"),
		ValorCiclo: ptr(dec("19.90")),
	})
	require.NoError(t, err)

	after, err := fx.cond.ListMaquinas(ctx, auditor, "c1")
	require.NoError(t, err)
	assert.Len(t, after, 3)
	assert.Equal(t, 2, fx.store.maqCalls)
}

func TestCondominio_CreateMaquinaRequiresFields(t *testing.T) {
	fx := newFixture(t)
	var verr *domain.ErrValidation

	_, err := fx.cond.CreateMaquina(context.Background(), interno, "c1", &domain.MaquinaInput{Capacidade: ptr("10kg")})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "categoria", verr.Field)
}
