package supabase

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Condomínios & máquinas: CRUD via PostgREST
// ============================================================

func (c *Client) ListCondominios(ctx context.Context, somenteAtivos bool) ([]domain.Condominio, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCondominios")
	defer span.End()

	path := "condominios?select=*&order=nome.asc"
	if somenteAtivos {
		path += "&ativo=eq.true"
	}

	var rows []domain.Condominio
	err := c.call(ctx, "supabase/condominios", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows, err = decodeRows[domain.Condominio](body, "condominios")
		return err
	})
	return rows, err
}

func (c *Client) GetCondominio(ctx context.Context, id string) (*domain.Condominio, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCondominio")
	defer span.End()
	span.SetAttributes(attribute.String("condominio.id", id))

	var cond *domain.Condominio
	err := c.call(ctx, "supabase/condominios", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("condominios?id=%s&limit=1", eq(id)))
		if err != nil {
			return err
		}
		cond, err = decodeOne[domain.Condominio](body, "condominio", id)
		return err
	})
	return cond, err
}

func (c *Client) CreateCondominio(ctx context.Context, in *domain.CondominioInput) (*domain.Condominio, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateCondominio")
	defer span.End()

	row := condominioFields(in)
	if _, ok := row["ativo"]; !ok {
		row["ativo"] = true
	}
	if _, ok := row["tipo_pagamento"]; !ok {
		row["tipo_pagamento"] = domain.PagamentoDireto
	}

	var cond *domain.Condominio
	err := c.call(ctx, "supabase/condominios", func() error {
		body, err := c.doPost(ctx, "condominios", row, preferRepresentation)
		if err != nil {
			return err
		}
		cond, err = decodeOne[domain.Condominio](body, "condominio", "novo")
		return err
	})
	return cond, err
}

func (c *Client) UpdateCondominio(ctx context.Context, id string, in *domain.CondominioInput) (*domain.Condominio, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateCondominio")
	defer span.End()
	span.SetAttributes(attribute.String("condominio.id", id))

	fields := condominioFields(in)
	fields["updated_at"] = time.Now().Format(time.RFC3339)

	var cond *domain.Condominio
	err := c.call(ctx, "supabase/condominios", func() error {
		body, err := c.doPatch(ctx, fmt.Sprintf("condominios?id=%s", eq(id)), fields)
		if err != nil {
			return err
		}
		cond, err = decodeOne[domain.Condominio](body, "condominio", id)
		return err
	})
	return cond, err
}

func (c *Client) DeleteCondominio(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteCondominio")
	defer span.End()

	return c.call(ctx, "supabase/condominios", func() error {
		return c.doDelete(ctx, fmt.Sprintf("condominios?id=%s", eq(id)))
	})
}

func condominioFields(in *domain.CondominioInput) map[string]any {
	f := map[string]any{}
	setIf(f, "nome", in.Nome)
	setIf(f, "endereco", in.Endereco)
	setIf(f, "cidade", in.Cidade)
	setIf(f, "uf", in.UF)
	setIf(f, "sindico_nome", in.SindicoNome)
	setIf(f, "sindico_telefone", in.SindicoTelefone)
	setIf(f, "banco", in.Banco)
	setIf(f, "agencia", in.Agencia)
	setIf(f, "conta", in.Conta)
	setIf(f, "pix_chave", in.PixChave)
	setIf(f, "favorecido", in.Favorecido)
	setIf(f, "tipo_pagamento", in.TipoPagamento)
	setIf(f, "tarifa_agua", in.TarifaAgua)
	setIf(f, "tarifa_energia", in.TarifaEnergia)
	setIf(f, "tarifa_gas", in.TarifaGas)
	setIf(f, "possui_gas", in.PossuiGas)
	setIf(f, "cashback_percent", in.CashbackPercent)
	setIf(f, "ativo", in.Ativo)
	return f
}

// setIf copies *v into f[key] when v is set.
func setIf[T any](f map[string]any, key string, v *T) {
	if v != nil {
		f[key] = *v
	}
}

// --- Máquinas ---

func (c *Client) ListMaquinas(ctx context.Context, condominioID string) ([]domain.Maquina, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMaquinas")
	defer span.End()
	span.SetAttributes(attribute.String("condominio.id", condominioID))

	path := fmt.Sprintf("condominio_maquinas?condominio_id=%s&order=categoria.asc,capacidade.asc", eq(condominioID))

	var rows []domain.Maquina
	err := c.call(ctx, "supabase/maquinas", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows, err = decodeRows[domain.Maquina](body, "maquinas")
		return err
	})
	return rows, err
}

func (c *Client) GetMaquina(ctx context.Context, id string) (*domain.Maquina, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetMaquina")
	defer span.End()

	var m *domain.Maquina
	err := c.call(ctx, "supabase/maquinas", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("condominio_maquinas?id=%s&limit=1", eq(id)))
		if err != nil {
			return err
		}
		m, err = decodeOne[domain.Maquina](body, "maquina", id)
		return err
	})
	return m, err
}

func (c *Client) CreateMaquina(ctx context.Context, condominioID string, in *domain.MaquinaInput) (*domain.Maquina, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateMaquina")
	defer span.End()

	row := maquinaFields(in)
	row["condominio_id"] = condominioID
	if _, ok := row["ativa"]; !ok {
		row["ativa"] = true
	}

	var m *domain.Maquina
	err := c.call(ctx, "supabase/maquinas", func() error {
		body, err := c.doPost(ctx, "condominio_maquinas", row, preferRepresentation)
		if err != nil {
			return err
		}
		m, err = decodeOne[domain.Maquina](body, "maquina", "nova")
		return err
	})
	return m, err
}

func (c *Client) UpdateMaquina(ctx context.Context, id string, in *domain.MaquinaInput) (*domain.Maquina, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateMaquina")
	defer span.End()

	var m *domain.Maquina
	err := c.call(ctx, "supabase/maquinas", func() error {
		body, err := c.doPatch(ctx, fmt.Sprintf("condominio_maquinas?id=%s", eq(id)), maquinaFields(in))
		if err != nil {
			return err
		}
		m, err = decodeOne[domain.Maquina](body, "maquina", id)
		return err
	})
	return m, err
}

func (c *Client) DeleteMaquina(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteMaquina")
	defer span.End()

	return c.call(ctx, "supabase/maquinas", func() error {
		return c.doDelete(ctx, fmt.Sprintf("condominio_maquinas?id=%s", eq(id)))
	})
}

func maquinaFields(in *domain.MaquinaInput) map[string]any {
	f := map[string]any{}
	setIf(f, "categoria", in.Categoria)
	setIf(f, "capacidade", in.Capacidade)
	setIf(f, "tag", in.Tag)
	setIf(f, "valor_ciclo", in.ValorCiclo)
	setIf(f, "ativa", in.Ativa)
	return f
}
