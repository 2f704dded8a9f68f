package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Auditorias: audits, cycle rows, closing items, status log
// ============================================================

func (c *Client) ListAuditorias(ctx context.Context, f domain.AuditoriaFiltro) ([]domain.Auditoria, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAuditorias")
	defer span.End()

	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "mes_ref.desc,created_at.desc")
	if f.MesRef != "" {
		q.Set("mes_ref", "eq."+f.MesRef)
	}
	if f.Status != "" {
		q.Set("status", "eq."+string(f.Status))
	}
	if f.CondominioID != "" {
		q.Set("condominio_id", "eq."+f.CondominioID)
	}
	switch {
	case f.AuditorID != "" && f.IncluirSemAuditor:
		q.Set("or", fmt.Sprintf("(auditor_id.eq.%s,auditor_id.is.null)", f.AuditorID))
	case f.AuditorID != "":
		q.Set("auditor_id", "eq."+f.AuditorID)
	}
	path := "auditorias?" + q.Encode()

	var rows []domain.Auditoria
	err := c.call(ctx, "supabase/auditorias", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows, err = decodeRows[domain.Auditoria](body, "auditorias")
		return err
	})
	return rows, err
}

func (c *Client) GetAuditoria(ctx context.Context, id string) (*domain.Auditoria, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAuditoria")
	defer span.End()
	span.SetAttributes(attribute.String("auditoria.id", id))

	var a *domain.Auditoria
	err := c.call(ctx, "supabase/auditorias", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("auditorias?id=%s&limit=1", eq(id)))
		if err != nil {
			return err
		}
		a, err = decodeOne[domain.Auditoria](body, "auditoria", id)
		return err
	})
	return a, err
}

func (c *Client) ListAnteriores(ctx context.Context, condominioID, mesRef string, meses int) ([]domain.Auditoria, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAnteriores")
	defer span.End()
	span.SetAttributes(
		attribute.String("condominio.id", condominioID),
		attribute.String("mes_ref", mesRef),
	)

	desde, err := domain.AddMeses(mesRef, -meses)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("auditorias?condominio_id=%s&and=(mes_ref.gte.%s,mes_ref.lt.%s)&order=mes_ref.desc&limit=%d",
		eq(condominioID), desde, mesRef, meses)

	var rows []domain.Auditoria
	err = c.call(ctx, "supabase/auditorias", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows, err = decodeRows[domain.Auditoria](body, "auditorias anteriores")
		return err
	})
	return rows, err
}

func (c *Client) CreateAuditoria(ctx context.Context, req *domain.CreateAuditoriaRequest) (*domain.Auditoria, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateAuditoria")
	defer span.End()

	row := map[string]any{
		"condominio_id": req.CondominioID,
		"mes_ref":       req.MesRef,
		"status":        domain.StatusAberta,
	}
	if req.AuditorID != nil {
		row["auditor_id"] = *req.AuditorID
	}

	var a *domain.Auditoria
	err := c.call(ctx, "supabase/auditorias", func() error {
		body, err := c.doPost(ctx, "auditorias", row, preferRepresentation)
		if err != nil {
			return err
		}
		a, err = decodeOne[domain.Auditoria](body, "auditoria", "nova")
		return err
	})
	if err != nil {
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			return nil, &domain.ErrConflict{Message: fmt.Sprintf("já existe auditoria para este condomínio em %s", req.MesRef)}
		}
		return nil, err
	}

	c.logger.Info("supabase: auditoria created",
		zap.String("auditoria_id", a.ID),
		zap.String("condominio_id", a.CondominioID),
		zap.String("mes_ref", a.MesRef),
	)
	return a, nil
}

func (c *Client) UpsertAuditoriasMes(ctx context.Context, condominioIDs []string, mesRef string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertAuditoriasMes")
	defer span.End()
	span.SetAttributes(
		attribute.String("mes_ref", mesRef),
		attribute.Int("condominios", len(condominioIDs)),
	)

	if len(condominioIDs) == 0 {
		return 0, nil
	}

	rows := make([]map[string]any, 0, len(condominioIDs))
	for _, id := range condominioIDs {
		rows = append(rows, map[string]any{
			"condominio_id": id,
			"mes_ref":       mesRef,
			"status":        domain.StatusAberta,
		})
	}

	// With ignore-duplicates PostgREST only returns the rows it inserted.
	var created int
	err := c.call(ctx, "supabase/auditorias", func() error {
		body, err := c.doPost(ctx, "auditorias?on_conflict=condominio_id,mes_ref", rows, preferIgnoreDuplicates)
		if err != nil {
			return err
		}
		inserted, err := decodeRows[domain.Auditoria](body, "auditorias geradas")
		created = len(inserted)
		return err
	})
	return created, err
}

func (c *Client) UpdateAuditoria(ctx context.Context, id string, fields map[string]any) (*domain.Auditoria, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateAuditoria")
	defer span.End()
	span.SetAttributes(attribute.String("auditoria.id", id))

	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	var a *domain.Auditoria
	err := c.call(ctx, "supabase/auditorias", func() error {
		body, err := c.doPatch(ctx, fmt.Sprintf("auditorias?id=%s", eq(id)), fields)
		if err != nil {
			return err
		}
		a, err = decodeOne[domain.Auditoria](body, "auditoria", id)
		return err
	})
	return a, err
}

func (c *Client) ClaimAuditoria(ctx context.Context, id, auditorID string, fields map[string]any) (*domain.Auditoria, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ClaimAuditoria")
	defer span.End()
	span.SetAttributes(
		attribute.String("auditoria.id", id),
		attribute.String("auditor.id", auditorID),
	)

	patch := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		patch[k] = v
	}
	patch["auditor_id"] = auditorID
	patch["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	// The auditor_id=is.null filter makes the claim a compare-and-set.
	path := fmt.Sprintf("auditorias?id=%s&auditor_id=is.null", eq(id))

	var claimed []domain.Auditoria
	err := c.call(ctx, "supabase/auditorias", func() error {
		body, err := c.doPatch(ctx, path, patch)
		if err != nil {
			return err
		}
		claimed, err = decodeRows[domain.Auditoria](body, "auditoria")
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	return &claimed[0], nil
}

func (c *Client) DeleteAuditoria(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteAuditoria")
	defer span.End()

	return c.call(ctx, "supabase/auditorias", func() error {
		return c.doDelete(ctx, fmt.Sprintf("auditorias?id=%s", eq(id)))
	})
}

// --- Ciclos ---

func (c *Client) ListCiclos(ctx context.Context, auditoriaID string) ([]domain.Ciclo, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCiclos")
	defer span.End()

	path := fmt.Sprintf("auditoria_ciclos?auditoria_id=%s&order=categoria.asc,capacidade.asc", eq(auditoriaID))

	var rows []domain.Ciclo
	err := c.call(ctx, "supabase/ciclos", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows, err = decodeRows[domain.Ciclo](body, "ciclos")
		return err
	})
	return rows, err
}

func (c *Client) UpsertCiclos(ctx context.Context, auditoriaID string, in []domain.CicloInput) ([]domain.Ciclo, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertCiclos")
	defer span.End()
	span.SetAttributes(attribute.Int("ciclos.rows", len(in)))

	if len(in) == 0 {
		return []domain.Ciclo{}, nil
	}

	rows := make([]domain.Ciclo, 0, len(in))
	for _, r := range in {
		rows = append(rows, domain.Ciclo{
			AuditoriaID: auditoriaID,
			Categoria:   r.Categoria,
			Capacidade:  strings.TrimSpace(r.Capacidade),
			Ciclos:      r.Ciclos,
		})
	}

	var out []domain.Ciclo
	err := c.call(ctx, "supabase/ciclos", func() error {
		body, err := c.doPost(ctx, "auditoria_ciclos?on_conflict=auditoria_id,categoria,capacidade", rows, preferMergeDuplicates)
		if err != nil {
			return err
		}
		out, err = decodeRows[domain.Ciclo](body, "ciclos")
		return err
	})
	return out, err
}

// --- Itens de fechamento ---

func (c *Client) ListFechamentoItens(ctx context.Context, auditoriaID string) ([]domain.FechamentoItem, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListFechamentoItens")
	defer span.End()

	path := fmt.Sprintf("auditoria_fechamento_itens?auditoria_id=%s&order=created_at.asc", eq(auditoriaID))

	var rows []domain.FechamentoItem
	err := c.call(ctx, "supabase/fechamento", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows, err = decodeRows[domain.FechamentoItem](body, "itens de fechamento")
		return err
	})
	return rows, err
}

func (c *Client) CreateFechamentoItem(ctx context.Context, auditoriaID string, in *domain.FechamentoItemInput) (*domain.FechamentoItem, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateFechamentoItem")
	defer span.End()

	row := map[string]any{
		"auditoria_id":   auditoriaID,
		"maquina_tag":    strings.TrimSpace(in.MaquinaTag),
		"ciclos":         in.Ciclos,
		"valor_unitario": in.ValorUnitario,
		"valor_total":    in.ValorUnitario.Mul(decimal.NewFromInt(int64(in.Ciclos))).Round(2),
	}
	if in.Observacao != "" {
		row["observacao"] = in.Observacao
	}

	var item *domain.FechamentoItem
	err := c.call(ctx, "supabase/fechamento", func() error {
		body, err := c.doPost(ctx, "auditoria_fechamento_itens", row, preferRepresentation)
		if err != nil {
			return err
		}
		item, err = decodeOne[domain.FechamentoItem](body, "item de fechamento", "novo")
		return err
	})
	return item, err
}

func (c *Client) DeleteFechamentoItem(ctx context.Context, itemID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteFechamentoItem")
	defer span.End()

	return c.call(ctx, "supabase/fechamento", func() error {
		return c.doDelete(ctx, fmt.Sprintf("auditoria_fechamento_itens?id=%s", eq(itemID)))
	})
}

// --- Status log ---

func (c *Client) InsertStatusLog(ctx context.Context, log *domain.StatusLog) error {
	ctx, span := tracer.Start(ctx, "Supabase.InsertStatusLog")
	defer span.End()

	row := map[string]any{
		"auditoria_id": log.AuditoriaID,
		"de":           log.De,
		"para":         log.Para,
		"ator_id":      log.AtorID,
	}
	if log.Motivo != "" {
		row["motivo"] = log.Motivo
	}

	return c.call(ctx, "supabase/status_log", func() error {
		_, err := c.doPost(ctx, "auditoria_status_log", row, preferMinimal)
		return err
	})
}

func (c *Client) ListStatusLog(ctx context.Context, auditoriaID string) ([]domain.StatusLog, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListStatusLog")
	defer span.End()

	path := fmt.Sprintf("auditoria_status_log?auditoria_id=%s&order=created_at.asc", eq(auditoriaID))

	var rows []domain.StatusLog
	err := c.call(ctx, "supabase/status_log", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows, err = decodeRows[domain.StatusLog](body, "historico")
		return err
	})
	return rows, err
}
