package service

import (
	"context"
	"strings"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/infra/observability"
	"github.com/metalav/auditorias-bfa-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var condTracer = otel.Tracer("service/condominio")

// CondominioService manages condominiums and their machines. Reads of a
// single condominium and its machines go through the catalog cache, which
// writes invalidate.
type CondominioService struct {
	store    port.CondominioStore
	conds    port.Cache[*domain.Condominio]
	maquinas port.Cache[[]domain.Maquina]
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewCondominioService(
	store port.CondominioStore,
	conds port.Cache[*domain.Condominio],
	maquinas port.Cache[[]domain.Maquina],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CondominioService {
	return &CondominioService{
		store:    store,
		conds:    conds,
		maquinas: maquinas,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *CondominioService) List(ctx context.Context, sess *domain.Session, somenteAtivos bool) ([]domain.Condominio, error) {
	ctx, span := condTracer.Start(ctx, "CondominioService.List")
	defer span.End()

	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.store.ListCondominios(ctx, somenteAtivos)
}

func (s *CondominioService) Get(ctx context.Context, sess *domain.Session, id string) (*domain.Condominio, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.condominio(ctx, id)
}

// condominio reads through the catalog cache.
func (s *CondominioService) condominio(ctx context.Context, id string) (*domain.Condominio, error) {
	ctx, span := condTracer.Start(ctx, "CondominioService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("condominio.id", id))

	if c, ok := s.conds.Get(id); ok {
		s.metrics.IncrCacheHit("condominio")
		return c, nil
	}
	s.metrics.IncrCacheMiss("condominio")

	c, err := s.store.GetCondominio(ctx, id)
	if err != nil {
		return nil, err
	}
	s.conds.Set(id, c)
	return c, nil
}

func (s *CondominioService) Create(ctx context.Context, sess *domain.Session, in *domain.CondominioInput) (*domain.Condominio, error) {
	ctx, span := condTracer.Start(ctx, "CondominioService.Create")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "cadastrar condomínio"); err != nil {
		return nil, err
	}
	if in.Nome == nil || strings.TrimSpace(*in.Nome) == "" {
		return nil, &domain.ErrValidation{Field: "nome", Message: "obrigatório"}
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := validateTaxas(in); err != nil {
		return nil, err
	}

	c, err := s.store.CreateCondominio(ctx, in)
	if err != nil {
		s.logger.Error("failed to create condominio", zap.Error(err))
		return nil, err
	}

	s.logger.Info("condominio created",
		zap.String("condominio_id", c.ID),
		zap.String("actor_id", sess.UserID),
	)
	return c, nil
}

func (s *CondominioService) Update(ctx context.Context, sess *domain.Session, id string, in *domain.CondominioInput) (*domain.Condominio, error) {
	ctx, span := condTracer.Start(ctx, "CondominioService.Update")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "editar condomínio"); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := validateTaxas(in); err != nil {
		return nil, err
	}

	c, err := s.store.UpdateCondominio(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.conds.Delete(id)

	s.logger.Info("condominio updated",
		zap.String("condominio_id", id),
		zap.String("actor_id", sess.UserID),
	)
	return c, nil
}

func (s *CondominioService) Delete(ctx context.Context, sess *domain.Session, id string) error {
	ctx, span := condTracer.Start(ctx, "CondominioService.Delete")
	defer span.End()

	if err := requireRole(sess, domain.RoleGestor, "excluir condomínio"); err != nil {
		return err
	}
	if err := s.store.DeleteCondominio(ctx, id); err != nil {
		return err
	}
	s.conds.Delete(id)
	s.maquinas.Delete(id)

	s.logger.Warn("condominio deleted",
		zap.String("condominio_id", id),
		zap.String("actor_id", sess.UserID),
	)
	return nil
}

// validateTaxas rejects negative tariffs and cashback outside 0..100.
func validateTaxas(in *domain.CondominioInput) error {
	for field, v := range map[string]*decimal.Decimal{
		"tarifa_agua":    in.TarifaAgua,
		"tarifa_energia": in.TarifaEnergia,
		"tarifa_gas":     in.TarifaGas,
	} {
		if v != nil && v.IsNegative() {
			return &domain.ErrValidation{Field: field, Message: "não pode ser negativa"}
		}
	}
	if p := in.CashbackPercent; p != nil && (p.IsNegative() || p.GreaterThan(decimal.NewFromInt(100))) {
		return &domain.ErrValidation{Field: "cashback_percent", Message: "deve estar entre 0 e 100"}
	}
	return nil
}

// --- Máquinas ---

func (s *CondominioService) ListMaquinas(ctx context.Context, sess *domain.Session, condominioID string) ([]domain.Maquina, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.maquinasDe(ctx, condominioID)
}

// maquinasDe reads through the catalog cache.
func (s *CondominioService) maquinasDe(ctx context.Context, condominioID string) ([]domain.Maquina, error) {
	ctx, span := condTracer.Start(ctx, "CondominioService.ListMaquinas")
	defer span.End()

	if m, ok := s.maquinas.Get(condominioID); ok {
		s.metrics.IncrCacheHit("maquinas")
		return m, nil
	}
	s.metrics.IncrCacheMiss("maquinas")

	m, err := s.store.ListMaquinas(ctx, condominioID)
	if err != nil {
		return nil, err
	}
	s.maquinas.Set(condominioID, m)
	return m, nil
}

func (s *CondominioService) CreateMaquina(ctx context.Context, sess *domain.Session, condominioID string, in *domain.MaquinaInput) (*domain.Maquina, error) {
	ctx, span := condTracer.Start(ctx, "CondominioService.CreateMaquina")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "cadastrar máquina"); err != nil {
		return nil, err
	}
	if in.Categoria == nil {
		return nil, &domain.ErrValidation{Field: "categoria", Message: "obrigatório"}
	}
	if in.Capacidade == nil || strings.TrimSpace(*in.Capacidade) == "" {
		return nil, &domain.ErrValidation{Field: "capacidade", Message: "obrigatório"}
	}
	if in.ValorCiclo == nil {
		return nil, &domain.ErrValidation{Field: "valor_ciclo", Message: "obrigatório"}
	}
	if err := validateMaquina(in); err != nil {
		return nil, err
	}
	if _, err := s.condominio(ctx, condominioID); err != nil {
		return nil, err
	}

	m, err := s.store.CreateMaquina(ctx, condominioID, in)
	if err != nil {
		return nil, err
	}
	s.maquinas.Delete(condominioID)

	s.logger.Info("maquina created",
		zap.String("condominio_id", condominioID),
		zap.String("maquina_id", m.ID),
		zap.String("categoria", string(m.Categoria)),
		zap.String("capacidade", m.Capacidade),
	)
	return m, nil
}

func (s *CondominioService) UpdateMaquina(ctx context.Context, sess *domain.Session, id string, in *domain.MaquinaInput) (*domain.Maquina, error) {
	ctx, span := condTracer.Start(ctx, "CondominioService.UpdateMaquina")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "editar máquina"); err != nil {
		return nil, err
	}
	if err := validateMaquina(in); err != nil {
		return nil, err
	}

	m, err := s.store.UpdateMaquina(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.maquinas.Delete(m.CondominioID)
	return m, nil
}

func (s *CondominioService) DeleteMaquina(ctx context.Context, sess *domain.Session, id string) error {
	ctx, span := condTracer.Start(ctx, "CondominioService.DeleteMaquina")
	defer span.End()

	if err := requireRole(sess, domain.RoleGestor, "excluir máquina"); err != nil {
		return err
	}
	m, err := s.store.GetMaquina(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMaquina(ctx, id); err != nil {
		return err
	}
	s.maquinas.Delete(m.CondominioID)

	s.logger.Warn("maquina deleted",
		zap.String("maquina_id", id),
		zap.String("condominio_id", m.CondominioID),
		zap.String("actor_id", sess.UserID),
	)
	return nil
}

func validateMaquina(in *domain.MaquinaInput) error {
	if err := validateStruct(in); err != nil {
		return err
	}
	if in.ValorCiclo != nil && in.ValorCiclo.IsNegative() {
		return &domain.ErrValidation{Field: "valor_ciclo", Message: "não pode ser negativo"}
	}
	return nil
}
