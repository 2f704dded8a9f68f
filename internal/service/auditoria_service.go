package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/infra/observability"
	"github.com/metalav/auditorias-bfa-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var auditTracer = otel.Tracer("service/auditoria")

// AuditoriaService owns the audit lifecycle: CRUD, assignment, cycle counts,
// closing items and the status machine
// aberta → em_andamento → em_conferencia → final.
type AuditoriaService struct {
	store    port.AuditoriaStore
	catalog  *CondominioService
	usuarios port.UsuarioStore
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewAuditoriaService(
	store port.AuditoriaStore,
	catalog *CondominioService,
	usuarios port.UsuarioStore,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AuditoriaService {
	return &AuditoriaService{
		store:    store,
		catalog:  catalog,
		usuarios: usuarios,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// List applies the caller's visibility: auditors only see their own and
// unassigned audits, whatever auditor_id filter they send.
func (s *AuditoriaService) List(ctx context.Context, sess *domain.Session, f domain.AuditoriaFiltro) ([]domain.Auditoria, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.List")
	defer span.End()

	if err := requireRole(sess, domain.RoleAuditor, "listar auditorias"); err != nil {
		return nil, err
	}
	if f.MesRef != "" {
		m, err := domain.ParseMesRef(f.MesRef)
		if err != nil {
			return nil, err
		}
		f.MesRef = m
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "status inválido"}
	}
	if !sess.IsStaff() {
		f.AuditorID = sess.UserID
		f.IncluirSemAuditor = true
	}
	return s.store.ListAuditorias(ctx, f)
}

func (s *AuditoriaService) Get(ctx context.Context, sess *domain.Session, id string) (*domain.Auditoria, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("auditoria.id", id))

	if err := requireSession(sess); err != nil {
		return nil, err
	}
	a, err := s.store.GetAuditoria(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(sess, a) {
		return nil, &domain.ErrForbidden{Action: "ver auditoria de outro auditor"}
	}
	return a, nil
}

// editable loads the audit and checks the caller may change it.
func (s *AuditoriaService) editable(ctx context.Context, sess *domain.Session, id string) (*domain.Auditoria, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	a, err := s.store.GetAuditoria(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEdit(sess, a) {
		return nil, &domain.ErrForbidden{Action: "editar auditoria não atribuída a você"}
	}
	return a, nil
}

func (s *AuditoriaService) Create(ctx context.Context, sess *domain.Session, req *domain.CreateAuditoriaRequest) (*domain.Auditoria, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.Create")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "criar auditoria"); err != nil {
		return nil, err
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	mes, err := domain.ParseMesRef(req.MesRef)
	if err != nil {
		return nil, err
	}
	req.MesRef = mes

	if _, err := s.catalog.condominio(ctx, req.CondominioID); err != nil {
		return nil, err
	}
	if req.AuditorID != nil {
		if err := s.checkAuditor(ctx, *req.AuditorID); err != nil {
			return nil, err
		}
	}

	a, err := s.store.CreateAuditoria(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("auditoria created",
		zap.String("auditoria_id", a.ID),
		zap.String("condominio_id", a.CondominioID),
		zap.String("mes_ref", a.MesRef),
		zap.String("actor_id", sess.UserID),
	)
	return a, nil
}

func (s *AuditoriaService) Update(ctx context.Context, sess *domain.Session, id string, req *domain.UpdateAuditoriaRequest) (*domain.Auditoria, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("auditoria.id", id))

	if req.Empty() {
		return nil, &domain.ErrValidation{Message: "nenhum campo para atualizar"}
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	fields, err := updateFields(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.editable(ctx, sess, id); err != nil {
		return nil, err
	}
	return s.store.UpdateAuditoria(ctx, id, fields)
}

func updateFields(req *domain.UpdateAuditoriaRequest) (map[string]any, error) {
	fields := make(map[string]any)
	for key, v := range map[string]*decimal.Decimal{
		"agua_leitura":         req.AguaLeitura,
		"energia_leitura":      req.EnergiaLeitura,
		"gas_leitura":          req.GasLeitura,
		"agua_leitura_base":    req.AguaLeituraBase,
		"energia_leitura_base": req.EnergiaLeituraBase,
		"gas_leitura_base":     req.GasLeituraBase,
	} {
		if v == nil {
			continue
		}
		if v.IsNegative() {
			return nil, &domain.ErrValidation{Field: key, Message: "leitura não pode ser negativa"}
		}
		fields[key] = *v
	}
	if req.Observacoes != nil {
		fields["observacoes"] = *req.Observacoes
	}
	if req.ComprovanteFechamentoURL != nil {
		fields["comprovante_fechamento_url"] = *req.ComprovanteFechamentoURL
	}
	return fields, nil
}

func (s *AuditoriaService) Delete(ctx context.Context, sess *domain.Session, id string) error {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.Delete")
	defer span.End()

	if err := requireRole(sess, domain.RoleGestor, "excluir auditoria"); err != nil {
		return err
	}
	if err := s.store.DeleteAuditoria(ctx, id); err != nil {
		return err
	}
	s.logger.Warn("auditoria deleted",
		zap.String("auditoria_id", id),
		zap.String("actor_id", sess.UserID),
	)
	return nil
}

// ============================================================
// Status machine
// ============================================================

func invalidTransition(from, to domain.AuditStatus) error {
	return &domain.ErrConflict{Message: fmt.Sprintf("transição inválida: %s → %s", from, to)}
}

// Iniciar moves aberta → em_andamento. An auditor starting an unassigned
// audit claims it.
func (s *AuditoriaService) Iniciar(ctx context.Context, sess *domain.Session, id string) (*domain.Auditoria, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.Iniciar")
	defer span.End()

	if err := requireRole(sess, domain.RoleAuditor, "iniciar auditoria"); err != nil {
		return nil, err
	}
	a, err := s.store.GetAuditoria(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(sess, a) {
		return nil, &domain.ErrForbidden{Action: "iniciar auditoria de outro auditor"}
	}
	if a.Status != domain.StatusAberta {
		return nil, invalidTransition(a.Status, domain.StatusEmAndamento)
	}

	fields := map[string]any{"status": domain.StatusEmAndamento}
	if a.AuditorID == nil && !sess.IsStaff() {
		updated, err := s.claim(ctx, a, sess.UserID, fields)
		if err != nil {
			return nil, err
		}
		s.recordTransition(ctx, a, updated.Status, sess.UserID, "")
		return updated, nil
	}
	return s.transition(ctx, sess, a, domain.StatusEmAndamento, "", fields)
}

// EnviarConferencia moves em_andamento → em_conferencia.
func (s *AuditoriaService) EnviarConferencia(ctx context.Context, sess *domain.Session, id string) (*domain.Auditoria, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.EnviarConferencia")
	defer span.End()

	a, err := s.editable(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.StatusEmAndamento {
		return nil, invalidTransition(a.Status, domain.StatusEmConferencia)
	}
	return s.transition(ctx, sess, a, domain.StatusEmConferencia, "", nil)
}

// Devolver sends an audit under review back to the auditor. The reason is
// appended to the observations.
func (s *AuditoriaService) Devolver(ctx context.Context, sess *domain.Session, id, motivo string) (*domain.Auditoria, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.Devolver")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "devolver auditoria"); err != nil {
		return nil, err
	}
	motivo = strings.TrimSpace(motivo)
	if motivo == "" {
		return nil, &domain.ErrValidation{Field: "motivo", Message: "obrigatório"}
	}
	a, err := s.store.GetAuditoria(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.StatusEmConferencia {
		return nil, invalidTransition(a.Status, domain.StatusEmAndamento)
	}

	nota := fmt.Sprintf("[Devolvida em %s] %s", s.now().Format("02/01/2006"), motivo)
	obs := nota
	if a.Observacoes != nil && strings.TrimSpace(*a.Observacoes) != "" {
		obs = *a.Observacoes + "\n" + nota
	}
	return s.transition(ctx, sess, a, domain.StatusEmAndamento, motivo, map[string]any{"observacoes": obs})
}

// Reabrir moves any audit back to em_andamento and clears the closing stamp.
func (s *AuditoriaService) Reabrir(ctx context.Context, sess *domain.Session, id string) (*domain.Auditoria, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.Reabrir")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "reabrir auditoria"); err != nil {
		return nil, err
	}
	a, err := s.store.GetAuditoria(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, sess, a, domain.StatusEmAndamento, "", map[string]any{
		"fechado_em":  nil,
		"fechado_por": nil,
	})
}

// Finalizar closes the audit. It needs at least one counted cycle row or
// closing item, and a comprovante when the condominium pays directly.
// Finalizing a final audit returns it unchanged.
func (s *AuditoriaService) Finalizar(ctx context.Context, sess *domain.Session, id string, req *domain.FinalizarRequest) (*domain.Auditoria, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.Finalizar")
	defer span.End()
	span.SetAttributes(attribute.String("auditoria.id", id))

	if err := requireRole(sess, domain.RoleInterno, "finalizar auditoria"); err != nil {
		return nil, err
	}
	if req == nil {
		req = &domain.FinalizarRequest{}
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	a, err := s.store.GetAuditoria(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == domain.StatusFinal {
		return a, nil
	}

	cond, err := s.catalog.condominio(ctx, a.CondominioID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLancamentos(ctx, a.ID); err != nil {
		return nil, err
	}

	comprovante := a.ComprovanteFechamentoURL
	if req.ComprovanteFechamentoURL != nil && *req.ComprovanteFechamentoURL != "" {
		comprovante = req.ComprovanteFechamentoURL
	}
	if cond.TipoPagamento == domain.PagamentoDireto && (comprovante == nil || *comprovante == "") {
		return nil, &domain.ErrValidation{
			Field:   "comprovante_fechamento_url",
			Message: "obrigatório para condomínios com pagamento direto",
		}
	}

	fields := map[string]any{
		"fechado_em":  s.now().UTC().Format(time.RFC3339),
		"fechado_por": sess.UserID,
	}
	if comprovante != nil {
		fields["comprovante_fechamento_url"] = *comprovante
	}
	if req.Observacoes != nil {
		fields["observacoes"] = *req.Observacoes
	}
	return s.transition(ctx, sess, a, domain.StatusFinal, "", fields)
}

// checkLancamentos requires a cycle row with cycles > 0 or a closing item.
func (s *AuditoriaService) checkLancamentos(ctx context.Context, auditoriaID string) error {
	ciclos, err := s.store.ListCiclos(ctx, auditoriaID)
	if err != nil {
		return err
	}
	for _, c := range ciclos {
		if c.Ciclos > 0 {
			return nil
		}
	}
	itens, err := s.store.ListFechamentoItens(ctx, auditoriaID)
	if err != nil {
		return err
	}
	if len(itens) == 0 {
		return &domain.ErrValidation{Message: "auditoria sem ciclos ou itens de fechamento lançados"}
	}
	return nil
}

func (s *AuditoriaService) transition(ctx context.Context, sess *domain.Session, a *domain.Auditoria, to domain.AuditStatus, motivo string, fields map[string]any) (*domain.Auditoria, error) {
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields["status"] = to

	updated, err := s.store.UpdateAuditoria(ctx, a.ID, fields)
	if err != nil {
		s.logger.Error("status transition failed",
			zap.String("auditoria_id", a.ID),
			zap.String("from", string(a.Status)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
		return nil, err
	}
	s.recordTransition(ctx, a, to, sess.UserID, motivo)
	return updated, nil
}

// recordTransition appends the status log. Failures only warn.
func (s *AuditoriaService) recordTransition(ctx context.Context, a *domain.Auditoria, to domain.AuditStatus, actorID, motivo string) {
	if a.Status == to {
		return
	}
	s.metrics.IncrTransition(to)
	s.logger.Info("auditoria status changed",
		zap.String("auditoria_id", a.ID),
		zap.String("from", string(a.Status)),
		zap.String("to", string(to)),
		zap.String("actor_id", actorID),
	)

	err := s.store.InsertStatusLog(ctx, &domain.StatusLog{
		AuditoriaID: a.ID,
		De:          a.Status,
		Para:        to,
		AtorID:      actorID,
		Motivo:      motivo,
	})
	if err != nil {
		s.logger.Warn("failed to write status log",
			zap.String("auditoria_id", a.ID),
			zap.Error(err),
		)
	}
}

func (s *AuditoriaService) Historico(ctx context.Context, sess *domain.Session, id string) ([]domain.StatusLog, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.Historico")
	defer span.End()

	if _, err := s.Get(ctx, sess, id); err != nil {
		return nil, err
	}
	return s.store.ListStatusLog(ctx, id)
}

// ============================================================
// Assignment
// ============================================================

func (s *AuditoriaService) Atribuir(ctx context.Context, sess *domain.Session, id, auditorID string) (*domain.Auditoria, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.Atribuir")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "atribuir auditoria"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(auditorID) == "" {
		return nil, &domain.ErrValidation{Field: "auditor_id", Message: "obrigatório"}
	}
	if err := s.checkAuditor(ctx, auditorID); err != nil {
		return nil, err
	}
	a, err := s.store.UpdateAuditoria(ctx, id, map[string]any{"auditor_id": auditorID})
	if err != nil {
		return nil, err
	}
	s.logger.Info("auditoria assigned",
		zap.String("auditoria_id", id),
		zap.String("auditor_id", auditorID),
		zap.String("actor_id", sess.UserID),
	)
	return a, nil
}

func (s *AuditoriaService) Desatribuir(ctx context.Context, sess *domain.Session, id string) (*domain.Auditoria, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.Desatribuir")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "desatribuir auditoria"); err != nil {
		return nil, err
	}
	return s.store.UpdateAuditoria(ctx, id, map[string]any{"auditor_id": nil})
}

func (s *AuditoriaService) checkAuditor(ctx context.Context, userID string) error {
	u, err := s.usuarios.GetUsuario(ctx, userID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return &domain.ErrValidation{Field: "auditor_id", Message: "usuário não encontrado"}
		}
		return err
	}
	if !u.Ativo || domain.ParseRole(string(u.Role)) != domain.RoleAuditor {
		return &domain.ErrValidation{Field: "auditor_id", Message: "usuário não é um auditor ativo"}
	}
	return nil
}

// claim assigns an unassigned audit to auditorID with a conditional update.
func (s *AuditoriaService) claim(ctx context.Context, a *domain.Auditoria, auditorID string, fields map[string]any) (*domain.Auditoria, error) {
	updated, err := s.store.ClaimAuditoria(ctx, a.ID, auditorID, fields)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		s.logger.Info("auditoria claim lost",
			zap.String("auditoria_id", a.ID),
			zap.String("auditor_id", auditorID),
		)
		return nil, &domain.ErrConflict{Message: "auditoria já foi assumida por outro auditor"}
	}
	s.logger.Info("auditoria claimed",
		zap.String("auditoria_id", a.ID),
		zap.String("auditor_id", auditorID),
	)
	return updated, nil
}

// ============================================================
// Cycle counts and closing items
// ============================================================

// Ciclos returns the priced cycle aggregation used by the report.
func (s *AuditoriaService) Ciclos(ctx context.Context, sess *domain.Session, id string) (*domain.CiclosAgregados, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.Ciclos")
	defer span.End()

	a, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	ciclos, err := s.store.ListCiclos(ctx, id)
	if err != nil {
		return nil, err
	}
	maquinas, err := s.catalog.maquinasDe(ctx, a.CondominioID)
	if err != nil {
		return nil, err
	}
	agg, avisos := AgregarCiclos(ciclos, maquinas)
	for _, w := range avisos {
		s.logger.Debug("ciclos aggregation warning", zap.String("auditoria_id", id), zap.String("aviso", w))
	}
	return &agg, nil
}

// SalvarCiclos upserts cycle rows on (auditoria, categoria, capacidade).
func (s *AuditoriaService) SalvarCiclos(ctx context.Context, sess *domain.Session, id string, rows []domain.CicloInput) ([]domain.Ciclo, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.SalvarCiclos")
	defer span.End()
	span.SetAttributes(attribute.Int("ciclos.rows", len(rows)))

	if len(rows) == 0 {
		return nil, &domain.ErrValidation{Message: "nenhum ciclo informado"}
	}
	seen := make(map[string]bool, len(rows))
	for i := range rows {
		rows[i].Capacidade = strings.TrimSpace(rows[i].Capacidade)
		if err := validateStruct(&rows[i]); err != nil {
			return nil, err
		}
		k := precoKey(rows[i].Categoria, rows[i].Capacidade)
		if seen[k] {
			return nil, &domain.ErrValidation{
				Field:   "capacidade",
				Message: fmt.Sprintf("%s %s informado mais de uma vez", rows[i].Categoria, rows[i].Capacidade),
			}
		}
		seen[k] = true
	}
	if _, err := s.editable(ctx, sess, id); err != nil {
		return nil, err
	}
	return s.store.UpsertCiclos(ctx, id, rows)
}

func (s *AuditoriaService) ListItens(ctx context.Context, sess *domain.Session, id string) ([]domain.FechamentoItem, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.ListItens")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "ver itens de fechamento"); err != nil {
		return nil, err
	}
	return s.store.ListFechamentoItens(ctx, id)
}

func (s *AuditoriaService) CreateItem(ctx context.Context, sess *domain.Session, id string, in *domain.FechamentoItemInput) (*domain.FechamentoItem, error) {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.CreateItem")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "lançar item de fechamento"); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.ValorUnitario.IsNegative() {
		return nil, &domain.ErrValidation{Field: "valor_unitario", Message: "não pode ser negativo"}
	}
	if _, err := s.store.GetAuditoria(ctx, id); err != nil {
		return nil, err
	}
	item, err := s.store.CreateFechamentoItem(ctx, id, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("fechamento item created",
		zap.String("auditoria_id", id),
		zap.String("item_id", item.ID),
		zap.String("maquina_tag", item.MaquinaTag),
	)
	return item, nil
}

func (s *AuditoriaService) DeleteItem(ctx context.Context, sess *domain.Session, itemID string) error {
	ctx, span := auditTracer.Start(ctx, "AuditoriaService.DeleteItem")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "remover item de fechamento"); err != nil {
		return err
	}
	return s.store.DeleteFechamentoItem(ctx, itemID)
}
