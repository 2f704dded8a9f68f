package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/infra/observability"
	"github.com/metalav/auditorias-bfa-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var relTracer = otel.Tracer("service/relatorio")

// mensalConcurrency bounds the reports built in parallel for a monthly export.
const mensalConcurrency = 4

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Arquivo is an exported report ready to be served.
type Arquivo struct {
	Nome        string
	ContentType string
	Data        []byte
}

// RelatorioService assembles the closing reports and exports them. Every
// format goes through Gerar so the figures never diverge.
type RelatorioService struct {
	auditorias port.AuditoriaStore
	catalog    *CondominioService
	exporter   port.ReportExporter
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewRelatorioService(
	auditorias port.AuditoriaStore,
	catalog *CondominioService,
	exporter port.ReportExporter,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RelatorioService {
	return &RelatorioService{
		auditorias: auditorias,
		catalog:    catalog,
		exporter:   exporter,
		metrics:    metrics,
		logger:     logger,
	}
}

// Gerar builds the report of one audit.
func (s *RelatorioService) Gerar(ctx context.Context, sess *domain.Session, auditoriaID string) (*domain.Relatorio, error) {
	if err := requireRole(sess, domain.RoleInterno, "gerar relatório"); err != nil {
		return nil, err
	}
	return s.gerar(ctx, auditoriaID)
}

func (s *RelatorioService) gerar(ctx context.Context, auditoriaID string) (*domain.Relatorio, error) {
	ctx, span := relTracer.Start(ctx, "RelatorioService.Gerar")
	defer span.End()
	span.SetAttributes(attribute.String("auditoria.id", auditoriaID))

	a, err := s.auditorias.GetAuditoria(ctx, auditoriaID)
	if err != nil {
		return nil, err
	}

	in := RelatorioInput{Auditoria: a}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.Condominio, err = s.catalog.condominio(gctx, a.CondominioID)
		return err
	})
	g.Go(func() (err error) {
		in.Maquinas, err = s.catalog.maquinasDe(gctx, a.CondominioID)
		return err
	})
	g.Go(func() (err error) {
		in.Ciclos, err = s.auditorias.ListCiclos(gctx, a.ID)
		return err
	})
	g.Go(func() (err error) {
		in.Itens, err = s.auditorias.ListFechamentoItens(gctx, a.ID)
		return err
	})
	g.Go(func() error {
		anteriores, err := s.auditorias.ListAnteriores(gctx, a.CondominioID, a.MesRef, 2)
		if err != nil {
			return err
		}
		if len(anteriores) > 0 {
			in.Anterior = &anteriores[0]
			in.CiclosAnteriores, err = s.auditorias.ListCiclos(gctx, anteriores[0].ID)
			if err != nil {
				return err
			}
		}
		if len(anteriores) > 1 {
			in.AnteriorAnterior = &anteriores[1]
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rel := CalcularRelatorio(in)
	if len(rel.Avisos) > 0 {
		s.logger.Info("relatorio generated with warnings",
			zap.String("auditoria_id", a.ID),
			zap.Strings("avisos", rel.Avisos),
		)
	}
	return rel, nil
}

// GerarMensal builds the consolidated report of every audit in mesRef.
// Audits whose report fails are listed in Falhas instead of failing the
// whole month.
func (s *RelatorioService) GerarMensal(ctx context.Context, sess *domain.Session, mesRef string) (*domain.RelatorioMensal, error) {
	ctx, span := relTracer.Start(ctx, "RelatorioService.GerarMensal")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "gerar relatório mensal"); err != nil {
		return nil, err
	}
	mes, err := domain.ParseMesRef(mesRef)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("mes_ref", mes))

	auditorias, err := s.auditorias.ListAuditorias(ctx, domain.AuditoriaFiltro{MesRef: mes})
	if err != nil {
		return nil, err
	}

	var (
		mu         sync.Mutex
		relatorios = make([]domain.Relatorio, 0, len(auditorias))
		falhas     []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mensalConcurrency)
	for _, a := range auditorias {
		a := a
		g.Go(func() error {
			rel, err := s.gerar(gctx, a.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("monthly report: audit skipped",
					zap.String("auditoria_id", a.ID),
					zap.Error(err),
				)
				falhas = append(falhas, fmt.Sprintf("%s: %v", a.ID, err))
				return nil
			}
			relatorios = append(relatorios, *rel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(relatorios, func(i, j int) bool {
		return strings.ToLower(relatorios[i].Condominio.Nome) < strings.ToLower(relatorios[j].Condominio.Nome)
	})
	sort.Strings(falhas)

	m := &domain.RelatorioMensal{
		MesRef:        mes,
		Relatorios:    relatorios,
		ReceitaTotal:  decimal.Zero,
		CashbackTotal: decimal.Zero,
		RepasseTotal:  decimal.Zero,
		TotalAPagar:   decimal.Zero,
		Falhas:        falhas,
	}
	for _, r := range relatorios {
		m.ReceitaTotal = m.ReceitaTotal.Add(r.Financeiro.ReceitaTotal)
		m.CashbackTotal = m.CashbackTotal.Add(r.Financeiro.Cashback)
		m.RepasseTotal = m.RepasseTotal.Add(r.Financeiro.RepasseTotal)
		m.TotalAPagar = m.TotalAPagar.Add(r.Financeiro.TotalAPagar)
	}
	return m, nil
}

// Exportar renders the report of one audit as "pdf" or "xlsx".
func (s *RelatorioService) Exportar(ctx context.Context, sess *domain.Session, auditoriaID, formato string) (*Arquivo, error) {
	ctx, span := relTracer.Start(ctx, "RelatorioService.Exportar")
	defer span.End()
	span.SetAttributes(attribute.String("export.format", formato))

	start := time.Now()
	rel, err := s.Gerar(ctx, sess, auditoriaID)
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("relatorio-%s-%s", slug(rel.Condominio.Nome), mesCurto(rel.Auditoria.MesRef))

	arq, err := s.render(formato, base,
		func() ([]byte, error) { return s.exporter.AuditoriaPDF(ctx, rel) },
		func() ([]byte, error) { return s.exporter.AuditoriaXLSX(ctx, rel) },
	)
	if err != nil {
		s.logger.Error("report export failed",
			zap.String("auditoria_id", auditoriaID),
			zap.String("format", formato),
			zap.Error(err),
		)
		return nil, err
	}
	s.metrics.IncrExport(formato)
	s.metrics.RecordRequestDuration("export_"+formato, time.Since(start))
	return arq, nil
}

// ExportarMensal renders the monthly report as "pdf" or "xlsx".
func (s *RelatorioService) ExportarMensal(ctx context.Context, sess *domain.Session, mesRef, formato string) (*Arquivo, error) {
	ctx, span := relTracer.Start(ctx, "RelatorioService.ExportarMensal")
	defer span.End()
	span.SetAttributes(attribute.String("export.format", formato))

	start := time.Now()
	m, err := s.GerarMensal(ctx, sess, mesRef)
	if err != nil {
		return nil, err
	}
	base := "relatorio-mensal-" + mesCurto(m.MesRef)

	arq, err := s.render(formato, base,
		func() ([]byte, error) { return s.exporter.MensalPDF(ctx, m) },
		func() ([]byte, error) { return s.exporter.MensalXLSX(ctx, m) },
	)
	if err != nil {
		s.logger.Error("monthly export failed",
			zap.String("mes_ref", m.MesRef),
			zap.String("format", formato),
			zap.Error(err),
		)
		return nil, err
	}
	s.metrics.IncrExport("mensal_" + formato)
	s.metrics.RecordRequestDuration("export_mensal_"+formato, time.Since(start))
	return arq, nil
}

func (s *RelatorioService) render(formato, base string, pdf, xlsx func() ([]byte, error)) (*Arquivo, error) {
	switch formato {
	case "pdf":
		data, err := pdf()
		if err != nil {
			return nil, err
		}
		return &Arquivo{Nome: base + ".pdf", ContentType: ContentTypePDF, Data: data}, nil
	case "xlsx":
		data, err := xlsx()
		if err != nil {
			return nil, err
		}
		return &Arquivo{Nome: base + ".xlsx", ContentType: ContentTypeXLSX, Data: data}, nil
	}
	return nil, &domain.ErrValidation{Field: "formato", Message: "deve ser pdf ou xlsx"}
}

// mesCurto turns 2024-05-01 into 2024-05.
func mesCurto(mesRef string) string {
	if len(mesRef) >= 7 {
		return mesRef[:7]
	}
	return mesRef
}

var semAcento = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

// slug keeps ASCII letters and digits of a name for use in a filename.
func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range semAcento.Replace(strings.ToLower(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "condominio"
	}
	return out
}
