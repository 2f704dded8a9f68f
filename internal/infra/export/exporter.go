package export

import (
	"context"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
)

// Exporter bundles the PDF and XLSX renderers (implements
// port.ReportExporter).
type Exporter struct {
	pdf *PDF
}

func NewExporter(pdf *PDF) *Exporter {
	return &Exporter{pdf: pdf}
}

func (e *Exporter) AuditoriaPDF(ctx context.Context, rel *domain.Relatorio) ([]byte, error) {
	return e.pdf.Auditoria(ctx, rel)
}

func (e *Exporter) MensalPDF(ctx context.Context, m *domain.RelatorioMensal) ([]byte, error) {
	return e.pdf.Mensal(ctx, m)
}

func (e *Exporter) AuditoriaXLSX(ctx context.Context, rel *domain.Relatorio) ([]byte, error) {
	_, span := tracer.Start(ctx, "XLSX.Auditoria")
	defer span.End()
	return AuditoriaXLSX(rel)
}

func (e *Exporter) MensalXLSX(ctx context.Context, m *domain.RelatorioMensal) ([]byte, error) {
	_, span := tracer.Start(ctx, "XLSX.Mensal")
	defer span.End()
	return MensalXLSX(m)
}
