package export

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/infra/resilience"
	"github.com/metalav/auditorias-bfa-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//go:embed templates/*.html
var templates embed.FS

// PDF renders reports through html/template and a PDF renderer. Photo
// attachments are downloaded, shrunk and embedded as data URIs.
type PDF struct {
	renderer port.PDFRenderer
	fetcher  port.AttachmentFetcher
	bulkhead *resilience.Bulkhead
	logger   *zap.Logger
	tpl      *template.Template
	now      func() time.Time
}

// NewPDF parses the report templates and wires the collaborators. bulkhead
// bounds concurrent attachment downloads.
func NewPDF(renderer port.PDFRenderer, fetcher port.AttachmentFetcher, bulkhead *resilience.Bulkhead, logger *zap.Logger) (*PDF, error) {
	if renderer == nil {
		return nil, fmt.Errorf("export: pdf renderer required")
	}
	if bulkhead == nil {
		bulkhead = resilience.NewBulkhead(4)
	}
	tpl, err := template.New("reports").Funcs(funcMap).ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &PDF{
		renderer: renderer,
		fetcher:  fetcher,
		bulkhead: bulkhead,
		logger:   logger,
		tpl:      tpl,
		now:      time.Now,
	}, nil
}

type foto struct {
	Titulo string
	Src    template.URL
}

type auditoriaView struct {
	R        *domain.Relatorio
	Fotos    []foto
	GeradoEm string
}

type mensalView struct {
	M        *domain.RelatorioMensal
	GeradoEm string
}

// Auditoria renders the closing report of one audit.
func (p *PDF) Auditoria(ctx context.Context, rel *domain.Relatorio) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "PDF.Auditoria")
	defer span.End()
	span.SetAttributes(attribute.String("auditoria.id", rel.Auditoria.ID))

	html, err := p.AuditoriaHTML(ctx, rel)
	if err != nil {
		return nil, err
	}
	return p.renderer.RenderHTML(ctx, html)
}

// AuditoriaHTML builds the HTML document handed to the PDF renderer.
func (p *PDF) AuditoriaHTML(ctx context.Context, rel *domain.Relatorio) (string, error) {
	view := auditoriaView{
		R:        rel,
		Fotos:    p.embedFotos(ctx, rel.Anexos),
		GeradoEm: p.now().Format("02/01/2006 15:04"),
	}
	var buf bytes.Buffer
	if err := p.tpl.ExecuteTemplate(&buf, "relatorio.html", view); err != nil {
		return "", fmt.Errorf("render relatorio template: %w", err)
	}
	return buf.String(), nil
}

// Mensal renders the consolidated monthly report.
func (p *PDF) Mensal(ctx context.Context, m *domain.RelatorioMensal) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "PDF.Mensal")
	defer span.End()
	span.SetAttributes(attribute.String("mes_ref", m.MesRef))

	view := mensalView{M: m, GeradoEm: p.now().Format("02/01/2006 15:04")}
	var buf bytes.Buffer
	if err := p.tpl.ExecuteTemplate(&buf, "mensal.html", view); err != nil {
		return nil, fmt.Errorf("render mensal template: %w", err)
	}
	return p.renderer.RenderHTML(ctx, buf.String())
}

// embedFotos downloads attachments in parallel and keeps the images that
// decode. Non-image attachments and failed downloads are dropped.
func (p *PDF) embedFotos(ctx context.Context, anexos []domain.Anexo) []foto {
	if p.fetcher == nil || len(anexos) == 0 {
		return nil
	}

	out := make([]*foto, len(anexos))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range anexos {
		i, a := i, a
		g.Go(func() error {
			return p.bulkhead.Do(gctx, func() error {
				data, contentType, err := p.fetcher.Fetch(gctx, a.URL)
				if err != nil {
					p.logger.Warn("export: attachment fetch failed",
						zap.String("titulo", a.Titulo),
						zap.Error(err),
					)
					return nil
				}
				if !IsImage(contentType) {
					return nil
				}
				src, err := ImageDataURI(data)
				if err != nil {
					p.logger.Warn("export: attachment is not a decodable image",
						zap.String("titulo", a.Titulo),
						zap.Error(err),
					)
					return nil
				}
				out[i] = &foto{Titulo: a.Titulo, Src: template.URL(src)}
				return nil
			})
		})
	}
	_ = g.Wait()

	fotos := make([]foto, 0, len(out))
	for _, f := range out {
		if f != nil {
			fotos = append(fotos, *f)
		}
	}
	return fotos
}

var funcMap = template.FuncMap{
	"brl": domain.BRL,
	"brlNull": func(d decimal.NullDecimal) string {
		if !d.Valid {
			return "-"
		}
		return domain.BRL(d.Decimal)
	},
	"num": func(d decimal.Decimal) string {
		return decimalBR(d, 2)
	},
	"numNull": func(d decimal.NullDecimal) string {
		if !d.Valid {
			return "-"
		}
		return decimalBR(d.Decimal, 2)
	},
	"pct": func(d decimal.NullDecimal) string {
		if !d.Valid {
			return ""
		}
		sign := ""
		if d.Decimal.IsPositive() {
			sign = "+"
		}
		return sign + decimalBR(d.Decimal, 1) + "%"
	},
	"mes": func(mesRef string) string {
		t, err := time.Parse("2006-01-02", mesRef)
		if err != nil {
			return mesRef
		}
		return t.Format("01/2006")
	},
	"add": func(a, b int) int { return a + b },
}

// decimalBR formats d with a comma as decimal separator.
func decimalBR(d decimal.Decimal, places int32) string {
	return strings.Replace(d.StringFixed(places), ".", ",", 1)
}
