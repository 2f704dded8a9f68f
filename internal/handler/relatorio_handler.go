package handler

import (
	"net/http"

	"github.com/metalav/auditorias-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Relatórios
// ============================================================

func relatorioHandler(svc *service.RelatorioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/relatorios/auditorias/{id}")
		defer span.End()

		rel, err := svc.Gerar(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rel)
	}
}

func relatorioMensalHandler(svc *service.RelatorioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/relatorios/mensal")
		defer span.End()

		m, err := svc.GerarMensal(ctx, SessionFromContext(ctx), r.URL.Query().Get("mes_ref"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func exportRelatorioHandler(svc *service.RelatorioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/relatorios/auditorias/{id}/{formato}")
		defer span.End()

		formato := chi.URLParam(r, "formato")
		span.SetAttributes(attribute.String("export.format", formato))

		arq, err := svc.Exportar(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), formato)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeFile(w, arq.Nome, arq.ContentType, arq.Data)
	}
}

func exportMensalHandler(svc *service.RelatorioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/relatorios/mensal/{formato}")
		defer span.End()

		formato := chi.URLParam(r, "formato")
		span.SetAttributes(attribute.String("export.format", formato))

		arq, err := svc.ExportarMensal(ctx, SessionFromContext(ctx), r.URL.Query().Get("mes_ref"), formato)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeFile(w, arq.Nome, arq.ContentType, arq.Data)
	}
}
