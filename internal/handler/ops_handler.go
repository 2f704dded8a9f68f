package handler

import (
	"net/http"

	"github.com/metalav/auditorias-bfa-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Health, diagnostics & cron
// ============================================================

func healthzHandler(diag *service.DiagnosticoService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /healthz")
		defer span.End()

		h := diag.Health(ctx)
		status := http.StatusOK
		if h.Status == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func diagnosticoHandler(diag *service.DiagnosticoService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/diagnostico")
		defer span.End()

		d, err := diag.Diagnostico(ctx, SessionFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func gerarAuditoriasHandler(jobs *service.JobService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" /api/cron/gerar-auditorias")
		defer span.End()

		res, err := jobs.GerarAuditorias(ctx, r.URL.Query().Get("mes_ref"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
