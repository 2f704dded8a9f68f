package handler

import (
	"net/http"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Condomínios
// ============================================================

func listCondominiosHandler(svc *service.CondominioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/condominios")
		defer span.End()

		somenteAtivos := r.URL.Query().Get("ativo") == "true"
		list, err := svc.List(ctx, SessionFromContext(ctx), somenteAtivos)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getCondominioHandler(svc *service.CondominioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/condominios/{id}")
		defer span.End()

		c, err := svc.Get(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func createCondominioHandler(svc *service.CondominioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/condominios")
		defer span.End()

		var in domain.CondominioInput
		if err := decodeJSON(r, &in, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		c, err := svc.Create(ctx, SessionFromContext(ctx), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func updateCondominioHandler(svc *service.CondominioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /api/condominios/{id}")
		defer span.End()

		var in domain.CondominioInput
		if err := decodeJSON(r, &in, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		c, err := svc.Update(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func deleteCondominioHandler(svc *service.CondominioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/condominios/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		if err := svc.Delete(ctx, SessionFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "condomínio excluído", ID: id})
	}
}

// ============================================================
// Máquinas
// ============================================================

func listMaquinasHandler(svc *service.CondominioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/condominios/{id}/maquinas")
		defer span.End()

		list, err := svc.ListMaquinas(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func createMaquinaHandler(svc *service.CondominioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/condominios/{id}/maquinas")
		defer span.End()

		var in domain.MaquinaInput
		if err := decodeJSON(r, &in, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		m, err := svc.CreateMaquina(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func updateMaquinaHandler(svc *service.CondominioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /api/maquinas/{id}")
		defer span.End()

		var in domain.MaquinaInput
		if err := decodeJSON(r, &in, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		m, err := svc.UpdateMaquina(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func deleteMaquinaHandler(svc *service.CondominioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/maquinas/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		if err := svc.DeleteMaquina(ctx, SessionFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "máquina excluída", ID: id})
	}
}
