package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Auditorias
// ============================================================

func listAuditoriasHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/auditorias")
		defer span.End()

		q := r.URL.Query()
		list, err := svc.List(ctx, SessionFromContext(ctx), domain.AuditoriaFiltro{
			MesRef:       q.Get("mes_ref"),
			Status:       domain.AuditStatus(q.Get("status")),
			CondominioID: q.Get("condominio_id"),
			AuditorID:    q.Get("auditor_id"),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getAuditoriaHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/auditorias/{id}")
		defer span.End()

		a, err := svc.Get(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func createAuditoriaHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auditorias")
		defer span.End()

		var req domain.CreateAuditoriaRequest
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		a, err := svc.Create(ctx, SessionFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func updateAuditoriaHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /api/auditorias/{id}")
		defer span.End()

		var req domain.UpdateAuditoriaRequest
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		a, err := svc.Update(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func deleteAuditoriaHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/auditorias/{id}")
		defer span.End()

		id := chi.URLParam(r, "id")
		if err := svc.Delete(ctx, SessionFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "auditoria excluída", ID: id})
	}
}

// ============================================================
// Status transitions
// ============================================================

type transitionFunc func(ctx context.Context, sess *domain.Session, id string) (*domain.Auditoria, error)

func transitionHandler(fn transitionFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auditorias/{id}/transition")
		defer span.End()

		id := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("auditoria.id", id), attribute.String("http.path", r.URL.Path))

		a, err := fn(ctx, SessionFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

type devolverRequest struct {
	Motivo string `json:"motivo"`
}

func devolverHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auditorias/{id}/devolver")
		defer span.End()

		var req devolverRequest
		if err := decodeJSON(r, &req, true); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		a, err := svc.Devolver(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), req.Motivo)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func finalizarHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auditorias/{id}/finalizar")
		defer span.End()

		var req domain.FinalizarRequest
		if err := decodeJSON(r, &req, true); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		a, err := svc.Finalizar(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func historicoHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/auditorias/{id}/historico")
		defer span.End()

		logs, err := svc.Historico(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

// ============================================================
// Assignment
// ============================================================

type atribuirRequest struct {
	AuditorID string `json:"auditor_id"`
}

func atribuirHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auditorias/{id}/atribuir")
		defer span.End()

		var req atribuirRequest
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		a, err := svc.Atribuir(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), req.AuditorID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func desatribuirHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/auditorias/{id}/atribuir")
		defer span.End()

		a, err := svc.Desatribuir(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// ============================================================
// Ciclos & fechamento
// ============================================================

func getCiclosHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/auditorias/{id}/ciclos")
		defer span.End()

		agg, err := svc.Ciclos(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, agg)
	}
}

// ciclosRequest accepts either a bare array or {"ciclos": [...]}.
type ciclosRequest struct {
	Ciclos []domain.CicloInput `json:"ciclos"`
}

func (c *ciclosRequest) UnmarshalJSON(b []byte) error {
	if t := bytes.TrimSpace(b); len(t) > 0 && t[0] == '[' {
		return json.Unmarshal(t, &c.Ciclos)
	}
	type plain ciclosRequest
	return json.Unmarshal(b, (*plain)(c))
}

func putCiclosHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /api/auditorias/{id}/ciclos")
		defer span.End()

		var req ciclosRequest
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		rows, err := svc.SalvarCiclos(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), req.Ciclos)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func listItensHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/auditorias/{id}/fechamento/itens")
		defer span.End()

		itens, err := svc.ListItens(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, itens)
	}
}

func createItemHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auditorias/{id}/fechamento/itens")
		defer span.End()

		var in domain.FechamentoItemInput
		if err := decodeJSON(r, &in, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		item, err := svc.CreateItem(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), &in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}
}

func deleteItemHandler(svc *service.AuditoriaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /api/fechamento/itens/{itemId}")
		defer span.End()

		id := chi.URLParam(r, "itemId")
		if err := svc.DeleteItem(ctx, SessionFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "item removido", ID: id})
	}
}

// ============================================================
// Fotos
// ============================================================

func uploadFotoHandler(svc *service.FotoService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/auditorias/{id}/fotos")
		defer span.End()

		r.Body = http.MaxBytesReader(w, r.Body, service.MaxFotoBytes+(1<<20))
		if err := r.ParseMultipartForm(service.MaxFotoBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "arquivo muito grande")
				return
			}
			writeError(w, http.StatusBadRequest, "formulário multipart inválido")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "campo file obrigatório")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "falha ao ler arquivo")
			return
		}

		a, err := svc.Upload(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), &service.FotoUpload{
			Tipo:        r.FormValue("tipo"),
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
