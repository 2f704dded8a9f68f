package handler

import (
	"net/http"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Usuários
// ============================================================

type meResponse struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Nome  string      `json:"nome"`
	Role  domain.Role `json:"role"`
}

func meHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "não autenticado")
			return
		}
		writeJSON(w, http.StatusOK, meResponse{
			ID:    sess.UserID,
			Email: sess.Email,
			Nome:  sess.Nome,
			Role:  sess.Role,
		})
	}
}

func listUsuariosHandler(svc *service.UsuarioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/usuarios")
		defer span.End()

		list, err := svc.List(ctx, SessionFromContext(ctx), r.URL.Query().Get("role"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func createUsuarioHandler(svc *service.UsuarioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/usuarios")
		defer span.End()

		var req domain.CreateUsuarioRequest
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		u, err := svc.Create(ctx, SessionFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

func updateUsuarioHandler(svc *service.UsuarioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /api/usuarios/{id}")
		defer span.End()

		var req domain.UpdateUsuarioRequest
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		u, err := svc.Update(ctx, SessionFromContext(ctx), chi.URLParam(r, "id"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}
