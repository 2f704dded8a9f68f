package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionMiddleware resolves the caller from the Bearer token or, for the
// browser front end, the session cookie, and injects the Session into the
// request context.
func SessionMiddleware(sessions *service.SessionService, cookieName string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := accessToken(r, cookieName)
			if token == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Token de autenticação não fornecido")
				return
			}

			sess, err := sessions.Resolve(r.Context(), token)
			if err != nil {
				logger.Warn("auth: session rejected",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				handleServiceError(w, err, logger)
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// accessToken prefers a Bearer header; any other Authorization scheme falls
// back to the session cookie.
func accessToken(r *http.Request, cookieName string) string {
	if parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// SessionFromContext returns the authenticated caller, nil outside the
// session middleware.
func SessionFromContext(ctx context.Context) *domain.Session {
	s, _ := ctx.Value(sessionKey).(*domain.Session)
	return s
}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess *domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// CronAuthMiddleware accepts only "Authorization: Bearer <secret>". An empty
// secret disables the routes.
func CronAuthMiddleware(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, http.StatusServiceUnavailable, "cron desabilitado: CRON_SECRET não configurado")
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				logger.Warn("cron: invalid secret", zap.String("remote_addr", r.RemoteAddr))
				writeError(w, http.StatusUnauthorized, "não autorizado")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
