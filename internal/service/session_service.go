package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/infra/observability"
	"github.com/metalav/auditorias-bfa-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var sessionTracer = otel.Tracer("service/session")

// SupabaseClaims are the claims of a Supabase Auth access token.
type SupabaseClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// SessionService turns an access token into a Session: identity from the
// token (verified locally when the JWT secret is known, else by the auth
// service) and role from the usuarios profile.
type SessionService struct {
	auth      port.AuthProvider
	usuarios  port.UsuarioStore
	cache     port.Cache[*domain.Session]
	jwtSecret []byte
	metrics   *observability.Metrics
	logger    *zap.Logger
}

func NewSessionService(auth port.AuthProvider, usuarios port.UsuarioStore, cache port.Cache[*domain.Session], jwtSecret string, metrics *observability.Metrics, logger *zap.Logger) *SessionService {
	var secret []byte
	if jwtSecret != "" {
		secret = []byte(jwtSecret)
	}
	return &SessionService{
		auth:      auth,
		usuarios:  usuarios,
		cache:     cache,
		jwtSecret: secret,
		metrics:   metrics,
		logger:    logger,
	}
}

// Resolve returns the session behind token.
func (s *SessionService) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	ctx, span := sessionTracer.Start(ctx, "SessionService.Resolve")
	defer span.End()

	if token == "" {
		return nil, &domain.ErrUnauthorized{}
	}

	user, err := s.identify(ctx, token)
	if err != nil {
		return nil, err
	}

	key := sessionKey(user.ID, token)
	if sess, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit("session")
		return sess, nil
	}
	s.metrics.IncrCacheMiss("session")

	u, err := s.usuarios.GetUsuario(ctx, user.ID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			s.logger.Warn("session: auth user without profile", zap.String("user_id", user.ID))
			return nil, &domain.ErrForbidden{Action: "usuário sem perfil cadastrado"}
		}
		return nil, err
	}
	if !u.Ativo {
		return nil, &domain.ErrForbidden{Action: "usuário inativo"}
	}

	sess := &domain.Session{
		UserID: u.ID,
		Email:  u.Email,
		Nome:   u.Nome,
		Role:   domain.ParseRole(string(u.Role)),
	}
	if sess.Email == "" {
		sess.Email = user.Email
	}
	s.cache.Set(key, sess)
	return sess, nil
}

// Forget drops every cached session of a user, so role changes apply to the
// next request.
func (s *SessionService) Forget(userID string) {
	s.cache.DeletePrefix(userID + ":")
}

func (s *SessionService) identify(ctx context.Context, token string) (*domain.AuthUser, error) {
	if s.jwtSecret != nil {
		return s.verifyLocal(token)
	}
	return s.auth.GetUser(ctx, token)
}

func (s *SessionService) verifyLocal(tokenString string) (*domain.AuthUser, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SupabaseClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*SupabaseClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
	}
	if claims.Role != "" && claims.Role != "authenticated" {
		return nil, &domain.ErrUnauthorized{Message: "Tipo de token inválido"}
	}
	return &domain.AuthUser{ID: claims.Subject, Email: claims.Email}, nil
}

// sessionKey never stores the raw token.
func sessionKey(userID, token string) string {
	sum := sha256.Sum256([]byte(token))
	return userID + ":" + hex.EncodeToString(sum[:8])
}
