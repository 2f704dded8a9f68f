package service

import (
	"context"
	"strings"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var userTracer = otel.Tracer("service/usuario")

// UsuarioService manages back-office users. Credentials live in the auth
// service; the usuarios row holds name, role and the active flag.
type UsuarioService struct {
	auth     port.AuthProvider
	store    port.UsuarioStore
	sessions *SessionService
	logger   *zap.Logger
}

func NewUsuarioService(auth port.AuthProvider, store port.UsuarioStore, sessions *SessionService, logger *zap.Logger) *UsuarioService {
	return &UsuarioService{auth: auth, store: store, sessions: sessions, logger: logger}
}

func (s *UsuarioService) List(ctx context.Context, sess *domain.Session, role string) ([]domain.Usuario, error) {
	ctx, span := userTracer.Start(ctx, "UsuarioService.List")
	defer span.End()

	if err := requireRole(sess, domain.RoleInterno, "listar usuários"); err != nil {
		return nil, err
	}
	var r domain.Role
	if role != "" {
		if r = domain.ParseRole(role); r == "" {
			return nil, &domain.ErrValidation{Field: "role", Message: "deve ser um de: auditor interno gestor"}
		}
	}
	return s.store.ListUsuarios(ctx, r)
}

func (s *UsuarioService) Create(ctx context.Context, sess *domain.Session, req *domain.CreateUsuarioRequest) (*domain.Usuario, error) {
	ctx, span := userTracer.Start(ctx, "UsuarioService.Create")
	defer span.End()

	if err := requireRole(sess, domain.RoleGestor, "cadastrar usuário"); err != nil {
		return nil, err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Nome = strings.TrimSpace(req.Nome)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	authUser, err := s.auth.CreateUser(ctx, req.Email, req.Senha)
	if err != nil {
		return nil, err
	}

	u, err := s.store.CreateUsuario(ctx, &domain.Usuario{
		ID:    authUser.ID,
		Email: req.Email,
		Nome:  req.Nome,
		Role:  req.Role,
		Ativo: true,
	})
	if err != nil {
		// The auth user exists without a profile; it cannot sign in until a
		// profile row is created for the same id.
		s.logger.Error("usuario profile creation failed after auth signup",
			zap.String("user_id", authUser.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("usuario created",
		zap.String("user_id", u.ID),
		zap.String("role", string(u.Role)),
		zap.String("actor_id", sess.UserID),
	)
	return u, nil
}

func (s *UsuarioService) Update(ctx context.Context, sess *domain.Session, id string, req *domain.UpdateUsuarioRequest) (*domain.Usuario, error) {
	ctx, span := userTracer.Start(ctx, "UsuarioService.Update")
	defer span.End()

	if err := requireRole(sess, domain.RoleGestor, "editar usuário"); err != nil {
		return nil, err
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	fields := make(map[string]any, 3)
	if req.Nome != nil {
		fields["nome"] = strings.TrimSpace(*req.Nome)
	}
	if req.Role != nil {
		fields["role"] = *req.Role
	}
	if req.Ativo != nil {
		fields["ativo"] = *req.Ativo
	}
	if len(fields) == 0 {
		return nil, &domain.ErrValidation{Message: "nenhum campo para atualizar"}
	}
	if id == sess.UserID && (req.Ativo != nil && !*req.Ativo || req.Role != nil && *req.Role != domain.RoleGestor) {
		return nil, &domain.ErrValidation{Message: "não é possível rebaixar ou desativar o próprio usuário"}
	}

	u, err := s.store.UpdateUsuario(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	s.sessions.Forget(id)

	s.logger.Info("usuario updated",
		zap.String("user_id", id),
		zap.String("role", string(u.Role)),
		zap.Bool("ativo", u.Ativo),
		zap.String("actor_id", sess.UserID),
	)
	return u, nil
}
