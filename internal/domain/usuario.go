package domain

import (
	"strings"
	"time"
)

// Role is the closed set of back-office roles, ordered by privilege.
type Role string

const (
	RoleAuditor Role = "auditor"
	RoleInterno Role = "interno"
	RoleGestor  Role = "gestor"
)

// ParseRole normalizes a stored role string. Unknown values yield an empty
// role that fails every permission check.
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAuditor, RoleInterno, RoleGestor:
		return r
	}
	return ""
}

// Rank orders roles: auditor < interno < gestor. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleAuditor:
		return 1
	case RoleInterno:
		return 2
	case RoleGestor:
		return 3
	}
	return 0
}

// AtLeast reports whether r grants at least the privileges of min.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() > 0 && r.Rank() >= min.Rank()
}

// IsStaff reports whether the role belongs to the office staff (interno+).
func (r Role) IsStaff() bool {
	return r.AtLeast(RoleInterno)
}

func (r Role) Valid() bool {
	return r.Rank() > 0
}

// Usuario is a back-office user profile (table usuarios). The ID is the
// auth user id.
type Usuario struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Nome      string    `json:"nome"`
	Role      Role      `json:"role"`
	Ativo     bool      `json:"ativo"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Session is the identity resolved from the request cookie or bearer token.
type Session struct {
	UserID string
	Email  string
	Nome   string
	Role   Role
}

// IsStaff is a shortcut for Role.IsStaff.
func (s *Session) IsStaff() bool {
	return s != nil && s.Role.IsStaff()
}

// AuthUser is the identity returned by the auth service before the profile
// lookup.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CreateUsuarioRequest is the body of POST /api/usuarios.
type CreateUsuarioRequest struct {
	Email string `json:"email" validate:"required,email"`
	Nome  string `json:"nome" validate:"required,min=2"`
	Senha string `json:"senha" validate:"required,min=8"`
	Role  Role   `json:"role" validate:"required,oneof=auditor interno gestor"`
}

// UpdateUsuarioRequest is the body of PATCH /api/usuarios/{id}.
type UpdateUsuarioRequest struct {
	Nome  *string `json:"nome,omitempty" validate:"omitempty,min=2"`
	Role  *Role   `json:"role,omitempty" validate:"omitempty,oneof=auditor interno gestor"`
	Ativo *bool   `json:"ativo,omitempty"`
}
