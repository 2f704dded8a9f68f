package service

import (
	"github.com/metalav/auditorias-bfa-go/internal/domain"
)

// requireSession fails with ErrUnauthorized when there is no caller.
func requireSession(s *domain.Session) error {
	if s == nil || s.UserID == "" {
		return &domain.ErrUnauthorized{}
	}
	return nil
}

// requireRole fails unless the caller holds at least min.
func requireRole(s *domain.Session, min domain.Role, action string) error {
	if err := requireSession(s); err != nil {
		return err
	}
	if !s.Role.AtLeast(min) {
		return &domain.ErrForbidden{Action: action}
	}
	return nil
}

// canView reports whether the caller may read the audit: staff see all,
// auditors their own and unassigned audits.
func canView(s *domain.Session, a *domain.Auditoria) bool {
	if s.IsStaff() {
		return true
	}
	return s.Role.Valid() && (a.AuditorID == nil || a.IsAssignedTo(s.UserID))
}

// canEdit reports whether the caller may change the audit: staff, or the
// assigned auditor.
func canEdit(s *domain.Session, a *domain.Auditoria) bool {
	return s.IsStaff() || (s.Role.Valid() && a.IsAssignedTo(s.UserID))
}
