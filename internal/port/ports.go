// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	DeletePrefix(prefix string)
}

// CondominioStore persists condominiums and their machines.
type CondominioStore interface {
	ListCondominios(ctx context.Context, somenteAtivos bool) ([]domain.Condominio, error)
	GetCondominio(ctx context.Context, id string) (*domain.Condominio, error)
	CreateCondominio(ctx context.Context, in *domain.CondominioInput) (*domain.Condominio, error)
	UpdateCondominio(ctx context.Context, id string, in *domain.CondominioInput) (*domain.Condominio, error)
	DeleteCondominio(ctx context.Context, id string) error

	ListMaquinas(ctx context.Context, condominioID string) ([]domain.Maquina, error)
	GetMaquina(ctx context.Context, id string) (*domain.Maquina, error)
	CreateMaquina(ctx context.Context, condominioID string, in *domain.MaquinaInput) (*domain.Maquina, error)
	UpdateMaquina(ctx context.Context, id string, in *domain.MaquinaInput) (*domain.Maquina, error)
	DeleteMaquina(ctx context.Context, id string) error
}

// AuditoriaStore persists audits, cycle counts, closing items and the
// status log.
type AuditoriaStore interface {
	ListAuditorias(ctx context.Context, f domain.AuditoriaFiltro) ([]domain.Auditoria, error)
	GetAuditoria(ctx context.Context, id string) (*domain.Auditoria, error)
	// ListAnteriores returns the audits of the condominium in the meses
	// months immediately before mesRef, newest first.
	ListAnteriores(ctx context.Context, condominioID, mesRef string, meses int) ([]domain.Auditoria, error)
	CreateAuditoria(ctx context.Context, req *domain.CreateAuditoriaRequest) (*domain.Auditoria, error)
	// UpsertAuditoriasMes inserts one audit per condominium for mesRef,
	// ignoring the ones that already exist. Returns the rows created.
	UpsertAuditoriasMes(ctx context.Context, condominioIDs []string, mesRef string) (int, error)
	UpdateAuditoria(ctx context.Context, id string, fields map[string]any) (*domain.Auditoria, error)
	// ClaimAuditoria assigns auditorID only if the audit is still unassigned.
	// Returns (nil, nil) when another actor claimed it first.
	ClaimAuditoria(ctx context.Context, id, auditorID string, fields map[string]any) (*domain.Auditoria, error)
	DeleteAuditoria(ctx context.Context, id string) error

	ListCiclos(ctx context.Context, auditoriaID string) ([]domain.Ciclo, error)
	UpsertCiclos(ctx context.Context, auditoriaID string, rows []domain.CicloInput) ([]domain.Ciclo, error)

	ListFechamentoItens(ctx context.Context, auditoriaID string) ([]domain.FechamentoItem, error)
	CreateFechamentoItem(ctx context.Context, auditoriaID string, in *domain.FechamentoItemInput) (*domain.FechamentoItem, error)
	DeleteFechamentoItem(ctx context.Context, itemID string) error

	InsertStatusLog(ctx context.Context, log *domain.StatusLog) error
	ListStatusLog(ctx context.Context, auditoriaID string) ([]domain.StatusLog, error)
}

// UsuarioStore persists back-office user profiles.
type UsuarioStore interface {
	ListUsuarios(ctx context.Context, role domain.Role) ([]domain.Usuario, error)
	GetUsuario(ctx context.Context, id string) (*domain.Usuario, error)
	CreateUsuario(ctx context.Context, u *domain.Usuario) (*domain.Usuario, error)
	UpdateUsuario(ctx context.Context, id string, fields map[string]any) (*domain.Usuario, error)
}

// JobRunStore records scheduled job executions.
type JobRunStore interface {
	InsertJobRun(ctx context.Context, run *domain.JobRun) error
}

// HealthChecker probes a backing service.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// AuthProvider is the hosted auth service.
type AuthProvider interface {
	// GetUser resolves the identity behind an access token.
	GetUser(ctx context.Context, accessToken string) (*domain.AuthUser, error)
	// CreateUser registers a user with email + password and returns its id.
	CreateUser(ctx context.Context, email, password string) (*domain.AuthUser, error)
}

// ObjectStorage stores photo and comprovante binaries.
type ObjectStorage interface {
	Upload(ctx context.Context, objectPath, contentType string, data []byte) error
	PublicURL(objectPath string) string
}

// AttachmentFetcher downloads an attachment by URL.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// PDFRenderer converts an HTML document to PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// ReportExporter renders reports to binary formats.
type ReportExporter interface {
	AuditoriaPDF(ctx context.Context, rel *domain.Relatorio) ([]byte, error)
	MensalPDF(ctx context.Context, m *domain.RelatorioMensal) ([]byte, error)
	AuditoriaXLSX(ctx context.Context, rel *domain.Relatorio) ([]byte, error)
	MensalXLSX(ctx context.Context, m *domain.RelatorioMensal) ([]byte, error)
}

// RateLimiter counts hits per key inside a fixed window.
type RateLimiter interface {
	// Allow records a hit and reports whether it fits the budget, plus the
	// time left in the current window.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}
