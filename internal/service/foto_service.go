package service

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/metalav/auditorias-bfa-go/internal/domain"
	"github.com/metalav/auditorias-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var fotoTracer = otel.Tracer("service/foto")

// MaxFotoBytes bounds a single uploaded photo or comprovante.
const MaxFotoBytes = 10 << 20

// fotoColunas maps an upload tipo to the audit column holding its URL.
var fotoColunas = map[string]string{
	"agua":        "foto_agua_url",
	"energia":     "foto_energia_url",
	"gas":         "foto_gas_url",
	"quimicos":    "foto_quimicos_url",
	"ciclos":      "foto_ciclos_url",
	"comprovante": "comprovante_fechamento_url",
}

// FotoUpload is one multipart file of POST /api/auditorias/{id}/fotos.
type FotoUpload struct {
	Tipo        string
	Filename    string
	ContentType string
	Data        []byte
}

// FotoService stores audit photos and links them to the audit. Uploading to
// an unassigned audit as an auditor claims it.
type FotoService struct {
	auditorias *AuditoriaService
	storage    port.ObjectStorage
	logger     *zap.Logger
}

func NewFotoService(auditorias *AuditoriaService, storage port.ObjectStorage, logger *zap.Logger) *FotoService {
	return &FotoService{auditorias: auditorias, storage: storage, logger: logger}
}

func (s *FotoService) Upload(ctx context.Context, sess *domain.Session, auditoriaID string, up *FotoUpload) (*domain.Auditoria, error) {
	ctx, span := fotoTracer.Start(ctx, "FotoService.Upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("auditoria.id", auditoriaID),
		attribute.String("foto.tipo", up.Tipo),
		attribute.Int("foto.bytes", len(up.Data)),
	)

	if err := requireRole(sess, domain.RoleAuditor, "enviar foto"); err != nil {
		return nil, err
	}
	coluna, ok := fotoColunas[up.Tipo]
	if !ok {
		return nil, &domain.ErrValidation{Field: "tipo", Message: "deve ser um de: agua, energia, gas, quimicos, ciclos, comprovante"}
	}
	if len(up.Data) == 0 {
		return nil, &domain.ErrValidation{Field: "file", Message: "arquivo vazio"}
	}
	if len(up.Data) > MaxFotoBytes {
		return nil, &domain.ErrValidation{Field: "file", Message: fmt.Sprintf("arquivo maior que %d MB", MaxFotoBytes>>20)}
	}
	contentType := sniffContentType(up)
	if !strings.HasPrefix(contentType, "image/") && contentType != "application/pdf" {
		return nil, &domain.ErrValidation{Field: "file", Message: "tipo de arquivo não suportado: " + contentType}
	}

	store := s.auditorias.store
	a, err := store.GetAuditoria(ctx, auditoriaID)
	if err != nil {
		return nil, err
	}
	claiming := a.AuditorID == nil && !sess.IsStaff()
	if !claiming && !canEdit(sess, a) {
		return nil, &domain.ErrForbidden{Action: "enviar foto para auditoria de outro auditor"}
	}

	objectPath := path.Join(auditoriaID, fmt.Sprintf("%s-%s%s", up.Tipo, uuid.NewString(), extensionFor(contentType, up.Filename)))
	if err := s.storage.Upload(ctx, objectPath, contentType, up.Data); err != nil {
		s.logger.Error("photo upload failed",
			zap.String("auditoria_id", auditoriaID),
			zap.String("tipo", up.Tipo),
			zap.Error(err),
		)
		return nil, err
	}
	fields := map[string]any{coluna: s.storage.PublicURL(objectPath)}

	if !claiming {
		return store.UpdateAuditoria(ctx, auditoriaID, fields)
	}

	if a.Status == domain.StatusAberta {
		fields["status"] = domain.StatusEmAndamento
	}
	updated, err := s.auditorias.claim(ctx, a, sess.UserID, fields)
	if err != nil {
		return nil, err
	}
	s.auditorias.recordTransition(ctx, a, updated.Status, sess.UserID, "")
	return updated, nil
}

func sniffContentType(up *FotoUpload) string {
	ct := up.ContentType
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if ct == "" || ct == "application/octet-stream" {
		ct, _, _ = mime.ParseMediaType(http.DetectContentType(up.Data))
	}
	return ct
}

func extensionFor(contentType, filename string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	}
	return ""
}
