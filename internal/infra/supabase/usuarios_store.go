package supabase

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Usuarios: back-office profiles & job telemetry
// ============================================================

func (c *Client) ListUsuarios(ctx context.Context, role domain.Role) ([]domain.Usuario, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListUsuarios")
	defer span.End()

	path := "usuarios?select=*&order=nome.asc"
	if role != "" {
		path += "&role=" + eq(string(role))
	}

	var rows []domain.Usuario
	err := c.call(ctx, "supabase/usuarios", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows, err = decodeRows[domain.Usuario](body, "usuarios")
		return err
	})
	return rows, err
}

func (c *Client) GetUsuario(ctx context.Context, id string) (*domain.Usuario, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUsuario")
	defer span.End()
	span.SetAttributes(attribute.String("usuario.id", id))

	var u *domain.Usuario
	err := c.call(ctx, "supabase/usuarios", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("usuarios?id=%s&limit=1", eq(id)))
		if err != nil {
			return err
		}
		u, err = decodeOne[domain.Usuario](body, "usuario", id)
		return err
	})
	return u, err
}

func (c *Client) CreateUsuario(ctx context.Context, in *domain.Usuario) (*domain.Usuario, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUsuario")
	defer span.End()

	row := map[string]any{
		"id":    in.ID,
		"email": in.Email,
		"nome":  in.Nome,
		"role":  in.Role,
		"ativo": true,
	}

	var u *domain.Usuario
	err := c.call(ctx, "supabase/usuarios", func() error {
		body, err := c.doPost(ctx, "usuarios", row, preferRepresentation)
		if err != nil {
			return err
		}
		u, err = decodeOne[domain.Usuario](body, "usuario", in.ID)
		return err
	})
	return u, err
}

func (c *Client) UpdateUsuario(ctx context.Context, id string, fields map[string]any) (*domain.Usuario, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateUsuario")
	defer span.End()

	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	var u *domain.Usuario
	err := c.call(ctx, "supabase/usuarios", func() error {
		body, err := c.doPatch(ctx, fmt.Sprintf("usuarios?id=%s", eq(id)), fields)
		if err != nil {
			return err
		}
		u, err = decodeOne[domain.Usuario](body, "usuario", id)
		return err
	})
	return u, err
}

// InsertJobRun records one execution of a scheduled job.
func (c *Client) InsertJobRun(ctx context.Context, run *domain.JobRun) error {
	ctx, span := tracer.Start(ctx, "Supabase.InsertJobRun")
	defer span.End()
	span.SetAttributes(attribute.String("job", run.Job))

	return c.call(ctx, "supabase/job_runs", func() error {
		_, err := c.doPost(ctx, "job_runs", run, preferMinimal)
		return err
	})
}
