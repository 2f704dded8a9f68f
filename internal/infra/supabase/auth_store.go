package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/metalav/auditorias-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// AuthProvider implementation: Supabase Auth (GoTrue) REST
// ============================================================

// GetUser resolves an access token through GET /auth/v1/user. Invalid or
// expired tokens yield ErrUnauthorized.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*domain.AuthUser, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUser")
	defer span.End()

	var user *domain.AuthUser
	err := c.call(ctx, "supabase/auth", func() error {
		status, body, err := c.doAuth(ctx, http.MethodGet, "user", accessToken, nil)
		if err != nil {
			return err
		}
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return &domain.ErrValidation{Message: "token inválido ou expirado"}
		case status < 200 || status >= 300:
			return statusError(status, "supabase auth returned %d: %s", status, string(body))
		}
		var u domain.AuthUser
		if err := json.Unmarshal(body, &u); err != nil {
			return fmt.Errorf("decode auth user: %w", err)
		}
		if u.ID == "" {
			return &domain.ErrValidation{Message: "token sem usuário"}
		}
		user = &u
		return nil
	})
	if err != nil {
		var invalid *domain.ErrValidation
		if errors.As(err, &invalid) {
			return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
		}
		return nil, err
	}
	return user, nil
}

// CreateUser registers a confirmed email/password user through the admin API.
func (c *Client) CreateUser(ctx context.Context, email, password string) (*domain.AuthUser, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUser")
	defer span.End()

	payload := map[string]any{
		"email":         strings.ToLower(strings.TrimSpace(email)),
		"password":      password,
		"email_confirm": true,
	}

	var user *domain.AuthUser
	err := c.call(ctx, "supabase/auth", func() error {
		status, body, err := c.doAuth(ctx, http.MethodPost, "admin/users", c.serviceRoleKey, payload)
		if err != nil {
			return err
		}
		switch {
		case status == http.StatusUnprocessableEntity || status == http.StatusConflict:
			return &domain.ErrConflict{Message: "e-mail já cadastrado"}
		case status == http.StatusBadRequest:
			return &domain.ErrValidation{Field: "email", Message: string(body)}
		case status < 200 || status >= 300:
			return statusError(status, "supabase auth admin returned %d: %s", status, string(body))
		}
		var u domain.AuthUser
		if err := json.Unmarshal(body, &u); err != nil {
			return fmt.Errorf("decode auth user: %w", err)
		}
		user = &u
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("supabase: auth user created", zap.String("user_id", user.ID))
	return user, nil
}

func (c *Client) doAuth(ctx context.Context, method, path, bearer string, payload any) (int, []byte, error) {
	url := fmt.Sprintf("%s/auth/v1/%s", c.baseURL, path)

	var reader *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: auth request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
