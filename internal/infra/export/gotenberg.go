// Package export renders audit reports to PDF (HTML through Gotenberg) and
// XLSX (excelize).
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("export")

// Gotenberg wraps the chromium HTML → PDF route of a Gotenberg server
// (implements port.PDFRenderer and port.HealthChecker).
type Gotenberg struct {
	baseURL    string
	httpClient *http.Client
}

// NewGotenberg constructs a client. The http client carries the timeout.
func NewGotenberg(baseURL string, httpClient *http.Client) *Gotenberg {
	return &Gotenberg{baseURL: baseURL, httpClient: httpClient}
}

// Ping checks if the remote Gotenberg service is available.
func (g *Gotenberg) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", g.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gotenberg returned status %d", resp.StatusCode)
	}
	return nil
}

// RenderHTML converts a self-contained HTML document into PDF bytes.
func (g *Gotenberg) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Gotenberg.RenderHTML")
	defer span.End()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, bytes.NewBufferString(html)); err != nil {
		return nil, err
	}
	for field, value := range map[string]string{
		"paperWidth":      "8.27",
		"paperHeight":     "11.7",
		"printBackground": "true",
	} {
		if err := writer.WriteField(field, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/forms/chromium/convert/html", g.baseURL), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gotenberg render failed with status %d: %s", resp.StatusCode, string(msg))
	}
	return io.ReadAll(resp.Body)
}
