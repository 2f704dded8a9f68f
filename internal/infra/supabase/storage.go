package supabase

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Storage uploads objects to one Supabase Storage bucket (implements
// port.ObjectStorage).
type Storage struct {
	client *Client
	bucket string
}

// NewStorage binds the client to a bucket.
func NewStorage(client *Client, bucket string) *Storage {
	return &Storage{client: client, bucket: bucket}
}

// Upload writes data at objectPath, replacing any existing object.
func (s *Storage) Upload(ctx context.Context, objectPath, contentType string, data []byte) error {
	ctx, span := tracer.Start(ctx, "Supabase.Storage.Upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("storage.bucket", s.bucket),
		attribute.String("storage.path", objectPath),
		attribute.Int("storage.bytes", len(data)),
	)

	c := s.client
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, s.bucket, strings.TrimPrefix(objectPath, "/"))

	return c.call(ctx, "supabase/storage", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error("supabase: storage upload failed",
				zap.String("path", objectPath),
				zap.Error(err),
			)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := readBody(resp)
			return statusError(resp.StatusCode, "supabase storage returned %d: %s", resp.StatusCode, string(body))
		}

		c.logger.Debug("supabase: storage upload OK",
			zap.String("bucket", s.bucket),
			zap.String("path", objectPath),
		)
		return nil
	})
}

// PublicURL returns the public URL of an object in the bucket.
func (s *Storage) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.client.baseURL, s.bucket, strings.TrimPrefix(objectPath, "/"))
}
