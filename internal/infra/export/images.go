package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	maxImageDimension = 1280
	jpegQuality       = 75
	maxAttachmentSize = 15 << 20
)

// HTTPFetcher downloads attachments over HTTP (implements
// port.AttachmentFetcher).
type HTTPFetcher struct {
	httpClient *http.Client
}

func NewHTTPFetcher(httpClient *http.Client) *HTTPFetcher {
	return &HTTPFetcher{httpClient: httpClient}
}

// Fetch returns the body and content type of url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("fetch attachment: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxAttachmentSize {
		return nil, "", fmt.Errorf("fetch attachment: larger than %d bytes", maxAttachmentSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// IsImage reports whether a content type is a raster image we can embed.
func IsImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// ImageDataURI decodes an image, bounds it to 1280px on its longest side
// and re-encodes it as a JPEG data URI.
func ImageDataURI(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() > maxImageDimension || b.Dy() > maxImageDimension {
		img = imaging.Fit(img, maxImageDimension, maxImageDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
