// Package blob implements the blob-storage collaborator: durable object
// storage for attachment binaries, addressed by a derived key.
package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/inboxmirror/inboxd/internal/retry"
)

// Uploader is the surface the attachment pipeline needs from blob storage.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, mimeType string, metadata map[string]string) (string, error)
}

// Client uploads objects over an authenticated HTTP PUT and returns the
// stored object's public URL.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	retry   retry.Config
}

// Options configures a blob Client.
type Options struct {
	BaseURL string
	Token   string
	Retry   retry.Config
}

// NewClient creates a blob storage client.
func NewClient(opts Options) *Client {
	cfg := opts.Retry
	if cfg.MaxAttempts <= 0 {
		cfg = retry.DefaultConfig()
	}
	return &Client{
		baseURL: opts.BaseURL,
		token:   opts.Token,
		http:    &http.Client{Timeout: 60 * time.Second},
		retry:   cfg,
	}
}

// Upload stores data under key and returns the object URL.
func (c *Client) Upload(ctx context.Context, key string, data []byte, mimeType string, metadata map[string]string) (string, error) {
	u := c.baseURL + "/o/" + url.PathEscape(key)

	var objectURL string
	err := retry.DoWithConfig(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", mimeType)
		for k, v := range metadata {
			req.Header.Set("X-Meta-"+k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("blob upload returned %d", resp.StatusCode)
		}

		var out struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(body, &out); err != nil || out.URL == "" {
			// Some stores answer with a bare created status; the key
			// addresses the object either way.
			objectURL = u
			return nil
		}
		objectURL = out.URL
		return nil
	})
	if err != nil {
		return "", err
	}
	return objectURL, nil
}

// Key derives a stable object key from (message id, filename, mime type).
// The same attachment always maps to the same key, so re-uploads after a
// replayed event overwrite rather than accumulate.
func Key(messageID, filename, mimeType string) string {
	sum := sha256.Sum256([]byte(messageID + "\x00" + filename + "\x00" + mimeType))
	name := sanitize(filename)
	if name == "" {
		name = "attachment" + extensionFor(mimeType)
	}
	return hex.EncodeToString(sum[:8]) + "/" + name
}

func sanitize(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "application/pdf":
		return ".pdf"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".bin"
	}
}
