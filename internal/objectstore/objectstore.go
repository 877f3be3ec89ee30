// Package objectstore stores face images in an external blob store and hands
// out public URLs for them.
package objectstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"rollcall/internal/apperr"
)

// Store persists image blobs under opaque keys.
type Store interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Upload stores data under key and returns its public URL.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Overwrite replaces whatever is stored under key. Repeating it is harmless.
	Overwrite(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete removes the blob stored under key.
	Delete(ctx context.Context, key string) error
	// PublicURL returns the unauthenticated URL for key.
	PublicURL(key string) string
}

// Config selects and configures a backend.
type Config struct {
	Backend string // "supabase" or "cloudinary"

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string

	Timeout time.Duration
}

// New builds the configured backend. Missing credentials yield an
// apperr.ErrConfig error; callers run without an object store in that case.
func New(cfg Config) (Store, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	switch strings.ToLower(cfg.Backend) {
	case "", "supabase":
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
			return nil, fmt.Errorf("%w: SUPABASE_URL / SUPABASE_KEY not set", apperr.ErrConfig)
		}
		return NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket, httpClient), nil
	case "cloudinary":
		if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
			return nil, fmt.Errorf("%w: CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set", apperr.ErrConfig)
		}
		return NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder, httpClient), nil
	default:
		return nil, fmt.Errorf("%w: unknown OBJECT_STORE %q", apperr.ErrConfig, cfg.Backend)
	}
}

// UserImageKey is the blob key of a user's reference photo.
func UserImageKey(userID string) string {
	return userID + ".jpg"
}

// KeyFromURL recovers the blob key from a stored public URL: the last path
// segment, without query string.
func KeyFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		raw = u.Path
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	key := path.Base(raw)
	if key == "." || key == "/" {
		return ""
	}
	return key
}
