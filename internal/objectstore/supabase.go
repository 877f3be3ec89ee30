package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"rollcall/internal/apperr"
)

// Supabase talks to the Supabase Storage REST API.
type Supabase struct {
	baseURL string
	key     string
	bucket  string
	http    *http.Client
}

// NewSupabase creates a client for bucket on the project at baseURL.
func NewSupabase(baseURL, key, bucket string, httpClient *http.Client) *Supabase {
	if bucket == "" {
		bucket = "faces"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Supabase{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		bucket:  bucket,
		http:    httpClient,
	}
}

func (s *Supabase) Name() string { return "supabase" }

func (s *Supabase) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return s.put(ctx, key, data, contentType, false)
}

func (s *Supabase) Overwrite(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return s.put(ctx, key, data, contentType, true)
}

func (s *Supabase) put(ctx context.Context, key string, data []byte, contentType string, upsert bool) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: supabase: create request: %v", apperr.ErrStorage, err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", contentType)
	if upsert {
		req.Header.Set("x-upsert", "true")
	}

	if err := s.do(req, "upload"); err != nil {
		return "", err
	}
	return s.PublicURL(key), nil
}

func (s *Supabase) Delete(ctx context.Context, key string) error {
	body, _ := json.Marshal(map[string][]string{"prefixes": {key}})
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s", s.baseURL, s.bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: supabase: create request: %v", apperr.ErrStorage, err)
	}
	s.authorize(req)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, "delete")
}

func (s *Supabase) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, url.PathEscape(key))
}

func (s *Supabase) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
}

func (s *Supabase) do(req *http.Request, op string) error {
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: supabase %s: %v", apperr.ErrStorage, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: supabase %s failed (%d): %s", apperr.ErrStorage, op, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
