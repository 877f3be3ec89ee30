package objectstore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"rollcall/internal/apperr"
)

// Cloudinary uploads images through the Cloudinary REST API using signed requests.
type Cloudinary struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	HTTP      *http.Client

	// APIBase and DeliveryBase default to Cloudinary's public hosts.
	APIBase      string
	DeliveryBase string

	now func() time.Time
}

// NewCloudinary creates a Cloudinary client.
func NewCloudinary(cloudName, apiKey, apiSecret, folder string, httpClient *http.Client) *Cloudinary {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Cloudinary{
		CloudName:    cloudName,
		APIKey:       apiKey,
		APISecret:    apiSecret,
		Folder:       strings.Trim(folder, "/"),
		HTTP:         httpClient,
		APIBase:      "https://api.cloudinary.com",
		DeliveryBase: "https://res.cloudinary.com",
		now:          time.Now,
	}
}

type cloudinaryUpload struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Version   int64  `json:"version"`
}

func (c *Cloudinary) Name() string { return "cloudinary" }

func (c *Cloudinary) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return c.upload(ctx, key, data, false)
}

func (c *Cloudinary) Overwrite(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return c.upload(ctx, key, data, true)
}

func (c *Cloudinary) upload(ctx context.Context, key string, data []byte, overwrite bool) (string, error) {
	params := c.baseParams(key)
	params["overwrite"] = strconv.FormatBool(overwrite)
	if overwrite {
		params["invalidate"] = "true"
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", key)
	if err != nil {
		return "", fmt.Errorf("%w: cloudinary: create form file: %v", apperr.ErrStorage, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("%w: cloudinary: write file: %v", apperr.ErrStorage, err)
	}
	w.Close()

	body, err := c.post(ctx, "upload", &buf, w.FormDataContentType())
	if err != nil {
		return "", err
	}
	var result cloudinaryUpload
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: cloudinary: decode response: %v", apperr.ErrStorage, err)
	}
	if result.SecureURL == "" {
		return c.PublicURL(key), nil
	}
	return result.SecureURL, nil
}

func (c *Cloudinary) Delete(ctx context.Context, key string) error {
	params := c.baseParams(key)
	params["invalidate"] = "true"
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	w.Close()

	body, err := c.post(ctx, "destroy", &buf, w.FormDataContentType())
	if err != nil {
		return err
	}
	var result struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("%w: cloudinary: decode response: %v", apperr.ErrStorage, err)
	}
	// "not found" leaves the store in the state the caller asked for.
	if result.Result != "ok" && result.Result != "not found" {
		return fmt.Errorf("%w: cloudinary destroy: %s", apperr.ErrStorage, result.Result)
	}
	return nil
}

// PublicURL is the unversioned delivery URL; Cloudinary serves the latest version there.
func (c *Cloudinary) PublicURL(key string) string {
	ext := strings.TrimPrefix(path.Ext(key), ".")
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("%s/%s/image/upload/%s.%s", c.DeliveryBase, c.CloudName, c.publicID(key), ext)
}

// publicID maps a blob key to the Cloudinary public id: folder prefix, no extension.
func (c *Cloudinary) publicID(key string) string {
	id := strings.TrimSuffix(key, path.Ext(key))
	if c.Folder != "" {
		id = c.Folder + "/" + id
	}
	return id
}

func (c *Cloudinary) baseParams(key string) map[string]string {
	return map[string]string{
		"public_id": c.publicID(key),
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
		"api_key":   c.APIKey,
	}
}

func (c *Cloudinary) post(ctx context.Context, action string, body io.Reader, contentType string) ([]byte, error) {
	url := fmt.Sprintf("%s/v1_1/%s/image/%s", c.APIBase, c.CloudName, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: cloudinary: create request: %v", apperr.ErrStorage, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: cloudinary: request failed: %v", apperr.ErrStorage, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: cloudinary %s failed (%d): %s", apperr.ErrStorage, action, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// sign computes the Cloudinary API signature from the given params.
// api_key, file and resource_type are not part of the signed payload.
func (c *Cloudinary) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	payload := strings.Join(pairs, "&") + c.APISecret
	h := sha1.New()
	h.Write([]byte(payload))
	return fmt.Sprintf("%x", h.Sum(nil))
}
