package uploads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SupabaseClient defines what we need from Supabase storage.
type SupabaseClient interface {
	CreateSignedUploadURL(ctx context.Context, bucket, path string) (string, error)
	UploadObject(ctx context.Context, bucket, path, contentType string, body io.Reader, size int64) error
	DeleteObject(ctx context.Context, bucket, path string) error
}

// HTTPClient is a SupabaseClient backed by the HTTP API. It is shared by concurrent
// uploads and never mutated after construction. Requests are bounded by their context only.
type HTTPClient struct {
	BaseURL   string
	SecretKey string
	Client    *http.Client // nil uses http.DefaultClient
}

type supabaseSignedUploadResponse struct {
	SignedURL      string `json:"signedUrl"`
	SignedURLSnake string `json:"signed_url"`
	URL            string `json:"url"` // relative path returned by upload/sign API
	Path           string `json:"path"`
}

func (c *HTTPClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *HTTPClient) base() (string, error) {
	if c.BaseURL == "" {
		return "", fmt.Errorf("supabase: SUPABASE_URL is not set")
	}
	if c.SecretKey == "" {
		return "", fmt.Errorf("supabase: SUPABASE_SECRET_KEY is not set")
	}
	return strings.TrimRight(c.BaseURL, "/"), nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	// supabase-js sends the key both as apikey and as Bearer
	req.Header.Set("apikey", c.SecretKey)
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
}

func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyStr := string(respBody)
		if resp.StatusCode == 400 || resp.StatusCode == 403 {
			if strings.Contains(bodyStr, "Invalid Compact JWS") || strings.Contains(bodyStr, "Unauthorized") {
				return nil, fmt.Errorf("supabase storage requires the service_role key, not the anon key (raw body: %s)", bodyStr)
			}
		}
		return nil, fmt.Errorf("supabase error: status %d body: %s", resp.StatusCode, bodyStr)
	}
	return respBody, nil
}

func (c *HTTPClient) CreateSignedUploadURL(ctx context.Context, bucket, path string) (string, error) {
	base, err := c.base()
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/storage/v1/object/upload/sign/%s/%s", base, bucket, path)

	bodyBytes, _ := json.Marshal(map[string]interface{}{
		"expiresIn": 3600,
		"upsert":    false,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return "", err
	}

	var data supabaseSignedUploadResponse
	if err := json.Unmarshal(respBody, &data); err != nil {
		return "", fmt.Errorf("supabase response decode: %w", err)
	}
	// API can return signedUrl, signed_url, or url (relative)
	if data.SignedURL != "" {
		return data.SignedURL, nil
	}
	if data.SignedURLSnake != "" {
		return data.SignedURLSnake, nil
	}
	if data.URL != "" {
		u := data.URL
		if u[0] != '/' {
			u = "/" + u
		}
		return base + u, nil
	}
	return "", fmt.Errorf("supabase returned no signed URL, body: %s", string(respBody))
}

// UploadObject streams body to bucket/path. Existing objects are never overwritten (x-upsert: false).
func (c *HTTPClient) UploadObject(ctx context.Context, bucket, path, contentType string, body io.Reader, size int64) error {
	base, err := c.base()
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", base, bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	c.authorize(req)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")
	if size > 0 {
		req.ContentLength = size
		req.Header.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	_, err = c.do(req)
	return err
}

func (c *HTTPClient) DeleteObject(ctx context.Context, bucket, path string) error {
	base, err := c.base()
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", base, bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	_, err = c.do(req)
	return err
}

// Service hands out signed URLs so clients can upload listing images directly to Supabase.
type Service struct {
	Client      SupabaseClient
	SupabaseURL string
	Bucket      string
}

// UploadResult is the signed-upload response shape.
type UploadResult struct {
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
	Path      string `json:"path"`
}

// GetSignedUploadURL generates a signed upload URL for a listing image owned by userID.
func (s *Service) GetSignedUploadURL(ctx context.Context, userID uuid.UUID, fileName string) (*UploadResult, error) {
	path := ImageKey(userID, fileName)

	signedURL, err := s.Client.CreateSignedUploadURL(ctx, s.Bucket, path)
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		UploadURL: signedURL,
		PublicURL: PublicURL(s.SupabaseURL, s.Bucket, path),
		Path:      path,
	}, nil
}

// PublicURL is the download URL of an object in a public bucket.
func PublicURL(supabaseURL, bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", strings.TrimRight(supabaseURL, "/"), bucket, path)
}

// SupabaseStore is the BlobStore backed by Supabase Storage.
type SupabaseStore struct {
	Client      SupabaseClient
	SupabaseURL string
	Bucket      string
}

func (s *SupabaseStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64, progress ProgressFunc) (string, error) {
	Report(progress, Progress{Key: key, TotalBytes: size, State: StateRunning})
	if err := s.Client.UploadObject(ctx, s.Bucket, key, contentType, NewProgressReader(body, key, size, progress), size); err != nil {
		Report(progress, Progress{Key: key, TotalBytes: size, State: StateError})
		return "", err
	}
	Report(progress, Progress{Key: key, BytesTransferred: size, TotalBytes: size, State: StateSuccess})
	return PublicURL(s.SupabaseURL, s.Bucket, key), nil
}

func (s *SupabaseStore) Delete(ctx context.Context, key string) error {
	return s.Client.DeleteObject(ctx, s.Bucket, key)
}
