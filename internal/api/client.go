package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RejectionError is an application-level refusal: the server answered with
// success=false. Error returns the server's message unchanged.
type RejectionError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s rejected the request (status %d)", e.Endpoint, e.Status)
	}
	return e.Message
}

// envelope is the common part of every JSON reply.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Client talks to the web server rooted at a base URL.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  logrus.FieldLogger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client for baseURL, e.g. "http://localhost:5000".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root the client was created with.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// ResolveURL turns a server-relative reference such as
// "/static/uploads/a.jpg" into an absolute URL. Absolute URLs and data URIs
// are returned unchanged.
func (c *Client) ResolveURL(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return ref
	}
	return c.endpoint("/" + strings.TrimLeft(ref, "/"))
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

// SaveEnhancedImage submits an enhanced encoding to replace originalPath.
//
// dataURI is the "data:image/jpeg;base64,..." string; the server decodes it.
// A success=false reply is returned as *RejectionError.
func (c *Client) SaveEnhancedImage(ctx context.Context, dataURI, originalPath string) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("enhanced_image", dataURI); err != nil {
		return fmt.Errorf("build save form: %w", err)
	}
	if err := w.WriteField("original_path", originalPath); err != nil {
		return fmt.Errorf("build save form: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("build save form: %w", err)
	}

	var resp envelope
	return c.do(ctx, http.MethodPost, "/save-enhanced-image", w.FormDataContentType(), &body, &resp)
}

// UploadFile is one named file for a multipart upload.
type UploadFile struct {
	Name   string
	Reader io.Reader
}

// Detect uploads an image for server-side detection.
//
// The server renders HTML for this route, so only the HTTP status is checked
// and the body is discarded.
func (c *Client) Detect(ctx context.Context, file UploadFile) error {
	body, contentType, err := buildFileForm("image", []UploadFile{file})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/detect"), body)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	log := c.logger.WithFields(logrus.Fields{
		"endpoint": "/detect",
		"file":     file.Name,
		"status":   resp.StatusCode,
	})
	// The status decides the outcome; a body cut short is only reported.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		log.WithError(err).Warn("failed to read /detect response body")
	}
	log.Debug("image uploaded")

	if resp.StatusCode >= 300 {
		return fmt.Errorf("/detect returned status %d", resp.StatusCode)
	}
	return nil
}

// CreateBatchResult is the reply to CreateBatch.
type CreateBatchResult struct {
	BatchID    string `json:"batch_id"`
	ImageCount int    `json:"image_count"`
}

// CreateBatch uploads several images as one processing batch.
func (c *Client) CreateBatch(ctx context.Context, files []UploadFile) (*CreateBatchResult, error) {
	if len(files) == 0 {
		return nil, errors.New("create batch: no images")
	}
	body, contentType, err := buildFileForm("images", files)
	if err != nil {
		return nil, err
	}

	var resp struct {
		envelope
		CreateBatchResult
	}
	if err := c.do(ctx, http.MethodPost, "/create_batch", contentType, body, &resp); err != nil {
		return nil, err
	}
	return &resp.CreateBatchResult, nil
}

// AllBatches fetches every batch the server knows about, keyed by id.
func (c *Client) AllBatches(ctx context.Context) (map[string]Batch, error) {
	var resp struct {
		envelope
		Batches map[string]Batch `json:"batches"`
	}
	if err := c.do(ctx, http.MethodGet, "/get_all_batches", "", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Batches == nil {
		resp.Batches = map[string]Batch{}
	}
	return resp.Batches, nil
}

// BatchStatus fetches one batch by id.
func (c *Client) BatchStatus(ctx context.Context, id string) (*Batch, error) {
	var resp struct {
		envelope
		Batch *Batch `json:"batch"`
	}
	if err := c.do(ctx, http.MethodGet, "/get_batch_status/"+url.PathEscape(id), "", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Batch == nil {
		return nil, fmt.Errorf("batch %s: empty status in reply", id)
	}
	return resp.Batch, nil
}

// DeleteComponent removes one stored component image.
func (c *Client) DeleteComponent(ctx context.Context, path string) error {
	payload, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	var resp envelope
	return c.do(ctx, http.MethodPost, "/delete_component", "application/json", bytes.NewReader(payload), &resp)
}

// DeleteResult is the reply to DeleteComponents.
type DeleteResult struct {
	DeletedCount int `json:"deleted_count"`
	Total        int `json:"total"`
}

// DeleteComponents removes several stored component images.
//
// Paths the server refuses or cannot find are skipped silently on its side;
// compare DeletedCount with Total to detect them.
func (c *Client) DeleteComponents(ctx context.Context, paths []string) (*DeleteResult, error) {
	payload, err := json.Marshal(map[string][]string{"paths": paths})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var resp struct {
		envelope
		DeleteResult
	}
	if err := c.do(ctx, http.MethodPost, "/delete_components", "application/json", bytes.NewReader(payload), &resp); err != nil {
		return nil, err
	}
	return &resp.DeleteResult, nil
}

// enveloped is satisfied by every reply struct embedding envelope.
type enveloped interface {
	result() envelope
}

func (e envelope) result() envelope { return e }

// do performs a JSON round trip and converts success=false into RejectionError.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out enveloped) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	log := c.logger.WithFields(logrus.Fields{
		"endpoint": path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.WithError(err).Warn("undecodable response")
		return fmt.Errorf("decode %s response (status %d): %w", path, resp.StatusCode, err)
	}

	if env := out.result(); !env.Success {
		log.WithField("error", env.Error).Debug("request rejected")
		return &RejectionError{Endpoint: path, Status: resp.StatusCode, Message: env.Error}
	}

	log.Debug("request succeeded")
	return nil
}

func buildFileForm(field string, files []UploadFile) (io.Reader, string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := w.CreateFormFile(field, f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("build upload form: %w", err)
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, "", fmt.Errorf("read %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("build upload form: %w", err)
	}
	return &body, w.FormDataContentType(), nil
}
