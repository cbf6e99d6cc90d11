package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GetStream/chatsync/api/validator"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultMaxUploadSize is the largest photo accepted by the server.
const DefaultMaxUploadSize = 10 << 20

// A TokenSource supplies the bearer credential for outgoing requests. An
// empty token means no credential is available.
type TokenSource interface {
	Token() string
}

// Client is the gateway to the messaging REST API. It injects the bearer
// credential, maps error responses onto typed errors and reports 401
// responses through OnUnauthorized.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Val        *validator.Validator

	// Tokens, when set, is consulted on every request and takes precedence
	// over the default credential set with SetAuthorization.
	Tokens TokenSource

	// OnUnauthorized is called after any 401 response.
	OnUnauthorized func(ctx context.Context)

	Limiter       *rate.Limiter
	Metrics       *Metrics
	MaxUploadSize int64

	once sync.Once
	mu   sync.RWMutex
	auth string
}

func (c *Client) setup() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Val == nil {
		c.Val = validator.New()
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = DefaultMaxUploadSize
	}
}

// SetAuthorization sets the default bearer credential sent when Tokens has
// none.
func (c *Client) SetAuthorization(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = token
}

// ClearAuthorization removes the default bearer credential.
func (c *Client) ClearAuthorization() {
	c.SetAuthorization("")
}

// Authorization returns the credential the next request would carry.
func (c *Client) Authorization() string {
	if c.Tokens != nil {
		if tok := c.Tokens.Token(); tok != "" {
			return tok
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth
}

func (c *Client) url(path string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + path
}

// Do sends a JSON request and decodes a JSON response into out. Both body and
// out may be nil. An empty response body leaves out untouched.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	c.once.Do(c.setup)

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), r)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(ctx, req, out)
}

type formField struct {
	name, value string
}

// upload sends photo as the "photo" part of a multipart form.
func (c *Client) upload(ctx context.Context, method, path string, photo Photo, out any, fields ...formField) error {
	c.once.Do(c.setup)

	if photo.Content == nil {
		return invalid("photo is required", nil)
	}
	data, err := io.ReadAll(io.LimitReader(photo.Content, c.MaxUploadSize+1))
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}
	if int64(len(data)) > c.MaxUploadSize {
		return invalid(fmt.Sprintf("photo exceeds %s", humanize.IBytes(uint64(c.MaxUploadSize))), nil)
	}

	name := photo.Name
	if name == "" {
		name = "photo"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("write form field: %w", err)
		}
	}
	part, err := w.CreateFormFile("photo", name)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), &buf)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	c.Logger.Debug("Uploading photo", "path", path, "name", name, "size", humanize.Bytes(uint64(len(data))))
	return c.send(ctx, req, out)
}

func (c *Client) send(ctx context.Context, req *http.Request, out any) error {
	op := req.Method + " " + req.URL.Path

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return &NetworkError{Op: op, Err: err}
		}
	}

	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if tok := c.Authorization(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	log := c.Logger.With("request_id", reqID, "method", req.Method, "path", req.URL.Path)
	start := time.Now()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Metrics.observe(req.Method, 0, time.Since(start))
		log.Error("Request failed", "error", err.Error())
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	c.Metrics.observe(req.Method, resp.StatusCode, time.Since(start))
	if err != nil {
		log.Error("Could not read response body", "error", err.Error())
		return &NetworkError{Op: op, Err: err}
	}
	log.Debug("Response received", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= 400 {
		rerr := responseError(resp.StatusCode, b)
		log.Warn("Request rejected", "status", resp.StatusCode, "error", rerr.Error())
		if resp.StatusCode == http.StatusUnauthorized && c.OnUnauthorized != nil {
			c.OnUnauthorized(ctx)
		}
		return rerr
	}

	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		log.Error("Could not decode response body", "error", err.Error())
		return &ServerError{Status: resp.StatusCode, Message: "could not decode response body: " + err.Error()}
	}
	return nil
}
