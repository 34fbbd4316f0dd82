// Package imagesvc talks to an OpenAI-compatible image HTTP service.
package imagesvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"imagent/pkg/artifact"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultGenerateTimeout = 30 * time.Second
	DefaultEditTimeout     = 60 * time.Second
	DefaultDownloadTimeout = 10 * time.Second
	DefaultMaxBodyBytes    = 20 << 20

	// excerptLimit bounds how much of an upstream body is echoed back.
	excerptLimit = 200
)

// ErrNotConfigured is returned before any network traffic when the base URL
// or API key is missing.
var ErrNotConfigured = errors.New("image service not configured")

// ErrBodyTooLarge is returned when a reply or downloaded image exceeds
// Settings.MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError reports a non-2xx reply from the image service.
type StatusError struct {
	Code int
	Body string // excerpt
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("image service returned HTTP %d: %s", e.Code, e.Body)
}

// Settings 圖片服務連線參數
type Settings struct {
	BaseURL         string
	APIKey          string
	Model           string
	GenerateTimeout time.Duration
	EditTimeout     time.Duration
	DownloadTimeout time.Duration
	// MaxBodyBytes caps every response body read; <= 0 means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Configured reports whether both the base URL and the API key are set.
func (s Settings) Configured() bool {
	return strings.TrimSpace(s.BaseURL) != "" && strings.TrimSpace(s.APIKey) != ""
}

func (s Settings) endpoint(path string) string {
	return strings.TrimRight(s.BaseURL, "/") + path
}

func (s Settings) maxBody() int64 {
	if s.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return s.MaxBodyBytes
}

// readBody reads at most limit bytes and fails when more are available.
func readBody(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %s", ErrBodyTooLarge, humanize.Bytes(uint64(limit)))
	}
	return data, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Options are the optional generation parameters shared by generate and edit.
type Options struct {
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	ImageSize      string `json:"image_size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

func (o Options) fields() [][2]string {
	var out [][2]string
	if o.AspectRatio != "" {
		out = append(out, [2]string{"aspect_ratio", o.AspectRatio})
	}
	if o.ImageSize != "" {
		out = append(out, [2]string{"image_size", o.ImageSize})
	}
	if o.ResponseFormat != "" {
		out = append(out, [2]string{"response_format", o.ResponseFormat})
	}
	return out
}

// GenerateRequest is the body of POST /images/generations.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	Options
}

// EditRequest describes a multipart POST /images/edits. ImagePath points at
// a readable file; it is opened and closed by Edit.
type EditRequest struct {
	Prompt    string
	ImagePath string
	MimeType  string
	Options
}

// Response is a 2xx reply. Refs is empty when the body was not the expected
// shape; Body always holds the raw payload.
type Response struct {
	Refs []artifact.Reference
	Body []byte
}

// Client is safe for concurrent use. Settings can be swapped at runtime with
// Configure; a call in flight keeps the settings it started with.
type Client struct {
	settings atomic.Pointer[Settings]
	http     *http.Client
}

// NewClient creates a client. A nil httpClient means http.DefaultClient.
func NewClient(s Settings, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{http: httpClient}
	c.Configure(s)
	return c
}

// Configure replaces the connection settings.
func (c *Client) Configure(s Settings) {
	c.settings.Store(&s)
}

// Settings returns the current connection settings.
func (c *Client) Settings() Settings {
	return *c.settings.Load()
}

// Generate requests new images for a prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	s := c.Settings()
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(GenerateRequest{Prompt: prompt, Model: s.Model, Options: opts})
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, orDefault(s.GenerateTimeout, DefaultGenerateTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/images/generations"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	slog.DebugContext(ctx, "Image generate request", "model", s.Model, "aspect_ratio", opts.AspectRatio, "image_size", opts.ImageSize)
	return c.do(req, s.maxBody())
}

// Edit uploads an image together with an edit prompt.
func (c *Client) Edit(ctx context.Context, r EditRequest) (*Response, error) {
	s := c.Settings()
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	f, err := os.Open(r.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("open staged image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := append([][2]string{{"prompt", r.Prompt}, {"model", s.Model}}, r.Options.fields()...)
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", kv[0], err)
		}
	}

	mimeType := r.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, filepath.Base(r.ImagePath)))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create image part: %w", err)
	}
	n, err := io.Copy(part, f)
	if err != nil {
		return nil, fmt.Errorf("copy staged image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, orDefault(s.EditTimeout, DefaultEditTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("/images/edits"), &buf)
	if err != nil {
		return nil, fmt.Errorf("build edit request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	slog.DebugContext(ctx, "Image edit request", "model", s.Model, "image_size", humanize.Bytes(uint64(n)), "mime", mimeType)
	return c.do(req, s.maxBody())
}

// Download fetches image bytes from an http(s) URL or decodes a data: URI.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, error) {
	uri = strings.TrimSpace(uri)
	if strings.HasPrefix(uri, "data:") {
		return DecodeDataURI(uri)
	}
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURI, uri)
	}

	s := c.Settings()
	ctx, cancel := context.WithTimeout(ctx, orDefault(s.DownloadTimeout, DefaultDownloadTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp.Body, s.maxBody())
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: Excerpt(data)}
	}
	slog.DebugContext(ctx, "Image downloaded", "size", humanize.Bytes(uint64(len(data))))
	return data, nil
}

func (c *Client) do(req *http.Request, maxBody int64) (*Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image service request: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body, maxBody)
	if err != nil {
		return nil, fmt.Errorf("read image service body: %w", err)
	}
	slog.DebugContext(req.Context(), "Image service replied",
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"size", humanize.Bytes(uint64(len(body))),
		"elapsed", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: Excerpt(body)}
	}
	return &Response{Refs: ParseReferences(body), Body: body}, nil
}
