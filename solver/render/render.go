// Package render turns result expressions into image URLs through the rendering
// service.
package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/eyemath/solver/metrics"
)

// ErrRender means one expression could not be rendered. It never fails a solve.
var ErrRender = errors.New("render failed")

// Sentinel fills image slots that were not rendered.
const Sentinel = "None"

// Renderer produces an image URL for a markup expression. Calls are idempotent.
type Renderer interface {
	RenderToImageURL(ctx context.Context, expr, credential string) (string, error)
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
	Recorder  metrics.Recorder
}

// Client calls POST <base>/renderer/render. Successful URLs are cached by expression.
type Client struct {
	client  *http.Client
	baseURL string
	cache   *Cache
	logger  *slog.Logger
	metrics metrics.Recorder
}

type renderRequest struct {
	LatexExpression string `json:"latex_expression"`
}

type renderResponse struct {
	ImageURL   string          `json:"image_url"`
	ImagesURLs json.RawMessage `json:"images_urls"`
}

// NewClient creates a Client. A nil logger means slog.Default().
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	rec := cfg.Recorder
	if rec == nil {
		rec = metrics.Nop{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cache:   NewCache(cfg.CacheSize, cfg.CacheTTL),
		logger:  logger,
		metrics: rec,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// RenderToImageURL renders expr. The credential is forwarded untouched as the
// Authorization header.
func (c *Client) RenderToImageURL(ctx context.Context, expr, credential string) (string, error) {
	key := cacheKey(expr, credential)
	if url, ok := c.cache.Get(key); ok {
		c.metrics.RecordCacheLookup(true)
		return url, nil
	}
	c.metrics.RecordCacheLookup(false)

	url, err := c.fetch(ctx, expr, credential)
	c.metrics.RecordRender(err == nil)
	if err != nil {
		c.logger.Debug("render call failed", "expression", expr, "error", err)
		return "", err
	}
	c.cache.Set(key, url)
	return url, nil
}

// cacheKey scopes cached URLs to the credential that obtained them, so a
// different caller still goes through the renderer's authorization.
func cacheKey(expr, credential string) string {
	h := sha256.New()
	h.Write([]byte(credential))
	h.Write([]byte{0})
	h.Write([]byte(expr))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) fetch(ctx context.Context, expr, credential string) (string, error) {
	body, err := json.Marshal(renderRequest{LatexExpression: expr})
	if err != nil {
		return "", errors.Wrap(ErrRender, err.Error())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/renderer/render", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(ErrRender, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", credential)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(ErrRender, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.Wrapf(ErrRender, "HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errors.Wrapf(ErrRender, "decode response: %v", err)
	}
	url := payload.ImageURL
	if url == "" {
		url = firstURL(payload.ImagesURLs)
	}
	if url == "" {
		return "", errors.Wrap(ErrRender, "response carries no image url")
	}
	return url, nil
}

// firstURL reads images_urls, which is either a string or a list of strings.
func firstURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return one
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}
