package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/ExamShell/backend/internal/engine/sandbox"
)

// ErrTooLarge means the response body exceeded MaxBodySize
var ErrTooLarge = errors.New("document too large")

// Config configures a Client
type Config struct {
	Timeout           time.Duration
	MaxBodySize       int
	UserAgent         string
	RequestsPerSecond float64 // 0 means unlimited
	FailureThreshold  uint32  // Consecutive failures before a host's circuit opens
	OpenTimeout       time.Duration
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		MaxBodySize:      10 * 1024 * 1024,
		UserAgent:        "ExamShell/1.0",
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// Client fetches page documents
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breakers *breakers
	config   Config
	logger   *zap.Logger
}

// New creates a client
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	// Only the pooled transport is used; a failed page load is reported,
	// never retried.
	transport := retryablehttp.NewClient().HTTPClient.Transport

	r := resty.New().
		SetTransport(transport).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetHeader("User-Agent", cfg.UserAgent)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}

	return &Client{
		resty:    r,
		limiter:  limiter,
		breakers: newBreakers(cfg.FailureThreshold, cfg.OpenTimeout),
		config:   cfg,
		logger:   logger,
	}
}

// Fetch loads rawURL with the given request headers. HTTP error statuses
// still yield a document; transport failures and open circuits are errors.
func (c *Client) Fetch(ctx context.Context, rawURL string, header http.Header) (sandbox.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return sandbox.Document{}, fmt.Errorf("unsupported url %q", rawURL)
	}
	host := strings.ToLower(u.Host)

	if err := c.breakers.allow(host); err != nil {
		return sandbox.Document{}, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.breakers.release(host)
		return sandbox.Document{}, fmt.Errorf("rate limit error: %w", err)
	}

	req := c.resty.R().SetContext(ctx)
	if len(header) > 0 {
		req.SetHeaderMultiValues(header)
	}

	start := time.Now()
	resp, err := req.Get(rawURL)
	if err != nil {
		c.breakers.record(host, false)
		c.logger.Debug("Fetch failed", zap.String("url", rawURL), zap.Error(err))
		return sandbox.Document{}, err
	}
	c.breakers.record(host, resp.StatusCode() < http.StatusInternalServerError)

	body := resp.Body()
	if len(body) > c.config.MaxBodySize {
		return sandbox.Document{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(body))
	}

	c.logger.Debug("Fetched document",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode()),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)))

	return Parse(rawURL, body, resp.Header().Get("Content-Type"), resp.StatusCode())
}

// Resolver adapts the client to the sandbox engine. Requests are bound
// to ctx.
func (c *Client) Resolver(ctx context.Context) sandbox.Resolver {
	return func(rawURL string, header http.Header) (sandbox.Document, error) {
		return c.Fetch(ctx, rawURL, header)
	}
}

// HostState returns the circuit state of host
func (c *Client) HostState(host string) State {
	return c.breakers.state(strings.ToLower(host))
}
