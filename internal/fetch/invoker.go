// Package fetch is the resilient outbound HTTP layer: every remote request
// runs through safety validation, an instance blocklist, a response-size
// ceiling, conditional revalidation, bounded retry with jittered backoff,
// and in-flight de-duplication.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"fedifetch/internal/safety"
)

// Config bounds one Invoker's behavior. Zero fields take defaults.
type Config struct {
	// Timeout is the per-attempt deadline.
	Timeout time.Duration
	// MaxBodyBytes is the response size ceiling.
	MaxBodyBytes int64
	// MaxAttempts counts the first try plus retries.
	MaxAttempts int
	// BaseDelay and MaxDelay bound the exponential backoff.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// UserAgent identifies this client to remote servers.
	UserAgent string
	// HTTPClient overrides the safety-dialing default client. Intended for
	// tests against local servers.
	HTTPClient *http.Client
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:      10 * time.Second,
		MaxBodyBytes: 10 << 20,
		MaxAttempts:  3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		UserAgent:    "fedifetch/1.0",
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
}

// TargetPolicy authorizes one outbound request. One successful validation
// covers exactly one attempt; the invoker re-validates on every retry.
type TargetPolicy interface {
	Validate(ctx context.Context, rawURL string) error
}

// dialChecker is implemented by policies that can also veto the resolved
// address at connect time (DNS-rebinding defense).
type dialChecker interface {
	DialControl(network, address string, c syscall.RawConn) error
}

// Response is the outcome of a successful invocation.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Revalidated means the server answered 304 and Body was served from
	// the conditional cache without reading a response body.
	Revalidated bool
}

// Invoker performs one outbound call with deadline, size ceiling,
// conditional caching, and exponential-backoff retry.
type Invoker struct {
	cfg         Config
	client      *http.Client
	policy      TargetPolicy
	blocklist   *safety.Blocklist
	conditional *ConditionalStore
	logger      *slog.Logger
}

// NewInvoker wires an invoker from its collaborators. blocklist and
// conditional may be nil.
func NewInvoker(cfg Config, policy TargetPolicy, blocklist *safety.Blocklist, conditional *ConditionalStore, logger *slog.Logger) *Invoker {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	iv := &Invoker{
		cfg:         cfg,
		policy:      policy,
		blocklist:   blocklist,
		conditional: conditional,
		logger:      logger,
	}

	if cfg.HTTPClient != nil {
		iv.client = cfg.HTTPClient
		return iv
	}

	dialer := &net.Dialer{Timeout: cfg.Timeout}
	if checker, ok := policy.(dialChecker); ok {
		dialer.Control = checker.DialControl
	}
	iv.client = &http.Client{
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		},
		CheckRedirect: iv.checkRedirect,
	}
	return iv
}

// checkRedirect re-authorizes every redirect hop; a safe origin must not be
// able to bounce us into denied space.
func (iv *Invoker) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return fmt.Errorf("too many redirects")
	}
	if err := iv.policy.Validate(req.Context(), req.URL.String()); err != nil {
		return err
	}
	if iv.blocklist != nil {
		return iv.blocklist.Check(req.URL.Hostname())
	}
	return nil
}

// Do runs the full invocation pipeline, retrying retryable failures up to
// MaxAttempts and surfacing the last error after exhaustion.
func (iv *Invoker) Do(ctx context.Context, method, rawURL string, header http.Header) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= iv.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			retriesTotal.Add(1)
			delay := iv.backoff(attempt - 1)
			iv.logger.Debug("retrying request",
				"url", rawURL,
				"attempt", attempt,
				"delay_ms", delay.Milliseconds(),
				"error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := iv.attempt(ctx, method, rawURL, header)
		if err == nil {
			return resp, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// backoff computes the delay before retry n (1-based):
// min(base*2^(n-1) + jitter(0..10%), maxDelay).
func (iv *Invoker) backoff(n int) time.Duration {
	delay := iv.cfg.BaseDelay << (n - 1)
	if delay <= 0 || delay > iv.cfg.MaxDelay {
		return iv.cfg.MaxDelay
	}
	delay += time.Duration(rand.Int63n(int64(delay)/10 + 1))
	if delay > iv.cfg.MaxDelay {
		return iv.cfg.MaxDelay
	}
	return delay
}

// attempt runs validation, blocklist, conditional headers, the bounded
// request itself, and response classification, exactly once.
func (iv *Invoker) attempt(ctx context.Context, method, rawURL string, header http.Header) (*Response, error) {
	if err := iv.policy.Validate(ctx, rawURL); err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &safety.UnsafeTargetError{Target: rawURL, Reason: "unparseable URL"}
	}
	if iv.blocklist != nil {
		if err := iv.blocklist.Check(u.Hostname()); err != nil {
			return nil, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, iv.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", iv.cfg.UserAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	var rec *Record
	if method == http.MethodGet {
		if r, ok := iv.conditional.Get(ctx, rawURL); ok {
			rec = r
			if r.ETag != "" {
				req.Header.Set("If-None-Match", r.ETag)
			}
			if r.LastModified != "" {
				req.Header.Set("If-Modified-Since", r.LastModified)
			}
		}
	}

	requestsTotal.Add(1)
	resp, err := iv.client.Do(req)
	if err != nil {
		var unsafeErr *safety.UnsafeTargetError
		var blockedErr *safety.BlockedInstanceError
		switch {
		case errors.As(err, &unsafeErr):
			return nil, unsafeErr
		case errors.As(err, &blockedErr):
			return nil, blockedErr
		case attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
			return nil, &TimeoutError{URL: rawURL, Timeout: iv.cfg.Timeout}
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	defer resp.Body.Close()

	// Advertised length is checked before touching the body.
	if resp.ContentLength > iv.cfg.MaxBodyBytes {
		return nil, &TooLargeError{URL: rawURL, ContentLength: resp.ContentLength, Limit: iv.cfg.MaxBodyBytes}
	}

	if resp.StatusCode == http.StatusNotModified {
		if rec != nil {
			revalidatedTotal.Add(1)
			iv.logger.Debug("response revalidated from cache", "url", rawURL)
			return &Response{
				StatusCode:  resp.StatusCode,
				Header:      resp.Header,
				Body:        rec.Data,
				Revalidated: true,
			}, nil
		}
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, iv.cfg.MaxBodyBytes+1))
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &TimeoutError{URL: rawURL, Timeout: iv.cfg.Timeout}
		}
		return nil, fmt.Errorf("reading response from %s: %w", rawURL, err)
	}
	if int64(len(body)) > iv.cfg.MaxBodyBytes {
		return nil, &TooLargeError{URL: rawURL, ContentLength: -1, Limit: iv.cfg.MaxBodyBytes}
	}

	if method == http.MethodGet {
		etag := resp.Header.Get("ETag")
		lastModified := resp.Header.Get("Last-Modified")
		if etag != "" || lastModified != "" {
			iv.conditional.Set(ctx, rawURL, &Record{Data: body, ETag: etag, LastModified: lastModified})
		}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}
