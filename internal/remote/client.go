// Package remote is the top-level facade for fetching fediverse data:
// actors, outbox and follow collections, content objects, post threads,
// instance metadata, search results, and batch fan-outs. It composes the
// identity discovery client and the deduplicating fetch client; every
// outbound call passes the safety validator and blocklist underneath.
package remote

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"fedifetch/internal/cache"
	"fedifetch/internal/fetch"
	"fedifetch/internal/types"
	"fedifetch/internal/webfinger"
)

const (
	minPageLimit     = 1
	maxPageLimit     = 100
	defaultPageLimit = 20

	defaultBatchWindow = 5
	defaultThreadDepth = 10
	defaultMaxReplies  = 10

	defaultInstanceTTL = 30 * time.Minute
)

// A port is tolerated for development instances, matching handle domains.
var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+(:\d{1,5})?$`)

// Client fetches remote fediverse data. Construct one at process start and
// share it; all state behind it is safe for concurrent use.
type Client struct {
	http        *fetch.Client
	discovery   *webfinger.Client
	backend     cache.Backend
	instanceTTL time.Duration
	batchWindow int
	scheme      string
	logger      *slog.Logger
}

// Option adjusts a Client.
type Option func(*Client)

// WithScheme overrides the https default; used against local test servers.
func WithScheme(scheme string) Option {
	return func(c *Client) { c.scheme = scheme }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithBatchWindow sets the concurrency window for batch operations.
func WithBatchWindow(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchWindow = n
		}
	}
}

// WithInstanceTTL sets how long normalized instance metadata is cached.
func WithInstanceTTL(ttl time.Duration) Option {
	return func(c *Client) { c.instanceTTL = ttl }
}

// NewClient builds the facade over a deduplicating fetch client and a
// discovery client. backend may be nil to disable instance-info caching.
func NewClient(httpClient *fetch.Client, discovery *webfinger.Client, backend cache.Backend, opts ...Option) *Client {
	c := &Client{
		http:        httpClient,
		discovery:   discovery,
		backend:     backend,
		instanceTTL: defaultInstanceTTL,
		batchWindow: defaultBatchWindow,
		scheme:      "https",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchActor resolves a user@domain handle to its actor descriptor.
func (c *Client) FetchActor(ctx context.Context, handle string) (*types.Actor, error) {
	return c.discovery.Resolve(ctx, handle)
}
