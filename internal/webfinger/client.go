// Package webfinger resolves user@domain handles to canonical actor
// descriptors via each domain's discovery endpoint, memoizing successes.
package webfinger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"fedifetch/internal/cache"
	"fedifetch/internal/fetch"
	"fedifetch/internal/types"
)

// InvalidHandleError means the identifier is not a well-formed user@domain
// handle. Never retried.
type InvalidHandleError struct {
	Handle string
	Reason string
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("invalid handle %q: %s", e.Handle, e.Reason)
}

// NoActorLinkError means the discovery document carries no "self" link with
// an actor-document media type. Never retried.
type NoActorLinkError struct {
	Handle string
}

func (e *NoActorLinkError) Error() string {
	return fmt.Sprintf("discovery document for %q has no actor link", e.Handle)
}

const maxHandleLength = 255

var (
	userPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)
	// A port is tolerated for development instances.
	domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+(:\d{1,5})?$`)
)

// Normalize strips an optional leading @, lowercases, and validates the
// handle shape, returning user and domain parts.
func Normalize(handle string) (user, domain string, err error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if trimmed == "" {
		return "", "", &InvalidHandleError{Handle: handle, Reason: "empty"}
	}
	if len(trimmed) > maxHandleLength {
		return "", "", &InvalidHandleError{Handle: handle, Reason: "too long"}
	}
	parts := strings.Split(trimmed, "@")
	if len(parts) != 2 {
		return "", "", &InvalidHandleError{Handle: handle, Reason: "want exactly one @ separator"}
	}
	user = strings.ToLower(parts[0])
	domain = strings.ToLower(parts[1])
	if !userPattern.MatchString(user) {
		return "", "", &InvalidHandleError{Handle: handle, Reason: "malformed user part"}
	}
	if !domainPattern.MatchString(domain) {
		return "", "", &InvalidHandleError{Handle: handle, Reason: "malformed domain part"}
	}
	return user, domain, nil
}

// Client is the identity discovery client. Successful resolutions are
// cached by normalized handle; failures are never cached.
type Client struct {
	http    *fetch.Client
	backend cache.Backend
	ttl     time.Duration
	scheme  string
	logger  *slog.Logger
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

// NewClient builds a discovery client over the deduplicating fetch client.
func NewClient(httpClient *fetch.Client, backend cache.Backend, ttl time.Duration, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		backend: backend,
		ttl:     ttl,
		scheme:  "https",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type cachedActor struct {
	Actor     *types.Actor `json:"actor"`
	FetchedAt int64        `json:"fetched_at"`
}

func actorKey(normalized string) string {
	return "actor:" + normalized
}

// Resolve maps a handle to its canonical actor descriptor:
// normalize, cache check, discovery lookup, self-link extraction, actor
// fetch, cache and return.
func (c *Client) Resolve(ctx context.Context, handle string) (*types.Actor, error) {
	user, domain, err := Normalize(handle)
	if err != nil {
		return nil, err
	}
	normalized := user + "@" + domain

	if actor, ok := c.cached(ctx, normalized); ok {
		return actor, nil
	}

	lookupURL := fmt.Sprintf("%s://%s/.well-known/webfinger?resource=%s",
		c.scheme, domain, url.QueryEscape("acct:"+normalized))

	doc, err := fetch.JSON[types.WebFingerResponse](ctx, c.http, lookupURL, types.MediaTypeJRD)
	if err != nil {
		return nil, fmt.Errorf("discovery lookup for %s: %w", normalized, err)
	}

	link := doc.SelfLink()
	if link == nil {
		c.logger.Debug("discovery document has no actor link", "handle", normalized)
		return nil, &NoActorLinkError{Handle: normalized}
	}

	actor, err := fetch.JSON[types.Actor](ctx, c.http, link.Href, types.AcceptActivityJSON)
	if err != nil {
		return nil, fmt.Errorf("fetching actor for %s: %w", normalized, err)
	}

	c.store(ctx, normalized, actor)
	c.logger.Debug("resolved handle", "handle", normalized, "actor", actor.ID)
	return actor, nil
}

func (c *Client) cached(ctx context.Context, normalized string) (*types.Actor, bool) {
	if c.backend == nil {
		return nil, false
	}
	data, found, err := c.backend.Get(ctx, actorKey(normalized))
	if err != nil || !found {
		return nil, false
	}
	var entry cachedActor
	if err := json.Unmarshal(data, &entry); err != nil || entry.Actor == nil {
		return nil, false
	}
	return entry.Actor, true
}

func (c *Client) store(ctx context.Context, normalized string, actor *types.Actor) {
	if c.backend == nil {
		return
	}
	data, err := json.Marshal(cachedActor{Actor: actor, FetchedAt: time.Now().Unix()})
	if err != nil {
		return
	}
	if err := c.backend.Set(ctx, actorKey(normalized), data, c.ttl); err != nil {
		c.logger.Debug("actor cache store error", "handle", normalized, "error", err)
	}
}
