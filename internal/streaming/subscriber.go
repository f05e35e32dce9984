// Package streaming subscribes to an instance's websocket streaming
// endpoint, delivering events on a channel until the context ends or the
// server closes the stream.
package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"fedifetch/internal/fetch"
)

// Event is one frame from the streaming endpoint. Payload is the
// server-rendered JSON string for the event, passed through opaque.
type Event struct {
	Stream  []string `json:"stream"`
	Event   string   `json:"event"`
	Payload string   `json:"payload"`
}

// dialChecker is implemented by policies that can also veto the resolved
// address at connect time (DNS-rebinding defense).
type dialChecker interface {
	DialControl(network, address string, c syscall.RawConn) error
}

// Subscriber dials instance streaming endpoints. The target policy is
// consulted before every dial; denied targets never connect. A policy that
// also checks dial addresses is re-consulted on the socket the websocket
// handshake actually opens.
type Subscriber struct {
	policy fetch.TargetPolicy
	dialer *websocket.Dialer
	scheme string
	logger *slog.Logger
}

// Option adjusts a Subscriber.
type Option func(*Subscriber)

// WithScheme overrides the wss default; used against local test servers.
func WithScheme(scheme string) Option {
	return func(s *Subscriber) { s.scheme = scheme }
}

// WithLogger sets the subscriber's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Subscriber) { s.logger = logger }
}

// NewSubscriber builds a subscriber enforcing the given target policy.
func NewSubscriber(policy fetch.TargetPolicy, opts ...Option) *Subscriber {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	// DNS can change between Validate and the handshake's own resolution;
	// re-check the literal address on the socket before it connects.
	if checker, ok := policy.(dialChecker); ok {
		netDialer := &net.Dialer{
			Timeout: dialer.HandshakeTimeout,
			Control: checker.DialControl,
		}
		dialer.NetDialContext = netDialer.DialContext
	}

	s := &Subscriber{
		policy: policy,
		dialer: dialer,
		scheme: "wss",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// httpEquivalent maps a websocket URL to the http(s) form the target policy
// understands.
func httpEquivalent(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	return u.String(), nil
}

// Subscribe connects to the domain's streaming endpoint and delivers frames
// for the named stream until ctx ends or the connection drops, then closes
// the channel. The first failure to dial is returned synchronously; later
// read errors just end the stream.
func (s *Subscriber) Subscribe(ctx context.Context, domain, stream string) (<-chan Event, error) {
	endpoint := fmt.Sprintf("%s://%s/api/v1/streaming?stream=%s", s.scheme, domain, url.QueryEscape(stream))

	checkURL, err := httpEquivalent(endpoint)
	if err != nil {
		return nil, fmt.Errorf("building streaming URL for %s: %w", domain, err)
	}
	if err := s.policy.Validate(ctx, checkURL); err != nil {
		return nil, err
	}

	conn, resp, err := s.dialer.DialContext(ctx, endpoint, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("streaming dial to %s: status %d: %w", domain, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("streaming dial to %s: %w", domain, err)
	}

	events := make(chan Event)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("streaming read ended", "domain", domain, "error", err)
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
