package fetch

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/sync/singleflight"

	"fedifetch/internal/types"
)

// Client fronts an Invoker with in-flight request de-duplication:
// concurrent GETs of the same URL share one network call and one outcome.
// The pending entry is dropped as soon as the shared call settles, success
// or failure.
type Client struct {
	inv     *Invoker
	flights singleflight.Group
}

// NewClient wraps an Invoker.
func NewClient(inv *Invoker) *Client {
	return &Client{inv: inv}
}

// Get fetches rawURL, collapsing concurrent identical requests. A caller's
// cancellation abandons only that caller's wait; the shared in-flight call
// keeps running for everyone else.
func (c *Client) Get(ctx context.Context, rawURL, accept string) (*Response, error) {
	header := http.Header{}
	if accept != "" {
		header.Set("Accept", accept)
	}

	key := http.MethodGet + ":" + rawURL
	ch := c.flights.DoChan(key, func() (any, error) {
		return c.inv.Do(context.WithoutCancel(ctx), http.MethodGet, rawURL, header)
	})

	select {
	case res := <-ch:
		if res.Shared {
			dedupeSharedTotal.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// JSON fetches rawURL through the deduplicating client and deserializes the
// body into T, then validates it. A malformed or invalid payload fails with
// a SchemaError and is never retried.
func JSON[T any, PT interface {
	*T
	types.Validatable
}](ctx context.Context, c *Client, rawURL, accept string) (*T, error) {
	resp, err := c.Get(ctx, rawURL, accept)
	if err != nil {
		return nil, err
	}
	return Decode[T, PT](rawURL, resp.Body)
}

// Decode deserializes and validates a payload already in hand.
func Decode[T any, PT interface {
	*T
	types.Validatable
}](rawURL string, body []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &SchemaError{URL: rawURL, Err: err}
	}
	if err := PT(&v).Validate(); err != nil {
		return nil, &SchemaError{URL: rawURL, Err: err}
	}
	return &v, nil
}
