package remote

import (
	"context"

	"fedifetch/internal/fetch"
	"fedifetch/internal/types"
)

// FetchObject fetches and validates one content object. HTML content is
// sanitized and a plain-text rendering attached before it is returned.
func (c *Client) FetchObject(ctx context.Context, uri string) (*types.Object, error) {
	obj, err := fetch.JSON[types.Object](ctx, c.http, uri, types.AcceptActivityJSON)
	if err != nil {
		return nil, err
	}
	c.sanitizeObject(obj)
	return obj, nil
}
