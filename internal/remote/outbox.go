package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"fedifetch/internal/fetch"
	"fedifetch/internal/types"
	"fedifetch/internal/util"
)

// OutboxQuery selects one page of an actor's outbox. A zero Limit means the
// default page size. Cursor, when set, must share origin with the actor's
// outbox. MinID/MaxID/SinceID are passed through as query parameters on the
// first page request; servers that ignore them return the unfiltered page.
type OutboxQuery struct {
	Limit   int
	Cursor  string
	MinID   string
	MaxID   string
	SinceID string
}

// Page is one page of remote content objects with opaque continuation
// cursors. HasMore is a heuristic: a page whose length equals the requested
// limit is assumed to continue even without an explicit next link, which can
// false-positive on an exact-size final page.
type Page struct {
	Items      []*types.Object
	Next       string
	Prev       string
	TotalItems *int64
	HasMore    bool
}

// FetchOutbox fetches up to limit entries from the actor's outbox.
func (c *Client) FetchOutbox(ctx context.Context, handle string, limit int) (*Page, error) {
	return c.FetchOutboxPage(ctx, handle, OutboxQuery{Limit: limit})
}

// FetchOutboxPage resolves the actor and fetches one outbox page. The limit
// range and cursor origin are checked before any network call.
func (c *Client) FetchOutboxPage(ctx context.Context, handle string, q OutboxQuery) (*Page, error) {
	limit, err := normalizeLimit(q.Limit)
	if err != nil {
		return nil, err
	}

	actor, err := c.discovery.Resolve(ctx, handle)
	if err != nil {
		return nil, err
	}

	pageURL := actor.Outbox
	if q.Cursor != "" {
		if err := sameOrigin(q.Cursor, actor.Outbox); err != nil {
			return nil, err
		}
		pageURL = q.Cursor
	} else {
		pageURL = withPageParams(actor.Outbox, q)
	}

	col, err := c.fetchCollectionPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	page := &Page{
		TotalItems: col.TotalItems,
		Next:       col.Next.URI,
		Prev:       col.Prev.URI,
	}
	if page.Next == "" && !col.First.IsZero() && !col.IsPage() {
		page.Next = col.First.URI
	}
	if page.Prev == "" && !col.Last.IsZero() && !col.IsPage() {
		page.Prev = col.Last.URI
	}

	for _, raw := range col.PageItems() {
		if len(page.Items) >= limit {
			break
		}
		obj, err := decodeOutboxItem(raw)
		if err != nil {
			c.logger.Debug("skipping unparsable outbox item", "url", pageURL, "error", err)
			continue
		}
		c.sanitizeObject(obj)
		page.Items = append(page.Items, obj)
	}

	page.HasMore = page.Next != "" || len(page.Items) == limit
	return page, nil
}

// fetchCollectionPage fetches a collection and, when it is a header rather
// than a page, follows its first link once.
func (c *Client) fetchCollectionPage(ctx context.Context, rawURL string) (*types.Collection, error) {
	col, err := fetch.JSON[types.Collection](ctx, c.http, rawURL, types.AcceptActivityJSON)
	if err != nil {
		return nil, err
	}
	if col.IsPage() || len(col.PageItems()) > 0 || col.First.IsZero() {
		return col, nil
	}
	return fetch.JSON[types.Collection](ctx, c.http, col.First.URI, types.AcceptActivityJSON)
}

// decodeOutboxItem unwraps Create/Announce activity envelopes down to the
// content object; bare objects pass through.
func decodeOutboxItem(raw json.RawMessage) (*types.Object, error) {
	var envelope struct {
		Type   string          `json:"type"`
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	body := raw
	switch envelope.Type {
	case "Create", "Announce", "Update":
		if len(envelope.Object) > 0 && envelope.Object[0] == '{' {
			body = envelope.Object
		}
	}
	var obj types.Object
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	if err := obj.Validate(); err != nil {
		return nil, err
	}
	return &obj, nil
}

func (c *Client) sanitizeObject(obj *types.Object) {
	obj.Content = util.SanitizeHTML(obj.Content)
	obj.Summary = util.SanitizeHTML(obj.Summary)
	obj.PlainText = util.ExtractText(obj.Content)
}

func normalizeLimit(limit int) (int, error) {
	if limit == 0 {
		return defaultPageLimit, nil
	}
	if limit < minPageLimit || limit > maxPageLimit {
		return 0, &RangeError{Field: "limit", Value: limit, Min: minPageLimit, Max: maxPageLimit}
	}
	return limit, nil
}

// sameOrigin rejects cursors whose scheme or host differ from the
// collection they continue.
func sameOrigin(cursor, origin string) error {
	cu, err := url.Parse(cursor)
	if err != nil {
		return &CursorOriginError{Cursor: cursor, Origin: origin}
	}
	ou, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("parsing collection URL %q: %w", origin, err)
	}
	if cu.Scheme != ou.Scheme || cu.Host != ou.Host {
		return &CursorOriginError{Cursor: cursor, Origin: ou.Scheme + "://" + ou.Host}
	}
	return nil
}

func withPageParams(outbox string, q OutboxQuery) string {
	u, err := url.Parse(outbox)
	if err != nil {
		return outbox
	}
	params := u.Query()
	params.Set("page", "true")
	if q.MinID != "" {
		params.Set("min_id", q.MinID)
	}
	if q.MaxID != "" {
		params.Set("max_id", q.MaxID)
	}
	if q.SinceID != "" {
		params.Set("since_id", q.SinceID)
	}
	u.RawQuery = params.Encode()
	return u.String()
}
