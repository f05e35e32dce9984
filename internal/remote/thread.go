package remote

import (
	"context"
	"encoding/json"

	"fedifetch/internal/types"
)

// ThreadOptions bounds a thread walk. Depth caps both the ancestor chain
// and the reply recursion; MaxReplies caps the total replies fetched across
// the whole tree. Zero values take the defaults.
type ThreadOptions struct {
	Depth      int
	MaxReplies int
}

// ThreadNode is one post and the replies fetched beneath it.
type ThreadNode struct {
	Post    *types.Object
	Replies []*ThreadNode
}

// Thread is a post in context: its ancestor chain oldest-first, the post
// itself, and the reply tree below it. Ancestors or replies that failed to
// fetch are simply omitted.
type Thread struct {
	Ancestors []*types.Object
	Post      *types.Object
	Replies   []*ThreadNode
}

// FetchPostThread fetches the object at uri and assembles its surrounding
// thread. Only the root fetch can fail; every other fetch in the walk is
// best-effort.
func (c *Client) FetchPostThread(ctx context.Context, uri string, opts ThreadOptions) (*Thread, error) {
	if opts.Depth <= 0 {
		opts.Depth = defaultThreadDepth
	}
	if opts.MaxReplies <= 0 {
		opts.MaxReplies = defaultMaxReplies
	}

	root, err := c.FetchObject(ctx, uri)
	if err != nil {
		return nil, err
	}

	thread := &Thread{Post: root}
	thread.Ancestors = c.walkAncestors(ctx, root, opts.Depth)

	budget := opts.MaxReplies
	thread.Replies = c.walkReplies(ctx, root, opts.Depth, &budget)
	return thread, nil
}

// walkAncestors follows inReplyTo backward up to depth hops, returning the
// chain oldest-first. A failed hop ends the walk.
func (c *Client) walkAncestors(ctx context.Context, obj *types.Object, depth int) []*types.Object {
	var chain []*types.Object
	current := obj
	for i := 0; i < depth && !current.InReplyTo.IsZero(); i++ {
		parent, err := c.FetchObject(ctx, current.InReplyTo.URI)
		if err != nil {
			c.logger.Debug("ancestor fetch failed, truncating chain",
				"uri", current.InReplyTo.URI, "error", err)
			break
		}
		chain = append([]*types.Object{parent}, chain...)
		current = parent
	}
	return chain
}

// walkReplies fetches the advertised replies collection and recurses while
// depth allows and the shared reply budget lasts.
func (c *Client) walkReplies(ctx context.Context, obj *types.Object, depth int, budget *int) []*ThreadNode {
	if depth <= 1 || *budget <= 0 || obj.Replies.IsZero() {
		return nil
	}

	col, err := c.repliesCollection(ctx, obj.Replies)
	if err != nil {
		c.logger.Debug("replies fetch failed, omitting subtree", "post", obj.ID, "error", err)
		return nil
	}

	var nodes []*ThreadNode
	for _, raw := range col.PageItems() {
		if *budget <= 0 {
			break
		}
		reply, err := c.decodeReply(ctx, raw)
		if err != nil {
			continue
		}
		*budget--
		node := &ThreadNode{Post: reply}
		node.Replies = c.walkReplies(ctx, reply, depth-1, budget)
		nodes = append(nodes, node)
	}
	return nodes
}

// repliesCollection resolves a replies reference that may be an embedded
// collection or a bare URI.
func (c *Client) repliesCollection(ctx context.Context, ref types.Ref) (*types.Collection, error) {
	if ref.Object != nil {
		var col types.Collection
		if err := json.Unmarshal(ref.Object, &col); err == nil && col.Validate() == nil {
			if len(col.PageItems()) > 0 {
				return &col, nil
			}
			if !col.First.IsZero() {
				if col.First.Object != nil {
					var first types.Collection
					if err := json.Unmarshal(col.First.Object, &first); err == nil && first.Validate() == nil {
						return &first, nil
					}
				}
				return c.fetchCollectionPage(ctx, col.First.URI)
			}
			return &col, nil
		}
	}
	return c.fetchCollectionPage(ctx, ref.URI)
}

// decodeReply accepts either an inlined object or a URI needing a fetch.
func (c *Client) decodeReply(ctx context.Context, raw json.RawMessage) (*types.Object, error) {
	var ref types.Ref
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, err
	}
	if ref.Object != nil {
		var obj types.Object
		if err := json.Unmarshal(ref.Object, &obj); err == nil && obj.Validate() == nil {
			c.sanitizeObject(&obj)
			return &obj, nil
		}
	}
	return c.FetchObject(ctx, ref.URI)
}
