package remote

import (
	"context"
	"encoding/json"

	"fedifetch/internal/types"
)

// FollowPage is one page of a followers/following collection. Entries are
// actor URIs; servers hide the list by publishing only a count, in which
// case IDs is empty and TotalItems still reports the size.
type FollowPage struct {
	IDs        []string
	Next       string
	Prev       string
	TotalItems *int64
}

// FetchFollowers fetches one page of the actor's followers collection.
func (c *Client) FetchFollowers(ctx context.Context, handle string, limit int) (*FollowPage, error) {
	return c.fetchFollowCollection(ctx, handle, limit, "followers")
}

// FetchFollowing fetches one page of the actor's following collection.
func (c *Client) FetchFollowing(ctx context.Context, handle string, limit int) (*FollowPage, error) {
	return c.fetchFollowCollection(ctx, handle, limit, "following")
}

func (c *Client) fetchFollowCollection(ctx context.Context, handle string, limit int, facet string) (*FollowPage, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	actor, err := c.discovery.Resolve(ctx, handle)
	if err != nil {
		return nil, err
	}

	var collectionURL string
	switch facet {
	case "followers":
		collectionURL = actor.Followers
	case "following":
		collectionURL = actor.Following
	}
	if collectionURL == "" {
		return nil, &MissingCollectionError{ActorID: actor.ID, Facet: facet}
	}

	col, err := c.fetchCollectionPage(ctx, collectionURL)
	if err != nil {
		return nil, err
	}

	page := &FollowPage{
		TotalItems: col.TotalItems,
		Next:       col.Next.URI,
		Prev:       col.Prev.URI,
	}
	for _, raw := range col.PageItems() {
		if len(page.IDs) >= limit {
			break
		}
		var ref types.Ref
		if err := json.Unmarshal(raw, &ref); err != nil || ref.URI == "" {
			continue
		}
		page.IDs = append(page.IDs, ref.URI)
	}
	return page, nil
}
