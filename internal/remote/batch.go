package remote

import (
	"context"

	"golang.org/x/sync/errgroup"

	"fedifetch/internal/types"
)

// ActorOutcome is one item's result from a batch actor fetch.
type ActorOutcome struct {
	Handle string
	Actor  *types.Actor
	Err    error
}

// PostOutcome is one item's result from a batch post fetch.
type PostOutcome struct {
	URI    string
	Object *types.Object
	Err    error
}

// BatchFetchActors resolves handles in bounded concurrency windows. With
// continueOnError every handle is attempted and the outcomes tallied;
// without it the first failure aborts the batch and is returned.
func (c *Client) BatchFetchActors(ctx context.Context, handles []string, continueOnError bool) ([]ActorOutcome, error) {
	outcomes := make([]ActorOutcome, len(handles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.batchWindow)
	for i, handle := range handles {
		g.Go(func() error {
			actor, err := c.discovery.Resolve(gctx, handle)
			outcomes[i] = ActorOutcome{Handle: handle, Actor: actor, Err: err}
			if err != nil && !continueOnError {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// BatchFetchPosts fetches content objects in bounded concurrency windows,
// with the same continueOnError semantics as BatchFetchActors.
func (c *Client) BatchFetchPosts(ctx context.Context, uris []string, continueOnError bool) ([]PostOutcome, error) {
	outcomes := make([]PostOutcome, len(uris))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.batchWindow)
	for i, uri := range uris {
		g.Go(func() error {
			obj, err := c.FetchObject(gctx, uri)
			outcomes[i] = PostOutcome{URI: uri, Object: obj, Err: err}
			if err != nil && !continueOnError {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
