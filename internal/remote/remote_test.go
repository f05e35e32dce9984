package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedifetch/internal/cache"
	"fedifetch/internal/fetch"
	"fedifetch/internal/webfinger"
)

type allowAll struct{}

func (allowAll) Validate(ctx context.Context, rawURL string) error { return nil }

// instanceServer is a scriptable fake fediverse server with per-path hit
// counters.
type instanceServer struct {
	srv *httptest.Server
	mux *http.ServeMux

	mu   sync.Mutex
	hits map[string]int
}

func newInstanceServer(t *testing.T) *instanceServer {
	t.Helper()
	s := &instanceServer{
		mux:  http.NewServeMux(),
		hits: make(map[string]int),
	}
	s.srv = httptest.NewServer(s.mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *instanceServer) handle(path string, h http.HandlerFunc) {
	s.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[path]++
		s.mu.Unlock()
		h(w, r)
	})
}

func (s *instanceServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *instanceServer) host() string {
	u, _ := url.Parse(s.srv.URL)
	return u.Host
}

func (s *instanceServer) url(path string) string {
	return s.srv.URL + path
}

// serveActor registers webfinger discovery and the actor document for
// username on this server.
func (s *instanceServer) serveActor(username string, extra map[string]string) {
	actorURL := s.url("/users/" + username)
	s.handle("/.well-known/webfinger", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"subject": %q,
			"links": [{"rel": "self", "type": "application/activity+json", "href": %q}]
		}`, r.URL.Query().Get("resource"), actorURL)
	})
	s.handle("/users/"+username, func(w http.ResponseWriter, r *http.Request) {
		doc := fmt.Sprintf(`{
			"id": %q,
			"type": "Person",
			"preferredUsername": %q,
			"inbox": %q,
			"outbox": %q`, actorURL, username, actorURL+"/inbox", actorURL+"/outbox")
		for field, value := range extra {
			doc += fmt.Sprintf(`, %q: %q`, field, value)
		}
		fmt.Fprint(w, doc+"}")
	})
}

func newRemoteClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	backend := cache.NewMemory(64)
	cfg := fetch.Config{
		Timeout:     2 * time.Second,
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		HTTPClient:  &http.Client{},
	}
	httpClient := fetch.NewClient(fetch.NewInvoker(cfg, allowAll{}, nil, nil, nil))
	discovery := webfinger.NewClient(httpClient, backend, time.Minute, webfinger.WithScheme("http"))
	opts = append([]Option{WithScheme("http")}, opts...)
	return NewClient(httpClient, discovery, backend, opts...)
}

func TestFetchOutboxRangeError(t *testing.T) {
	s := newInstanceServer(t)
	s.serveActor("alice", nil)
	c := newRemoteClient(t)

	_, err := c.FetchOutbox(context.Background(), "alice@"+s.host(), 150)
	var rangeErr *RangeError
	require.True(t, errors.As(err, &rangeErr), "got %T: %v", err, err)
	assert.Equal(t, 0, s.count("/.well-known/webfinger"), "range check precedes any network call")
}

func TestFetchOutboxPage(t *testing.T) {
	s := newInstanceServer(t)
	s.serveActor("alice", nil)
	outboxPath := "/users/alice/outbox"
	s.handle(outboxPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"id": %q,
			"type": "OrderedCollectionPage",
			"totalItems": 42,
			"next": %q,
			"orderedItems": [
				{
					"type": "Create",
					"object": {
						"id": %q,
						"type": "Note",
						"content": "<p>hello <script>alert(1)</script>world</p>",
						"published": "2026-08-01T00:00:00Z"
					}
				},
				{
					"id": %q,
					"type": "Note",
					"content": "<p>bare note</p>"
				},
				"not-an-object"
			]
		}`, s.url(outboxPath), s.url(outboxPath+"?page=2"), s.url("/notes/1"), s.url("/notes/2"))
	})
	c := newRemoteClient(t)

	page, err := c.FetchOutbox(context.Background(), "alice@"+s.host(), 10)
	require.NoError(t, err)

	require.Len(t, page.Items, 2, "envelope and bare forms decode, junk is skipped")
	assert.Equal(t, s.url("/notes/1"), page.Items[0].ID)
	assert.NotContains(t, page.Items[0].Content, "<script>")
	assert.Equal(t, "hello world", page.Items[0].PlainText)
	assert.Equal(t, s.url(outboxPath+"?page=2"), page.Next)
	require.NotNil(t, page.TotalItems)
	assert.Equal(t, int64(42), *page.TotalItems)
	assert.True(t, page.HasMore)
}

func TestFetchOutboxFollowsCollectionHeader(t *testing.T) {
	s := newInstanceServer(t)
	s.serveActor("alice", nil)
	s.handle("/users/alice/outbox", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"id": %q,
			"type": "OrderedCollection",
			"totalItems": 1,
			"first": %q
		}`, s.url("/users/alice/outbox"), s.url("/users/alice/outbox/page1"))
	})
	s.handle("/users/alice/outbox/page1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"type": "OrderedCollectionPage",
			"orderedItems": [{"id": %q, "type": "Note", "content": "first page"}]
		}`, s.url("/notes/1"))
	})
	c := newRemoteClient(t)

	page, err := c.FetchOutbox(context.Background(), "alice@"+s.host(), 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, s.count("/users/alice/outbox/page1"))
}

func TestFetchOutboxCursorOriginRejected(t *testing.T) {
	s := newInstanceServer(t)
	s.serveActor("alice", nil)
	outboxHits := "/users/alice/outbox"
	s.handle(outboxHits, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type": "OrderedCollectionPage", "orderedItems": []}`)
	})
	c := newRemoteClient(t)
	ctx := context.Background()
	handle := "alice@" + s.host()

	// Warm the handle cache so only the cursor is in question.
	_, err := c.FetchActor(ctx, handle)
	require.NoError(t, err)

	_, err = c.FetchOutboxPage(ctx, handle, OutboxQuery{Cursor: "https://evil.example/page2"})
	var originErr *CursorOriginError
	require.True(t, errors.As(err, &originErr), "got %T: %v", err, err)
	assert.Equal(t, 0, s.count(outboxHits), "rejected before any collection fetch")
}

func TestFetchOutboxCursorSameOriginAccepted(t *testing.T) {
	s := newInstanceServer(t)
	s.serveActor("alice", nil)
	s.handle("/users/alice/outbox", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type": "OrderedCollectionPage", "orderedItems": []}`)
	})
	s.handle("/users/alice/outbox/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"type": "OrderedCollectionPage",
			"orderedItems": [{"id": %q, "type": "Note", "content": "page two"}]
		}`, s.url("/notes/9"))
	})
	c := newRemoteClient(t)

	page, err := c.FetchOutboxPage(context.Background(), "alice@"+s.host(),
		OutboxQuery{Cursor: s.url("/users/alice/outbox/page2")})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, s.count("/users/alice/outbox/page2"))
}

func TestFetchFollowers(t *testing.T) {
	s := newInstanceServer(t)
	s.serveActor("bob", map[string]string{"followers": s.srv.URL + "/users/bob/followers"})
	s.handle("/users/bob/followers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"type": "OrderedCollectionPage",
			"totalItems": 3,
			"orderedItems": [%q, {"id": %q}, 42]
		}`, s.url("/users/x"), s.url("/users/y"))
	})
	c := newRemoteClient(t)

	page, err := c.FetchFollowers(context.Background(), "bob@"+s.host(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{s.url("/users/x"), s.url("/users/y")}, page.IDs)
	require.NotNil(t, page.TotalItems)
	assert.Equal(t, int64(3), *page.TotalItems)
}

func TestFetchFollowingMissingCollection(t *testing.T) {
	s := newInstanceServer(t)
	s.serveActor("alice", nil)
	c := newRemoteClient(t)

	_, err := c.FetchFollowing(context.Background(), "alice@"+s.host(), 10)
	var missing *MissingCollectionError
	require.True(t, errors.As(err, &missing), "got %T: %v", err, err)
	assert.Equal(t, "following", missing.Facet)
}

func TestFetchObjectSanitizes(t *testing.T) {
	s := newInstanceServer(t)
	s.handle("/notes/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"id": %q,
			"type": "Note",
			"content": "<p>careful <a href=\"https://example.social/x\" onclick=\"steal()\">link</a></p>",
			"summary": "<b>cw</b><script>bad()</script>"
		}`, s.url("/notes/1"))
	})
	c := newRemoteClient(t)

	obj, err := c.FetchObject(context.Background(), s.url("/notes/1"))
	require.NoError(t, err)
	assert.NotContains(t, obj.Content, "onclick")
	assert.Contains(t, obj.Content, `href="https://example.social/x"`)
	assert.NotContains(t, obj.Summary, "<script>")
	assert.Equal(t, "careful link", obj.PlainText)
}
