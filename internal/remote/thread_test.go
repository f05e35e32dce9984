package remote

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *instanceServer) serveNote(path, content string, fields map[string]string) {
	s.handle(path, func(w http.ResponseWriter, r *http.Request) {
		doc := fmt.Sprintf(`{"id": %q, "type": "Note", "content": %q`, s.url(path), content)
		for field, value := range fields {
			doc += fmt.Sprintf(`, %q: %q`, field, value)
		}
		fmt.Fprint(w, doc+"}")
	})
}

func TestFetchPostThread(t *testing.T) {
	s := newInstanceServer(t)
	s.serveNote("/notes/grandparent", "first post", nil)
	s.serveNote("/notes/parent", "a reply", map[string]string{
		"inReplyTo": s.url("/notes/grandparent"),
	})
	s.serveNote("/notes/root", "the post in question", map[string]string{
		"inReplyTo": s.url("/notes/parent"),
		"replies":   s.url("/notes/root/replies"),
	})
	s.handle("/notes/root/replies", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"type": "CollectionPage",
			"items": [
				%q,
				{"id": %q, "type": "Note", "content": "inline reply"}
			]
		}`, s.url("/notes/reply1"), s.url("/notes/reply2"))
	})
	s.serveNote("/notes/reply1", "fetched reply", map[string]string{
		"replies": s.url("/notes/reply1/replies"),
	})
	s.handle("/notes/reply1/replies", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"type": "CollectionPage",
			"items": [{"id": %q, "type": "Note", "content": "nested"}]
		}`, s.url("/notes/reply1a"))
	})
	c := newRemoteClient(t)

	thread, err := c.FetchPostThread(context.Background(), s.url("/notes/root"), ThreadOptions{Depth: 3, MaxReplies: 10})
	require.NoError(t, err)

	require.Len(t, thread.Ancestors, 2, "ancestry is chronological, oldest first")
	assert.Equal(t, s.url("/notes/grandparent"), thread.Ancestors[0].ID)
	assert.Equal(t, s.url("/notes/parent"), thread.Ancestors[1].ID)
	assert.Equal(t, s.url("/notes/root"), thread.Post.ID)

	require.Len(t, thread.Replies, 2)
	assert.Equal(t, s.url("/notes/reply1"), thread.Replies[0].Post.ID)
	assert.Equal(t, s.url("/notes/reply2"), thread.Replies[1].Post.ID)
	require.Len(t, thread.Replies[0].Replies, 1, "recursion continues while depth allows")
	assert.Equal(t, s.url("/notes/reply1a"), thread.Replies[0].Replies[0].Post.ID)
}

func TestFetchPostThreadAncestorDepthBound(t *testing.T) {
	s := newInstanceServer(t)
	// A chain longer than the walk depth.
	for i := 0; i < 6; i++ {
		fields := map[string]string{}
		if i < 5 {
			fields["inReplyTo"] = s.url(fmt.Sprintf("/notes/%d", i+1))
		}
		s.serveNote(fmt.Sprintf("/notes/%d", i), fmt.Sprintf("post %d", i), fields)
	}
	c := newRemoteClient(t)

	thread, err := c.FetchPostThread(context.Background(), s.url("/notes/0"), ThreadOptions{Depth: 3})
	require.NoError(t, err)
	assert.Len(t, thread.Ancestors, 3)
}

func TestFetchPostThreadSwallowsAncestorFailure(t *testing.T) {
	s := newInstanceServer(t)
	s.serveNote("/notes/root", "post", map[string]string{
		"inReplyTo": s.url("/notes/gone"),
	})
	s.handle("/notes/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newRemoteClient(t)

	thread, err := c.FetchPostThread(context.Background(), s.url("/notes/root"), ThreadOptions{})
	require.NoError(t, err, "a failed ancestor never fails the thread")
	assert.Empty(t, thread.Ancestors)
	assert.Equal(t, s.url("/notes/root"), thread.Post.ID)
}

func TestFetchPostThreadReplyBudget(t *testing.T) {
	s := newInstanceServer(t)
	s.serveNote("/notes/root", "post", map[string]string{
		"replies": s.url("/notes/root/replies"),
	})
	s.handle("/notes/root/replies", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{
			"type": "CollectionPage",
			"items": [
				{"id": %q, "type": "Note", "content": "r1"},
				{"id": %q, "type": "Note", "content": "r2"},
				{"id": %q, "type": "Note", "content": "r3"}
			]
		}`, s.url("/notes/r1"), s.url("/notes/r2"), s.url("/notes/r3"))
	})
	c := newRemoteClient(t)

	thread, err := c.FetchPostThread(context.Background(), s.url("/notes/root"), ThreadOptions{Depth: 2, MaxReplies: 2})
	require.NoError(t, err)
	assert.Len(t, thread.Replies, 2, "reply budget caps the tree")
}
