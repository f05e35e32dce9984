package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedifetch/internal/types"
)

func TestJSONFetchesAndValidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, types.AcceptActivityJSON, r.Header.Get("Accept"))
		fmt.Fprint(w, `{
			"id": "https://example.social/users/alice",
			"type": "Person",
			"preferredUsername": "alice",
			"inbox": "https://example.social/users/alice/inbox",
			"outbox": "https://example.social/users/alice/outbox"
		}`)
	}))
	defer srv.Close()

	client := NewClient(NewInvoker(testConfig(), allowAll{}, nil, nil, nil))
	actor, err := JSON[types.Actor](context.Background(), client, srv.URL, types.AcceptActivityJSON)
	require.NoError(t, err)
	assert.Equal(t, "alice", actor.PreferredUsername)
	assert.Equal(t, "https://example.social/users/alice/outbox", actor.Outbox)
}

func TestJSONSchemaErrorNotRetried(t *testing.T) {
	cases := map[string]string{
		"not json":        `<!doctype html><html></html>`,
		"missing inbox":   `{"id":"https://example.social/users/a","type":"Person","outbox":"https://example.social/o"}`,
		"relative outbox": `{"id":"https://example.social/users/a","type":"Person","inbox":"https://example.social/i","outbox":"/outbox"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var hits int
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits++
				fmt.Fprint(w, body)
			}))
			defer srv.Close()

			client := NewClient(NewInvoker(testConfig(), allowAll{}, nil, nil, nil))
			_, err := JSON[types.Actor](context.Background(), client, srv.URL, "")

			var schemaErr *SchemaError
			require.True(t, errors.As(err, &schemaErr), "got %T: %v", err, err)
			assert.Equal(t, 1, hits, "malformed payloads are not retried")
		})
	}
}
