package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInstanceInfoInvalidDomain(t *testing.T) {
	c := newRemoteClient(t)
	for _, domain := range []string{"", "nodots", "bad domain.example", "-bad.example", "https://example.social"} {
		_, err := c.GetInstanceInfo(context.Background(), domain)
		var invalid *InvalidDomainError
		assert.True(t, errors.As(err, &invalid), "domain %q: got %T", domain, err)
	}
}

func TestGetInstanceInfoFirstValidEndpointWins(t *testing.T) {
	s := newInstanceServer(t)
	s.handle("/api/v2/instance", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	s.handle("/api/v1/instance", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	s.handle("/nodeinfo/2.0", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"version": "2.0",
			"software": {"name": "mastodon", "version": "4.3.0"},
			"usage": {"users": {"total": 1200}, "localPosts": 34000},
			"openRegistrations": false
		}`)
	})
	c := newRemoteClient(t)

	info, err := c.GetInstanceInfo(context.Background(), s.host())
	require.NoError(t, err)
	assert.Equal(t, "nodeinfo", info.Source)
	assert.Equal(t, "mastodon", info.SoftwareName)
	assert.Equal(t, "4.3.0", info.Version)
	assert.Equal(t, int64(1200), info.Users)
	require.NotNil(t, info.OpenRegistrations)
	assert.False(t, *info.OpenRegistrations)

	// Second call is served from the per-domain cache.
	nodeinfoHits := s.count("/nodeinfo/2.0")
	again, err := c.GetInstanceInfo(context.Background(), s.host())
	require.NoError(t, err)
	assert.Equal(t, info.SoftwareName, again.SoftwareName)
	assert.Equal(t, nodeinfoHits, s.count("/nodeinfo/2.0"))
}

func TestGetInstanceInfoNormalizesV1(t *testing.T) {
	s := newInstanceServer(t)
	s.handle("/api/v2/instance", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	s.handle("/nodeinfo/2.0", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	s.handle("/api/v1/instance", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"uri": "example.social",
			"title": "Example Social",
			"short_description": "a test instance",
			"version": "4.2.1",
			"languages": ["en"],
			"registrations": true,
			"stats": {"user_count": 50, "status_count": 900}
		}`)
	})
	c := newRemoteClient(t)

	info, err := c.GetInstanceInfo(context.Background(), s.host())
	require.NoError(t, err)
	assert.Equal(t, "instance-v1", info.Source)
	assert.Equal(t, "Example Social", info.Title)
	assert.Equal(t, "a test instance", info.Description)
	assert.Equal(t, int64(50), info.Users)
	assert.Equal(t, int64(900), info.Posts)
}

func TestGetInstanceInfoAllEndpointsFail(t *testing.T) {
	s := newInstanceServer(t)
	fail := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	s.handle("/api/v2/instance", fail)
	s.handle("/api/v1/instance", fail)
	s.handle("/nodeinfo/2.0", fail)
	c := newRemoteClient(t)

	_, err := c.GetInstanceInfo(context.Background(), s.host())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all instance metadata endpoints failed")
}
