package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"fedifetch/internal/cache"
)

// Record is a cached response plus the revalidation tokens the server
// handed out with it, keyed by request URL.
type Record struct {
	Data         []byte `json:"data"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	CachedAt     int64  `json:"cached_at"`
}

// ConditionalStore keeps revalidation records so unchanged resources are
// confirmed with a 304 instead of re-downloaded. Store failures degrade to
// plain fetches rather than surfacing.
type ConditionalStore struct {
	backend cache.Backend
	ttl     time.Duration
	logger  *slog.Logger
}

// NewConditionalStore wraps backend with the given record TTL.
func NewConditionalStore(backend cache.Backend, ttl time.Duration, logger *slog.Logger) *ConditionalStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConditionalStore{backend: backend, ttl: ttl, logger: logger}
}

// URLs can be arbitrarily long and carry odd characters; hash them into
// stable keys.
func conditionalKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "cond:" + hex.EncodeToString(hash[:16])
}

// Get returns the record for url, if any.
func (s *ConditionalStore) Get(ctx context.Context, url string) (*Record, bool) {
	if s == nil || s.backend == nil {
		return nil, false
	}
	data, found, err := s.backend.Get(ctx, conditionalKey(url))
	if err != nil || !found {
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Debug("conditional record unmarshal error", "url", url, "error", err)
		return nil, false
	}
	return &rec, true
}

// Set stores a record for url.
func (s *ConditionalStore) Set(ctx context.Context, url string, rec *Record) {
	if s == nil || s.backend == nil {
		return
	}
	rec.CachedAt = time.Now().Unix()
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Debug("conditional record marshal error", "url", url, "error", err)
		return
	}
	if err := s.backend.Set(ctx, conditionalKey(url), data, s.ttl); err != nil {
		s.logger.Debug("conditional record store error", "url", url, "error", err)
	}
}
