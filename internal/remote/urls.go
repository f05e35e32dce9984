package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"fedifetch/internal/types"
)

// URIKind classifies what a web-facing URL points at.
type URIKind string

const (
	URIKindActor   URIKind = "actor"
	URIKindObject  URIKind = "object"
	URIKindUnknown URIKind = "unknown"
)

// Identified is the result of URL classification. Handle is set only for
// actor URLs whose shape encodes a username; CanonicalURI is set whenever
// the canonical protocol URI could be determined.
type Identified struct {
	Kind         URIKind
	CanonicalURI string
	Handle       string
}

var (
	// https://host/@user and https://host/@user@otherdomain
	profilePathPattern = regexp.MustCompile(`^/@([a-zA-Z0-9_.-]+)(@[a-zA-Z0-9.:-]+)?/?$`)
	// https://host/users/name
	usersPathPattern = regexp.MustCompile(`^/users/([a-zA-Z0-9_.-]+)/?$`)
	// https://host/@user/123456 and https://host/users/name/statuses/123456
	statusPathPattern = regexp.MustCompile(`^/(?:@[a-zA-Z0-9_.-]+|users/[a-zA-Z0-9_.-]+/statuses)/(\d+)/?$`)
	// https://host/notes/abc123 and https://host/objects/uuid
	objectPathPattern = regexp.MustCompile(`^/(?:notes|objects|o|notice)/[a-zA-Z0-9-]+/?$`)
)

// ClassifyURL pattern-matches common web-facing URL shapes without any
// network traffic. Unrecognized shapes classify as unknown, never an error.
func ClassifyURL(rawURL string) Identified {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Identified{Kind: URIKindUnknown}
	}
	path := u.EscapedPath()

	if statusPathPattern.MatchString(path) {
		return Identified{Kind: URIKindObject}
	}
	if objectPathPattern.MatchString(path) {
		return Identified{Kind: URIKindObject}
	}
	if m := profilePathPattern.FindStringSubmatch(path); m != nil {
		handle := strings.ToLower(m[1])
		if m[2] != "" {
			// Remote-profile view: /@user@home.domain on a foreign host.
			handle += strings.ToLower(m[2])
		} else {
			handle += "@" + strings.ToLower(u.Host)
		}
		return Identified{Kind: URIKindActor, Handle: handle}
	}
	if m := usersPathPattern.FindStringSubmatch(path); m != nil {
		return Identified{
			Kind:         URIKindActor,
			CanonicalURI: rawURL,
			Handle:       strings.ToLower(m[1]) + "@" + strings.ToLower(u.Host),
		}
	}
	return Identified{Kind: URIKindUnknown}
}

// ResolveURL classifies a URL, filling in the canonical protocol URI. Shapes
// the patterns recognize resolve through discovery or pass through; anything
// else falls back to one content-negotiated fetch of the URL itself. Every
// failure degrades to an unknown classification rather than an error.
func (c *Client) ResolveURL(ctx context.Context, rawURL string) Identified {
	id := ClassifyURL(rawURL)

	switch id.Kind {
	case URIKindActor:
		if id.CanonicalURI != "" {
			return id
		}
		actor, err := c.discovery.Resolve(ctx, id.Handle)
		if err == nil {
			id.CanonicalURI = actor.ID
			return id
		}
		c.logger.Debug("handle resolution for URL failed, trying direct fetch",
			"url", rawURL, "error", err)
	case URIKindObject:
		id.CanonicalURI = rawURL
		return id
	}

	return c.negotiate(ctx, rawURL)
}

// negotiate fetches the URL with an activity-stream Accept header and
// classifies by the returned type.
func (c *Client) negotiate(ctx context.Context, rawURL string) Identified {
	var probe struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	res, err := c.http.Get(ctx, rawURL, types.AcceptActivityJSON)
	if err != nil {
		return Identified{Kind: URIKindUnknown}
	}
	if err := json.Unmarshal(res.Body, &probe); err != nil || probe.ID == "" {
		return Identified{Kind: URIKindUnknown}
	}

	switch probe.Type {
	case "Person", "Service", "Application", "Group", "Organization":
		return Identified{Kind: URIKindActor, CanonicalURI: probe.ID}
	case "Note", "Article", "Page", "Question", "Video", "Audio", "Image", "Event":
		return Identified{Kind: URIKindObject, CanonicalURI: probe.ID}
	default:
		return Identified{Kind: URIKindUnknown, CanonicalURI: probe.ID}
	}
}

// HandleFor renders an actor's canonical user@domain handle from its
// descriptor.
func HandleFor(actor *types.Actor) (string, error) {
	if actor.PreferredUsername == "" {
		return "", fmt.Errorf("actor %s has no preferredUsername", actor.ID)
	}
	u, err := url.Parse(actor.ID)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("actor id %q is not a URL", actor.ID)
	}
	return strings.ToLower(actor.PreferredUsername) + "@" + strings.ToLower(u.Host), nil
}

// ProfileURL returns the actor's web-facing profile URL, preferring the
// advertised url field over the protocol id.
func ProfileURL(actor *types.Actor) string {
	if !actor.URL.IsZero() {
		return actor.URL.URI
	}
	return actor.ID
}
