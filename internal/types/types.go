// Package types holds the wire-level data structures fetched from remote
// fediverse servers, each with a Validate method run right after
// deserialization so callers only ever see fully-typed, checked values.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// Media types used when talking to remote servers.
const (
	MediaTypeActivityJSON = "application/activity+json"
	MediaTypeJRD          = "application/jrd+json"
	MediaTypeJSON         = "application/json"

	// AcceptActivityJSON is the Accept header for actor/object/collection
	// fetches; some servers only answer the ld+json profile form.
	AcceptActivityJSON = `application/activity+json, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
)

// Validatable is implemented by every remote wire type.
type Validatable interface {
	Validate() error
}

// Ref is a JSON value that is either a bare URI string or an embedded
// object carrying an "id". ActivityPub uses both forms interchangeably for
// next/prev/first/last/replies references.
type Ref struct {
	URI    string
	Object json.RawMessage
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.URI = s
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("reference is neither string nor object: %w", err)
	}
	r.URI = obj.ID
	r.Object = append(json.RawMessage(nil), data...)
	return nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	if r.Object != nil {
		return r.Object, nil
	}
	return json.Marshal(r.URI)
}

// IsZero reports whether the reference is absent.
func (r Ref) IsZero() bool {
	return r.URI == "" && r.Object == nil
}

func requireURI(field, value string) error {
	if value == "" {
		return fmt.Errorf("missing required field %q", field)
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("field %q is not an absolute http(s) URI: %q", field, value)
	}
	return nil
}

// Actor is a canonical fediverse identity descriptor. Treated as immutable
// once constructed; cached by normalized handle.
type Actor struct {
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	PreferredUsername string     `json:"preferredUsername,omitempty"`
	Name              string     `json:"name,omitempty"`
	Summary           string     `json:"summary,omitempty"`
	Inbox             string     `json:"inbox"`
	Outbox            string     `json:"outbox"`
	Followers         string     `json:"followers,omitempty"`
	Following         string     `json:"following,omitempty"`
	URL               Ref        `json:"url,omitempty"`
	PublicKey         *PublicKey `json:"publicKey,omitempty"`
}

// PublicKey is the actor's signing key material, opaque to this layer.
type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner,omitempty"`
	PublicKeyPem string `json:"publicKeyPem,omitempty"`
}

func (a *Actor) Validate() error {
	if err := requireURI("id", a.ID); err != nil {
		return err
	}
	if a.Type == "" {
		return errors.New(`missing required field "type"`)
	}
	if err := requireURI("inbox", a.Inbox); err != nil {
		return err
	}
	return requireURI("outbox", a.Outbox)
}

// Collection is one page of an ActivityStreams collection. Items is a
// finite, non-restartable page; cursor references are opaque and passed
// back verbatim.
type Collection struct {
	ID           string            `json:"id,omitempty"`
	Type         string            `json:"type"`
	TotalItems   *int64            `json:"totalItems,omitempty"`
	OrderedItems []json.RawMessage `json:"orderedItems,omitempty"`
	Items        []json.RawMessage `json:"items,omitempty"`
	Next         Ref               `json:"next,omitempty"`
	Prev         Ref               `json:"prev,omitempty"`
	First        Ref               `json:"first,omitempty"`
	Last         Ref               `json:"last,omitempty"`
	PartOf       Ref               `json:"partOf,omitempty"`
}

func (c *Collection) Validate() error {
	switch c.Type {
	case "Collection", "CollectionPage", "OrderedCollection", "OrderedCollectionPage":
		return nil
	case "":
		return errors.New(`missing required field "type"`)
	default:
		return fmt.Errorf("unexpected collection type %q", c.Type)
	}
}

// PageItems returns the page's items regardless of ordered/unordered form.
func (c *Collection) PageItems() []json.RawMessage {
	if len(c.OrderedItems) > 0 {
		return c.OrderedItems
	}
	return c.Items
}

// IsPage reports whether this is a page rather than a collection header.
func (c *Collection) IsPage() bool {
	return c.Type == "OrderedCollectionPage" || c.Type == "CollectionPage"
}

// Object is one piece of remote content (a post, article, or similar).
// Content and Summary are sanitized before the object leaves this layer;
// PlainText is derived from the sanitized content.
type Object struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	AttributedTo Ref      `json:"attributedTo,omitempty"`
	Content      string   `json:"content,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Published    string   `json:"published,omitempty"`
	InReplyTo    Ref      `json:"inReplyTo,omitempty"`
	Replies      Ref      `json:"replies,omitempty"`
	URL          Ref      `json:"url,omitempty"`
	To           []string `json:"to,omitempty"`
	Sensitive    bool     `json:"sensitive,omitempty"`

	PlainText string `json:"-"`
}

func (o *Object) Validate() error {
	if err := requireURI("id", o.ID); err != nil {
		return err
	}
	if o.Type == "" {
		return errors.New(`missing required field "type"`)
	}
	return nil
}

// InstanceInfo is the normalized per-domain metadata assembled from
// whichever well-known endpoint answered first with a valid document.
type InstanceInfo struct {
	Domain            string   `json:"domain"`
	Title             string   `json:"title,omitempty"`
	Description       string   `json:"description,omitempty"`
	Version           string   `json:"version,omitempty"`
	SoftwareName      string   `json:"software_name,omitempty"`
	Languages         []string `json:"languages,omitempty"`
	OpenRegistrations *bool    `json:"open_registrations,omitempty"`
	Users             int64    `json:"users,omitempty"`
	Posts             int64    `json:"posts,omitempty"`
	Source            string   `json:"source"`
}

func (i *InstanceInfo) Validate() error {
	if i.Domain == "" {
		return errors.New(`missing required field "domain"`)
	}
	return nil
}

// WebFingerResponse is the discovery document mapping a user@domain handle
// to protocol endpoints.
type WebFingerResponse struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases,omitempty"`
	Links   []WebFingerLink `json:"links,omitempty"`
}

// WebFingerLink is one link relation in a discovery document.
type WebFingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}

func (w *WebFingerResponse) Validate() error {
	if w.Subject == "" && len(w.Links) == 0 {
		return errors.New("discovery document has neither subject nor links")
	}
	return nil
}

// SelfLink returns the "self"-relation link carrying an actor-document
// media type, or nil when the document advertises none.
func (w *WebFingerResponse) SelfLink() *WebFingerLink {
	for i := range w.Links {
		l := &w.Links[i]
		if l.Rel != "self" || l.Href == "" {
			continue
		}
		switch l.Type {
		case MediaTypeActivityJSON,
			`application/ld+json; profile="https://www.w3.org/ns/activitystreams"`:
			return l
		}
	}
	return nil
}
