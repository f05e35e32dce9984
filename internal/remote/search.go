package remote

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"fedifetch/internal/fetch"
	"fedifetch/internal/types"
	"fedifetch/internal/util"
)

// SearchAccount is one account hit from an instance search endpoint.
type SearchAccount struct {
	ID          string `json:"id"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name,omitempty"`
	URL         string `json:"url,omitempty"`
}

// SearchStatus is one status hit. Content is sanitized before the result
// leaves this layer.
type SearchStatus struct {
	ID        string `json:"id"`
	Content   string `json:"content,omitempty"`
	URL       string `json:"url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// SearchHashtag is one hashtag hit.
type SearchHashtag struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// SearchResults is the result set from an instance search endpoint.
type SearchResults struct {
	Accounts []SearchAccount `json:"accounts"`
	Statuses []SearchStatus  `json:"statuses"`
	Hashtags []SearchHashtag `json:"hashtags"`
}

func (s *SearchResults) Validate() error {
	for i, a := range s.Accounts {
		if a.ID == "" && a.Acct == "" {
			return fmt.Errorf("account result %d has neither id nor acct", i)
		}
	}
	for i, st := range s.Statuses {
		if st.ID == "" {
			return fmt.Errorf("status result %d has no id", i)
		}
	}
	for i, h := range s.Hashtags {
		if h.Name == "" {
			return fmt.Errorf("hashtag result %d has no name", i)
		}
	}
	return nil
}

// Search queries one instance's public search endpoint. Unauthenticated
// search is instance policy; a 401/403 surfaces as a status error.
func (c *Client) Search(ctx context.Context, domain, query string, limit int) (*SearchResults, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if !domainPattern.MatchString(domain) {
		return nil, &InvalidDomainError{Domain: domain}
	}
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	searchURL := fmt.Sprintf("%s://%s/api/v2/search?%s", c.scheme, domain, params.Encode())

	results, err := fetch.JSON[SearchResults](ctx, c.http, searchURL, types.MediaTypeJSON)
	if err != nil {
		return nil, err
	}
	for i := range results.Statuses {
		results.Statuses[i].Content = util.SanitizeHTML(results.Statuses[i].Content)
	}
	return results, nil
}
