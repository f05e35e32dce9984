package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"fedifetch/internal/fetch"
	"fedifetch/internal/types"
)

// Wire shapes for the per-domain metadata endpoints. Each normalizes into
// types.InstanceInfo; the first endpoint answering with a valid document
// wins.

type instanceV2 struct {
	Domain        string   `json:"domain"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Version       string   `json:"version"`
	Languages     []string `json:"languages"`
	Registrations struct {
		Enabled *bool `json:"enabled"`
	} `json:"registrations"`
	Usage struct {
		Users struct {
			ActiveMonth int64 `json:"active_month"`
		} `json:"users"`
	} `json:"usage"`
}

func (i *instanceV2) Validate() error {
	if i.Domain == "" {
		return errors.New(`missing required field "domain"`)
	}
	return nil
}

type instanceV1 struct {
	URI              string   `json:"uri"`
	Title            string   `json:"title"`
	ShortDescription string   `json:"short_description"`
	Description      string   `json:"description"`
	Version          string   `json:"version"`
	Languages        []string `json:"languages"`
	Registrations    *bool    `json:"registrations"`
	Stats            struct {
		UserCount   int64 `json:"user_count"`
		StatusCount int64 `json:"status_count"`
	} `json:"stats"`
}

func (i *instanceV1) Validate() error {
	if i.URI == "" {
		return errors.New(`missing required field "uri"`)
	}
	return nil
}

type nodeInfo struct {
	Version  string `json:"version"`
	Software struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"software"`
	Usage struct {
		Users struct {
			Total int64 `json:"total"`
		} `json:"users"`
		LocalPosts int64 `json:"localPosts"`
	} `json:"usage"`
	OpenRegistrations *bool `json:"openRegistrations"`
}

func (n *nodeInfo) Validate() error {
	if n.Software.Name == "" {
		return errors.New(`missing required field "software.name"`)
	}
	return nil
}

func instanceKey(domain string) string {
	return "instance:" + domain
}

// GetInstanceInfo fetches per-domain metadata. The known endpoints are
// queried in parallel; the first 2xx, schema-valid document wins and the
// normalized result is cached per domain. It fails only when every
// endpoint fails.
func (c *Client) GetInstanceInfo(ctx context.Context, domain string) (*types.InstanceInfo, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if !domainPattern.MatchString(domain) {
		return nil, &InvalidDomainError{Domain: domain}
	}

	if info, ok := c.cachedInstance(ctx, domain); ok {
		return info, nil
	}

	base := fmt.Sprintf("%s://%s", c.scheme, domain)
	probes := []struct {
		source string
		fetch  func(ctx context.Context) (*types.InstanceInfo, error)
	}{
		{"instance-v2", func(ctx context.Context) (*types.InstanceInfo, error) {
			doc, err := fetch.JSON[instanceV2](ctx, c.http, base+"/api/v2/instance", types.MediaTypeJSON)
			if err != nil {
				return nil, err
			}
			return &types.InstanceInfo{
				Domain:            doc.Domain,
				Title:             doc.Title,
				Description:       doc.Description,
				Version:           doc.Version,
				Languages:         doc.Languages,
				OpenRegistrations: doc.Registrations.Enabled,
				Users:             doc.Usage.Users.ActiveMonth,
				Source:            "instance-v2",
			}, nil
		}},
		{"instance-v1", func(ctx context.Context) (*types.InstanceInfo, error) {
			doc, err := fetch.JSON[instanceV1](ctx, c.http, base+"/api/v1/instance", types.MediaTypeJSON)
			if err != nil {
				return nil, err
			}
			description := doc.ShortDescription
			if description == "" {
				description = doc.Description
			}
			return &types.InstanceInfo{
				Domain:            doc.URI,
				Title:             doc.Title,
				Description:       description,
				Version:           doc.Version,
				Languages:         doc.Languages,
				OpenRegistrations: doc.Registrations,
				Users:             doc.Stats.UserCount,
				Posts:             doc.Stats.StatusCount,
				Source:            "instance-v1",
			}, nil
		}},
		{"nodeinfo", func(ctx context.Context) (*types.InstanceInfo, error) {
			doc, err := fetch.JSON[nodeInfo](ctx, c.http, base+"/nodeinfo/2.0", types.MediaTypeJSON)
			if err != nil {
				return nil, err
			}
			return &types.InstanceInfo{
				Domain:            domain,
				Version:           doc.Software.Version,
				SoftwareName:      doc.Software.Name,
				OpenRegistrations: doc.OpenRegistrations,
				Users:             doc.Usage.Users.Total,
				Posts:             doc.Usage.LocalPosts,
				Source:            "nodeinfo",
			}, nil
		}},
	}

	type probeResult struct {
		info *types.InstanceInfo
		err  error
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan probeResult, len(probes))
	var wg sync.WaitGroup
	for _, p := range probes {
		wg.Add(1)
		go func(source string, run func(context.Context) (*types.InstanceInfo, error)) {
			defer wg.Done()
			info, err := run(raceCtx)
			if err != nil {
				results <- probeResult{err: fmt.Errorf("%s: %w", source, err)}
				return
			}
			results <- probeResult{info: info}
		}(p.source, p.fetch)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var errs []error
	for res := range results {
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		cancel() // winner found, stop the stragglers
		info := res.info
		if info.Domain == "" {
			info.Domain = domain
		}
		c.storeInstance(ctx, domain, info)
		c.logger.Debug("instance info resolved", "domain", domain, "source", info.Source)
		return info, nil
	}

	return nil, fmt.Errorf("all instance metadata endpoints failed for %s: %w", domain, errors.Join(errs...))
}

func (c *Client) cachedInstance(ctx context.Context, domain string) (*types.InstanceInfo, bool) {
	if c.backend == nil {
		return nil, false
	}
	data, found, err := c.backend.Get(ctx, instanceKey(domain))
	if err != nil || !found {
		return nil, false
	}
	var info types.InstanceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, false
	}
	return &info, true
}

func (c *Client) storeInstance(ctx context.Context, domain string, info *types.InstanceInfo) {
	if c.backend == nil {
		return
	}
	data, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := c.backend.Set(ctx, instanceKey(domain), data, c.instanceTTL); err != nil {
		c.logger.Debug("instance cache store error", "domain", domain, "error", err)
	}
}
