package safety

import "strings"

// Blocklist is the configured instance denylist. Matching is
// case-insensitive and exact: blocking "example.social" does not block
// "sub.example.social".
type Blocklist struct {
	enabled bool
	hosts   map[string]struct{}
}

// NewBlocklist builds a blocklist from configured hostnames. A disabled
// blocklist never matches.
func NewBlocklist(enabled bool, hosts []string) *Blocklist {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		h = normalizeHost(h)
		if h != "" {
			set[h] = struct{}{}
		}
	}
	return &Blocklist{enabled: enabled, hosts: set}
}

// IsBlocked reports whether host is on the denylist.
func (b *Blocklist) IsBlocked(host string) bool {
	if b == nil || !b.enabled {
		return false
	}
	_, blocked := b.hosts[normalizeHost(host)]
	return blocked
}

// Check fails with a BlockedInstanceError when host is denied.
func (b *Blocklist) Check(host string) error {
	if b.IsBlocked(host) {
		return &BlockedInstanceError{Host: normalizeHost(host)}
	}
	return nil
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
}
