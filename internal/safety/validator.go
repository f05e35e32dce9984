package safety

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
)

// cgnat is the 100.64.0.0/10 shared address space, not covered by
// netip.Addr.IsPrivate.
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// Validator rejects URLs that would let a remote server steer this service
// into non-public network space. Validate covers the pre-request check;
// DialControl re-checks the resolved address at connect time, which is the
// part that defeats DNS rebinding.
type Validator struct {
	lookupIP func(ctx context.Context, host string) ([]netip.Addr, error)
	logger   *slog.Logger
}

// NewValidator creates a Validator resolving through the default resolver.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		lookupIP: func(ctx context.Context, host string) ([]netip.Addr, error) {
			return net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		},
		logger: logger,
	}
}

// Validate checks scheme, hostname and every resolved address of rawURL.
// One successful validation authorizes exactly one request; callers retrying
// a request must validate again.
func (v *Validator) Validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &UnsafeTargetError{Target: rawURL, Reason: "unparseable URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &UnsafeTargetError{Target: rawURL, Reason: "scheme " + u.Scheme + " not allowed"}
	}

	host := u.Hostname()
	if host == "" {
		return &UnsafeTargetError{Target: rawURL, Reason: "empty hostname"}
	}

	// Literal IP targets are checked directly, no resolution involved.
	if addr, err := netip.ParseAddr(host); err == nil {
		if reason := addrDenied(addr); reason != "" {
			return &UnsafeTargetError{Target: rawURL, Reason: reason}
		}
		return nil
	}

	if reason := hostnameDenied(host); reason != "" {
		return &UnsafeTargetError{Target: rawURL, Reason: reason}
	}

	addrs, err := v.lookupIP(ctx, host)
	if err != nil || len(addrs) == 0 {
		v.logger.Debug("target hostname did not resolve", "host", host, "error", err)
		return &UnsafeTargetError{Target: rawURL, Reason: "hostname did not resolve"}
	}
	for _, addr := range addrs {
		if reason := addrDenied(addr); reason != "" {
			v.logger.Warn("target resolved into denied network space",
				"host", host,
				"addr", addr.String(),
				"reason", reason)
			return &UnsafeTargetError{Target: rawURL, Reason: reason}
		}
	}

	return nil
}

// DialControl is a net.Dialer Control hook. It inspects the address the
// socket is actually about to connect to, so a DNS answer that changed
// after Validate cannot reach denied space.
func (v *Validator) DialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return &UnsafeTargetError{Target: address, Reason: "unparseable dial address"}
	}
	if reason := addrDenied(addr); reason != "" {
		v.logger.Warn("connection blocked at dial time", "addr", addr.String(), "reason", reason)
		return &UnsafeTargetError{Target: address, Reason: reason}
	}
	return nil
}

// hostnameDenied rejects names that designate internal services regardless
// of what they resolve to.
func hostnameDenied(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "localhost" {
		return "loopback hostname"
	}
	for _, suffix := range []string{".localhost", ".local", ".internal", ".onion"} {
		if strings.HasSuffix(host, suffix) {
			return "internal hostname suffix " + suffix
		}
	}
	return ""
}

// addrDenied reports why an address is off limits, or "" when it is publicly
// routable.
func addrDenied(addr netip.Addr) string {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid():
		return "invalid address"
	case addr.IsLoopback():
		return "loopback address"
	case addr.IsPrivate():
		return "private address"
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local address"
	case addr.IsMulticast(), addr.IsInterfaceLocalMulticast():
		return "multicast address"
	case addr.IsUnspecified():
		return "unspecified address"
	case cgnat.Contains(addr):
		return "shared address space"
	}
	return ""
}
