package safety

import "fmt"

// UnsafeTargetError means a URL points at network space this service must
// never reach (loopback, link-local, private ranges, or an unresolvable or
// policy-denied hostname). Never retried and never cached.
type UnsafeTargetError struct {
	Target string
	Reason string
}

func (e *UnsafeTargetError) Error() string {
	return fmt.Sprintf("unsafe target %q: %s", e.Target, e.Reason)
}

// BlockedInstanceError means the hostname is on the configured instance
// denylist. Never retried and never cached.
type BlockedInstanceError struct {
	Host string
}

func (e *BlockedInstanceError) Error() string {
	return fmt.Sprintf("instance %q is blocked", e.Host)
}
