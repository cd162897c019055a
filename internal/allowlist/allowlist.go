// Package allowlist evaluates a client address against a token's allowed
// addresses. Matching is exact string equality after trimming: no CIDR
// expansion, no DNS resolution, no IPv6 canonicalization. The coarse
// matcher is intentional; widening it is a product decision, not a bug fix.
package allowlist

import "strings"

// IsAllowed reports whether clientAddress may use a token restricted to
// allowedAddresses. An empty allowlist means no restriction.
func IsAllowed(clientAddress string, allowedAddresses []string) bool {
	if len(allowedAddresses) == 0 {
		return true
	}

	clientAddress = strings.TrimSpace(clientAddress)
	for _, allowed := range allowedAddresses {
		if clientAddress == strings.TrimSpace(allowed) {
			return true
		}
	}
	return false
}
