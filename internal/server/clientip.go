package server

import (
	"net"
	"net/http"
	"strings"
)

const headerXForwardedFor = "X-Forwarded-For"

// ClientIPExtractor resolves the client address for allowlist checks,
// handling X-Forwarded-For with trusted proxy validation. With no trusted
// proxies configured only RemoteAddr is used, so a caller can never spoof
// its way onto an allowlist with a forged header.
type ClientIPExtractor struct {
	trustedCIDRs []*net.IPNet
}

// NewClientIPExtractor creates an extractor trusting the given proxies,
// specified as CIDRs or single addresses. Invalid entries are skipped.
func NewClientIPExtractor(trustedProxies []string) *ClientIPExtractor {
	cidrs := make([]*net.IPNet, 0, len(trustedProxies))
	for _, proxy := range trustedProxies {
		_, cidr, err := net.ParseCIDR(proxy)
		if err != nil {
			ip := net.ParseIP(proxy)
			if ip == nil {
				continue
			}
			cidr = singleIPToCIDR(ip)
		}
		cidrs = append(cidrs, cidr)
	}
	return &ClientIPExtractor{trustedCIDRs: cidrs}
}

// singleIPToCIDR converts a single IP address to a /32 or /128 CIDR.
func singleIPToCIDR(ip net.IP) *net.IPNet {
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{
		IP:   ip,
		Mask: net.CIDRMask(bits, bits),
	}
}

// Extract returns the client address for the request. When the direct peer
// is a trusted proxy, X-Forwarded-For is walked right-to-left and the
// first untrusted address wins.
func (e *ClientIPExtractor) Extract(r *http.Request) string {
	remoteIP := stripPort(r.RemoteAddr)

	if len(e.trustedCIDRs) == 0 {
		return remoteIP
	}

	if !e.isTrusted(remoteIP) {
		return remoteIP
	}

	return e.extractFromXFF(r, remoteIP)
}

// extractFromXFF walks the X-Forwarded-For chain right-to-left and returns
// the first untrusted address, falling back when the whole chain is trusted.
func (e *ClientIPExtractor) extractFromXFF(r *http.Request, fallback string) string {
	xff := r.Header.Get(headerXForwardedFor)
	if xff == "" {
		return fallback
	}

	ips := strings.Split(xff, ",")
	for i := len(ips) - 1; i >= 0; i-- {
		ip := strings.TrimSpace(ips[i])
		if ip == "" {
			continue
		}
		if !e.isTrusted(ip) {
			return ip
		}
	}

	return fallback
}

// isTrusted checks if the given address is within any trusted CIDR.
func (e *ClientIPExtractor) isTrusted(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range e.trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// stripPort removes the port from an address string, handling both
// "192.0.2.1:8080" and "[::1]:8080" forms.
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
