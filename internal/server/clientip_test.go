package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPExtractor_Extract(t *testing.T) {
	tests := []struct {
		name           string
		trustedProxies []string
		remoteAddr     string
		xff            string
		want           string
	}{
		{
			name:       "no proxies uses remote addr",
			remoteAddr: "203.0.113.5:1234",
			xff:        "198.51.100.7",
			want:       "203.0.113.5",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[::1]:1234",
			want:       "::1",
		},
		{
			name:           "untrusted peer ignores xff",
			trustedProxies: []string{"10.0.0.0/8"},
			remoteAddr:     "203.0.113.5:1234",
			xff:            "198.51.100.7",
			want:           "203.0.113.5",
		},
		{
			name:           "trusted peer walks xff",
			trustedProxies: []string{"10.0.0.0/8"},
			remoteAddr:     "10.1.2.3:1234",
			xff:            "198.51.100.7",
			want:           "198.51.100.7",
		},
		{
			name:           "walks past trusted hops right to left",
			trustedProxies: []string{"10.0.0.0/8"},
			remoteAddr:     "10.1.2.3:1234",
			xff:            "198.51.100.7, 10.2.2.2",
			want:           "198.51.100.7",
		},
		{
			name:           "fully trusted chain falls back to peer",
			trustedProxies: []string{"10.0.0.0/8"},
			remoteAddr:     "10.1.2.3:1234",
			xff:            "10.9.9.9",
			want:           "10.1.2.3",
		},
		{
			name:           "single ip proxy entry",
			trustedProxies: []string{"10.1.2.3"},
			remoteAddr:     "10.1.2.3:1234",
			xff:            "198.51.100.7",
			want:           "198.51.100.7",
		},
		{
			name:           "invalid proxy entries skipped",
			trustedProxies: []string{"not-a-cidr"},
			remoteAddr:     "203.0.113.5:1234",
			xff:            "198.51.100.7",
			want:           "203.0.113.5",
		},
		{
			name:           "missing xff falls back to peer",
			trustedProxies: []string{"10.0.0.0/8"},
			remoteAddr:     "10.1.2.3:1234",
			want:           "10.1.2.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewClientIPExtractor(tt.trustedProxies)

			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}

			assert.Equal(t, tt.want, e.Extract(r))
		})
	}
}
