package allowlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		name    string
		client  string
		allowed []string
		want    bool
	}{
		{
			name:    "empty allowlist allows all",
			client:  "203.0.113.5",
			allowed: nil,
			want:    true,
		},
		{
			name:    "exact match",
			client:  "203.0.113.5",
			allowed: []string{"203.0.113.5"},
			want:    true,
		},
		{
			name:    "no match",
			client:  "203.0.113.6",
			allowed: []string{"203.0.113.5"},
			want:    false,
		},
		{
			name:    "match among several",
			client:  "198.51.100.7",
			allowed: []string{"203.0.113.5", "198.51.100.7"},
			want:    true,
		},
		{
			name:    "whitespace trimmed on both sides",
			client:  " 203.0.113.5 ",
			allowed: []string{" 203.0.113.5"},
			want:    true,
		},
		{
			name:    "no prefix matching",
			client:  "203.0.113.50",
			allowed: []string{"203.0.113.5"},
			want:    false,
		},
		{
			name:    "no cidr expansion",
			client:  "203.0.113.5",
			allowed: []string{"203.0.113.0/24"},
			want:    false,
		},
		{
			name:    "ipv6 compared literally",
			client:  "::1",
			allowed: []string{"0:0:0:0:0:0:0:1"},
			want:    false,
		},
		{
			name:    "empty client with restriction",
			client:  "",
			allowed: []string{"203.0.113.5"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAllowed(tt.client, tt.allowed))
		})
	}
}
