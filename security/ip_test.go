package security

import (
	"net/http/httptest"
	"testing"
)

func TestIPResolver_ClientIP(t *testing.T) {
	tests := []struct {
		name          string
		resolver      IPResolver
		remoteAddr    string
		xForwardedFor string
		xRealIP       string
		want          string
	}{
		{
			name:       "direct connection",
			remoteAddr: "192.168.1.100:12345",
			want:       "192.168.1.100",
		},
		{
			name:          "X-Forwarded-For with trust",
			resolver:      IPResolver{TrustProxy: true},
			remoteAddr:    "10.0.0.1:12345",
			xForwardedFor: "203.0.113.1, 10.0.0.2",
			want:          "203.0.113.1",
		},
		{
			name:          "X-Forwarded-For without trust",
			remoteAddr:    "10.0.0.1:12345",
			xForwardedFor: "203.0.113.1",
			want:          "10.0.0.1",
		},
		{
			name:       "X-Real-IP with trust",
			resolver:   IPResolver{TrustProxy: true},
			remoteAddr: "10.0.0.1:12345",
			xRealIP:    "203.0.113.1",
			want:       "203.0.113.1",
		},
		{
			name:       "X-Real-IP without trust",
			remoteAddr: "10.0.0.1:12345",
			xRealIP:    "203.0.113.1",
			want:       "10.0.0.1",
		},
		{
			name:          "multiple trusted proxies",
			resolver:      IPResolver{TrustProxy: true, TrustedProxyCount: 2},
			remoteAddr:    "10.0.0.1:12345",
			xForwardedFor: "203.0.113.1, 10.0.0.2, 10.0.0.3",
			want:          "203.0.113.1",
		},
		{
			name:          "spoofed leftmost entry is ignored",
			resolver:      IPResolver{TrustProxy: true, TrustedProxyCount: 1},
			remoteAddr:    "10.0.0.1:12345",
			xForwardedFor: "6.6.6.6, 203.0.113.1, 10.0.0.2",
			want:          "203.0.113.1",
		},
		{
			name:          "fewer entries than proxies uses leftmost",
			resolver:      IPResolver{TrustProxy: true, TrustedProxyCount: 3},
			remoteAddr:    "10.0.0.1:12345",
			xForwardedFor: "203.0.113.1",
			want:          "203.0.113.1",
		},
		{
			name:          "invalid X-Forwarded-For falls back to X-Real-IP",
			resolver:      IPResolver{TrustProxy: true},
			remoteAddr:    "10.0.0.1:12345",
			xForwardedFor: "not-an-ip, 10.0.0.2",
			xRealIP:       "203.0.113.9",
			want:          "203.0.113.9",
		},
		{
			name:       "invalid X-Real-IP falls back to RemoteAddr",
			resolver:   IPResolver{TrustProxy: true},
			remoteAddr: "10.0.0.1:12345",
			xRealIP:    "garbage",
			want:       "10.0.0.1",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "192.168.1.100",
			want:       "192.168.1.100",
		},
		{
			name:       "IPv6 RemoteAddr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := tt.resolver.ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
