package security

import (
	"net"
	"net/http"
	"strings"
)

// IPResolver determines the client address used for rate limiting, login
// throttling and audit records.
//
// Only set TrustProxy when the server runs behind a reverse proxy you
// control. Otherwise any client can claim any address via X-Forwarded-For.
type IPResolver struct {
	// TrustProxy enables X-Forwarded-For and X-Real-IP
	TrustProxy bool

	// TrustedProxyCount is the number of proxies appended to X-Forwarded-For
	// by infrastructure we control, counted from the right. Zero means one.
	TrustedProxyCount int
}

// ClientIP returns the client IP for r
func (ipr IPResolver) ClientIP(r *http.Request) string {
	if ipr.TrustProxy {
		if ip := clientIPFromXFF(r.Header.Get("X-Forwarded-For"), ipr.TrustedProxyCount); ip != "" {
			return ip
		}
		if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return hostFromRemoteAddr(r.RemoteAddr)
}

// clientIPFromXFF picks the entry just left of the trusted proxies.
//
//	X-Forwarded-For: "1.2.3.4, untrusted-ip, proxy2-ip"   trusted=2 -> "1.2.3.4"
//
// When the header holds fewer entries than expected, the leftmost one is used.
func clientIPFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")
	proxies := trustedProxyCount
	if proxies <= 0 {
		proxies = 1
	}
	idx := len(ips) - proxies - 1
	if idx < 0 {
		idx = 0
	}
	return parseIP(strings.TrimSpace(ips[idx]))
}

func parseIP(s string) string {
	if s == "" || net.ParseIP(s) == nil {
		return ""
	}
	return s
}

func hostFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
