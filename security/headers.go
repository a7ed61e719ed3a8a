package security

import (
	"net/http"
	"net/url"
)

const (
	// apiContentSecurityPolicy allows nothing. JSON responses never load resources.
	apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

	// pageContentSecurityPolicy allows the inline stylesheet of the login and
	// error pages. form-action is left unset because the login form post is
	// answered with a redirect to the client, which form-action would block.
	pageContentSecurityPolicy = "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'"
)

// SetSecurityHeaders sets the security headers for JSON endpoints such as the
// token endpoint and server metadata. Responses are marked uncacheable.
func SetSecurityHeaders(w http.ResponseWriter, issuer string) {
	setCommonHeaders(w, issuer)
	w.Header().Set("Content-Security-Policy", apiContentSecurityPolicy)
}

// SetPageSecurityHeaders sets the security headers for rendered HTML pages
// (login form, error page). Login pages carry a per-session login_id and
// must not be cached either.
func SetPageSecurityHeaders(w http.ResponseWriter, issuer string) {
	setCommonHeaders(w, issuer)
	w.Header().Set("Content-Security-Policy", pageContentSecurityPolicy)
}

func setCommonHeaders(w http.ResponseWriter, issuer string) {
	h := w.Header()

	// Prevent clickjacking and MIME type sniffing
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-XSS-Protection", "1; mode=block")

	// Authorization codes ride in redirect URLs; never leak them via Referer
	h.Set("Referrer-Policy", "no-referrer")

	if parsed, err := url.Parse(issuer); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
}
