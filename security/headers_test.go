package security

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSetSecurityHeaders(t *testing.T) {
	tests := []struct {
		name     string
		issuer   string
		wantHSTS bool
	}{
		{
			name:     "HTTPS issuer",
			issuer:   "https://auth.example.com",
			wantHSTS: true,
		},
		{
			name:     "HTTP issuer",
			issuer:   "http://localhost:8080",
			wantHSTS: false,
		},
		{
			name:     "invalid URL",
			issuer:   "://invalid",
			wantHSTS: false,
		},
		{
			name:     "empty issuer",
			issuer:   "",
			wantHSTS: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			SetSecurityHeaders(w, tt.issuer)

			want := map[string]string{
				"X-Frame-Options":         "DENY",
				"X-Content-Type-Options":  "nosniff",
				"X-XSS-Protection":        "1; mode=block",
				"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
				"Referrer-Policy":         "no-referrer",
				"Cache-Control":           "no-store",
				"Pragma":                  "no-cache",
			}
			for header, value := range want {
				if got := w.Header().Get(header); got != value {
					t.Errorf("%s = %q, want %q", header, got, value)
				}
			}

			hsts := w.Header().Get("Strict-Transport-Security")
			if tt.wantHSTS && hsts == "" {
				t.Error("Strict-Transport-Security should be set for HTTPS issuer")
			}
			if !tt.wantHSTS && hsts != "" {
				t.Errorf("Strict-Transport-Security = %q, want empty", hsts)
			}
		})
	}
}

func TestSetPageSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()

	SetPageSecurityHeaders(w, "https://auth.example.com")

	csp := w.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "style-src 'unsafe-inline'") {
		t.Errorf("Content-Security-Policy = %q, should allow inline styles", csp)
	}
	if strings.Contains(csp, "script-src") {
		t.Errorf("Content-Security-Policy = %q, should not allow scripts", csp)
	}
	if strings.Contains(csp, "form-action") {
		t.Errorf("Content-Security-Policy = %q, should not restrict form-action", csp)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", got, "DENY")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want %q", got, "no-store")
	}
	if w.Header().Get("Strict-Transport-Security") == "" {
		t.Error("Strict-Transport-Security should be set for HTTPS issuer")
	}
}
