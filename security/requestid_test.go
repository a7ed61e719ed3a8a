package security

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if !isValidRequestID(id) {
			t.Fatalf("GenerateRequestID() = %q, not a valid request ID", id)
		}
		if seen[id] {
			t.Fatalf("GenerateRequestID() returned duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-123")
	}
}

func TestIsValidRequestID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"abc123", true},
		{"upstream-request_id", true},
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{strings.Repeat("a", 128), true},
		{strings.Repeat("a", 129), false},
		{"", false},
		{"id with spaces", false},
		{"id\r\nX-Injected: evil", false},
		{"<script>alert(1)</script>", false},
	}

	for _, tt := range tests {
		if got := isValidRequestID(tt.id); got != tt.valid {
			t.Errorf("isValidRequestID(%q) = %v, want %v", tt.id, got, tt.valid)
		}
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		upstream  string
		expectNew bool
	}{
		{name: "generates ID when absent", upstream: "", expectNew: true},
		{name: "preserves valid upstream ID", upstream: "upstream-request-id-xyz", expectNew: false},
		{name: "replaces ID with spaces", upstream: "id with spaces", expectNew: true},
		{name: "replaces overlong ID", upstream: strings.Repeat("x", 200), expectNew: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest("GET", "/authorize", nil)
			if tt.upstream != "" {
				req.Header.Set(RequestIDHeader, tt.upstream)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if captured == "" {
				t.Fatal("request ID missing from context")
			}
			if got := rec.Header().Get(RequestIDHeader); got != captured {
				t.Errorf("response %s = %q, want %q", RequestIDHeader, got, captured)
			}
			if tt.expectNew && captured == tt.upstream {
				t.Errorf("request ID = %q, want a newly generated one", captured)
			}
			if !tt.expectNew && captured != tt.upstream {
				t.Errorf("request ID = %q, want %q", captured, tt.upstream)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithRequestID(context.Background(), "req-abc")
	RequestLogger(ctx, logger).Info("hello")

	if !strings.Contains(buf.String(), "request_id=req-abc") {
		t.Errorf("log output %q missing request_id", buf.String())
	}

	buf.Reset()
	RequestLogger(context.Background(), logger).Info("hello")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("log output %q should not contain request_id", buf.String())
	}

	if RequestLogger(ctx, nil) == nil {
		t.Error("RequestLogger(ctx, nil) returned nil")
	}
}
