package oauth

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/server"
	"github.com/giantswarm/oauth-core/storage"
)

// Endpoint paths
const (
	homePath      = "/"
	authorizePath = "/authorize"
	loginPath     = "/login"
	tokenPath     = "/token"
	metadataPath  = "/.well-known/oauth-authorization-server"
	healthzPath   = "/healthz"
)

const (
	// maxTokenRequestBytes bounds the body of POST /token
	maxTokenRequestBytes = 1 << 20

	homeBody = "OAuth 2.0 server"

	descParseFailure   = "Failed to parse request"
	descRateLimited    = "Rate limit exceeded. Please try again later."
	descLoginThrottled = "Too many failed login attempts. Please try again later."
)

// Handler is a thin HTTP adapter for the OAuth Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server *Server
	logger *slog.Logger
	tracer trace.Tracer // OpenTelemetry tracer for HTTP layer
}

// NewHandler creates a new HTTP handler
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = server.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
		tracer: server.Instrumentation.Tracer("http"),
	}
}

// Routes returns a router serving every endpoint with request ids,
// security headers, panic recovery, metrics and tracing. /login and /token
// are rate limited per client IP when a rate limiter is configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(security.RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(h.securityHeaders)
	r.Use(h.instrument)

	r.Get(homePath, h.ServeHome)
	r.Get(authorizePath, h.ServeAuthorize)
	r.With(h.rateLimit).Post(loginPath, h.ServeLogin)
	r.With(h.rateLimit).Post(tokenPath, h.ServeToken)
	r.Get(metadataPath, h.ServeAuthorizationServerMetadata)
	r.Get(healthzPath, h.ServeHealthz)

	return r
}

// ====== Endpoints ======

// ServeHome serves the landing page
func (h *Handler) ServeHome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(homeBody))
}

// ServeHealthz reports liveness
func (h *Handler) ServeHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// ServeAuthorize validates an authorize request and renders the login form.
// Errors before the client and redirect URI are trusted are shown as an
// error page; later protocol errors are redirected to the client.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	session, err := h.server.Core.Authorize(r.Context(), server.AuthorizeRequest{
		ClientID:     q.Get("client_id"),
		ResponseType: q.Get("response_type"),
		RedirectURI:  q.Get("redirect_uri"),
		State:        q.Get("state"),
		OriginalURL:  r.URL.RequestURI(),
		ClientIP:     h.server.IPResolver.ClientIP(r),
	})
	if err != nil {
		h.handleBrowserError(w, r, err)
		return
	}

	h.renderLoginPage(w, session.ID, h.takeFlash(w, r))
}

// ServeLogin checks the submitted credentials against a login session and
// redirects the browser to the client with a code or token.
func (h *Handler) ServeLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderErrorPage(w, http.StatusBadRequest, descParseFailure)
		return
	}

	clientIP := h.server.IPResolver.ClientIP(r)
	if h.loginThrottled(w, r, clientIP) {
		return
	}

	result, err := h.server.Core.Login(r.Context(), server.LoginRequest{
		LoginID:  r.PostForm.Get("login_id"),
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
		ClientIP: clientIP,
	})
	if err != nil {
		if server.IsKind(err, server.KindInvalidCredentials) && h.server.LoginThrottle != nil {
			h.server.LoginThrottle.RecordFailure(clientIP)
		}
		h.handleBrowserError(w, r, err)
		return
	}

	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// ServeToken redeems an authorization code for an access token.
// Both form-encoded and JSON bodies are accepted.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	req, oerr := h.parseTokenRequest(w, r)
	if oerr != nil {
		h.writeError(w, oerr)
		return
	}
	req.ClientIP = h.server.IPResolver.ClientIP(r)

	resp, err := h.server.Core.ExchangeToken(r.Context(), req)
	if err != nil {
		oe := tokenError(err)
		logger := security.RequestLogger(r.Context(), h.logger)
		if oe.Status >= http.StatusInternalServerError {
			logger.Error("Token exchange failed", "error", err)
		} else {
			logger.Debug("Token request rejected", "error", oe.Code, "description", oe.Description)
		}
		h.writeError(w, oe)
		return
	}

	security.SetSecurityHeaders(w, h.server.Core.Config.Issuer)
	h.writeJSON(w, http.StatusOK, resp)
}

// ServeAuthorizationServerMetadata serves the RFC 8414 metadata document
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	issuer := h.issuer(r)

	security.SetSecurityHeaders(w, h.server.Core.Config.Issuer)
	h.writeJSON(w, http.StatusOK, AuthorizationServerMetadata{
		Issuer:                 issuer,
		AuthorizationEndpoint:  issuer + authorizePath,
		TokenEndpoint:          issuer + tokenPath,
		ResponseTypesSupported: []string{string(storage.ResponseTypeCode), string(storage.ResponseTypeToken)},
		GrantTypesSupported:    []string{server.GrantTypeAuthorizationCode},
		TokenEndpointAuthMethodsSupported: []string{
			string(server.AuthMethodBasic),
			string(server.AuthMethodPost),
		},
	})
}

// ====== Request parsing ======

func (h *Handler) parseTokenRequest(w http.ResponseWriter, r *http.Request) (server.TokenRequest, *OAuthError) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTokenRequestBytes)

	var body tokenRequestBody
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return server.TokenRequest{}, ErrInvalidRequest(descParseFailure)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return server.TokenRequest{}, ErrInvalidRequest(descParseFailure)
		}
		body = tokenRequestBody{
			GrantType:    r.PostForm.Get("grant_type"),
			Code:         r.PostForm.Get("code"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			ClientID:     r.PostForm.Get("client_id"),
			ClientSecret: r.PostForm.Get("client_secret"),
		}
	}

	return server.TokenRequest{
		GrantType:   body.GrantType,
		Code:        body.Code,
		RedirectURI: body.RedirectURI,
		Credentials: server.ClientCredentials{
			Authorization: r.Header.Get("Authorization"),
			ClientID:      body.ClientID,
			ClientSecret:  body.ClientSecret,
		},
	}, nil
}

// issuer returns the configured issuer, or one derived from the request
func (h *Handler) issuer(r *http.Request) string {
	if issuer := strings.TrimRight(h.server.Core.Config.Issuer, "/"); issuer != "" {
		return issuer
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if h.server.IPResolver.TrustProxy {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
	}
	return scheme + "://" + r.Host
}

func (h *Handler) secureCookies() bool {
	return strings.HasPrefix(h.server.Core.Config.Issuer, "https://")
}

// ====== Responses ======

// handleBrowserError renders a failure of the authorize or login step
func (h *Handler) handleBrowserError(w http.ResponseWriter, r *http.Request, err error) {
	logger := security.RequestLogger(r.Context(), h.logger)

	e, ok := server.AsError(err)
	if !ok {
		logger.Error("Request failed", "error", err)
		h.renderErrorPage(w, http.StatusInternalServerError, server.DescServerError)
		return
	}

	switch {
	case e.Kind == server.KindServerError:
		logger.Error("Request failed", "error", err)
		h.renderErrorPage(w, pageStatus(e), e.Description)
	case e.Kind == server.KindInvalidCredentials && e.RedirectURL != "":
		h.setFlash(w, flashInvalidCredentials)
		http.Redirect(w, r, e.RedirectURL, http.StatusFound)
	case e.RedirectURL != "":
		http.Redirect(w, r, e.RedirectURL, http.StatusFound)
	default:
		logger.Debug("Request rejected", "kind", e.Kind, "description", e.Description)
		h.renderErrorPage(w, pageStatus(e), e.Description)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, oe *OAuthError) {
	security.SetSecurityHeaders(w, h.server.Core.Config.Issuer)
	if oe.Challenge != "" {
		w.Header().Set("WWW-Authenticate", oe.Challenge)
	}
	h.writeJSON(w, oe.Status, ErrorResponse{
		Error:            oe.Code,
		ErrorDescription: oe.Description,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to write response", "error", err)
	}
}

// ====== Middleware ======

// securityHeaders sets the JSON-endpoint headers on every response.
// Pages replace the Content-Security-Policy when they render.
func (h *Handler) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.SetSecurityHeaders(w, h.server.Core.Config.Issuer)
		next.ServeHTTP(w, r)
	})
}

// instrument wraps each request in a span and records HTTP metrics labelled
// with the matched route pattern
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ctx, span := h.tracer.Start(r.Context(), "oauth.http")
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}

		span.SetName("oauth.http " + endpoint)
		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, status)
		if h.server.Instrumentation.ShouldLogClientIPs() {
			instrumentation.AddSecurityAttributes(span, h.server.IPResolver.ClientIP(r))
		}
		if status >= http.StatusBadRequest {
			instrumentation.SetSpanError(span, http.StatusText(status))
		} else {
			instrumentation.SetSpanSuccess(span)
		}

		h.recordHTTPMetrics(ctx, endpoint, r.Method, status, startTime)
	})
}

// rateLimit rejects requests from client IPs over the configured rate
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.server.RateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := h.server.IPResolver.ClientIP(r)
		allowed, retryAfter := h.server.RateLimiter.AllowWithRetry(clientIP)
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		security.RequestLogger(r.Context(), h.logger).Warn("Rate limit exceeded", "ip", clientIP, "endpoint", r.URL.Path)
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(r.Context(), r.URL.Path)
		h.server.Auditor.LogRateLimitExceeded(clientIP, r.URL.Path)

		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
		h.writeError(w, ErrRateLimitExceeded(descRateLimited))
	})
}

// loginThrottled reports whether clientIP is blocked by the login throttle,
// writing the response when it is
func (h *Handler) loginThrottled(w http.ResponseWriter, r *http.Request, clientIP string) bool {
	lt := h.server.LoginThrottle
	if lt == nil || lt.Allowed(clientIP) {
		return false
	}

	failures := lt.Failures(clientIP)
	security.RequestLogger(r.Context(), h.logger).Warn("Login throttled", "ip", clientIP, "failures", failures)
	h.server.Instrumentation.Metrics().RecordLoginThrottled(r.Context())
	h.server.Auditor.LogLoginThrottled(clientIP, failures)

	h.renderErrorPage(w, http.StatusTooManyRequests, descLoginThrottled)
	return true
}

func retryAfterSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// recordHTTPMetrics records HTTP request metrics (total count and duration)
func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	duration := time.Since(startTime).Seconds() * 1000 // convert to milliseconds
	h.server.Instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, duration)
}
