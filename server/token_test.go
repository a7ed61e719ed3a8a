package server

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giantswarm/oauth-core/internal/testutil"
)

func basicCreds(id, secret string) ClientCredentials {
	return ClientCredentials{Authorization: testutil.BasicAuth(id, secret)}
}

func codeRequest(code, redirectURI string) TokenRequest {
	return TokenRequest{
		GrantType:   GrantTypeAuthorizationCode,
		Code:        code,
		RedirectURI: redirectURI,
		Credentials: basicCreds(testutil.ClientID1, testutil.ClientSecret1),
	}
}

func TestExchangeToken_Success(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	resp, err := srv.ExchangeToken(ctx, codeRequest(testutil.CodeValid, testutil.RedirectURI1a))
	if err != nil {
		t.Fatalf("ExchangeToken() error = %v", err)
	}

	if resp.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", resp.TokenType)
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", resp.ExpiresIn)
	}
	if !strings.HasPrefix(resp.AccessToken, "at-") {
		t.Errorf("AccessToken = %q, want at- prefix", resp.AccessToken)
	}

	at, err := store.GetAccessToken(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("access token not persisted: %v", err)
	}
	if at.ClientID != testutil.ClientID1 || at.Email != testutil.UserEmail {
		t.Errorf("token = %+v", at)
	}
}

func TestExchangeToken_ExpiresInIndependentOfClock(t *testing.T) {
	srv, _, clock := newTestServer(t)
	clock.Advance(30 * time.Second)

	resp, err := srv.ExchangeToken(context.Background(), codeRequest(testutil.CodeValid, testutil.RedirectURI1a))
	if err != nil {
		t.Fatalf("ExchangeToken() error = %v", err)
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("ExpiresIn = %d, want 3600", resp.ExpiresIn)
	}
}

func TestExchangeToken_PostCredentials(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := codeRequest(testutil.CodeNoRedirect, "")
	req.Credentials = ClientCredentials{ClientID: testutil.ClientID1, ClientSecret: testutil.ClientSecret1}

	if _, err := srv.ExchangeToken(context.Background(), req); err != nil {
		t.Fatalf("ExchangeToken() error = %v", err)
	}
}

func TestExchangeToken_Errors(t *testing.T) {
	tests := []struct {
		name           string
		req            TokenRequest
		wantKind       ErrorKind
		wantDesc       string
		wantAuthMethod AuthMethod
	}{
		{
			name:     "missing grant_type",
			req:      TokenRequest{Code: testutil.CodeValid},
			wantKind: KindMissingParameter,
			wantDesc: "Missing required parameter: grant_type",
		},
		{
			name:     "unsupported grant_type",
			req:      TokenRequest{GrantType: "password"},
			wantKind: KindUnsupportedGrantType,
			wantDesc: "Unsupported grant type",
		},
		{
			name: "bearer scheme",
			req: TokenRequest{GrantType: GrantTypeAuthorizationCode, Code: testutil.CodeValid,
				Credentials: ClientCredentials{Authorization: "Bearer abc"}},
			wantKind:       KindInvalidClient,
			wantDesc:       "Unsupported authentication method",
			wantAuthMethod: AuthMethodBasic,
		},
		{
			name: "basic with three parts",
			req: TokenRequest{GrantType: GrantTypeAuthorizationCode, Code: testutil.CodeValid,
				Credentials: ClientCredentials{Authorization: "Basic abc def"}},
			wantKind:       KindInvalidClient,
			wantDesc:       "Unsupported authentication method",
			wantAuthMethod: AuthMethodBasic,
		},
		{
			name: "basic wrong secret",
			req: TokenRequest{GrantType: GrantTypeAuthorizationCode, Code: testutil.CodeValid,
				Credentials: basicCreds(testutil.ClientID1, "wrongsecret")},
			wantKind:       KindInvalidClient,
			wantDesc:       "Invalid client or secret",
			wantAuthMethod: AuthMethodBasic,
		},
		{
			name: "basic unknown client",
			req: TokenRequest{GrantType: GrantTypeAuthorizationCode, Code: testutil.CodeValid,
				Credentials: basicCreds("ghi", testutil.ClientSecret1)},
			wantKind:       KindInvalidClient,
			wantDesc:       "Invalid client or secret",
			wantAuthMethod: AuthMethodBasic,
		},
		{
			name: "basic payload not base64",
			req: TokenRequest{GrantType: GrantTypeAuthorizationCode, Code: testutil.CodeValid,
				Credentials: ClientCredentials{Authorization: "Basic !!!"}},
			wantKind:       KindInvalidClient,
			wantDesc:       "Invalid client or secret",
			wantAuthMethod: AuthMethodBasic,
		},
		{
			name: "body without client_secret",
			req: TokenRequest{GrantType: GrantTypeAuthorizationCode, Code: testutil.CodeValid,
				Credentials: ClientCredentials{ClientID: testutil.ClientID1}},
			wantKind:       KindInvalidClient,
			wantDesc:       "Client authentication failed",
			wantAuthMethod: AuthMethodPost,
		},
		{
			name:           "no credentials at all",
			req:            TokenRequest{GrantType: GrantTypeAuthorizationCode, Code: testutil.CodeValid},
			wantKind:       KindInvalidClient,
			wantDesc:       "Client authentication failed",
			wantAuthMethod: AuthMethodPost,
		},
		{
			name: "body wrong secret",
			req: TokenRequest{GrantType: GrantTypeAuthorizationCode, Code: testutil.CodeValid,
				Credentials: ClientCredentials{ClientID: testutil.ClientID1, ClientSecret: "nope"}},
			wantKind:       KindInvalidClient,
			wantDesc:       "Invalid client or secret",
			wantAuthMethod: AuthMethodPost,
		},
		{
			name:     "missing code",
			req:      codeRequest("", testutil.RedirectURI1a),
			wantKind: KindMissingParameter,
			wantDesc: "Missing required parameter: code",
		},
		{
			name:     "unknown code",
			req:      codeRequest("nonexistent", testutil.RedirectURI1a),
			wantKind: KindInvalidGrant,
			wantDesc: "Invalid authorization code",
		},
		{
			name:     "expired code",
			req:      codeRequest(testutil.CodeExpired, testutil.RedirectURI1a),
			wantKind: KindInvalidGrant,
			wantDesc: "Invalid authorization code",
		},
		{
			name:     "code issued to another client",
			req:      codeRequest(testutil.CodeOtherClient, testutil.RedirectURI1a),
			wantKind: KindInvalidGrant,
			wantDesc: "Invalid authorization code",
		},
		{
			name:     "redirect_uri missing but code has one",
			req:      codeRequest(testutil.CodeValid, ""),
			wantKind: KindInvalidGrant,
			wantDesc: "Invalid redirect URI",
		},
		{
			name:     "redirect_uri differs",
			req:      codeRequest(testutil.CodeValid, testutil.RedirectURI1b),
			wantKind: KindInvalidGrant,
			wantDesc: "Invalid redirect URI",
		},
		{
			name:     "redirect_uri supplied but code has none",
			req:      codeRequest(testutil.CodeNoRedirect, testutil.RedirectURI1a),
			wantKind: KindInvalidGrant,
			wantDesc: "Invalid redirect URI",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newTestServer(t)

			resp, err := srv.ExchangeToken(context.Background(), tt.req)
			if err == nil {
				t.Fatalf("ExchangeToken() = %+v, want error", resp)
			}
			e, ok := AsError(err)
			if !ok {
				t.Fatalf("ExchangeToken() error = %T, want *Error", err)
			}
			if e.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", e.Kind, tt.wantKind)
			}
			if e.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", e.Description, tt.wantDesc)
			}
			if e.AuthMethod != tt.wantAuthMethod {
				t.Errorf("AuthMethod = %q, want %q", e.AuthMethod, tt.wantAuthMethod)
			}
		})
	}
}

// A rejected redemption still consumes the code.
func TestExchangeToken_CodeDeletedBeforeValidation(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	if _, err := srv.ExchangeToken(ctx, codeRequest(testutil.CodeValid, testutil.RedirectURI1b)); !IsKind(err, KindInvalidGrant) {
		t.Fatalf("ExchangeToken() error = %v, want invalid_grant", err)
	}

	if _, err := store.GetAuthorizationCode(ctx, testutil.CodeValid); err == nil {
		t.Error("code should be deleted after a rejected redemption")
	}

	_, err := srv.ExchangeToken(ctx, codeRequest(testutil.CodeValid, testutil.RedirectURI1a))
	e, _ := AsError(err)
	if e == nil || e.Description != DescInvalidAuthorizationCode {
		t.Errorf("retry error = %v, want %q", err, DescInvalidAuthorizationCode)
	}
}

func TestExchangeToken_Replay(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	if _, err := srv.ExchangeToken(ctx, codeRequest(testutil.CodeValid, testutil.RedirectURI1a)); err != nil {
		t.Fatalf("first ExchangeToken() error = %v", err)
	}

	_, err := srv.ExchangeToken(ctx, codeRequest(testutil.CodeValid, testutil.RedirectURI1a))
	e, ok := AsError(err)
	if !ok || e.Kind != KindInvalidGrant || e.Description != "Invalid authorization code" {
		t.Errorf("replay error = %v, want invalid_grant: Invalid authorization code", err)
	}
}

func TestExchangeToken_ConcurrentRedemption(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	const attempts = 50
	var (
		wg      sync.WaitGroup
		success atomic.Int32
		invalid atomic.Int32
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := srv.ExchangeToken(ctx, codeRequest(testutil.CodeValid, testutil.RedirectURI1a))
			switch {
			case err == nil:
				success.Add(1)
			case IsKind(err, KindInvalidGrant):
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()

	if success.Load() != 1 {
		t.Errorf("successes = %d, want 1", success.Load())
	}
	if invalid.Load() != attempts-1 {
		t.Errorf("invalid_grant = %d, want %d", invalid.Load(), attempts-1)
	}
}

// Full flow: authorize, login, exchange, with the redirect_uri echoed.
func TestFullCodeFlow(t *testing.T) {
	srv, _, clock := newTestServer(t)
	ctx := context.Background()

	session, err := srv.Authorize(ctx, AuthorizeRequest{
		ClientID:     testutil.ClientID2,
		ResponseType: "code",
		RedirectURI:  testutil.RedirectURI2,
		State:        "st",
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	result, err := srv.Login(ctx, validLogin(session.ID))
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	u, _ := url.Parse(result.RedirectURL)
	code := u.Query().Get("code")

	clock.Advance(9 * time.Minute)

	resp, err := srv.ExchangeToken(ctx, TokenRequest{
		GrantType:   GrantTypeAuthorizationCode,
		Code:        code,
		RedirectURI: testutil.RedirectURI2,
		Credentials: ClientCredentials{ClientID: testutil.ClientID2, ClientSecret: testutil.ClientSecret2},
	})
	if err != nil {
		t.Fatalf("ExchangeToken() error = %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("AccessToken is empty")
	}
}

func TestFullCodeFlow_CodeExpires(t *testing.T) {
	srv, _, clock := newTestServer(t)
	ctx := context.Background()

	result, err := srv.Login(ctx, validLogin(testutil.LoginSession))
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	u, _ := url.Parse(result.RedirectURL)

	clock.Advance(10 * time.Minute)

	_, err = srv.ExchangeToken(ctx, codeRequest(u.Query().Get("code"), testutil.RedirectURI1a))
	if !IsKind(err, KindInvalidGrant) {
		t.Errorf("ExchangeToken() error = %v, want invalid_grant", err)
	}
}

func TestIssueAccessToken(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	first, err := srv.IssueAccessToken(ctx, testutil.ClientID1, testutil.UserEmail)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	second, err := srv.IssueAccessToken(ctx, testutil.ClientID1, testutil.UserEmail)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	if first.Token == second.Token {
		t.Error("IssueAccessToken() returned the same token twice")
	}
	if !first.ExpiresAt.Equal(testutil.FixtureTime.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want fixture time + 1h", first.ExpiresAt)
	}

	if _, err := store.GetAccessToken(ctx, first.Token); err != nil {
		t.Errorf("GetAccessToken() error = %v", err)
	}
}

func TestIssueAccessToken_StoreFailure(t *testing.T) {
	srv, store, _ := newTestServer(t)
	_ = store.Shutdown(context.Background())

	if _, err := srv.IssueAccessToken(context.Background(), testutil.ClientID1, testutil.UserEmail); err == nil {
		t.Error("IssueAccessToken() should fail when the store is shut down")
	}
}

func TestExchangeToken_StoreFailureIsServerError(t *testing.T) {
	srv, store, _ := newTestServer(t)
	_ = store.Shutdown(context.Background())

	_, err := srv.ExchangeToken(context.Background(), codeRequest(testutil.CodeValid, testutil.RedirectURI1a))
	if !IsKind(err, KindServerError) {
		t.Errorf("ExchangeToken() error = %v, want server_error", err)
	}
}
