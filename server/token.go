package server

import (
	"context"
	"errors"

	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/internal/util"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

// TokenRequest carries the parameters of POST /token. Empty strings mean
// "absent".
type TokenRequest struct {
	GrantType   string
	Code        string
	RedirectURI string
	Credentials ClientCredentials

	// ClientIP is used for audit logging only
	ClientIP string
}

// TokenResponse is the successful token endpoint response (RFC 6749 section 5.1)
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ExchangeToken authenticates the client and redeems an authorization code
// for an access token.
//
// The code is removed from the store as soon as it is looked up, so a
// replayed code and an unknown code are indistinguishable.
func (s *Server) ExchangeToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "token")
	defer span.End()

	resp, client, method, err := s.exchangeToken(ctx, req)

	clientID := req.Credentials.ClientID
	if client != nil {
		clientID = client.ID
	}
	instrumentation.AddTokenAttributes(span, clientID, req.GrantType, string(method))
	finishSpan(span, err)

	if client != nil {
		s.metrics.RecordCodeExchange(ctx, client.ID, err == nil)
	}
	return resp, err
}

func (s *Server) exchangeToken(ctx context.Context, req TokenRequest) (*TokenResponse, *storage.Client, AuthMethod, error) {
	if req.GrantType == "" {
		return nil, nil, AuthMethodNone, newError(KindMissingParameter, DescMissingGrantType)
	}
	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, nil, AuthMethodNone, newError(KindUnsupportedGrantType, DescUnsupportedGrantType)
	}

	client, method, err := s.authenticateClient(ctx, req.Credentials, req.ClientIP)
	if err != nil {
		return nil, nil, method, err
	}

	if req.Code == "" {
		return nil, client, method, newError(KindMissingParameter, DescMissingCode)
	}

	ac, err := s.store.PopAuthorizationCode(ctx, req.Code)
	if err != nil {
		if !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			return nil, client, method, serverError("pop authorization code", err)
		}
		s.Auditor.LogAuthorizationCodeRejected("", client.ID, req.ClientIP, "unknown_code")
		return nil, client, method, newError(KindInvalidGrant, DescInvalidAuthorizationCode)
	}

	if err := s.validateCode(ac, client, req); err != nil {
		return nil, client, method, err
	}

	token, err := s.IssueAccessToken(ctx, client.ID, ac.Context.Email)
	if err != nil {
		return nil, client, method, serverError("issue access token", err)
	}

	s.metrics.RecordTokenIssued(ctx, client.ID, GrantTypeAuthorizationCode)
	s.Auditor.LogTokenIssued(ac.Context.Email, client.ID, req.ClientIP, GrantTypeAuthorizationCode)

	return &TokenResponse{
		AccessToken: token.Token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   s.ExpiresIn(),
	}, client, method, nil
}

// validateCode checks a popped code, in order: expiry, client binding,
// redirect URI binding. Only the redirect mismatch has its own message.
func (s *Server) validateCode(ac *storage.AuthorizationCode, client *storage.Client, req TokenRequest) error {
	codeCtx := ac.Context
	codePrefix := util.SafeTruncate(ac.Code, tokenIDLogLength)

	if security.IsExpired(s.clock, codeCtx.ExpiresAt) {
		s.Auditor.LogAuthorizationCodeRejected(codeCtx.Email, client.ID, req.ClientIP, "expired")
		s.Logger.Debug("Rejected expired authorization code", "code_prefix", codePrefix, "expired_at", codeCtx.ExpiresAt)
		return newError(KindInvalidGrant, DescInvalidAuthorizationCode)
	}

	if codeCtx.ClientID != client.ID {
		s.Auditor.LogAuthorizationCodeRejected(codeCtx.Email, client.ID, req.ClientIP, "client_mismatch")
		s.Logger.Warn("Authorization code presented by another client",
			"code_prefix", codePrefix,
			"code_client_id", codeCtx.ClientID,
			"client_id", client.ID)
		return newError(KindInvalidGrant, DescInvalidAuthorizationCode)
	}

	bound := storage.StringValue(codeCtx.RedirectURI)
	if (req.RedirectURI != "" || bound != "") && req.RedirectURI != bound {
		s.Auditor.LogRedirectURIMismatch(codeCtx.Email, client.ID, req.ClientIP)
		return newError(KindInvalidGrant, DescRedirectURIMismatch)
	}

	return nil
}
