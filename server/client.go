package server

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

// ClientCredentials are the client credentials presented at the token
// endpoint. Authorization, when non-empty, takes precedence over the body
// fields.
type ClientCredentials struct {
	Authorization string
	ClientID      string
	ClientSecret  string
}

// authenticateClient resolves the calling client. Header and body
// credentials are mutually exclusive paths.
func (s *Server) authenticateClient(ctx context.Context, creds ClientCredentials, clientIP string) (*storage.Client, AuthMethod, error) {
	if creds.Authorization != "" {
		client, err := s.authenticateBasic(ctx, creds.Authorization, clientIP)
		return client, AuthMethodBasic, err
	}
	client, err := s.authenticatePost(ctx, creds.ClientID, creds.ClientSecret, clientIP)
	return client, AuthMethodPost, err
}

func (s *Server) authenticateBasic(ctx context.Context, header, clientIP string) (*storage.Client, error) {
	clientID, secret, err := parseBasicAuth(header)
	switch {
	case errors.Is(err, errUnsupportedScheme):
		s.Auditor.LogAuthFailure("", clientIP, "unsupported_auth_method")
		return nil, invalidClient(DescUnsupportedAuthMethod, AuthMethodBasic)
	case err != nil:
		s.Auditor.LogAuthFailure("", clientIP, "malformed_basic_credentials")
		return nil, invalidClient(DescInvalidClientOrSecret, AuthMethodBasic)
	}
	return s.verifyClient(ctx, clientID, secret, AuthMethodBasic, clientIP)
}

func (s *Server) authenticatePost(ctx context.Context, clientID, secret, clientIP string) (*storage.Client, error) {
	if clientID == "" || secret == "" {
		s.Auditor.LogAuthFailure(clientID, clientIP, "missing_client_credentials")
		return nil, invalidClient(DescClientAuthFailed, AuthMethodPost)
	}
	return s.verifyClient(ctx, clientID, secret, AuthMethodPost, clientIP)
}

// verifyClient looks up clientID and checks secret. Unknown clients and wrong
// secrets fail identically.
func (s *Server) verifyClient(ctx context.Context, clientID, secret string, method AuthMethod, clientIP string) (*storage.Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if !errors.Is(err, storage.ErrClientNotFound) {
			return nil, serverError("get client", err)
		}
		security.RejectUnknown(secret)
		s.Auditor.LogAuthFailure(clientID, clientIP, "unknown_client")
		return nil, invalidClient(DescInvalidClientOrSecret, method)
	}
	if !security.VerifySecret(client.Secret, client.SecretHash, secret) {
		s.Auditor.LogAuthFailure(clientID, clientIP, "invalid_secret")
		return nil, invalidClient(DescInvalidClientOrSecret, method)
	}
	return client, nil
}

func invalidClient(description string, method AuthMethod) *Error {
	e := newError(KindInvalidClient, description)
	e.AuthMethod = method
	return e
}

var (
	errUnsupportedScheme   = errors.New("authorization scheme is not Basic")
	errMalformedBasicCreds = errors.New("malformed Basic credentials")
)

// parseBasicAuth parses "Basic base64(id:secret)". The header must consist of
// exactly two space-separated parts. The payload is split on the first colon;
// a payload without a colon yields an empty secret, which never matches.
func parseBasicAuth(header string) (clientID, secret string, err error) {
	parts := strings.Split(strings.TrimSpace(header), " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "basic") {
		return "", "", errUnsupportedScheme
	}

	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", errMalformedBasicCreds
	}

	clientID, secret, _ = strings.Cut(string(decoded), ":")
	return clientID, secret, nil
}
