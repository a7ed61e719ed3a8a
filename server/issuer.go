package server

import (
	"context"
	"fmt"

	"github.com/giantswarm/oauth-core/internal/util"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

// IssueAccessToken mints and persists an opaque bearer token for clientID and
// email. It performs no validation of its own.
func (s *Server) IssueAccessToken(ctx context.Context, clientID, email string) (*storage.AccessToken, error) {
	random, err := util.RandomAlphanumeric(codeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	now := s.clock.Now()
	token := &storage.AccessToken{
		Token:     accessTokenPrefix + random,
		IssuedAt:  now,
		ExpiresAt: security.ExpiresAt(s.clock, security.SecondsToDuration(s.Config.AccessTokenTTL)),
		ClientID:  clientID,
		Email:     email,
	}
	if err := s.store.CreateAccessToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}

	s.Logger.Debug("Issued access token",
		"token_prefix", util.SafeTruncate(token.Token, tokenIDLogLength),
		"client_id", clientID,
		"expires_at", token.ExpiresAt)
	return token, nil
}

// ExpiresIn returns the lifetime reported as expires_in, in seconds
func (s *Server) ExpiresIn() int64 {
	return s.Config.AccessTokenTTL
}

// newAuthorizationCode returns a fresh random authorization code
func newAuthorizationCode() (string, error) {
	return util.RandomAlphanumeric(codeLength)
}
