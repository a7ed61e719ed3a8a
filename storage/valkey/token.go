package valkey

import (
	"context"
	"fmt"

	"github.com/giantswarm/oauth-core/internal/util"
	"github.com/giantswarm/oauth-core/storage"
)

// ============================================================
// AccessTokenStore Implementation
// ============================================================

// CreateAccessToken records an issued bearer token
func (s *Store) CreateAccessToken(ctx context.Context, token *storage.AccessToken) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("invalid access token")
	}
	if err := validateKeyLength(token.Token, "access token"); err != nil {
		return err
	}

	return s.observe(ctx, "create_access_token", func(ctx context.Context) error {
		j, err := toAccessTokenJSON(token, s.getEncryptor())
		if err != nil {
			return err
		}
		ttl := keyTTL(s.clock, token.ExpiresAt)
		if err := s.setJSON(ctx, s.accessTokenKey(token.Token), j, ttl); err != nil {
			return fmt.Errorf("failed to save access token: %w", err)
		}
		s.logger.Debug("Saved access token",
			"token_prefix", util.SafeTruncate(token.Token, tokenIDLogLength),
			"client_id", token.ClientID,
			"expires_at", token.ExpiresAt)
		return nil
	})
}

// GetAccessToken returns a stored access token
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	var at *storage.AccessToken
	err := s.observe(ctx, "get_access_token", func(ctx context.Context) error {
		if token == "" || len(token) > MaxKeyLength {
			return storage.ErrAccessTokenNotFound
		}

		var j accessTokenJSON
		found, err := s.getJSON(ctx, s.accessTokenKey(token), &j)
		if err != nil {
			return fmt.Errorf("failed to get access token: %w", err)
		}
		if !found {
			return storage.ErrAccessTokenNotFound
		}
		at, err = fromAccessTokenJSON(&j, s.getEncryptor())
		return err
	})
	if err != nil {
		return nil, err
	}
	return at, nil
}
