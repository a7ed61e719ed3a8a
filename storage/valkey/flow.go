package valkey

import (
	"context"
	"fmt"

	"github.com/giantswarm/oauth-core/internal/util"
	"github.com/giantswarm/oauth-core/storage"
)

// ============================================================
// LoginSessionStore Implementation
// ============================================================

// CreateLoginSession stores a pending login. The key lives until shortly after
// the session's expiry.
func (s *Store) CreateLoginSession(ctx context.Context, session *storage.LoginSession) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("invalid login session")
	}
	if err := validateKeyLength(session.ID, "login session ID"); err != nil {
		return err
	}

	return s.observe(ctx, "create_login_session", func(ctx context.Context) error {
		ttl := keyTTL(s.clock, session.ExpiresAt)
		if err := s.setJSON(ctx, s.loginSessionKey(session.ID), toLoginSessionJSON(session), ttl); err != nil {
			return fmt.Errorf("failed to save login session: %w", err)
		}
		s.logger.Debug("Saved login session",
			"login_prefix", loginLogID(session.ID),
			"client_id", session.ClientID,
			"expires_at", session.ExpiresAt)
		return nil
	})
}

// PopLoginSession atomically reads and deletes a login session.
// The caller decides whether the returned session has expired.
func (s *Store) PopLoginSession(ctx context.Context, id string) (*storage.LoginSession, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	var session *storage.LoginSession
	err := s.observe(ctx, "pop_login_session", func(ctx context.Context) error {
		if id == "" || len(id) > MaxKeyLength {
			return storage.ErrLoginSessionNotFound
		}

		var j loginSessionJSON
		found, err := s.popJSON(ctx, s.loginSessionKey(id), &j)
		if err != nil {
			return fmt.Errorf("failed to pop login session: %w", err)
		}
		if !found {
			return storage.ErrLoginSessionNotFound
		}
		session = fromLoginSessionJSON(&j)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ============================================================
// AuthorizationCodeStore Implementation
// ============================================================

// CreateAuthorizationCode stores a one-time authorization code
func (s *Store) CreateAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	if code == nil {
		return fmt.Errorf("invalid authorization code")
	}
	if err := validateKeyLength(code.Code, "authorization code"); err != nil {
		return err
	}

	return s.observe(ctx, "create_authorization_code", func(ctx context.Context) error {
		j, err := toAuthorizationCodeJSON(code, s.getEncryptor())
		if err != nil {
			return err
		}
		ttl := keyTTL(s.clock, code.Context.ExpiresAt)
		if err := s.setJSON(ctx, s.codeKey(code.Code), j, ttl); err != nil {
			return fmt.Errorf("failed to save authorization code: %w", err)
		}
		s.logger.Debug("Saved authorization code",
			"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
			"client_id", code.Context.ClientID)
		return nil
	})
}

// PopAuthorizationCode atomically reads and deletes an authorization code.
// Only one of any number of concurrent callers receives the code.
func (s *Store) PopAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	var ac *storage.AuthorizationCode
	err := s.observe(ctx, "pop_authorization_code", func(ctx context.Context) error {
		if code == "" || len(code) > MaxKeyLength {
			return storage.ErrAuthorizationCodeNotFound
		}

		var j authorizationCodeJSON
		found, err := s.popJSON(ctx, s.codeKey(code), &j)
		if err != nil {
			return fmt.Errorf("failed to pop authorization code: %w", err)
		}
		if !found {
			return storage.ErrAuthorizationCodeNotFound
		}
		ac, err = fromAuthorizationCodeJSON(&j, s.getEncryptor())
		return err
	})
	if err != nil {
		return nil, err
	}
	return ac, nil
}

// loginLogID returns the part of a login session id that is safe to log:
// the "login-" prefix plus the first characters of the random part
func loginLogID(id string) string {
	return util.SafeTruncate(id, len("login-")+tokenIDLogLength)
}
