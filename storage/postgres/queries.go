package postgres

import (
	"context"
	"fmt"

	"github.com/giantswarm/oauth-core/storage"
)

// ====================== CLIENTS ======================

func (s *Store) upsertClient(ctx context.Context, q querier, c *storage.Client) error {
	secret, err := s.encryptor.Encrypt(c.Secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt client secret: %w", err)
	}
	uris := c.RedirectURIs
	if uris == nil {
		uris = []string{}
	}
	const q1 = `
INSERT INTO oauth_clients (id, name, secret, secret_hash, redirect_uris)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name, secret = EXCLUDED.secret,
    secret_hash = EXCLUDED.secret_hash, redirect_uris = EXCLUDED.redirect_uris`
	if _, err := q.Exec(ctx, q1, c.ID, c.Name, secret, c.SecretHash, uris); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// SaveClient stores or replaces a client registration
func (s *Store) SaveClient(ctx context.Context, c *storage.Client) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	if c == nil || c.ID == "" {
		return fmt.Errorf("invalid client")
	}
	return s.upsertClient(ctx, s.pool, c)
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	const q = `SELECT id, name, secret, secret_hash, redirect_uris FROM oauth_clients WHERE id = $1`
	var c storage.Client
	err := s.pool.QueryRow(ctx, q, clientID).Scan(&c.ID, &c.Name, &c.Secret, &c.SecretHash, &c.RedirectURIs)
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	if c.Secret, err = s.encryptor.Decrypt(c.Secret); err != nil {
		return nil, fmt.Errorf("failed to decrypt client secret: %w", err)
	}
	return &c, nil
}

// ====================== USERS ======================

func (s *Store) upsertUser(ctx context.Context, q querier, u *storage.User) error {
	password, err := s.encryptor.Encrypt(u.Password)
	if err != nil {
		return fmt.Errorf("failed to encrypt user password: %w", err)
	}
	const q1 = `
INSERT INTO oauth_users (email, password, password_hash)
VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE
SET password = EXCLUDED.password, password_hash = EXCLUDED.password_hash`
	if _, err := q.Exec(ctx, q1, storage.NormalizeEmail(u.Email), password, u.PasswordHash); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// SaveUser stores or replaces a user account
func (s *Store) SaveUser(ctx context.Context, u *storage.User) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	if u == nil || u.Email == "" {
		return fmt.Errorf("invalid user")
	}
	return s.upsertUser(ctx, s.pool, u)
}

// GetUserByEmail looks up a user case-insensitively by e-mail
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	const q = `SELECT email, password, password_hash FROM oauth_users WHERE email = $1`
	var u storage.User
	err := s.pool.QueryRow(ctx, q, storage.NormalizeEmail(email)).Scan(&u.Email, &u.Password, &u.PasswordHash)
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if u.Password, err = s.encryptor.Decrypt(u.Password); err != nil {
		return nil, fmt.Errorf("failed to decrypt user password: %w", err)
	}
	return &u, nil
}

// ====================== LOGIN SESSIONS ======================

func insertLoginSession(ctx context.Context, q querier, ls *storage.LoginSession) error {
	if ls == nil || ls.ID == "" {
		return fmt.Errorf("invalid login session")
	}
	const q1 = `
INSERT INTO oauth_login_sessions (id, client_id, response_type, redirect_uri, original_request_url, state, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := q.Exec(ctx, q1, ls.ID, ls.ClientID, string(ls.ResponseType), ls.RedirectURI,
		ls.OriginalRequestURL, ls.State, ls.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save login session: %w", err)
	}
	return nil
}

// CreateLoginSession stores a pending login
func (s *Store) CreateLoginSession(ctx context.Context, ls *storage.LoginSession) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	return insertLoginSession(ctx, s.pool, ls)
}

// PopLoginSession deletes a login session and returns it.
// The caller decides whether it has expired.
func (s *Store) PopLoginSession(ctx context.Context, id string) (*storage.LoginSession, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	const q = `
DELETE FROM oauth_login_sessions WHERE id = $1
RETURNING id, client_id, response_type, redirect_uri, original_request_url, state, expires_at`
	var (
		ls           storage.LoginSession
		responseType string
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(&ls.ID, &ls.ClientID, &responseType, &ls.RedirectURI,
		&ls.OriginalRequestURL, &ls.State, &ls.ExpiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrLoginSessionNotFound
		}
		return nil, fmt.Errorf("failed to pop login session: %w", err)
	}
	ls.ResponseType = storage.ResponseType(responseType)
	return &ls, nil
}

// ====================== AUTHORIZATION CODES ======================

func insertAuthorizationCode(ctx context.Context, q querier, ac *storage.AuthorizationCode) error {
	if ac == nil || ac.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}
	const q1 = `
INSERT INTO oauth_authorization_codes (code, client_id, redirect_uri, email, expires_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := q.Exec(ctx, q1, ac.Code, ac.Context.ClientID, ac.Context.RedirectURI,
		ac.Context.Email, ac.Context.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	return nil
}

// CreateAuthorizationCode stores a one-time authorization code
func (s *Store) CreateAuthorizationCode(ctx context.Context, ac *storage.AuthorizationCode) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	return insertAuthorizationCode(ctx, s.pool, ac)
}

// PopAuthorizationCode deletes a code and returns it. The single
// DELETE ... RETURNING statement lets only one concurrent caller get the row.
func (s *Store) PopAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	const q = `
DELETE FROM oauth_authorization_codes WHERE code = $1
RETURNING code, client_id, redirect_uri, email, expires_at`
	var ac storage.AuthorizationCode
	err := s.pool.QueryRow(ctx, q, code).Scan(&ac.Code, &ac.Context.ClientID, &ac.Context.RedirectURI,
		&ac.Context.Email, &ac.Context.ExpiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrAuthorizationCodeNotFound
		}
		return nil, fmt.Errorf("failed to pop authorization code: %w", err)
	}
	return &ac, nil
}

// ====================== ACCESS TOKENS ======================

func insertAccessToken(ctx context.Context, q querier, at *storage.AccessToken) error {
	if at == nil || at.Token == "" {
		return fmt.Errorf("invalid access token")
	}
	const q1 = `
INSERT INTO oauth_access_tokens (token, client_id, email, issued_at, expires_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := q.Exec(ctx, q1, at.Token, at.ClientID, at.Email, at.IssuedAt.UTC(), at.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

// CreateAccessToken records an issued bearer token
func (s *Store) CreateAccessToken(ctx context.Context, at *storage.AccessToken) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	return insertAccessToken(ctx, s.pool, at)
}

// GetAccessToken returns a stored access token
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	const q = `SELECT token, client_id, email, issued_at, expires_at FROM oauth_access_tokens WHERE token = $1`
	var at storage.AccessToken
	err := s.pool.QueryRow(ctx, q, token).Scan(&at.Token, &at.ClientID, &at.Email, &at.IssuedAt, &at.ExpiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrAccessTokenNotFound
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	return &at, nil
}
