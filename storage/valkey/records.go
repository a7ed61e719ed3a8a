package valkey

import (
	"fmt"
	"time"

	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

// JSON record shapes persisted in Valkey. Sensitive fields are sealed by the
// store's encryptor when one is configured.

type clientJSON struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Secret       string   `json:"secret,omitempty"`
	SecretHash   string   `json:"secret_hash,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
}

type userJSON struct {
	Email        string `json:"email"`
	Password     string `json:"password,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

type loginSessionJSON struct {
	ID                 string    `json:"id"`
	ClientID           string    `json:"client_id"`
	ResponseType       string    `json:"response_type"`
	RedirectURI        *string   `json:"redirect_uri,omitempty"`
	OriginalRequestURL string    `json:"original_request_url"`
	ExpiresAt          time.Time `json:"expires_at"`
	State              *string   `json:"state,omitempty"`
}

type authorizationCodeJSON struct {
	Code        string    `json:"code"`
	ClientID    string    `json:"client_id"`
	RedirectURI *string   `json:"redirect_uri,omitempty"`
	Email       string    `json:"email"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type accessTokenJSON struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ============================================================
// Conversions
// ============================================================

func toClientJSON(c *storage.Client, enc *security.Encryptor) (*clientJSON, error) {
	secret, err := enc.Encrypt(c.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt client secret: %w", err)
	}
	hash, err := enc.Encrypt(c.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt client secret hash: %w", err)
	}
	return &clientJSON{
		ID:           c.ID,
		Name:         c.Name,
		Secret:       secret,
		SecretHash:   hash,
		RedirectURIs: append([]string(nil), c.RedirectURIs...),
	}, nil
}

func fromClientJSON(j *clientJSON, enc *security.Encryptor) (*storage.Client, error) {
	secret, err := enc.Decrypt(j.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt client secret: %w", err)
	}
	hash, err := enc.Decrypt(j.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt client secret hash: %w", err)
	}
	return &storage.Client{
		ID:           j.ID,
		Name:         j.Name,
		Secret:       secret,
		SecretHash:   hash,
		RedirectURIs: j.RedirectURIs,
	}, nil
}

func toUserJSON(u *storage.User, enc *security.Encryptor) (*userJSON, error) {
	password, err := enc.Encrypt(u.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt user password: %w", err)
	}
	hash, err := enc.Encrypt(u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt user password hash: %w", err)
	}
	return &userJSON{
		Email:        storage.NormalizeEmail(u.Email),
		Password:     password,
		PasswordHash: hash,
	}, nil
}

func fromUserJSON(j *userJSON, enc *security.Encryptor) (*storage.User, error) {
	password, err := enc.Decrypt(j.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt user password: %w", err)
	}
	hash, err := enc.Decrypt(j.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt user password hash: %w", err)
	}
	return &storage.User{
		Email:        j.Email,
		Password:     password,
		PasswordHash: hash,
	}, nil
}

func toLoginSessionJSON(ls *storage.LoginSession) *loginSessionJSON {
	return &loginSessionJSON{
		ID:                 ls.ID,
		ClientID:           ls.ClientID,
		ResponseType:       string(ls.ResponseType),
		RedirectURI:        ls.RedirectURI,
		OriginalRequestURL: ls.OriginalRequestURL,
		ExpiresAt:          ls.ExpiresAt.UTC(),
		State:              ls.State,
	}
}

func fromLoginSessionJSON(j *loginSessionJSON) *storage.LoginSession {
	return &storage.LoginSession{
		ID:                 j.ID,
		ClientID:           j.ClientID,
		ResponseType:       storage.ResponseType(j.ResponseType),
		RedirectURI:        j.RedirectURI,
		OriginalRequestURL: j.OriginalRequestURL,
		ExpiresAt:          j.ExpiresAt,
		State:              j.State,
	}
}

func toAuthorizationCodeJSON(ac *storage.AuthorizationCode, enc *security.Encryptor) (*authorizationCodeJSON, error) {
	email, err := enc.Encrypt(ac.Context.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt code email: %w", err)
	}
	return &authorizationCodeJSON{
		Code:        ac.Code,
		ClientID:    ac.Context.ClientID,
		RedirectURI: ac.Context.RedirectURI,
		Email:       email,
		ExpiresAt:   ac.Context.ExpiresAt.UTC(),
	}, nil
}

func fromAuthorizationCodeJSON(j *authorizationCodeJSON, enc *security.Encryptor) (*storage.AuthorizationCode, error) {
	email, err := enc.Decrypt(j.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt code email: %w", err)
	}
	return &storage.AuthorizationCode{
		Code: j.Code,
		Context: storage.CodeContext{
			ClientID:    j.ClientID,
			RedirectURI: j.RedirectURI,
			Email:       email,
			ExpiresAt:   j.ExpiresAt,
		},
	}, nil
}

func toAccessTokenJSON(at *storage.AccessToken, enc *security.Encryptor) (*accessTokenJSON, error) {
	email, err := enc.Encrypt(at.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt token email: %w", err)
	}
	return &accessTokenJSON{
		Token:     at.Token,
		ClientID:  at.ClientID,
		Email:     email,
		IssuedAt:  at.IssuedAt.UTC(),
		ExpiresAt: at.ExpiresAt.UTC(),
	}, nil
}

func fromAccessTokenJSON(j *accessTokenJSON, enc *security.Encryptor) (*storage.AccessToken, error) {
	email, err := enc.Decrypt(j.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token email: %w", err)
	}
	return &storage.AccessToken{
		Token:     j.Token,
		ClientID:  j.ClientID,
		Email:     email,
		IssuedAt:  j.IssuedAt,
		ExpiresAt: j.ExpiresAt,
	}, nil
}
