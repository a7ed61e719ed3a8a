package valkey

import (
	"context"
	"fmt"

	"github.com/giantswarm/oauth-core/storage"
)

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient stores or replaces a client registration
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	if client == nil || client.ID == "" {
		return fmt.Errorf("invalid client")
	}
	return s.observe(ctx, "save_client", func(ctx context.Context) error {
		return s.putClient(ctx, client)
	})
}

func (s *Store) putClient(ctx context.Context, client *storage.Client) error {
	if err := validateKeyLength(client.ID, "client ID"); err != nil {
		return err
	}
	j, err := toClientJSON(client, s.getEncryptor())
	if err != nil {
		return err
	}
	if err := s.setJSON(ctx, s.clientKey(client.ID), j, 0); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	s.logger.Debug("Saved client", "client_id", client.ID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	var client *storage.Client
	err := s.observe(ctx, "get_client", func(ctx context.Context) error {
		if clientID == "" || len(clientID) > MaxKeyLength {
			return storage.ErrClientNotFound
		}

		var j clientJSON
		found, err := s.getJSON(ctx, s.clientKey(clientID), &j)
		if err != nil {
			return fmt.Errorf("failed to get client: %w", err)
		}
		if !found {
			return storage.ErrClientNotFound
		}

		client, err = fromClientJSON(&j, s.getEncryptor())
		return err
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// ============================================================
// UserStore Implementation
// ============================================================

// SaveUser stores or replaces a user account. The key is the normalized e-mail.
func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	if err := s.checkInitialized(); err != nil {
		return err
	}
	if user == nil || user.Email == "" {
		return fmt.Errorf("invalid user")
	}
	return s.observe(ctx, "save_user", func(ctx context.Context) error {
		return s.putUser(ctx, user)
	})
}

func (s *Store) putUser(ctx context.Context, user *storage.User) error {
	if err := validateKeyLength(user.Email, "email"); err != nil {
		return err
	}
	j, err := toUserJSON(user, s.getEncryptor())
	if err != nil {
		return err
	}
	if err := s.setJSON(ctx, s.userKey(user.Email), j, 0); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUserByEmail looks up a user case-insensitively by e-mail
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	if err := s.checkInitialized(); err != nil {
		return nil, err
	}

	var user *storage.User
	err := s.observe(ctx, "get_user", func(ctx context.Context) error {
		if storage.NormalizeEmail(email) == "" || len(email) > MaxKeyLength {
			return storage.ErrUserNotFound
		}

		var j userJSON
		found, err := s.getJSON(ctx, s.userKey(email), &j)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		if !found {
			return storage.ErrUserNotFound
		}

		user, err = fromUserJSON(&j, s.getEncryptor())
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
