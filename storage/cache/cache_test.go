package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/giantswarm/oauth-core/internal/testutil"
	"github.com/giantswarm/oauth-core/storage"
	"github.com/giantswarm/oauth-core/storage/mock"
)

func newTestStore(t *testing.T) (*Store, *mock.Store) {
	t.Helper()
	backing := mock.New()
	s := New(backing, 0, nil)
	if err := s.Init(context.Background(), testutil.FixtureSeed(testutil.FixtureTime)); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, backing
}

func TestGetClient_ReadThrough(t *testing.T) {
	s, backing := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := s.GetClient(ctx, testutil.ClientID1)
		if err != nil {
			t.Fatalf("GetClient() error = %v", err)
		}
		if c.Secret != testutil.ClientSecret1 {
			t.Errorf("Secret = %q, want %q", c.Secret, testutil.ClientSecret1)
		}
	}

	if got := backing.CallCount("GetClient"); got != 1 {
		t.Errorf("backing GetClient calls = %d, want 1", got)
	}
}

func TestGetClient_ReturnsCopies(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	c, _ := s.GetClient(ctx, testutil.ClientID1)
	c.RedirectURIs[0] = "http://evil.example"

	again, _ := s.GetClient(ctx, testutil.ClientID1)
	if again.RedirectURIs[0] != testutil.RedirectURI1a {
		t.Errorf("RedirectURIs[0] = %q, want %q", again.RedirectURIs[0], testutil.RedirectURI1a)
	}
}

func TestGetClient_NotFoundNotCached(t *testing.T) {
	s, backing := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.GetClient(ctx, "missing"); !errors.Is(err, storage.ErrClientNotFound) {
			t.Errorf("GetClient() error = %v, want %v", err, storage.ErrClientNotFound)
		}
	}
	if got := backing.CallCount("GetClient"); got != 2 {
		t.Errorf("backing GetClient calls = %d, want 2", got)
	}
}

func TestGetUserByEmail_NormalizedKey(t *testing.T) {
	s, backing := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetUserByEmail(ctx, testutil.UserEmail); err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if _, err := s.GetUserByEmail(ctx, "  TEST@example.COM"); err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if got := backing.CallCount("GetUserByEmail"); got != 1 {
		t.Errorf("backing GetUserByEmail calls = %d, want 1", got)
	}
}

func TestInvalidate(t *testing.T) {
	s, backing := newTestStore(t)
	ctx := context.Background()

	_, _ = s.GetClient(ctx, testutil.ClientID1)
	_, _ = s.GetUserByEmail(ctx, testutil.UserEmail)
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}

	s.InvalidateClient(testutil.ClientID1)
	s.InvalidateUser(testutil.UserEmail)
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}

	_, _ = s.GetClient(ctx, testutil.ClientID1)
	if got := backing.CallCount("GetClient"); got != 2 {
		t.Errorf("backing GetClient calls = %d, want 2", got)
	}
}

func TestEphemeralOperationsPassThrough(t *testing.T) {
	s, backing := newTestStore(t)
	ctx := context.Background()

	if _, err := s.PopLoginSession(ctx, testutil.LoginSession); err != nil {
		t.Fatalf("PopLoginSession() error = %v", err)
	}
	if _, err := s.PopLoginSession(ctx, testutil.LoginSession); !errors.Is(err, storage.ErrLoginSessionNotFound) {
		t.Errorf("second PopLoginSession() error = %v, want %v", err, storage.ErrLoginSessionNotFound)
	}
	if got := backing.CallCount("PopLoginSession"); got != 2 {
		t.Errorf("backing PopLoginSession calls = %d, want 2", got)
	}
}
