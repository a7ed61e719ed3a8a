package postgres

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth-core/internal/testutil"
	"github.com/giantswarm/oauth-core/storage"
)

// testStore connects to POSTGRES_TEST_DSN and skips when it is unset.
func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	store, err := New(ctx, Config{DSN: dsn, Migrate: true})
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}

	for _, table := range []string{"oauth_clients", "oauth_users", "oauth_login_sessions", "oauth_authorization_codes", "oauth_access_tokens"} {
		_, _ = store.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table)
	}
	require.NoError(t, store.Init(ctx, testutil.FixtureSeed(testutil.FixtureTime)))

	t.Cleanup(func() { _ = store.Shutdown(context.Background()) })
	return store
}

func TestNew_RequiresDSN(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestStore_GetClient(t *testing.T) {
	store := testStore(t)

	client, err := store.GetClient(context.Background(), testutil.ClientID1)
	require.NoError(t, err)
	assert.Equal(t, testutil.ClientSecret1, client.Secret)
	assert.Contains(t, client.RedirectURIs, testutil.RedirectURI1a)

	_, err = store.GetClient(context.Background(), "unknown")
	assert.ErrorIs(t, err, storage.ErrClientNotFound)
}

func TestStore_GetUserByEmail_CaseInsensitive(t *testing.T) {
	store := testStore(t)

	user, err := store.GetUserByEmail(context.Background(), "TEST@Example.com")
	require.NoError(t, err)
	assert.Equal(t, testutil.UserEmail, user.Email)
}

func TestStore_PopLoginSession(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	ls, err := store.PopLoginSession(ctx, testutil.LoginSessionWithState)
	require.NoError(t, err)
	assert.Equal(t, testutil.FixtureState, storage.StringValue(ls.State))
	assert.Equal(t, storage.ResponseTypeCode, ls.ResponseType)

	_, err = store.PopLoginSession(ctx, testutil.LoginSessionWithState)
	assert.ErrorIs(t, err, storage.ErrLoginSessionNotFound)
}

func TestStore_PopAuthorizationCode_Concurrent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.PopAuthorizationCode(ctx, testutil.CodeValid); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestStore_AccessTokenAndCleanup(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAccessToken(ctx, &storage.AccessToken{
		Token:     "at-pg",
		ClientID:  testutil.ClientID1,
		Email:     testutil.UserEmail,
		IssuedAt:  testutil.FixtureTime,
		ExpiresAt: testutil.FixtureTime.Add(time.Hour),
	}))

	got, err := store.GetAccessToken(ctx, "at-pg")
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(testutil.FixtureTime.Add(time.Hour)))

	removed, err := store.Cleanup(ctx, testutil.FixtureTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Positive(t, removed)

	_, err = store.GetAccessToken(ctx, "at-pg")
	assert.ErrorIs(t, err, storage.ErrAccessTokenNotFound)
}
