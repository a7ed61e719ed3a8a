package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage/cache"
	"github.com/giantswarm/oauth-core/storage/memory"
)

// parseServe resolves serve options from args plus the current environment
func parseServe(t *testing.T, args ...string) (serveOptions, error) {
	t.Helper()
	v := viper.New()
	root := newRootCommand(v)
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags(args))
	require.NoError(t, loadConfigFile(v))
	return loadServeOptions(v)
}

func TestLoadServeOptions_Defaults(t *testing.T) {
	opts, err := parseServe(t)
	require.NoError(t, err)

	assert.Equal(t, ":8400", opts.Listen)
	assert.Equal(t, storeMemory, opts.Store)
	assert.Equal(t, 10*time.Minute, opts.CodeTTL)
	assert.Equal(t, time.Hour, opts.TokenTTL)
	assert.Equal(t, 8*time.Hour, opts.SessionTTL)
	assert.Equal(t, defaultShutdownTimeout, opts.ShutdownTimeout)
	assert.Equal(t, "info", opts.LogLevel)
	assert.True(t, opts.Audit)

	cfg := opts.serverConfig(discardLogger())
	assert.Equal(t, int64(600), cfg.Server.AuthorizationCodeTTL)
	assert.Equal(t, int64(3600), cfg.Server.AccessTokenTTL)
	assert.Equal(t, int64(28800), cfg.Server.LoginSessionTTL)
	assert.False(t, cfg.RateLimit.Enabled())
	assert.False(t, cfg.LoginThrottle.Enabled())
}

func TestLoadServeOptions_Precedence(t *testing.T) {
	t.Run("environment", func(t *testing.T) {
		t.Setenv("OAUTH_LISTEN", ":9000")
		t.Setenv("OAUTH_TOKEN_TTL", "30m")
		t.Setenv("OAUTH_RATE_LIMIT", "2.5")

		opts, err := parseServe(t)
		require.NoError(t, err)
		assert.Equal(t, ":9000", opts.Listen)
		assert.Equal(t, 30*time.Minute, opts.TokenTTL)
		assert.InDelta(t, 2.5, opts.RateLimit, 0.001)
	})

	t.Run("flag beats environment", func(t *testing.T) {
		t.Setenv("OAUTH_LISTEN", ":9000")

		opts, err := parseServe(t, "--listen", ":9100")
		require.NoError(t, err)
		assert.Equal(t, ":9100", opts.Listen)
	})

	t.Run("legacy PORT", func(t *testing.T) {
		t.Setenv("PORT", "8500")

		opts, err := parseServe(t)
		require.NoError(t, err)
		assert.Equal(t, ":8500", opts.Listen)
	})

	t.Run("OAUTH_LISTEN beats PORT", func(t *testing.T) {
		t.Setenv("PORT", "8500")
		t.Setenv("OAUTH_LISTEN", ":9000")

		opts, err := parseServe(t)
		require.NoError(t, err)
		assert.Equal(t, ":9000", opts.Listen)
	})

	t.Run("config file", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "listen: \":9200\"\nissuer: https://auth.example.com\nlogin-max-failures: 5\n")

		opts, err := parseServe(t, "--config", path)
		require.NoError(t, err)
		assert.Equal(t, ":9200", opts.Listen)
		assert.Equal(t, "https://auth.example.com", opts.Issuer)
		assert.Equal(t, 5, opts.LoginMaxFailures)
	})

	t.Run("environment beats config file", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "listen: \":9200\"\n")
		t.Setenv("OAUTH_LISTEN", ":9000")

		opts, err := parseServe(t, "--config", path)
		require.NoError(t, err)
		assert.Equal(t, ":9000", opts.Listen)
	})
}

func TestLoadServeOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown store", args: []string{"--store", "sqlite"}},
		{name: "postgres without dsn", args: []string{"--store", "postgres"}},
		{name: "negative ttl", args: []string{"--code-ttl=-1m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseServe(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, enc, err := openStore(ctx, serveOptions{Store: storeMemory}, discardLogger())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Shutdown(ctx) })

		assert.IsType(t, &memory.Store{}, store)
		assert.Nil(t, enc)
	})

	t.Run("cached", func(t *testing.T) {
		store, _, err := openStore(ctx, serveOptions{Store: storeMemory, CacheTTL: time.Minute}, discardLogger())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Shutdown(ctx) })

		assert.IsType(t, &cache.Store{}, store)
	})

	t.Run("memory rejects encryption key", func(t *testing.T) {
		key, err := security.GenerateKey()
		require.NoError(t, err)

		_, _, err = openStore(ctx, serveOptions{Store: storeMemory, EncryptionKey: security.KeyToBase64(key)}, discardLogger())
		assert.ErrorContains(t, err, "does not support encryption")
	})
}

func TestNewApp_ServesSeededClients(t *testing.T) {
	ctx := context.Background()
	opts, err := parseServe(t, "--seed", writeFile(t, "seed.yaml", testSeedYAML))
	require.NoError(t, err)

	a, err := newApp(ctx, opts, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.server.Shutdown(ctx) })

	ts := httptest.NewServer(a.handler)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	q := url.Values{
		"client_id":     {"1"},
		"response_type": {"code"},
		"redirect_uri":  {"http://localhost:8497"},
	}
	resp, err = http.Get(ts.URL + "/authorize?" + q.Encode())
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `name="login_id"`)
}

func TestNewApp_BadSeed(t *testing.T) {
	opts, err := parseServe(t, "--seed", writeFile(t, "seed.yaml", "clients:\n  - name: x\n"))
	require.NoError(t, err)

	_, err = newApp(context.Background(), opts, discardLogger())
	assert.Error(t, err)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	opts, err := parseServe(t, "--listen", "127.0.0.1:0", "--metrics-listen", "127.0.0.1:0", "--shutdown-timeout", "2s")
	require.NoError(t, err)

	a, err := newApp(context.Background(), opts, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestApp_MetricsHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled telemetry has no endpoint", func(t *testing.T) {
		opts, err := parseServe(t)
		require.NoError(t, err)
		a, err := newApp(ctx, opts, discardLogger())
		require.NoError(t, err)
		t.Cleanup(func() { _ = a.server.Shutdown(ctx) })

		assert.Nil(t, a.metricsHandler())
	})

	t.Run("prometheus exporter", func(t *testing.T) {
		opts, err := parseServe(t, "--telemetry", "--seed", writeFile(t, "seed.yaml", testSeedYAML))
		require.NoError(t, err)
		a, err := newApp(ctx, opts, discardLogger())
		require.NoError(t, err)
		t.Cleanup(func() { _ = a.server.Shutdown(ctx) })

		rr := httptest.NewRecorder()
		a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/authorize?client_id=1&response_type=code", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		h := a.metricsHandler()
		require.NotNil(t, h)
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "oauth_authorize_requests")
	})
}

func TestServeCommand_EncryptionKeyUsage(t *testing.T) {
	serve, _, err := newRootCommand(viper.New()).Find([]string{"serve"})
	require.NoError(t, err)

	flag := serve.Flags().Lookup("encryption-key")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Usage, "valkey/postgres")
	assert.NotContains(t, flag.Usage, "codes and tokens")
}
