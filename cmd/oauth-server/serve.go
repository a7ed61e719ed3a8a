package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	oauth "github.com/giantswarm/oauth-core"
	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/server"
	"github.com/giantswarm/oauth-core/storage"
	"github.com/giantswarm/oauth-core/storage/cache"
	"github.com/giantswarm/oauth-core/storage/memory"
	"github.com/giantswarm/oauth-core/storage/postgres"
	"github.com/giantswarm/oauth-core/storage/valkey"
)

const (
	defaultListen          = ":8400"
	defaultShutdownTimeout = 15 * time.Second
	readHeaderTimeout      = 10 * time.Second

	storeMemory   = "memory"
	storeValkey   = "valkey"
	storePostgres = "postgres"
)

// serveOptions is the resolved configuration of the serve command
type serveOptions struct {
	Listen          string
	MetricsListen   string
	ShutdownTimeout time.Duration
	SeedFile        string

	Issuer            string
	CodeTTL           time.Duration
	TokenTTL          time.Duration
	SessionTTL        time.Duration
	TrustProxy        bool
	TrustedProxyCount int

	Store           string
	CleanupInterval time.Duration
	ValkeyAddr      string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyPrefix    string
	ValkeyTLS       bool
	PostgresDSN     string
	PostgresMigrate bool
	CacheTTL        time.Duration
	EncryptionKey   string

	RateLimit          float64
	RateBurst          int
	LoginMaxFailures   int
	LoginFailureWindow time.Duration
	Audit              bool

	TelemetryEnabled bool
	MetricsExporter  string
	TracesExporter   string
	OTLPEndpoint     string
	OTLPInsecure     bool
	LogClientIPs     bool

	LogLevel  string
	LogFormat string
}

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := loadServeOptions(v)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), opts.LogLevel, opts.LogFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return runServe(cmd.Context(), opts, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", defaultListen, "address of the OAuth listener (legacy PORT is honored when unset)")
	flags.String("metrics-listen", "", "address of the Prometheus /metrics listener; empty disables it")
	flags.Duration("shutdown-timeout", defaultShutdownTimeout, "grace period for in-flight requests on shutdown")
	flags.String("seed", "", "YAML file with clients and users loaded at startup")

	flags.String("issuer", "", "issuer URL advertised in metadata; derived from the request when empty")
	flags.Duration("code-ttl", time.Duration(server.DefaultAuthorizationCodeTTL)*time.Second, "authorization code lifetime")
	flags.Duration("token-ttl", time.Duration(server.DefaultAccessTokenTTL)*time.Second, "access token lifetime")
	flags.Duration("session-ttl", time.Duration(server.DefaultLoginSessionTTL)*time.Second, "login session lifetime")
	flags.Bool("trust-proxy", false, "trust X-Forwarded-For and X-Forwarded-Proto")
	flags.Int("trusted-proxy-count", 1, "number of reverse proxies in front of the server")

	flags.String("store", storeMemory, "storage backend: memory, valkey or postgres")
	flags.Duration("cleanup-interval", time.Minute, "expired record sweep interval of the memory store")
	flags.String("valkey-addr", "localhost:6379", "Valkey server address")
	flags.String("valkey-password", "", "Valkey password")
	flags.Int("valkey-db", 0, "Valkey database number")
	flags.String("valkey-prefix", valkey.DefaultKeyPrefix, "prefix for all Valkey keys")
	flags.Bool("valkey-tls", false, "connect to Valkey over TLS")
	flags.String("postgres-dsn", "", "PostgreSQL connection string")
	flags.Bool("postgres-migrate", true, "create the PostgreSQL schema on startup")
	flags.Duration("cache-ttl", 0, "cache client and user lookups for this long; 0 disables the cache")
	flags.String("encryption-key", "", "base64 AES-256 key sealing client secrets, passwords and e-mails in valkey/postgres")

	flags.Float64("rate-limit", 0, "requests per second per client IP on /login and /token; 0 disables")
	flags.Int("rate-burst", 20, "burst size of the per-IP rate limiter")
	flags.Int("login-max-failures", 0, "failed logins per IP before /login is blocked; 0 disables")
	flags.Duration("login-failure-window", 15*time.Minute, "window over which failed logins are counted")
	flags.Bool("audit", true, "emit security audit events")

	flags.Bool("telemetry", false, "enable OpenTelemetry metrics and traces")
	flags.String("metrics-exporter", instrumentation.MetricsExporterPrometheus, "metrics exporter: prometheus or none")
	flags.String("traces-exporter", instrumentation.TracesExporterNone, "traces exporter: otlp or none")
	flags.String("otlp-endpoint", "localhost:4318", "OTLP/HTTP collector host:port")
	flags.Bool("otlp-insecure", false, "disable TLS towards the OTLP collector")
	flags.Bool("log-client-ips", false, "attach client IPs to spans")
	bindFlags(v, flags)

	_ = v.BindEnv("port", "PORT")
	return cmd
}

func loadServeOptions(v *viper.Viper) (serveOptions, error) {
	opts := serveOptions{
		Listen:          v.GetString("listen"),
		MetricsListen:   v.GetString("metrics-listen"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		SeedFile:        v.GetString("seed"),

		Issuer:            v.GetString("issuer"),
		CodeTTL:           v.GetDuration("code-ttl"),
		TokenTTL:          v.GetDuration("token-ttl"),
		SessionTTL:        v.GetDuration("session-ttl"),
		TrustProxy:        v.GetBool("trust-proxy"),
		TrustedProxyCount: v.GetInt("trusted-proxy-count"),

		Store:           v.GetString("store"),
		CleanupInterval: v.GetDuration("cleanup-interval"),
		ValkeyAddr:      v.GetString("valkey-addr"),
		ValkeyPassword:  v.GetString("valkey-password"),
		ValkeyDB:        v.GetInt("valkey-db"),
		ValkeyPrefix:    v.GetString("valkey-prefix"),
		ValkeyTLS:       v.GetBool("valkey-tls"),
		PostgresDSN:     v.GetString("postgres-dsn"),
		PostgresMigrate: v.GetBool("postgres-migrate"),
		CacheTTL:        v.GetDuration("cache-ttl"),
		EncryptionKey:   v.GetString("encryption-key"),

		RateLimit:          v.GetFloat64("rate-limit"),
		RateBurst:          v.GetInt("rate-burst"),
		LoginMaxFailures:   v.GetInt("login-max-failures"),
		LoginFailureWindow: v.GetDuration("login-failure-window"),
		Audit:              v.GetBool("audit"),

		TelemetryEnabled: v.GetBool("telemetry"),
		MetricsExporter:  v.GetString("metrics-exporter"),
		TracesExporter:   v.GetString("traces-exporter"),
		OTLPEndpoint:     v.GetString("otlp-endpoint"),
		OTLPInsecure:     v.GetBool("otlp-insecure"),
		LogClientIPs:     v.GetBool("log-client-ips"),

		LogLevel:  v.GetString("log-level"),
		LogFormat: v.GetString("log-format"),
	}

	if !v.IsSet("listen") {
		if port := v.GetString("port"); port != "" {
			opts.Listen = net.JoinHostPort("", port)
		}
	}
	if opts.Listen == "" {
		opts.Listen = defaultListen
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	switch opts.Store {
	case storeMemory, storeValkey, storePostgres:
	default:
		return serveOptions{}, fmt.Errorf("unknown store %q (want memory, valkey or postgres)", opts.Store)
	}
	if opts.Store == storePostgres && opts.PostgresDSN == "" {
		return serveOptions{}, fmt.Errorf("--postgres-dsn is required with --store=postgres")
	}
	for name, d := range map[string]time.Duration{
		"code-ttl":    opts.CodeTTL,
		"token-ttl":   opts.TokenTTL,
		"session-ttl": opts.SessionTTL,
	} {
		if d < 0 {
			return serveOptions{}, fmt.Errorf("--%s must not be negative", name)
		}
	}
	return opts, nil
}

// serverConfig translates the options into the library configuration
func (o serveOptions) serverConfig(logger *slog.Logger) *oauth.ServerConfig {
	return &oauth.ServerConfig{
		Server: server.Config{
			Issuer:               o.Issuer,
			AuthorizationCodeTTL: int64(o.CodeTTL / time.Second),
			AccessTokenTTL:       int64(o.TokenTTL / time.Second),
			LoginSessionTTL:      int64(o.SessionTTL / time.Second),
			TrustProxy:           o.TrustProxy,
			TrustedProxyCount:    o.TrustedProxyCount,
		},
		Instrumentation: instrumentation.Config{
			ServiceName:     "oauth-server",
			ServiceVersion:  version,
			Enabled:         o.TelemetryEnabled,
			LogClientIPs:    o.LogClientIPs,
			MetricsExporter: o.MetricsExporter,
			TracesExporter:  o.TracesExporter,
			OTLPEndpoint:    o.OTLPEndpoint,
			OTLPInsecure:    o.OTLPInsecure,
		},
		RateLimit: oauth.RateLimitConfig{
			Rate:  o.RateLimit,
			Burst: o.RateBurst,
		},
		LoginThrottle: oauth.LoginThrottleConfig{
			MaxFailures: o.LoginMaxFailures,
			Window:      o.LoginFailureWindow,
		},
		EnableAuditLogging: o.Audit,
		Logger:             logger,
	}
}

// encryptingStore is implemented by backends that can encrypt codes and
// tokens at rest
type encryptingStore interface {
	SetEncryptor(enc *security.Encryptor)
}

// openStore connects the configured backend. The caller owns the returned
// store and must shut it down. The encryptor is nil when no key is set.
func openStore(ctx context.Context, opts serveOptions, logger *slog.Logger) (storage.Store, *security.Encryptor, error) {
	var store storage.Store
	switch opts.Store {
	case storeValkey:
		cfg := valkey.Config{
			Address:   opts.ValkeyAddr,
			Password:  opts.ValkeyPassword,
			DB:        opts.ValkeyDB,
			KeyPrefix: opts.ValkeyPrefix,
			Logger:    logger,
		}
		if opts.ValkeyTLS {
			cfg.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		s, err := valkey.New(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to valkey: %w", err)
		}
		store = s
	case storePostgres:
		s, err := postgres.New(ctx, postgres.Config{
			DSN:     opts.PostgresDSN,
			Migrate: opts.PostgresMigrate,
			Logger:  logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store = s
	default:
		store = memory.NewWithCleanup(opts.CleanupInterval)
	}

	var enc *security.Encryptor
	if opts.EncryptionKey != "" {
		es, ok := store.(encryptingStore)
		if !ok {
			_ = store.Shutdown(ctx)
			return nil, nil, fmt.Errorf("store %q does not support encryption at rest", opts.Store)
		}
		key, err := security.KeyFromBase64(opts.EncryptionKey)
		if err != nil {
			_ = store.Shutdown(ctx)
			return nil, nil, fmt.Errorf("invalid encryption key: %w", err)
		}
		enc, err = security.NewEncryptor(key)
		if err != nil {
			_ = store.Shutdown(ctx)
			return nil, nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		es.SetEncryptor(enc)
		logger.Info("Encryption at rest enabled", "store", opts.Store)
	}

	if opts.CacheTTL > 0 {
		store = cache.New(store, opts.CacheTTL, logger)
	}
	return store, enc, nil
}

// app is a configured server ready to listen
type app struct {
	opts    serveOptions
	server  *oauth.Server
	handler http.Handler
	logger  *slog.Logger
}

func newApp(ctx context.Context, opts serveOptions, logger *slog.Logger) (*app, error) {
	seed, err := loadSeed(opts.SeedFile)
	if err != nil {
		return nil, err
	}
	if len(seed.Clients) == 0 {
		logger.Warn("No clients configured; every authorize request will be rejected", "seed", opts.SeedFile)
	}

	store, enc, err := openStore(ctx, opts, logger)
	if err != nil {
		return nil, err
	}

	srv, err := oauth.NewServer(store, opts.serverConfig(logger))
	if err != nil {
		_ = store.Shutdown(ctx)
		return nil, err
	}
	if enc != nil {
		enc.SetRecorder(func(operation string) {
			srv.Instrumentation.Metrics().RecordEncryptionOperation(context.Background(), operation)
		})
	}

	if err := srv.Init(ctx, seed); err != nil {
		_ = srv.Shutdown(ctx)
		return nil, err
	}

	routes := oauth.NewHandler(srv, logger).Routes()
	handler := otelhttp.NewHandler(routes, "oauth-server",
		otelhttp.WithTracerProvider(srv.Instrumentation.TracerProvider()),
		otelhttp.WithMeterProvider(srv.Instrumentation.MeterProvider()),
	)

	return &app{opts: opts, server: srv, handler: handler, logger: logger}, nil
}

func runServe(ctx context.Context, opts serveOptions, logger *slog.Logger) error {
	a, err := newApp(ctx, opts, logger)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

// metricsHandler serves /metrics, or returns nil when no scrape endpoint exists
func (a *app) metricsHandler() http.Handler {
	h := a.server.Instrumentation.MetricsHandler()
	if h == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return mux
}

// run serves until ctx is cancelled or a listener fails, then drains
// in-flight requests and shuts the server down
func (a *app) run(ctx context.Context) error {
	servers := []*http.Server{{
		Addr:              a.opts.Listen,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}}
	if a.opts.MetricsListen != "" {
		if h := a.metricsHandler(); h != nil {
			servers = append(servers, &http.Server{
				Addr:              a.opts.MetricsListen,
				Handler:           h,
				ReadHeaderTimeout: readHeaderTimeout,
			})
		} else {
			a.logger.Warn("Metrics listener requested but the prometheus exporter is not active; enable --telemetry",
				"addr", a.opts.MetricsListen)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, hs := range servers {
		g.Go(func() error {
			a.logger.Info("Listening", "addr", hs.Addr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to serve on %s: %w", hs.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down", "timeout", a.opts.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, hs := range servers {
			if err := hs.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("failed to shut down %s: %w", hs.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.ShutdownTimeout)
	defer cancel()
	if serr := a.server.Shutdown(shutdownCtx); serr != nil {
		err = errors.Join(err, serr)
	}
	return err
}
