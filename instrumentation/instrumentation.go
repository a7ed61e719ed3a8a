package instrumentation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty
	DefaultServiceName = "oauth-core"

	// DefaultServiceVersion is the default service version used when none is provided
	DefaultServiceVersion = "unknown"

	// scopePrefix prefixes every meter and tracer name
	scopePrefix = "github.com/giantswarm/oauth-core/"
)

// Metrics exporters
const (
	MetricsExporterPrometheus = "prometheus"
	MetricsExporterNone       = "none"
)

// Trace exporters
const (
	TracesExporterOTLP = "otlp"
	TracesExporterNone = "none"
)

// Config holds instrumentation configuration
type Config struct {
	// ServiceName is the name of the service
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Enabled controls whether instrumentation is active.
	// When false, no-op providers are used.
	Enabled bool

	// LogClientIPs controls whether client IP addresses are attached to spans.
	// Client IPs may be personal data under GDPR and similar regulations.
	LogClientIPs bool

	// MetricsExporter selects the metrics backend: "prometheus" (default) or "none"
	MetricsExporter string

	// TracesExporter selects the trace backend: "otlp" or "none" (default)
	TracesExporter string

	// OTLPEndpoint is the host:port of the OTLP/HTTP collector
	OTLPEndpoint string

	// OTLPInsecure disables TLS towards the collector
	OTLPInsecure bool

	// MetricReader replaces the configured metrics exporter. Used by tests
	// to read back recorded values with a sdkmetric.ManualReader.
	MetricReader sdkmetric.Reader

	// SpanExporter replaces the configured trace exporter. Spans are exported
	// synchronously, which suits in-memory exporters in tests.
	SpanExporter sdktrace.SpanExporter

	// Resource allows custom resource attributes.
	// If nil, a resource with service name and version is created.
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry instrumentation components
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	// metricsHandler serves the Prometheus registry; nil without the prometheus exporter
	metricsHandler http.Handler

	metrics *Metrics

	// Shutdown functions (registered during New() only)
	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}
	config.MetricsExporter = strings.ToLower(strings.TrimSpace(config.MetricsExporter))
	if config.MetricsExporter == "" {
		config.MetricsExporter = MetricsExporterPrometheus
	}
	config.TracesExporter = strings.ToLower(strings.TrimSpace(config.TracesExporter))
	if config.TracesExporter == "" {
		config.TracesExporter = TracesExporterNone
	}

	var res *resource.Resource
	var err error
	if config.Resource != nil {
		res = config.Resource
	} else {
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		if err := inst.initializeProviders(); err != nil {
			_ = inst.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to initialize providers: %w", err)
		}
	} else {
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// initializeProviders builds the metric and trace pipelines selected by the config
func (i *Instrumentation) initializeProviders() error {
	if err := i.initializeMeterProvider(); err != nil {
		return err
	}
	return i.initializeTracerProvider()
}

func (i *Instrumentation) initializeMeterProvider() error {
	var reader sdkmetric.Reader

	switch {
	case i.config.MetricReader != nil:
		reader = i.config.MetricReader
	case i.config.MetricsExporter == MetricsExporterPrometheus:
		// Own registry so several instances (tests, embedded servers) never collide
		registry := prometheus.NewRegistry()
		exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		reader = exporter
		i.metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	case i.config.MetricsExporter == MetricsExporterNone:
		i.meterProvider = noop.NewMeterProvider()
		return nil
	default:
		return fmt.Errorf("unsupported metrics exporter %q", i.config.MetricsExporter)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(i.resource),
		sdkmetric.WithReader(reader),
	)
	i.meterProvider = mp
	i.shutdownFuncs = append(i.shutdownFuncs, mp.Shutdown)
	return nil
}

func (i *Instrumentation) initializeTracerProvider() error {
	var opt sdktrace.TracerProviderOption

	switch {
	case i.config.SpanExporter != nil:
		opt = sdktrace.WithSyncer(i.config.SpanExporter)
	case i.config.TracesExporter == TracesExporterOTLP:
		if i.config.OTLPEndpoint == "" {
			return fmt.Errorf("otlp trace exporter requires an endpoint")
		}
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(i.config.OTLPEndpoint),
			otlptracehttp.WithTimeout(10 * time.Second),
		}
		if i.config.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(context.Background(), opts...)
		if err != nil {
			return fmt.Errorf("failed to create otlp trace exporter: %w", err)
		}
		opt = sdktrace.WithBatcher(exporter)
	case i.config.TracesExporter == TracesExporterNone:
		i.tracerProvider = tracenoop.NewTracerProvider()
		return nil
	default:
		return fmt.Errorf("unsupported traces exporter %q", i.config.TracesExporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(i.resource),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		opt,
	)
	i.tracerProvider = tp
	i.shutdownFuncs = append(i.shutdownFuncs, tp.Shutdown)
	return nil
}

// Shutdown flushes and stops all instrumentation providers.
// Only the first call has any effect.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error

	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			// Capture first error, but continue shutting down other components
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})

	return shutdownErr
}

// Meter returns a named meter for the given scope, such as "http", "server",
// "storage" or "security"
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a named tracer for the given scope
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the metrics holder for recording metric values
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// MetricsHandler returns the Prometheus scrape handler, or nil when the
// prometheus exporter is not active
func (i *Instrumentation) MetricsHandler() http.Handler {
	return i.metricsHandler
}

// TracerProvider returns the underlying tracer provider
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// ShouldLogClientIPs returns whether client IP addresses should be recorded
func (i *Instrumentation) ShouldLogClientIPs() bool {
	return i.config.LogClientIPs
}

// StorageSizeCallback returns the current size of a storage collection
type StorageSizeCallback func() int64

// StorageSizeCallbacks groups the size gauges a backend can report.
// Nil callbacks are skipped.
type StorageSizeCallbacks struct {
	Clients            StorageSizeCallback
	Users              StorageSizeCallback
	LoginSessions      StorageSizeCallback
	AuthorizationCodes StorageSizeCallback
	AccessTokens       StorageSizeCallback
}

// RegisterStorageSizeCallbacks registers callbacks for the storage size gauges.
// Backends call this once instrumentation is attached.
func (i *Instrumentation) RegisterStorageSizeCallbacks(cb StorageSizeCallbacks) (metric.Registration, error) {
	if i.meterProvider == nil {
		return nil, fmt.Errorf("meter provider not initialized")
	}

	m := i.metrics
	observe := func(o metric.Observer, gauge metric.Int64ObservableGauge, fn StorageSizeCallback) {
		if fn != nil {
			o.ObserveInt64(gauge, fn())
		}
	}

	return i.Meter("storage").RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			observe(o, m.StorageClientsCount, cb.Clients)
			observe(o, m.StorageUsersCount, cb.Users)
			observe(o, m.StorageLoginSessionsCount, cb.LoginSessions)
			observe(o, m.StorageAuthorizationCodesCount, cb.AuthorizationCodes)
			observe(o, m.StorageAccessTokensCount, cb.AccessTokens)
			return nil
		},
		m.StorageClientsCount,
		m.StorageUsersCount,
		m.StorageLoginSessionsCount,
		m.StorageAuthorizationCodesCount,
		m.StorageAccessTokensCount,
	)
}
