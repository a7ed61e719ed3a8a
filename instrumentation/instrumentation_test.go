package instrumentation

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantErr     bool
		wantHandler bool
	}{
		{
			name:   "disabled",
			config: Config{Enabled: false},
		},
		{
			name:        "enabled defaults to prometheus",
			config:      Config{Enabled: true, ServiceName: "test-service", ServiceVersion: "1.0.0"},
			wantHandler: true,
		},
		{
			name:   "metrics exporter none",
			config: Config{Enabled: true, MetricsExporter: "none"},
		},
		{
			name:    "unsupported metrics exporter",
			config:  Config{Enabled: true, MetricsExporter: "statsd"},
			wantErr: true,
		},
		{
			name:    "otlp without endpoint",
			config:  Config{Enabled: true, TracesExporter: "otlp"},
			wantErr: true,
		},
		{
			name:        "otlp with endpoint",
			config:      Config{Enabled: true, TracesExporter: "OTLP", OTLPEndpoint: "localhost:4318", OTLPInsecure: true},
			wantHandler: true,
		},
		{
			name:    "unsupported traces exporter",
			config:  Config{Enabled: true, TracesExporter: "zipkin"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer func() { _ = inst.Shutdown(context.Background()) }()

			if inst.Meter("http") == nil {
				t.Error("Meter('http') returned nil")
			}
			if inst.Tracer("server") == nil {
				t.Error("Tracer('server') returned nil")
			}
			if inst.Metrics() == nil {
				t.Error("Metrics() returned nil")
			}
			if inst.TracerProvider() == nil {
				t.Error("TracerProvider() returned nil")
			}
			if inst.MeterProvider() == nil {
				t.Error("MeterProvider() returned nil")
			}
			if got := inst.MetricsHandler() != nil; got != tt.wantHandler {
				t.Errorf("MetricsHandler() != nil = %v, want %v", got, tt.wantHandler)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if inst.config.ServiceName != DefaultServiceName {
		t.Errorf("ServiceName = %q, want %q", inst.config.ServiceName, DefaultServiceName)
	}
	if inst.config.ServiceVersion != DefaultServiceVersion {
		t.Errorf("ServiceVersion = %q, want %q", inst.config.ServiceVersion, DefaultServiceVersion)
	}
	if inst.ShouldLogClientIPs() {
		t.Error("ShouldLogClientIPs() = true, want false")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestMetricsHandler_ServesPrometheus(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	inst.Metrics().RecordHTTPRequest(context.Background(), "GET", "/authorize", 200, 12.5)

	rec := httptest.NewRecorder()
	inst.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(string(body), "oauth_http_requests") {
		t.Errorf("metrics output missing oauth_http_requests:\n%s", body)
	}
}

func TestRegisterStorageSizeCallbacks(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	inst, err := New(Config{Enabled: true, MetricReader: reader})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	reg, err := inst.RegisterStorageSizeCallbacks(StorageSizeCallbacks{
		Clients:            func() int64 { return 3 },
		Users:              func() int64 { return 1 },
		AuthorizationCodes: func() int64 { return 4 },
	})
	if err != nil {
		t.Fatalf("RegisterStorageSizeCallbacks() error = %v", err)
	}
	defer func() { _ = reg.Unregister() }()

	rm := collect(t, reader)

	want := map[string]int64{
		"storage.clients.count":             3,
		"storage.users.count":               1,
		"storage.authorization_codes.count": 4,
	}
	for name, value := range want {
		got, ok := gaugeValue(rm, name)
		if !ok {
			t.Errorf("gauge %s not reported", name)
			continue
		}
		if got != value {
			t.Errorf("gauge %s = %d, want %d", name, got, value)
		}
	}

	if _, ok := gaugeValue(rm, "storage.access_tokens.count"); ok {
		t.Error("gauge storage.access_tokens.count reported without callback")
	}
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func gaugeValue(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	m, ok := findMetric(rm, name)
	if !ok {
		return 0, false
	}
	g, ok := m.Data.(metricdata.Gauge[int64])
	if !ok || len(g.DataPoints) == 0 {
		return 0, false
	}
	return g.DataPoints[0].Value, true
}

func sumValue(rm metricdata.ResourceMetrics, name string) int64 {
	m, ok := findMetric(rm, name)
	if !ok {
		return 0
	}
	s, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		return 0
	}
	var total int64
	for _, dp := range s.DataPoints {
		total += dp.Value
	}
	return total
}
