// Package instrumentation provides OpenTelemetry metrics and traces for the
// authorization server.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:        true,
//		ServiceName:    "oauth-server",
//		ServiceVersion: "1.0.0",
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// # Exporters
//
// Metrics go to a Prometheus registry owned by the Instrumentation
// (MetricsExporter "prometheus", the default) and are served by
// MetricsHandler. Traces are exported over OTLP/HTTP when TracesExporter is
// "otlp". When Enabled is false both are no-ops.
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// Authorization Flow:
//   - oauth.authorize.requests.total{client_id, outcome}
//   - oauth.login.attempts.total{outcome}
//   - oauth.code.issued.total{client_id}
//   - oauth.code.exchanges.total{client_id, success}
//   - oauth.token.issued.total{client_id, grant}
//
// Security:
//   - oauth.rate_limit.exceeded{endpoint}
//   - oauth.login.throttled
//   - oauth.audit.events.total{event_type}
//   - oauth.encryption.operations.total{operation}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.{clients,users,login_sessions,authorization_codes,access_tokens}.count
//
// # Cardinality
//
// client_id labels produce one series per registered client. Deployments with
// many thousands of clients should aggregate with recording rules or drop
// the label.
//
// # Security Considerations
//
// Never record codes, tokens, secrets, passwords or login IDs on spans or
// metric labels. Client IPs are only attached to spans when LogClientIPs is
// set.
package instrumentation
