package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments of the authorization server.
// Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Authorization Flow Metrics
	AuthorizeRequestsTotal metric.Int64Counter
	LoginAttemptsTotal     metric.Int64Counter
	CodesIssuedTotal       metric.Int64Counter
	CodeExchangesTotal     metric.Int64Counter
	TokensIssuedTotal      metric.Int64Counter

	// Security Metrics
	RateLimitExceeded metric.Int64Counter
	LoginThrottled    metric.Int64Counter
	AuditEventsTotal  metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal          metric.Int64Counter
	StorageOperationDuration       metric.Float64Histogram
	StorageClientsCount            metric.Int64ObservableGauge
	StorageUsersCount              metric.Int64ObservableGauge
	StorageLoginSessionsCount      metric.Int64ObservableGauge
	StorageAuthorizationCodesCount metric.Int64ObservableGauge
	StorageAccessTokensCount       metric.Int64ObservableGauge

	// Encryption Metrics
	EncryptionOperationsTotal metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var err error
	counter := func(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			err = fmt.Errorf("failed to create %s counter: %w", name, err)
		}
		return c
	}
	histogram := func(meter metric.Meter, name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
		if err != nil {
			err = fmt.Errorf("failed to create %s histogram: %w", name, err)
		}
		return h
	}
	gauge := func(name, desc string) metric.Int64ObservableGauge {
		if err != nil {
			return nil
		}
		var g metric.Int64ObservableGauge
		g, err = storageMeter.Int64ObservableGauge(name, metric.WithDescription(desc), metric.WithUnit("{item}"))
		if err != nil {
			err = fmt.Errorf("failed to create %s gauge: %w", name, err)
		}
		return g
	}

	m.HTTPRequestsTotal = counter(httpMeter, "oauth.http.requests.total", "Total number of HTTP requests", "{request}")
	m.HTTPRequestDuration = histogram(httpMeter, "oauth.http.request.duration", "HTTP request duration in milliseconds")

	m.AuthorizeRequestsTotal = counter(serverMeter, "oauth.authorize.requests.total", "Authorize requests by outcome", "{request}")
	m.LoginAttemptsTotal = counter(serverMeter, "oauth.login.attempts.total", "Login form submissions by outcome", "{attempt}")
	m.CodesIssuedTotal = counter(serverMeter, "oauth.code.issued.total", "Authorization codes issued", "{code}")
	m.CodeExchangesTotal = counter(serverMeter, "oauth.code.exchanges.total", "Authorization code exchanges by outcome", "{exchange}")
	m.TokensIssuedTotal = counter(serverMeter, "oauth.token.issued.total", "Access tokens issued by grant", "{token}")

	m.RateLimitExceeded = counter(securityMeter, "oauth.rate_limit.exceeded", "Number of rate limit violations", "{violation}")
	m.LoginThrottled = counter(securityMeter, "oauth.login.throttled", "Login attempts rejected after repeated failures", "{attempt}")
	m.AuditEventsTotal = counter(securityMeter, "oauth.audit.events.total", "Total number of audit events", "{event}")
	m.EncryptionOperationsTotal = counter(securityMeter, "oauth.encryption.operations.total", "Field encryption and decryption operations", "{operation}")

	m.StorageOperationTotal = counter(storageMeter, "storage.operation.total", "Total number of storage operations", "{operation}")
	m.StorageOperationDuration = histogram(storageMeter, "storage.operation.duration", "Storage operation duration in milliseconds")
	m.StorageClientsCount = gauge("storage.clients.count", "Registered clients")
	m.StorageUsersCount = gauge("storage.users.count", "Registered users")
	m.StorageLoginSessionsCount = gauge("storage.login_sessions.count", "Pending login sessions")
	m.StorageAuthorizationCodesCount = gauge("storage.authorization_codes.count", "Unredeemed authorization codes")
	m.StorageAccessTokensCount = gauge("storage.access_tokens.count", "Stored access tokens")

	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuthorizeRequest records an authorize request. outcome is
// "login_page" on success or the error kind on rejection.
func (m *Metrics) RecordAuthorizeRequest(ctx context.Context, clientID, outcome string) {
	if m == nil {
		return
	}
	m.AuthorizeRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("outcome", outcome),
	))
}

// RecordLoginAttempt records a login form submission
func (m *Metrics) RecordLoginAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCodeIssued records an issued authorization code
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.CodesIssuedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordCodeExchange records an authorization code exchange attempt
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID string, success bool) {
	if m == nil {
		return
	}
	m.CodeExchangesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("success", success),
	))
}

// RecordTokenIssued records an issued access token. grant is
// "authorization_code" or "implicit".
func (m *Metrics) RecordTokenIssued(ctx context.Context, clientID, grant string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("grant", grant),
	))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordLoginThrottled records a login rejected by the failure throttle
func (m *Metrics) RecordLoginThrottled(ctx context.Context) {
	if m == nil {
		return
	}
	m.LoginThrottled.Add(ctx, 1)
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	if m == nil {
		return
	}
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordEncryptionOperation records a field encryption or decryption
func (m *Metrics) RecordEncryptionOperation(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.EncryptionOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
