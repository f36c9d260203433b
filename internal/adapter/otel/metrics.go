package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "spacegate"

// Resolution outcomes recorded on spacegate.resolve.total.
const (
	OutcomeResolved    = "resolved"
	OutcomeLocalAlias  = "local_alias"
	OutcomeNotFound    = "not_found"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds all Spacegate metric instruments. The zero value is unusable;
// build it with NewMetrics, which falls back to no-op instruments when no
// meter provider is installed.
type Metrics struct {
	ResolveTotal    metric.Int64Counter
	ResolveDuration metric.Float64Histogram
	AuthzDecisions  metric.Int64Counter
	TokenRejected   metric.Int64Counter
	BreakerChanges  metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ResolveTotal, err = meter.Int64Counter("spacegate.resolve.total",
		metric.WithDescription("Host-to-space resolutions by outcome"))
	if err != nil {
		return nil, err
	}

	m.ResolveDuration, err = meter.Float64Histogram("spacegate.resolve.duration_seconds",
		metric.WithDescription("Host-to-space resolution latency in seconds"))
	if err != nil {
		return nil, err
	}

	m.AuthzDecisions, err = meter.Int64Counter("spacegate.authz.decisions",
		metric.WithDescription("Authorization predicate evaluations by matching rule"))
	if err != nil {
		return nil, err
	}

	m.TokenRejected, err = meter.Int64Counter("spacegate.session.rejected",
		metric.WithDescription("Session tokens that failed verification"))
	if err != nil {
		return nil, err
	}

	m.BreakerChanges, err = meter.Int64Counter("spacegate.directory.breaker_transitions",
		metric.WithDescription("Directory circuit breaker state transitions"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordResolve counts one resolution and its latency.
func (m *Metrics) RecordResolve(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.ResolveTotal.Add(ctx, 1, attrs)
	m.ResolveDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordDecision counts one authorization decision.
func (m *Metrics) RecordDecision(ctx context.Context, reason string, allowed bool) {
	m.AuthzDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
		attribute.Bool("allowed", allowed),
	))
}

// RecordTokenRejected counts a token that failed verification.
func (m *Metrics) RecordTokenRejected(ctx context.Context) {
	m.TokenRejected.Add(ctx, 1)
}

// RecordBreakerChange counts a breaker transition into state to.
func (m *Metrics) RecordBreakerChange(ctx context.Context, to string) {
	m.BreakerChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}
