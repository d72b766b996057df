package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/rentdesk"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Onboarding session metrics
	SessionsStartedTotal metric.Int64Counter
	SessionsResumedTotal metric.Int64Counter
	StepsSubmittedTotal  metric.Int64Counter
	StepsRejectedTotal   metric.Int64Counter
	SessionsExpiredTotal metric.Int64Counter

	// Completion metrics
	CompletionsTotal         metric.Int64Counter
	PartialProvisioningTotal metric.Int64Counter
	CompletionDuration       metric.Float64Histogram
	ProvisioningStepDuration metric.Float64Histogram
	SessionConflictsTotal    metric.Int64Counter

	// Reaper metrics
	SessionsReapedTotal metric.Int64Counter
	ReapRunsTotal       metric.Int64Counter
	ReapErrorsTotal     metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Onboarding session metrics
	m.SessionsStartedTotal, _ = meter.Int64Counter(
		"rentdesk.onboarding.sessions.started.total",
		metric.WithDescription("Total number of onboarding sessions created"),
		metric.WithUnit("{session}"),
	)

	m.SessionsResumedTotal, _ = meter.Int64Counter(
		"rentdesk.onboarding.sessions.resumed.total",
		metric.WithDescription("Total number of start requests that returned an existing session"),
		metric.WithUnit("{session}"),
	)

	m.StepsSubmittedTotal, _ = meter.Int64Counter(
		"rentdesk.onboarding.steps.submitted.total",
		metric.WithDescription("Total number of onboarding steps accepted"),
		metric.WithUnit("{step}"),
	)

	m.StepsRejectedTotal, _ = meter.Int64Counter(
		"rentdesk.onboarding.steps.rejected.total",
		metric.WithDescription("Total number of onboarding step submissions rejected"),
		metric.WithUnit("{step}"),
	)

	m.SessionsExpiredTotal, _ = meter.Int64Counter(
		"rentdesk.onboarding.sessions.expired.total",
		metric.WithDescription("Total number of sessions expired lazily on access"),
		metric.WithUnit("{session}"),
	)

	// Completion metrics
	m.CompletionsTotal, _ = meter.Int64Counter(
		"rentdesk.onboarding.completions.total",
		metric.WithDescription("Total number of onboarding sessions completed"),
		metric.WithUnit("{session}"),
	)

	m.PartialProvisioningTotal, _ = meter.Int64Counter(
		"rentdesk.onboarding.partial_provisioning.total",
		metric.WithDescription("Total number of completions that failed after creating entities"),
		metric.WithUnit("{failure}"),
	)

	m.CompletionDuration, _ = meter.Float64Histogram(
		"rentdesk.onboarding.completion.duration",
		metric.WithDescription("Duration of onboarding completion"),
		metric.WithUnit("ms"),
	)

	m.ProvisioningStepDuration, _ = meter.Float64Histogram(
		"rentdesk.onboarding.provisioning_step.duration",
		metric.WithDescription("Duration of individual provisioning steps"),
		metric.WithUnit("ms"),
	)

	m.SessionConflictsTotal, _ = meter.Int64Counter(
		"rentdesk.onboarding.session_conflicts.total",
		metric.WithDescription("Total number of conditional session writes lost to a concurrent writer"),
		metric.WithUnit("{conflict}"),
	)

	// Reaper metrics
	m.SessionsReapedTotal, _ = meter.Int64Counter(
		"rentdesk.onboarding.sessions.reaped.total",
		metric.WithDescription("Total number of sessions transitioned by the reaper"),
		metric.WithUnit("{session}"),
	)

	m.ReapRunsTotal, _ = meter.Int64Counter(
		"rentdesk.onboarding.reap.runs.total",
		metric.WithDescription("Total number of reaper sweeps"),
		metric.WithUnit("{run}"),
	)

	m.ReapErrorsTotal, _ = meter.Int64Counter(
		"rentdesk.onboarding.reap.errors.total",
		metric.WithDescription("Total number of reaper sweeps that failed"),
		metric.WithUnit("{error}"),
	)

	return m
}
