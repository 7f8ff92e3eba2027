package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/distinctlyminty44/role-based-rls"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Invitation API
	InvitationsTotal metric.Int64Counter

	// Identity resolution outcomes (found, created, failed)
	ResolutionsTotal metric.Int64Counter

	// Ownership transfer
	TransfersTotal            metric.Int64Counter
	RelationsTransferredTotal metric.Int64Counter
	TransferDuration          metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments bind to the global meter provider, so they pick up InitTelemetry's
// provider even when created first.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.InvitationsTotal, _ = meter.Int64Counter(
		"rbrls.invitations.total",
		metric.WithDescription("Invitation API mutations by operation and outcome"),
		metric.WithUnit("{request}"),
	)

	m.ResolutionsTotal, _ = meter.Int64Counter(
		"rbrls.identity.resolutions.total",
		metric.WithDescription("Identity resolutions by outcome"),
		metric.WithUnit("{resolution}"),
	)

	m.TransfersTotal, _ = meter.Int64Counter(
		"rbrls.transfers.total",
		metric.WithDescription("Ownership transfers by outcome"),
		metric.WithUnit("{transfer}"),
	)

	m.RelationsTransferredTotal, _ = meter.Int64Counter(
		"rbrls.transfers.relations.total",
		metric.WithDescription("Relation rows moved from placeholder to verified users"),
		metric.WithUnit("{relation}"),
	)

	m.TransferDuration, _ = meter.Float64Histogram(
		"rbrls.transfers.duration",
		metric.WithDescription("Duration of ownership transfers"),
		metric.WithUnit("ms"),
	)

	return m
}
