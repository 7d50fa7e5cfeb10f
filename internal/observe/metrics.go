// Package observe records capture metrics through the OpenTelemetry API and
// bridges them to a Prometheus /metrics endpoint.
//
// Tests should build [Metrics] with [NewMetrics] over a private
// [metric.MeterProvider] so instruments do not leak between cases.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/rbright/hark"

// Metrics holds the instruments recorded by the capture pipeline. All fields
// are safe for concurrent use.
type Metrics struct {
	// Captures counts finished captures by reason (stop, end_of_utterance,
	// max_duration, cancel, fault).
	Captures metric.Int64Counter

	// CaptureDuration tracks recorded audio length.
	CaptureDuration metric.Float64Histogram

	// StageDuration tracks post-capture work. Use with attribute stage
	// (upload, handoff) and status.
	StageDuration metric.Float64Histogram

	// Faults counts device faults during capture.
	Faults metric.Int64Counter

	// ActiveCaptures is 1 while a capture is live.
	ActiveCaptures metric.Int64UpDownCounter

	// InputLevel is the most recent input level in dBFS.
	InputLevel metric.Float64Gauge

	// MeterClients tracks connected level-stream subscribers.
	MeterClients metric.Int64UpDownCounter
}

var durationBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Captures, err = m.Int64Counter("hark.captures",
		metric.WithDescription("Finished captures by termination reason."),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("hark.capture.duration",
		metric.WithDescription("Length of recorded audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("hark.stage.duration",
		metric.WithDescription("Latency of post-capture stages."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Faults, err = m.Int64Counter("hark.capture.faults",
		metric.WithDescription("Device faults during capture."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCaptures, err = m.Int64UpDownCounter("hark.capture.active",
		metric.WithDescription("Captures currently holding the input device."),
	); err != nil {
		return nil, err
	}
	if met.InputLevel, err = m.Float64Gauge("hark.input.level",
		metric.WithDescription("Most recent input level."),
		metric.WithUnit("dBFS"),
	); err != nil {
		return nil, err
	}
	if met.MeterClients, err = m.Int64UpDownCounter("hark.meter.clients",
		metric.WithDescription("Connected level-stream subscribers."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordCapture records one finished capture.
func (m *Metrics) RecordCapture(ctx context.Context, reason string, length time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	m.Captures.Add(ctx, 1, attrs)
	if length > 0 {
		m.CaptureDuration.Record(ctx, length.Seconds(), attrs)
	}
}

// RecordStage records the latency of a post-capture stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

// RecordFault counts a device fault.
func (m *Metrics) RecordFault(ctx context.Context) {
	if m == nil {
		return
	}
	m.Faults.Add(ctx, 1)
}

// CaptureStarted marks a capture as live.
func (m *Metrics) CaptureStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveCaptures.Add(ctx, 1)
}

// CaptureEnded clears a live capture.
func (m *Metrics) CaptureEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveCaptures.Add(ctx, -1)
}

// RecordLevel stores the current input level.
func (m *Metrics) RecordLevel(ctx context.Context, db float64) {
	if m == nil {
		return
	}
	m.InputLevel.Record(ctx, db)
}
