package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordCaptureCountsByReason(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCapture(ctx, "end_of_utterance", 3*time.Second)
	m.RecordCapture(ctx, "end_of_utterance", time.Second)
	m.RecordCapture(ctx, "cancel", 0)

	rm := collect(t, reader)
	captures := findMetric(rm, "hark.captures")
	require.NotNil(t, captures)

	sum, ok := captures.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		reason, _ := dp.Attributes.Value(attribute.Key("reason"))
		counts[reason.AsString()] = dp.Value
	}
	require.Equal(t, map[string]int64{"end_of_utterance": 2, "cancel": 1}, counts)

	duration := findMetric(rm, "hark.capture.duration")
	require.NotNil(t, duration)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	require.Equal(t, uint64(2), hist.DataPoints[0].Count)
	require.InDelta(t, 4.0, hist.DataPoints[0].Sum, 1e-9)
}

func TestRecordStageStatus(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "handoff", 200*time.Millisecond, nil)
	m.RecordStage(ctx, "handoff", 100*time.Millisecond, errors.New("down"))

	stage := findMetric(collect(t, reader), "hark.stage.duration")
	require.NotNil(t, stage)
	hist := stage.Data.(metricdata.Histogram[float64])
	statuses := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		statuses[status.AsString()] = dp.Count
	}
	require.Equal(t, map[string]uint64{"ok": 1, "error": 1}, statuses)
}

func TestActiveCapturesAndLevel(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.CaptureStarted(ctx)
	m.RecordLevel(ctx, -31.5)
	m.RecordFault(ctx)

	rm := collect(t, reader)
	active := findMetric(rm, "hark.capture.active").Data.(metricdata.Sum[int64])
	require.Equal(t, int64(1), active.DataPoints[0].Value)

	level := findMetric(rm, "hark.input.level").Data.(metricdata.Gauge[float64])
	require.Equal(t, -31.5, level.DataPoints[0].Value)

	faults := findMetric(rm, "hark.capture.faults").Data.(metricdata.Sum[int64])
	require.Equal(t, int64(1), faults.DataPoints[0].Value)

	m.CaptureEnded(ctx)
	active = findMetric(collect(t, reader), "hark.capture.active").Data.(metricdata.Sum[int64])
	require.Equal(t, int64(0), active.DataPoints[0].Value)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	require.NotPanics(t, func() {
		m.RecordCapture(ctx, "stop", time.Second)
		m.RecordStage(ctx, "upload", time.Second, nil)
		m.RecordFault(ctx)
		m.CaptureStarted(ctx)
		m.CaptureEnded(ctx)
		m.RecordLevel(ctx, -10)
	})
}
