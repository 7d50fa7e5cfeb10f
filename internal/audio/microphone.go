package audio

import (
	"context"
	"log/slog"
	"time"

	"github.com/rbright/hark/internal/recorder"
)

// Microphone opens captures on the configured Pulse source.
type Microphone struct {
	Input        string
	Fallback     string
	Dir          string
	StallTimeout time.Duration
	Logger       *slog.Logger

	// start is replaced in tests.
	start func(context.Context, Source, CaptureOptions) (recorder.Handle, error)
	// selectSource is replaced in tests.
	selectSource func(context.Context, string, string) (Selection, error)
}

func (m *Microphone) Open(ctx context.Context) (recorder.Handle, error) {
	selectSource := m.selectSource
	if selectSource == nil {
		selectSource = SelectSource
	}
	selection, err := selectSource(ctx, m.Input, m.Fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" && m.Logger != nil {
		m.Logger.Warn(selection.Warning)
	}

	dir := m.Dir
	if dir == "" {
		if dir, err = RecordingsDir(); err != nil {
			return nil, err
		}
	}

	opts := CaptureOptions{Dir: dir, StallTimeout: m.StallTimeout, Logger: m.Logger}
	if m.start != nil {
		return m.start(ctx, selection.Source, opts)
	}
	capture, err := StartCapture(ctx, selection.Source, opts)
	if err != nil {
		return nil, err
	}
	if m.Logger != nil {
		m.Logger.Debug("capture source", "source", selection.Source.String(), "fallback", selection.Fallback)
	}
	return capture, nil
}
