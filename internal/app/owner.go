package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rbright/hark/internal/audio"
	"github.com/rbright/hark/internal/cli"
	"github.com/rbright/hark/internal/config"
	"github.com/rbright/hark/internal/handoff"
	"github.com/rbright/hark/internal/indicator"
	"github.com/rbright/hark/internal/ipc"
	"github.com/rbright/hark/internal/meter"
	"github.com/rbright/hark/internal/observe"
	"github.com/rbright/hark/internal/permission"
	"github.com/rbright/hark/internal/pipeline"
	"github.com/rbright/hark/internal/recorder"
	"github.com/rbright/hark/internal/session"
	"github.com/rbright/hark/internal/upload"
	"github.com/rbright/hark/internal/version"
)

// runOwner wires the capture stack, serves IPC on listener and runs one
// lifecycle to completion.
func (r Runner) runOwner(ctx context.Context, listener net.Listener, cfg config.Config, overrides cli.Overrides, logger *slog.Logger) int {
	capture, err := captureConfig(cfg.Capture, overrides)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	prompter, err := permission.ForMode(permission.Mode(cfg.Permission.Mode), r.Stdin, r.Stderr)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	gate := permission.NewGate(prompter)

	mic := &audio.Microphone{
		Input:        cfg.Audio.Input,
		Fallback:     cfg.Audio.Fallback,
		Dir:          cfg.Capture.Dir,
		StallTimeout: millis(cfg.Capture.StallTimeoutMS),
		Logger:       logger,
	}

	// The exporter registers on the default Prometheus registry, which only
	// the meter server exposes.
	var metrics *observe.Metrics
	if cfg.Meter.Listen != "" {
		m, shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    binaryName,
			ServiceVersion: version.Version,
		})
		if err != nil {
			logger.Warn("metrics disabled", "error", err.Error())
		} else {
			metrics = m
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	processor, err := newProcessor(cfg, metrics, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	cues := indicator.NewPlayer(cfg.Indicator, logger)
	defer cues.Wait()

	var rec *recorder.Session
	controller := session.NewController(func(hooks recorder.Hooks) session.Recorder {
		rec = recorder.New(mic,
			recorder.WithGate(gate),
			recorder.WithLogger(logger),
			recorder.WithHooks(hooks),
		)
		return rec
	}, session.Options{
		Capture:   capture,
		Processor: processor,
		Cues:      cues,
		Metrics:   metrics,
		Logger:    logger,
	})
	defer func() { _ = rec.Close() }()

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	if cfg.Meter.Listen != "" {
		levels := meter.New(levelSource(controller, rec), meter.Options{
			PeakHold:       millis(cfg.Meter.PeakHoldMS),
			AllowedOrigins: cfg.Meter.AllowedOrigins,
			Metrics:        metrics,
			Logger:         logger,
		})
		go func() {
			if err := levels.ListenAndServe(serverCtx, cfg.Meter.Listen); err != nil {
				logger.Error("meter server failed", "error", err.Error())
			}
		}()
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	result := controller.Run(ctx)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logSessionResult(logger, result)
	return r.reportResult(result)
}

// captureConfig applies CLI overrides on top of the configured capture values.
func captureConfig(cfg config.CaptureConfig, overrides cli.Overrides) (recorder.Config, error) {
	out := recorder.Config{
		SilenceThresholdDB: cfg.SilenceThresholdDB,
		SilenceDuration:    millis(cfg.SilenceDurationMS),
		MaxDuration:        millis(cfg.MaxDurationMS),
	}
	if overrides.ThresholdDB != nil {
		out.SilenceThresholdDB = *overrides.ThresholdDB
	}
	if overrides.SilenceMS != nil {
		out.SilenceDuration = millis(*overrides.SilenceMS)
	}
	if overrides.MaxMS != nil {
		out.MaxDuration = millis(*overrides.MaxMS)
	}
	if err := out.Validate(); err != nil {
		return recorder.Config{}, fmt.Errorf("invalid capture settings: %w", err)
	}
	return out, nil
}

// newProcessor wires the optional archive and handoff stages.
func newProcessor(cfg config.Config, metrics *observe.Metrics, logger *slog.Logger) (*pipeline.Processor, error) {
	opts := pipeline.Options{
		Envelope:  handoff.EnvelopeFromConfig(cfg.Handoff),
		KeepAudio: cfg.Capture.KeepAudio,
		Metrics:   metrics,
		Logger:    logger,
	}

	sender, err := handoff.New(cfg.Handoff, logger)
	switch {
	case errors.Is(err, handoff.ErrNotConfigured):
		logger.Debug("handoff not configured; recordings stay local")
	case err != nil:
		return nil, fmt.Errorf("setup handoff: %w", err)
	default:
		opts.Sender = sender
	}

	if cfg.Upload.Enabled() {
		uploader, err := upload.New(cfg.Upload, logger)
		if err != nil {
			return nil, fmt.Errorf("setup upload: %w", err)
		}
		opts.Archiver = uploader
	}

	return pipeline.NewProcessor(opts), nil
}

// levelSource reads meter frames from the controller and its recorder.
func levelSource(controller *session.Controller, rec *recorder.Session) meter.Source {
	return meter.SourceFunc(func() meter.Snapshot {
		snap := meter.Snapshot{State: string(controller.State())}
		if controller.State() != session.StateRecording {
			return snap
		}
		snap.Active = true
		snap.State = string(rec.State())
		snap.Level, snap.Peak = audio.MinDB, audio.MinDB
		if level, ok := rec.Level(); ok {
			snap.Level = level.DB
			snap.Peak = level.Peak
			snap.Speaking = level.Speaking
		}
		return snap
	})
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
