// Package pipeline carries a finished recording through archival and
// downstream handoff.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/hark/internal/handoff"
	"github.com/rbright/hark/internal/observe"
	"github.com/rbright/hark/internal/recorder"
)

var (
	// ErrNoSpeech indicates the capture ended without any sample above threshold.
	ErrNoSpeech = errors.New("no speech detected; check microphone input or threshold")
	// ErrEmptyTranscript indicates the service answered without usable content.
	ErrEmptyTranscript = errors.New("no speech recognized by handoff service")
)

// Archiver stores a copy of the recording and returns its object key.
type Archiver interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Outcome is what processing produced for one recording.
type Outcome struct {
	Reply     handoff.Reply
	ObjectKey string
	Path      string
	Removed   bool
}

// Options wires optional stages.
type Options struct {
	Sender    handoff.Sender
	Archiver  Archiver
	Envelope  handoff.Envelope
	KeepAudio bool
	Metrics   *observe.Metrics
	Logger    *slog.Logger
}

// Processor runs upload, then handoff, then cleanup.
type Processor struct {
	sender    handoff.Sender
	archiver  Archiver
	envelope  handoff.Envelope
	keepAudio bool
	metrics   *observe.Metrics
	logger    *slog.Logger
}

func NewProcessor(opts Options) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{
		sender:    opts.Sender,
		archiver:  opts.Archiver,
		envelope:  opts.Envelope,
		keepAudio: opts.KeepAudio,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// Process hands rec downstream. The WAV is removed only after every
// configured stage succeeded and keep_audio is off.
func (p *Processor) Process(ctx context.Context, rec recorder.FinishedRecording) (Outcome, error) {
	out := Outcome{Path: rec.Path}

	if !rec.SpeechDetected {
		out.Removed = p.discard(rec.Path)
		return out, ErrNoSpeech
	}

	if p.archiver != nil {
		started := time.Now()
		key, err := p.archiver.Upload(ctx, rec.Path)
		p.metrics.RecordStage(ctx, "upload", time.Since(started), err)
		if err != nil {
			return out, fmt.Errorf("archive recording: %w", err)
		}
		out.ObjectKey = key
	}

	if p.sender != nil {
		started := time.Now()
		reply, err := p.sender.Send(ctx, rec.Path, p.envelope)
		p.metrics.RecordStage(ctx, "handoff", time.Since(started), err)
		if err != nil {
			return out, fmt.Errorf("hand off recording: %w", err)
		}
		out.Reply = reply
		if reply.Empty() && !reply.Silent {
			return out, ErrEmptyTranscript
		}
	}

	// Nothing downstream holds a copy without a stage configured.
	if p.sender != nil || p.archiver != nil {
		out.Removed = p.discard(rec.Path)
	}
	return out, nil
}

func (p *Processor) discard(path string) bool {
	if p.keepAudio || path == "" {
		return false
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("remove recording failed", "path", path, "error", err)
		return false
	}
	return true
}
