// Package recorder owns one microphone capture at a time and decides, from
// live amplitude, when the speaker has finished.
package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/hark/internal/fsm"
	"github.com/rbright/hark/internal/permission"
	"github.com/rbright/hark/internal/vad"
)

// Reason records why a capture finished.
type Reason string

const (
	ReasonStop           Reason = "stop"
	ReasonEndOfUtterance Reason = "end_of_utterance"
	ReasonMaxDuration    Reason = "max_duration"
)

// FinishedRecording hands ownership of the artifact to the caller.
type FinishedRecording struct {
	Path           string
	Duration       time.Duration
	Bytes          int64
	Reason         Reason
	SpeechDetected bool
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Level is the latest amplitude reading, for metering only.
type Level struct {
	DB       float64
	Peak     float64
	At       time.Duration
	Speaking bool
}

// Hooks run on the capture goroutine and must not block.
type Hooks struct {
	OnAmplitude      func(Level)
	OnSpeechStart    func()
	OnEndOfUtterance func(FinishedRecording)
	OnFault          func(error)
}

// Gate is the permission check consulted before every open.
type Gate interface {
	Request(ctx context.Context) (permission.Decision, error)
}

type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithGate(gate Gate) Option {
	return func(s *Session) {
		if gate != nil {
			s.gate = gate
		}
	}
}

func WithHooks(hooks Hooks) Option {
	return func(s *Session) { s.hooks = hooks }
}

// Session is the single owner of the capture device.
type Session struct {
	device Device
	gate   Gate
	logger *slog.Logger
	hooks  Hooks

	mu       sync.Mutex
	starting bool
	active   *run
	state    fsm.State
	level    Level
	hasLevel bool
}

func New(device Device, opts ...Option) *Session {
	s := &Session{
		device: device,
		gate:   permission.NewGate(nil),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:  fsm.StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start acquires permission, opens the device and begins detection. The
// capture stays bound to ctx: cancelling it releases the device.
func (s *Session) Start(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.starting || s.active != nil {
		s.mu.Unlock()
		return opError("start", ErrAlreadyRecording, nil)
	}
	s.starting = true
	s.mu.Unlock()

	r, err := s.open(ctx, cfg)

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.active = r
	s.state = fsm.StateListening
	s.hasLevel = false
	s.mu.Unlock()

	s.logger.Debug("capture started",
		"threshold_db", cfg.SilenceThresholdDB,
		"silence_ms", cfg.SilenceDuration.Milliseconds(),
		"max_ms", cfg.MaxDuration.Milliseconds(),
	)
	go r.loop(ctx)
	return nil
}

func (s *Session) open(ctx context.Context, cfg Config) (*run, error) {
	decision, err := s.gate.Request(ctx)
	if err != nil {
		return nil, opError("start", ErrPermissionDenied, err)
	}
	if decision != permission.Granted {
		return nil, opError("start", ErrPermissionDenied, nil)
	}
	if s.device == nil {
		return nil, opError("start", ErrDeviceUnavailable, errors.New("no capture device configured"))
	}

	handle, err := s.device.Open(ctx)
	if err != nil {
		return nil, opError("start", ErrDeviceUnavailable, err)
	}
	if err := ctx.Err(); err != nil {
		if relErr := handle.Release(); relErr != nil {
			s.logger.Debug("release after canceled open failed", "error", relErr.Error())
		}
		return nil, opError("start", ErrDeviceUnavailable, err)
	}

	det := vad.New(cfg.detector())
	det.Start()
	return &run{
		session:    s,
		cfg:        cfg,
		handle:     handle,
		det:        det,
		startedAt:  time.Now(),
		timerFired: make(chan uint64),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Stop finalizes the capture and returns the artifact. Device errors are
// never swallowed. When detection is already finalizing the capture, Stop
// waits for it and returns that recording in place of the end-of-utterance
// hook.
func (s *Session) Stop(ctx context.Context) (FinishedRecording, error) {
	r := s.current()
	if r == nil {
		return FinishedRecording{}, opError("stop", ErrNotRecording, nil)
	}
	if r.claim() {
		defer r.finish()
		r.settle()
		return r.stop(ctx, ReasonStop)
	}

	if !r.requestTakeover(takeoverStop) {
		<-r.done
		return FinishedRecording{}, opError("stop", ErrNotRecording, nil)
	}
	<-r.done
	if !r.handedOff {
		return FinishedRecording{}, opError("stop", ErrNotRecording, nil)
	}
	return r.result, r.resultErr
}

// Cancel releases the device and discards partial audio. It is safe with no
// active capture and never reports device errors. Once Cancel returns no
// end-of-utterance hook fires for the canceled capture.
func (s *Session) Cancel() {
	r := s.current()
	if r == nil {
		return
	}
	if r.claim() {
		defer r.finish()
		r.settle()
		r.shutdown()
		if err := r.release(); err != nil {
			s.logger.Debug("release on cancel failed", "error", err.Error())
		}
		s.detach(r)
		s.logger.Debug("capture canceled")
		return
	}
	r.requestTakeover(takeoverCancel)
	<-r.done
}

// Close tears down any active capture. It is safe to defer.
func (s *Session) Close() error {
	s.Cancel()
	return nil
}

// Active reports whether a capture is open or opening.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starting || s.active != nil
}

// State returns the detector state of the active capture.
func (s *Session) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Level returns the most recent amplitude reading of the active capture.
func (s *Session) Level() (Level, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, s.hasLevel
}

func (s *Session) current() *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) detach(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == r {
		s.active = nil
		s.state = fsm.StateIdle
		s.hasLevel = false
	}
}

func (s *Session) publish(r *run, state fsm.State, level *Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != r {
		return
	}
	s.state = state
	if level != nil {
		s.level = *level
		s.hasLevel = true
	}
}
