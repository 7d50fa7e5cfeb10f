// Package session coordinates one listen lifecycle: capture, end-of-utterance
// detection, handoff, and IPC control.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/rbright/hark/internal/fsm"
	"github.com/rbright/hark/internal/handoff"
	"github.com/rbright/hark/internal/ipc"
	"github.com/rbright/hark/internal/observe"
	"github.com/rbright/hark/internal/pipeline"
	"github.com/rbright/hark/internal/recorder"
)

// State is the controller lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
)

// Reasons reported in Result beyond the recorder's own.
const (
	ReasonCancel  = "cancel"
	ReasonFault   = "fault"
	ReasonContext = "context"
)

// ErrBusy is returned when Run is called while a lifecycle is in progress.
var ErrBusy = errors.New("session already active")

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

type eventKind int

const (
	eventEndOfUtterance eventKind = iota + 1
	eventFault
)

type event struct {
	kind      eventKind
	recording recorder.FinishedRecording
	err       error
}

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	State      State
	Recording  recorder.FinishedRecording
	Reply      handoff.Reply
	ObjectKey  string
	Cancelled  bool
	Err        error
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder is the capture surface the controller drives.
type Recorder interface {
	Start(ctx context.Context, cfg recorder.Config) error
	Stop(ctx context.Context) (recorder.FinishedRecording, error)
	Cancel()
	State() fsm.State
	Level() (recorder.Level, bool)
}

// RecorderFactory builds the recorder with the controller's hooks installed.
type RecorderFactory func(recorder.Hooks) Recorder

// Processor hands a finished recording downstream.
type Processor interface {
	Process(ctx context.Context, rec recorder.FinishedRecording) (pipeline.Outcome, error)
}

// Cues is the session-facing subset of indicator behavior.
type Cues interface {
	CueStart(context.Context)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	CueError(context.Context)
}

// noopCues preserves session flow when no indicator is wired.
type noopCues struct{}

func (noopCues) CueStart(context.Context)    {}
func (noopCues) CueStop(context.Context)     {}
func (noopCues) CueComplete(context.Context) {}
func (noopCues) CueCancel(context.Context)   {}
func (noopCues) CueError(context.Context)    {}

// Options wires the controller.
type Options struct {
	Capture   recorder.Config
	Processor Processor
	Cues      Cues
	Metrics   *observe.Metrics
	Logger    *slog.Logger
}

// Controller orchestrates session state transitions and side effects.
type Controller struct {
	logger    *slog.Logger
	recorder  Recorder
	processor Processor
	cues      Cues
	metrics   *observe.Metrics
	capture   recorder.Config

	mu    sync.RWMutex
	state State

	actions chan action
	events  chan event
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(newRecorder RecorderFactory, opts Options) *Controller {
	c := &Controller{
		logger:    opts.Logger,
		processor: opts.Processor,
		cues:      opts.Cues,
		metrics:   opts.Metrics,
		capture:   opts.Capture,
		state:     StateIdle,
		actions:   make(chan action, 1),
		events:    make(chan event, 2),
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.processor == nil {
		c.processor = pipeline.NewProcessor(pipeline.Options{KeepAudio: true, Logger: c.logger})
	}
	if c.cues == nil {
		c.cues = noopCues{}
	}
	c.recorder = newRecorder(c.hooks())
	return c
}

// hooks forwards recorder callbacks into the Run loop.
func (c *Controller) hooks() recorder.Hooks {
	return recorder.Hooks{
		OnAmplitude: func(level recorder.Level) {
			c.metrics.RecordLevel(context.Background(), level.DB)
		},
		OnSpeechStart: func() {
			c.logger.Debug("speech detected")
		},
		OnEndOfUtterance: func(rec recorder.FinishedRecording) {
			c.post(event{kind: eventEndOfUtterance, recording: rec})
		},
		OnFault: func(err error) {
			c.post(event{kind: eventFault, err: err})
		},
	}
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("dropped recorder event", "kind", int(ev.kind))
	}
}

// State returns the current lifecycle state snapshot.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// begin claims the controller for one lifecycle.
func (c *Controller) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return false
	}
	c.drain()
	c.state = StateRecording
	return true
}

// drain discards actions and events left over from a previous lifecycle.
func (c *Controller) drain() {
	for {
		select {
		case <-c.actions:
		default:
			c.discardPending()
			return
		}
	}
}

// discardPending drops queued recorder events. A recording that reached the
// queue but will never be processed is deleted.
func (c *Controller) discardPending() {
	for {
		select {
		case ev := <-c.events:
			if ev.kind == eventEndOfUtterance {
				c.discard(ev.recording)
			}
		default:
			return
		}
	}
}

func (c *Controller) discard(rec recorder.FinishedRecording) {
	if rec.Path == "" {
		return
	}
	if err := os.Remove(rec.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("discard recording failed", "path", rec.Path, "error", err.Error())
		return
	}
	c.logger.Debug("discarded recording", "path", rec.Path)
}

// Run executes one lifecycle from start until the recording is handed off,
// cancelled, or lost.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}
	finish := func() Result {
		c.setState(StateIdle)
		result.State = c.State()
		result.FinishedAt = time.Now()
		return result
	}

	if !c.begin() {
		result.State = c.State()
		result.Err = ErrBusy
		result.FinishedAt = time.Now()
		return result
	}

	if err := c.recorder.Start(ctx, c.capture); err != nil {
		c.cues.CueError(ctx)
		result.Err = err
		return finish()
	}
	c.metrics.CaptureStarted(ctx)
	defer c.metrics.CaptureEnded(context.Background())
	c.cues.CueStart(ctx)

	select {
	case <-ctx.Done():
		c.recorder.Cancel()
		c.discardPending()
		c.cues.CueCancel(context.Background())
		result.Err = ctx.Err()
		result.Reason = ReasonContext
		c.metrics.RecordCapture(context.Background(), ReasonContext, 0)
		return finish()
	case ev := <-c.events:
		c.handleEvent(ctx, ev, &result)
		return finish()
	case a := <-c.actions:
		switch a {
		case actionCancel:
			c.recorder.Cancel()
			c.discardPending()
			c.cues.CueCancel(context.Background())
			result.Cancelled = true
			result.Reason = ReasonCancel
			c.metrics.RecordCapture(context.Background(), ReasonCancel, 0)
			return finish()
		case actionStop:
			rec, err := c.recorder.Stop(ctx)
			if errors.Is(err, recorder.ErrNotRecording) {
				// Detection or a fault won the race; its event is already on the way.
				c.awaitEvent(ctx, &result)
				return finish()
			}
			if err != nil {
				c.cues.CueError(context.Background())
				result.Recording = rec
				result.Err = err
				result.Reason = string(recorder.ReasonStop)
				return finish()
			}
			c.process(ctx, rec, &result)
			return finish()
		default:
			c.recorder.Cancel()
			result.Err = fmt.Errorf("unknown action %d", a)
			return finish()
		}
	}
}

func (c *Controller) awaitEvent(ctx context.Context, result *Result) {
	select {
	case ev := <-c.events:
		c.handleEvent(ctx, ev, result)
	case <-ctx.Done():
		result.Err = ctx.Err()
		result.Reason = ReasonContext
	}
}

func (c *Controller) handleEvent(ctx context.Context, ev event, result *Result) {
	switch ev.kind {
	case eventEndOfUtterance:
		c.process(ctx, ev.recording, result)
	case eventFault:
		c.cues.CueError(context.Background())
		c.metrics.RecordFault(context.Background())
		c.metrics.RecordCapture(context.Background(), ReasonFault, 0)
		result.Err = ev.err
		result.Reason = ReasonFault
	}
}

// process hands a finished recording to the pipeline.
func (c *Controller) process(ctx context.Context, rec recorder.FinishedRecording, result *Result) {
	c.setState(StateProcessing)
	c.cues.CueStop(ctx)
	c.metrics.RecordCapture(ctx, string(rec.Reason), rec.Duration)

	result.Recording = rec
	result.Reason = string(rec.Reason)

	out, err := c.processor.Process(ctx, rec)
	result.Reply = out.Reply
	result.ObjectKey = out.ObjectKey
	if err != nil {
		c.cues.CueError(context.Background())
		result.Err = err
		return
	}
	c.cues.CueComplete(context.Background())
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return c.status()
	case ipc.CommandToggle:
		return c.requestStop("toggle")
	case ipc.CommandStop:
		return c.requestStop("stop")
	case ipc.CommandCancel:
		return c.requestCancel()
	case ipc.CommandLevel:
		return c.level()
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) status() ipc.Response {
	state := c.State()
	resp := ipc.Response{OK: true, State: string(state), Message: "status"}
	if state == StateRecording {
		resp.Phase = string(c.recorder.State())
	}
	return resp
}

func (c *Controller) level() ipc.Response {
	state := c.State()
	if state != StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: "no active capture"}
	}
	level, ok := c.recorder.Level()
	resp := ipc.Response{OK: true, State: string(state), Phase: string(c.recorder.State())}
	if ok {
		resp.Level = &ipc.Level{
			DB:       level.DB,
			PeakDB:   level.Peak,
			Speaking: level.Speaking,
			AtMS:     level.At.Milliseconds(),
		}
	} else {
		resp.Message = "waiting for audio"
	}
	return resp
}

// requestStop enqueues a stop action when state permits it.
func (c *Controller) requestStop(source string) ipc.Response {
	state := c.State()
	if state == StateProcessing {
		return ipc.Response{OK: false, State: string(state), Error: "already processing"}
	}
	if state != StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot %s from state %s", source, state)}
	}

	select {
	case c.actions <- actionStop:
		return ipc.Response{OK: true, State: string(state), Message: "stop requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "stop already requested"}
	}
}

// requestCancel enqueues a cancel action when state permits it.
func (c *Controller) requestCancel() ipc.Response {
	state := c.State()
	if state == StateProcessing {
		return ipc.Response{OK: false, State: string(state), Error: "cannot cancel while processing"}
	}
	if state != StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot cancel from state %s", state)}
	}

	select {
	case c.actions <- actionCancel:
		return ipc.Response{OK: true, State: string(state), Message: "cancel requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "cancel already requested"}
	}
}
