// Package vad decides end-of-utterance from a stream of amplitude samples.
//
// The Detector is pure computation over in-memory state. It performs no I/O,
// owns no timers and never fails; callers feed it samples and timer fires and
// act on the returned Signal.
package vad

import (
	"time"

	"github.com/rbright/hark/internal/fsm"
)

const (
	DefaultThresholdDB     = -50.0
	DefaultSilenceDuration = 2 * time.Second
)

// Config tunes one detection run.
type Config struct {
	// ThresholdDB is the level boundary. Samples strictly above it are speech.
	ThresholdDB float64
	// SilenceDuration is how long silence must persist after speech.
	SilenceDuration time.Duration
}

// SignalKind names the externally relevant outcome of one input.
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalSpeechStarted
	SignalSilenceArmed
	SignalSilenceDisarmed
	SignalEndOfUtterance
)

func (k SignalKind) String() string {
	switch k {
	case SignalNone:
		return "none"
	case SignalSpeechStarted:
		return "speech_started"
	case SignalSilenceArmed:
		return "silence_armed"
	case SignalSilenceDisarmed:
		return "silence_disarmed"
	case SignalEndOfUtterance:
		return "end_of_utterance"
	default:
		return "unknown"
	}
}

// Signal is returned for every input. Deadline and Generation are set when a
// silence deadline is armed; a timer scheduled for it must echo Generation
// back through OnTimerFire.
type Signal struct {
	Kind       SignalKind
	Deadline   time.Duration
	Generation uint64
}

// Detector is the silence state machine. It is not safe for concurrent use;
// one goroutine owns it.
type Detector struct {
	cfg        Config
	state      fsm.State
	hasSpoken  bool
	armed      bool
	deadline   time.Duration
	generation uint64
	last       time.Duration
}

func New(cfg Config) *Detector {
	if cfg.SilenceDuration <= 0 {
		cfg.SilenceDuration = DefaultSilenceDuration
	}
	return &Detector{cfg: cfg, state: fsm.StateIdle}
}

// Start resets detection state and begins listening.
func (d *Detector) Start() {
	d.reset()
	d.state, _ = fsm.Transition(fsm.StateIdle, fsm.EventStart)
}

// Stop returns the detector to idle and invalidates any armed deadline.
func (d *Detector) Stop() {
	d.reset()
}

func (d *Detector) reset() {
	d.state = fsm.StateIdle
	d.hasSpoken = false
	d.armed = false
	d.deadline = 0
	d.last = 0
	d.generation++
}

// OnSample classifies one level reading taken at capture offset at.
func (d *Detector) OnSample(level float64, at time.Duration) Signal {
	if d.state == fsm.StateIdle || fsm.Terminal(d.state) {
		return Signal{}
	}
	if at < d.last {
		at = d.last
	}
	d.last = at

	if level > d.cfg.ThresholdDB {
		return d.onSpeech()
	}
	return d.onSilence(at)
}

func (d *Detector) onSpeech() Signal {
	prev := d.state
	next, err := fsm.Transition(prev, fsm.EventSpeech)
	if err != nil {
		return Signal{}
	}
	d.state = next
	switch prev {
	case fsm.StateListening:
		d.hasSpoken = true
		return Signal{Kind: SignalSpeechStarted}
	case fsm.StateSilencePending:
		d.armed = false
		d.deadline = 0
		d.generation++
		return Signal{Kind: SignalSilenceDisarmed, Generation: d.generation}
	default:
		return Signal{}
	}
}

func (d *Detector) onSilence(at time.Duration) Signal {
	prev := d.state
	switch prev {
	case fsm.StateSilencePending:
		if d.armed && at >= d.deadline {
			return d.complete()
		}
		return Signal{}
	case fsm.StateSpeaking:
		next, err := fsm.Transition(prev, fsm.EventSilence)
		if err != nil {
			return Signal{}
		}
		d.state = next
		d.armed = true
		d.deadline = at + d.cfg.SilenceDuration
		d.generation++
		return Signal{Kind: SignalSilenceArmed, Deadline: d.deadline, Generation: d.generation}
	default:
		return Signal{}
	}
}

// OnTimerFire reports that the deadline armed with generation has elapsed.
// Fires for a superseded generation, or outside silence_pending, are ignored.
func (d *Detector) OnTimerFire(generation uint64) Signal {
	if d.state != fsm.StateSilencePending || !d.armed || generation != d.generation {
		return Signal{}
	}
	return d.complete()
}

func (d *Detector) complete() Signal {
	next, err := fsm.Transition(d.state, fsm.EventDeadline)
	if err != nil {
		return Signal{}
	}
	d.state = next
	d.armed = false
	d.generation++
	return Signal{Kind: SignalEndOfUtterance}
}

func (d *Detector) State() fsm.State { return d.state }

func (d *Detector) HasSpoken() bool { return d.hasSpoken }

// Deadline returns the armed silence deadline, if any.
func (d *Detector) Deadline() (time.Duration, bool) {
	return d.deadline, d.armed
}

func (d *Detector) Generation() uint64 { return d.generation }

func (d *Detector) Config() Config { return d.cfg }
