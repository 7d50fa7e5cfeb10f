package recorder

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/hark/internal/fsm"
	"github.com/rbright/hark/internal/vad"
)

const autoStopTimeout = 5 * time.Second

// takeover names a caller that asked for the outcome of an auto stop already
// in flight.
type takeover int

const (
	takeoverNone takeover = iota
	takeoverStop
	takeoverCancel
)

// run is one open capture. Exactly one path claims termination; the device
// is released exactly once. done closes after that path, including any hook
// it runs, has finished.
type run struct {
	session   *Session
	cfg       Config
	handle    Handle
	det       *vad.Detector
	startedAt time.Time

	timerFired chan uint64
	quit       chan struct{}
	quitOnce   sync.Once

	claimed     atomic.Bool
	hasSpoken   atomic.Bool
	releaseOnce sync.Once
	releaseErr  error

	mu       sync.Mutex
	settled  bool
	waiter   takeover
	done     chan struct{}
	doneOnce sync.Once

	// Written before done closes when an auto stop hands off to Stop.
	handedOff bool
	result    FinishedRecording
	resultErr error
}

func (r *run) claim() bool {
	return r.claimed.CompareAndSwap(false, true)
}

// requestTakeover asks an in-flight auto stop to hand its outcome to kind
// instead of the end-of-utterance hook. It fails once the outcome is settled
// or another caller got there first.
func (r *run) requestTakeover(kind takeover) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled || r.waiter != takeoverNone {
		return false
	}
	r.waiter = kind
	return true
}

// settle fixes the outcome and reports who took it over, if anyone.
func (r *run) settle() takeover {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = true
	return r.waiter
}

func (r *run) finish() {
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *run) shutdown() {
	r.quitOnce.Do(func() { close(r.quit) })
}

func (r *run) release() error {
	r.releaseOnce.Do(func() {
		r.releaseErr = r.handle.Release()
	})
	return r.releaseErr
}

func (r *run) stop(ctx context.Context, reason Reason) (FinishedRecording, error) {
	r.shutdown()
	defer r.session.detach(r)

	artifact, stopErr := r.handle.Stop(ctx)
	relErr := r.release()
	if stopErr != nil {
		return FinishedRecording{}, opError("stop", ErrDeviceFault, errors.Join(stopErr, relErr))
	}

	rec := FinishedRecording{
		Path:           artifact.Path,
		Duration:       artifact.Duration,
		Bytes:          artifact.Bytes,
		Reason:         reason,
		SpeechDetected: r.hasSpoken.Load(),
		StartedAt:      r.startedAt,
		FinishedAt:     time.Now(),
	}
	if relErr != nil {
		return rec, opError("stop", ErrDeviceFault, relErr)
	}
	r.session.logger.Debug("capture stopped",
		"reason", string(reason),
		"path", rec.Path,
		"duration_ms", rec.Duration.Milliseconds(),
		"speech", rec.SpeechDetected,
	)
	return rec, nil
}

func (r *run) loop(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	samples := r.handle.Samples()
	faults := r.handle.Faults()

	for {
		select {
		case <-r.quit:
			r.det.Stop()
			return

		case <-ctx.Done():
			r.abandon()
			return

		case err, ok := <-faults:
			if !ok {
				faults = nil
				continue
			}
			r.fail(err)
			return

		case gen := <-r.timerFired:
			if r.det.OnTimerFire(gen).Kind == vad.SignalEndOfUtterance {
				r.complete(ReasonEndOfUtterance)
				return
			}

		case sample, ok := <-samples:
			if !ok {
				r.fail(io.ErrUnexpectedEOF)
				return
			}
			if r.claimed.Load() {
				continue
			}

			sig := r.det.OnSample(sample.Level, sample.At)
			level := Level{
				DB:       sample.Level,
				Peak:     sample.Peak,
				At:       sample.At,
				Speaking: r.det.State() == fsm.StateSpeaking,
			}
			r.session.publish(r, r.det.State(), &level)
			if hook := r.session.hooks.OnAmplitude; hook != nil {
				hook(level)
			}

			switch sig.Kind {
			case vad.SignalSpeechStarted:
				r.hasSpoken.Store(true)
				if hook := r.session.hooks.OnSpeechStart; hook != nil {
					hook()
				}
			case vad.SignalSilenceArmed:
				if timer != nil {
					timer.Stop()
				}
				timer = r.arm(sig.Deadline-sample.At, sig.Generation)
			case vad.SignalSilenceDisarmed:
				if timer != nil {
					timer.Stop()
					timer = nil
				}
			case vad.SignalEndOfUtterance:
				r.complete(ReasonEndOfUtterance)
				return
			}

			if r.cfg.MaxDuration > 0 && sample.At >= r.cfg.MaxDuration {
				r.complete(ReasonMaxDuration)
				return
			}
		}
	}
}

// arm schedules a deadline fire. The generation travels with it so a fire
// that lost the race with renewed speech is ignored by the detector.
func (r *run) arm(delay time.Duration, generation uint64) *time.Timer {
	return time.AfterFunc(delay, func() {
		select {
		case r.timerFired <- generation:
		case <-r.quit:
		}
	})
}

func (r *run) complete(reason Reason) {
	if !r.claim() {
		return
	}
	defer r.finish()
	r.session.publish(r, fsm.StateCompleted, nil)

	ctx, cancel := context.WithTimeout(context.Background(), autoStopTimeout)
	defer cancel()

	rec, err := r.stop(ctx, reason)
	switch r.settle() {
	case takeoverCancel:
		r.discard(rec.Path)
		r.session.logger.Debug("capture canceled during auto stop", "reason", string(reason))
		return
	case takeoverStop:
		r.result, r.resultErr, r.handedOff = rec, err, true
		return
	}

	if err != nil {
		r.session.logger.Error("auto stop failed", "reason", string(reason), "error", err.Error())
		if hook := r.session.hooks.OnFault; hook != nil {
			hook(err)
		}
		return
	}
	if hook := r.session.hooks.OnEndOfUtterance; hook != nil {
		hook(rec)
	}
}

// discard removes an artifact nobody will own.
func (r *run) discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.session.logger.Warn("discard canceled recording failed", "path", path, "error", err.Error())
	}
}

func (r *run) fail(cause error) {
	if !r.claim() {
		return
	}
	defer r.finish()
	r.settle()
	r.shutdown()
	relErr := r.release()
	r.session.detach(r)

	err := opError("capture", ErrDeviceFault, errors.Join(cause, relErr))
	r.session.logger.Error("capture fault", "error", err.Error())
	if hook := r.session.hooks.OnFault; hook != nil {
		hook(err)
	}
}

func (r *run) abandon() {
	if !r.claim() {
		return
	}
	defer r.finish()
	r.settle()
	r.shutdown()
	if err := r.release(); err != nil {
		r.session.logger.Debug("release on context done failed", "error", err.Error())
	}
	r.session.detach(r)
}
