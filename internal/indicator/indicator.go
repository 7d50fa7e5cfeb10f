// Package indicator plays short audio cues for capture lifecycle events.
package indicator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rbright/hark/internal/config"
)

// Cues is the session-facing indicator contract.
type Cues interface {
	CueStart(context.Context)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	CueError(context.Context)
}

// Player emits synthesized cues through PulseAudio.
type Player struct {
	cfg    config.IndicatorConfig
	logger *slog.Logger
	play   func(context.Context, []int16) error

	soundMu sync.Mutex
	wg      sync.WaitGroup
}

// NewPlayer creates a cue player from config.
func NewPlayer(cfg config.IndicatorConfig, logger *slog.Logger) *Player {
	return &Player{cfg: cfg, logger: logger, play: playPulse}
}

// CueStart signals the microphone is open.
func (p *Player) CueStart(ctx context.Context) { p.playCue(ctx, cueStart) }

// CueStop signals capture ended and the recording is being handed off.
func (p *Player) CueStop(ctx context.Context) { p.playCue(ctx, cueStop) }

// CueComplete signals a successful handoff.
func (p *Player) CueComplete(ctx context.Context) { p.playCue(ctx, cueComplete) }

// CueCancel signals the capture was discarded.
func (p *Player) CueCancel(ctx context.Context) { p.playCue(ctx, cueCancel) }

// CueError signals a failed capture or handoff.
func (p *Player) CueError(ctx context.Context) { p.playCue(ctx, cueError) }

// Wait blocks until queued cues have finished.
func (p *Player) Wait() {
	p.wg.Wait()
}

// playCue serializes cue playback and emits audio asynchronously.
func (p *Player) playCue(ctx context.Context, kind cueKind) {
	if !p.cfg.SoundEnable {
		return
	}
	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.soundMu.Lock()
		defer p.soundMu.Unlock()
		if err := emitCue(ctx, kind, p.play); err != nil {
			p.log(kind, err)
		}
	}()
}

// log records cue failures at debug level; a missing sound server is common.
func (p *Player) log(kind cueKind, err error) {
	if p.logger == nil || err == nil {
		return
	}
	p.logger.Debug("indicator audio cue failed", "cue", kind.String(), "error", err.Error())
}
