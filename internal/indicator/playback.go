package indicator

import (
	"context"
	"fmt"
	"time"

	"github.com/jfreymuth/pulse"
)

// cueTimeout bounds one cue, connection setup included.
const cueTimeout = 4 * time.Second

func emitCue(ctx context.Context, kind cueKind, play func(context.Context, []int16) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, cueTimeout)
	defer cancel()
	return play(ctx, samples)
}

// pcmSource feeds a fixed buffer to a playback stream and stops early when
// ctx ends.
type pcmSource struct {
	ctx     context.Context
	samples []int16
	pos     int
}

func (s *pcmSource) read(buf []int16) (int, error) {
	if s.pos >= len(s.samples) || s.ctx.Err() != nil {
		return 0, pulse.EndOfData
	}
	n := copy(buf, s.samples[s.pos:])
	s.pos += n
	if s.pos >= len(s.samples) {
		return n, pulse.EndOfData
	}
	return n, nil
}

// playPulse plays mono 16 kHz PCM on the default PulseAudio sink.
func playPulse(ctx context.Context, samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("hark"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	src := &pcmSource{ctx: ctx, samples: samples}
	stream, err := client.NewPlayback(
		pulse.Int16Reader(src.read),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("hark cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}
