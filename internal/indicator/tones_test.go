package indicator

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/stretchr/testify/require"
)

func TestEveryCueRenders(t *testing.T) {
	for _, kind := range []cueKind{cueStart, cueStop, cueComplete, cueCancel, cueError} {
		require.NotEmpty(t, cueSamples(kind), kind.String())
	}
	require.Empty(t, cueSamples(cueKind(99)))
	require.Equal(t, "unknown", cueKind(99).String())
}

func TestToneRenderLengthAndFades(t *testing.T) {
	pcm := tone{hz: 440, length: 100 * time.Millisecond, gain: 0.2}.render()
	require.Len(t, pcm, sampleCount(100*time.Millisecond))
	require.Zero(t, pcm[0])
	require.Zero(t, pcm[len(pcm)-1])

	peak := 0
	for _, s := range pcm {
		peak = max(peak, int(math.Abs(float64(s))))
	}
	require.InDelta(t, 0.2*math.MaxInt16, peak, 200)
}

func TestToneRenderEmptyTone(t *testing.T) {
	require.Empty(t, tone{hz: 0, length: 100 * time.Millisecond, gain: 0.2}.render())
	require.Empty(t, tone{hz: 440, length: 0, gain: 0.2}.render())
	require.Empty(t, tone{hz: 440, length: 100 * time.Millisecond, gain: 0}.render())
}

func TestRenderCueInsertsGaps(t *testing.T) {
	tones := []tone{
		{hz: 440, length: 50 * time.Millisecond, gain: 0.2},
		{hz: 660, length: 50 * time.Millisecond, gain: 0.2},
	}
	got := renderCue(tones)
	require.Len(t, got, 2*sampleCount(50*time.Millisecond)+sampleCount(cueGap))
	require.Nil(t, renderCue(nil))
}

func TestSampleCount(t *testing.T) {
	require.Equal(t, 0, sampleCount(0))
	require.Equal(t, 0, sampleCount(-time.Second))
	require.Equal(t, 400, sampleCount(25*time.Millisecond))
}

func TestEmitCueRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := emitCue(ctx, cueStart, func(context.Context, []int16) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestEmitCuePassesSamplesWithDeadline(t *testing.T) {
	var got []int16
	err := emitCue(context.Background(), cueCancel, func(ctx context.Context, samples []int16) error {
		_, hasDeadline := ctx.Deadline()
		require.True(t, hasDeadline)
		got = samples
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, cueSamples(cueCancel), got)
}

func TestEmitCueSkipsUnknownKind(t *testing.T) {
	err := emitCue(context.Background(), cueKind(42), func(context.Context, []int16) error {
		t.Fatal("unknown cue must not play")
		return nil
	})
	require.NoError(t, err)
}

func TestPCMSourceDrainsThenEnds(t *testing.T) {
	src := &pcmSource{ctx: context.Background(), samples: []int16{1, 2, 3, 4, 5}}
	buf := make([]int16, 3)

	n, err := src.read(buf)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []int16{1, 2, 3}, buf)

	n, err = src.read(buf)
	require.ErrorIs(t, err, pulse.EndOfData)
	require.Equal(t, 2, n)

	n, err = src.read(buf)
	require.ErrorIs(t, err, pulse.EndOfData)
	require.Zero(t, n)
}

func TestPCMSourceStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &pcmSource{ctx: ctx, samples: make([]int16, 100)}
	cancel()

	n, err := src.read(make([]int16, 10))
	require.ErrorIs(t, err, pulse.EndOfData)
	require.Zero(t, n)
}
