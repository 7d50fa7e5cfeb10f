package vad

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/hark/internal/fsm"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func newStarted() *Detector {
	d := New(Config{ThresholdDB: -50, SilenceDuration: 2 * time.Second})
	d.Start()
	return d
}

func TestDetectorIdleIgnoresSamples(t *testing.T) {
	d := New(Config{ThresholdDB: -50, SilenceDuration: time.Second})
	require.Equal(t, fsm.StateIdle, d.State())

	sig := d.OnSample(-10, 0)
	require.Equal(t, SignalNone, sig.Kind)
	require.Equal(t, fsm.StateIdle, d.State())
}

func TestDetectorAmbientNoiseNeverCompletes(t *testing.T) {
	d := newStarted()
	for i := 0; i < 1000; i++ {
		sig := d.OnSample(-50, ms(i*100))
		require.Equal(t, SignalNone, sig.Kind)
	}
	require.Equal(t, fsm.StateListening, d.State())
	require.False(t, d.HasSpoken())

	_, armed := d.Deadline()
	require.False(t, armed)
	require.Equal(t, SignalNone, d.OnTimerFire(d.Generation()).Kind)
}

func TestDetectorThresholdIsStrict(t *testing.T) {
	d := newStarted()
	require.Equal(t, SignalNone, d.OnSample(-50, 0).Kind)
	require.Equal(t, SignalSpeechStarted, d.OnSample(-49.999, ms(20)).Kind)
}

func TestDetectorScenarioCompletesAfterSustainedSilence(t *testing.T) {
	d := newStarted()

	require.Equal(t, SignalNone, d.OnSample(-60, ms(0)).Kind)
	require.Equal(t, SignalSpeechStarted, d.OnSample(-40, ms(100)).Kind)

	armed := d.OnSample(-60, ms(2300))
	require.Equal(t, SignalSilenceArmed, armed.Kind)
	require.Equal(t, ms(4300), armed.Deadline)
	require.Equal(t, fsm.StateSilencePending, d.State())

	done := d.OnSample(-60, ms(4301))
	require.Equal(t, SignalEndOfUtterance, done.Kind)
	require.Equal(t, fsm.StateCompleted, d.State())

	require.Equal(t, SignalNone, d.OnSample(-60, ms(6000)).Kind)
	require.Equal(t, SignalNone, d.OnTimerFire(armed.Generation).Kind)
}

func TestDetectorScenarioRenewedSpeechResetsDeadline(t *testing.T) {
	d := newStarted()

	require.Equal(t, SignalSpeechStarted, d.OnSample(-40, ms(0)).Kind)

	first := d.OnSample(-60, ms(500))
	require.Equal(t, SignalSilenceArmed, first.Kind)
	require.Equal(t, ms(2500), first.Deadline)

	require.Equal(t, SignalSilenceDisarmed, d.OnSample(-40, ms(1000)).Kind)
	require.Equal(t, fsm.StateSpeaking, d.State())

	// stale fire for the disarmed deadline
	require.Equal(t, SignalNone, d.OnTimerFire(first.Generation).Kind)
	require.Equal(t, fsm.StateSpeaking, d.State())

	second := d.OnSample(-60, ms(3500))
	require.Equal(t, SignalSilenceArmed, second.Kind)
	require.Equal(t, ms(5500), second.Deadline)

	require.Equal(t, SignalNone, d.OnSample(-60, ms(2500)).Kind)
	require.Equal(t, SignalNone, d.OnTimerFire(first.Generation).Kind)
	require.Equal(t, SignalNone, d.OnSample(-60, ms(5499)).Kind)

	require.Equal(t, SignalEndOfUtterance, d.OnTimerFire(second.Generation).Kind)
	require.Equal(t, fsm.StateCompleted, d.State())
}

func TestDetectorCompletesExactlyOnce(t *testing.T) {
	d := newStarted()
	d.OnSample(-20, ms(0))
	armed := d.OnSample(-80, ms(20))

	completions := 0
	inputs := []func() Signal{
		func() Signal { return d.OnTimerFire(armed.Generation) },
		func() Signal { return d.OnSample(-80, ms(5000)) },
		func() Signal { return d.OnTimerFire(armed.Generation) },
		func() Signal { return d.OnSample(-20, ms(6000)) },
	}
	for _, in := range inputs {
		if in().Kind == SignalEndOfUtterance {
			completions++
		}
	}
	require.Equal(t, 1, completions)
}

func TestDetectorIgnoresSamplesOnceCompleted(t *testing.T) {
	d := newStarted()
	d.OnSample(-20, ms(0))
	armed := d.OnSample(-80, ms(20))
	require.Equal(t, SignalEndOfUtterance, d.OnTimerFire(armed.Generation).Kind)
	require.Equal(t, fsm.StateCompleted, d.State())

	require.Equal(t, Signal{}, d.OnSample(-10, ms(3000)))
	require.Equal(t, fsm.StateCompleted, d.State())
}

func TestDetectorStopInvalidatesArmedTimer(t *testing.T) {
	d := newStarted()
	d.OnSample(-20, ms(0))
	armed := d.OnSample(-80, ms(20))
	require.Equal(t, SignalSilenceArmed, armed.Kind)

	d.Stop()
	require.Equal(t, fsm.StateIdle, d.State())
	require.Equal(t, SignalNone, d.OnTimerFire(armed.Generation).Kind)

	d.Start()
	require.Equal(t, fsm.StateListening, d.State())
	require.False(t, d.HasSpoken())
	require.Equal(t, SignalNone, d.OnTimerFire(armed.Generation).Kind)
}

func TestDetectorOutOfOrderTimestampsAreClamped(t *testing.T) {
	d := newStarted()
	d.OnSample(-20, ms(1000))
	armed := d.OnSample(-80, ms(500))
	require.Equal(t, SignalSilenceArmed, armed.Kind)
	require.Equal(t, ms(3000), armed.Deadline)
}

func TestNewAppliesDefaultSilenceDuration(t *testing.T) {
	d := New(Config{ThresholdDB: -45})
	require.Equal(t, DefaultSilenceDuration, d.Config().SilenceDuration)
}

func TestSignalKindString(t *testing.T) {
	require.Equal(t, "end_of_utterance", SignalEndOfUtterance.String())
	require.Equal(t, "unknown", SignalKind(99).String())
}
