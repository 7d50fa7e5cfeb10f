package indicator

import (
	"math"
	"sync"
	"time"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueCancel
	cueError
)

const (
	cueSampleRate = 16000
	cueGap        = 22 * time.Millisecond
	// cueRamp caps the fade in/out that keeps tone edges from clicking.
	cueRamp = 5 * time.Millisecond
)

func (k cueKind) String() string {
	switch k {
	case cueStart:
		return "start"
	case cueStop:
		return "stop"
	case cueComplete:
		return "complete"
	case cueCancel:
		return "cancel"
	case cueError:
		return "error"
	default:
		return "unknown"
	}
}

// tone is one sine segment of a cue.
type tone struct {
	hz     float64
	length time.Duration
	gain   float64
}

// Rising pairs open and finish a capture, falling pairs close or abandon it.
var cueTable = map[cueKind][]tone{
	cueStart:    {{hz: 660, length: 60 * time.Millisecond, gain: 0.18}, {hz: 990, length: 80 * time.Millisecond, gain: 0.18}},
	cueStop:     {{hz: 990, length: 60 * time.Millisecond, gain: 0.16}, {hz: 660, length: 80 * time.Millisecond, gain: 0.16}},
	cueComplete: {{hz: 784, length: 60 * time.Millisecond, gain: 0.18}, {hz: 1047, length: 100 * time.Millisecond, gain: 0.18}},
	cueCancel:   {{hz: 440, length: 120 * time.Millisecond, gain: 0.16}},
	cueError:    {{hz: 311, length: 90 * time.Millisecond, gain: 0.2}, {hz: 311, length: 90 * time.Millisecond, gain: 0.2}, {hz: 233, length: 150 * time.Millisecond, gain: 0.2}},
}

var renderedCues = sync.OnceValue(func() map[cueKind][]int16 {
	out := make(map[cueKind][]int16, len(cueTable))
	for kind, tones := range cueTable {
		out[kind] = renderCue(tones)
	}
	return out
})

// cueSamples returns the rendered PCM for kind, or nil for an unknown cue.
func cueSamples(kind cueKind) []int16 {
	return renderedCues()[kind]
}

// renderCue concatenates tones with a short silent gap between them.
func renderCue(tones []tone) []int16 {
	var pcm []int16
	for i, t := range tones {
		if i > 0 {
			pcm = append(pcm, make([]int16, sampleCount(cueGap))...)
		}
		pcm = append(pcm, t.render()...)
	}
	return pcm
}

func (t tone) render() []int16 {
	n := sampleCount(t.length)
	if n == 0 || t.hz <= 0 || t.gain <= 0 {
		return nil
	}

	ramp := min(max(n/10, 1), sampleCount(cueRamp))
	step := 2 * math.Pi * t.hz / cueSampleRate
	pcm := make([]int16, n)
	for i := range pcm {
		fade := min(1, float64(i)/float64(ramp), float64(n-1-i)/float64(ramp))
		pcm[i] = int16(math.Round(math.Sin(step*float64(i)) * t.gain * fade * math.MaxInt16))
	}
	return pcm
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
