package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

const (
	// MinDB is the floor reported for digital silence.
	MinDB = -90.0
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
	// ClipThreshold is slightly below max to catch near-clips.
	ClipThreshold int16 = 32760
)

// LevelData accumulates S16LE mono samples for one metering window.
type LevelData struct {
	SumSquares  float64
	Peak        float64
	ClipCount   int
	SampleCount int
}

// ProcessSamples accumulates level data from S16LE mono PCM.
func ProcessSamples(buf []byte, data *LevelData) {
	for i := 0; i+1 < len(buf); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(buf[i:]))
		value := float64(sample)

		data.SumSquares += value * value
		if abs := math.Abs(value); abs > data.Peak {
			data.Peak = abs
		}
		if sample >= ClipThreshold || sample <= -ClipThreshold {
			data.ClipCount++
		}
		data.SampleCount++
	}
}

// Levels holds one window's readings in dBFS.
type Levels struct {
	RMS  float64
	Peak float64
	Clip int
}

// CalculateLevels computes RMS and peak dBFS from accumulated sample data.
func CalculateLevels(data *LevelData) Levels {
	if data.SampleCount == 0 {
		return Levels{RMS: MinDB, Peak: MinDB}
	}

	rms := math.Sqrt(data.SumSquares / float64(data.SampleCount))
	return Levels{
		RMS:  toDB(rms),
		Peak: toDB(data.Peak),
		Clip: data.ClipCount,
	}
}

func toDB(amplitude float64) float64 {
	if amplitude <= 0 {
		return MinDB
	}
	return max(20*math.Log10(amplitude/MaxSampleValue), MinDB)
}

// Reset clears accumulators for the next window.
func (d *LevelData) Reset() {
	*d = LevelData{}
}

// DefaultPeakHoldDuration is how long a peak is held before it may decay.
const DefaultPeakHoldDuration = 1500 * time.Millisecond

// PeakHolder tracks peak-hold state for level meters. It is safe for
// concurrent use.
type PeakHolder struct {
	mu           sync.Mutex
	held         float64
	heldAt       time.Time
	holdDuration time.Duration
}

func NewPeakHolder(hold time.Duration) *PeakHolder {
	if hold <= 0 {
		hold = DefaultPeakHoldDuration
	}
	return &PeakHolder{held: MinDB, holdDuration: hold}
}

// Update records a new peak and returns the held value.
func (p *PeakHolder) Update(peak float64, now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if peak >= p.held || now.Sub(p.heldAt) > p.holdDuration {
		p.held = peak
		p.heldAt = now
	}
	return p.held
}

// Reset clears the held peak.
func (p *PeakHolder) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = MinDB
	p.heldAt = time.Time{}
}
