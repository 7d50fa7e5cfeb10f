package recorder

import (
	"fmt"
	"math"
	"time"

	"github.com/rbright/hark/internal/vad"
)

// Config is fixed for the lifetime of one capture.
type Config struct {
	SilenceThresholdDB float64
	SilenceDuration    time.Duration
	// MaxDuration caps the capture on the capture clock. Zero disables it.
	MaxDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		SilenceThresholdDB: vad.DefaultThresholdDB,
		SilenceDuration:    vad.DefaultSilenceDuration,
	}
}

func (c Config) Validate() error {
	if math.IsNaN(c.SilenceThresholdDB) || math.IsInf(c.SilenceThresholdDB, 0) {
		return fmt.Errorf("silence threshold must be finite")
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("silence duration must be > 0")
	}
	if c.MaxDuration < 0 {
		return fmt.Errorf("max duration must be >= 0")
	}
	return nil
}

func (c Config) detector() vad.Config {
	return vad.Config{
		ThresholdDB:     c.SilenceThresholdDB,
		SilenceDuration: c.SilenceDuration,
	}
}
