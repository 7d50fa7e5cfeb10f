package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Capture: CaptureConfig{
			SilenceThresholdDB: -50,
			SilenceDurationMS:  2000,
			StallTimeoutMS:     2000,
		},
		Permission: PermissionConfig{Mode: "allow"},
		Handoff: HandoffConfig{
			TimeoutMS: 20000,
			Speed:     1.0,
			Language:  "en",
			STTOnly:   true,
		},
		Upload: UploadConfig{
			Prefix: "hark",
			Region: "auto",
		},
		Meter:     MeterConfig{PeakHoldMS: 1500},
		Indicator: IndicatorConfig{SoundEnable: true},
		Log:       LogConfig{Level: "info"},
	}
}
