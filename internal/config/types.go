// Package config resolves, parses, validates, and defaults hark configuration.
package config

// Config is the fully materialized runtime configuration used by hark.
type Config struct {
	Audio      AudioConfig      `json:"audio"`
	Capture    CaptureConfig    `json:"capture"`
	Permission PermissionConfig `json:"permission"`
	Handoff    HandoffConfig    `json:"handoff"`
	Upload     UploadConfig     `json:"upload"`
	Meter      MeterConfig      `json:"meter"`
	Indicator  IndicatorConfig  `json:"indicator"`
	Log        LogConfig        `json:"log"`
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string `json:"input"`
	Fallback string `json:"fallback"`
}

// CaptureConfig controls end-of-utterance detection and artifact retention.
type CaptureConfig struct {
	SilenceThresholdDB float64 `json:"silence_threshold_db" validate:"gte=-120,lte=0"`
	SilenceDurationMS  int     `json:"silence_duration_ms" validate:"gte=100,lte=60000"`
	MaxDurationMS      int     `json:"max_duration_ms" validate:"gte=0"`
	StallTimeoutMS     int     `json:"stall_timeout_ms" validate:"gte=0"`
	KeepAudio          bool    `json:"keep_audio"`
	Dir                string  `json:"dir"`
}

// PermissionConfig selects how microphone consent is obtained.
type PermissionConfig struct {
	Mode string `json:"mode" validate:"oneof=allow prompt deny"`
}

// HandoffConfig describes the downstream transcription/reply service and the
// request envelope sent with every recording.
type HandoffConfig struct {
	URL            string        `json:"url" validate:"omitempty,url"`
	Command        CommandConfig `json:"command"`
	HealthGRPC     string        `json:"health_grpc" validate:"omitempty,hostname_port"`
	TimeoutMS      int           `json:"timeout_ms" validate:"gt=0"`
	VoiceID        string        `json:"voice_id"`
	Speed          float64       `json:"speed" validate:"gt=0,lte=4"`
	Emotion        string        `json:"emotion"`
	Language       string        `json:"language"`
	TargetLanguage string        `json:"target_language"`
	STTOnly        bool          `json:"stt_only"`
}

// UploadConfig enables S3 archival of finished recordings.
type UploadConfig struct {
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	Endpoint        string `json:"endpoint" validate:"omitempty,url"`
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// Enabled reports whether archival is configured.
func (u UploadConfig) Enabled() bool {
	return u.Bucket != ""
}

// MeterConfig controls the live level feed.
type MeterConfig struct {
	Listen         string   `json:"listen" validate:"omitempty,hostname_port"`
	PeakHoldMS     int      `json:"peak_hold_ms" validate:"gte=0"`
	AllowedOrigins []string `json:"allowed_origins" validate:"dive,url"`
}

// IndicatorConfig controls audio cue behavior.
type IndicatorConfig struct {
	SoundEnable bool `json:"sound_enable"`
}

// LogConfig controls the structured log sink.
type LogConfig struct {
	Level string `json:"level" validate:"oneof=debug info warn error"`
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string   `json:"-"`
	Argv []string `json:"-"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
