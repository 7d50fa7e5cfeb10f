package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

type jsoncConfig struct {
	Audio      *jsoncAudio      `json:"audio"`
	Capture    *jsoncCapture    `json:"capture"`
	Permission *jsoncPermission `json:"permission"`
	Handoff    *jsoncHandoff    `json:"handoff"`
	Upload     *jsoncUpload     `json:"upload"`
	Meter      *jsoncMeter      `json:"meter"`
	Indicator  *jsoncIndicator  `json:"indicator"`
	Log        *jsoncLog        `json:"log"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncCapture struct {
	SilenceThresholdDB *float64 `json:"silence_threshold_db"`
	SilenceDurationMS  *int     `json:"silence_duration_ms"`
	MaxDurationMS      *int     `json:"max_duration_ms"`
	StallTimeoutMS     *int     `json:"stall_timeout_ms"`
	KeepAudio          *bool    `json:"keep_audio"`
	Dir                *string  `json:"dir"`
}

type jsoncPermission struct {
	Mode *string `json:"mode"`
}

type jsoncHandoff struct {
	URL            *string  `json:"url"`
	Command        *string  `json:"command"`
	HealthGRPC     *string  `json:"health_grpc"`
	TimeoutMS      *int     `json:"timeout_ms"`
	VoiceID        *string  `json:"voice_id"`
	Speed          *float64 `json:"speed"`
	Emotion        *string  `json:"emotion"`
	Language       *string  `json:"language"`
	TargetLanguage *string  `json:"target_language"`
	STTOnly        *bool    `json:"stt_only"`
}

type jsoncUpload struct {
	Bucket          *string `json:"bucket"`
	Prefix          *string `json:"prefix"`
	Endpoint        *string `json:"endpoint"`
	Region          *string `json:"region"`
	AccessKeyID     *string `json:"access_key_id"`
	SecretAccessKey *string `json:"secret_access_key"`
}

type jsoncMeter struct {
	Listen         *string          `json:"listen"`
	PeakHoldMS     *int             `json:"peak_hold_ms"`
	AllowedOrigins *jsoncStringList `json:"allowed_origins"`
}

type jsoncIndicator struct {
	SoundEnable *bool `json:"sound_enable"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if payload.Audio != nil {
		setString(&cfg.Audio.Input, payload.Audio.Input)
		setString(&cfg.Audio.Fallback, payload.Audio.Fallback)
	}

	if c := payload.Capture; c != nil {
		if c.SilenceThresholdDB != nil {
			cfg.Capture.SilenceThresholdDB = *c.SilenceThresholdDB
		}
		setInt(&cfg.Capture.SilenceDurationMS, c.SilenceDurationMS)
		setInt(&cfg.Capture.MaxDurationMS, c.MaxDurationMS)
		setInt(&cfg.Capture.StallTimeoutMS, c.StallTimeoutMS)
		setBool(&cfg.Capture.KeepAudio, c.KeepAudio)
		setString(&cfg.Capture.Dir, c.Dir)
	}

	if payload.Permission != nil && payload.Permission.Mode != nil {
		cfg.Permission.Mode = strings.ToLower(strings.TrimSpace(*payload.Permission.Mode))
	}

	if h := payload.Handoff; h != nil {
		setString(&cfg.Handoff.URL, h.URL)
		setString(&cfg.Handoff.HealthGRPC, h.HealthGRPC)
		setInt(&cfg.Handoff.TimeoutMS, h.TimeoutMS)
		setString(&cfg.Handoff.VoiceID, h.VoiceID)
		if h.Speed != nil {
			cfg.Handoff.Speed = *h.Speed
		}
		setString(&cfg.Handoff.Emotion, h.Emotion)
		setString(&cfg.Handoff.Language, h.Language)
		setString(&cfg.Handoff.TargetLanguage, h.TargetLanguage)
		setBool(&cfg.Handoff.STTOnly, h.STTOnly)

		if h.Command != nil {
			raw := *h.Command
			argv, err := parseArgv(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid handoff.command: %w", err)
			}
			cfg.Handoff.Command = CommandConfig{Raw: raw, Argv: argv}
		}
	}

	if u := payload.Upload; u != nil {
		setString(&cfg.Upload.Bucket, u.Bucket)
		setString(&cfg.Upload.Prefix, u.Prefix)
		setString(&cfg.Upload.Endpoint, u.Endpoint)
		setString(&cfg.Upload.Region, u.Region)
		setString(&cfg.Upload.AccessKeyID, u.AccessKeyID)
		setString(&cfg.Upload.SecretAccessKey, u.SecretAccessKey)
		if cfg.Upload.SecretAccessKey != "" {
			warnings = append(warnings, Warning{Message: "upload.secret_access_key is stored in plain text; prefer AWS_SECRET_ACCESS_KEY"})
		}
	}

	if m := payload.Meter; m != nil {
		setString(&cfg.Meter.Listen, m.Listen)
		setInt(&cfg.Meter.PeakHoldMS, m.PeakHoldMS)
		if m.AllowedOrigins != nil {
			cfg.Meter.AllowedOrigins = append([]string(nil), (*m.AllowedOrigins)...)
		}
	}

	if payload.Indicator != nil {
		setBool(&cfg.Indicator.SoundEnable, payload.Indicator.SoundEnable)
	}

	if payload.Log != nil && payload.Log.Level != nil {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(*payload.Log.Level))
	}

	return warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
