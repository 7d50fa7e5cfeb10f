// Package handoff delivers finished recordings to the downstream
// transcription/reply service.
package handoff

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rbright/hark/internal/config"
)

// Envelope carries the reply preferences sent with every recording.
type Envelope struct {
	VoiceID        string  `json:"voice_id,omitempty"`
	Speed          float64 `json:"speed" validate:"gt=0,lte=4"`
	Emotion        string  `json:"emotion,omitempty"`
	Language       string  `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
	TargetLanguage string  `json:"target_language,omitempty" validate:"omitempty,bcp47_language_tag"`
	STTOnly        bool    `json:"stt_only"`
}

// Reply is the downstream answer for one recording.
type Reply struct {
	Transcript string `json:"transcript"`
	Reply      string `json:"reply,omitempty"`
	Audio      string `json:"audio,omitempty"`
	Silent     bool   `json:"silent,omitempty"`
	IsSTTOnly  bool   `json:"is_stt_only,omitempty"`
}

// Empty reports whether the service returned nothing usable.
func (r Reply) Empty() bool {
	return strings.TrimSpace(r.Transcript) == "" && strings.TrimSpace(r.Reply) == "" && r.Audio == ""
}

var envelopeValidate = validator.New(validator.WithRequiredStructEnabled())

// EnvelopeFromConfig builds the envelope described by the handoff section.
func EnvelopeFromConfig(cfg config.HandoffConfig) Envelope {
	return Envelope{
		VoiceID:        cfg.VoiceID,
		Speed:          cfg.Speed,
		Emotion:        cfg.Emotion,
		Language:       cfg.Language,
		TargetLanguage: cfg.TargetLanguage,
		STTOnly:        cfg.STTOnly,
	}
}

// Validate checks envelope field ranges before anything is sent.
func (e Envelope) Validate() error {
	err := envelopeValidate.Struct(e)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate envelope: %w", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("invalid envelope: %s", strings.Join(parts, "; "))
}

// Fields renders the envelope as flat form/env values.
func (e Envelope) Fields() map[string]string {
	fields := map[string]string{
		"speed":    strconv.FormatFloat(e.Speed, 'f', -1, 64),
		"stt_only": strconv.FormatBool(e.STTOnly),
	}
	set := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	set("voice_id", e.VoiceID)
	set("emotion", e.Emotion)
	set("language", e.Language)
	set("target_language", e.TargetLanguage)
	return fields
}
