// Package audio captures microphone PCM from PulseAudio, meters it and
// writes finished utterances as WAV artifacts.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const clientName = "hark"

// Source describes one Pulse input source.
type Source struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// String formats source metadata for logs and diagnostics.
func (s Source) String() string {
	description := strings.TrimSpace(s.Description)
	id := strings.TrimSpace(s.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Source   Source
	Warning  string
	Fallback bool
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(clientName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListSources returns Pulse input sources with default/availability metadata.
func ListSources(_ context.Context) ([]Source, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	sources := make([]Source, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		sources = append(sources, Source{
			ID:          info.SourceName,
			Description: info.Device,
			State:       sourceStateString(info.State),
			Available:   sourceAvailable(info),
			Muted:       info.Mute,
			Default:     info.SourceName == defaultID,
		})
	}
	return sources, nil
}

// SelectSource resolves audio.input/audio.fallback preferences against live sources.
func SelectSource(ctx context.Context, input string, fallback string) (Selection, error) {
	sources, err := ListSources(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectFromList(sources, input, fallback)
}

func selectFromList(sources []Source, input string, fallback string) (Selection, error) {
	if len(sources) == 0 {
		return Selection{}, errors.New("no audio input sources found")
	}

	var defaultSource, byInput, byFallback *Source

	input = strings.TrimSpace(strings.ToLower(input))
	fallback = strings.TrimSpace(strings.ToLower(fallback))

	for i := range sources {
		src := &sources[i]
		if src.Default {
			defaultSource = src
		}
		if byInput == nil && isExplicit(input) && sourceMatches(*src, input) {
			byInput = src
		}
		if byFallback == nil && isExplicit(fallback) && sourceMatches(*src, fallback) {
			byFallback = src
		}
	}

	primary := byInput
	switch {
	case !isExplicit(input):
		if defaultSource == nil {
			return Selection{}, errors.New("default audio source is unavailable")
		}
		primary = defaultSource
	case byInput == nil:
		return Selection{}, fmt.Errorf("audio.input %q did not match any source", input)
	}

	if primary.Available && !primary.Muted {
		return Selection{Source: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	alternate := defaultSource
	if isExplicit(fallback) {
		if byFallback == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, reason, fallback)
		}
		alternate = byFallback
	} else if alternate == nil {
		return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback", primary.ID, reason)
	}

	if !alternate.Available {
		return Selection{}, fmt.Errorf("audio fallback source %q is not available", alternate.ID)
	}
	if alternate.Muted {
		return Selection{}, fmt.Errorf("audio fallback source %q is muted", alternate.ID)
	}

	return Selection{
		Source:   *alternate,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, alternate.ID),
		Fallback: primary.ID != alternate.ID,
	}, nil
}

func isExplicit(term string) bool {
	return term != "" && term != "default"
}

// sourceMatches reports whether a search term matches a source id or description.
func sourceMatches(src Source, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(src.ID), term) ||
		strings.Contains(strings.ToLower(src.Description), term)
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

func sourceAvailable(info *pulseproto.GetSourceInfoReply) bool {
	if info == nil {
		return false
	}
	if len(info.Ports) == 0 {
		return true
	}
	for _, port := range info.Ports {
		if port.Name != info.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
