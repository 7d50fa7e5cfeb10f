// Package fsm holds the end-of-utterance state machine as a pure transition table.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle           State = "idle"
	StateListening      State = "listening"
	StateSpeaking       State = "speaking"
	StateSilencePending State = "silence_pending"
	StateCompleted      State = "completed"
)

const (
	// EventStart begins listening for speech.
	EventStart Event = "start"
	// EventSpeech is a sample strictly above the silence threshold.
	EventSpeech Event = "speech"
	// EventSilence is a sample at or below the silence threshold.
	EventSilence Event = "silence"
	// EventDeadline is the armed silence deadline elapsing.
	EventDeadline Event = "deadline"
	// EventStop returns the machine to idle from any state.
	EventStop Event = "stop"
)

func Transition(current State, event Event) (State, error) {
	if event == EventStop {
		switch current {
		case StateIdle, StateListening, StateSpeaking, StateSilencePending, StateCompleted:
			return StateIdle, nil
		}
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventSpeech:
			return StateSpeaking, nil
		case EventSilence:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSpeaking:
		switch event {
		case EventSpeech:
			return StateSpeaking, nil
		case EventSilence:
			return StateSilencePending, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSilencePending:
		switch event {
		case EventSpeech:
			return StateSpeaking, nil
		case EventSilence:
			return StateSilencePending, nil
		case EventDeadline:
			return StateCompleted, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateCompleted:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Terminal reports whether no further detection events are accepted.
func Terminal(state State) bool {
	return state == StateCompleted
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
