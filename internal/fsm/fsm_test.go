package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	s := StateIdle

	next, err := Transition(s, EventStart)
	require.NoError(t, err)
	require.Equal(t, StateListening, next)

	next, err = Transition(next, EventSpeech)
	require.NoError(t, err)
	require.Equal(t, StateSpeaking, next)

	next, err = Transition(next, EventSilence)
	require.NoError(t, err)
	require.Equal(t, StateSilencePending, next)

	next, err = Transition(next, EventDeadline)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, next)
	require.True(t, Terminal(next))
}

func TestTransitionRenewedSpeechReturnsToSpeaking(t *testing.T) {
	next, err := Transition(StateSilencePending, EventSpeech)
	require.NoError(t, err)
	require.Equal(t, StateSpeaking, next)
}

func TestTransitionStopFromAnyStateGoesIdle(t *testing.T) {
	states := []State{StateIdle, StateListening, StateSpeaking, StateSilencePending, StateCompleted}
	for _, state := range states {
		next, err := Transition(state, EventStop)
		require.NoError(t, err)
		require.Equal(t, StateIdle, next)
	}
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "idle speech invalid", state: StateIdle, event: EventSpeech, want: StateIdle, wantErr: true},
		{name: "idle deadline invalid", state: StateIdle, event: EventDeadline, want: StateIdle, wantErr: true},
		{name: "listening silence stays", state: StateListening, event: EventSilence, want: StateListening},
		{name: "listening deadline invalid", state: StateListening, event: EventDeadline, want: StateListening, wantErr: true},
		{name: "listening start invalid", state: StateListening, event: EventStart, want: StateListening, wantErr: true},
		{name: "speaking speech stays", state: StateSpeaking, event: EventSpeech, want: StateSpeaking},
		{name: "speaking deadline invalid", state: StateSpeaking, event: EventDeadline, want: StateSpeaking, wantErr: true},
		{name: "pending silence stays", state: StateSilencePending, event: EventSilence, want: StateSilencePending},
		{name: "pending start invalid", state: StateSilencePending, event: EventStart, want: StateSilencePending, wantErr: true},
		{name: "completed speech invalid", state: StateCompleted, event: EventSpeech, want: StateCompleted, wantErr: true},
		{name: "completed deadline invalid", state: StateCompleted, event: EventDeadline, want: StateCompleted, wantErr: true},
		{name: "completed start invalid", state: StateCompleted, event: EventStart, want: StateCompleted, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid transition")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := Transition(State("mystery"), EventStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)
}

func TestTerminalOnlyForCompleted(t *testing.T) {
	for _, state := range []State{StateIdle, StateListening, StateSpeaking, StateSilencePending} {
		require.False(t, Terminal(state), state)
	}
}
