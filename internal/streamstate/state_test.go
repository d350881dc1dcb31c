package streamstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
	}{
		{Open, false},
		{Streaming, false},
		{Completed, true},
		{Failed, true},
		{Cancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.state.IsTerminal())
			assert.Equal(t, !tt.terminal, tt.state.IsActive())
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(Open, Streaming))
	assert.True(t, CanTransition(Open, Completed)) // empty stream
	assert.True(t, CanTransition(Streaming, Completed))
	assert.True(t, CanTransition(Streaming, Failed))
	assert.True(t, CanTransition(Streaming, Cancelled))

	assert.False(t, CanTransition(Streaming, Open))
	assert.False(t, CanTransition(Streaming, Streaming))
	assert.False(t, CanTransition(Completed, Failed))
	assert.False(t, CanTransition("bogus", Streaming))
}

func TestTerminalStatesCannotTransition(t *testing.T) {
	for _, terminal := range TerminalStates() {
		for _, target := range AllStates() {
			assert.False(t, CanTransition(terminal, target),
				"terminal state %s should not transition to %s", terminal, target)
		}
	}
}

func TestParse(t *testing.T) {
	require.Len(t, AllStates(), 5)

	for _, s := range AllStates() {
		got, ok := Parse(s.String())
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	_, ok := Parse("STREAMING")
	assert.False(t, ok)
	_, ok = Parse("")
	assert.False(t, ok)
}
