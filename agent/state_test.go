package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusInitial, StatusIdle, true},
		{StatusIdle, StatusActivating, true},
		{StatusActivating, StatusWorking, true},
		{StatusWorking, StatusComplete, true},
		{StatusWorking, StatusError, true},
		{StatusWorking, StatusAssistance, true},
		{StatusError, StatusWorking, true},
		{StatusAssistance, StatusWorking, true},

		{StatusInitial, StatusWorking, false},
		{StatusIdle, StatusWorking, false},
		{StatusComplete, StatusWorking, false},
		{StatusComplete, StatusIdle, false},
		{StatusError, StatusIdle, false},
		{StatusWorking, StatusIdle, false},
		{Status("bogus"), StatusIdle, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestEditable(t *testing.T) {
	assert.True(t, Editable(StatusInitial))
	assert.True(t, Editable(StatusError))
	assert.True(t, Editable(StatusAssistance))

	assert.False(t, Editable(StatusIdle))
	assert.False(t, Editable(StatusActivating))
	assert.False(t, Editable(StatusWorking))
	assert.False(t, Editable(StatusComplete))
}

func TestTransitionError_Message(t *testing.T) {
	err := &TransitionError{AgentID: "node-1", Current: StatusIdle, Attempted: StatusComplete}
	assert.Contains(t, err.Error(), "node-1")
	assert.Contains(t, err.Error(), "idle -> complete")
}
