package uevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionStrings(t *testing.T) {
	want := []string{"add", "remove", "change", "move", "online", "offline"}
	actions := Actions()
	require.Len(t, actions, len(want))
	for i, a := range actions {
		assert.Equal(t, want[i], a.String())
		assert.Equal(t, uint8(i), uint8(a))
		assert.True(t, a.Valid())
	}
	assert.False(t, Action(6).Valid())
	assert.Equal(t, "action(6)", Action(6).String())
}

func TestParseAction(t *testing.T) {
	for _, a := range Actions() {
		got, err := ParseAction(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)

		got, err = ParseAction(a.String() + "\n")
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}

	_, err := ParseAction("explode")
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = ParseAction("ADD")
	assert.ErrorIs(t, err, ErrUnknownAction)
}
