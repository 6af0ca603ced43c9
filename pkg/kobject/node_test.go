package kobject

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/objreg/pkg/kref"
)

func TestNodeInit(t *testing.T) {
	n := NewNode(&Type{Name: "t"})
	assert.Equal(t, StateInitialized, n.State())
	assert.Equal(t, int32(1), n.RefCount())
	assert.Equal(t, "t", n.Type().Name)
}

func TestNodeInitTwicePanics(t *testing.T) {
	n := NewNode(&Type{})
	assert.PanicsWithValue(t, kref.ErrAlreadyInitialized, func() { n.Init(&Type{}) })
}

func TestNodeInitNilTypePanics(t *testing.T) {
	var n Node
	assert.Panics(t, func() { n.Init(nil) })
}

func TestNodeReleaseOnce(t *testing.T) {
	calls := 0
	n := NewNode(&Type{Release: func(*Node) { calls++ }})
	n.Get()
	n.Put()
	assert.Equal(t, 0, calls)
	n.Put()
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateDestroyed, n.State())
	assert.Panics(t, func() { n.Get() })
	assert.False(t, n.GetUnlessZero())
}

func TestNodeSetName(t *testing.T) {
	n := NewNode(&Type{})
	require.NoError(t, n.SetName("eth0"))
	assert.Equal(t, "eth0", n.Name())

	assert.True(t, errors.Is(n.SetName(""), ErrInvalidName))
	assert.True(t, errors.Is(n.SetName(".."), ErrInvalidName))
	assert.True(t, errors.Is(n.SetName("a\x00b"), ErrInvalidName))
}

func TestNodeSetNameAfterRegistration(t *testing.T) {
	env := newTestEnv(t)
	n := env.mustAdd(t, nil, "bus")
	assert.True(t, errors.Is(n.SetName("other"), ErrInvalidState))
	assert.True(t, errors.Is(n.SetGroup(nil), ErrInvalidState))
	assert.Equal(t, "bus", n.Name())
}

func TestNodeData(t *testing.T) {
	n := NewNode(&Type{})
	assert.Nil(t, n.Data())
	n.SetData(42)
	assert.Equal(t, 42, n.Data())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "registered", StateRegistered.String())
	assert.Equal(t, "destroyed", StateDestroyed.String())
	assert.Equal(t, "unknown", State(200).String())
}

func TestEscapeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"dev0", "dev0"},
		{"a/b", "a!b"},
		{"tab\there", `tab\x09here`},
		{"caf\xc3\xa9", `caf\xc3\xa9`},
		{`back\slash`, `back\x5cslash`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeName(tt.in), "EscapeName(%q)", tt.in)
	}
}

func TestAttributeModes(t *testing.T) {
	show := func(*Node, *Attribute) ([]byte, error) { return nil, nil }
	store := func(*Node, *Attribute, []byte) (int, error) { return 0, nil }

	ro := &Attribute{Name: "ro", Mode: 0o444, Show: show, Store: store}
	assert.True(t, ro.Readable())
	assert.False(t, ro.Writable())

	wo := &Attribute{Name: "wo", Mode: 0o200, Store: store}
	assert.False(t, wo.Readable())
	assert.True(t, wo.Writable())
}
