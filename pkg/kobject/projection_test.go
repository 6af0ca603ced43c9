package kobject

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProjection struct {
	mock.Mock
}

func (m *mockProjection) CreateDir(spec DirSpec, parent ProjectionHandle) (ProjectionHandle, error) {
	args := m.Called(spec.Path, parent)
	return args.Get(0), args.Error(1)
}

func (m *mockProjection) RemoveDir(h ProjectionHandle) {
	m.Called(h)
}

func (m *mockProjection) RenameDir(h ProjectionHandle, name string) error {
	return m.Called(h, name).Error(0)
}

func (m *mockProjection) MoveDir(h, newParent ProjectionHandle) error {
	return m.Called(h, newParent).Error(0)
}

func TestProjectionCreateFailureRollsBack(t *testing.T) {
	proj := &mockProjection{}
	proj.On("CreateDir", "/bus", nil).Return("h-bus", nil)
	proj.On("CreateDir", "/bus/dev0", "h-bus").Return(nil, errors.New("no space"))

	out := &collector{}
	reg := New(Config{Projection: proj, Notifier: NewNotifier(NotifierConfig{Deliverer: out})})

	bus, err := reg.CreateAndAdd("bus", nil)
	require.NoError(t, err)

	dev := NewNode(&Type{})
	err = reg.Add(dev, bus, "dev0")
	assert.True(t, errors.Is(err, ErrProjection))

	assert.Equal(t, StateInitialized, dev.State())
	assert.Equal(t, 1, reg.Len())
	assert.Empty(t, reg.Children(bus))
	assert.Equal(t, int32(1), bus.RefCount())
	assert.Len(t, out.Messages(), 1, "no ADD for the failed node")
	proj.AssertExpectations(t)
}

func TestProjectionRenameFailureKeepsName(t *testing.T) {
	proj := &mockProjection{}
	proj.On("CreateDir", "/a", nil).Return("h-a", nil)
	proj.On("RenameDir", "h-a", "b").Return(errors.New("busy"))

	reg := New(Config{Projection: proj})
	n, err := reg.CreateAndAdd("a", nil)
	require.NoError(t, err)

	err = reg.Rename(n, "b")
	assert.True(t, errors.Is(err, ErrProjection))
	assert.Equal(t, "a", n.Name())
	proj.AssertExpectations(t)
}

func TestProjectionMoveFailureKeepsParent(t *testing.T) {
	proj := &mockProjection{}
	proj.On("CreateDir", "/a", nil).Return("h-a", nil)
	proj.On("CreateDir", "/b", nil).Return("h-b", nil)
	proj.On("CreateDir", "/a/n", "h-a").Return("h-n", nil)
	proj.On("MoveDir", "h-n", "h-b").Return(errors.New("busy"))

	reg := New(Config{Projection: proj})
	a, _ := reg.CreateAndAdd("a", nil)
	b, _ := reg.CreateAndAdd("b", nil)
	n, err := reg.CreateAndAdd("n", a)
	require.NoError(t, err)

	err = reg.Move(n, b)
	assert.True(t, errors.Is(err, ErrProjection))
	assert.Same(t, a, reg.Parent(n))
	assert.Equal(t, int32(1), b.RefCount())
	proj.AssertExpectations(t)
}

func TestProjectionRemoveTearsDownBottomUp(t *testing.T) {
	proj := &mockProjection{}
	proj.On("CreateDir", "/bus", nil).Return("h-bus", nil)
	proj.On("CreateDir", "/bus/dev0", "h-bus").Return("h-dev0", nil)

	var order []string
	proj.On("RemoveDir", mock.Anything).Run(func(args mock.Arguments) {
		order = append(order, args.Get(0).(string))
	}).Return()

	reg := New(Config{Projection: proj})
	bus, _ := reg.CreateAndAdd("bus", nil)
	_, err := reg.CreateAndAdd("dev0", bus)
	require.NoError(t, err)

	reg.Remove(bus)
	assert.Equal(t, []string{"h-dev0", "h-bus"}, order)
}

func TestProjectionActiveFollowsRegistration(t *testing.T) {
	env := newTestEnv(t)
	n := NewNode(&Type{})
	assert.False(t, n.ProjectionActive())

	require.NoError(t, env.reg.Add(n, nil, "a"))
	assert.True(t, n.ProjectionActive())

	env.reg.Remove(n)
	assert.False(t, n.ProjectionActive())
	assert.Equal(t, StateUnregistered, n.State())
	n.Put()
}
