package kobject

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/objreg/pkg/uevent"
)

func TestGroupMembership(t *testing.T) {
	env := newTestEnv(t)
	g, err := env.reg.CreateGroupAndAdd("class", nil, nil)
	require.NoError(t, err)

	a := env.mustAdd(t, g.Node(), "a")
	b := env.mustAdd(t, g.Node(), "b")
	// Grandchildren inherit the group of their parent.
	c := env.mustAdd(t, a, "c")

	assert.Equal(t, []*Node{a, b, c}, g.Members())
	assert.Equal(t, 3, g.Len())
	for _, n := range g.Members() {
		assert.Same(t, g, env.reg.GroupOf(n))
	}
	// Own reference, a and b as children and members, c as member.
	assert.Equal(t, int32(6), g.Node().RefCount())

	env.reg.Remove(b)
	assert.Equal(t, []*Node{a, c}, g.Members())
	assert.Nil(t, env.reg.GroupOf(b))
}

func TestGroupParentDefaultsToGroupNode(t *testing.T) {
	env := newTestEnv(t)
	g, err := env.reg.CreateGroupAndAdd("net", nil, nil)
	require.NoError(t, err)

	n := NewNode(&Type{})
	require.NoError(t, n.SetGroup(g))
	require.NoError(t, env.reg.Add(n, nil, "eth0"))

	path, err := env.reg.Path(n)
	require.NoError(t, err)
	assert.Equal(t, "/net/eth0", path)
	assert.Same(t, g.Node(), env.reg.Parent(n))
}

func TestGroupExplicitOverridesInherited(t *testing.T) {
	env := newTestEnv(t)
	g1, err := env.reg.CreateGroupAndAdd("g1", nil, nil)
	require.NoError(t, err)
	g2, err := env.reg.CreateGroupAndAdd("g2", nil, nil)
	require.NoError(t, err)

	n := NewNode(&Type{})
	require.NoError(t, n.SetGroup(g2))
	require.NoError(t, env.reg.Add(n, g1.Node(), "x"))

	assert.Same(t, g2, env.reg.GroupOf(n))
	assert.Same(t, g1.Node(), env.reg.Parent(n))
	assert.Equal(t, 0, g1.Len())
	assert.Equal(t, 1, g2.Len())
}

func TestGroupUnregisteredExplicitGroup(t *testing.T) {
	env := newTestEnv(t)
	g := NewGroup(nil, nil)
	n := NewNode(&Type{})
	require.NoError(t, n.SetGroup(g))
	assert.True(t, errors.Is(env.reg.Add(n, nil, "x"), ErrInvalidState))
}

func TestGroupFind(t *testing.T) {
	env := newTestEnv(t)
	g, err := env.reg.CreateGroupAndAdd("block", nil, nil)
	require.NoError(t, err)
	sda := env.mustAdd(t, g.Node(), "sda")

	found := g.Find("sda")
	require.NotNil(t, found)
	assert.Same(t, sda, found)
	assert.Equal(t, int32(2), sda.RefCount())
	found.Put()

	assert.Nil(t, g.Find("sdb"))
	assert.Nil(t, NewGroup(nil, nil).Find("sda"))
}

func TestGroupFilter(t *testing.T) {
	env := newTestEnv(t)
	g, err := env.reg.CreateGroupAndAdd("class", &Policy{
		Filter: func(n *Node) bool { return n.Name() != "hidden" },
	}, nil)
	require.NoError(t, err)

	hidden := env.mustAdd(t, g.Node(), "hidden")
	env.reg.Remove(hidden)
	env.mustAdd(t, g.Node(), "shown")

	assert.Equal(t, []string{"add /class", "add /class/shown"}, env.out.summary())
	assert.False(t, hidden.AddEventSent())

	seq, err := env.reg.Notify(hidden, uevent.ActionChange)
	assert.True(t, errors.Is(err, ErrInvalidState), "hidden is unregistered")
	assert.Zero(t, seq)
}

func TestGroupPolicyNameAndAugment(t *testing.T) {
	env := newTestEnv(t)
	g, err := env.reg.CreateGroupAndAdd("class", &Policy{
		Name: func(*Node) string { return "input" },
		Augment: func(n *Node, e *uevent.Env) error {
			return e.Add("DEVNAME", n.Name())
		},
	}, nil)
	require.NoError(t, err)

	n := env.mustAdd(t, g.Node(), "mouse0")
	_, err = env.reg.Notify(n, uevent.ActionChange, "BUTTON=1")
	require.NoError(t, err)

	msgs := env.out.Messages()
	assert.Equal(t, []string{
		"ACTION=change", "DEVPATH=/class/mouse0", "SUBSYSTEM=input",
		"BUTTON=1", "DEVNAME=mouse0", "SEQNUM=3",
	}, msgs[len(msgs)-1].Vars)
}

func TestGroupPolicyEmptyNameFallsBack(t *testing.T) {
	env := newTestEnv(t)
	g, err := env.reg.CreateGroupAndAdd("class", &Policy{
		Name: func(*Node) string { return "" },
	}, nil)
	require.NoError(t, err)
	env.mustAdd(t, g.Node(), "dev")

	msgs := env.out.Messages()
	assert.Equal(t, "dev", msgs[len(msgs)-1].Subsystem())
}

func TestMoveReassignsGroup(t *testing.T) {
	env := newTestEnv(t)
	g1, err := env.reg.CreateGroupAndAdd("g1", nil, nil)
	require.NoError(t, err)
	g2, err := env.reg.CreateGroupAndAdd("g2", nil, nil)
	require.NoError(t, err)
	plain := env.mustAdd(t, nil, "plain")

	n := env.mustAdd(t, g1.Node(), "n")

	// A parent without a group keeps the membership.
	require.NoError(t, env.reg.Move(n, plain))
	assert.Same(t, g1, env.reg.GroupOf(n))

	require.NoError(t, env.reg.Move(n, g2.Node()))
	assert.Same(t, g2, env.reg.GroupOf(n))
	assert.Equal(t, 0, g1.Len())
	assert.Equal(t, []*Node{n}, g2.Members())
	assert.Equal(t, int32(1), g1.Node().RefCount())
	assert.Equal(t, int32(3), g2.Node().RefCount(), "own, parent and group references")

	// Nil parent returns a grouped node to its group's node.
	require.NoError(t, env.reg.Move(n, plain))
	require.NoError(t, env.reg.Move(n, nil))
	assert.Same(t, g2.Node(), env.reg.Parent(n))
}

func TestRemoveGroupRemovesChildMembers(t *testing.T) {
	env := newTestEnv(t)
	g, err := env.reg.CreateGroupAndAdd("class", nil, nil)
	require.NoError(t, err)
	env.mustAdd(t, g.Node(), "a")

	env.reg.Remove(g.Node())
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, 0, env.reg.Len())
}
