package kobject

import (
	"slices"
	"sync"

	"github.com/mash-protocol/objreg/pkg/uevent"
)

// Policy customizes notifications for the members of a group. Every hook
// is optional and is called without registry locks held.
type Policy struct {
	// Filter returns false to drop a member's notification silently.
	Filter func(n *Node) bool

	// Name returns the SUBSYSTEM value for a member. An empty result
	// falls back to the member's name.
	Name func(n *Node) string

	// Augment may append variables after the caller's. It cannot remove or
	// reorder what is already in env.
	Augment func(n *Node, env *uevent.Env) error
}

// Name and Augment run while the member's notification is being numbered
// and must not emit notifications for that member themselves.

// Group is a named collection of nodes sharing a notification policy. A
// group participates in the hierarchy through its own node, see Node.
type Group struct {
	node   Node
	policy *Policy

	// mu guards members. It is taken after the registry lock.
	mu      sync.Mutex
	members []Handle
}

var groupType = &Type{Name: "group"}

// NewGroup allocates and initializes a group. A nil typ selects a default
// type without attributes or release hook. policy may be nil.
func NewGroup(typ *Type, policy *Policy) *Group {
	if typ == nil {
		typ = groupType
	}
	g := &Group{policy: policy}
	g.node.asGroup = g
	g.node.Init(typ)
	return g
}

// Node returns the group's own node.
func (g *Group) Node() *Node { return &g.node }

// Name returns the group's name.
func (g *Group) Name() string { return g.node.Name() }

// Policy returns the group's notification policy, which may be nil.
func (g *Group) Policy() *Policy { return g.policy }

// Len returns the number of members.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Members returns the members in insertion order. No references are
// acquired.
func (g *Group) Members() []*Node {
	r := g.node.reg.Load()
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Node, 0, len(g.members))
	for _, h := range g.members {
		if n := r.nodes[h]; n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Find returns the member called name with a reference acquired, or nil.
// Members already being released are skipped.
func (g *Group) Find(name string) *Node {
	r := g.node.reg.Load()
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, h := range g.members {
		n := r.nodes[h]
		if n != nil && n.Name() == name && n.GetUnlessZero() {
			return n
		}
	}
	return nil
}

func (g *Group) addMember(h Handle) {
	g.mu.Lock()
	g.members = append(g.members, h)
	g.mu.Unlock()
}

func (g *Group) removeMember(h Handle) {
	g.mu.Lock()
	if i := slices.Index(g.members, h); i >= 0 {
		g.members = slices.Delete(g.members, i, i+1)
	}
	g.mu.Unlock()
}
