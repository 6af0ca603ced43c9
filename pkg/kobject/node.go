package kobject

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mash-protocol/objreg/pkg/kref"
	"github.com/mash-protocol/objreg/pkg/uevent"
)

// Handle identifies a registered node within its registry. Handles are
// never reused; zero means none.
type Handle uint64

// Node is a reference-counted registry entry.
//
// The zero value is uninitialized; call Init or use NewNode.
type Node struct {
	ref kref.Ref
	typ *Type

	// asGroup is set when the node is embedded in a Group.
	asGroup *Group

	// reg is set once, by the first successful Add.
	reg atomic.Pointer[Registry]

	// link is guarded by the registry lock.
	link link

	// emitMu is held from claiming a notification until it has its
	// sequence number. It is taken before mu and never under the registry
	// lock.
	emitMu sync.Mutex

	// mu guards the fields below. It is taken after the registry lock.
	mu           sync.Mutex
	name         string
	state        State
	addSent      bool
	removeSent   bool
	retired      bool
	suppress     bool
	pendingGroup *Group
	data         any
}

type link struct {
	handle Handle
	parent Handle

	// group is the handle of the owning group's node.
	group Handle

	proj     ProjectionHandle
	removing bool
}

// NewNode allocates and initializes a node of the given type.
func NewNode(typ *Type) *Node {
	n := &Node{}
	n.Init(typ)
	return n
}

// Init sets the reference count to one. It panics if typ is nil or the
// node was already initialized.
func (n *Node) Init(typ *Type) {
	if typ == nil {
		panic("kobject: Init with nil type")
	}
	n.ref.Init(n.release)
	n.typ = typ

	n.mu.Lock()
	n.state = StateInitialized
	n.mu.Unlock()
}

// Type returns the node's type.
func (n *Node) Type() *Type { return n.typ }

// Name returns the node's current name.
func (n *Node) Name() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.name
}

// SetName sets the name of a node that has not been registered yet.
// Use Registry.Rename afterwards.
func (n *Node) SetName(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateInitialized {
		return fmt.Errorf("%w: set name on %s node", ErrInvalidState, n.state)
	}
	n.name = name
	return nil
}

// SetGroup assigns the node to g at registration, overriding the group
// inherited from the parent. Only valid before registration.
func (n *Node) SetGroup(g *Group) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateInitialized {
		return fmt.Errorf("%w: set group on %s node", ErrInvalidState, n.state)
	}
	n.pendingGroup = g
	return nil
}

// State returns the node's lifecycle state.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// SetSuppressEvents turns notifications for this node off or on.
func (n *Node) SetSuppressEvents(suppress bool) {
	n.mu.Lock()
	n.suppress = suppress
	n.mu.Unlock()
}

// EventsSuppressed reports whether notifications are suppressed.
func (n *Node) EventsSuppressed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.suppress
}

// AddEventSent reports whether an ADD notification was emitted.
func (n *Node) AddEventSent() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.addSent
}

// ProjectionActive reports whether the node's directory is currently
// materialized by the registry's projection.
func (n *Node) ProjectionActive() bool {
	r := n.reg.Load()
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return n.link.proj != nil
}

// RemoveEventSent reports whether a REMOVE notification was emitted.
func (n *Node) RemoveEventSent() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.removeSent
}

// Data returns the value stored with SetData.
func (n *Node) Data() any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.data
}

// SetData attaches an arbitrary value to the node.
func (n *Node) SetData(v any) {
	n.mu.Lock()
	n.data = v
	n.mu.Unlock()
}

// AsGroup returns the group embedding this node, or nil.
func (n *Node) AsGroup() *Group { return n.asGroup }

// Get acquires a reference. It panics if the count already reached zero.
func (n *Node) Get() *Node {
	n.ref.Get()
	return n
}

// GetUnlessZero acquires a reference unless the node is being released.
func (n *Node) GetUnlessZero() bool {
	return n.ref.GetUnlessZero()
}

// Put drops a reference. The last Put removes the node if it is still
// registered and then calls Type.Release.
func (n *Node) Put() {
	n.ref.Put()
}

// RefCount returns the current reference count.
func (n *Node) RefCount() int32 {
	return n.ref.Count()
}

func (n *Node) release() {
	r := n.reg.Load()
	var held []*Node
	if r != nil {
		held = r.remove(n, true)
	}

	n.mu.Lock()
	old := n.state
	n.state = StateDestroyed
	name := n.name
	n.mu.Unlock()

	if r != nil {
		r.released(n, name, old)
	}
	if n.typ.Release != nil {
		n.typ.Release(n)
	}
	// Parent and group outlive their children.
	putAll(held)
}

// claimEvent marks a one-shot ADD or REMOVE as sent. The returned undo
// clears the mark again if the notification could not be built. Nothing
// may follow a REMOVE, and only REMOVE may follow retirement.
func (n *Node) claimEvent(action uevent.Action) (undo func(), err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch action {
	case uevent.ActionAdd:
		if n.addSent {
			return nil, fmt.Errorf("%w: add already sent", ErrDuplicateEvent)
		}
		if n.removeSent || n.retired {
			return nil, fmt.Errorf("%w: add after remove", ErrInvalidState)
		}
		n.addSent = true
		return func() {
			n.mu.Lock()
			n.addSent = false
			n.mu.Unlock()
		}, nil
	case uevent.ActionRemove:
		if n.removeSent {
			return nil, fmt.Errorf("%w: remove already sent", ErrDuplicateEvent)
		}
		n.removeSent = true
		return func() {
			n.mu.Lock()
			n.removeSent = false
			n.mu.Unlock()
		}, nil
	}
	if n.removeSent || n.retired {
		return nil, fmt.Errorf("%w: %s after remove", ErrInvalidState, action)
	}
	return func() {}, nil
}

// retire refuses every later notification except REMOVE and reports
// whether REMOVE is still owed, that is ADD went out and REMOVE did not.
// The caller holds emitMu.
func (n *Node) retire() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.retired = true
	return n.addSent && !n.removeSent
}

func (n *Node) setState(s State) State {
	n.mu.Lock()
	defer n.mu.Unlock()
	old := n.state
	n.state = s
	return old
}
