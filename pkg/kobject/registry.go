package kobject

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	objlog "github.com/mash-protocol/objreg/pkg/log"
	"github.com/mash-protocol/objreg/pkg/metrics"
	"github.com/mash-protocol/objreg/pkg/uevent"
)

// DefaultMaxNodes is the default capacity of a registry.
const DefaultMaxNodes = 1 << 16

// Config configures a Registry.
type Config struct {
	// ID identifies the registry instance. Zero generates a random UUID.
	ID uuid.UUID

	// Projection materializes the hierarchy. Nil uses a projection that
	// does nothing.
	Projection Projection

	// Notifier emits lifecycle notifications. Nil creates one that
	// discards every message.
	Notifier *Notifier

	// MaxNodes bounds the number of registered nodes.
	MaxNodes int

	// Logger for operational logging. If nil, logging is disabled.
	Logger *slog.Logger

	// EventLog records state changes. If nil, nothing is recorded.
	EventLog objlog.Logger

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Registry manages the hierarchy of registered nodes.
type Registry struct {
	id       uuid.UUID
	proj     Projection
	notifier *Notifier
	maxNodes int
	logger   *slog.Logger
	events   objlog.Logger
	metrics  *metrics.Metrics

	mu sync.RWMutex

	// unlinked is signalled whenever a node leaves the hierarchy.
	unlinked *sync.Cond

	next     Handle
	nodes    map[Handle]*Node
	children map[Handle][]Handle
	roots    []Handle

	// groups is keyed by the handle of the group's node and outlives the
	// node's registration until the node is released.
	groups map[Handle]*Group
}

// New creates a Registry.
func New(config Config) *Registry {
	r := &Registry{
		id:       config.ID,
		proj:     config.Projection,
		notifier: config.Notifier,
		maxNodes: config.MaxNodes,
		logger:   config.Logger,
		events:   config.EventLog,
		metrics:  config.Metrics,
		nodes:    make(map[Handle]*Node),
		children: make(map[Handle][]Handle),
		groups:   make(map[Handle]*Group),
	}
	r.unlinked = sync.NewCond(&r.mu)

	if r.id == uuid.Nil {
		r.id = uuid.New()
	}
	if r.proj == nil {
		r.proj = nopProjection{}
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.events == nil {
		r.events = objlog.NoopLogger{}
	}
	if r.notifier == nil {
		r.notifier = NewNotifier(NotifierConfig{
			RegistryID: r.id.String(),
			Logger:     r.logger,
			EventLog:   r.events,
			Metrics:    r.metrics,
		})
	}
	if r.maxNodes <= 0 {
		r.maxNodes = DefaultMaxNodes
	}
	return r
}

// ID returns the registry instance ID.
func (r *Registry) ID() uuid.UUID { return r.id }

// Notifier returns the notifier in use.
func (r *Registry) Notifier() *Notifier { return r.notifier }

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Add registers n under parent with the given name and emits ADD. A nil
// parent makes n a root, unless n belongs to a group, in which case the
// group's node becomes the parent. An empty name keeps the name set with
// SetName.
func (r *Registry) Add(n *Node, parent *Node, name string) (err error) {
	defer func() { r.metrics.RecordOperation("add", err) }()

	if name == "" {
		name = n.Name()
	}
	if err := ValidateName(name); err != nil {
		return err
	}

	// The emit lock is held until ADD is numbered, so no other
	// notification about n can overtake it.
	n.emitMu.Lock()
	r.mu.Lock()
	path, pins, err := r.link(n, parent, name)
	var group *Group
	if err == nil {
		group = r.groups[n.link.group]
	}
	r.mu.Unlock()
	if err != nil {
		n.emitMu.Unlock()
		putAll(pins)
		return err
	}

	r.metrics.NodeRegistered()
	r.logState(path, StateInitialized, StateRegistered, "add")
	r.logger.Debug("node registered", "path", path, "type", n.typ.Name)

	_, nerr := r.notifier.emitLocked(request{node: n, action: uevent.ActionAdd, path: path, group: group})
	n.emitMu.Unlock()
	r.notifier.drain()
	if nerr != nil {
		r.notifier.reportFailure("add", path, nerr)
	}
	return nil
}

// link validates and performs the structural part of Add. On failure the
// returned pins must be put after the lock is released.
func (r *Registry) link(n *Node, parent *Node, name string) (string, []*Node, error) {
	n.mu.Lock()
	state, group := n.state, n.pendingGroup
	n.mu.Unlock()

	if state != StateInitialized || n.reg.Load() != nil {
		return "", nil, fmt.Errorf("%w: add %s node", ErrInvalidState, state)
	}

	if group == n.asGroup {
		group = nil
	}
	if group != nil && !r.registered(&group.node) {
		return "", nil, fmt.Errorf("%w: group is not registered", ErrInvalidState)
	}

	// Without an explicit group, inherit the parent's, or join the parent
	// itself when it is a group's node.
	if group == nil && parent != nil {
		inherited := parent.asGroup
		if inherited == nil {
			inherited = r.groups[parent.link.group]
		}
		if inherited != nil && inherited != n.asGroup && r.registered(&inherited.node) {
			group = inherited
		}
	}
	if parent == nil && group != nil {
		parent = &group.node
	}

	if parent != nil && !r.linkable(parent) {
		return "", nil, fmt.Errorf("%w: parent is not registered", ErrInvalidState)
	}
	if r.siblingNamed(parent, name) != nil {
		return "", nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if len(r.nodes) >= r.maxNodes {
		return "", nil, fmt.Errorf("%w: registry holds %d nodes", ErrAllocation, r.maxNodes)
	}

	var pins []*Node
	if parent != nil {
		if !parent.GetUnlessZero() {
			return "", nil, fmt.Errorf("%w: parent is being released", ErrInvalidState)
		}
		pins = append(pins, parent)
	}
	if group != nil {
		if !group.node.GetUnlessZero() {
			return "", pins, fmt.Errorf("%w: group is being released", ErrInvalidState)
		}
		pins = append(pins, &group.node)
	}

	var parentHandle Handle
	var parentProj ProjectionHandle
	path := "/" + EscapeName(name)
	if parent != nil {
		parentHandle = parent.link.handle
		parentProj = parent.link.proj
		path = r.pathLocked(parent) + path
	}

	proj, err := r.proj.CreateDir(DirSpec{
		Name:       name,
		Path:       path,
		Node:       n,
		Attributes: n.typ.Attributes,
	}, parentProj)
	if err != nil {
		return "", pins, fmt.Errorf("%w: create %s: %w", ErrProjection, path, err)
	}

	r.next++
	h := r.next
	n.link = link{handle: h, parent: parentHandle, proj: proj}
	r.nodes[h] = n
	if parent != nil {
		r.children[parentHandle] = append(r.children[parentHandle], h)
	} else {
		r.roots = append(r.roots, h)
	}
	if group != nil {
		n.link.group = group.node.link.handle
		group.addMember(h)
	}
	if n.asGroup != nil {
		r.groups[h] = n.asGroup
	}
	n.reg.Store(r)

	n.mu.Lock()
	n.name = name
	n.state = StateRegistered
	n.mu.Unlock()
	return path, nil, nil
}

// AddGroup registers a group's node.
func (r *Registry) AddGroup(g *Group, parent *Node, name string) error {
	return r.Add(&g.node, parent, name)
}

// CreateAndAdd allocates a node with a type that has no attributes and
// registers it. The caller owns the returned reference.
func (r *Registry) CreateAndAdd(name string, parent *Node) (*Node, error) {
	n := NewNode(dynamicType)
	if err := r.Add(n, parent, name); err != nil {
		n.Put()
		return nil, err
	}
	return n, nil
}

// CreateGroupAndAdd allocates a group and registers it. The caller owns
// the returned reference on the group's node.
func (r *Registry) CreateGroupAndAdd(name string, policy *Policy, parent *Node) (*Group, error) {
	g := NewGroup(nil, policy)
	if err := r.AddGroup(g, parent, name); err != nil {
		g.node.Put()
		return nil, err
	}
	return g, nil
}

// Remove emits REMOVE for n and every descendant whose ADD went out,
// children before their parent, and unlinks them. Removing a node that is not registered is a
// no-op. When Remove returns, the whole subtree is gone.
func (r *Registry) Remove(n *Node) {
	putAll(r.remove(n, false))
	r.metrics.RecordOperation("remove", nil)
}

// remove tears down n's subtree and returns the references n held on its
// parent and group, which the caller must put without the lock held.
// implicit is set on the release path. Either way REMOVE is only emitted
// if ADD was.
func (r *Registry) remove(n *Node, implicit bool) []*Node {
	r.mu.Lock()
	if !r.registered(n) {
		r.mu.Unlock()
		return nil
	}
	if n.link.removing {
		// Another caller owns the removal; wait for it to finish.
		for r.registered(n) {
			r.unlinked.Wait()
		}
		r.mu.Unlock()
		return nil
	}
	n.link.removing = true
	pinned := n.GetUnlessZero()

	for {
		kids := r.children[n.link.handle]
		if len(kids) == 0 {
			break
		}
		child := r.nodes[kids[len(kids)-1]]
		r.mu.Unlock()
		putAll(r.remove(child, false))
		r.mu.Lock()
	}

	path := r.pathLocked(n)
	group := r.groups[n.link.group]
	r.mu.Unlock()

	_, err := r.notifier.retire(request{node: n, action: uevent.ActionRemove, path: path, group: group})
	if err != nil && !errors.Is(err, ErrDuplicateEvent) {
		r.notifier.reportFailure("remove", path, err)
	}

	r.mu.Lock()
	drops := r.unlink(n)
	r.mu.Unlock()

	old := n.setState(StateUnregistered)
	r.metrics.NodeUnregistered()
	r.logState(path, old, StateUnregistered, "remove")
	r.logger.Debug("node unregistered", "path", path, "implicit", implicit)

	if pinned {
		drops = append(drops, n)
	}
	return drops
}

// unlink removes n from the hierarchy and its group. It returns the nodes
// whose references n held.
func (r *Registry) unlink(n *Node) []*Node {
	var held []*Node
	h := n.link.handle
	r.proj.RemoveDir(n.link.proj)

	if n.link.parent != 0 {
		held = append(held, r.nodes[n.link.parent])
		r.children[n.link.parent] = deleteHandle(r.children[n.link.parent], h)
		if len(r.children[n.link.parent]) == 0 {
			delete(r.children, n.link.parent)
		}
	} else {
		r.roots = deleteHandle(r.roots, h)
	}
	if g := r.groups[n.link.group]; g != nil {
		g.removeMember(h)
		held = append(held, &g.node)
	}
	delete(r.nodes, h)
	delete(r.children, h)

	n.link.proj = nil
	n.link.parent = 0
	n.link.group = 0
	n.link.removing = false
	r.unlinked.Broadcast()
	return held
}

// released is called once n's last reference is gone.
func (r *Registry) released(n *Node, name string, old State) {
	if n.asGroup != nil {
		r.mu.Lock()
		delete(r.groups, n.link.handle)
		r.mu.Unlock()
	}
	r.logState(name, old, StateDestroyed, "release")
}

// Rename changes the name of a registered node. No notification is
// emitted; callers that want one follow up with Notify(n, ActionChange).
func (r *Registry) Rename(n *Node, name string) (err error) {
	defer func() { r.metrics.RecordOperation("rename", err) }()

	if err := ValidateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	if !r.linkable(n) {
		r.mu.Unlock()
		return fmt.Errorf("%w: rename unregistered node", ErrInvalidState)
	}
	oldPath := r.pathLocked(n)
	if n.Name() == name {
		r.mu.Unlock()
		return nil
	}
	if r.siblingNamed(r.nodes[n.link.parent], name) != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if err := r.proj.RenameDir(n.link.proj, name); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: rename %s: %w", ErrProjection, oldPath, err)
	}
	n.mu.Lock()
	n.name = name
	n.mu.Unlock()
	newPath := r.pathLocked(n)
	r.mu.Unlock()

	r.logState(newPath, StateRegistered, StateRegistered, "rename from "+oldPath)
	return nil
}

// Move relinks n under newParent and emits MOVE with DEVPATH_OLD. A nil
// newParent moves n to the root, or under its group's node if it has a
// group. Group membership changes only when newParent belongs to a
// different group.
func (r *Registry) Move(n *Node, newParent *Node) (err error) {
	defer func() { r.metrics.RecordOperation("move", err) }()

	r.mu.Lock()
	oldPath, pins, err := r.relink(n, newParent)
	if err != nil || oldPath == "" {
		r.mu.Unlock()
		putAll(pins)
		return err
	}
	newPath := r.pathLocked(n)
	r.mu.Unlock()

	// pins now holds the references n dropped on its old parent and group.
	putAll(pins)

	r.logState(newPath, StateRegistered, StateRegistered, "move from "+oldPath)
	if _, nerr := r.Notify(n, uevent.ActionMove, uevent.KeyDevPathOld+"="+oldPath); nerr != nil {
		r.notifier.reportFailure("move", newPath, nerr)
	}
	return nil
}

// relink performs the structural part of Move. An empty old path with a
// nil error means nothing changed.
func (r *Registry) relink(n *Node, newParent *Node) (string, []*Node, error) {
	if !r.linkable(n) {
		return "", nil, fmt.Errorf("%w: move unregistered node", ErrInvalidState)
	}
	oldGroup := r.groups[n.link.group]
	if newParent == nil && oldGroup != nil && oldGroup.node.link.handle != n.link.handle {
		newParent = &oldGroup.node
	}

	var newHandle Handle
	var newProj ProjectionHandle
	if newParent != nil {
		if !r.linkable(newParent) {
			return "", nil, fmt.Errorf("%w: new parent is not registered", ErrInvalidState)
		}
		for h := newParent.link.handle; h != 0; h = r.nodes[h].link.parent {
			if h == n.link.handle {
				return "", nil, ErrCycle
			}
		}
		newHandle = newParent.link.handle
		newProj = newParent.link.proj
	}
	if newHandle == n.link.parent {
		return "", nil, nil
	}
	if r.siblingNamed(newParent, n.Name()) != nil {
		return "", nil, fmt.Errorf("%w: %q", ErrDuplicateName, n.Name())
	}

	// A new parent inside a different group reassigns membership.
	newGroup := oldGroup
	if newParent != nil {
		pg := newParent.asGroup
		if pg == nil {
			pg = r.groups[newParent.link.group]
		}
		if pg != nil && pg != n.asGroup {
			newGroup = pg
		}
	}

	var pins []*Node
	if newParent != nil {
		if !newParent.GetUnlessZero() {
			return "", nil, fmt.Errorf("%w: new parent is being released", ErrInvalidState)
		}
		pins = append(pins, newParent)
	}
	if newGroup != oldGroup {
		if !newGroup.node.GetUnlessZero() {
			return "", pins, fmt.Errorf("%w: group is being released", ErrInvalidState)
		}
		pins = append(pins, &newGroup.node)
	}

	oldPath := r.pathLocked(n)
	if err := r.proj.MoveDir(n.link.proj, newProj); err != nil {
		return "", pins, fmt.Errorf("%w: move %s: %w", ErrProjection, oldPath, err)
	}

	// Swap links; the returned nodes are the references now released.
	var dropped []*Node
	h := n.link.handle
	if n.link.parent != 0 {
		dropped = append(dropped, r.nodes[n.link.parent])
		r.children[n.link.parent] = deleteHandle(r.children[n.link.parent], h)
		if len(r.children[n.link.parent]) == 0 {
			delete(r.children, n.link.parent)
		}
	} else {
		r.roots = deleteHandle(r.roots, h)
	}
	if newParent != nil {
		r.children[newHandle] = append(r.children[newHandle], h)
	} else {
		r.roots = append(r.roots, h)
	}
	n.link.parent = newHandle

	if newGroup != oldGroup {
		if oldGroup != nil {
			oldGroup.removeMember(h)
			dropped = append(dropped, &oldGroup.node)
		}
		newGroup.addMember(h)
		n.link.group = newGroup.node.link.handle
	}
	return oldPath, dropped, nil
}

// Notify emits a notification for a registered node. extra holds
// KEY=VALUE variables appended after ACTION, DEVPATH and SUBSYSTEM. It
// returns the assigned sequence number, or zero when nothing was emitted
// because the node is suppressed or filtered.
func (r *Registry) Notify(n *Node, action uevent.Action, extra ...string) (uint64, error) {
	if !action.Valid() {
		return 0, fmt.Errorf("%w: %d", uevent.ErrUnknownAction, action)
	}
	r.mu.RLock()
	if !r.registered(n) {
		r.mu.RUnlock()
		return 0, fmt.Errorf("%w: notify on unregistered node", ErrInvalidState)
	}
	req := request{
		node:   n,
		action: action,
		path:   r.pathLocked(n),
		group:  r.groups[n.link.group],
		extra:  extra,
	}
	r.mu.RUnlock()
	return r.notifier.emit(req)
}

// Synthesize emits the notification described by a trigger request of the
// form "ACTION [UUID [KEY=VALUE ...]]".
func (r *Registry) Synthesize(n *Node, buf string) error {
	s, err := uevent.ParseSynthetic(buf)
	if err != nil {
		return err
	}
	_, err = r.Notify(n, s.Action, s.Vars()...)
	return err
}

// Path returns the escaped path of a registered node.
func (r *Registry) Path(n *Node) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.registered(n) {
		return "", fmt.Errorf("%w: path of unregistered node", ErrInvalidState)
	}
	return r.pathLocked(n), nil
}

// Lookup resolves an escaped path and returns the node with a reference
// acquired.
func (r *Registry) Lookup(path string) (*Node, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	level := r.roots
	var n *Node
	for _, seg := range segs {
		n = nil
		for _, h := range level {
			if c := r.nodes[h]; EscapeName(c.Name()) == seg {
				n = c
				break
			}
		}
		if n == nil {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
		}
		level = r.children[n.link.handle]
	}
	if !n.GetUnlessZero() {
		return nil, fmt.Errorf("%w: %q is being released", ErrNotFound, path)
	}
	return n, nil
}

// Parent returns the parent of a registered node, or nil.
func (r *Registry) Parent(n *Node) *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.registered(n) {
		return nil
	}
	return r.nodes[n.link.parent]
}

// GroupOf returns the group a node belongs to, or nil.
func (r *Registry) GroupOf(n *Node) *Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.registered(n) {
		return nil
	}
	return r.groups[n.link.group]
}

// Roots returns the root nodes in registration order. No references are
// acquired.
func (r *Registry) Roots() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(r.roots)
}

// Children returns the children of n in registration order. No references
// are acquired.
func (r *Registry) Children(n *Node) []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.registered(n) {
		return nil
	}
	return r.resolve(r.children[n.link.handle])
}

// Walk calls fn for every registered node in pre-order with its path. The
// tree is snapshotted first, so fn may call back into the registry. A
// non-nil error from fn stops the walk and is returned.
func (r *Registry) Walk(fn func(path string, n *Node) error) error {
	type entry struct {
		path string
		node *Node
	}
	var entries []entry

	r.mu.RLock()
	var visit func(hs []Handle, prefix string)
	visit = func(hs []Handle, prefix string) {
		for _, h := range hs {
			n := r.nodes[h]
			p := prefix + "/" + EscapeName(n.Name())
			entries = append(entries, entry{p, n})
			visit(r.children[h], p)
		}
	}
	visit(r.roots, "")
	r.mu.RUnlock()

	for _, e := range entries {
		if err := fn(e.path, e.node); err != nil {
			return err
		}
	}
	return nil
}

// registered reports whether n is linked into r. Callers hold r.mu.
func (r *Registry) registered(n *Node) bool {
	return n.reg.Load() == r && n.link.handle != 0 && r.nodes[n.link.handle] == n
}

// linkable reports whether n is registered and not being removed.
func (r *Registry) linkable(n *Node) bool {
	return r.registered(n) && !n.link.removing
}

func (r *Registry) siblingNamed(parent *Node, name string) *Node {
	level := r.roots
	if parent != nil {
		level = r.children[parent.link.handle]
	}
	for _, h := range level {
		if c := r.nodes[h]; c.Name() == name {
			return c
		}
	}
	return nil
}

func (r *Registry) pathLocked(n *Node) string {
	var segs []string
	for c := n; c != nil; c = r.nodes[c.link.parent] {
		segs = append(segs, EscapeName(c.Name()))
		if c.link.parent == 0 {
			break
		}
	}
	slices.Reverse(segs)
	return "/" + strings.Join(segs, "/")
}

func (r *Registry) resolve(hs []Handle) []*Node {
	out := make([]*Node, 0, len(hs))
	for _, h := range hs {
		out = append(out, r.nodes[h])
	}
	return out
}

func (r *Registry) logState(path string, from, to State, reason string) {
	r.events.Log(objlog.Event{
		Timestamp:  time.Now(),
		RegistryID: r.id.String(),
		Category:   objlog.CategoryState,
		StateChange: &objlog.StateChangeEvent{
			Path:     path,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

func putAll(nodes []*Node) {
	for _, n := range nodes {
		n.Put()
	}
}

func deleteHandle(hs []Handle, h Handle) []Handle {
	if i := slices.Index(hs, h); i >= 0 {
		return slices.Delete(hs, i, i+1)
	}
	return hs
}
