package manifest

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/mash-protocol/objreg/pkg/kobject"
	"github.com/mash-protocol/objreg/pkg/uevent"
)

// Result holds the nodes created by Apply. Each node carries one
// reference owned by the Result.
type Result struct {
	// Nodes maps paths to nodes in creation order of Paths.
	Nodes map[string]*kobject.Node
	Paths []string

	// Events counts notifications emitted for manifest events.
	Events int
}

// Release drops the references held by the Result, children first. Nodes
// that are still registered are removed by their last put.
func (r *Result) Release() {
	for _, p := range slices.Backward(r.Paths) {
		r.Nodes[p].Put()
	}
	r.Nodes = nil
	r.Paths = nil
}

// Apply registers every entry of m under parent (nil for the root) and then
// emits the listed events. On a registration error the nodes created so far
// are removed and released.
func Apply(reg *kobject.Registry, m *Manifest, parent *kobject.Node) (*Result, error) {
	res := &Result{Nodes: make(map[string]*kobject.Node)}
	type pending struct {
		node   *kobject.Node
		events []EventSpec
	}
	var queued []pending

	var add func(entries []*Entry, parent *kobject.Node) error
	add = func(entries []*Entry, parent *kobject.Node) error {
		for _, e := range entries {
			n, err := create(reg, e, parent)
			if err != nil {
				return fmt.Errorf("manifest: line %d: %s: %w", e.line, e.Name, err)
			}
			path, err := reg.Path(n)
			if err != nil {
				n.Put()
				return err
			}
			res.Nodes[path] = n
			res.Paths = append(res.Paths, path)
			if len(e.Events) > 0 {
				queued = append(queued, pending{n, e.Events})
			}
			if err := add(e.Children, n); err != nil {
				return err
			}
		}
		return nil
	}

	if err := add(m.Nodes, parent); err != nil {
		for _, p := range slices.Backward(res.Paths) {
			reg.Remove(res.Nodes[p])
		}
		res.Release()
		return nil, err
	}

	for _, q := range queued {
		for _, ev := range q.events {
			action, _ := uevent.ParseAction(ev.Action)
			seq, err := reg.Notify(q.node, action, ev.Env...)
			if err != nil {
				return res, fmt.Errorf("manifest: %s %s: %w", ev.Action, q.node.Name(), err)
			}
			if seq != 0 {
				res.Events++
			}
		}
	}
	return res, nil
}

func create(reg *kobject.Registry, e *Entry, parent *kobject.Node) (*kobject.Node, error) {
	typ := entryType(e)
	var n *kobject.Node
	if e.Group {
		n = kobject.NewGroup(typ, e.Policy.policy()).Node()
	} else {
		n = kobject.NewNode(typ)
	}
	if len(e.Attributes) > 0 {
		n.SetData(newValues(e.Attributes))
	}
	n.SetSuppressEvents(e.Suppress)
	if err := reg.Add(n, parent, e.Name); err != nil {
		n.Put()
		return nil, err
	}
	return n, nil
}

func (p *PolicySpec) policy() *kobject.Policy {
	if p == nil {
		return nil
	}
	policy := &kobject.Policy{}
	if p.Subsystem != "" {
		subsystem := p.Subsystem
		policy.Name = func(*kobject.Node) string { return subsystem }
	}
	if len(p.Hide) > 0 {
		hide := slices.Clone(p.Hide)
		policy.Filter = func(n *kobject.Node) bool { return !slices.Contains(hide, n.Name()) }
	}
	if len(p.Env) > 0 {
		keys := slices.Sorted(maps.Keys(p.Env))
		env := maps.Clone(p.Env)
		policy.Augment = func(_ *kobject.Node, e *uevent.Env) error {
			for _, k := range keys {
				if err := e.Add(k, env[k]); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return policy
}

var (
	plainType = &kobject.Type{Name: "manifest"}
	groupType = &kobject.Type{Name: "manifest-group"}
)

// entryType returns a type exposing the entry's attributes. Entries without
// attributes share a type.
func entryType(e *Entry) *kobject.Type {
	base := plainType
	if e.Group {
		base = groupType
	}
	if len(e.Attributes) == 0 {
		return base
	}
	typ := &kobject.Type{Name: base.Name}
	for _, name := range slices.Sorted(maps.Keys(e.Attributes)) {
		typ.Attributes = append(typ.Attributes, &kobject.Attribute{
			Name:  name,
			Mode:  0o644,
			Show:  showValue,
			Store: storeValue,
		})
	}
	return typ
}

// values backs manifest attributes.
type values struct {
	mu sync.Mutex
	m  map[string]string
}

func newValues(init map[string]string) *values {
	return &values{m: maps.Clone(init)}
}

func showValue(n *kobject.Node, a *kobject.Attribute) ([]byte, error) {
	v := n.Data().(*values)
	v.mu.Lock()
	defer v.mu.Unlock()
	return []byte(v.m[a.Name] + "\n"), nil
}

func storeValue(n *kobject.Node, a *kobject.Attribute, data []byte) (int, error) {
	v := n.Data().(*values)
	v.mu.Lock()
	v.m[a.Name] = strings.TrimRight(string(data), "\n")
	v.mu.Unlock()
	return len(data), nil
}
