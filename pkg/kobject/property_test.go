package kobject

import (
	"fmt"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/mash-protocol/objreg/pkg/uevent"
)

// TestHierarchyProperties drives random add/remove/move/rename sequences and
// checks the tree invariants after every step.
func TestHierarchyProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		out := &collector{}
		reg := New(Config{Notifier: NewNotifier(NotifierConfig{Deliverer: out})})

		var nodes []*Node
		released := make(map[*Node]int)
		typ := &Type{Release: func(n *Node) { released[n]++ }}
		next := 0

		pick := func(label string) *Node {
			if len(nodes) == 0 {
				return nil
			}
			return nodes[rapid.IntRange(0, len(nodes)-1).Draw(t, label)]
		}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0, 1:
				var parent *Node
				if p := pick("parent"); p != nil && p.State() == StateRegistered && rapid.Bool().Draw(t, "child") {
					parent = p
				}
				n := NewNode(typ)
				next++
				if err := reg.Add(n, parent, fmt.Sprintf("n%d", next)); err != nil {
					t.Fatalf("Add: %v", err)
				}
				nodes = append(nodes, n)
			case 2:
				if n := pick("remove"); n != nil {
					reg.Remove(n)
				}
			case 3:
				n, p := pick("move"), pick("target")
				if n != nil && p != nil {
					_ = reg.Move(n, p)
				}
			case 4:
				if n := pick("rename"); n != nil {
					next++
					_ = reg.Rename(n, fmt.Sprintf("r%d", next))
				}
			}
			checkTree(t, reg)
		}

		// Dropping every reference releases everything exactly once.
		for _, n := range nodes {
			n.Put()
		}
		if reg.Len() != 0 {
			t.Fatalf("%d nodes still registered after final put", reg.Len())
		}
		for _, n := range nodes {
			if released[n] != 1 {
				t.Fatalf("node %s released %d times", n.Name(), released[n])
			}
		}

		checkMessages(t, out.Messages())
	})
}

// checkTree verifies that every registered node has a registered parent
// chain ending at a root without repeats.
func checkTree(t *rapid.T, reg *Registry) {
	err := reg.Walk(func(path string, n *Node) error {
		seen := make(map[*Node]bool)
		for c := n; c != nil; c = reg.Parent(c) {
			if seen[c] {
				return fmt.Errorf("cycle at %s", path)
			}
			seen[c] = true
			if c.State() != StateRegistered {
				return fmt.Errorf("%s has ancestor in state %s", path, c.State())
			}
		}
		if got, _ := reg.Path(n); got != path {
			return fmt.Errorf("path %q, walk says %q", got, path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// checkMessages verifies sequence numbers and one-shot events. Names are
// unique per node, so the last path segment identifies the node as long as
// renames are followed.
func checkMessages(t *rapid.T, msgs []uevent.Message) {
	var last uint64
	adds := make(map[string]int)
	removes := make(map[string]int)
	for _, m := range msgs {
		if m.Seqnum <= last {
			t.Fatalf("seqnum %d after %d", m.Seqnum, last)
		}
		last = m.Seqnum

		p := m.DevPath()
		leaf := p[strings.LastIndexByte(p, '/')+1:]
		switch m.Action {
		case uevent.ActionAdd:
			adds[leaf]++
		case uevent.ActionRemove:
			removes[leaf]++
		}
	}
	for name, c := range adds {
		if c > 1 {
			t.Fatalf("%d ADD events for %s", c, name)
		}
	}
	for name, c := range removes {
		if c > 1 {
			t.Fatalf("%d REMOVE events for %s", c, name)
		}
	}
}
