package kobject

import (
	"context"
	"sync"
	"testing"

	objlog "github.com/mash-protocol/objreg/pkg/log"
	"github.com/mash-protocol/objreg/pkg/uevent"
)

// collector records delivered messages in delivery order.
type collector struct {
	mu   sync.Mutex
	msgs []uevent.Message
	err  error
}

func (c *collector) Deliver(_ context.Context, msg uevent.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return c.err
}

func (c *collector) Messages() []uevent.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uevent.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// summary returns "action path" for every message.
func (c *collector) summary() []string {
	var out []string
	for _, m := range c.Messages() {
		out = append(out, m.Action.String()+" "+m.DevPath())
	}
	return out
}

type fakeDir struct {
	name string
}

// fakeProjection tracks live directories.
type fakeProjection struct {
	mu   sync.Mutex
	dirs map[*fakeDir]bool
}

func newFakeProjection() *fakeProjection {
	return &fakeProjection{dirs: make(map[*fakeDir]bool)}
}

func (p *fakeProjection) CreateDir(spec DirSpec, _ ProjectionHandle) (ProjectionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := &fakeDir{name: spec.Name}
	p.dirs[d] = true
	return d, nil
}

func (p *fakeProjection) RemoveDir(h ProjectionHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.dirs, h.(*fakeDir))
}

func (p *fakeProjection) RenameDir(h ProjectionHandle, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	h.(*fakeDir).name = name
	return nil
}

func (p *fakeProjection) MoveDir(ProjectionHandle, ProjectionHandle) error { return nil }

func (p *fakeProjection) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dirs)
}

type recordingLog struct {
	mu     sync.Mutex
	events []objlog.Event
}

func (r *recordingLog) Log(e objlog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingLog) byCategory(c objlog.Category) []objlog.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []objlog.Event
	for _, e := range r.events {
		if e.Category == c {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	reg  *Registry
	out  *collector
	proj *fakeProjection
	log  *recordingLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		out:  &collector{},
		proj: newFakeProjection(),
		log:  &recordingLog{},
	}
	notifier := NewNotifier(NotifierConfig{
		Deliverer: env.out,
		EventLog:  env.log,
	})
	env.reg = New(Config{
		Projection: env.proj,
		Notifier:   notifier,
		EventLog:   env.log,
	})
	return env
}

func (e *testEnv) mustAdd(t *testing.T, parent *Node, name string) *Node {
	t.Helper()
	n, err := e.reg.CreateAndAdd(name, parent)
	if err != nil {
		t.Fatalf("CreateAndAdd(%q): %v", name, err)
	}
	return n
}
