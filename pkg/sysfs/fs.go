package sysfs

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"

	"github.com/mash-protocol/objreg/pkg/kobject"
)

// UeventFile is the name of the per-directory trigger file.
const UeventFile = "uevent"

// Errors returned by FS operations.
var (
	ErrNotExist   = fs.ErrNotExist
	ErrExist      = fs.ErrExist
	ErrPermission = fs.ErrPermission
	ErrIsDir      = errors.New("sysfs: is a directory")

	// ErrInjected is returned by operations armed with FailOn.
	ErrInjected = errors.New("sysfs: injected failure")
)

// Op names a projection operation for failure injection.
type Op string

const (
	OpCreate Op = "create"
	OpRename Op = "rename"
	OpMove   Op = "move"
)

// Synthesizer emits a synthetic notification; kobject.Registry
// implements it.
type Synthesizer interface {
	Synthesize(n *kobject.Node, buf string) error
}

type dir struct {
	name     string
	parent   *dir
	node     *kobject.Node
	attrs    []*kobject.Attribute
	children map[string]*dir
}

// FS is an in-memory filesystem implementing kobject.Projection.
// It is safe for concurrent use.
type FS struct {
	mu      sync.RWMutex
	root    *dir
	trigger Synthesizer
	fail    map[failKey]bool
}

type failKey struct {
	op   Op
	name string
}

// New creates an empty FS.
func New() *FS {
	return &FS{
		root: &dir{children: make(map[string]*dir)},
		fail: make(map[failKey]bool),
	}
}

// EnableUeventTrigger exposes a "uevent" file in every directory that
// forwards writes to s.
func (f *FS) EnableUeventTrigger(s Synthesizer) {
	f.mu.Lock()
	f.trigger = s
	f.mu.Unlock()
}

// FailOn makes the next op on a directory called name fail with
// ErrInjected.
func (f *FS) FailOn(op Op, name string) {
	f.mu.Lock()
	f.fail[failKey{op, name}] = true
	f.mu.Unlock()
}

func (f *FS) injected(op Op, name string) bool {
	k := failKey{op, name}
	if f.fail[k] {
		delete(f.fail, k)
		return true
	}
	return false
}

// CreateDir implements kobject.Projection.
func (f *FS) CreateDir(spec kobject.DirSpec, parent kobject.ProjectionHandle) (kobject.ProjectionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.injected(OpCreate, spec.Name) {
		return nil, ErrInjected
	}
	p := f.root
	if parent != nil {
		p = parent.(*dir)
	}
	name := kobject.EscapeName(spec.Name)
	if _, ok := p.children[name]; ok {
		return nil, fmt.Errorf("%s: %w", spec.Path, ErrExist)
	}
	d := &dir{
		name:     name,
		parent:   p,
		node:     spec.Node,
		attrs:    spec.Attributes,
		children: make(map[string]*dir),
	}
	p.children[name] = d
	return d, nil
}

// RemoveDir implements kobject.Projection.
func (f *FS) RemoveDir(h kobject.ProjectionHandle) {
	d, ok := h.(*dir)
	if !ok || d == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.parent != nil && d.parent.children[d.name] == d {
		delete(d.parent.children, d.name)
	}
	d.parent = nil
}

// RenameDir implements kobject.Projection.
func (f *FS) RenameDir(h kobject.ProjectionHandle, name string) error {
	d := h.(*dir)
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.injected(OpRename, name) {
		return ErrInjected
	}
	escaped := kobject.EscapeName(name)
	if _, ok := d.parent.children[escaped]; ok {
		return fmt.Errorf("%s: %w", escaped, ErrExist)
	}
	delete(d.parent.children, d.name)
	d.name = escaped
	d.parent.children[escaped] = d
	return nil
}

// MoveDir implements kobject.Projection.
func (f *FS) MoveDir(h, newParent kobject.ProjectionHandle) error {
	d := h.(*dir)
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.injected(OpMove, d.name) {
		return ErrInjected
	}
	np := f.root
	if newParent != nil {
		np = newParent.(*dir)
	}
	if _, ok := np.children[d.name]; ok {
		return fmt.Errorf("%s: %w", d.name, ErrExist)
	}
	delete(d.parent.children, d.name)
	d.parent = np
	np.children[d.name] = d
	return nil
}

// lookup resolves path to a directory and, if the last segment is a file,
// its name. Callers hold f.mu.
func (f *FS) lookup(path string) (*dir, string, error) {
	d := f.root
	segs := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	for i, seg := range segs {
		c, ok := d.children[seg]
		if !ok {
			if i == len(segs)-1 {
				return d, seg, nil
			}
			return nil, "", fmt.Errorf("%s: %w", path, ErrNotExist)
		}
		d = c
	}
	return d, "", nil
}

func (d *dir) attr(name string) *kobject.Attribute {
	for _, a := range d.attrs {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// ReadDir lists a directory: subdirectories followed by files, each
// sorted by name.
func (f *FS) ReadDir(path string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	d, file, err := f.lookup(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		return nil, fmt.Errorf("%s: %w", path, ErrNotExist)
	}

	dirs := make([]string, 0, len(d.children))
	for name := range d.children {
		dirs = append(dirs, name+"/")
	}
	slices.Sort(dirs)

	var files []string
	for _, a := range d.attrs {
		files = append(files, a.Name)
	}
	if f.trigger != nil && d != f.root {
		files = append(files, UeventFile)
	}
	slices.Sort(files)
	return append(dirs, files...), nil
}

// Exists reports whether path names a directory or file.
func (f *FS) Exists(path string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	d, file, err := f.lookup(path)
	if err != nil {
		return false
	}
	return file == "" || d.attr(file) != nil || (file == UeventFile && f.trigger != nil && d != f.root)
}

// ReadFile shows an attribute.
func (f *FS) ReadFile(path string) ([]byte, error) {
	f.mu.RLock()
	d, file, err := f.lookup(path)
	if err != nil {
		f.mu.RUnlock()
		return nil, err
	}
	if file == "" {
		f.mu.RUnlock()
		return nil, fmt.Errorf("%s: %w", path, ErrIsDir)
	}
	a := d.attr(file)
	node := d.node
	trigger := file == UeventFile && f.trigger != nil && d != f.root
	f.mu.RUnlock()

	switch {
	case a != nil && a.Readable():
		return a.Show(node, a)
	case a != nil || trigger:
		return nil, fmt.Errorf("%s: %w", path, ErrPermission)
	}
	return nil, fmt.Errorf("%s: %w", path, ErrNotExist)
}

// WriteFile stores data into an attribute, or into the trigger file. It
// returns the number of bytes consumed.
func (f *FS) WriteFile(path string, data []byte) (int, error) {
	f.mu.RLock()
	d, file, err := f.lookup(path)
	if err != nil {
		f.mu.RUnlock()
		return 0, err
	}
	if file == "" {
		f.mu.RUnlock()
		return 0, fmt.Errorf("%s: %w", path, ErrIsDir)
	}
	a := d.attr(file)
	node := d.node
	trigger := f.trigger
	if file != UeventFile || d == f.root {
		trigger = nil
	}
	f.mu.RUnlock()

	switch {
	case a != nil && a.Writable():
		return a.Store(node, a, data)
	case a != nil:
		return 0, fmt.Errorf("%s: %w", path, ErrPermission)
	case trigger != nil:
		if err := trigger.Synthesize(node, string(data)); err != nil {
			return 0, err
		}
		return len(data), nil
	}
	return 0, fmt.Errorf("%s: %w", path, ErrNotExist)
}

// Tree renders the directory tree with two spaces of indentation per
// level. Files are omitted.
func (f *FS) Tree() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var b strings.Builder
	var walk func(d *dir, depth int)
	walk = func(d *dir, depth int) {
		names := make([]string, 0, len(d.children))
		for name := range d.children {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			b.WriteString(strings.Repeat("  ", depth))
			b.WriteString(name)
			b.WriteByte('\n')
			walk(d.children[name], depth+1)
		}
	}
	walk(f.root, 0)
	return b.String()
}

var _ kobject.Projection = (*FS)(nil)
