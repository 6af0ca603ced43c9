package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mash-protocol/objreg/pkg/kobject"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrUnsupportedVersion is returned when loading a state file written by a
// newer format version.
var ErrUnsupportedVersion = errors.New("persistence: unsupported state version")

// RegistryState contains the runtime state of one registry.
type RegistryState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// RegistryID is the UUID of the registry instance that saved the state.
	RegistryID string `json:"registry_id,omitempty"`

	// Seqnum is the last notification sequence number assigned.
	Seqnum uint64 `json:"seqnum"`

	// Nodes lists the registered nodes in pre-order.
	Nodes []NodeRecord `json:"nodes,omitempty"`
}

// NodeRecord describes one registered node.
type NodeRecord struct {
	Path string `json:"path"`

	// Type is the node type's name.
	Type string `json:"type,omitempty"`

	// Group is the path of the owning group's node, if any.
	Group string `json:"group,omitempty"`

	// IsGroup is set for a group's own node.
	IsGroup bool `json:"is_group,omitempty"`

	Suppressed bool `json:"suppressed,omitempty"`
}

// Snapshot captures the state of reg.
func Snapshot(reg *kobject.Registry) *RegistryState {
	state := &RegistryState{
		RegistryID: reg.ID().String(),
		Seqnum:     reg.Notifier().Sequencer().Last(),
	}
	_ = reg.Walk(func(path string, n *kobject.Node) error {
		rec := NodeRecord{
			Path:       path,
			Type:       n.Type().Name,
			IsGroup:    n.AsGroup() != nil,
			Suppressed: n.EventsSuppressed(),
		}
		if g := reg.GroupOf(n); g != nil {
			if gp, err := reg.Path(g.Node()); err == nil {
				rec.Group = gp
			}
		}
		state.Nodes = append(state.Nodes, rec)
		return nil
	})
	return state
}

// StateStore manages persistence of registry state to a JSON file.
type StateStore struct {
	mu   sync.Mutex
	path string
}

// NewStateStore creates a new state store.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Path returns the state file path.
func (s *StateStore) Path() string { return s.path }

// Save persists the state to disk. The file is replaced atomically.
func (s *StateStore) Save(state *RegistryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load reads the state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *StateStore) Load() (*RegistryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &RegistryState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("persistence: %s: %w", s.path, err)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, state.Version)
	}
	return state, nil
}

// LastSeqnum returns the saved sequence number, or zero if there is no
// state file.
func (s *StateStore) LastSeqnum() (uint64, error) {
	state, err := s.Load()
	if err != nil || state == nil {
		return 0, err
	}
	return state.Seqnum, nil
}

// Clear removes the state file.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
