// Package manifest builds registry trees from YAML descriptions.
//
// A manifest lists root entries; each entry is a node or a group and may
// carry attributes, children and notifications to emit once the whole tree
// is registered:
//
//	nodes:
//	  - name: net
//	    group: true
//	    policy:
//	      subsystem: net
//	      hide: [lo]
//	      env: {INTERFACE_CLASS: ethernet}
//	    children:
//	      - name: eth0
//	        attributes: {address: "00:11:22:33:44:55", mtu: "1500"}
//	        events:
//	          - action: online
//	            env: [CARRIER=1]
package manifest

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/objreg/pkg/kobject"
	"github.com/mash-protocol/objreg/pkg/uevent"
)

// Manifest is a parsed tree description.
type Manifest struct {
	Nodes []*Entry `yaml:"nodes"`
}

// Entry describes one node.
type Entry struct {
	Name string `yaml:"name"`

	// Group registers the entry as a group; entries below it join it.
	Group  bool        `yaml:"group,omitempty"`
	Policy *PolicySpec `yaml:"policy,omitempty"`

	// Suppress turns notifications off for this node.
	Suppress bool `yaml:"suppress,omitempty"`

	// Attributes are exposed as writable files with these initial values.
	Attributes map[string]string `yaml:"attributes,omitempty"`

	// Events are emitted after the whole manifest has been applied.
	Events []EventSpec `yaml:"events,omitempty"`

	Children []*Entry `yaml:"children,omitempty"`

	line int
}

// PolicySpec is the declarative form of a kobject.Policy.
type PolicySpec struct {
	// Subsystem is reported as SUBSYSTEM for every member.
	Subsystem string `yaml:"subsystem,omitempty"`

	// Hide lists member names whose notifications are filtered out.
	Hide []string `yaml:"hide,omitempty"`

	// Env is appended to every member notification, sorted by key.
	Env map[string]string `yaml:"env,omitempty"`
}

// EventSpec is a notification to emit.
type EventSpec struct {
	Action string   `yaml:"action"`
	Env    []string `yaml:"env,omitempty"`
}

// UnmarshalYAML records the entry's line for error reporting.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	type plain Entry
	if err := value.Decode((*plain)(e)); err != nil {
		return err
	}
	e.line = value.Line
	return nil
}

// LoadError describes a manifest that could not be loaded.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Line is the line number where the error occurred (0 if unknown).
	Line int

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString(e.File)
	if e.Line > 0 {
		b.WriteString(":" + strconv.Itoa(e.Line))
	}
	b.WriteString(": " + e.Message)
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse parses and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &LoadError{
			Message: "failed to parse YAML",
			Cause:   err,
		}
	}
	if len(m.Nodes) == 0 {
		return nil, &LoadError{
			Message: "manifest must have at least one node",
		}
	}
	if err := validate(m.Nodes); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	m, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{
			File:    path,
			Message: err.Error(),
		}
	}
	return m, nil
}

func validate(entries []*Entry) error {
	seen := make(map[string]bool)
	for _, e := range entries {
		if err := kobject.ValidateName(e.Name); err != nil {
			return &LoadError{Line: e.line, Message: "invalid name", Cause: err}
		}
		if seen[e.Name] {
			return &LoadError{Line: e.line, Message: fmt.Sprintf("duplicate sibling %q", e.Name)}
		}
		seen[e.Name] = true

		if e.Policy != nil && !e.Group {
			return &LoadError{Line: e.line, Message: fmt.Sprintf("%s: policy requires group: true", e.Name)}
		}
		for _, ev := range e.Events {
			if _, err := uevent.ParseAction(ev.Action); err != nil {
				return &LoadError{Line: e.line, Message: e.Name, Cause: err}
			}
			for _, kv := range ev.Env {
				if !strings.Contains(kv, "=") {
					return &LoadError{Line: e.line, Message: fmt.Sprintf("%s: env %q is not KEY=VALUE", e.Name, kv)}
				}
			}
		}
		if err := validate(e.Children); err != nil {
			return err
		}
	}
	return nil
}
