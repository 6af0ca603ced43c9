package kobject

import "io/fs"

// Type describes how a class of nodes is released and which attributes
// they expose.
type Type struct {
	// Name identifies the type in logs.
	Name string

	// Release is called once the last reference is dropped. May be nil.
	Release func(n *Node)

	// Attributes are published by the projection at registration. The slice
	// is shared by every node of this type and must not be modified after
	// the first registration.
	Attributes []*Attribute
}

// Attribute is a named value exposed by the projection.
type Attribute struct {
	Name string

	// Mode holds the permission bits. Show is only reachable through
	// the projection when a read bit is set, Store when a write bit is set.
	Mode fs.FileMode

	Show  func(n *Node, a *Attribute) ([]byte, error)
	Store func(n *Node, a *Attribute, data []byte) (int, error)
}

// Readable reports whether the attribute can be shown.
func (a *Attribute) Readable() bool {
	return a.Show != nil && a.Mode&0o444 != 0
}

// Writable reports whether the attribute can be stored.
func (a *Attribute) Writable() bool {
	return a.Store != nil && a.Mode&0o222 != 0
}

// dynamicType is used by Registry.CreateAndAdd.
var dynamicType = &Type{Name: "dynamic"}
