// Package kobject implements a reference-counted, hierarchical object
// registry.
//
// A Node is a long-lived object with a name, a parent, an optional owning
// Group and a Type describing how it is released and which attributes it
// exposes. Nodes are linked into a Registry, which keeps the parent/child
// tree, materializes it through a Projection (see package sysfs) and emits
// lifecycle notifications through a Notifier (see package uevent).
//
// # Lifecycle
//
//	n := kobject.NewNode(typ)       // initialized, one reference
//	reg.Add(n, parent, "dev0")      // registered, ADD emitted
//	reg.Rename(n, "dev1")           // still registered, nothing emitted
//	reg.Remove(n)                   // REMOVE emitted, unlinked
//	n.Put()                         // last reference: Type.Release runs
//
// Dropping the last reference on a node that is still registered removes
// it implicitly before Type.Release runs.
//
// # References
//
// A registered node holds a reference on its parent and on its group's
// node. Parent and group links are stored as Handles resolved through the
// registry, so a released node never leaves a dangling link behind.
//
// # Locking
//
// The registry lock guards the tree and projection. Each Group guards its
// member list with its own lock, always taken after the registry lock.
// Notifications are built and delivered without the registry lock held.
// A per-node emit lock spans claiming a notification and numbering it, so
// a node's REMOVE is always numbered after its ADD. Delivery happens after
// every lock is released, and a Deliverer may emit further notifications.
package kobject
