// Package sysfs is an in-memory projection of a kobject registry.
//
// Every registered node becomes a directory; its type's attributes become
// files whose reads and writes are dispatched to the attribute's Show and
// Store callbacks. When a trigger is installed, each directory also carries
// a write-only "uevent" file: writing "change" to it emits a synthetic
// notification for the node.
package sysfs
