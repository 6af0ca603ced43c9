// Package kref implements the atomic reference counter underneath every
// registry object.
//
// # Lifetime
//
// A Ref starts uninitialized. Init sets the count to one and records the
// release callback. Every holder of a reference is a co-owner; the object is
// only valid for a reader while it holds at least one reference.
//
// The transition from one to zero invokes the release callback exactly once.
// Zero is a sink state: Get on a released counter panics and GetUnlessZero
// reports false, so a dying object is never resurrected.
//
// # Concurrency
//
// All operations are lock-free and safe for concurrent use. The release
// callback runs on the goroutine that performed the final Put, without any
// counter lock held, so it may itself release other objects.
package kref
