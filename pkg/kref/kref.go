package kref

import (
	"errors"
	"sync/atomic"
)

// Reference counting errors. These are raised as panics: a violated count
// means memory safety is already lost and the caller cannot recover.
var (
	ErrAlreadyInitialized = errors.New("kref: already initialized")
	ErrUseAfterRelease    = errors.New("kref: get on released reference")
	ErrUnderflow          = errors.New("kref: put on released reference")
	ErrNotInitialized     = errors.New("kref: not initialized")
)

// Ref is an atomic reference counter. The zero value is uninitialized.
type Ref struct {
	count       atomic.Int32
	initialized atomic.Bool
	release     func()
}

// Init sets the count to one. release is called once the count drops to zero
// and may be nil.
func (r *Ref) Init(release func()) {
	if !r.initialized.CompareAndSwap(false, true) {
		panic(ErrAlreadyInitialized)
	}
	r.release = release
	r.count.Store(1)
}

// Initialized reports whether Init has been called.
func (r *Ref) Initialized() bool {
	return r.initialized.Load()
}

// Get takes an additional reference. The caller must already hold one;
// taking a reference on a released counter panics.
func (r *Ref) Get() {
	if !r.GetUnlessZero() {
		if !r.initialized.Load() {
			panic(ErrNotInitialized)
		}
		panic(ErrUseAfterRelease)
	}
}

// GetUnlessZero takes a reference unless the count already reached zero.
// Lookups that race a final Put use this to skip dying objects.
func (r *Ref) GetUnlessZero() bool {
	for {
		c := r.count.Load()
		if c <= 0 {
			return false
		}
		if r.count.CompareAndSwap(c, c+1) {
			return true
		}
	}
}

// Put drops a reference. It returns true if this call released the object.
func (r *Ref) Put() bool {
	c := r.count.Add(-1)
	switch {
	case c > 0:
		return false
	case c == 0:
		if r.release != nil {
			r.release()
		}
		return true
	default:
		panic(ErrUnderflow)
	}
}

// Count returns the current number of references. Only useful for
// diagnostics; the value may be stale by the time it is read.
func (r *Ref) Count() int32 {
	return r.count.Load()
}
