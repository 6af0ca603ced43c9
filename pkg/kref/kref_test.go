package kref

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRefInit(t *testing.T) {
	var r Ref
	assert.False(t, r.Initialized())

	r.Init(nil)
	assert.True(t, r.Initialized())
	assert.Equal(t, int32(1), r.Count())

	assert.PanicsWithValue(t, ErrAlreadyInitialized, func() { r.Init(nil) })
}

func TestRefReleaseOnLastPut(t *testing.T) {
	var r Ref
	released := 0
	r.Init(func() { released++ })

	r.Get()
	r.Get()
	assert.False(t, r.Put())
	assert.False(t, r.Put())
	assert.Equal(t, 0, released)

	assert.True(t, r.Put())
	assert.Equal(t, 1, released)
	assert.Equal(t, int32(0), r.Count())
}

func TestRefZeroIsSink(t *testing.T) {
	var r Ref
	r.Init(nil)
	require.True(t, r.Put())

	assert.False(t, r.GetUnlessZero())
	assert.PanicsWithValue(t, ErrUseAfterRelease, func() { r.Get() })
	assert.PanicsWithValue(t, ErrUnderflow, func() { r.Put() })
}

func TestRefGetUninitialized(t *testing.T) {
	var r Ref
	assert.PanicsWithValue(t, ErrNotInitialized, func() { r.Get() })
}

func TestRefReleaseMayPutOtherRefs(t *testing.T) {
	var parent, child Ref
	parentReleased := false
	parent.Init(func() { parentReleased = true })
	child.Init(func() { parent.Put() })

	child.Put()
	assert.True(t, parentReleased)
}

func TestRefConcurrentGetPut(t *testing.T) {
	var r Ref
	var released atomic.Int32
	r.Init(func() { released.Add(1) })

	const workers = 32
	const iterations = 1000

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				r.Get()
				r.Put()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), released.Load())
	assert.Equal(t, int32(1), r.Count())

	r.Put()
	assert.Equal(t, int32(1), released.Load())
}

func TestRefRaceFinalPutAgainstGetUnlessZero(t *testing.T) {
	for i := 0; i < 200; i++ {
		var r Ref
		var released atomic.Int32
		r.Init(func() { released.Add(1) })

		var wg sync.WaitGroup
		var extended atomic.Int32
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if r.GetUnlessZero() {
					extended.Add(1)
				}
			}()
		}
		r.Put()
		wg.Wait()

		// Every successful extension must be balanced before the release fires.
		for j := int32(0); j < extended.Load(); j++ {
			r.Put()
		}
		require.Equal(t, int32(1), released.Load(), "iteration %d", i)
		require.False(t, r.GetUnlessZero())
	}
}

// Destroy fires exactly once, exactly when the live count reaches zero, and
// nothing can acquire afterwards.
func TestRefProperty_ReleaseExactlyOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var r Ref
		released := 0
		r.Init(func() { released++ })
		live := 1

		ops := rapid.SliceOfN(rapid.Bool(), 1, 200).Draw(rt, "ops")
		for _, acquire := range ops {
			if live == 0 {
				break
			}
			if acquire {
				r.Get()
				live++
			} else {
				r.Put()
				live--
			}
			if live == 0 {
				require.Equal(rt, 1, released)
			} else {
				require.Equal(rt, 0, released)
				require.Equal(rt, int32(live), r.Count())
			}
		}

		for live > 0 {
			r.Put()
			live--
		}
		require.Equal(rt, 1, released)
		require.False(rt, r.GetUnlessZero())
	})
}
