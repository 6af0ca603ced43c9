package uevent_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mash-protocol/objreg/pkg/uevent"
	"github.com/mash-protocol/objreg/pkg/uevent/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func msg(seq uint64) uevent.Message {
	return uevent.Message{Action: uevent.ActionChange, Seqnum: seq}
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []uint64
	d := uevent.NewDispatcher(uevent.DelivererFunc(func(_ context.Context, m uevent.Message) error {
		mu.Lock()
		got = append(got, m.Seqnum)
		mu.Unlock()
		return nil
	}), uevent.DispatcherConfig{})
	defer d.Close()

	for i := uint64(1); i <= 100; i++ {
		require.NoError(t, d.Submit(msg(i)))
	}
	d.Flush()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, n := range got {
		assert.Equal(t, uint64(i+1), n)
	}
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcherSubmitDoesNotBlockOnSlowDeliverer(t *testing.T) {
	release := make(chan struct{})
	d := uevent.NewDispatcher(uevent.DelivererFunc(func(context.Context, uevent.Message) error {
		<-release
		return nil
	}), uevent.DispatcherConfig{})

	done := make(chan struct{})
	go func() {
		for i := uint64(1); i <= 10; i++ {
			_ = d.Submit(msg(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on delivery")
	}
	assert.Equal(t, 10, d.Pending())

	close(release)
	require.NoError(t, d.Close())
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcherReportsErrors(t *testing.T) {
	deliverer := mocks.NewMockDeliverer(t)
	failure := errors.New("helper exited 1")
	deliverer.EXPECT().Deliver(mock.Anything, mock.MatchedBy(func(m uevent.Message) bool {
		return m.Seqnum == 1
	})).Return(failure).Once()
	deliverer.EXPECT().Deliver(mock.Anything, mock.MatchedBy(func(m uevent.Message) bool {
		return m.Seqnum == 2
	})).Return(nil).Once()

	var mu sync.Mutex
	var failed []uint64
	d := uevent.NewDispatcher(deliverer, uevent.DispatcherConfig{
		OnError: func(m uevent.Message, err error) {
			mu.Lock()
			defer mu.Unlock()
			assert.ErrorIs(t, err, failure)
			failed = append(failed, m.Seqnum)
		},
	})

	require.NoError(t, d.Submit(msg(1)))
	require.NoError(t, d.Submit(msg(2)))
	require.NoError(t, d.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1}, failed)
}

func TestDispatcherClosed(t *testing.T) {
	d := uevent.NewDispatcher(uevent.DelivererFunc(func(context.Context, uevent.Message) error {
		return nil
	}), uevent.DispatcherConfig{})
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Submit(msg(1)), uevent.ErrDispatcherClosed)
	d.Flush()
}

func TestDispatcherTimeout(t *testing.T) {
	d := uevent.NewDispatcher(uevent.DelivererFunc(func(ctx context.Context, _ uevent.Message) error {
		<-ctx.Done()
		return ctx.Err()
	}), uevent.DispatcherConfig{
		Timeout: 10 * time.Millisecond,
		OnError: func(_ uevent.Message, err error) {
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		},
	})
	require.NoError(t, d.Submit(msg(1)))
	require.NoError(t, d.Close())
}

func TestInlineReportsErrors(t *testing.T) {
	deliverer := mocks.NewMockDeliverer(t)
	failure := errors.New("unreachable")
	deliverer.EXPECT().Deliver(mock.Anything, mock.Anything).Return(failure).Once()

	var reported error
	sink := &uevent.Inline{
		Deliverer: deliverer,
		OnError:   func(_ uevent.Message, err error) { reported = err },
	}
	require.NoError(t, sink.Submit(msg(1)))
	assert.Nil(t, reported, "Submit only queues")
	sink.Drain()
	assert.ErrorIs(t, reported, failure)
}

func TestInlineDrainsInSubmissionOrder(t *testing.T) {
	var got []uint64
	sink := &uevent.Inline{
		Deliverer: uevent.DelivererFunc(func(_ context.Context, m uevent.Message) error {
			got = append(got, m.Seqnum)
			return nil
		}),
	}
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, sink.Submit(msg(i)))
	}
	sink.Drain()
	sink.Flush()
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, got)
}

func TestInlineDeliveryMaySubmitMore(t *testing.T) {
	var got []uint64
	var sink *uevent.Inline
	sink = &uevent.Inline{
		Deliverer: uevent.DelivererFunc(func(_ context.Context, m uevent.Message) error {
			got = append(got, m.Seqnum)
			if m.Seqnum == 1 {
				require.NoError(t, sink.Submit(msg(2)))
				sink.Drain()
				assert.Equal(t, []uint64{1}, got, "nested drain leaves delivery to the outer one")
			}
			return nil
		}),
	}
	require.NoError(t, sink.Submit(msg(1)))
	sink.Drain()
	assert.Equal(t, []uint64{1, 2}, got)
}

func TestInlineDrainDoesNotBlockOtherSubmitters(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var got []uint64
	sink := &uevent.Inline{
		Deliverer: uevent.DelivererFunc(func(_ context.Context, m uevent.Message) error {
			if m.Seqnum == 1 {
				close(started)
				<-release
			}
			mu.Lock()
			got = append(got, m.Seqnum)
			mu.Unlock()
			return nil
		}),
	}

	require.NoError(t, sink.Submit(msg(1)))
	go sink.Drain()
	<-started

	done := make(chan struct{})
	go func() {
		_ = sink.Submit(msg(2))
		sink.Drain()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second submitter blocked behind a slow delivery")
	}

	close(release)
	sink.Flush()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, got)
}

func TestMultiJoinsErrors(t *testing.T) {
	first := mocks.NewMockDeliverer(t)
	second := mocks.NewMockDeliverer(t)
	errA := errors.New("a")
	first.EXPECT().Deliver(mock.Anything, mock.Anything).Return(errA).Once()
	second.EXPECT().Deliver(mock.Anything, mock.Anything).Return(nil).Once()

	err := uevent.Multi{first, second}.Deliver(context.Background(), msg(1))
	assert.ErrorIs(t, err, errA)
}
