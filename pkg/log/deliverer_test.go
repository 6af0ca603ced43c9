package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/objreg/pkg/uevent"
)

func TestDelivererLogsMessage(t *testing.T) {
	rec := &recordingLogger{}
	d := NewDeliverer(rec, "reg-9")

	msg := uevent.Message{
		Action: uevent.ActionOnline,
		Seqnum: 4,
		Vars:   []string{"ACTION=online", "DEVPATH=/cpu0", "SUBSYSTEM=cpu0", "SEQNUM=4"},
	}
	require.NoError(t, d.Deliver(context.Background(), msg))

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "reg-9", events[0].RegistryID)
	assert.Equal(t, CategoryUevent, events[0].Category)
	assert.Equal(t, "/cpu0", events[0].Uevent.DevPath)
	assert.Equal(t, uint64(4), events[0].Uevent.Seqnum)
}

func TestDelivererNilLogger(t *testing.T) {
	d := NewDeliverer(nil, "")
	assert.NoError(t, d.Deliver(context.Background(), uevent.Message{Action: uevent.ActionAdd}))
}
