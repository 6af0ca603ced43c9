package log

import (
	"context"

	"github.com/mash-protocol/objreg/pkg/uevent"
)

// Deliverer records every delivered notification in a Logger. It never
// fails, so it can sit alongside real consumers in a uevent.Multi.
type Deliverer struct {
	logger     Logger
	registryID string
}

// NewDeliverer returns a Deliverer writing to logger. A nil logger
// discards everything.
func NewDeliverer(logger Logger, registryID string) *Deliverer {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &Deliverer{logger: logger, registryID: registryID}
}

// Deliver logs msg as a CategoryUevent event.
func (d *Deliverer) Deliver(_ context.Context, msg uevent.Message) error {
	d.logger.Log(NewUeventEvent(d.registryID, msg))
	return nil
}

var _ uevent.Deliverer = (*Deliverer)(nil)
