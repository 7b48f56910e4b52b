// File: device/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SharedQueueBroker is the load-balancing broker specialization of Device:
// a Router frontend absorbs many short-lived client peers, a Dealer backend
// distributes their requests across competing workers, and replies ride the
// identity envelopes back out. Relay behavior is unchanged from Device.

package device

import (
	"github.com/momentics/hioload-mq/api"
	"github.com/momentics/hioload-mq/core"
)

// SharedQueueBroker is a Device with a Router frontend and Dealer backend.
type SharedQueueBroker struct {
	*Device
}

// NewSharedQueueBroker builds an own-and-bind broker over the two endpoints.
func NewSharedQueueBroker(ctx *core.Context, frontend, backend string) *SharedQueueBroker {
	return &SharedQueueBroker{
		Device: NewBind(ctx, api.Router, api.Dealer, frontend, backend),
	}
}
