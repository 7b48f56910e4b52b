// File: core/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Poller multiplexes readiness over registered sockets. After the engine
// poll returns, callbacks run synchronously for each ready socket, in the
// order the engine reported readiness, before control returns to the
// caller's loop.

package core

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-mq/api"
)

// PollCallback is invoked with the ready socket and the subset of watched
// events that fired.
type PollCallback func(s *Socket, events api.EventFlags)

type pollEntry struct {
	sock   *Socket
	events api.EventFlags
	fn     PollCallback
}

// Poller watches a fixed set of sockets for readiness. Not safe for
// concurrent use; each background loop owns its own Poller.
type Poller struct {
	eng     api.Engine
	entries []pollEntry
	items   []api.PollItem
}

// NewPoller creates an empty poller against eng.
func NewPoller(eng api.Engine) *Poller {
	return &Poller{eng: eng}
}

// Add registers a socket with an event mask and its callback.
func (p *Poller) Add(s *Socket, events api.EventFlags, fn PollCallback) error {
	if s == nil || fn == nil {
		return fmt.Errorf("%w: nil socket or callback", api.ErrInvalidArgument)
	}
	if events&(api.EventIn|api.EventOut) == 0 {
		return fmt.Errorf("%w: empty event mask", api.ErrInvalidArgument)
	}
	p.entries = append(p.entries, pollEntry{sock: s, events: events, fn: fn})
	p.items = append(p.items, api.PollItem{Socket: s.handle, Events: events})
	return nil
}

// Poll blocks up to timeout for readiness, then dispatches callbacks for
// every ready socket. Returns the number of ready sockets; zero means the
// timeout elapsed.
func (p *Poller) Poll(timeout time.Duration) (int, error) {
	return p.poll(timeout)
}

// PollForever blocks until at least one socket is ready, then dispatches.
func (p *Poller) PollForever() (int, error) {
	return p.poll(-1)
}

func (p *Poller) poll(timeout time.Duration) (int, error) {
	if len(p.entries) == 0 {
		return 0, fmt.Errorf("%w: poller has no sockets", api.ErrInvalidArgument)
	}
	for i := range p.items {
		p.items[i].REvents = 0
	}
	n, err := p.eng.Poll(p.items, timeout)
	if err != nil {
		return 0, err
	}
	for i := range p.items {
		if ev := p.items[i].REvents; ev != 0 {
			p.entries[i].fn(p.entries[i].sock, ev)
		}
	}
	return n, nil
}
