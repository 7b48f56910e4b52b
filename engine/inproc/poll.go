// File: engine/inproc/poll.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness poll and the blocking bidirectional relay primitive. Both ride
// on the engine-wide broadcast channel: any state mutation wakes them and
// they re-evaluate readiness under the mutex.

package inproc

import (
	"time"

	"github.com/momentics/hioload-mq/api"
)

// Poll blocks until at least one item is ready or the timeout elapses.
// timeout < 0 blocks forever, timeout == 0 is a single non-blocking check.
// Termination of any watched socket's context aborts with the terminated
// condition so pollers shut down promptly.
func (e *Engine) Poll(items []api.PollItem, timeout time.Duration) (int, error) {
	if len(items) == 0 {
		return 0, api.NewEngineError(api.CodeInvalid, "poll", "no poll items")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	for {
		ready := 0
		for i := range items {
			s, ok := e.sockets[items[i].Socket]
			if !ok {
				return 0, api.NewEngineError(api.CodeInvalid, "poll", "unknown socket")
			}
			if s.ctx.terminated {
				return 0, api.NewEngineError(api.CodeTerm, "poll", "context was terminated")
			}
			var rev api.EventFlags
			if items[i].Events&api.EventIn != 0 && s.readable() {
				rev |= api.EventIn
			}
			if items[i].Events&api.EventOut != 0 && s.writable() {
				rev |= api.EventOut
			}
			items[i].REvents = rev
			if rev != 0 {
				ready++
			}
		}
		if ready > 0 {
			return ready, nil
		}
		if timeout == 0 {
			return 0, nil
		}
		if timedOut := e.await(deadline); timedOut {
			return 0, nil
		}
	}
}

// Proxy relays complete messages between front and back until a watched
// context terminates. Messages move verbatim: envelope frames added by
// Router inboxes pass straight through, which is what broker topologies
// rely on.
func (e *Engine) Proxy(front, back api.SockHandle) error {
	items := []api.PollItem{
		{Socket: front, Events: api.EventIn},
		{Socket: back, Events: api.EventIn},
	}
	for {
		if _, err := e.Poll(items, -1); err != nil {
			return err
		}
		if items[0].REvents&api.EventIn != 0 {
			if err := e.shuttle(front, back); err != nil {
				return err
			}
		}
		if items[1].REvents&api.EventIn != 0 {
			if err := e.shuttle(back, front); err != nil {
				return err
			}
		}
	}
}

// shuttle moves one queued message from one relay side to the other.
func (e *Engine) shuttle(from, to api.SockHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	src, err := e.sockLocked(from, "proxy")
	if err != nil {
		return err
	}
	dst, err := e.sockLocked(to, "proxy")
	if err != nil {
		return err
	}
	if src.inbox.Length() == 0 {
		return nil
	}
	m := src.inbox.Remove().(*message)
	return e.routeLocked(dst, m.frames, false)
}
