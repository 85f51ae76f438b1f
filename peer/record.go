// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package peer

import (
	"sync"
	"time"

	"github.com/fabricd/fabricd/fabriderr"
	"github.com/fabricd/fabricd/message"
	"github.com/fabricd/fabricd/transport"
	"github.com/fabricd/fabricd/util"

	"github.com/bfix/gospel/concurrent"
)

// completion is a one-shot slot a caller awaits and some event
// completes, per spec.md §9 "Async completion slots".
type completion struct {
	ch chan completionResult
}

type completionResult struct {
	reply *message.Reply
	err   error
}

func newCompletion() *completion {
	return &completion{ch: make(chan completionResult, 1)}
}

func (c *completion) complete(res completionResult) {
	select {
	case c.ch <- res:
	default:
		// already completed or abandoned; nothing to do.
	}
}

// queuedRequest is a Send() call waiting for the record to reach OPEN.
type queuedRequest struct {
	corr uint64
	req  *message.Request
}

// record is the peer-connection record of spec.md §3: per-peer state,
// channel handle, and the pending-requests table.
type record struct {
	mu sync.Mutex

	peer    util.EndpointID
	state   State
	channel *transport.MsgChannel
	sig     *concurrent.Signaller

	outbox chan message.Message

	nextCorr uint64
	pending  map[uint64]*completion
	queued   []queuedRequest

	handshakeTimer *time.Timer
	reconnects     int
}

func newRecord(peer util.EndpointID) *record {
	return &record{
		peer:    peer,
		state:   StateIdle,
		pending: make(map[uint64]*completion),
	}
}

// failAllLocked completes every pending slot with err, including
// requests still sitting in queued (every queued request also has a
// pending slot, added at enqueue time in Send). Caller must hold r.mu.
func (r *record) failAllLocked(err error) {
	for corr, slot := range r.pending {
		slot.complete(completionResult{err: err})
		delete(r.pending, corr)
	}
	r.queued = nil
}

// stopHandshakeTimerLocked cancels any running handshake timer.
// Caller must hold r.mu.
func (r *record) stopHandshakeTimerLocked() {
	if r.handshakeTimer != nil {
		r.handshakeTimer.Stop()
		r.handshakeTimer = nil
	}
}

// errMaxReconnect is returned when a CLOSED record has already
// exhausted its reconnect budget.
var errMaxReconnect = fabriderr.New(fabriderr.KindChannelError, "max reconnect attempts exceeded")
