// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package peer implements the per-peer connection state machine of
// spec.md §4.4: it turns signaling-relayed offers/answers into direct
// data channels between endpoints, multiplexes concurrent requests
// over each channel, and exposes send/close to the request layer.
package peer

import (
	"fmt"
	"time"

	"github.com/fabricd/fabricd/message"
)

// State is a peer-connection record's position in the state machine.
type State int

// Known states.
const (
	StateIdle State = iota
	StateOffering
	StateAnswering
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOffering:
		return "OFFERING"
	case StateAnswering:
		return "ANSWERING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Defaults for the timers and bounds of spec.md §5 and §9.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
	DefaultMaxReconnect     = 5
	DefaultMaxOutbound      = 64 // backpressure bound on queued outbound requests
)

// RequestHandler answers an inbound Request on behalf of the local
// endpoint (spec.md §4.4 "Inbound requests"), dispatching into the
// local request layer.
type RequestHandler func(req *message.Request) *message.Reply
