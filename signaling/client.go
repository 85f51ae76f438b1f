// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package signaling

import (
	"fmt"
	"time"

	"github.com/fabricd/fabricd/fabriderr"
	"github.com/fabricd/fabricd/message"
	"github.com/fabricd/fabricd/transport"
	"github.com/fabricd/fabricd/util"

	"github.com/bfix/gospel/concurrent"
	"github.com/bfix/gospel/logger"
)

// errRegistration wraps a registration-handshake failure as
// fabriderr.KindPeerRegistration, per spec.md §4.3, so callers can
// detect it with fabriderr.Is instead of a package-local error type.
func errRegistration(reason string) error {
	return fabriderr.New(fabriderr.KindPeerRegistration, reason)
}

// Client is the accepted identity and transport handle returned by
// Connect. Subsequent frames are delivered on Frames until the
// transport closes; the sequence is not restartable.
type Client struct {
	ID     util.EndpointID
	ch     *transport.MsgChannel
	sig    *concurrent.Signaller
	Frames <-chan message.Message
}

// Send transmits a PeerConnectionMessage to the signaling server.
func (c *Client) Send(msg message.Message) error {
	return c.ch.Send(msg, c.sig)
}

// Close cancels the read loop and closes the transport.
func (c *Client) Close() error {
	c.sig.Signal(true)
	return c.ch.Close()
}

// Connect dials address, performs the registration handshake (with an
// optional pre-existing identity and diagnostic name), and returns a
// live Client on success.
func Connect(address string, id util.EndpointID, name string, timeout time.Duration) (*Client, error) {
	raw, err := transport.NewChannel(address)
	if err != nil {
		return nil, fabriderr.Wrap(fabriderr.KindPeerRegistration, "dial failed", err)
	}
	ch := transport.NewMsgChannel(raw)
	sig := concurrent.NewSignaller()

	req := message.NewPeerRegistrationRequest()
	if !id.IsNil() {
		message.SetUUID(req.UUID, id)
	}
	req.Name = name
	if err := ch.Send(req, sig); err != nil {
		ch.Close()
		return nil, fabriderr.Wrap(fabriderr.KindPeerRegistration, "failed to send registration request", err)
	}

	type result struct {
		msg message.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := ch.Receive(sig)
		done <- result{msg, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-time.After(timeout):
		sig.Signal(true)
		ch.Close()
		return nil, errRegistration("timed out waiting for registration response")
	}
	if res.err != nil {
		ch.Close()
		return nil, fabriderr.Wrap(fabriderr.KindPeerRegistration, "failed to read registration response", res.err)
	}
	resp, ok := res.msg.(*message.PeerRegistrationResponse)
	if !ok {
		ch.Close()
		return nil, errRegistration(fmt.Sprintf("unexpected response %T", res.msg))
	}
	if resp.Error != "" {
		ch.Close()
		return nil, errRegistration(resp.Error)
	}

	frames := make(chan message.Message)
	go func() {
		defer close(frames)
		for {
			msg, err := ch.Receive(sig)
			if err != nil {
				logger.Printf(logger.INFO, "[signaling] client stream ended: %s\n", err)
				return
			}
			frames <- msg
		}
	}()

	return &Client{
		ID:     message.GetUUID(resp.UUID),
		ch:     ch,
		sig:    sig,
		Frames: frames,
	}, nil
}
