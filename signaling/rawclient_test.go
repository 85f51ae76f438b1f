// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package signaling

import (
	"github.com/fabricd/fabricd/message"
	"github.com/fabricd/fabricd/transport"

	"github.com/bfix/gospel/concurrent"
)

// rawTestClient is an unregistered wire-level client used to exercise
// the server's boundary behaviours (e.g. pre-registration frames).
type rawTestClient struct {
	ch  *transport.MsgChannel
	sig *concurrent.Signaller
}

func dialRawForTest(spec string) (*rawTestClient, error) {
	raw, err := transport.NewChannel(spec)
	if err != nil {
		return nil, err
	}
	return &rawTestClient{
		ch:  transport.NewMsgChannel(raw),
		sig: concurrent.NewSignaller(),
	}, nil
}

func (c *rawTestClient) send(msg message.Message) error {
	return c.ch.Send(msg, c.sig)
}

func (c *rawTestClient) receive() (message.Message, error) {
	return c.ch.Receive(c.sig)
}

func (c *rawTestClient) Close() error {
	return c.ch.Close()
}
