// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package transport

import (
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/bfix/gospel/concurrent"
	"github.com/bfix/gospel/logger"
)

// channelResult carries the outcome of a read/write performed on a
// helper goroutine back to the caller selecting on a Signaller.
type channelResult struct {
	count int
	err   error
}

//----------------------------------------------------------------------
// Generic network-based Channel
//----------------------------------------------------------------------

// NetworkChannel implements Channel over any net.Conn-capable network.
type NetworkChannel struct {
	network string
	conn    net.Conn
}

// NewNetworkChannel creates a pending channel for the given network
// ("tcp" or "unix"); it must be opened before use.
func NewNetworkChannel(netw string) Channel {
	return &NetworkChannel{network: netw}
}

// Open dials the endpoint named by spec ("<network>+<address>").
func (c *NetworkChannel) Open(spec string) (err error) {
	parts := strings.SplitN(spec, "+", 2)
	if parts[0] != c.network {
		return ErrChannelNotImplemented
	}
	c.conn, err = net.Dial(c.network, parts[1])
	return
}

// Close closes the underlying connection.
func (c *NetworkChannel) Close() error {
	if c.conn == nil {
		return ErrChannelNotOpened
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsOpen reports whether the channel has a live connection.
func (c *NetworkChannel) IsOpen() bool {
	return c.conn != nil
}

// Read performs a cancellable read: a read in progress is abandoned
// (and the connection closed) if sig delivers a true value first.
func (c *NetworkChannel) Read(buf []byte, sig *concurrent.Signaller) (int, error) {
	if c.conn == nil {
		return 0, ErrChannelNotOpened
	}
	result := make(chan channelResult, 1)
	go func() {
		n, err := c.conn.Read(buf)
		result <- channelResult{n, err}
	}()

	listener := sig.Listen()
	defer sig.Drop(listener)
	for {
		select {
		case x := <-listener:
			if stop, ok := x.(bool); ok && stop {
				c.conn.Close()
				c.conn = nil
				return 0, ErrChannelInterrupted
			}
		case res := <-result:
			return res.count, res.err
		}
	}
}

// Write performs a cancellable write, symmetric to Read.
func (c *NetworkChannel) Write(buf []byte, sig *concurrent.Signaller) (int, error) {
	if c.conn == nil {
		return 0, ErrChannelNotOpened
	}
	result := make(chan channelResult, 1)
	go func() {
		n, err := c.conn.Write(buf)
		result <- channelResult{n, err}
	}()

	listener := sig.Listen()
	defer sig.Drop(listener)
	for {
		select {
		case x := <-listener:
			if stop, ok := x.(bool); ok && stop {
				c.conn.Close()
				c.conn = nil
				return 0, ErrChannelInterrupted
			}
		case res := <-result:
			return res.count, res.err
		}
	}
}

//----------------------------------------------------------------------
// Generic network-based ChannelServer
//----------------------------------------------------------------------

// NetworkChannelServer implements ChannelServer over net.Listener.
type NetworkChannelServer struct {
	network  string
	listener net.Listener
}

// NewNetworkChannelServer creates a pending server for the given network.
func NewNetworkChannelServer(netw string) ChannelServer {
	return &NetworkChannelServer{network: netw}
}

// Open starts listening at the endpoint named by spec. Trailing
// "key=value" parts after the address configure the listener (e.g.
// "perm=0770" to chmod a Unix socket path).
func (s *NetworkChannelServer) Open(spec string, hdlr chan<- Channel) (err error) {
	parts := strings.Split(spec, "+")
	if parts[0] != s.network {
		return ErrChannelNotImplemented
	}
	if s.listener, err = net.Listen(s.network, parts[1]); err != nil {
		return err
	}
	for _, param := range parts[2:] {
		frag := strings.SplitN(param, "=", 2)
		if frag[0] == "perm" && s.network == "unix" && len(frag) == 2 {
			if perm, perr := strconv.ParseInt(frag[1], 8, 32); perr == nil {
				if cerr := os.Chmod(parts[1], os.FileMode(perm)); cerr != nil {
					logger.Printf(logger.ERROR, "[transport] chmod %s failed: %s\n", parts[1], cerr)
				}
			} else {
				logger.Printf(logger.ERROR, "[transport] invalid perm %q\n", frag[1])
			}
		}
	}
	go func() {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				hdlr <- nil
				return
			}
			hdlr <- &NetworkChannel{network: s.network, conn: conn}
		}
	}()
	return nil
}

// Close stops the listener.
func (s *NetworkChannelServer) Close() error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

//----------------------------------------------------------------------
// Scheme constructors
//----------------------------------------------------------------------

// NewSocketChannel dials a Unix domain socket.
func NewSocketChannel() Channel { return NewNetworkChannel("unix") }

// NewTCPChannel dials a TCP endpoint.
func NewTCPChannel() Channel { return NewNetworkChannel("tcp") }

// NewSocketChannelServer listens on a Unix domain socket.
func NewSocketChannelServer() ChannelServer { return NewNetworkChannelServer("unix") }

// NewTCPChannelServer listens on a TCP endpoint.
func NewTCPChannelServer() ChannelServer { return NewNetworkChannelServer("tcp") }
