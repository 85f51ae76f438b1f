// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package signaling implements the rendezvous protocol that lets two
// endpoints exchange connection descriptors without a direct channel
// between them yet: a Server relays PeerConnectionMessage frames
// between registered clients, and a Client drives the registration
// handshake and exposes subsequent frames as a message stream.
package signaling

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fabricd/fabricd/fabriderr"
	"github.com/fabricd/fabricd/message"
	"github.com/fabricd/fabricd/transport"
	"github.com/fabricd/fabricd/util"

	"github.com/bfix/gospel/concurrent"
	"github.com/bfix/gospel/logger"
	"github.com/google/uuid"
)

// Close reasons recorded when a transport is unregistered.
const (
	ReasonOK         = "ok"         // clean disconnect, close code 1000
	ReasonUnexpected = "unexpected" // reconnect or transport error, close code 1001
)

// entry is a registered client: the tuple (identity, name, transport)
// of spec.md §3.
type entry struct {
	id   util.EndpointID
	name string
	ch   *transport.MsgChannel
	sig  *concurrent.Signaller
}

// Server relays PeerConnectionMessage frames between registered
// clients by peer_uuid, per spec.md §4.2.
type Server struct {
	byUUID      *util.Map[uuid.UUID, *entry]
	byTransport *util.Map[*transport.MsgChannel, *entry]

	name string
	srvc transport.ChannelServer
	hdlr chan transport.Channel
	wg   sync.WaitGroup
}

// NewServer creates an unstarted signaling server.
func NewServer(name string) *Server {
	return &Server{
		byUUID:      util.NewMap[uuid.UUID, *entry](),
		byTransport: util.NewMap[*transport.MsgChannel, *entry](),
		name:        name,
		hdlr:        make(chan transport.Channel),
	}
}

// Start begins accepting connections at spec (a transport.Channel
// scheme string) and serving the session protocol on each.
func (s *Server) Start(spec string) (err error) {
	logger.Printf(logger.INFO, "[%s] signaling server starting on %s\n", s.name, spec)
	if s.srvc, err = transport.NewChannelServer(spec, s.hdlr); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for raw := range s.hdlr {
			if raw == nil {
				logger.Printf(logger.INFO, "[%s] listener terminated\n", s.name)
				return
			}
			ch := transport.NewMsgChannel(raw)
			go s.serveSession(ch)
		}
	}()
	return nil
}

// Stop closes the listener and every registered transport.
func (s *Server) Stop() error {
	err := s.srvc.Close()
	entries := make([]*entry, 0, s.byTransport.Size())
	s.byTransport.ProcessRange(func(_ *transport.MsgChannel, e *entry, _ int) error {
		entries = append(entries, e)
		return nil
	}, true)
	for _, e := range entries {
		s.unregister(e.ch, ReasonOK)
	}
	s.wg.Wait()
	return err
}

// serveSession runs the session protocol of spec.md §4.2 to
// completion on one accepted transport.
func (s *Server) serveSession(ch *transport.MsgChannel) {
	sig := concurrent.NewSignaller()
	registered := false

	defer func() {
		reason := ReasonOK
		if !registered {
			ch.Close()
			return
		}
		s.unregister(ch, reason)
	}()

	for {
		msg, err := ch.Receive(sig)
		if err != nil {
			if fabriderr.Is(err, fabriderr.KindSerialization) {
				// Malformed frame: drop it, session continues.
				logger.Printf(logger.WARN, "[%s] dropping malformed frame: %s\n", s.name, err)
				continue
			}
			logger.Printf(logger.INFO, "[%s] session ended: %s\n", s.name, err)
			if registered {
				reason := ReasonUnexpected
				if errors.Is(err, io.EOF) {
					reason = ReasonOK
				}
				s.unregisterReason(ch, reason)
				registered = false
			}
			return
		}

		switch m := msg.(type) {
		case *message.PeerRegistrationRequest:
			e := s.register(ch, sig, m)
			registered = true
			resp := message.NewPeerRegistrationResponse()
			message.SetUUID(resp.UUID, e.id)
			if err := ch.Send(resp, sig); err != nil {
				logger.Printf(logger.WARN, "[%s] failed to send registration response: %s\n", s.name, err)
				return
			}

		case *message.PeerConnectionMessage:
			if !registered {
				s.sendError(ch, sig, "client has not registered yet")
				continue
			}
			s.relay(ch, sig, m)

		default:
			if !registered {
				s.sendError(ch, sig, "client has not registered yet")
				continue
			}
			s.sendError(ch, sig, "unknown request type")
		}
	}
}

// register binds ch to an identity, unregistering any prior transport
// bound to the same identity first (spec.md §4.2 step 3).
func (s *Server) register(ch *transport.MsgChannel, sig *concurrent.Signaller, req *message.PeerRegistrationRequest) *entry {
	id := message.GetUUID(req.UUID)
	if id.IsNil() {
		id = util.NewEndpointID()
	}

	if old, ok := s.byUUID.Get(id.UUID, 0); ok {
		logger.Printf(logger.INFO, "[%s] %s reconnecting, closing prior transport\n", s.name, id)
		s.unregister(old.ch, ReasonUnexpected)
	}
	e := &entry{id: id, name: req.Name, ch: ch, sig: sig}
	s.byUUID.Put(id.UUID, e, 0)
	s.byTransport.Put(ch, e, 0)

	logger.Printf(logger.INFO, "[%s] registered %s (%s)\n", s.name, id, req.Name)
	return e
}

// unregister removes ch's registry entry (if any) and closes it.
func (s *Server) unregister(ch *transport.MsgChannel, reason string) {
	s.unregisterReason(ch, reason)
	ch.Close()
}

// unregisterReason removes ch's registry entry without closing the
// transport (the caller is already tearing it down).
func (s *Server) unregisterReason(ch *transport.MsgChannel, reason string) {
	e, ok := s.byTransport.Get(ch, 0)
	if !ok {
		return
	}
	s.byTransport.Delete(ch, 0)
	s.byUUID.Delete(e.id.UUID, 0)
	logger.Printf(logger.INFO, "[%s] unregistering %s (reason=%s)\n", s.name, e.id, reason)
}

// relay forwards m to its peer_uuid's transport, or bounces a
// PeerUnknown error back to the sender (spec.md §4.2 step 4).
func (s *Server) relay(from *transport.MsgChannel, sig *concurrent.Signaller, m *message.PeerConnectionMessage) {
	target := message.GetUUID(m.PeerUUID)

	peer, ok := s.byUUID.Get(target.UUID, 0)

	if !ok {
		logger.Printf(logger.WARN, "[%s] relay to unknown peer %s\n", s.name, target)
		bounce := message.NewPeerConnectionMessage()
		message.SetUUID(bounce.SourceUUID, message.GetUUID(m.SourceUUID))
		bounce.SourceName = m.SourceName
		message.SetUUID(bounce.PeerUUID, target)
		bounce.Error = message.ErrorPeerUnknown
		if err := from.Send(bounce, sig); err != nil {
			logger.Printf(logger.WARN, "[%s] failed to bounce PeerUnknown: %s\n", s.name, err)
		}
		return
	}
	if err := peer.ch.Send(m, peer.sig); err != nil {
		logger.Printf(logger.WARN, "[%s] failed to relay to %s: %s\n", s.name, target, err)
	}
}

// sendError replies with a ServerError naming why the session's last
// frame was rejected (spec.md §4.2 steps 2 and 5).
func (s *Server) sendError(ch *transport.MsgChannel, sig *concurrent.Signaller, reason string) {
	if err := ch.Send(&message.ServerError{Message: reason}, sig); err != nil {
		logger.Printf(logger.WARN, "[%s] failed to send ServerError: %s\n", s.name, err)
	}
}

//----------------------------------------------------------------------
// Introspection, used by the JSON-RPC admin surface.
//----------------------------------------------------------------------

// PeerInfo is a read-only snapshot of one registry entry.
type PeerInfo struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// ErrNotRunning reports a signaling server that has not been started.
// List and StatsOf do not return it: before Start they report an
// empty registry.
var ErrNotRunning = errors.New("signaling: server not started")

// List returns a snapshot of every currently registered client.
func (s *Server) List() []PeerInfo {
	out := make([]PeerInfo, 0, s.byUUID.Size())
	s.byUUID.ProcessRange(func(id uuid.UUID, e *entry, _ int) error {
		out = append(out, PeerInfo{UUID: id.String(), Name: e.name})
		return nil
	}, true)
	return out
}

// Stats summarizes registry occupancy for the admin surface.
type Stats struct {
	RegisteredPeers int `json:"registered_peers"`
}

// StatsOf reports current registry occupancy.
func (s *Server) StatsOf() Stats {
	return Stats{RegisteredPeers: s.byUUID.Size()}
}

// checkInvariant is a test and debug hook asserting that the two
// registry indices name the same set of entries (spec.md §3 and §8).
func (s *Server) checkInvariant() error {
	if s.byUUID.Size() != s.byTransport.Size() {
		return fmt.Errorf("registry invariant violated: %d by-uuid vs %d by-transport", s.byUUID.Size(), s.byTransport.Size())
	}
	var bad error
	s.byUUID.ProcessRange(func(id uuid.UUID, e *entry, _ int) error {
		if other, ok := s.byTransport.Get(e.ch, 0); !ok || other != e || e.id.UUID != id {
			bad = fmt.Errorf("registry invariant violated for %s", id)
		}
		return nil
	}, true)
	return bad
}
