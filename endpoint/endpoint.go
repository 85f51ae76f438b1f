// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package endpoint implements the request layer of spec.md §4.5: the
// four object operations (get/put/exists/evict), routed to the local
// store when the key names this endpoint, or relayed through the
// peer-connection manager otherwise.
package endpoint

import (
	"github.com/fabricd/fabricd/fabriderr"
	"github.com/fabricd/fabricd/message"
	"github.com/fabricd/fabricd/peer"
	"github.com/fabricd/fabricd/store"
	"github.com/fabricd/fabricd/util"
)

// Key names an object: an object id scoped to the endpoint that holds
// it. A zero EndpointID means "this endpoint" (the routing rule of
// spec.md §4.5).
type Key struct {
	ObjectID   string
	EndpointID util.EndpointID
}

// Endpoint is the local request layer: it owns the local store and a
// peer-connection manager for everything not addressed locally.
type Endpoint struct {
	self  util.EndpointID
	local store.ObjectStore
	peers *peer.Manager
}

// New builds an Endpoint identified by self, backed by local for
// locally-addressed keys and peers for everything else.
func New(self util.EndpointID, local store.ObjectStore, peers *peer.Manager) *Endpoint {
	return &Endpoint{self: self, local: local, peers: peers}
}

// SetPeers wires in the peer-connection manager after construction,
// for the chicken-and-egg case where the manager's request handler is
// this same Endpoint's HandleRequest.
func (e *Endpoint) SetPeers(peers *peer.Manager) {
	e.peers = peers
}

// isLocal reports whether key names an object on this endpoint.
func (e *Endpoint) isLocal(key Key) bool {
	return key.EndpointID.IsNil() || key.EndpointID.Equal(e.self)
}

// Get returns the bytes stored under key, or a nil payload and a
// fabriderr of kind KindNotFound if absent. A remote NOT_FOUND reply
// is reported the same way and leaves the peer channel open.
func (e *Endpoint) Get(key Key) ([]byte, error) {
	if e.isLocal(key) {
		return e.local.Get(key.ObjectID)
	}
	reply, err := e.peers.Send(key.EndpointID, message.KindGet, key.ObjectID, nil)
	if err != nil {
		return nil, err
	}
	return e.replyPayload(key, reply)
}

// Put stores obj on the local store and mints a fresh key for it.
// Puts are always local: spec.md §4.5 defines key.endpoint_id for a
// fresh Put as the local identity.
func (e *Endpoint) Put(obj []byte) (Key, error) {
	id := util.NewObjectID()
	if err := e.local.Put(id, obj); err != nil {
		return Key{}, err
	}
	return Key{ObjectID: id, EndpointID: e.self}, nil
}

// Exists reports whether key names a stored object.
func (e *Endpoint) Exists(key Key) (bool, error) {
	if e.isLocal(key) {
		return e.local.Exists(key.ObjectID)
	}
	reply, err := e.peers.Send(key.EndpointID, message.KindExists, key.ObjectID, nil)
	if err != nil {
		return false, err
	}
	return reply.Status == uint8(message.StatusOK), nil
}

// Evict removes key's object, if present; evicting an absent key is
// not an error.
func (e *Endpoint) Evict(key Key) error {
	if e.isLocal(key) {
		return e.local.Evict(key.ObjectID)
	}
	_, err := e.peers.Send(key.EndpointID, message.KindEvict, key.ObjectID, nil)
	return err
}

// replyPayload maps a data-plane Reply onto the Get contract.
func (e *Endpoint) replyPayload(key Key, reply *message.Reply) ([]byte, error) {
	switch message.ReplyStatus(reply.Status) {
	case message.StatusOK:
		return reply.Payload, nil
	case message.StatusNotFound:
		return nil, fabriderr.Wrap(fabriderr.KindNotFound, "object "+key.ObjectID, store.ErrNotFound)
	default:
		return nil, fabriderr.New(fabriderr.KindChannelError, string(reply.Payload))
	}
}

// HandleRequest answers an inbound data-plane Request on behalf of
// the peer-connection manager (spec.md §4.4 "Inbound requests"),
// dispatching into the local store only: a peer never routes a
// request further on our behalf.
func (e *Endpoint) HandleRequest(req *message.Request) *message.Reply {
	switch message.RequestKind(req.Kind) {
	case message.KindGet:
		data, err := e.local.Get(req.ObjectID)
		if err != nil {
			if fabriderr.Is(err, fabriderr.KindNotFound) {
				return message.NewReply(0, message.StatusNotFound, nil)
			}
			return message.NewReply(0, message.StatusError, []byte(err.Error()))
		}
		return message.NewReply(0, message.StatusOK, data)

	case message.KindPut:
		if err := e.local.Put(req.ObjectID, req.Payload); err != nil {
			return message.NewReply(0, message.StatusError, []byte(err.Error()))
		}
		return message.NewReply(0, message.StatusOK, nil)

	case message.KindExists:
		ok, err := e.local.Exists(req.ObjectID)
		if err != nil {
			return message.NewReply(0, message.StatusError, []byte(err.Error()))
		}
		if !ok {
			return message.NewReply(0, message.StatusNotFound, nil)
		}
		return message.NewReply(0, message.StatusOK, nil)

	case message.KindEvict:
		if err := e.local.Evict(req.ObjectID); err != nil {
			return message.NewReply(0, message.StatusError, []byte(err.Error()))
		}
		return message.NewReply(0, message.StatusOK, nil)

	default:
		return message.NewReply(0, message.StatusError, []byte("unknown request kind"))
	}
}
