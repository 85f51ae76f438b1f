// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package endpoint

import (
	"testing"

	"github.com/fabricd/fabricd/fabriderr"
	"github.com/fabricd/fabricd/message"
	"github.com/fabricd/fabricd/store"
	"github.com/fabricd/fabricd/util"
)

func TestLocalPutGetExistsEvict(t *testing.T) {
	self := util.NewEndpointID()
	ep := New(self, store.NewMemStore(), nil)

	key, err := ep.Put([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if !key.EndpointID.Equal(self) {
		t.Fatalf("expected local endpoint id on a fresh key, got %s", key.EndpointID)
	}

	ok, err := ep.Exists(key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected key to exist after put")
	}

	data, err := ep.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected payload %q", data)
	}

	if err := ep.Evict(key); err != nil {
		t.Fatal(err)
	}
	if ok, _ := ep.Exists(key); ok {
		t.Fatal("expected key to be gone after evict")
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	self := util.NewEndpointID()
	ep := New(self, store.NewMemStore(), nil)

	_, err := ep.Get(Key{ObjectID: "nope"})
	if !fabriderr.Is(err, fabriderr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestEvictAbsentKeyIsNotAnError(t *testing.T) {
	self := util.NewEndpointID()
	ep := New(self, store.NewMemStore(), nil)

	if err := ep.Evict(Key{ObjectID: "absent"}); err != nil {
		t.Fatalf("evicting an absent key should not error: %v", err)
	}
}

func TestHandleRequestRoutesByKind(t *testing.T) {
	self := util.NewEndpointID()
	ep := New(self, store.NewMemStore(), nil)

	put := ep.HandleRequest(message.NewRequest(1, message.KindPut, "k", []byte("v")))
	if message.ReplyStatus(put.Status) != message.StatusOK {
		t.Fatalf("unexpected put status %d", put.Status)
	}

	get := ep.HandleRequest(message.NewRequest(2, message.KindGet, "k", nil))
	if message.ReplyStatus(get.Status) != message.StatusOK || string(get.Payload) != "v" {
		t.Fatalf("unexpected get reply %+v", get)
	}

	miss := ep.HandleRequest(message.NewRequest(3, message.KindGet, "missing", nil))
	if message.ReplyStatus(miss.Status) != message.StatusNotFound {
		t.Fatalf("expected NOT_FOUND, got %d", miss.Status)
	}

	evict := ep.HandleRequest(message.NewRequest(4, message.KindEvict, "k", nil))
	if message.ReplyStatus(evict.Status) != message.StatusOK {
		t.Fatalf("unexpected evict status %d", evict.Status)
	}
}
