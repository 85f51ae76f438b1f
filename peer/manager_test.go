// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package peer

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/fabricd/fabricd/message"
	"github.com/fabricd/fabricd/signaling"
	"github.com/fabricd/fabricd/util"
)

// echoHandler answers every Request with a Reply carrying the same
// payload back, tagged OK.
func echoHandler(req *message.Request) *message.Reply {
	return message.NewReply(0, message.StatusOK, req.Payload)
}

type node struct {
	id   util.EndpointID
	name string
	cli  *signaling.Client
	mgr  *Manager
}

func startNode(t *testing.T, sigSpec, name string) *node {
	t.Helper()
	cli, err := signaling.Connect(sigSpec, util.NilEndpointID, name, time.Second)
	if err != nil {
		t.Fatalf("%s: signaling connect: %s", name, err)
	}

	listenSpec := fmt.Sprintf("unix+%s", filepath.Join(t.TempDir(), name+".sock"))
	mgr := NewManager(cli.ID, name, cli, listenSpec, echoHandler)
	if err := mgr.Start(); err != nil {
		t.Fatalf("%s: manager start: %s", name, err)
	}
	t.Cleanup(func() { mgr.Stop() })

	return &node{id: cli.ID, name: name, cli: cli, mgr: mgr}
}

func startSignaling(t *testing.T) string {
	t.Helper()
	spec := fmt.Sprintf("unix+%s", filepath.Join(t.TempDir(), "signal.sock"))
	srv := signaling.NewServer("test-signal")
	if err := srv.Start(spec); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Stop() })
	return spec
}

func TestSendEstablishesChannelAndRoundTrips(t *testing.T) {
	sigSpec := startSignaling(t)
	a := startNode(t, sigSpec, "alice")
	b := startNode(t, sigSpec, "bob")

	reply, err := a.mgr.Send(b.id, message.KindGet, "obj-1", []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Status != uint8(message.StatusOK) {
		t.Fatalf("unexpected status %d", reply.Status)
	}
	if string(reply.Payload) != "hello" {
		t.Fatalf("unexpected payload %q", reply.Payload)
	}
}

func TestSendToUnknownPeerFails(t *testing.T) {
	sigSpec := startSignaling(t)
	a := startNode(t, sigSpec, "alice")

	unknown := util.NewEndpointID()
	_, err := a.mgr.Send(unknown, message.KindGet, "obj-1", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestConcurrentRequestsOverSameChannel(t *testing.T) {
	sigSpec := startSignaling(t)
	a := startNode(t, sigSpec, "alice")
	b := startNode(t, sigSpec, "bob")

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			_, err := a.mgr.Send(b.id, message.KindGet, fmt.Sprintf("obj-%d", i), []byte{byte(i)})
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
}

func TestSimultaneousOfferTieBreak(t *testing.T) {
	sigSpec := startSignaling(t)
	a := startNode(t, sigSpec, "alice")
	b := startNode(t, sigSpec, "bob")

	errs := make(chan error, 2)
	go func() {
		_, err := a.mgr.Send(b.id, message.KindGet, "o", nil)
		errs <- err
	}()
	go func() {
		_, err := b.mgr.Send(a.id, message.KindGet, "o", nil)
		errs <- err
	}()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
}

func TestCloseAfterRoundTripSucceeds(t *testing.T) {
	sigSpec := startSignaling(t)
	a := startNode(t, sigSpec, "alice")
	b := startNode(t, sigSpec, "bob")

	if _, err := a.mgr.Send(b.id, message.KindGet, "warm", nil); err != nil {
		t.Fatal(err)
	}
	if err := a.mgr.Close(b.id); err != nil {
		t.Fatal(err)
	}
}
