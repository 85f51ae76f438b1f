// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package signaling

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/fabricd/fabricd/message"
	"github.com/fabricd/fabricd/util"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	spec := fmt.Sprintf("unix+%s", filepath.Join(t.TempDir(), "signal.sock"))
	srv := NewServer("test-signal")
	if err := srv.Start(spec); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv, spec
}

func TestRegistrationAssignsUUID(t *testing.T) {
	_, spec := startServer(t)

	cli, err := Connect(spec, util.NilEndpointID, "alice", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	if cli.ID.IsNil() {
		t.Fatal("expected a minted identity")
	}
}

func TestReconnectReplacesOldTransport(t *testing.T) {
	srv, spec := startServer(t)

	first, err := Connect(spec, util.NilEndpointID, "alice", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	id := first.ID

	second, err := Connect(spec, id, "alice", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	if !second.ID.Equal(id) {
		t.Fatalf("expected same identity, got %s vs %s", second.ID, id)
	}

	time.Sleep(50 * time.Millisecond)
	if err := srv.checkInvariant(); err != nil {
		t.Fatal(err)
	}
	if n := srv.StatsOf().RegisteredPeers; n != 1 {
		t.Fatalf("expected 1 registered peer after reconnect, got %d", n)
	}
}

func TestRelayToUnknownPeerBouncesError(t *testing.T) {
	_, spec := startServer(t)

	cli, err := Connect(spec, util.NilEndpointID, "alice", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	unknown := util.NewEndpointID()
	msg := message.NewPeerConnectionMessage()
	message.SetUUID(msg.SourceUUID, cli.ID)
	message.SetUUID(msg.PeerUUID, unknown)
	msg.Description = "tcp+127.0.0.1:9000"
	if err := cli.Send(msg); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-cli.Frames:
		pcm, ok := got.(*message.PeerConnectionMessage)
		if !ok {
			t.Fatalf("wrong type: %T", got)
		}
		if pcm.Error != message.ErrorPeerUnknown {
			t.Fatalf("expected PeerUnknown, got %q", pcm.Error)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no bounce received")
	}
}

func TestUnregisteredClientSendGetsServerError(t *testing.T) {
	_, spec := startServer(t)

	raw, err := dialRawForTest(spec)
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()

	req := message.NewRequest(1, message.KindGet, "o", nil)
	if err := raw.send(req); err != nil {
		t.Fatal(err)
	}
	got, err := raw.receive()
	if err != nil {
		t.Fatal(err)
	}
	se, ok := got.(*message.ServerError)
	if !ok {
		t.Fatalf("wrong type: %T", got)
	}
	if se.Message != "client has not registered yet" {
		t.Fatalf("unexpected error message: %q", se.Message)
	}
}
