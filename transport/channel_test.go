// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package transport

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/fabricd/fabricd/message"

	"github.com/bfix/gospel/concurrent"
)

func TestMsgChannelUnixRoundTrip(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "fabric-test.sock")
	spec := fmt.Sprintf("unix+%s", sockPath)

	accepted := make(chan Channel, 1)
	srv, err := NewChannelServer(spec, accepted)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	cliCh, err := NewChannel(spec)
	if err != nil {
		t.Fatal(err)
	}
	cli := NewMsgChannel(cliCh)
	defer cli.Close()

	var srvCh Channel
	select {
	case srvCh = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not accept connection")
	}
	srv2 := NewMsgChannel(srvCh)
	defer srv2.Close()

	sig := concurrent.NewSignaller()
	req := message.NewRequest(1, message.KindGet, "obj-1", []byte("payload"))
	if err := cli.Send(req, sig); err != nil {
		t.Fatal(err)
	}

	got, err := srv2.Receive(sig)
	if err != nil {
		t.Fatal(err)
	}
	out, ok := got.(*message.Request)
	if !ok {
		t.Fatalf("wrong type: %T", got)
	}
	if out.ObjectID != "obj-1" || string(out.Payload) != "payload" {
		t.Fatalf("mismatch: %+v", out)
	}
}
