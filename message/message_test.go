// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package message

import (
	"bytes"
	"testing"

	"github.com/fabricd/fabricd/util"
)

func TestRequestRoundTrip(t *testing.T) {
	req := NewRequest(42, KindGet, "obj-1", []byte("hello"))
	frame, err := Encode(req)
	if err != nil {
		t.Fatal(err)
	}
	hdr, err := GetHeader(frame)
	if err != nil {
		t.Fatal(err)
	}
	if Tag(hdr.Tag) != TagRequest {
		t.Fatalf("tag mismatch: %v", hdr.Tag)
	}
	got, err := DecodeBody(Tag(hdr.Tag), frame[HeaderSize:hdr.Size])
	if err != nil {
		t.Fatal(err)
	}
	out, ok := got.(*Request)
	if !ok {
		t.Fatalf("wrong type: %T", got)
	}
	if out.CorrelationID != 42 || RequestKind(out.Kind) != KindGet || out.ObjectID != "obj-1" {
		t.Fatalf("mismatch: %+v", out)
	}
	if !bytes.Equal(out.Payload, []byte("hello")) {
		t.Fatalf("payload mismatch: %q", out.Payload)
	}
}

func TestReplyNotFoundHasNoPayload(t *testing.T) {
	rep := NewReply(7, StatusNotFound, nil)
	frame, err := Encode(rep)
	if err != nil {
		t.Fatal(err)
	}
	hdr, err := GetHeader(frame)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeBody(Tag(hdr.Tag), frame[HeaderSize:hdr.Size])
	if err != nil {
		t.Fatal(err)
	}
	out := got.(*Reply)
	if ReplyStatus(out.Status) != StatusNotFound || len(out.Payload) != 0 {
		t.Fatalf("mismatch: %+v", out)
	}
}

func TestPeerRegistrationRoundTrip(t *testing.T) {
	id := util.NewEndpointID()
	req := NewPeerRegistrationRequest()
	SetUUID(req.UUID, id)
	req.Name = "worker-1"

	frame, err := Encode(req)
	if err != nil {
		t.Fatal(err)
	}
	hdr, err := GetHeader(frame)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeBody(Tag(hdr.Tag), frame[HeaderSize:hdr.Size])
	if err != nil {
		t.Fatal(err)
	}
	out := got.(*PeerRegistrationRequest)
	if out.Name != "worker-1" || !GetUUID(out.UUID).Equal(id) {
		t.Fatalf("mismatch: %+v", out)
	}
}

func TestUnknownTagRejected(t *testing.T) {
	if _, err := NewEmpty(Tag(99)); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestPeerConnectionMessageWithError(t *testing.T) {
	msg := NewPeerConnectionMessage()
	SetUUID(msg.SourceUUID, util.NewEndpointID())
	msg.SourceName = "a"
	SetUUID(msg.PeerUUID, util.NewEndpointID())
	msg.Error = ErrorPeerUnknown

	frame, err := Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	hdr, err := GetHeader(frame)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeBody(Tag(hdr.Tag), frame[HeaderSize:hdr.Size])
	if err != nil {
		t.Fatal(err)
	}
	out := got.(*PeerConnectionMessage)
	if out.Error != ErrorPeerUnknown {
		t.Fatalf("mismatch: %+v", out)
	}
}
