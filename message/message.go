// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package message defines the tagged envelope types carried over the
// signaling wire protocol and the peer data-channel protocol, and their
// binary (de)serialization. The wire form is self-describing: a small
// fixed header names the total frame size and a tag identifying the
// body layout that follows.
package message

import (
	"errors"
	"fmt"
)

// Error codes
var (
	ErrHeaderTooSmall = errors.New("message header too small")
	ErrUnknownTag     = errors.New("unknown message tag")
)

// Tag identifies the layout of a message body.
type Tag uint8

// Known message tags.
const (
	TagPeerRegistrationRequest Tag = iota + 1
	TagPeerRegistrationResponse
	TagPeerConnectionMessage
	TagServerError
	TagRequest
	TagReply
)

func (t Tag) String() string {
	switch t {
	case TagPeerRegistrationRequest:
		return "PeerRegistrationRequest"
	case TagPeerRegistrationResponse:
		return "PeerRegistrationResponse"
	case TagPeerConnectionMessage:
		return "PeerConnectionMessage"
	case TagServerError:
		return "ServerError"
	case TagRequest:
		return "Request"
	case TagReply:
		return "Reply"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// Message is implemented by every wire envelope type.
type Message interface {
	Tag() Tag
}

// Header is the fixed-size prefix of every frame on the wire.
type Header struct {
	Size uint32 // total frame size, including this header, little-endian
	Tag  uint8
}

// HeaderSize is the marshaled size of Header in bytes.
const HeaderSize = 5

// GetHeader parses the fixed header from the front of a buffer.
func GetHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, ErrHeaderTooSmall
	}
	h := new(Header)
	if err := Unmarshal(h, b[:HeaderSize]); err != nil {
		return nil, err
	}
	return h, nil
}

// NewEmpty returns a zero-value message for the given tag, with any
// fixed-size byte fields pre-allocated so Unmarshal can fill them in
// place (the codec uses a pre-allocated slice's own length before
// falling back to the field's size tag).
func NewEmpty(tag Tag) (Message, error) {
	switch Tag(tag) {
	case TagPeerRegistrationRequest:
		return NewPeerRegistrationRequest(), nil
	case TagPeerRegistrationResponse:
		return NewPeerRegistrationResponse(), nil
	case TagPeerConnectionMessage:
		return NewPeerConnectionMessage(), nil
	case TagServerError:
		return new(ServerError), nil
	case TagRequest:
		return new(Request), nil
	case TagReply:
		return new(Reply), nil
	}
	return nil, ErrUnknownTag
}

// Encode serializes a message into a full, self-delimited frame
// (header + body).
func Encode(msg Message) ([]byte, error) {
	body, err := Marshal(msg)
	if err != nil {
		return nil, err
	}
	hdr := &Header{
		Size: uint32(HeaderSize + len(body)),
		Tag:  uint8(msg.Tag()),
	}
	hb, err := Marshal(hdr)
	if err != nil {
		return nil, err
	}
	return append(hb, body...), nil
}

// DecodeBody allocates the message type for tag and fills it from body.
func DecodeBody(tag Tag, body []byte) (Message, error) {
	msg, err := NewEmpty(tag)
	if err != nil {
		return nil, err
	}
	if err := Unmarshal(msg, body); err != nil {
		return nil, err
	}
	return msg, nil
}
