// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package message

import (
	"fmt"

	"github.com/fabricd/fabricd/util"
)

// NewRequest builds a Request envelope for the given correlation id.
func NewRequest(corr uint64, kind RequestKind, objectID string, payload []byte) *Request {
	return &Request{
		CorrelationID: corr,
		Kind:          uint8(kind),
		ObjectID:      objectID,
		Payload:       payload,
	}
}

// NewReply builds a Reply envelope answering the given correlation id.
func NewReply(corr uint64, status ReplyStatus, payload []byte) *Reply {
	return &Reply{
		CorrelationID: corr,
		Status:        uint8(status),
		Payload:       payload,
	}
}

// SetUUID copies an endpoint identity into a pre-allocated 16-byte field.
func SetUUID(dst []byte, id util.EndpointID) {
	b, _ := id.MarshalBinary()
	copy(dst, b)
}

// GetUUID decodes a 16-byte field into an endpoint identity. A field of
// all zero bytes decodes to the nil identity.
func GetUUID(src []byte) util.EndpointID {
	var id util.EndpointID
	_ = id.UnmarshalBinary(src)
	return id
}

func (m *PeerRegistrationRequest) String() string {
	return fmt.Sprintf("PeerRegistrationRequest{uuid=%s,name=%q}", GetUUID(m.UUID), m.Name)
}

func (m *PeerRegistrationResponse) String() string {
	return fmt.Sprintf("PeerRegistrationResponse{uuid=%s,error=%q}", GetUUID(m.UUID), m.Error)
}

func (m *PeerConnectionMessage) String() string {
	return fmt.Sprintf("PeerConnectionMessage{src=%s(%q),peer=%s,descrLen=%d,error=%q}",
		GetUUID(m.SourceUUID), m.SourceName, GetUUID(m.PeerUUID), len(m.Description), m.Error)
}

func (m *ServerError) String() string {
	return fmt.Sprintf("ServerError{%s}", m.Message)
}

func (m *Request) String() string {
	return fmt.Sprintf("Request{corr=%d,kind=%s,obj=%s,len=%d}",
		m.CorrelationID, RequestKind(m.Kind), m.ObjectID, len(m.Payload))
}

func (m *Reply) String() string {
	return fmt.Sprintf("Reply{corr=%d,status=%s,len=%d}",
		m.CorrelationID, ReplyStatus(m.Status), len(m.Payload))
}
