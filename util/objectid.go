// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package util

import (
	"encoding/hex"
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

// objectCounter is mixed into every minted object id so that two PUTs on
// the same endpoint within the same process never collide, even if the
// random source repeats (defense against a starved entropy pool, not a
// security property - the fabric does not authenticate object ids).
var objectCounter uint64

// NewObjectID mints a fresh object id for a PUT on the local endpoint.
// The id is implementation-chosen per spec.md: the fabric never parses
// it, only carries it. We derive it from a monotonic counter and random
// salt hashed with blake2b so ids are short, collision-resistant and
// carry no information about the payload.
func NewObjectID() string {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], atomic.AddUint64(&objectCounter, 1))

	salt := NewRndArray(16)
	h, _ := blake2b.New256(nil)
	h.Write(seq[:])
	h.Write(salt)
	return hex.EncodeToString(h.Sum(nil))
}
