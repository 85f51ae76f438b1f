// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package util

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/bfix/gospel/logger"
)

// EndpointID is the 128-bit identity of an endpoint in the fabric,
// minted once at configuration time and persisted. It replaces the
// long-term signing key the teacher uses as a peer identifier: this
// fabric does not authenticate peers (see Non-goals), so identity is
// an opaque label, not key material.
type EndpointID struct {
	uuid.UUID
}

// NilEndpointID is the zero identity, used to mean "no endpoint" in
// optional fields (e.g. a key with no endpoint_id set).
var NilEndpointID = EndpointID{}

// NewEndpointID mints a fresh random identity.
func NewEndpointID() EndpointID {
	return EndpointID{uuid.New()}
}

// ParseEndpointID decodes a canonical UUID string into an identity.
func ParseEndpointID(s string) (EndpointID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return EndpointID{}, fmt.Errorf("invalid endpoint id %q: %w", s, err)
	}
	return EndpointID{id}, nil
}

// IsNil reports whether this is the zero identity.
func (e EndpointID) IsNil() bool {
	return e.UUID == uuid.Nil
}

// Equal reports whether two identities name the same endpoint.
func (e EndpointID) Equal(o EndpointID) bool {
	return e.UUID == o.UUID
}

// Less implements the numeric ordering used by the peer-connection
// manager's offer tie-break: the lower identity's offer wins.
func (e EndpointID) Less(o EndpointID) bool {
	for i := range e.UUID {
		if e.UUID[i] != o.UUID[i] {
			return e.UUID[i] < o.UUID[i]
		}
	}
	return false
}

// EnforceDirExists makes sure the directory at path exists, creating it
// if necessary. Used by transport's unix-socket listener to create the
// socket's parent directory on demand.
func EnforceDirExists(path string) error {
	logger.Printf(logger.DBG, "[util] checking directory '%s'...\n", path)
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf(logger.DBG, "[util] creating directory '%s'...\n", path)
			return os.Mkdir(path, 0770)
		}
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("not a directory: %s", path)
	}
	return nil
}
