// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package store implements the local object-store adapter of
// spec.md §4.5: a small key/value interface over an opaque object id,
// backed by one of several pluggable storage mechanisms.
package store

import (
	"errors"
	"fmt"

	"github.com/fabricd/fabricd/fabriderr"
)

// ErrInvalidSpec is returned when a backend's connection parameters
// are missing or malformed.
var ErrInvalidSpec = errors.New("store: invalid backend specification")

// ObjectStore is the local storage surface the request layer and the
// peer request handler both call into for get/put/exists/evict.
type ObjectStore interface {
	// Put stores data under id, replacing any existing value.
	Put(id string, data []byte) error
	// Get returns the data stored under id, or a fabriderr of kind
	// KindNotFound if no such object exists.
	Get(id string) ([]byte, error)
	// Exists reports whether id is present without fetching its data.
	Exists(id string) (bool, error)
	// Evict removes id if present; evicting an absent id is not an error.
	Evict(id string) error
	// Close releases any resources held by the backend.
	Close() error
}

// ErrNotFound is wrapped by fabriderr.KindNotFound for absent objects.
var ErrNotFound = errors.New("object not found")

// Open constructs the ObjectStore named by backend, using dsn as its
// connection string. Known backends: "mem" (dsn ignored), "redis"
// (dsn is a "host:port" address, database index 0), "sqlite3" and
// "mysql" (dsn is the driver-specific data source name, per
// util.ConnectSqlDatabase's convention of a "<driver>:<dsn>" spec).
func Open(backend, dsn string) (ObjectStore, error) {
	switch backend {
	case "", "mem", "memory":
		return NewMemStore(), nil
	case "redis":
		return NewRedisStore(dsn)
	case "sqlite3", "mysql":
		return NewSQLStore(backend, dsn)
	}
	return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidSpec, backend)
}

func errNotFound(id string) error {
	return fabriderr.Wrap(fabriderr.KindNotFound, fmt.Sprintf("object %q", id), ErrNotFound)
}
