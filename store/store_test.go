// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package store

import (
	"path/filepath"
	"testing"

	"github.com/fabricd/fabricd/fabriderr"
)

func TestMemStorePutGetExistsEvict(t *testing.T) {
	s := NewMemStore()

	if ok, _ := s.Exists("a"); ok {
		t.Fatal("expected absent")
	}
	if err := s.Put("a", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists("a"); !ok {
		t.Fatal("expected present")
	}
	data, err := s.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected data %q", data)
	}
	if err := s.Evict("a"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists("a"); ok {
		t.Fatal("expected absent after evict")
	}
}

func TestMemStoreGetMissingIsNotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get("missing")
	if !fabriderr.Is(err, fabriderr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestMemStorePutCopiesData(t *testing.T) {
	s := NewMemStore()
	buf := []byte("abc")
	if err := s.Put("k", buf); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'x'
	data, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abc" {
		t.Fatalf("store aliased caller's buffer: got %q", data)
	}
}

func TestSQLStoreRoundTrip(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "objects.db")
	s, err := NewSQLStore("sqlite3", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Put("k1", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	data, err := s.Get("k1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v1" {
		t.Fatalf("unexpected data %q", data)
	}

	if err := s.Put("k1", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	data, err = s.Get("k1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v2" {
		t.Fatalf("put did not overwrite: got %q", data)
	}

	if err := s.Evict("k1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("k1"); !fabriderr.Is(err, fabriderr.KindNotFound) {
		t.Fatalf("expected KindNotFound after evict, got %v", err)
	}
}

func TestOpenDispatchesBackend(t *testing.T) {
	s, err := Open("mem", "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*MemStore); !ok {
		t.Fatalf("expected *MemStore, got %T", s)
	}

	if _, err := Open("bogus", ""); err == nil {
		t.Fatal("expected an error for unknown backend")
	}
}
