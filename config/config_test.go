// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBytesAppliesSubstitution(t *testing.T) {
	data := []byte(`{
		"environ": {"HOST": "10.0.0.5"},
		"name": "worker-1",
		"uuid": "1f1e0a6e-6b1a-4b0e-9f0a-1a2b3c4d5e6f",
		"host": "${HOST}",
		"port": 9100,
		"signaling_address": "dns:///signal.example.org"
	}`)
	ep, err := LoadBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if ep.Host != "10.0.0.5" {
		t.Fatalf("substitution did not apply: %q", ep.Host)
	}
	if ep.Name != "worker-1" || ep.Port != 9100 {
		t.Fatalf("unexpected fields: %+v", ep)
	}
}

func TestEndpointIDRoundTrip(t *testing.T) {
	ep := New("worker-2", "127.0.0.1", 9200, "")
	id, err := ep.EndpointID()
	if err != nil {
		t.Fatal(err)
	}
	if id.IsNil() {
		t.Fatal("expected a minted identity")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	ep := New("worker-3", "127.0.0.1", 9300, "")
	if err := Save(path, ep); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != ep.Name || got.UUID != ep.UUID {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, ep)
	}
}

func TestStatusLifecycle(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nonexistent")
	if s := StatusOf(missing); s != StatusUnknown {
		t.Fatalf("expected UNKNOWN, got %s", s)
	}

	epDir := filepath.Join(dir, "endpoint")
	if err := os.Mkdir(epDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if s := StatusOf(epDir); s != StatusStopped {
		t.Fatalf("expected STOPPED, got %s", s)
	}

	if err := WritePID(epDir); err != nil {
		t.Fatal(err)
	}
	if s := StatusOf(epDir); s != StatusRunning {
		t.Fatalf("expected RUNNING, got %s", s)
	}

	if err := RemovePID(epDir); err != nil {
		t.Fatal(err)
	}
	if s := StatusOf(epDir); s != StatusStopped {
		t.Fatalf("expected STOPPED after removal, got %s", s)
	}
}
