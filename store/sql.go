// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package store

import (
	"database/sql"

	"github.com/fabricd/fabricd/util"
)

// SQLStore persists objects in a SQL table "objects(id, data)",
// reached through util.ConnectSqlDatabase's "<driver>:<dsn>" spec.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens driver (either "sqlite3" or "mysql") at dsn and
// ensures the backing table exists.
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	db, err := util.ConnectSqlDatabase(driver + ":" + dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS objects (
		id   VARCHAR(255) PRIMARY KEY,
		data BLOB
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

// Put implements ObjectStore.
func (s *SQLStore) Put(id string, data []byte) error {
	if _, err := s.db.Exec("DELETE FROM objects WHERE id = ?", id); err != nil {
		return err
	}
	_, err := s.db.Exec("INSERT INTO objects(id, data) VALUES(?, ?)", id, data)
	return err
}

// Get implements ObjectStore.
func (s *SQLStore) Get(id string) ([]byte, error) {
	var data []byte
	row := s.db.QueryRow("SELECT data FROM objects WHERE id = ?", id)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, errNotFound(id)
		}
		return nil, err
	}
	return data, nil
}

// Exists implements ObjectStore.
func (s *SQLStore) Exists(id string) (bool, error) {
	var n int
	row := s.db.QueryRow("SELECT COUNT(*) FROM objects WHERE id = ?", id)
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Evict implements ObjectStore.
func (s *SQLStore) Evict(id string) error {
	_, err := s.db.Exec("DELETE FROM objects WHERE id = ?", id)
	return err
}

// Close implements ObjectStore.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
