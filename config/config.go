// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package config loads and persists the per-endpoint configuration
// record and resolves the signaling address it names.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/bfix/gospel/logger"
	"github.com/fabricd/fabricd/util"

	"github.com/google/uuid"
)

// Environ is a set of substitution variables available to ${VAR}
// references inside string-valued configuration fields.
type Environ map[string]string

// Endpoint is the persisted configuration record for one endpoint,
// keyed by its directory per spec.md: {name, uuid, host, port,
// signaling_address}.
type Endpoint struct {
	Env              Environ `json:"environ"`
	Name             string  `json:"name"`
	UUID             string  `json:"uuid"`
	Host             string  `json:"host"`
	Port             int     `json:"port"`
	SignalingAddress string  `json:"signaling_address"`
	StoreBackend     string  `json:"store_backend"` // "mem", "redis", "sqlite3", "mysql"
	StoreDSN         string  `json:"store_dsn"`
}

// EndpointID parses the configured UUID. It returns an error if no
// uuid is set; it does not mint one (New does that).
func (e *Endpoint) EndpointID() (util.EndpointID, error) {
	if e.UUID == "" {
		return util.NilEndpointID, fmt.Errorf("config: no uuid set")
	}
	return util.ParseEndpointID(e.UUID)
}

// Load reads and parses an endpoint configuration file, applying
// ${VAR} substitutions from its own Env block.
func Load(fileName string) (*Endpoint, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	return LoadBytes(data)
}

// LoadBytes parses a JSON-encoded endpoint configuration.
func LoadBytes(data []byte) (*Endpoint, error) {
	ep := new(Endpoint)
	if err := json.Unmarshal(data, ep); err != nil {
		return nil, err
	}
	applySubstitutions(ep, ep.Env)
	return ep, nil
}

// Save persists an endpoint configuration as indented JSON.
func Save(fileName string, ep *Endpoint) error {
	data, err := json.MarshalIndent(ep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fileName, data, 0o600)
}

// New builds a fresh configuration with a newly minted identity,
// defaulting Name to the local hostname.
func New(name, host string, port int, signalingAddress string) *Endpoint {
	if name == "" {
		name = util.DefaultName()
	}
	return &Endpoint{
		Env:              Environ{},
		Name:             name,
		UUID:             uuid.New().String(),
		Host:             host,
		Port:             port,
		SignalingAddress: signalingAddress,
		StoreBackend:     "mem",
	}
}

//----------------------------------------------------------------------
// ${VAR} substitution, generalized from the teacher's GNUnet config.
//----------------------------------------------------------------------

var rxVar = regexp.MustCompile(`\$\{([^\}]*)\}`)

func substString(s string, env map[string]string) string {
	matches := rxVar.FindAllStringSubmatch(s, -1)
	for _, m := range matches {
		if len(m[1]) == 0 {
			continue
		}
		subst, ok := env[m[1]]
		if !ok {
			continue
		}
		s = strings.ReplaceAll(s, "${"+m[1]+"}", subst)
	}
	return s
}

// applySubstitutions traverses a configuration struct and resolves
// ${VAR} references in every string field against env.
func applySubstitutions(x interface{}, env map[string]string) {
	var process func(v reflect.Value)
	process = func(v reflect.Value) {
		for i := 0; i < v.NumField(); i++ {
			fld := v.Field(i)
			if !fld.CanSet() {
				continue
			}
			switch fld.Kind() {
			case reflect.String:
				s := fld.String()
				for {
					s1 := substString(s, env)
					if s1 == s {
						break
					}
					logger.Printf(logger.DBG, "[config] %s --> %s\n", s, s1)
					fld.SetString(s1)
					s = s1
				}
			case reflect.Struct:
				process(fld)
			case reflect.Ptr:
				if e := fld.Elem(); e.IsValid() {
					process(e)
				}
			}
		}
	}
	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		if e := v.Elem(); e.IsValid() {
			process(e)
		}
		return
	}
	if v.Kind() == reflect.Struct {
		process(v)
	}
}
