// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package util

import "os"

// DefaultName returns the local hostname, used as an endpoint's
// diagnostic name when none is configured.
func DefaultName() string {
	name, err := os.Hostname()
	if err != nil || len(name) == 0 {
		return "unnamed"
	}
	return name
}
