// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// fabric-ctl is a thin wrapper making an endpoint's lifecycle state
// observable from the command line; it carries no configuration
// policy of its own beyond the data directory it is pointed at.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fabricd/fabricd/config"
)

func main() {
	var dataDir, httpAddr string
	flag.StringVar(&dataDir, "d", ".", "endpoint data directory")
	flag.StringVar(&httpAddr, "H", "", "endpoint HTTP gateway address, for a live identity check")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: fabric-ctl [-d dir] [-H addr] status|endpoint")
		os.Exit(2)
	}

	switch flag.Arg(0) {
	case "status":
		status := config.StatusOf(dataDir)
		fmt.Println(status)
		if status != config.StatusRunning {
			os.Exit(1)
		}
	case "endpoint":
		if httpAddr == "" {
			fmt.Fprintln(os.Stderr, "fabric-ctl endpoint requires -H")
			os.Exit(2)
		}
		if err := printIdentity(httpAddr); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		os.Exit(2)
	}
}

func printIdentity(addr string) error {
	resp, err := http.Get("http://" + addr + "/endpoint")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fabric-ctl: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	out := map[string]string{"endpoint_id": string(body)}
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(out)
}
