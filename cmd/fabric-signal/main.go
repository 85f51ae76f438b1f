// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabricd/fabricd/signaling"

	"github.com/bfix/gospel/logger"
)

func main() {
	defer func() {
		logger.Println(logger.INFO, "[signal] Bye.")
		logger.Flush()
	}()
	logger.Println(logger.INFO, "[signal] Starting service...")

	var (
		name     string
		listen   string
		adminRPC string
		logLevel int
		err      error
	)
	flag.StringVar(&name, "n", "fabric-signal", "diagnostic name reported in logs")
	flag.StringVar(&listen, "s", "tcp+:7000", "signaling listen address (transport.Channel spec)")
	flag.StringVar(&adminRPC, "R", "", "JSON-RPC admin endpoint (host:port, default: none)")
	flag.IntVar(&logLevel, "L", logger.INFO, "log level")
	flag.Parse()

	logger.SetLogLevel(logLevel)

	srv := signaling.NewServer(name)
	if err = srv.Start(listen); err != nil {
		logger.Printf(logger.ERROR, "[signal] failed to start: %s\n", err.Error())
		return
	}
	defer srv.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(adminRPC) > 0 {
		admin, err := signaling.NewAdminServer(srv)
		if err != nil {
			logger.Printf(logger.ERROR, "[signal] failed to build admin RPC: %s\n", err.Error())
			return
		}
		if err = admin.Start(ctx, adminRPC); err != nil {
			logger.Printf(logger.ERROR, "[signal] admin RPC failed to start: %s\n", err.Error())
			return
		}
	}

	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh)
	tick := time.NewTicker(5 * time.Minute)

loop:
	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGKILL, syscall.SIGINT, syscall.SIGTERM:
				logger.Printf(logger.INFO, "[signal] terminating (on signal '%s')\n", sig)
				break loop
			case syscall.SIGHUP:
				logger.Println(logger.INFO, "[signal] SIGHUP")
			case syscall.SIGURG:
				// TODO: https://github.com/golang/go/issues/37942
			default:
				logger.Println(logger.INFO, "[signal] unhandled signal: "+sig.String())
			}
		case now := <-tick.C:
			logger.Println(logger.INFO, "[signal] heart beat at "+now.String())
		}
	}

	cancel()
}
