// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fabricd/fabricd/config"
	"github.com/fabricd/fabricd/endpoint"
	"github.com/fabricd/fabricd/endpoint/gateway"
	"github.com/fabricd/fabricd/peer"
	"github.com/fabricd/fabricd/signaling"
	"github.com/fabricd/fabricd/store"

	"github.com/bfix/gospel/logger"
)

func main() {
	defer func() {
		logger.Println(logger.INFO, "[endpoint] Bye.")
		logger.Flush()
	}()
	logger.Println(logger.INFO, "[endpoint] Starting service...")

	var (
		cfgFile  string
		dataDir  string
		listen   string
		httpAddr string
		logLevel int
		err      error
	)
	flag.StringVar(&cfgFile, "c", "endpoint.json", "endpoint configuration file")
	flag.StringVar(&dataDir, "d", ".", "endpoint data directory (PID file lives here)")
	flag.StringVar(&listen, "l", "", "data-channel listen address, a transport.Channel spec (overrides config host:port)")
	flag.StringVar(&httpAddr, "H", ":8080", "HTTP gateway listen address")
	flag.IntVar(&logLevel, "L", logger.INFO, "log level")
	flag.Parse()

	logger.SetLogLevel(logLevel)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.Printf(logger.ERROR, "[endpoint] invalid configuration file: %s\n", err.Error())
		return
	}
	self, err := cfg.EndpointID()
	if err != nil {
		logger.Printf(logger.ERROR, "[endpoint] %s\n", err.Error())
		return
	}

	if listen == "" {
		listen = "tcp+" + cfg.Host + ":" + strconv.Itoa(cfg.Port)
	}

	backend, dsn := cfg.StoreBackend, cfg.StoreDSN
	if backend == "" {
		backend = "mem"
	}
	local, err := store.Open(backend, dsn)
	if err != nil {
		logger.Printf(logger.ERROR, "[endpoint] failed to open object store: %s\n", err.Error())
		return
	}
	defer local.Close()

	sigAddr, err := config.ResolveSignalingAddress(cfg.SignalingAddress)
	if err != nil {
		logger.Printf(logger.ERROR, "[endpoint] failed to resolve signaling address: %s\n", err.Error())
		return
	}
	sigClient, err := signaling.Connect(sigAddr, self, cfg.Name, 15*time.Second)
	if err != nil {
		logger.Printf(logger.ERROR, "[endpoint] signaling registration failed: %s\n", err.Error())
		return
	}
	defer sigClient.Close()

	ep := endpoint.New(self, local, nil)
	mgr := peer.NewManager(self, cfg.Name, sigClient, listen, ep.HandleRequest)
	ep.SetPeers(mgr)

	if err = mgr.Start(); err != nil {
		logger.Printf(logger.ERROR, "[endpoint] peer manager failed to start: %s\n", err.Error())
		return
	}
	defer mgr.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := gateway.New(ep, self)
	if err = gw.Start(ctx, httpAddr); err != nil {
		logger.Printf(logger.ERROR, "[endpoint] gateway failed to start: %s\n", err.Error())
		return
	}

	if err = config.WritePID(dataDir); err != nil {
		logger.Printf(logger.WARN, "[endpoint] failed to write PID file: %s\n", err.Error())
	}
	defer func() {
		if err := config.RemovePID(dataDir); err != nil {
			logger.Printf(logger.WARN, "[endpoint] failed to remove PID file: %s\n", err.Error())
		}
	}()

	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh)
	tick := time.NewTicker(5 * time.Minute)

loop:
	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGKILL, syscall.SIGINT, syscall.SIGTERM:
				logger.Printf(logger.INFO, "[endpoint] terminating (on signal '%s')\n", sig)
				break loop
			case syscall.SIGHUP:
				logger.Println(logger.INFO, "[endpoint] SIGHUP")
			case syscall.SIGURG:
				// TODO: https://github.com/golang/go/issues/37942
			default:
				logger.Println(logger.INFO, "[endpoint] unhandled signal: "+sig.String())
			}
		case now := <-tick.C:
			logger.Println(logger.INFO, "[endpoint] heart beat at "+now.String())
		}
	}
}
