// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package signaling

import (
	"context"
	"net/http"
	"time"

	"github.com/bfix/gospel/logger"
	"github.com/gorilla/mux"
	gorillarpc "github.com/gorilla/rpc"
	gorillajson "github.com/gorilla/rpc/json"
)

// Registry is the JSON-RPC receiver exposing a Server's registry for
// operational visibility, mirroring the teacher's separate RPC-vs-
// data-path split: the data path never shares a listener with this.
type Registry struct {
	srv *Server
}

// ListArgs is unused; List takes no arguments.
type ListArgs struct{}

// List returns every currently registered peer.
func (reg *Registry) List(r *http.Request, args *ListArgs, reply *[]PeerInfo) error {
	*reply = reg.srv.List()
	return nil
}

// StatsArgs is unused; Stats takes no arguments.
type StatsArgs struct{}

// Stats returns registry occupancy.
func (reg *Registry) Stats(r *http.Request, args *StatsArgs, reply *Stats) error {
	*reply = reg.srv.StatsOf()
	return nil
}

// AdminServer serves the JSON-RPC admin surface over srv's registry.
type AdminServer struct {
	router *mux.Router
	http   *http.Server
}

// NewAdminServer builds the admin RPC router for srv.
func NewAdminServer(srv *Server) (*AdminServer, error) {
	rpcSrv := gorillarpc.NewServer()
	rpcSrv.RegisterCodec(gorillajson.NewCodec(), "application/json")
	if err := rpcSrv.RegisterService(&Registry{srv: srv}, "Registry"); err != nil {
		return nil, err
	}
	router := mux.NewRouter()
	router.Handle("/rpc", rpcSrv)
	return &AdminServer{router: router}, nil
}

// Start begins serving addr in the background until ctx is done.
func (a *AdminServer) Start(ctx context.Context, addr string) error {
	a.http = &http.Server{
		Handler:      a.router,
		Addr:         addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf(logger.WARN, "[signaling] admin RPC listen failed: %s\n", err)
		}
	}()
	go func() {
		<-ctx.Done()
		if err := a.http.Shutdown(context.Background()); err != nil {
			logger.Printf(logger.WARN, "[signaling] admin RPC shutdown failed: %s\n", err)
		}
	}()
	return nil
}
