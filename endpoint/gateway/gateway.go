// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package gateway implements the thin HTTP boundary of spec.md §4.6:
// a bit-exact transliteration of the endpoint request layer onto a
// REST surface, carrying no policy of its own.
package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/fabricd/fabricd/endpoint"
	"github.com/fabricd/fabricd/fabriderr"
	"github.com/fabricd/fabricd/util"

	"github.com/bfix/gospel/logger"
	"github.com/gorilla/mux"
)

// Gateway wraps an Endpoint with the HTTP surface of spec.md §4.6.
type Gateway struct {
	ep     *endpoint.Endpoint
	self   util.EndpointID
	router *mux.Router
	srv    *http.Server
}

// New builds a Gateway serving ep, reporting self as the local
// identity on GET /endpoint.
func New(ep *endpoint.Endpoint, self util.EndpointID) *Gateway {
	g := &Gateway{ep: ep, self: self, router: mux.NewRouter()}
	g.router.HandleFunc("/endpoint", g.handleEndpoint).Methods(http.MethodGet)
	g.router.HandleFunc("/object/{id}", g.handleGet).Methods(http.MethodGet)
	g.router.HandleFunc("/object/{id}", g.handlePut).Methods(http.MethodPut)
	g.router.HandleFunc("/object/{id}", g.handleHead).Methods(http.MethodHead)
	g.router.HandleFunc("/object/{id}", g.handleDelete).Methods(http.MethodDelete)
	return g
}

// Start begins serving addr in the background.
func (g *Gateway) Start(ctx context.Context, addr string) error {
	g.srv = &http.Server{
		Handler:      g.router,
		Addr:         addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := g.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf(logger.WARN, "[gateway] listen failed: %s\n", err)
		}
	}()
	go func() {
		<-ctx.Done()
		if err := g.srv.Shutdown(context.Background()); err != nil {
			logger.Printf(logger.WARN, "[gateway] shutdown failed: %s\n", err)
		}
	}()
	return nil
}

func (g *Gateway) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, g.self.String())
}

// key parses the {id} path variable and the optional ?endpoint= query
// parameter into an endpoint.Key. A malformed endpoint id is reported
// to the caller as 400, per spec.md §4.6.
func key(r *http.Request) (endpoint.Key, error) {
	id := mux.Vars(r)["id"]
	if id == "" {
		return endpoint.Key{}, errMalformed
	}
	k := endpoint.Key{ObjectID: id}
	if ep := r.URL.Query().Get("endpoint"); ep != "" {
		parsed, err := util.ParseEndpointID(ep)
		if err != nil {
			return endpoint.Key{}, errMalformed
		}
		k.EndpointID = parsed
	}
	return k, nil
}

var errMalformed = fabriderr.New(fabriderr.KindConfig, "malformed object key")

func (g *Gateway) handleGet(w http.ResponseWriter, r *http.Request) {
	k, err := key(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	data, err := g.ep.Get(k)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (g *Gateway) handlePut(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	newKey, err := g.ep.Put(data)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusCreated)
	io.WriteString(w, newKey.ObjectID)
}

func (g *Gateway) handleHead(w http.ResponseWriter, r *http.Request) {
	k, err := key(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	ok, err := g.ep.Exists(k)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	k, err := key(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := g.ep.Evict(k); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeError maps a fabriderr.Kind onto the status codes of spec.md §4.6.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case fabriderr.Is(err, fabriderr.KindNotFound):
		w.WriteHeader(http.StatusNotFound)
	case fabriderr.Is(err, fabriderr.KindConfig):
		w.WriteHeader(http.StatusBadRequest)
	case fabriderr.Is(err, fabriderr.KindPeerUnknown),
		fabriderr.Is(err, fabriderr.KindPeerTimeout),
		fabriderr.Is(err, fabriderr.KindChannelError),
		fabriderr.Is(err, fabriderr.KindPeerBackpressure):
		w.WriteHeader(http.StatusBadGateway)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}
