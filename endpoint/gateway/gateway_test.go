// This file is part of fabricd, a peer-to-peer object fabric in Golang.
//
// SPDX-License-Identifier: AGPL3.0-or-later

package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fabricd/fabricd/endpoint"
	"github.com/fabricd/fabricd/store"
	"github.com/fabricd/fabricd/util"
)

func newTestGateway(t *testing.T) (*Gateway, util.EndpointID) {
	t.Helper()
	self := util.NewEndpointID()
	ep := endpoint.New(self, store.NewMemStore(), nil)
	return New(ep, self), self
}

func TestEndpointHandlerReportsIdentity(t *testing.T) {
	g, self := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/endpoint", nil)
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if rec.Body.String() != self.String() {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestObjectPutGetHeadDelete(t *testing.T) {
	g, _ := newTestGateway(t)

	putReq := httptest.NewRequest(http.MethodPut, "/object/_", strings.NewReader("hello"))
	putRec := httptest.NewRecorder()
	g.router.ServeHTTP(putRec, putReq)
	if putRec.Code != http.StatusCreated {
		t.Fatalf("unexpected PUT status %d", putRec.Code)
	}
	id := putRec.Body.String()
	path := "/object/" + id

	getReq := httptest.NewRequest(http.MethodGet, path, nil)
	getRec := httptest.NewRecorder()
	g.router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("unexpected GET status %d", getRec.Code)
	}
	if getRec.Body.String() != "hello" {
		t.Fatalf("unexpected body %q", getRec.Body.String())
	}

	headReq := httptest.NewRequest(http.MethodHead, path, nil)
	headRec := httptest.NewRecorder()
	g.router.ServeHTTP(headRec, headReq)
	if headRec.Code != http.StatusOK {
		t.Fatalf("unexpected HEAD status %d", headRec.Code)
	}

	delReq := httptest.NewRequest(http.MethodDelete, path, nil)
	delRec := httptest.NewRecorder()
	g.router.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusOK {
		t.Fatalf("unexpected DELETE status %d", delRec.Code)
	}

	missReq := httptest.NewRequest(http.MethodGet, path, nil)
	missRec := httptest.NewRecorder()
	g.router.ServeHTTP(missRec, missReq)
	if missRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", missRec.Code)
	}
}

func TestMalformedEndpointQueryIsBadRequest(t *testing.T) {
	g, _ := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/object/k1?endpoint=not-a-uuid", nil)
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}
