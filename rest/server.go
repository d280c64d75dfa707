// Copyright 2026 The Clustervisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gdamore/clustervisor"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"
)

// Cluster is what the control plane needs from a supervisor.
type Cluster interface {
	Status() clustervisor.Status
	Workers() []clustervisor.WorkerInfo
	RollingRestart() error
	Terminate() error
	EventLog() *clustervisor.EventLog
	Gatherer() prometheus.Gatherer
}

// Handler wraps a Cluster, adding http.Handler functionality.
type Handler struct {
	c    Cluster
	r    *mux.Router
	user string
	hash []byte
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// clusterError maps supervisor errors to HTTP status codes.
func clusterError(e error) *Error {
	switch {
	case errors.Is(e, clustervisor.ErrShuttingDown),
		errors.Is(e, clustervisor.ErrRestartInProgress):
		return &Error{http.StatusConflict, e.Error()}
	case errors.Is(e, clustervisor.ErrNotMaster),
		errors.Is(e, clustervisor.ErrNotRunning):
		return &Error{http.StatusServiceUnavailable, e.Error()}
	}
	return &Error{http.StatusInternalServerError, e.Error()}
}

func (h *Handler) getCluster(w http.ResponseWriter, r *http.Request) {
	h.writeJson(w, clusterInfo(h.c.Status()))
}

func (h *Handler) listWorkers(w http.ResponseWriter, r *http.Request) {
	workers := h.c.Workers()
	l := make([]*WorkerInfo, 0, len(workers))
	for _, wi := range workers {
		l = append(l, workerInfo(wi))
	}
	h.writeJson(w, l)
}

func (h *Handler) getWorker(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, e := strconv.Atoi(vars["worker"])
	if e != nil {
		h.writeError(w, &Error{http.StatusBadRequest, "Bad worker id"})
		return
	}
	for _, wi := range h.c.Workers() {
		if int(wi.ID) == id {
			h.writeJson(w, workerInfo(wi))
			return
		}
	}
	h.writeError(w, &Error{http.StatusNotFound, "Worker not found"})
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	if e := h.c.RollingRestart(); e != nil {
		h.writeError(w, clusterError(e))
	} else {
		h.writeJson(w, ok)
	}
}

func (h *Handler) shutdown(w http.ResponseWriter, r *http.Request) {
	if e := h.c.Terminate(); e != nil {
		h.writeError(w, clusterError(e))
	} else {
		h.writeJson(w, ok)
	}
}

// getLog serves the event log.  The Etag is the ID of the newest record;
// a client that already has it gets 304, after waiting for new records if
// it asked for a long poll.
func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	elog := h.c.EventLog()
	var last int64
	if tag := r.Header.Get("If-None-Match"); tag != "" {
		last, _ = strconv.ParseInt(tag, 10, 64)
	}
	if tag := r.Header.Get(PollEtagHeader); tag != "" {
		secs, _ := strconv.Atoi(r.Header.Get(PollTimeHeader))
		if secs > MaxPollTime {
			secs = MaxPollTime
		}
		if id, e := strconv.ParseInt(tag, 10, 64); e == nil && secs > 0 {
			ctx, cancel := context.WithTimeout(r.Context(),
				time.Duration(secs)*time.Second)
			elog.Watch(ctx, id)
			cancel()
		}
	}
	recs, id := elog.Records(last)
	w.Header().Set("Etag", strconv.FormatInt(id, 10))
	if recs == nil {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	h.writeJson(w, recs)
}

func (h *Handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != h.user ||
			bcrypt.CompareHashAndPassword(h.hash, []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="clustervisor"`)
			h.writeError(w, &Error{http.StatusUnauthorized, "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetAuth requires HTTP basic authentication.  The hash is a bcrypt hash
// of the password.
func (h *Handler) SetAuth(user string, hash string) {
	h.user = user
	h.hash = []byte(hash)
	h.r.Use(h.auth)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

// NewHandler returns an http.Handler serving the control plane for c.
func NewHandler(c Cluster) *Handler {
	r := mux.NewRouter()
	h := &Handler{c: c, r: r}
	r.HandleFunc("/cluster", h.getCluster).Methods("GET")
	r.HandleFunc("/workers", h.listWorkers).Methods("GET")
	r.HandleFunc("/workers/{worker:[0-9]+}", h.getWorker).Methods("GET")
	r.HandleFunc("/restart", h.restart).Methods("POST")
	r.HandleFunc("/shutdown", h.shutdown).Methods("POST")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(c.Gatherer(), promhttp.HandlerOpts{})).Methods("GET")
	return h
}
