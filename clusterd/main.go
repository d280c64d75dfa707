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

// Command clusterd runs a small HTTP service on every CPU of the machine.
// The first process is the master; it re-executes itself once per worker,
// and serves the control plane used by clusterctl.
//
// The flags are
//
//	-c <file>	- YAML manifest; flags given on the command line win
//	-w <count>	- number of workers, default one per logical CPU
//	-p <port>	- base port for the workers, default 8080
//	-P <policy>	- auto, shared or per-worker
//	-a <address>	- control plane listen address, default 127.0.0.1:8321;
//			  empty disables it
//	-r		- restart the workers when the executable changes
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"

	"github.com/gdamore/clustervisor"
	"github.com/gdamore/clustervisor/rest"
)

var manifest string = ""
var workers uint = 0
var port uint = 8080
var policy string = "auto"
var addr string = "127.0.0.1:8321"
var watch bool = false

func loadConfig(fs *flag.FlagSet) (clustervisor.Config, *clustervisor.Manifest, error) {
	m := &clustervisor.Manifest{Port: int(port)}
	if manifest != "" {
		f, e := os.Open(manifest)
		if e != nil {
			return clustervisor.Config{}, nil, e
		}
		m, e = clustervisor.LoadManifest(f)
		f.Close()
		if e != nil {
			return clustervisor.Config{}, nil, fmt.Errorf("manifest %s: %w", manifest, e)
		}
		if m.Control.Listen != "" {
			addr = m.Control.Listen
		}
	}

	// Explicit flags override the manifest.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "w":
			m.Workers = int(workers)
		case "p":
			m.Port = int(port)
		case "P":
			m.PortPolicy = policy
		case "r":
			m.WatchExecutable = watch
		case "a":
			m.Control.Listen = addr
		}
	})
	if m.PortPolicy == "" {
		m.PortPolicy = policy
	}
	if m.Workers > 255 || m.Port < 1 || m.Port > 65535 {
		return clustervisor.Config{}, nil,
			fmt.Errorf("%w: bad worker count or port", clustervisor.ErrConfigInvalid)
	}
	cfg, e := m.Config()
	return cfg, m, e
}

func hello(sv *clustervisor.Supervisor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Hello from worker %d (pid %d)\n",
			sv.WorkerID(), os.Getpid())
	}
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func runWorker(sv *clustervisor.Supervisor) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		clustervisor.TerminateSignals...)
	defer cancel()

	l, e := clustervisor.Listen(ctx, "tcp", sv.ListenAddr())
	if e != nil {
		return e
	}
	r := mux.NewRouter()
	r.HandleFunc("/", hello(sv)).Methods("GET")
	r.HandleFunc("/healthz", healthz).Methods("GET")

	log.Printf("Worker %d serving on port %d", sv.WorkerID(), sv.Port())
	e = rest.Serve(ctx, l, r, 0)
	log.Printf("Worker %d exiting", sv.WorkerID())
	return e
}

func runControl(ctx context.Context, sv *clustervisor.Supervisor, m *clustervisor.Manifest) error {
	l, e := net.Listen("tcp", addr)
	if e != nil {
		return e
	}
	h := rest.NewHandler(sv)
	if m.Control.User != "" {
		h.SetAuth(m.Control.User, m.Control.Password)
	}
	log.Printf("Control plane on %s", l.Addr())
	return rest.Serve(ctx, l, h, m.Control.MaxConns)
}

func main() {
	args := os.Args
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	fs.StringVar(&manifest, "c", manifest, "manifest file")
	fs.UintVar(&workers, "w", workers, "number of workers")
	fs.UintVar(&port, "p", port, "base port")
	fs.StringVar(&policy, "P", policy, "port policy (auto, shared, per-worker)")
	fs.StringVar(&addr, "a", addr, "control listen address")
	fs.BoolVar(&watch, "r", watch, "restart workers when the executable changes")
	fs.Parse(clustervisor.StripWorkerArgs(args)[1:])

	cfg, m, e := loadConfig(fs)
	if e != nil {
		log.Fatalf("Bad configuration: %v", e)
	}

	sv := clustervisor.NewSupervisor(cfg)
	if e := sv.Init(args); e != nil {
		log.Fatalf("Failed to start: %v", e)
	}

	if sv.IsWorker() {
		if e := runWorker(sv); e != nil {
			log.Fatalf("Worker %d failed: %v", sv.WorkerID(), e)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	if addr != "" {
		go func() {
			defer close(served)
			if e := runControl(ctx, sv, m); e != nil {
				log.Printf("Control plane failed: %v", e)
			}
		}()
	} else {
		close(served)
	}

	e = sv.Wait()
	cancel()
	select {
	case <-served:
	case <-time.After(rest.ShutdownGrace):
	}
	if e != nil {
		log.Fatalf("Supervisor: %v", e)
	}
}
