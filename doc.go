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

// Package clustervisor turns a single-process network service into a fleet
// of N identical processes sharing one listening port.
//
// The same executable plays both roles.  When a program calls Init, the
// supervisor looks for a private worker marker on the command line.  If it
// is absent the process becomes the master: it re-executes itself N times,
// appending the marker (--cluster-worker <id> <port>) to the original
// arguments, and then supervises the children.  If the marker is present the
// process is a worker; Init records its identity and returns, and the
// program goes on to serve requests on Port().
//
// The master never serves requests.  It watches for worker exits, respawns
// crashed workers (throttling workers that crash too quickly), forwards
// SIGTERM and SIGINT as a graceful shutdown, and treats SIGUSR2 as a request
// to replace every worker (rolling restart).  Wait blocks until all workers
// are gone, escalating to SIGKILL if they do not stop in time.
//
// A typical program looks like this:
//
//	sv := clustervisor.NewSupervisor(cfg)
//	if e := sv.Init(os.Args); e != nil {
//		log.Fatal(e)
//	}
//	if sv.IsMaster() {
//		sv.Wait()
//		return
//	}
//	l, _ := clustervisor.Listen(ctx, "tcp", sv.ListenAddr())
//	http.Serve(l, handler)
//
// Connection distribution is left to the operating system.  With the shared
// port policy every worker binds the same port (with SO_REUSEPORT) and the
// kernel balances connections.  With the per-worker policy, worker i binds
// base+i and something in front of the fleet must spread the load.
package clustervisor
