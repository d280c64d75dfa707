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
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"
)

// ShutdownGrace is how long Serve lets requests in flight finish.
const ShutdownGrace = 5 * time.Second

// Serve runs an HTTP server for h on l until ctx is done.  If maxConns is
// positive, at most that many connections are served at once.
func Serve(ctx context.Context, l net.Listener, h http.Handler, maxConns int) error {
	if maxConns > 0 {
		l = netutil.LimitListener(l, maxConns)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
			srv.Shutdown(sctx)
			cancel()
		case <-stopped:
		}
	}()
	if e := srv.Serve(l); e != http.ErrServerClosed {
		return e
	}
	return nil
}
