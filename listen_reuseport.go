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

//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package clustervisor

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

var defaultPortPolicy = PortShared

func reusePort(network, address string, c syscall.RawConn) error {
	var serr error
	e := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if e != nil {
		return e
	}
	return serr
}

// Listen opens a listener that other processes may bind to the same
// address at the same time.  The kernel then balances new connections
// across all of them.  Workers under the shared port policy must listen
// this way.
func Listen(ctx context.Context, network, address string) (net.Listener, error) {
	lc := net.ListenConfig{Control: reusePort}
	return lc.Listen(ctx, network, address)
}
