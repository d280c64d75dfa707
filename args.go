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

package clustervisor

import (
	"fmt"
	"os"
	"strconv"
)

const (
	// WorkerFlag is followed on a worker's command line by its id and
	// its port.
	WorkerFlag = "--cluster-worker"

	// WorkerEnv is set to "1" in the environment of every worker.
	WorkerEnv = "CLUSTERVISOR_WORKER"

	// InstanceEnv carries the unique id of one worker incarnation.
	InstanceEnv = "CLUSTERVISOR_INSTANCE"
)

// WorkerIdentity is what a worker learns from its command line.
type WorkerIdentity struct {
	ID   uint8
	Port uint16
}

// IsWorkerProcess reports whether the environment says this process was
// started by a supervisor.  It is useful to code that runs before the
// command line is examined.
func IsWorkerProcess() bool {
	return os.Getenv(WorkerEnv) == "1"
}

// StripWorkerArgs removes every marker triple from args.  A truncated
// marker at the end is dropped as well.  The input is not modified.
func StripWorkerArgs(args []string) []string {
	rv := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == WorkerFlag {
			i += 2
			continue
		}
		rv = append(rv, args[i])
	}
	return rv
}

// BuildWorkerArgs derives a worker command line from the original one.
// The first element is replaced by exe (when not empty), any stale marker
// is removed, and a fresh marker for id and port is appended.  The result
// is newly allocated and owned by the caller.
func BuildWorkerArgs(orig []string, exe string, id uint8, port uint16) []string {
	if exe == "" && len(orig) > 0 {
		exe = orig[0]
	}
	args := make([]string, 0, len(orig)+3)
	args = append(args, exe)
	if len(orig) > 1 {
		args = append(args, StripWorkerArgs(orig[1:])...)
	}
	return append(args, WorkerFlag,
		strconv.FormatUint(uint64(id), 10),
		strconv.FormatUint(uint64(port), 10))
}

// ParseWorkerArgs looks for the worker marker in args (args[0] is the
// program name and is skipped).  It returns nil if there is no marker.
// A marker whose values do not parse is an error; such a process must not
// fall back to being a master.
func ParseWorkerArgs(args []string) (*WorkerIdentity, error) {
	for i := 1; i < len(args); i++ {
		if args[i] != WorkerFlag {
			continue
		}
		if i+2 >= len(args) {
			return nil, fmt.Errorf("%w: %s needs an id and a port",
				ErrBadWorkerArgs, WorkerFlag)
		}
		id, e := strconv.ParseUint(args[i+1], 10, 8)
		if e != nil {
			return nil, fmt.Errorf("%w: id %q", ErrBadWorkerArgs, args[i+1])
		}
		port, e := strconv.ParseUint(args[i+2], 10, 16)
		if e != nil || port == 0 {
			return nil, fmt.Errorf("%w: port %q", ErrBadWorkerArgs, args[i+2])
		}
		return &WorkerIdentity{ID: uint8(id), Port: uint16(port)}, nil
	}
	return nil, nil
}
