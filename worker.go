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
	"time"
)

// WorkerState is where a worker slot is in its life cycle.
//
//	          +----------+
//	          | Spawning <------------------------+
//	          +----+-----+                        |
//	               |                              | respawn
//	          +----v-----+                        |
//	          |  Active  +--------+         +-----+-------+
//	          +----+-----+        |         |   Exited    |
//	               |              +--------->   Crashed   |
//	          +----v--------+               +-----+-------+
//	          | ExitedClean |                     | crash storm
//	          +-------------+               +-----v-----------+
//	                                        | RespawnDisabled |
//	                                        +-----------------+
//
// RespawnDisabled is terminal.  Exits caused by a rolling restart go
// straight back to Spawning.
type WorkerState int

const (
	WorkerSpawning WorkerState = iota
	WorkerActive
	WorkerExitedClean
	WorkerExitedCrashed
	WorkerRespawnDisabled
)

func (s WorkerState) String() string {
	switch s {
	case WorkerSpawning:
		return "spawning"
	case WorkerActive:
		return "active"
	case WorkerExitedClean:
		return "exited"
	case WorkerExitedCrashed:
		return "crashed"
	case WorkerRespawnDisabled:
		return "disabled"
	}
	return "unknown"
}

// WorkerInfo is a snapshot of one worker slot.
type WorkerInfo struct {
	ID              uint8
	Port            uint16
	Pid             int
	Instance        string
	State           WorkerState
	Active          bool
	RespawnDisabled bool
	Restarts        int // Respawns since the supervisor started
	Crashes         []time.Time
	StartTime       time.Time
	ExitTime        time.Time
	LastExit        *ExitStatus
}

// workerSlot is the registry record for one worker id.  Slots are only
// touched from the supervisor loop.
type workerSlot struct {
	id       uint8
	port     uint16
	proc     Process
	gen      uint64 // Bumped on every spawn; stale exits are ignored
	instance string
	state    WorkerState

	active          bool
	stopping        bool // We sent StopSignal to this incarnation
	restarting      bool // Part of a rolling restart still in progress
	pending         bool // A respawn is scheduled
	respawnDisabled bool

	crashes   crashRing
	restarts  int
	startTime time.Time
	exitTime  time.Time
	lastExit  *ExitStatus
}

func newWorkerSlot(id uint8, port uint16, throttle int) *workerSlot {
	return &workerSlot{
		id:      id,
		port:    port,
		crashes: newCrashRing(throttle),
	}
}

// reset prepares the slot for a new incarnation.  The crash history and
// the respawn-disabled flag survive it.
func (s *workerSlot) reset(now time.Time) {
	s.proc = nil
	s.instance = ""
	s.state = WorkerSpawning
	s.active = false
	s.stopping = false
	s.pending = false
	s.startTime = now
	s.exitTime = time.Time{}
}

func (s *workerSlot) info() WorkerInfo {
	i := WorkerInfo{
		ID:              s.id,
		Port:            s.port,
		Instance:        s.instance,
		State:           s.state,
		Active:          s.active,
		RespawnDisabled: s.respawnDisabled,
		Restarts:        s.restarts,
		Crashes:         s.crashes.Times(),
		StartTime:       s.startTime,
		ExitTime:        s.exitTime,
	}
	if s.proc != nil {
		i.Pid = s.proc.Pid()
	}
	if s.lastExit != nil {
		st := *s.lastExit
		i.LastExit = &st
	}
	return i
}
