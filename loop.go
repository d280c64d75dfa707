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
	"os"
	"time"
)

// forceKillDrain is how long the loop waits for killed workers to be
// reaped before giving up on them.
const forceKillDrain = time.Second

type exitKind int

const (
	exitClean   exitKind = iota // Exited zero on its own
	exitStopped                 // We, or an operator, asked it to stop
	exitRestart                 // Stopped as part of a rolling restart
	exitCrash
)

func (k exitKind) String() string {
	switch k {
	case exitClean:
		return "clean"
	case exitStopped:
		return "stopped"
	case exitRestart:
		return "restart"
	}
	return "crash"
}

// run is the supervisor loop.  It owns the registry, and returns when no
// worker is running or due to be respawned.
func (sv *Supervisor) run() {
	defer close(sv.done)
	for sv.busy() {
		select {
		case ev := <-sv.exitCh:
			sv.handleExit(ev)
		case sig := <-sv.sigCh:
			sv.handleSignal(sig)
		case fn := <-sv.reqCh:
			fn()
		case id := <-sv.respawnCh:
			sv.respawn(id)
		case <-sv.killC:
			sv.forceKill()
			return
		}
	}
	if sv.shutdownRequested {
		sv.logf("All workers stopped")
	} else {
		sv.logf("No workers left to supervise")
	}
}

func (sv *Supervisor) busy() bool {
	for _, s := range sv.slots {
		if s.active || s.pending {
			return true
		}
	}
	return false
}

func (sv *Supervisor) anyActive() bool {
	for _, s := range sv.slots {
		if s.active {
			return true
		}
	}
	return false
}

// classify decides what an exit means.  The checks are made in order, and
// the first match wins:
//
//	shutdown in progress              stopped
//	slot is part of a rolling restart restart
//	rolling restart in progress, and
//	we did not stop this worker       restart
//	we signaled it, or it died of a
//	terminate or interrupt signal     stopped
//	exit status zero                  clean
//	anything else                     crash
func (sv *Supervisor) classify(s *workerSlot, st ExitStatus) exitKind {
	switch {
	case sv.shutdownRequested:
		return exitStopped
	case s.restarting:
		return exitRestart
	case sv.restartRequested && !s.stopping:
		return exitRestart
	case s.stopping || isStopSignal(st.Signal):
		return exitStopped
	case st.Success():
		return exitClean
	}
	return exitCrash
}

func (sv *Supervisor) handleExit(ev exitEvent) {
	if int(ev.id) >= len(sv.slots) {
		return
	}
	s := sv.slots[ev.id]
	if ev.gen != s.gen || !s.active {
		return
	}
	st := ev.status
	s.active = false
	s.exitTime = sv.now()
	s.lastExit = &st

	kind := sv.classify(s, st)
	replaced := kind == exitRestart && !s.restarting
	sv.metrics.exits.WithLabelValues(kind.String()).Inc()
	if kind == exitCrash {
		sv.errorf("Worker %d crashed (%v)", s.id, st)
	} else {
		sv.logf("Worker %d exited (%v, %v)", s.id, st, kind)
	}

	if cb := sv.cfg.OnExit; cb != nil {
		cb(s.id, st)
	}

	switch kind {
	case exitRestart:
		s.state = WorkerExitedClean
		if replaced && !st.Success() && !isStopSignal(st.Signal) {
			s.state = WorkerExitedCrashed
			if !s.respawnDisabled && s.crashes.storm(sv.now(), sv.cfg.ThrottleWindow) {
				s.respawnDisabled = true
				s.state = WorkerRespawnDisabled
				sv.metrics.storms.Inc()
				sv.errorf("Worker %d crashed %d times within %v during restart, respawn disabled",
					s.id, s.crashes.Len(), sv.cfg.ThrottleWindow)
			}
		}
		if s.respawnDisabled {
			s.restarting = false
			sv.checkRestartDone()
			break
		}
		s.restarting = true
		sv.scheduleRespawn(s, sv.cfg.RespawnDelay)
	case exitCrash:
		sv.crashed(s)
	default:
		s.state = WorkerExitedClean
	}
	sv.updateGauges()
}

// crashed applies the respawn throttle to a slot whose worker crashed or
// could not be respawned.
func (sv *Supervisor) crashed(s *workerSlot) {
	s.state = WorkerExitedCrashed
	if !sv.cfg.Respawn || s.respawnDisabled || sv.shutdownRequested {
		return
	}
	if s.crashes.storm(sv.now(), sv.cfg.ThrottleWindow) {
		s.respawnDisabled = true
		s.state = WorkerRespawnDisabled
		sv.metrics.storms.Inc()
		sv.errorf("Worker %d crashed %d times within %v, respawn disabled",
			s.id, s.crashes.Len(), sv.cfg.ThrottleWindow)
		return
	}
	sv.scheduleRespawn(s, sv.cfg.RespawnDelay)
}

func (sv *Supervisor) scheduleRespawn(s *workerSlot, d time.Duration) {
	s.pending = true
	if d <= 0 {
		sv.respawn(s.id)
		return
	}
	id, done := s.id, sv.done
	time.AfterFunc(d, func() {
		select {
		case sv.respawnCh <- id:
		case <-done:
		}
	})
}

func (sv *Supervisor) respawn(id uint8) {
	s := sv.slots[id]
	if !s.pending {
		return
	}
	s.pending = false
	if sv.shutdownRequested || s.active {
		s.restarting = false
		return
	}
	s.restarts++
	if e := sv.spawn(s); e != nil {
		s.restarting = false
		if sv.cfg.Respawn && !s.respawnDisabled && !sv.shutdownRequested {
			if s.crashes.storm(sv.now(), sv.cfg.ThrottleWindow) {
				s.respawnDisabled = true
				s.state = WorkerRespawnDisabled
				sv.metrics.storms.Inc()
				sv.errorf("Worker %d failed to respawn %d times within %v, respawn disabled",
					s.id, s.crashes.Len(), sv.cfg.ThrottleWindow)
			} else {
				d := sv.cfg.RespawnDelay
				if d < DefaultRespawnDelay {
					d = DefaultRespawnDelay
				}
				sv.scheduleRespawn(s, d)
			}
		}
	} else {
		s.restarting = false
	}
	sv.updateGauges()
	sv.checkRestartDone()
}

// broadcast sends sig to every active worker.  Workers sent the stop
// signal are remembered as deliberately stopped.
func (sv *Supervisor) broadcast(sig os.Signal) int {
	stop := sig == StopSignal || isStopSignal(sig)
	n := 0
	for _, s := range sv.slots {
		if !s.active {
			continue
		}
		if stop && !s.restarting {
			s.stopping = true
		}
		if e := s.proc.Signal(sig); e != nil {
			sv.errorf("Failed to signal worker %d: %v", s.id, e)
			continue
		}
		n++
	}
	return n
}

// terminate starts the shutdown.  Only the first call does anything.
func (sv *Supervisor) terminate(why string) error {
	if sv.shutdownRequested {
		return ErrShuttingDown
	}
	sv.shutdownRequested = true
	sv.shutdownAt = sv.now()

	if sv.restartRequested {
		sv.restartRequested = false
		sv.logf("Rolling restart cancelled")
	}
	for _, s := range sv.slots {
		s.restarting = false
		s.pending = false
	}

	n := sv.broadcast(StopSignal)
	sv.logf("Shutting down (%s), stopping %d workers", why, n)

	sv.killTimer = time.NewTimer(sv.cfg.ShutdownTimeout)
	sv.killC = sv.killTimer.C
	return nil
}

// rollingRestart stops every active worker, and lets handleExit bring
// each one back.
func (sv *Supervisor) rollingRestart(why string) error {
	if sv.shutdownRequested {
		return ErrShuttingDown
	}
	if sv.restartRequested {
		return ErrRestartInProgress
	}
	n := 0
	for _, s := range sv.slots {
		if s.active {
			s.restarting = true
			n++
		}
	}
	if n == 0 {
		sv.logf("Rolling restart (%s): no active workers", why)
		return nil
	}
	sv.restartRequested = true
	sv.metrics.restarts.Inc()
	sv.logf("Rolling restart (%s) of %d workers", why, n)
	for _, s := range sv.slots {
		if !s.restarting {
			continue
		}
		if e := s.proc.Signal(StopSignal); e != nil {
			sv.errorf("Failed to signal worker %d: %v", s.id, e)
			s.restarting = false
		}
	}
	sv.checkRestartDone()
	return nil
}

func (sv *Supervisor) checkRestartDone() {
	if !sv.restartRequested {
		return
	}
	for _, s := range sv.slots {
		if s.restarting {
			return
		}
	}
	sv.restartRequested = false
	sv.logf("Rolling restart complete")
}

// forceKill is called when the shutdown grace period runs out.
func (sv *Supervisor) forceKill() {
	n := 0
	for _, s := range sv.slots {
		if s.active {
			s.proc.Kill()
			n++
		}
	}
	sv.logf("Shutdown timeout after %v, killed %d workers",
		sv.cfg.ShutdownTimeout, n)

	t := time.NewTimer(forceKillDrain)
	defer t.Stop()
	for sv.anyActive() {
		select {
		case ev := <-sv.exitCh:
			sv.handleExit(ev)
		case <-t.C:
			return
		}
	}
}

func (sv *Supervisor) handleSignal(sig os.Signal) {
	if RestartSignal != nil && sig == RestartSignal {
		if e := sv.rollingRestart("signal " + sig.String()); e != nil {
			sv.logf("Ignoring %v: %v", sig, e)
		}
		return
	}
	sv.terminate("signal " + sig.String())
}
