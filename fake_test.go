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
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

type testLog struct {
	t *testing.T
}

func (tl *testLog) Write(p []byte) (n int, err error) {
	s := string(p)
	s = strings.Trim(s, "\n")
	tl.t.Log(s)
	return len(p), nil
}

type fakeProc struct {
	ctl     *fakeControl
	id      uint8
	port    uint16
	pid     int
	spec    SpawnSpec
	exit    chan ExitStatus
	once    sync.Once
	signals []os.Signal
	killed  bool
}

func (p *fakeProc) Pid() int {
	return p.pid
}

func (p *fakeProc) Signal(sig os.Signal) error {
	p.ctl.mx.Lock()
	if e := p.ctl.signalErr; e != nil {
		p.ctl.mx.Unlock()
		return e
	}
	p.signals = append(p.signals, sig)
	stop, code := p.ctl.exitOnStop, p.ctl.stopCode
	p.ctl.mx.Unlock()
	if stop && sig == StopSignal {
		p.finish(ExitStatus{Code: code})
	}
	return nil
}

func (p *fakeProc) Kill() error {
	p.ctl.mx.Lock()
	p.killed = true
	p.ctl.mx.Unlock()
	p.finish(ExitStatus{Code: -1, Signal: os.Kill})
	return nil
}

func (p *fakeProc) Wait() ExitStatus {
	return <-p.exit
}

func (p *fakeProc) finish(st ExitStatus) {
	p.once.Do(func() { p.exit <- st })
}

func (p *fakeProc) Signals() int {
	p.ctl.mx.Lock()
	defer p.ctl.mx.Unlock()
	return len(p.signals)
}

func (p *fakeProc) Killed() bool {
	p.ctl.mx.Lock()
	defer p.ctl.mx.Unlock()
	return p.killed
}

// fakeControl stands in for the operating system.  Workers run until the
// test (or a signal, if exitOnStop is set) makes them exit.
type fakeControl struct {
	mx         sync.Mutex
	procs      []*fakeProc
	fail       map[uint8]bool
	exitOnStop bool
	stopCode   int
	signalErr  error
	pid        int
}

func newFakeControl() *fakeControl {
	return &fakeControl{fail: map[uint8]bool{}, pid: 1000}
}

func (c *fakeControl) Spawn(spec SpawnSpec) (Process, error) {
	wid, e := ParseWorkerArgs(spec.Args)
	if e != nil {
		return nil, e
	}
	if wid == nil {
		return nil, errors.New("no worker marker")
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.fail[wid.ID] {
		return nil, errors.New("Injected failure")
	}
	c.pid++
	p := &fakeProc{
		ctl:  c,
		id:   wid.ID,
		port: wid.Port,
		pid:  c.pid,
		spec: spec,
		exit: make(chan ExitStatus, 1),
	}
	c.procs = append(c.procs, p)
	return p, nil
}

func (c *fakeControl) SetExitOnStop(code int) {
	c.mx.Lock()
	c.exitOnStop = true
	c.stopCode = code
	c.mx.Unlock()
}

// SetSignalError makes every Signal fail with e, or succeed if e is nil.
func (c *fakeControl) SetSignalError(e error) {
	c.mx.Lock()
	c.signalErr = e
	c.mx.Unlock()
}

func (c *fakeControl) SetFail(id uint8, fail bool) {
	c.mx.Lock()
	c.fail[id] = fail
	c.mx.Unlock()
}

// Current returns the most recent incarnation of worker id.
func (c *fakeControl) Current(id uint8) *fakeProc {
	c.mx.Lock()
	defer c.mx.Unlock()
	for i := len(c.procs) - 1; i >= 0; i-- {
		if c.procs[i].id == id {
			return c.procs[i]
		}
	}
	return nil
}

func (c *fakeControl) Spawns(id uint8) int {
	c.mx.Lock()
	defer c.mx.Unlock()
	n := 0
	for _, p := range c.procs {
		if p.id == id {
			n++
		}
	}
	return n
}

func (c *fakeControl) Total() int {
	c.mx.Lock()
	defer c.mx.Unlock()
	return len(c.procs)
}

func (c *fakeControl) All() []*fakeProc {
	c.mx.Lock()
	defer c.mx.Unlock()
	return append([]*fakeProc{}, c.procs...)
}

type fakeClock struct {
	mx sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mx.Lock()
	c.t = c.t.Add(d)
	c.mx.Unlock()
}

type exitNote struct {
	id     uint8
	status ExitStatus
	ok     bool
}

func testConfig(workers uint8) Config {
	return Config{
		Workers:        workers,
		Respawn:        true,
		Port:           8000,
		ThrottleCount:  3,
		ThrottleWindow: 5 * time.Second,
	}
}

// newTestSupervisor wires a supervisor to a fake process control.  Signals
// are not handled.  Every exit is reported on the returned channel.
func newTestSupervisor(t *testing.T, cfg Config) (*Supervisor, *fakeControl, chan exitNote) {
	fc := newFakeControl()
	exits := make(chan exitNote, 1024)
	cfg.Control = fc
	cfg.DisableSignals = true
	cfg.OnExit = func(id uint8, st ExitStatus) {
		exits <- exitNote{id: id, status: st, ok: true}
	}
	sv := NewSupervisor(cfg)
	sv.SetLogger(nil)
	sv.mlog.AddWriter(&testLog{t})
	return sv, fc, exits
}

// nextExit waits for the next OnExit, and then for the supervisor loop to
// finish handling it.
func nextExit(sv *Supervisor, exits chan exitNote) exitNote {
	select {
	case n := <-exits:
		sv.call(func() {})
		return n
	case <-time.After(5 * time.Second):
		return exitNote{}
	}
}

// shutdown stops every worker and waits for the supervisor to finish.
func shutdown(sv *Supervisor, fc *fakeControl) {
	fc.SetExitOnStop(0)
	sv.Terminate()
	sv.Wait()
}
