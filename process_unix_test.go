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

//go:build unix

package clustervisor

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// testModeEnv makes the test binary act as a worker instead of running
// tests.  The supervisor tests below spawn the test binary itself.
const testModeEnv = "CLUSTERVISOR_TEST_MODE"

func TestMain(m *testing.M) {
	switch os.Getenv(testModeEnv) {
	case "serve":
		testWorker()
	case "crash":
		os.Exit(3)
	default:
		os.Exit(m.Run())
	}
}

func testWorker() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM)
	sv := NewSupervisor(Config{Workers: 1, Port: 1})
	if e := sv.Init(os.Args); e != nil || !sv.IsWorker() {
		os.Exit(10)
	}
	<-sigs
	os.Exit(0)
}

func TestExecControl(t *testing.T) {
	Convey("Exit codes are reported", t, func() {
		p, e := ExecControl{}.Spawn(SpawnSpec{
			Path: "/bin/sh",
			Args: []string{"sh", "-c", "exit 7"},
		})
		So(e, ShouldBeNil)
		So(p.Pid(), ShouldBeGreaterThan, 0)
		st := p.Wait()
		So(st.Code, ShouldEqual, 7)
		So(st.Signaled(), ShouldBeFalse)
		So(st.String(), ShouldEqual, "exit status 7")
	})

	Convey("Killed processes report the signal", t, func() {
		p, e := ExecControl{}.Spawn(SpawnSpec{
			Path: "/bin/sh",
			Args: []string{"sh", "-c", "sleep 30"},
		})
		So(e, ShouldBeNil)
		So(p.Kill(), ShouldBeNil)
		st := p.Wait()
		So(st.Signaled(), ShouldBeTrue)
		So(st.Signal, ShouldEqual, syscall.SIGKILL)
		So(st.Code, ShouldEqual, -1)
		So(st.Success(), ShouldBeFalse)
	})

	Convey("A missing executable fails to spawn", t, func() {
		_, e := ExecControl{}.Spawn(SpawnSpec{
			Path: "/nonexistent/clustervisor-test",
			Args: []string{"clustervisor-test"},
		})
		So(e, ShouldNotBeNil)
	})
}

func TestExecSupervisor(t *testing.T) {
	Convey("Real workers start and stop", t, func() {
		t.Setenv(testModeEnv, "serve")
		exits := make(chan exitNote, 16)
		cfg := testConfig(2)
		cfg.DisableSignals = true
		cfg.OnExit = func(id uint8, st ExitStatus) {
			exits <- exitNote{id: id, status: st, ok: true}
		}
		sv := NewSupervisor(cfg)
		sv.SetLogger(log.New(&testLog{t}, "", 0))
		So(sv.Init(os.Args), ShouldBeNil)

		w := sv.Workers()
		So(len(w), ShouldEqual, 2)
		So(w[0].Pid, ShouldBeGreaterThan, 0)
		So(w[1].Pid, ShouldNotEqual, w[0].Pid)

		// Give the workers a moment to install their handler.
		time.Sleep(100 * time.Millisecond)
		So(sv.Terminate(), ShouldBeNil)
		So(sv.Wait(), ShouldBeNil)
		So(len(exits), ShouldEqual, 2)
		for i := 0; i < 2; i++ {
			n := <-exits
			So(n.status.Success() || n.status.Signal == syscall.SIGTERM, ShouldBeTrue)
		}
	})

	Convey("Real workers that keep crashing are given up on", t, func() {
		t.Setenv(testModeEnv, "crash")
		exits := make(chan exitNote, 16)
		cfg := testConfig(1)
		cfg.DisableSignals = true
		cfg.OnExit = func(id uint8, st ExitStatus) {
			exits <- exitNote{id: id, status: st, ok: true}
		}
		sv := NewSupervisor(cfg)
		sv.SetLogger(log.New(&testLog{t}, "", 0))
		So(sv.Init(os.Args), ShouldBeNil)
		So(sv.Wait(), ShouldBeNil)
		So(len(exits), ShouldEqual, 3)
		for i := 0; i < 3; i++ {
			n := <-exits
			So(n.status.Code, ShouldEqual, 3)
		}
	})
}

func TestSignals(t *testing.T) {
	Convey("The restart signal starts a rolling restart", t, func() {
		fc := newFakeControl()
		exits := make(chan exitNote, 16)
		cfg := testConfig(2)
		cfg.Control = fc
		cfg.OnExit = func(id uint8, st ExitStatus) {
			exits <- exitNote{id: id, status: st, ok: true}
		}
		sv := NewSupervisor(cfg)
		sv.SetLogger(log.New(&testLog{t}, "", 0))
		So(sv.Init([]string{"prog"}), ShouldBeNil)
		So(sv.sigCh, ShouldNotBeNil)

		fc.SetExitOnStop(0)
		So(syscall.Kill(os.Getpid(), syscall.SIGUSR2), ShouldBeNil)
		So(nextExit(sv, exits).ok, ShouldBeTrue)
		So(nextExit(sv, exits).ok, ShouldBeTrue)
		So(fc.Total(), ShouldEqual, 4)
		So(sv.Status().RestartRequested, ShouldBeFalse)

		So(syscall.Kill(os.Getpid(), syscall.SIGTERM), ShouldBeNil)
		So(sv.Wait(), ShouldBeNil)
		So(fc.Total(), ShouldEqual, 4)
	})
}
