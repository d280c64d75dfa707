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
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/clustervisor"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"
)

type testCluster struct {
	elog       *clustervisor.EventLog
	reg        *prometheus.Registry
	restartErr error
	restarts   int
	shutdowns  int
	sync.Mutex
}

func newTestCluster() *testCluster {
	tc := &testCluster{
		elog: clustervisor.NewEventLog(10),
		reg:  prometheus.NewRegistry(),
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "A test counter.",
	})
	tc.reg.MustRegister(c)
	c.Inc()
	return tc
}

func (tc *testCluster) Status() clustervisor.Status {
	return clustervisor.Status{
		Role:       clustervisor.RoleMaster,
		BasePort:   8000,
		PortPolicy: clustervisor.PortShared,
		Workers:    2,
		Active:     1,
		Running:    true,
	}
}

func (tc *testCluster) Workers() []clustervisor.WorkerInfo {
	return []clustervisor.WorkerInfo{
		{ID: 0, Port: 8000, Pid: 100, State: clustervisor.WorkerActive, Active: true},
		{ID: 1, Port: 8000, Pid: 101, State: clustervisor.WorkerRespawnDisabled,
			RespawnDisabled: true,
			LastExit:        &clustervisor.ExitStatus{Code: 2}},
	}
}

func (tc *testCluster) RollingRestart() error {
	tc.Lock()
	defer tc.Unlock()
	tc.restarts++
	return tc.restartErr
}

func (tc *testCluster) Terminate() error {
	tc.Lock()
	defer tc.Unlock()
	tc.shutdowns++
	if tc.shutdowns > 1 {
		return clustervisor.ErrShuttingDown
	}
	return nil
}

func (tc *testCluster) setRestartErr(e error) {
	tc.Lock()
	tc.restartErr = e
	tc.Unlock()
}

func (tc *testCluster) Restarts() int {
	tc.Lock()
	defer tc.Unlock()
	return tc.restarts
}

func (tc *testCluster) EventLog() *clustervisor.EventLog {
	return tc.elog
}

func (tc *testCluster) Gatherer() prometheus.Gatherer {
	return tc.reg
}

func TestHandler(t *testing.T) {
	Convey("The control plane reports the cluster", t, func() {
		tc := newTestCluster()
		srv := httptest.NewServer(NewHandler(tc))
		defer srv.Close()
		c := NewClient(nil, srv.URL+"/")

		ci, e := c.Cluster()
		So(e, ShouldBeNil)
		So(ci.Role, ShouldEqual, "master")
		So(ci.Port, ShouldEqual, 8000)
		So(ci.PortPolicy, ShouldEqual, "shared")
		So(ci.Workers, ShouldEqual, 2)
		So(ci.Active, ShouldEqual, 1)

		ws, e := c.Workers()
		So(e, ShouldBeNil)
		So(len(ws), ShouldEqual, 2)
		So(ws[0].State, ShouldEqual, "active")
		So(ws[1].State, ShouldEqual, "disabled")
		So(ws[1].LastExit, ShouldEqual, "exit status 2")

		w, e := c.Worker(1)
		So(e, ShouldBeNil)
		So(w.Pid, ShouldEqual, 101)
		So(w.RespawnDisabled, ShouldBeTrue)

		_, e = c.Worker(9)
		So(e, ShouldNotBeNil)
		So(e.(*Error).Code, ShouldEqual, http.StatusNotFound)
	})

	Convey("Restart and shutdown requests", t, func() {
		tc := newTestCluster()
		srv := httptest.NewServer(NewHandler(tc))
		defer srv.Close()
		c := NewClient(nil, srv.URL)

		So(c.Restart(), ShouldBeNil)
		So(tc.Restarts(), ShouldEqual, 1)

		tc.setRestartErr(clustervisor.ErrRestartInProgress)
		e := c.Restart()
		So(e, ShouldNotBeNil)
		So(e.(*Error).Code, ShouldEqual, http.StatusConflict)
		So(e.Error(), ShouldEqual, clustervisor.ErrRestartInProgress.Error())

		So(c.Shutdown(), ShouldBeNil)
		e = c.Shutdown()
		So(e, ShouldNotBeNil)
		So(e.(*Error).Code, ShouldEqual, http.StatusConflict)

		tc.setRestartErr(clustervisor.ErrNotRunning)
		So(c.Restart().(*Error).Code, ShouldEqual, http.StatusServiceUnavailable)
		tc.setRestartErr(errors.New("boom"))
		So(c.Restart().(*Error).Code, ShouldEqual, http.StatusInternalServerError)

		res, e := http.Get(srv.URL + "/restart")
		So(e, ShouldBeNil)
		res.Body.Close()
		So(res.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
	})

	Convey("The event log supports long polls", t, func() {
		tc := newTestCluster()
		srv := httptest.NewServer(NewHandler(tc))
		defer srv.Close()
		c := NewClient(nil, srv.URL)

		tc.elog.Write([]byte("first\n"))
		li, e := c.GetLog()
		So(e, ShouldBeNil)
		So(len(li.Records), ShouldEqual, 1)
		So(li.Records[0].Text, ShouldEqual, "first")

		go func() {
			time.Sleep(50 * time.Millisecond)
			tc.elog.Write([]byte("second\n"))
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		li2, e := c.WatchLog(ctx, li)
		So(e, ShouldBeNil)
		So(len(li2.Records), ShouldEqual, 2)
		So(li2.Records[1].Text, ShouldEqual, "second")

		ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel2()
		_, e = c.WatchLog(ctx2, li2)
		So(e, ShouldNotBeNil)
	})

	Convey("Metrics are exposed", t, func() {
		tc := newTestCluster()
		srv := httptest.NewServer(NewHandler(tc))
		defer srv.Close()
		res, e := http.Get(srv.URL + "/metrics")
		So(e, ShouldBeNil)
		b, _ := io.ReadAll(res.Body)
		res.Body.Close()
		So(res.StatusCode, ShouldEqual, http.StatusOK)
		So(string(b), ShouldContainSubstring, "test_counter_total 1")
	})
}

func TestAuth(t *testing.T) {
	Convey("Basic authentication is enforced", t, func() {
		hash, e := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
		So(e, ShouldBeNil)
		tc := newTestCluster()
		h := NewHandler(tc)
		h.SetAuth("admin", string(hash))
		srv := httptest.NewServer(h)
		defer srv.Close()

		c := NewClient(nil, srv.URL)
		_, e = c.Cluster()
		So(e, ShouldNotBeNil)
		So(e.(*Error).Code, ShouldEqual, http.StatusUnauthorized)

		c.SetAuth("admin", "wrong")
		_, e = c.Cluster()
		So(e.(*Error).Code, ShouldEqual, http.StatusUnauthorized)
		So(c.Restart().(*Error).Code, ShouldEqual, http.StatusUnauthorized)
		So(tc.Restarts(), ShouldEqual, 0)

		c.SetAuth("admin", "secret")
		ci, e := c.Cluster()
		So(e, ShouldBeNil)
		So(ci.Role, ShouldEqual, "master")
	})
}

func TestServe(t *testing.T) {
	Convey("Serve stops when its context is done", t, func() {
		l, e := net.Listen("tcp", "127.0.0.1:0")
		So(e, ShouldBeNil)
		tc := newTestCluster()
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- Serve(ctx, l, NewHandler(tc), 4)
		}()

		c := NewClient(nil, "http://"+l.Addr().String())
		ci, e := c.Cluster()
		So(e, ShouldBeNil)
		So(strings.ToUpper(ci.Role), ShouldEqual, "MASTER")

		cancel()
		select {
		case e = <-done:
			So(e, ShouldBeNil)
		case <-time.After(10 * time.Second):
			So("timeout", ShouldBeNil)
		}
	})
}
