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
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBuildWorkerArgs(t *testing.T) {
	Convey("Worker arguments carry exactly one marker", t, func() {
		orig := []string{"./server", "-p", "80", WorkerFlag, "9", "9009", "-v"}
		args := BuildWorkerArgs(orig, "/usr/bin/server", 2, 8002)
		So(args, ShouldResemble, []string{
			"/usr/bin/server", "-p", "80", "-v", WorkerFlag, "2", "8002",
		})
		So(orig[3], ShouldEqual, WorkerFlag)

		again := BuildWorkerArgs(args, "/usr/bin/server", 5, 8005)
		n := 0
		for _, a := range again {
			if a == WorkerFlag {
				n++
			}
		}
		So(n, ShouldEqual, 1)
		id, e := ParseWorkerArgs(again)
		So(e, ShouldBeNil)
		So(id, ShouldResemble, &WorkerIdentity{ID: 5, Port: 8005})
	})

	Convey("Without an executable path the original name is used", t, func() {
		args := BuildWorkerArgs([]string{"server"}, "", 0, 1)
		So(args, ShouldResemble, []string{"server", WorkerFlag, "0", "1"})
	})

	Convey("A truncated marker is stripped", t, func() {
		So(StripWorkerArgs([]string{"a", "b", WorkerFlag, "1"}),
			ShouldResemble, []string{"a", "b"})
		So(StripWorkerArgs([]string{}), ShouldBeEmpty)
	})
}

func TestParseWorkerArgs(t *testing.T) {
	Convey("Parse worker markers", t, func() {
		id, e := ParseWorkerArgs([]string{"server", "-x"})
		So(e, ShouldBeNil)
		So(id, ShouldBeNil)

		id, e = ParseWorkerArgs([]string{"server", WorkerFlag, "255", "65535"})
		So(e, ShouldBeNil)
		So(id.ID, ShouldEqual, 255)
		So(id.Port, ShouldEqual, 65535)

		// The program name is never a marker.
		id, e = ParseWorkerArgs([]string{WorkerFlag, "1", "2"})
		So(e, ShouldBeNil)
		So(id, ShouldBeNil)

		bad := [][]string{
			{"server", WorkerFlag},
			{"server", WorkerFlag, "1"},
			{"server", WorkerFlag, "256", "80"},
			{"server", WorkerFlag, "-1", "80"},
			{"server", WorkerFlag, "1", "0"},
			{"server", WorkerFlag, "1", "65536"},
			{"server", WorkerFlag, "1", "http"},
		}
		for _, args := range bad {
			id, e = ParseWorkerArgs(args)
			So(errors.Is(e, ErrBadWorkerArgs), ShouldBeTrue)
			So(id, ShouldBeNil)
		}
	})

	Convey("The environment marker is recognized", t, func() {
		t.Setenv(WorkerEnv, "")
		So(IsWorkerProcess(), ShouldBeFalse)
		t.Setenv(WorkerEnv, "1")
		So(IsWorkerProcess(), ShouldBeTrue)
	})
}

func TestWorkerArgsProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	build := func(user []string, id uint8, port uint16) []string {
		orig := append([]string{"server"}, user...)
		return BuildWorkerArgs(orig, "/bin/server", id, port)
	}

	properties.Property("building twice is the same as building once", prop.ForAll(
		func(user []string, id uint8, port uint16) bool {
			once := build(user, id, port)
			twice := BuildWorkerArgs(once, "/bin/server", id, port)
			return reflect.DeepEqual(once, twice)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.UInt8(),
		gen.UInt16Range(1, 65535),
	))

	properties.Property("the marker round trips", prop.ForAll(
		func(user []string, id uint8, port uint16) bool {
			args := build(user, id, port)
			w, e := ParseWorkerArgs(args)
			if e != nil || w == nil || w.ID != id || w.Port != port {
				return false
			}
			stripped := StripWorkerArgs(args)
			return len(stripped) == len(user)+1 &&
				(len(user) == 0 || reflect.DeepEqual(stripped[1:], user))
		},
		gen.SliceOf(gen.AlphaString()),
		gen.UInt8(),
		gen.UInt16Range(1, 65535),
	))

	properties.TestingRun(t)
}
