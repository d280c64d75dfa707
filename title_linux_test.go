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
	"runtime"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sys/unix"
)

func readComm() string {
	b, e := os.ReadFile("/proc/self/comm")
	if e != nil {
		return ""
	}
	return strings.TrimRight(string(b), "\n")
}

// titleFromThread sets the title from a goroutine locked to some thread
// other than the main one.
func titleFromThread(title string) (tid int) {
	done := make(chan int)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		setProcessTitle(title)
		done <- unix.Gettid()
	}()
	return <-done
}

func TestProcessTitle(t *testing.T) {
	Convey("The process title is set for the whole process", t, func() {
		orig := readComm()
		So(orig, ShouldNotBeEmpty)
		defer setProcessTitle(orig)

		tid := titleFromThread("cv-master")
		So(tid, ShouldNotEqual, 0)
		So(readComm(), ShouldEqual, "cv-master")

		Convey("Long titles are truncated", func() {
			titleFromThread("clustervisor-master")
			So(readComm(), ShouldEqual, "clustervisor-ma")
		})
	})
}
