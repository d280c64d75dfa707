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
	"path/filepath"
	"strconv"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func writeTopology(root string, cpu int, name, value string) {
	dir := filepath.Join(root, "cpu"+strconv.Itoa(cpu), "topology")
	os.MkdirAll(dir, 0755)
	os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0644)
}

func TestCPUs(t *testing.T) {
	Convey("CPU counts are clamped", t, func() {
		So(CPUs(), ShouldBeGreaterThanOrEqualTo, 1)
		So(PhysicalCPUs(), ShouldBeGreaterThanOrEqualTo, 1)
		So(PhysicalCPUs(), ShouldBeLessThanOrEqualTo, 255)
		So(clampCPUs(0), ShouldEqual, 1)
		So(clampCPUs(1000), ShouldEqual, 255)
		So(clampCPUs(12), ShouldEqual, 12)
	})

	Convey("Physical cores are counted per package", t, func() {
		root := t.TempDir()
		// Two packages, two cores each, two threads per core.
		cpu := 0
		for pkg := 0; pkg < 2; pkg++ {
			for core := 0; core < 2; core++ {
				for thr := 0; thr < 2; thr++ {
					writeTopology(root, cpu, "core_id", strconv.Itoa(core))
					writeTopology(root, cpu, "physical_package_id", strconv.Itoa(pkg))
					cpu++
				}
			}
		}
		So(physicalCPUs(root, 8), ShouldEqual, 4)
	})

	Convey("Thread siblings are used without core ids", t, func() {
		root := t.TempDir()
		writeTopology(root, 0, "thread_siblings_list", "0-1")
		So(physicalCPUs(root, 8), ShouldEqual, 4)

		root = t.TempDir()
		writeTopology(root, 0, "thread_siblings_list", "0,4")
		So(physicalCPUs(root, 8), ShouldEqual, 4)
	})

	Convey("Without topology the logical count is used", t, func() {
		So(physicalCPUs(t.TempDir(), 6), ShouldEqual, 6)
		So(physicalCPUs(t.TempDir(), 0), ShouldEqual, 1)
	})

	Convey("CPU lists are counted", t, func() {
		So(countCPUList("0"), ShouldEqual, 1)
		So(countCPUList("0-3"), ShouldEqual, 4)
		So(countCPUList("0-1,8-9"), ShouldEqual, 4)
		So(countCPUList("0,x-y"), ShouldEqual, 2)
		So(countCPUList(""), ShouldEqual, 0)
	})
}
