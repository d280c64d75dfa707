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
	"runtime"
	"strconv"
	"strings"
)

// sysCPUDir is where Linux describes the CPU topology.
var sysCPUDir = "/sys/devices/system/cpu"

func clampCPUs(n int) uint8 {
	if n < 1 {
		return 1
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}

// CPUs returns the number of logical CPUs usable by this process, clamped
// to 1..255.  This is the default worker count.
func CPUs() uint8 {
	return clampCPUs(runtime.NumCPU())
}

// PhysicalCPUs estimates the number of physical cores, clamped to 1..255.
// Where the topology cannot be read it returns CPUs().
func PhysicalCPUs() uint8 {
	return clampCPUs(physicalCPUs(sysCPUDir, runtime.NumCPU()))
}

type coreKey struct {
	pkg  string
	core string
}

func readTopology(root string, cpu int, name string) (string, bool) {
	b, e := os.ReadFile(filepath.Join(root, "cpu"+strconv.Itoa(cpu), "topology", name))
	if e != nil {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}

// physicalCPUs counts distinct (package, core) pairs for the first logical
// CPUs under root.  Failing that, it divides the logical count by the
// number of hardware threads sharing cpu0's core.
func physicalCPUs(root string, logical int) int {
	if logical < 1 {
		return 1
	}
	seen := map[coreKey]bool{}
	for cpu := 0; cpu < logical; cpu++ {
		core, ok := readTopology(root, cpu, "core_id")
		if !ok {
			continue
		}
		pkg, _ := readTopology(root, cpu, "physical_package_id")
		seen[coreKey{pkg: pkg, core: core}] = true
	}
	if len(seen) > 0 {
		return len(seen)
	}

	list, ok := readTopology(root, 0, "thread_siblings_list")
	if !ok {
		return logical
	}
	if n := countCPUList(list); n > 1 {
		if logical/n < 1 {
			return 1
		}
		return logical / n
	}
	return logical
}

// countCPUList counts the CPUs in a kernel cpu list such as "0,4" or
// "0-1,8-9".  Malformed entries count as one.
func countCPUList(s string) int {
	n := 0
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, found := strings.Cut(part, "-")
		if !found {
			n++
			continue
		}
		a, e1 := strconv.Atoi(lo)
		b, e2 := strconv.Atoi(hi)
		if e1 != nil || e2 != nil || b < a {
			n++
			continue
		}
		n += b - a + 1
	}
	return n
}
