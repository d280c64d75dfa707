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
	"unsafe"

	"golang.org/x/sys/unix"
)

// commPath names the main thread of this process, whichever thread
// writes it.
const commPath = "/proc/self/comm"

// setProcessTitle sets the name shown by ps and top.  The kernel keeps at
// most 15 bytes of it.  PR_SET_NAME only renames the calling thread, so it
// is used only if /proc is unavailable.
func setProcessTitle(title string) {
	if len(title) > 15 {
		title = title[:15]
	}
	if e := os.WriteFile(commPath, []byte(title), 0); e == nil {
		return
	}
	b := append([]byte(title), 0)
	unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}
