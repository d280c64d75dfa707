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
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses the burst of events produced by replacing a
// binary (create, write, chmod, rename) into one restart.
const watchDebounce = 500 * time.Millisecond

// watchExecutable starts a rolling restart whenever the executable is
// replaced.  The directory is watched rather than the file, since
// installers usually rename a new file over the old one.
func (sv *Supervisor) watchExecutable() {
	w, e := fsnotify.NewWatcher()
	if e != nil {
		sv.errorf("Cannot watch executable: %v", e)
		return
	}
	exe := filepath.Clean(sv.exe)
	if e := w.Add(filepath.Dir(exe)); e != nil {
		sv.errorf("Cannot watch %s: %v", filepath.Dir(exe), e)
		w.Close()
		return
	}
	sv.watcher = w
	go sv.watchLoop(w, exe)
}

func (sv *Supervisor) watchLoop(w *fsnotify.Watcher, exe string) {
	var fire <-chan time.Time
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != exe {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Chmod) {
				continue
			}
			fire = time.After(watchDebounce)
		case e, ok := <-w.Errors:
			if !ok {
				return
			}
			sv.errorf("Executable watch: %v", e)
		case <-fire:
			fire = nil
			sv.post(func() {
				if e := sv.rollingRestart("executable changed"); e != nil {
					sv.logf("Ignoring executable change: %v", e)
				}
			})
		case <-sv.done:
			return
		}
	}
}
