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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/gdamore/clustervisor/rest"
)

// Status is a one-word summary of a worker.
func Status(w *rest.WorkerInfo) string {
	if w.RespawnDisabled {
		return "disabled"
	}
	if w.Active {
		return "running"
	}
	return w.State
}

// Uptime is how long the worker has been running, or zero.
func Uptime(w *rest.WorkerInfo, now time.Time) time.Duration {
	if !w.Active || w.StartTime.IsZero() {
		return 0
	}
	d := now.Sub(w.StartTime)
	return d - d%time.Second
}

func FormatDuration(d time.Duration) string {

	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

// WorkerLine formats a worker as one row of a table.
func WorkerLine(w *rest.WorkerInfo, now time.Time) string {
	pid := "-"
	if w.Pid != 0 {
		pid = fmt.Sprint(w.Pid)
	}
	return fmt.Sprintf("%4d %6d %8s %-9s %10s %8d %7d   %s",
		w.ID, w.Port, pid, Status(w),
		FormatDuration(Uptime(w, now)), w.Restarts, len(w.Crashes),
		w.LastExit)
}

const WorkerHeader = "  ID   PORT      PID STATE         UPTIME RESTARTS CRASHES   LAST EXIT"

type sorted []*rest.WorkerInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := s[i]
	b := s[j]

	if a.RespawnDisabled != b.RespawnDisabled {
		// put disabled workers at front
		return a.RespawnDisabled
	}
	if a.Active != b.Active {
		return !a.Active
	}
	return a.ID < b.ID
}

// SortWorkers puts the workers needing attention first.
func SortWorkers(items []*rest.WorkerInfo) {
	sort.Sort(sorted(items))
}
