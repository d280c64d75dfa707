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
	"time"
)

// crashRing remembers the times of the last few crashes of one worker.
// When full, the oldest entry is evicted to make room.
type crashRing struct {
	stamps []time.Time
	head   int
	size   int
}

func newCrashRing(capacity int) crashRing {
	return crashRing{stamps: make([]time.Time, capacity)}
}

func (r *crashRing) push(t time.Time) {
	n := len(r.stamps)
	if n == 0 {
		return
	}
	if r.size == n {
		r.head = (r.head + 1) % n
		r.size--
	}
	r.stamps[(r.head+r.size)%n] = t
	r.size++
}

func (r *crashRing) full() bool {
	return r.size == len(r.stamps)
}

func (r *crashRing) oldest() time.Time {
	return r.stamps[r.head]
}

func (r *crashRing) Len() int {
	return r.size
}

// Times returns the recorded crash times, oldest first.
func (r *crashRing) Times() []time.Time {
	rv := make([]time.Time, 0, r.size)
	for i := 0; i < r.size; i++ {
		rv = append(rv, r.stamps[(r.head+i)%len(r.stamps)])
	}
	return rv
}

// storm records a crash at now, and reports whether the ring now holds a
// full set of crashes that all happened within window.
func (r *crashRing) storm(now time.Time, window time.Duration) bool {
	r.push(now)
	return r.full() && now.Sub(r.oldest()) < window
}
