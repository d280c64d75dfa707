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
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCrashRing(t *testing.T) {
	Convey("The crash ring keeps the newest entries", t, func() {
		r := newCrashRing(3)
		base := time.Unix(0, 0)
		So(r.Len(), ShouldEqual, 0)
		So(r.Times(), ShouldBeEmpty)
		for i := 0; i < 5; i++ {
			r.push(base.Add(time.Duration(i) * time.Second))
		}
		So(r.Len(), ShouldEqual, 3)
		So(r.Times(), ShouldResemble, []time.Time{
			base.Add(2 * time.Second),
			base.Add(3 * time.Second),
			base.Add(4 * time.Second),
		})
	})

	Convey("A storm is K crashes inside the window", t, func() {
		r := newCrashRing(3)
		base := time.Unix(100, 0)
		So(r.storm(base, 5*time.Second), ShouldBeFalse)
		So(r.storm(base.Add(time.Second), 5*time.Second), ShouldBeFalse)
		So(r.storm(base.Add(2*time.Second), 5*time.Second), ShouldBeTrue)

		r = newCrashRing(3)
		So(r.storm(base, 5*time.Second), ShouldBeFalse)
		So(r.storm(base.Add(2*time.Second), 5*time.Second), ShouldBeFalse)
		So(r.storm(base.Add(5*time.Second), 5*time.Second), ShouldBeFalse)
		So(r.storm(base.Add(6*time.Second), 5*time.Second), ShouldBeTrue)
	})

	Convey("A ring of one storms on every crash inside the window", t, func() {
		r := newCrashRing(1)
		So(r.storm(time.Unix(5, 0), time.Second), ShouldBeTrue)
	})
}

func TestCrashRingProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("never holds more than its capacity", prop.ForAll(
		func(k int, n int) bool {
			r := newCrashRing(k)
			for i := 0; i < n; i++ {
				r.push(time.Unix(int64(i), 0))
			}
			if r.Len() > k {
				return false
			}
			ts := r.Times()
			for i := 1; i < len(ts); i++ {
				if !ts[i-1].Before(ts[i]) {
					return false
				}
			}
			return len(ts) == r.Len()
		},
		gen.IntRange(1, 16),
		gen.IntRange(0, 100),
	))

	properties.Property("evenly spaced crashes storm only when dense", prop.ForAll(
		func(gap int64) bool {
			r := newCrashRing(3)
			w := 5 * time.Second
			stormed := false
			for i := int64(0); i < 10; i++ {
				if r.storm(time.Unix(i*gap, 0), w) {
					stormed = true
				}
			}
			return stormed == (2*gap < 5)
		},
		gen.Int64Range(0, 10),
	))

	properties.TestingRun(t)
}
