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
	"context"
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 1000
)

type LogRecord struct {
	ID   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// EventLog keeps the most recent supervisor log lines in memory, so that
// they can be served to operators.  It is an io.Writer, and is normally
// the target of a log.Logger.
type EventLog struct {
	records []LogRecord
	next    int // Total records ever written; next%len(records) is the slot
	id      int64
	changed chan struct{}
	mx      sync.Mutex
}

// Write implements the io.Writer consumed by log.Logger.  Each line of
// input becomes one record.
func (l *EventLog) Write(b []byte) (int, error) {
	str := strings.Trim(string(b), "\n")
	now := time.Now()
	l.mx.Lock()
	for _, line := range strings.Split(str, "\n") {
		l.id++
		l.records[l.next%len(l.records)] = LogRecord{
			ID:   l.id,
			Time: now,
			Text: line,
		}
		l.next++
	}
	close(l.changed)
	l.changed = make(chan struct{})
	l.mx.Unlock()
	return len(b), nil
}

// Records returns the stored records, oldest first, and an ID suitable for
// use as an Etag.  If last matches the current ID, nothing has been logged
// since and the records are nil.  IDs are not unique across EventLogs.
func (l *EventLog) Records(last int64) ([]LogRecord, int64) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.id == last {
		return nil, last
	}
	cnt := l.next
	if cnt > len(l.records) {
		cnt = len(l.records)
	}
	recs := make([]LogRecord, 0, cnt)
	for i := l.next - cnt; i < l.next; i++ {
		recs = append(recs, l.records[i%len(l.records)])
	}
	return recs, l.id
}

// Watch waits until the log ID differs from last, or the context is done,
// and returns the current ID.
func (l *EventLog) Watch(ctx context.Context, last int64) int64 {
	for {
		l.mx.Lock()
		id, ch := l.id, l.changed
		l.mx.Unlock()
		if id != last {
			return id
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return id
		}
	}
}

// NewEventLog returns an EventLog holding up to max records (MaxLogRecords
// if max is not positive).
func NewEventLog(max int) *EventLog {
	if max <= 0 {
		max = MaxLogRecords
	}
	// The IDs start at the current time in nsec, so that a client that
	// cached an Etag from a previous supervisor will not be confused.
	return &EventLog{
		records: make([]LogRecord, max),
		id:      time.Now().UnixNano(),
		changed: make(chan struct{}),
	}
}
