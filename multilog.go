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
	"io"
	"log"
	"strings"
	"sync"
)

// MultiLogger fans one log.Logger out to several destinations.  Each
// destination is either a log.Logger, keeping its own prefix and flags, or
// a plain io.Writer that receives the bare lines.
type MultiLogger struct {
	log     *log.Logger
	loggers []*log.Logger
	writers []io.Writer
	lock    sync.Mutex
}

// Write splits b into lines and delivers each line to every destination.
func (l *MultiLogger) Write(b []byte) (int, error) {
	lines := strings.Split(strings.Trim(string(b), "\n"), "\n")
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, line := range lines {
		for _, logger := range l.loggers {
			logger.Println(line)
		}
		for _, w := range l.writers {
			io.WriteString(w, line+"\n")
		}
	}
	return len(b), nil
}

// AddLogger adds a destination logger.  Adding the same one twice has no
// effect.
func (l *MultiLogger) AddLogger(logger *log.Logger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, x := range l.loggers {
		if x == logger {
			return
		}
	}
	l.loggers = append(l.loggers, logger)
}

// DelLogger removes a destination logger.
func (l *MultiLogger) DelLogger(logger *log.Logger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for i, x := range l.loggers {
		if x == logger {
			l.loggers = append(l.loggers[:i], l.loggers[i+1:]...)
			break
		}
	}
}

// AddWriter adds a raw destination, such as an EventLog.
func (l *MultiLogger) AddWriter(w io.Writer) {
	l.lock.Lock()
	l.writers = append(l.writers, w)
	l.lock.Unlock()
}

func (l *MultiLogger) Logger() *log.Logger {
	return l.log
}

func NewMultiLogger() *MultiLogger {
	m := &MultiLogger{}
	m.log = log.New(m, "", 0)
	return m
}
