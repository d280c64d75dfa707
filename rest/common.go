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

// Package rest is the HTTP control plane of a cluster master, and a
// client for it.
package rest

import (
	"time"

	"github.com/gdamore/clustervisor"
)

const (
	mimeJson = "application/json; charset=UTF-8"

	// PollEtagHeader and PollTimeHeader ask the server to hold a GET
	// until the resource no longer matches the Etag, or the given
	// number of seconds has passed.
	PollEtagHeader = "X-Clustervisor-Poll-Etag"
	PollTimeHeader = "X-Clustervisor-Poll-Time"

	// MaxPollTime bounds PollTimeHeader, in seconds.
	MaxPollTime = 300
)

var ok struct{}

type ClusterInfo struct {
	Role         string    `json:"role"`
	Port         uint16    `json:"port"`
	PortPolicy   string    `json:"portPolicy"`
	Workers      uint8     `json:"workers"`
	Active       int       `json:"active"`
	CPUs         uint8     `json:"cpus"`
	PhysicalCPUs uint8     `json:"physicalCpus"`
	Running      bool      `json:"running"`
	ShuttingDown bool      `json:"shuttingDown"`
	Restarting   bool      `json:"restarting"`
	StartTime    time.Time `json:"started"`
}

type WorkerInfo struct {
	ID              uint8       `json:"id"`
	Port            uint16      `json:"port"`
	Pid             int         `json:"pid"`
	Instance        string      `json:"instance"`
	State           string      `json:"state"`
	Active          bool        `json:"active"`
	RespawnDisabled bool        `json:"respawnDisabled"`
	Restarts        int         `json:"restarts"`
	Crashes         []time.Time `json:"crashes"`
	StartTime       time.Time   `json:"started"`
	ExitTime        time.Time   `json:"exited"`
	LastExit        string      `json:"lastExit"`
}

type LogRecord = clustervisor.LogRecord

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func clusterInfo(st clustervisor.Status) *ClusterInfo {
	return &ClusterInfo{
		Role:         st.Role.String(),
		Port:         st.BasePort,
		PortPolicy:   st.PortPolicy.String(),
		Workers:      st.Workers,
		Active:       st.Active,
		CPUs:         st.CPUs,
		PhysicalCPUs: st.PhysicalCPUs,
		Running:      st.Running,
		ShuttingDown: st.ShutdownRequested,
		Restarting:   st.RestartRequested,
		StartTime:    st.StartTime,
	}
}

func workerInfo(w clustervisor.WorkerInfo) *WorkerInfo {
	info := &WorkerInfo{
		ID:              w.ID,
		Port:            w.Port,
		Pid:             w.Pid,
		Instance:        w.Instance,
		State:           w.State.String(),
		Active:          w.Active,
		RespawnDisabled: w.RespawnDisabled,
		Restarts:        w.Restarts,
		Crashes:         w.Crashes,
		StartTime:       w.StartTime,
		ExitTime:        w.ExitTime,
	}
	if w.LastExit != nil {
		info.LastExit = w.LastExit.String()
	}
	return info
}
