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

//go:build unix

package clustervisor

import (
	"os"
	"syscall"
)

// StopSignal asks a worker to finish up and exit.
var StopSignal os.Signal = syscall.SIGTERM

// TerminateSignals make the master shut the cluster down.
var TerminateSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}

// RestartSignal asks the master for a rolling restart.
var RestartSignal os.Signal = syscall.SIGUSR2

// Workers get their own process group, so that a ^C at the terminal is
// seen only by the master, which then stops the workers in order.
func workerSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func exitStatusOf(ps *os.ProcessState) ExitStatus {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signal: ws.Signal()}
	}
	return ExitStatus{Code: ps.ExitCode()}
}

func isStopSignal(sig os.Signal) bool {
	return sig == syscall.SIGTERM || sig == syscall.SIGINT
}
