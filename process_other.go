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

//go:build !unix

package clustervisor

import (
	"os"
	"syscall"
)

// There is no catchable termination signal to send to another process
// here, so stopping a worker means killing it.
var StopSignal os.Signal = os.Kill

// TerminateSignals make the master shut the cluster down.
var TerminateSignals = []os.Signal{os.Interrupt}

// RestartSignal is nil where no user signal exists; use RollingRestart.
var RestartSignal os.Signal

func workerSysProcAttr() *syscall.SysProcAttr {
	return nil
}

func exitStatusOf(ps *os.ProcessState) ExitStatus {
	return ExitStatus{Code: ps.ExitCode()}
}

func isStopSignal(sig os.Signal) bool {
	return sig == os.Interrupt
}
