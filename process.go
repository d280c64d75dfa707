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
	"fmt"
	"os"
	"os/exec"
)

// ExitStatus describes how a worker ended.  Signal is nil unless the
// process was terminated by a signal, in which case Code is -1.
type ExitStatus struct {
	Code   int
	Signal os.Signal
}

// Signaled reports whether the process was terminated by a signal.
func (s ExitStatus) Signaled() bool {
	return s.Signal != nil
}

// Success reports a normal exit with status zero.
func (s ExitStatus) Success() bool {
	return s.Signal == nil && s.Code == 0
}

func (s ExitStatus) String() string {
	if s.Signal != nil {
		return "signal: " + s.Signal.String()
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

// SpawnSpec is everything needed to start one worker.
type SpawnSpec struct {
	Path string   // Executable
	Args []string // Complete argument vector, including Args[0]
	Env  []string // Complete environment
}

// Process is a running worker.  Wait is called exactly once, from a
// goroutine dedicated to the process; the other methods may be called
// concurrently with it.
type Process interface {
	Pid() int
	Signal(os.Signal) error
	Kill() error
	Wait() ExitStatus
}

// ProcessControl starts worker processes.  The supervisor only needs this
// to get a Process; everything else goes through the Process itself.
//
// Implementations must not block waiting for the worker to become ready:
// Spawn returns as soon as the operating system hands back a process.
type ProcessControl interface {
	Spawn(SpawnSpec) (Process, error)
}

// ExecControl is the ProcessControl backed by os/exec.  Workers get no
// stdin, and share the supervisor's stdout and stderr.
type ExecControl struct{}

func (ExecControl) Spawn(spec SpawnSpec) (Process, error) {
	cmd := &exec.Cmd{
		Path:   spec.Path,
		Args:   spec.Args,
		Env:    spec.Env,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	cmd.SysProcAttr = workerSysProcAttr()
	if e := cmd.Start(); e != nil {
		return nil, e
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *execProcess) Wait() ExitStatus {
	// The error is redundant with ProcessState, except when the wait
	// itself failed, and then there is no status to report.
	p.cmd.Wait()
	if p.cmd.ProcessState == nil {
		return ExitStatus{Code: -1}
	}
	return exitStatusOf(p.cmd.ProcessState)
}
