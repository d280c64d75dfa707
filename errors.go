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
	"errors"
)

var (
	ErrConfigInvalid        = errors.New("Invalid cluster configuration")
	ErrAlreadyInitialized   = errors.New("Cluster already initialized")
	ErrBadWorkerArgs        = errors.New("Malformed worker identity")
	ErrBadWorkerID          = errors.New("Invalid worker ID")
	ErrSpawnFailed          = errors.New("Failed to spawn worker")
	ErrTooManySpawnFailures = errors.New("Too many spawn failures")
	ErrNotMaster            = errors.New("Only the master can do that")
	ErrNotRunning           = errors.New("Supervisor is not running")
	ErrShuttingDown         = errors.New("Shutdown in progress")
	ErrRestartInProgress    = errors.New("Rolling restart in progress")
)
