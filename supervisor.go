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
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Role is what this process does in the cluster.
type Role int

const (
	RoleNone Role = iota // Init has not succeeded yet
	RoleMaster
	RoleWorker
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleWorker:
		return "worker"
	}
	return "none"
}

// Status is a consistent snapshot of the supervisor.
type Status struct {
	Role              Role
	WorkerID          uint8
	Port              uint16
	BasePort          uint16
	PortPolicy        PortPolicy
	Workers           uint8
	Active            int
	CPUs              uint8
	PhysicalCPUs      uint8
	Running           bool
	ShutdownRequested bool
	RestartRequested  bool
	StartTime         time.Time
}

type exitEvent struct {
	id     uint8
	gen    uint64
	status ExitStatus
}

// Supervisor is one cluster, seen from either the master or a worker.
// There is normally exactly one per process, but nothing prevents tests
// from creating several.
//
// In the master, all worker state belongs to a single goroutine (the
// supervisor loop).  Exit notifications, signals and API calls are
// delivered to it over channels and handled one at a time.  The OnStart
// and OnExit callbacks run on that goroutine: they must not block, and
// must not call the Supervisor methods that wait for the loop (Status,
// Workers, Terminate, RollingRestart, SignalWorkers).
type Supervisor struct {
	cfg     Config
	now     func() time.Time
	exePath func() (string, error)
	mlog    *MultiLogger
	stderr  *log.Logger
	logger  *log.Logger
	elog    *EventLog
	metrics *metrics

	// These are set by Init and read by the accessors.
	mx          sync.Mutex
	role        Role
	initialized bool
	workerID    uint8
	port        uint16
	basePort    uint16
	startTime   time.Time
	reqCh       chan func()
	done        chan struct{}

	// Everything below belongs to the loop once Init returns.
	slots             []*workerSlot
	args              []string
	exe               string
	shutdownRequested bool
	restartRequested  bool
	shutdownAt        time.Time
	killTimer         *time.Timer
	killC             <-chan time.Time

	exitCh    chan exitEvent
	respawnCh chan uint8
	sigCh     chan os.Signal
	watcher   *fsnotify.Watcher
	cleanup   sync.Once
}

// NewSupervisor creates a supervisor for cfg.  Nothing happens until Init
// is called.
func NewSupervisor(cfg Config) *Supervisor {
	cfg.fill()
	sv := &Supervisor{
		cfg:     cfg,
		now:     time.Now,
		exePath: os.Executable,
		elog:    NewEventLog(0),
		metrics: newMetrics(),
		mlog:    NewMultiLogger(),
	}
	sv.stderr = log.New(os.Stderr, "clustervisor: ", log.LstdFlags)
	sv.mlog.AddLogger(sv.stderr)
	sv.mlog.AddWriter(sv.elog)
	if cfg.Logger != nil {
		sv.mlog.AddLogger(cfg.Logger)
	}
	sv.logger = sv.mlog.Logger()
	return sv
}

// SetLogger replaces the default (standard error) log destination.  The
// in-memory event log, and any Config.Logger, are not affected.
func (sv *Supervisor) SetLogger(l *log.Logger) {
	if sv.stderr != nil {
		sv.mlog.DelLogger(sv.stderr)
	}
	sv.stderr = l
	if l != nil {
		sv.mlog.AddLogger(l)
	}
}

func (sv *Supervisor) logf(format string, v ...interface{}) {
	sv.logger.Printf(format, v...)
}

func (sv *Supervisor) errorf(format string, v ...interface{}) {
	sv.logger.Printf("ERROR: "+format, v...)
}

// Init decides whether this process is the master or a worker, based on
// args (normally os.Args).
//
// A worker records its identity and returns nil; it never spawns anything.
// The master validates the configuration, installs its signal handlers,
// spawns the workers, and starts supervising them in the background.  If
// more than half of the workers fail to spawn, the ones that did start are
// killed and ErrTooManySpawnFailures is returned.
func (sv *Supervisor) Init(args []string) error {
	sv.mx.Lock()
	if sv.role != RoleNone {
		sv.mx.Unlock()
		sv.errorf("Cluster already initialized")
		return ErrAlreadyInitialized
	}
	if len(args) == 0 {
		sv.mx.Unlock()
		return fmt.Errorf("%w: missing arguments", ErrConfigInvalid)
	}
	id, e := ParseWorkerArgs(args)
	if e != nil {
		sv.mx.Unlock()
		return e
	}
	if id == nil && IsWorkerProcess() {
		sv.mx.Unlock()
		return fmt.Errorf("%w: %s is set but %s is missing",
			ErrBadWorkerArgs, WorkerEnv, WorkerFlag)
	}
	if id != nil {
		sv.role = RoleWorker
		sv.workerID = id.ID
		sv.port = id.Port
		sv.basePort = sv.cfg.Port
		sv.startTime = sv.now()
		sv.initialized = true
		sv.mx.Unlock()
		setProcessTitle(fmt.Sprintf("%s-w%d", sv.cfg.Title, id.ID))
		return nil
	}
	if e := sv.cfg.validate(); e != nil {
		sv.mx.Unlock()
		sv.errorf("%v", e)
		return e
	}
	sv.prepareMaster(args)
	sv.mx.Unlock()

	return sv.startWorkers()
}

// prepareMaster allocates the registry.  Called with the lock held.
func (sv *Supervisor) prepareMaster(args []string) {
	sv.role = RoleMaster
	sv.basePort = sv.cfg.Port
	sv.port = sv.cfg.Port
	sv.args = append(make([]string, 0, len(args)), args...)
	if exe, e := sv.exePath(); e == nil {
		sv.exe = exe
	} else {
		sv.logf("Cannot resolve executable path (%v), using %s", e, args[0])
		sv.exe = args[0]
	}

	n := int(sv.cfg.Workers)
	sv.slots = make([]*workerSlot, n)
	for i := range sv.slots {
		id := uint8(i)
		sv.slots[i] = newWorkerSlot(id, sv.portFor(id), sv.cfg.ThrottleCount)
	}
	sv.exitCh = make(chan exitEvent, n)
	sv.respawnCh = make(chan uint8)
	sv.reqCh = make(chan func())
	sv.done = make(chan struct{})

	if cpus := int(CPUs()); n > 2*cpus {
		sv.logf("Warning: %d workers > 2x CPU count (%d), may cause contention",
			n, cpus)
	}
}

func (sv *Supervisor) startWorkers() error {
	sv.installSignals()
	setProcessTitle(sv.cfg.Title + "-master")

	n := len(sv.slots)
	failed := 0
	for i, s := range sv.slots {
		if i > 0 && sv.cfg.SpawnInterval > 0 {
			time.Sleep(sv.cfg.SpawnInterval)
		}
		if e := sv.spawn(s); e != nil {
			failed++
			if failed > n/2 {
				sv.errorf("Too many spawn failures, aborting")
				sv.abort()
				return fmt.Errorf("%w: %d of %d workers",
					ErrTooManySpawnFailures, failed, n)
			}
		}
	}
	if sv.cfg.WatchExecutable {
		sv.watchExecutable()
	}

	sv.mx.Lock()
	sv.initialized = true
	sv.startTime = sv.now()
	sv.mx.Unlock()

	sv.logf("Listening on port %d (cluster: %d workers, %v ports)",
		sv.basePort, n, sv.cfg.PortPolicy.resolve())
	go sv.run()
	return nil
}

// abort undoes a failed startup.
func (sv *Supervisor) abort() {
	for _, s := range sv.slots {
		if s.active {
			s.proc.Kill()
		}
	}
	sv.stopSignals()
	close(sv.done)
	sv.mx.Lock()
	sv.slots = nil
	sv.args = nil
	sv.mx.Unlock()
}

func (sv *Supervisor) portFor(id uint8) uint16 {
	if sv.cfg.PortPolicy.resolve() == PortPerWorker {
		return sv.basePort + uint16(id)
	}
	return sv.basePort
}

func (sv *Supervisor) installSignals() {
	if sv.cfg.DisableSignals {
		return
	}
	sigs := append([]os.Signal{}, TerminateSignals...)
	if RestartSignal != nil {
		sigs = append(sigs, RestartSignal)
	}
	sv.sigCh = make(chan os.Signal, len(sigs))
	signal.Notify(sv.sigCh, sigs...)
}

func (sv *Supervisor) stopSignals() {
	if sv.sigCh != nil {
		signal.Stop(sv.sigCh)
	}
}

// spawn starts a new incarnation of the worker in slot s.
func (sv *Supervisor) spawn(s *workerSlot) error {
	if int(s.id) >= len(sv.slots) {
		sv.errorf("Invalid worker ID: %d", s.id)
		return ErrBadWorkerID
	}
	s.reset(sv.now())

	instance := uuid.NewString()
	spec := SpawnSpec{
		Path: sv.exe,
		Args: BuildWorkerArgs(sv.args, sv.exe, s.id, s.port),
		Env: append(os.Environ(),
			WorkerEnv+"=1",
			InstanceEnv+"="+instance),
	}
	p, e := sv.cfg.Control.Spawn(spec)
	if e != nil {
		s.state = WorkerExitedCrashed
		sv.metrics.spawnFailures.Inc()
		sv.errorf("Failed to spawn worker %d: %v", s.id, e)
		return fmt.Errorf("%w %d: %v", ErrSpawnFailed, s.id, e)
	}

	s.gen++
	s.proc = p
	s.instance = instance
	s.active = true
	s.state = WorkerActive
	sv.metrics.spawned(s.id)
	sv.updateGauges()
	sv.logf("Started worker %d (pid %d, port %d)", s.id, p.Pid(), s.port)

	go sv.reap(s.id, s.gen, p)

	if cb := sv.cfg.OnStart; cb != nil {
		cb(s.id)
	}
	return nil
}

// reap waits for a worker to exit and hands the status to the loop.
func (sv *Supervisor) reap(id uint8, gen uint64, p Process) {
	st := p.Wait()
	select {
	case sv.exitCh <- exitEvent{id: id, gen: gen, status: st}:
	case <-sv.done:
	}
}

func (sv *Supervisor) updateGauges() {
	active, disabled := 0, 0
	for _, s := range sv.slots {
		if s.active {
			active++
		}
		if s.respawnDisabled {
			disabled++
		}
	}
	sv.metrics.active.Set(float64(active))
	sv.metrics.disabled.Set(float64(disabled))
}

func (sv *Supervisor) chans() (chan func(), chan struct{}) {
	sv.mx.Lock()
	defer sv.mx.Unlock()
	return sv.reqCh, sv.done
}

// call runs fn on the supervisor loop and waits for it.  It returns false
// if the loop is not running.
func (sv *Supervisor) call(fn func()) bool {
	req, done := sv.chans()
	if req == nil {
		return false
	}
	fin := make(chan struct{})
	select {
	case req <- func() { fn(); close(fin) }:
		<-fin
		return true
	case <-done:
		return false
	}
}

// post queues fn for the supervisor loop without waiting.
func (sv *Supervisor) post(fn func()) bool {
	req, done := sv.chans()
	if req == nil {
		return false
	}
	select {
	case req <- fn:
		return true
	case <-done:
		return false
	}
}

// Role returns the role established by Init.
func (sv *Supervisor) Role() Role {
	sv.mx.Lock()
	defer sv.mx.Unlock()
	if !sv.initialized {
		return RoleNone
	}
	return sv.role
}

// IsMaster reports whether this process supervises the workers.
func (sv *Supervisor) IsMaster() bool {
	return sv.Role() == RoleMaster
}

// IsWorker reports whether this process is one of the workers.
func (sv *Supervisor) IsWorker() bool {
	return sv.Role() == RoleWorker
}

// Port returns the port this process should listen on.  For a worker
// that is its assigned port; for the master, the base port.  It is zero
// before Init.
func (sv *Supervisor) Port() uint16 {
	sv.mx.Lock()
	defer sv.mx.Unlock()
	if !sv.initialized {
		return 0
	}
	return sv.port
}

// ListenAddr is Port formatted as a listen address.
func (sv *Supervisor) ListenAddr() string {
	return fmt.Sprintf(":%d", sv.Port())
}

// WorkerID returns the id of this worker.  It is zero in the master.
func (sv *Supervisor) WorkerID() uint8 {
	sv.mx.Lock()
	defer sv.mx.Unlock()
	return sv.workerID
}

// WorkerCount returns the configured number of workers.
func (sv *Supervisor) WorkerCount() uint8 {
	return sv.cfg.Workers
}

// EventLog returns the in-memory log of supervisor events.
func (sv *Supervisor) EventLog() *EventLog {
	return sv.elog
}

// Gatherer exposes the supervisor's metrics.
func (sv *Supervisor) Gatherer() prometheus.Gatherer {
	return sv.metrics.reg
}

// Status returns a snapshot of the supervisor.
func (sv *Supervisor) Status() Status {
	sv.mx.Lock()
	st := Status{
		Role:         sv.role,
		WorkerID:     sv.workerID,
		Port:         sv.port,
		BasePort:     sv.basePort,
		PortPolicy:   sv.cfg.PortPolicy.resolve(),
		Workers:      sv.cfg.Workers,
		CPUs:         CPUs(),
		PhysicalCPUs: PhysicalCPUs(),
		StartTime:    sv.startTime,
	}
	if !sv.initialized {
		st.Role = RoleNone
	}
	sv.mx.Unlock()

	if st.Role == RoleMaster {
		st.Running = sv.call(func() {
			for _, s := range sv.slots {
				if s.active {
					st.Active++
				}
			}
			st.ShutdownRequested = sv.shutdownRequested
			st.RestartRequested = sv.restartRequested
		})
	}
	return st
}

// Workers returns a snapshot of every worker slot, in id order.  It
// returns nil if the supervisor loop is not running.
func (sv *Supervisor) Workers() []WorkerInfo {
	var rv []WorkerInfo
	sv.call(func() {
		rv = make([]WorkerInfo, 0, len(sv.slots))
		for _, s := range sv.slots {
			rv = append(rv, s.info())
		}
	})
	return rv
}

// SignalWorkers sends sig to every active worker.  Sending the stop signal
// this way counts as a deliberate stop: those workers are not respawned.
func (sv *Supervisor) SignalWorkers(sig os.Signal) error {
	if !sv.IsMaster() {
		sv.errorf("Only master can signal workers")
		return ErrNotMaster
	}
	if !sv.call(func() { sv.broadcast(sig) }) {
		return ErrNotRunning
	}
	return nil
}

// Terminate starts a graceful shutdown, exactly as SIGTERM does.  Only
// the first request has any effect; later ones return ErrShuttingDown.
func (sv *Supervisor) Terminate() error {
	if !sv.IsMaster() {
		return ErrNotMaster
	}
	var e error
	if !sv.call(func() { e = sv.terminate("requested") }) {
		return ErrNotRunning
	}
	return e
}

// RollingRestart replaces every active worker, exactly as SIGUSR2 does.
func (sv *Supervisor) RollingRestart() error {
	if !sv.IsMaster() {
		return ErrNotMaster
	}
	var e error
	if !sv.call(func() { e = sv.rollingRestart("requested") }) {
		return ErrNotRunning
	}
	return e
}

// Wait blocks until every worker has exited (or been killed after the
// shutdown timeout), then releases the supervisor's resources.
func (sv *Supervisor) Wait() error {
	if !sv.IsMaster() {
		sv.errorf("Only master can wait for workers")
		return ErrNotMaster
	}
	_, done := sv.chans()
	<-done
	sv.teardown()
	return nil
}

func (sv *Supervisor) teardown() {
	sv.cleanup.Do(func() {
		sv.stopSignals()
		if sv.killTimer != nil {
			sv.killTimer.Stop()
		}
		if sv.watcher != nil {
			sv.watcher.Close()
		}
		sv.mx.Lock()
		sv.initialized = false
		sv.slots = nil
		sv.args = nil
		sv.mx.Unlock()
		sv.logf("Supervisor stopped")
	})
}
