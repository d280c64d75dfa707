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
	"io"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultThrottleCount   = 3
	DefaultThrottleWindow  = 5 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultSpawnInterval   = 100 * time.Millisecond
	DefaultRespawnDelay    = 100 * time.Millisecond
	DefaultTitle           = "cluster"
)

// PortPolicy decides which port each worker is told to bind.
type PortPolicy int

const (
	// PortAuto picks PortShared where the kernel can balance a shared
	// port between processes, and PortPerWorker elsewhere.
	PortAuto PortPolicy = iota

	// PortShared gives every worker the base port.  The workers must bind
	// it with SO_REUSEPORT (see Listen).
	PortShared

	// PortPerWorker gives worker i the port base+i.
	PortPerWorker
)

func (p PortPolicy) String() string {
	switch p {
	case PortAuto:
		return "auto"
	case PortShared:
		return "shared"
	case PortPerWorker:
		return "per-worker"
	}
	return fmt.Sprintf("PortPolicy(%d)", int(p))
}

func (p PortPolicy) resolve() PortPolicy {
	if p == PortAuto {
		return defaultPortPolicy
	}
	return p
}

// ParsePortPolicy converts the manifest spelling of a policy.
func ParsePortPolicy(s string) (PortPolicy, error) {
	switch s {
	case "", "auto":
		return PortAuto, nil
	case "shared":
		return PortShared, nil
	case "per-worker":
		return PortPerWorker, nil
	}
	return PortAuto, fmt.Errorf("%w: unknown port policy %q", ErrConfigInvalid, s)
}

// Config describes the fleet.  It is copied by NewSupervisor and must not
// change once supervision begins.
type Config struct {
	Workers    uint8 // Number of workers, 1..255
	Respawn    bool  // Respawn crashed workers
	Port       uint16
	PortPolicy PortPolicy

	// OnStart is called after each successful spawn, including respawns.
	OnStart func(id uint8)

	// OnExit is called exactly once per worker exit, before any respawn
	// decision is made.
	OnExit func(id uint8, status ExitStatus)

	// A worker that crashes ThrottleCount times within ThrottleWindow is
	// never respawned again.
	ThrottleCount  int
	ThrottleWindow time.Duration

	// ShutdownTimeout is how long workers get to exit after a shutdown
	// request before they are killed.
	ShutdownTimeout time.Duration

	SpawnInterval time.Duration // Pause between initial spawns
	RespawnDelay  time.Duration // Pause before a respawn

	Title  string      // Prefix for process titles
	Logger *log.Logger // Extra destination for supervisor logs

	// DisableSignals stops the master from handling SIGTERM, SIGINT and
	// SIGUSR2.  The embedding program then calls Terminate and
	// RollingRestart itself.
	DisableSignals bool

	// WatchExecutable starts a rolling restart when the executable file
	// is replaced.
	WatchExecutable bool

	// Control launches workers.  Nil means the operating system.
	Control ProcessControl
}

// DefaultConfig returns a configuration with one worker per logical CPU,
// respawn enabled, and the stock throttle and timing values.
func DefaultConfig(port uint16) Config {
	return Config{
		Workers:         CPUs(),
		Respawn:         true,
		Port:            port,
		ThrottleCount:   DefaultThrottleCount,
		ThrottleWindow:  DefaultThrottleWindow,
		ShutdownTimeout: DefaultShutdownTimeout,
		SpawnInterval:   DefaultSpawnInterval,
		RespawnDelay:    DefaultRespawnDelay,
		Title:           DefaultTitle,
	}
}

// fill supplies defaults for values where zero is meaningless.
func (c *Config) fill() {
	if c.ThrottleCount == 0 {
		c.ThrottleCount = DefaultThrottleCount
	}
	if c.ThrottleWindow == 0 {
		c.ThrottleWindow = DefaultThrottleWindow
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.Control == nil {
		c.Control = ExecControl{}
	}
}

func (c *Config) validate() error {
	if c.Workers == 0 {
		return fmt.Errorf("%w: worker count must be at least 1", ErrConfigInvalid)
	}
	if c.Port == 0 {
		return fmt.Errorf("%w: port must be non-zero", ErrConfigInvalid)
	}
	if c.ThrottleCount < 1 || c.ThrottleWindow < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: bad throttle or timeout", ErrConfigInvalid)
	}
	if c.SpawnInterval < 0 || c.RespawnDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrConfigInvalid)
	}
	switch c.PortPolicy.resolve() {
	case PortShared:
	case PortPerWorker:
		if int(c.Port)+int(c.Workers)-1 > 65535 {
			return fmt.Errorf("%w: ports %d..%d out of range",
				ErrConfigInvalid, c.Port, int(c.Port)+int(c.Workers)-1)
		}
	default:
		return fmt.Errorf("%w: %v", ErrConfigInvalid, c.PortPolicy)
	}
	return nil
}

// ControlManifest configures the HTTP control plane of a master.
type ControlManifest struct {
	Listen   string `yaml:"listen" json:"listen" validate:"omitempty,hostname_port"`
	User     string `yaml:"user" json:"user" validate:"required_with=Password"`
	Password string `yaml:"password" json:"password"` // bcrypt hash
	MaxConns int    `yaml:"maxConns" json:"maxConns" validate:"min=0"`
}

// Manifest is the declarative (YAML) form of a Config.
type Manifest struct {
	Workers         int             `yaml:"workers" json:"workers" validate:"min=0,max=255"`
	Respawn         *bool           `yaml:"respawn" json:"respawn"`
	Port            int             `yaml:"port" json:"port" validate:"required,min=1,max=65535"`
	PortPolicy      string          `yaml:"portPolicy" json:"portPolicy" validate:"omitempty,oneof=auto shared per-worker"`
	ThrottleCount   int             `yaml:"throttleCount" json:"throttleCount" validate:"min=0,max=64"`
	ThrottleWindow  time.Duration   `yaml:"throttleWindow" json:"throttleWindow" validate:"min=0"`
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout" json:"shutdownTimeout" validate:"min=0"`
	SpawnInterval   time.Duration   `yaml:"spawnInterval" json:"spawnInterval" validate:"min=0"`
	RespawnDelay    time.Duration   `yaml:"respawnDelay" json:"respawnDelay" validate:"min=0"`
	Title           string          `yaml:"title" json:"title" validate:"omitempty,max=32"`
	WatchExecutable bool            `yaml:"watchExecutable" json:"watchExecutable"`
	Control         ControlManifest `yaml:"control" json:"control"`
}

var manifestValidator = validator.New()

// LoadManifest decodes and validates a YAML manifest.
func LoadManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if e := dec.Decode(m); e != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, e)
	}
	if e := manifestValidator.Struct(m); e != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, e)
	}
	return m, nil
}

// Config converts the manifest, starting from DefaultConfig.  A worker
// count of zero means one worker per logical CPU.
func (m *Manifest) Config() (Config, error) {
	c := DefaultConfig(uint16(m.Port))
	if m.Workers > 0 {
		c.Workers = uint8(m.Workers)
	}
	if m.Respawn != nil {
		c.Respawn = *m.Respawn
	}
	p, e := ParsePortPolicy(m.PortPolicy)
	if e != nil {
		return c, e
	}
	c.PortPolicy = p
	if m.ThrottleCount > 0 {
		c.ThrottleCount = m.ThrottleCount
	}
	if m.ThrottleWindow > 0 {
		c.ThrottleWindow = m.ThrottleWindow
	}
	if m.ShutdownTimeout > 0 {
		c.ShutdownTimeout = m.ShutdownTimeout
	}
	if m.SpawnInterval > 0 {
		c.SpawnInterval = m.SpawnInterval
	}
	if m.RespawnDelay > 0 {
		c.RespawnDelay = m.RespawnDelay
	}
	if m.Title != "" {
		c.Title = m.Title
	}
	c.WatchExecutable = m.WatchExecutable
	return c, nil
}
