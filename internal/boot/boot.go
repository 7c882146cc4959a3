// Copyright 2026 The Armored RoT authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package boot implements the boot orchestrator, the state machine driving
// verification, trust anchor initialization, self-tests and the periodic
// runtime checks.
//
// Verification failures are terminal (EmergencyShutdown), driver and
// self-test failures at boot degrade to SafeMode. Once Running, integrity
// and physical tamper failures are unrecoverable faults which zeroize the
// trust anchors and halt, while driver self-test failures degrade to
// SafeMode.
package boot

import (
	"errors"
	"fmt"
	"io"

	"k8s.io/klog"

	"github.com/transparency-dev/armored-rot/api"
	"github.com/transparency-dev/armored-rot/internal/fault"
	"github.com/transparency-dev/armored-rot/internal/guard"
	"github.com/transparency-dev/armored-rot/internal/hw"
	"github.com/transparency-dev/armored-rot/internal/manifest"
	"github.com/transparency-dev/armored-rot/internal/metrics"
	"github.com/transparency-dev/armored-rot/internal/policy"
	"github.com/transparency-dev/armored-rot/internal/verify"
)

// Processor controls the CPU executing the firmware.
type Processor interface {
	DisableInterrupts()
	// Halt parks the processor, on hardware it never returns.
	Halt()
}

// Zeroizer wipes the secret material held by a component.
type Zeroizer interface {
	Zeroize()
}

// Platform holds everything the orchestrator takes ownership of.
type Platform struct {
	// Memory is the physical address space.
	Memory    io.ReaderAt
	Devices   verify.Devices
	Clock     hw.Clock
	Processor Processor
	// Connections is optional.
	Connections guard.ConnectionProbe

	Reference *manifest.Reference
	// Policy defaults to the embedded corpus.
	Policy []byte

	HW    hw.Config
	Guard guard.Config
	Bands guard.Bands

	// Metrics is optional.
	Metrics *metrics.Collector

	Revision string
	Build    string
	Version  string
	// SoCProtection is reported as is in the status.
	SoCProtection string
}

// Orchestrator represents the boot state machine, it is the single owner of
// every trust anchor driver.
type Orchestrator struct {
	p     Platform
	state State
	// cause of the current degraded or terminal state
	err error

	ctx    SecureBootContext
	bootTS int64
	beats  uint64

	entropy *hw.EntropySource
	latch   *hw.DecisionLatch
	compute *hw.ComputeCore
	fuse    *hw.FuseMesh
	guard   *guard.Guard
	tamper  *guard.TamperDetection
}

// New returns an orchestrator in VerifyingBoot.
func New(p Platform) *Orchestrator {
	if p.Policy == nil {
		p.Policy = policy.Corpus
	}

	return &Orchestrator{p: p}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.state
}

// Err returns the error which caused the current degraded or terminal
// state.
func (o *Orchestrator) Err() error {
	return o.err
}

// Context returns a copy of the secure boot context.
func (o *Orchestrator) Context() SecureBootContext {
	return o.ctx
}

func (o *Orchestrator) transition(to State) {
	klog.Infof("SM %s -> %s", o.state, to)
	o.p.Metrics.Transition(o.state.String(), to.String())
	o.state = to
}

// Boot runs verification, driver initialization and self-tests and returns
// the resulting state. It runs only once, later calls return the current
// state.
func (o *Orchestrator) Boot() State {
	if o.state != VerifyingBoot {
		return o.state
	}

	o.ctx.BootTimestamp = o.p.Clock.Nanotime()
	o.bootTS = o.ctx.BootTimestamp

	defer o.ctx.Zeroize()

	v := verify.New(o.p.Memory, o.p.Devices, o.p.Reference)
	v.Policy = o.p.Policy

	if err := v.Execute(); err != nil {
		o.shutdown(err)
		return o.state
	}

	o.ctx.MarkCryptoVerified()
	o.ctx.MarkFoundationVerified()

	o.transition(HardwareInit)

	if err := o.initHardware(); err != nil {
		o.degrade(err)
		return o.state
	}

	o.transition(SelfTest)

	if err := o.selfTest(); err != nil {
		o.degrade(err)
		return o.state
	}

	if !o.ctx.Complete() {
		o.degrade(errors.New("boot milestones incomplete"))
		return o.state
	}

	o.transition(Running)

	return o.state
}

func (o *Orchestrator) initHardware() (err error) {
	if o.entropy != nil {
		return errors.New("hardware already initialized")
	}

	d := o.p.Devices
	clk := o.p.Clock
	cfg := o.p.HW

	entropy, err := hw.OpenEntropySource(d.Entropy, clk, cfg)

	if err != nil {
		return fmt.Errorf("entropy source: %w", err)
	}

	latch, err := hw.OpenDecisionLatch(d.Latch, clk, cfg)

	if err != nil {
		return fmt.Errorf("decision latch: %w", err)
	}

	if o.p.Metrics != nil {
		latch.OnCommit = o.p.Metrics.Decision
	}

	compute, err := hw.OpenComputeCore(d.Compute, cfg)

	if err != nil {
		return fmt.Errorf("compute core: %w", err)
	}

	fuse, err := hw.OpenFuseMesh(d.Fuse, cfg)

	if err != nil {
		return fmt.Errorf("fuse mesh: %w", err)
	}

	o.entropy, o.latch, o.compute, o.fuse = entropy, latch, compute, fuse

	if err = o.ctx.Seed(entropy); err != nil {
		return fmt.Errorf("boot entropy seed: %w", err)
	}

	o.ctx.MarkHardwareAvailable()

	o.tamper = guard.NewTamperDetection(fuse, o.p.Bands)

	g := guard.New(o.p.Memory, clk, o.p.Guard)
	g.Connections = o.p.Connections
	g.Tamper = o.tamper
	g.SideChannel = guard.NewSideChannel(compute)

	if err = g.Enable(); err != nil {
		return fmt.Errorf("integrity guard: %w", err)
	}

	o.guard = g

	return
}

type check struct {
	name string
	run  func() error
}

func (o *Orchestrator) driverChecks() []check {
	return []check{
		{"entropy", o.entropy.EntropyTest},
		{"latch", o.latchTimingTest},
		{"compute", o.compute.IntegrityTest},
	}
}

func (o *Orchestrator) selfTest() error {
	checks := append(o.driverChecks(),
		check{"fuse", o.fuse.ContinuityTest},
		check{"guard", o.guard.VerifyProtection},
	)

	for _, c := range checks {
		err := c.run()
		o.p.Metrics.Check(c.name, err)

		if err != nil {
			return fmt.Errorf("%s self-test: %w", c.name, err)
		}

		klog.V(1).Infof("SM %s self-test passed", c.name)
	}

	return nil
}

// latchTimingTest runs the timing test and restores the committed decision
// it overwrites, the latch is left on DENY when none was committed.
func (o *Orchestrator) latchTimingTest() error {
	prev, ok := o.latch.Last()

	if err := o.latch.TimingTest(); err != nil {
		return err
	}

	if !ok {
		prev = hw.Deny
	}

	return o.latch.WriteDecision(prev)
}

// Tick runs the periodic runtime checks, it must only be called while
// Running.
//
// Guard, tamper and fuse continuity failures are unrecoverable and end in
// Halted, driver self-test failures move the orchestrator to SafeMode. The
// failing check error is returned in both cases.
func (o *Orchestrator) Tick() error {
	if o.state != Running {
		return fmt.Errorf("periodic check in %s: %w", o.state, fault.ErrHardwareNotInitialized)
	}

	for _, c := range []check{
		{"guard", o.guard.VerifyProtection},
		{"tamper", o.tamper.Poll},
		{"fuse", o.fuse.ContinuityTest},
	} {
		err := c.run()
		o.p.Metrics.Check(c.name, err)

		if err != nil {
			err = fmt.Errorf("%s check: %w", c.name, err)
			o.Fault(err)
			return err
		}
	}

	for _, c := range o.driverChecks() {
		err := c.run()
		o.p.Metrics.Check(c.name, err)

		if err != nil {
			err = fmt.Errorf("%s self-test: %w", c.name, err)
			o.degrade(err)
			return err
		}
	}

	return nil
}

func (o *Orchestrator) degrade(err error) {
	klog.Errorf("SM degraded, %v", err)
	o.err = err
	o.transition(SafeMode)
}

func (o *Orchestrator) shutdown(err error) {
	klog.Errorf("SM boot verification failed, %v", err)
	o.err = err
	o.transition(EmergencyShutdown)
	ZeroizeThenHalt(o.p.Processor, &o.ctx)
}

// Fault handles an unrecoverable fault in any state: the trust anchors are
// zeroized and the processor is halted.
func (o *Orchestrator) Fault(err error) {
	klog.Errorf("SM unrecoverable fault, %v", err)

	o.err = err
	o.p.Metrics.Fault()
	o.transition(Halted)

	ZeroizeThenHalt(o.p.Processor, o.zeroizers()...)
}

func (o *Orchestrator) zeroizers() (z []Zeroizer) {
	if o.entropy != nil {
		z = append(z, o.entropy)
	}

	if o.compute != nil {
		z = append(z, o.compute)
	}

	return append(z, &o.ctx)
}

// ZeroizeThenHalt wipes every component, and only then disables interrupts
// and parks the processor. Zeroization is best effort, a failing component
// does not prevent the halt.
func ZeroizeThenHalt(cpu Processor, z ...Zeroizer) {
	for _, c := range z {
		zeroize(c)
	}

	cpu.DisableInterrupts()
	cpu.Halt()
}

func zeroize(z Zeroizer) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("SM zeroization failed, %v", r)
		}
	}()

	z.Zeroize()
}

// Heartbeat returns the liveness frame, the only call served in SafeMode.
func (o *Orchestrator) Heartbeat() (*api.Heartbeat, error) {
	if o.state != Running && o.state != SafeMode {
		return nil, fmt.Errorf("heartbeat in %s: %w", o.state, fault.ErrHardwareNotInitialized)
	}

	o.beats++

	return &api.Heartbeat{
		State:     uint32(o.state),
		Sequence:  o.beats,
		Timestamp: o.p.Clock.Nanotime(),
	}, nil
}

// Status returns the status report.
func (o *Orchestrator) Status() *api.Status {
	s := &api.Status{
		Revision:      o.p.Revision,
		Build:         o.p.Build,
		Version:       o.p.Version,
		State:         o.state.String(),
		BootTimestamp: o.bootTS,
		SoCProtection: o.p.SoCProtection,
	}

	if o.err != nil {
		s.Fault = o.err.Error()
	}

	if o.latch != nil {
		if d, ok := o.latch.Last(); ok {
			s.Decision = uint32(d)
		}

		stats := o.latch.Stats()
		s.LatchCommits = stats.Count
		s.LatchViolations = stats.Violations
		s.LatchMaxLatency = stats.Max
	}

	if o.guard != nil {
		s.KillSwitchViolations = o.guard.Violations()
	}

	if o.tamper != nil {
		s.TamperViolations = o.tamper.Violations()
	}

	return s
}
