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

package hw_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/transparency-dev/armored-rot/internal/fault"
	"github.com/transparency-dev/armored-rot/internal/hw"
	"github.com/transparency-dev/armored-rot/internal/hw/simhw"
	"github.com/transparency-dev/armored-rot/mmio"
)

func testConfig() hw.Config {
	cfg := hw.DefaultConfig()
	cfg.PollLimit = 16
	cfg.EntropyDraws = 10
	cfg.LatchCycles = 30
	return cfg
}

func openEntropy(t *testing.T, b *simhw.Board, cfg hw.Config) *hw.EntropySource {
	t.Helper()

	e, err := hw.OpenEntropySource(b.Entropy, b.Clock, cfg)
	if err != nil {
		t.Fatalf("OpenEntropySource: %v", err)
	}

	return e
}

func openLatch(t *testing.T, b *simhw.Board, cfg hw.Config) *hw.DecisionLatch {
	t.Helper()

	l, err := hw.OpenDecisionLatch(b.Latch, b.Clock, cfg)
	if err != nil {
		t.Fatalf("OpenDecisionLatch: %v", err)
	}

	return l
}

func openCompute(t *testing.T, b *simhw.Board, cfg hw.Config) *hw.ComputeCore {
	t.Helper()

	c, err := hw.OpenComputeCore(b.Compute, cfg)
	if err != nil {
		t.Fatalf("OpenComputeCore: %v", err)
	}

	return c
}

func openFuse(t *testing.T, b *simhw.Board, cfg hw.Config) *hw.FuseMesh {
	t.Helper()

	f, err := hw.OpenFuseMesh(b.Fuse, cfg)
	if err != nil {
		t.Fatalf("OpenFuseMesh: %v", err)
	}

	return f
}

func TestOpenWrongDevice(t *testing.T) {
	b := simhw.NewBoard(nil)
	cfg := testConfig()

	for _, test := range []struct {
		name string
		open func() error
	}{
		{
			name: "entropy",
			open: func() error { _, err := hw.OpenEntropySource(b.Latch, b.Clock, cfg); return err },
		}, {
			name: "latch",
			open: func() error { _, err := hw.OpenDecisionLatch(b.Compute, b.Clock, cfg); return err },
		}, {
			name: "compute",
			open: func() error { _, err := hw.OpenComputeCore(b.Fuse, cfg); return err },
		}, {
			name: "fuse",
			open: func() error { _, err := hw.OpenFuseMesh(b.Entropy, cfg); return err },
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := test.open()

			if !errors.Is(err, fault.ErrHardwareTestFailed) {
				t.Fatalf("got %v, want ErrHardwareTestFailed", err)
			}

			var sigErr *mmio.SignatureError
			if !errors.As(err, &sigErr) {
				t.Fatalf("got %v, want wrapped *SignatureError", err)
			}
		})
	}
}

func TestProbe(t *testing.T) {
	b := simhw.NewBoard(nil)

	if err := hw.Probe(b.Entropy, b.Latch, b.Compute, b.Fuse); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if err := hw.Probe(b.Entropy, b.Latch, b.Compute, nil); !errors.Is(err, fault.ErrHardwareTestFailed) {
		t.Fatalf("Probe with missing fuse mesh: got %v, want ErrHardwareTestFailed", err)
	}

	if err := hw.Probe(b.Entropy, b.Compute, b.Latch, b.Fuse); !errors.Is(err, fault.ErrHardwareTestFailed) {
		t.Fatalf("Probe with swapped devices: got %v, want ErrHardwareTestFailed", err)
	}
}

func TestChallengeCache(t *testing.T) {
	b := simhw.NewBoard(nil)
	e := openEntropy(t, b, testConfig())

	salt := [hw.SaltSize]byte{1, 2, 3}

	first, err := e.Challenge(salt)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}

	second, err := e.Challenge(salt)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}

	if first != second {
		t.Error("repeated salt returned a different response")
	}
	if got, want := b.Entropy.Challenges, 1; got != want {
		t.Errorf("hardware challenges = %d, want %d", got, want)
	}

	salt[0] ^= 0xff

	third, err := e.Challenge(salt)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}

	if third == first {
		t.Error("different salt returned the cached response")
	}
	if got, want := b.Entropy.Challenges, 2; got != want {
		t.Errorf("hardware challenges = %d, want %d", got, want)
	}
}

func TestChallengeTimeout(t *testing.T) {
	b := simhw.NewBoard(nil)
	e := openEntropy(t, b, testConfig())
	b.Entropy.Stuck = true

	if _, err := e.Challenge([hw.SaltSize]byte{}); !errors.Is(err, fault.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}

	b.Entropy.Stuck = false

	// a timed out challenge must not populate the cache
	if _, err := e.Challenge([hw.SaltSize]byte{}); err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	if got, want := b.Entropy.Challenges, 2; got != want {
		t.Errorf("hardware challenges = %d, want %d", got, want)
	}
}

func TestEntropyPool(t *testing.T) {
	b := simhw.NewBoard(nil)
	e := openEntropy(t, b, testConfig())

	if got, want := b.Entropy.Reseeds, 1; got != want {
		t.Fatalf("reseeds after open = %d, want %d", got, want)
	}

	var draws [][]byte

	for i := 0; i < hw.PoolSize/64; i++ {
		buf := make([]byte, 64)

		if err := e.Entropy(buf); err != nil {
			t.Fatalf("Entropy draw %d: %v", i, err)
		}

		for _, prev := range draws {
			if bytes.Equal(prev, buf) {
				t.Fatalf("draw %d repeats earlier output", i)
			}
		}

		draws = append(draws, buf)
	}

	if got, want := b.Entropy.Reseeds, 1; got != want {
		t.Fatalf("reseeds while pool not exhausted = %d, want %d", got, want)
	}

	if err := e.Entropy(make([]byte, 1)); err != nil {
		t.Fatalf("Entropy: %v", err)
	}
	if got, want := b.Entropy.Reseeds, 2; got != want {
		t.Fatalf("reseeds after exhaustion = %d, want %d", got, want)
	}
}

func TestEntropyTooLarge(t *testing.T) {
	b := simhw.NewBoard(nil)
	e := openEntropy(t, b, testConfig())

	if err := e.Entropy(make([]byte, hw.PoolSize+1)); !errors.Is(err, fault.ErrInsufficientEntropy) {
		t.Fatalf("got %v, want ErrInsufficientEntropy", err)
	}

	if err := e.Entropy(make([]byte, hw.PoolSize)); err != nil {
		t.Fatalf("full pool request: %v", err)
	}
}

func TestEntropyTest(t *testing.T) {
	for _, test := range []struct {
		name    string
		step    time.Duration
		wantErr error
	}{
		{
			// 1000 draws of 512 bits over exactly one second
			name: "at floor",
			step: time.Second,
		}, {
			name:    "below floor",
			step:    1280 * time.Millisecond,
			wantErr: fault.ErrInsufficientEntropy,
		}, {
			name: "well above floor",
			step: time.Millisecond,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			b := simhw.NewBoard(nil)
			b.Entropy.ReseedDelay = 0

			cfg := hw.DefaultConfig()
			cfg.PollLimit = 16

			e := openEntropy(t, b, cfg)
			b.Clock.Step = test.step

			err := e.EntropyTest()

			if test.wantErr == nil {
				if err != nil {
					t.Fatalf("EntropyTest: %v", err)
				}
				return
			}

			if !errors.Is(err, test.wantErr) || !errors.Is(err, fault.ErrHardwareTestFailed) {
				t.Fatalf("got %v, want %v", err, test.wantErr)
			}
		})
	}
}

func TestEntropyTestStalledClock(t *testing.T) {
	b := simhw.NewBoard(nil)
	b.Entropy.ReseedDelay = 0
	e := openEntropy(t, b, testConfig())

	if err := e.EntropyTest(); !errors.Is(err, fault.ErrHardwareTestFailed) {
		t.Fatalf("got %v, want ErrHardwareTestFailed", err)
	}
}

func TestThroughput(t *testing.T) {
	for _, test := range []struct {
		bits    uint64
		elapsed int64
		want    uint64
	}{
		{bits: 512000, elapsed: 1e9, want: 512000},
		{bits: 512000, elapsed: 2e9, want: 256000},
		{bits: 1, elapsed: 3, want: 333333333},
		{bits: 512000, elapsed: 0, want: 0},
		{bits: 512000, elapsed: -1, want: 0},
	} {
		if got := hw.Throughput(test.bits, test.elapsed); got != test.want {
			t.Errorf("Throughput(%d, %d) = %d, want %d", test.bits, test.elapsed, got, test.want)
		}
	}
}

func TestEntropyZeroize(t *testing.T) {
	b := simhw.NewBoard(nil)
	e := openEntropy(t, b, testConfig())

	salt := [hw.SaltSize]byte{0xde, 0xad}

	if _, err := e.Challenge(salt); err != nil {
		t.Fatalf("Challenge: %v", err)
	}

	e.Zeroize()

	for off := uint32(mmio.ENTROPY_RESPONSE); off < mmio.ENTROPY_RESPONSE+hw.ResponseSize; off += 4 {
		if v := b.Entropy.Peek(off); v != 0 {
			t.Fatalf("response register %#x = %#x after Zeroize", off, v)
		}
	}

	for off := uint32(mmio.ENTROPY_POOL); off < mmio.ENTROPY_POOL+hw.PoolSize; off += 4 {
		if v := b.Entropy.Peek(off); v != 0 {
			t.Fatalf("pool register %#x = %#x after Zeroize", off, v)
		}
	}

	if _, err := e.Challenge(salt); err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	if got, want := b.Entropy.Challenges, 2; got != want {
		t.Errorf("cached response survived Zeroize: hardware challenges = %d, want %d", got, want)
	}
}

func TestWriteDecision(t *testing.T) {
	b := simhw.NewBoard(nil)
	l := openLatch(t, b, testConfig())

	if _, ok := l.Last(); ok {
		t.Fatal("decision reported before any commit")
	}

	for _, d := range []hw.Decision{0, 4, 0xff} {
		if err := l.WriteDecision(d); !errors.Is(err, fault.ErrIntegrityFailed) {
			t.Errorf("WriteDecision(%d): got %v, want ErrIntegrityFailed", d, err)
		}
	}

	if len(b.Latch.Committed) != 0 {
		t.Fatalf("invalid decisions reached the latch: %v", b.Latch.Committed)
	}

	if err := l.WriteDecision(hw.Allow); err != nil {
		t.Fatalf("WriteDecision(ALLOW): %v", err)
	}

	if got, ok := l.Last(); !ok || got != hw.Allow {
		t.Fatalf("Last() = %v, %t, want ALLOW", got, ok)
	}

	if err := l.WriteDecision(hw.Decision(9)); err == nil {
		t.Fatal("invalid decision accepted")
	}

	if got, _ := l.Last(); got != hw.Allow {
		t.Fatalf("invalid write changed last decision to %v", got)
	}
}

func TestWriteDecisionLate(t *testing.T) {
	b := simhw.NewBoard(nil)
	l := openLatch(t, b, testConfig())

	b.Latch.Latency = 11 * time.Nanosecond

	var committed []hw.Decision

	l.OnCommit = func(d hw.Decision, latency time.Duration, violation bool) {
		if !violation || latency != 11*time.Nanosecond {
			t.Errorf("OnCommit(%v, %v, %t)", d, latency, violation)
		}
		committed = append(committed, d)
	}

	if err := l.WriteDecision(hw.Deny); !errors.Is(err, fault.ErrTimingViolation) {
		t.Fatalf("got %v, want ErrTimingViolation", err)
	}

	if got, ok := l.Last(); !ok || got != hw.Deny {
		t.Fatalf("late decision not committed: Last() = %v, %t", got, ok)
	}

	if diff := cmp.Diff([]hw.Decision{hw.Deny}, committed); diff != "" {
		t.Errorf("OnCommit diff (-want +got):\n%s", diff)
	}
}

func TestWriteDecisionAtBound(t *testing.T) {
	b := simhw.NewBoard(nil)
	l := openLatch(t, b, testConfig())

	b.Latch.Latency = 10 * time.Nanosecond

	if err := l.WriteDecision(hw.Purge); err != nil {
		t.Fatalf("commit at bound: %v", err)
	}
}

func TestWriteDecisionTimeout(t *testing.T) {
	b := simhw.NewBoard(nil)
	l := openLatch(t, b, testConfig())

	b.Latch.Stuck = true

	if err := l.WriteDecision(hw.Allow); !errors.Is(err, fault.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if _, ok := l.Last(); ok {
		t.Fatal("timed out decision reported as committed")
	}
}

func TestTimingTest(t *testing.T) {
	b := simhw.NewBoard(nil)
	cfg := testConfig()
	l := openLatch(t, b, cfg)

	b.Latch.LatencyFn = func(n int) time.Duration {
		return time.Duration(n%3+1) * time.Nanosecond
	}

	if err := l.TimingTest(); err != nil {
		t.Fatalf("TimingTest: %v", err)
	}

	if got, want := len(b.Latch.Committed), cfg.LatchCycles; got != want {
		t.Fatalf("committed %d decisions, want %d", got, want)
	}

	for i, v := range b.Latch.Committed {
		if want := uint32(i%3 + 1); v != want {
			t.Fatalf("decision %d = %d, want %d", i, v, want)
		}
	}

	s := l.Stats()

	if s.Count != uint32(cfg.LatchCycles) || s.Violations != 0 {
		t.Errorf("Count %d Violations %d", s.Count, s.Violations)
	}
	if s.Min != time.Nanosecond || s.Max != 3*time.Nanosecond || s.Mean != 2*time.Nanosecond {
		t.Errorf("Min %v Max %v Mean %v", s.Min, s.Max, s.Mean)
	}

	want := make([]uint32, len(hw.LatencyBuckets)+1)
	want[0], want[1], want[2] = 10, 10, 10

	if diff := cmp.Diff(want, s.Histogram); diff != "" {
		t.Errorf("histogram diff (-want +got):\n%s", diff)
	}
}

func TestTimingTestViolation(t *testing.T) {
	b := simhw.NewBoard(nil)
	l := openLatch(t, b, testConfig())

	b.Latch.LatencyFn = func(n int) time.Duration {
		if n == 17 {
			return 2 * time.Microsecond
		}
		return 5 * time.Nanosecond
	}

	err := l.TimingTest()

	if !errors.Is(err, fault.ErrHardwareTestFailed) || !errors.Is(err, fault.ErrTimingViolation) {
		t.Fatalf("got %v, want ErrHardwareTestFailed wrapping ErrTimingViolation", err)
	}
	if got, want := len(b.Latch.Committed), 18; got != want {
		t.Errorf("TimingTest continued after violation: %d commits, want %d", got, want)
	}

	s := l.Stats()
	if s.Violations != 1 || s.Histogram[len(hw.LatencyBuckets)] != 1 {
		t.Errorf("Violations %d overflow bucket %d", s.Violations, s.Histogram[len(hw.LatencyBuckets)])
	}
}

func TestExecute(t *testing.T) {
	b := simhw.NewBoard(nil)
	c := openCompute(t, b, testConfig())

	in := []byte("delegated workload")

	got, err := c.Execute(in)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Fatalf("echo diff (-want +got):\n%s", diff)
	}

	b.Compute.Transform = bytes.ToUpper

	got, err = c.Execute(in)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if diff := cmp.Diff(bytes.ToUpper(in), got); diff != "" {
		t.Fatalf("transform diff (-want +got):\n%s", diff)
	}

	if _, err := c.Execute(make([]byte, mmio.COMPUTE_WINDOW_SIZE)); err != nil {
		t.Fatalf("Execute at window size: %v", err)
	}

	if _, err := c.Execute(make([]byte, mmio.COMPUTE_WINDOW_SIZE+1)); !errors.Is(err, hw.ErrPayloadTooLarge) {
		t.Fatalf("got %v, want ErrPayloadTooLarge", err)
	}
	if got, want := b.Compute.Executions, 3; got != want {
		t.Errorf("executions = %d, want %d", got, want)
	}
}

func TestExecuteTimeout(t *testing.T) {
	b := simhw.NewBoard(nil)
	c := openCompute(t, b, testConfig())
	b.Compute.Stuck = true

	if _, err := c.Execute([]byte{1}); !errors.Is(err, fault.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestIntegrityTest(t *testing.T) {
	for _, test := range []struct {
		name string
		lane int
		fail bool
	}{
		{name: "lanes agree"},
		{name: "lane 1 diverges", lane: 1, fail: true},
		{name: "lane 2 diverges", lane: 2, fail: true},
		{name: "lane 3 diverges", lane: 3, fail: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			b := simhw.NewBoard(nil)
			b.Compute.DivergentLane = test.lane
			c := openCompute(t, b, testConfig())

			err := c.IntegrityTest()

			if !test.fail {
				if err != nil {
					t.Fatalf("IntegrityTest: %v", err)
				}
				return
			}

			if !errors.Is(err, fault.ErrHardwareTestFailed) || !errors.Is(err, fault.ErrIntegrityFailed) {
				t.Fatalf("got %v, want ErrHardwareTestFailed wrapping ErrIntegrityFailed", err)
			}
		})
	}
}

func TestEnableMasking(t *testing.T) {
	b := simhw.NewBoard(nil)
	c := openCompute(t, b, testConfig())

	if err := c.EnableMasking(true, true, true); err != nil {
		t.Fatalf("EnableMasking: %v", err)
	}
	if got, want := b.Compute.Peek(mmio.REG_CONTROL), uint32(0b111); got != want {
		t.Fatalf("control = %#b, want %#b", got, want)
	}

	if err := c.EnableMasking(false, true, false); err != nil {
		t.Fatalf("EnableMasking: %v", err)
	}
	if got, want := b.Compute.Peek(mmio.REG_CONTROL), uint32(0b010); got != want {
		t.Fatalf("control = %#b, want %#b", got, want)
	}
}

func TestComputeZeroize(t *testing.T) {
	b := simhw.NewBoard(nil)
	c := openCompute(t, b, testConfig())

	if _, err := c.Execute(bytes.Repeat([]byte{0x5a}, 300)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := c.IntegrityTest(); err != nil {
		t.Fatalf("IntegrityTest: %v", err)
	}

	c.Zeroize()

	if got := b.Compute.NonZero(); len(got) != 0 {
		t.Fatalf("registers %#x not cleared", got)
	}
}

func TestContinuityTest(t *testing.T) {
	b := simhw.NewBoard(nil)
	f := openFuse(t, b, testConfig())

	if err := f.ContinuityTest(); err != nil {
		t.Fatalf("ContinuityTest: %v", err)
	}

	b.Fuse.Blown = []int{3, 17}

	err := f.ContinuityTest()
	if !errors.Is(err, fault.ErrHardwareTestFailed) || !errors.Is(err, fault.ErrIntegrityFailed) {
		t.Fatalf("got %v, want ErrHardwareTestFailed wrapping ErrIntegrityFailed", err)
	}

	var blown []int

	for i, s := range f.States() {
		if s == hw.Blown {
			blown = append(blown, i)
		}
	}

	if diff := cmp.Diff([]int{3, 17}, blown); diff != "" {
		t.Errorf("blown fuses diff (-want +got):\n%s", diff)
	}
}

func TestContinuityTimeout(t *testing.T) {
	b := simhw.NewBoard(nil)
	f := openFuse(t, b, testConfig())
	b.Fuse.Stuck = true

	if err := f.ContinuityTest(); !errors.Is(err, fault.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestSensors(t *testing.T) {
	b := simhw.NewBoard(nil)
	f := openFuse(t, b, testConfig())

	b.Fuse.Env.Temperature[2] = -15000
	b.Fuse.Env.Voltage[7] = 5500
	b.Fuse.Env.Light[1] = 1200
	b.Fuse.Env.Vibration[0] = 501

	got, err := f.Sensors()
	if err != nil {
		t.Fatalf("Sensors: %v", err)
	}

	want := hw.Snapshot{
		Temperature: [4]float32{25, 25, -15, 25},
		Light:       [2]int32{50, 1200},
		Vibration:   [4]int32{501, 10, 10, 10},
	}

	for i := range want.Voltage {
		want.Voltage[i] = float32(3300) / 1000
	}

	want.Voltage[7] = 5.5

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot diff (-want +got):\n%s", diff)
	}
}
