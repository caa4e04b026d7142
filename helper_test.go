// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi_test

import (
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spi"
	"code.hybscloud.com/spi/emu"
)

// countingKernel counts arbitration calls on top of an emulated kernel.
type countingKernel struct {
	*emu.Kernel
	waits   atomix.Uint32
	signals atomix.Uint32
	fail    error
}

func (k *countingKernel) ArbitrateAddress(h spi.Handle, word *atomix.Int32, typ spi.ArbitrationType, value int32) error {
	if k.fail != nil {
		return k.fail
	}
	if typ == spi.ArbitrationSignal {
		k.signals.Add(1)
	} else {
		k.waits.Add(1)
	}
	return k.Kernel.ArbitrateAddress(h, word, typ, value)
}

// newArbiter returns an initialized arbiter client over a counting kernel.
func newArbiter(t testing.TB) (*spi.ArbiterClient, *countingKernel) {
	t.Helper()
	k := &countingKernel{Kernel: emu.NewKernel()}
	arb := spi.NewArbiterClient(k)
	if err := arb.Init(); err != nil {
		t.Fatalf("arbiter init: %v", err)
	}
	t.Cleanup(arb.Teardown)
	return arb, k
}

// transfer is one call seen by a recordingTransport.
type transfer struct {
	kind string
	dev  spi.DeviceID
	rate spi.Rate
	cmd  []byte
	data []byte
}

// recordingTransport records calls, fills reads with fill and reports
// overlapping calls.
type recordingTransport struct {
	fill  byte
	delay time.Duration

	mu      sync.Mutex
	calls   []transfer
	active  int
	overlap bool
}

func (r *recordingTransport) enter() {
	r.mu.Lock()
	r.active++
	if r.active > 1 {
		r.overlap = true
	}
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
}

func (r *recordingTransport) leave(t transfer) {
	r.mu.Lock()
	r.active--
	r.calls = append(r.calls, t)
	r.mu.Unlock()
}

func (r *recordingTransport) SendAndRead(dev spi.DeviceID, rate spi.Rate, cmd, out []byte) {
	r.enter()
	for i := range out {
		out[i] = r.fill
	}
	r.leave(transfer{kind: "read", dev: dev, rate: rate, cmd: append([]byte(nil), cmd...), data: append([]byte(nil), out...)})
}

func (r *recordingTransport) SendAndWrite(dev spi.DeviceID, rate spi.Rate, cmd, in []byte) {
	r.enter()
	r.leave(transfer{kind: "write", dev: dev, rate: rate, cmd: append([]byte(nil), cmd...), data: append([]byte(nil), in...)})
}

func (r *recordingTransport) SendOnly(dev spi.DeviceID, rate spi.Rate, cmd []byte) {
	r.enter()
	r.leave(transfer{kind: "send", dev: dev, rate: rate, cmd: append([]byte(nil), cmd...)})
}

func (r *recordingTransport) Calls() []transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transfer(nil), r.calls...)
}

func (r *recordingTransport) Overlapped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overlap
}

// rig is a bus set over recording transports.
type rig struct {
	legacy   [spi.GroupCount]*recordingTransport
	enhanced [spi.GroupCount]*recordingTransport
	cfg      *emu.ConfigReg
	buses    *spi.BusSet
	kernel   *countingKernel
}

func newRig(t testing.TB) *rig {
	t.Helper()
	arb, k := newArbiter(t)
	r := &rig{cfg: &emu.ConfigReg{}, kernel: k}
	var hw spi.Hardware
	for i := range hw.Legacy {
		r.legacy[i] = &recordingTransport{fill: 0xA0 + byte(i)}
		r.enhanced[i] = &recordingTransport{fill: 0xE0 + byte(i)}
		hw.Legacy[i] = r.legacy[i]
		hw.Enhanced[i] = r.enhanced[i]
	}
	hw.Config = r.cfg
	r.buses = spi.NewBusSet(arb, hw)
	return r
}

// expectFatal runs f and returns the *spi.FatalError it panics with.
func expectFatal(t *testing.T, f func()) (fe *spi.FatalError) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected fatal panic")
		}
		var ok bool
		fe, ok = r.(*spi.FatalError)
		if !ok {
			t.Fatalf("panic value %T, want *spi.FatalError", r)
		}
	}()
	f()
	return nil
}

// waitFor polls cond with backoff until it holds or the deadline passes.
func waitFor(t testing.TB, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var bo iox.Backoff
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		bo.Wait()
	}
}
