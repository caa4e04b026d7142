// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spi"
	"code.hybscloud.com/spi/emu"
)

func TestArbiterClientLifecycle(t *testing.T) {
	k := emu.NewKernel()
	arb := spi.NewArbiterClient(k)
	if arb.Initialized() {
		t.Fatal("initialized before Init")
	}
	arb.Teardown() // never initialized: no-op

	if err := arb.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	open := k.Handles()
	if err := arb.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if k.Handles() != open {
		t.Fatalf("second Init created a handle: %d -> %d", open, k.Handles())
	}

	arb.Teardown()
	arb.Teardown()
	if arb.Initialized() {
		t.Fatal("initialized after Teardown")
	}
	if k.Handles() != 0 {
		t.Fatalf("handles=%d after Teardown, want 0", k.Handles())
	}
}

func TestArbiterClientInitFailure(t *testing.T) {
	k := emu.NewKernel(emu.WithArbiterLimit(0))
	arb := spi.NewArbiterClient(k)
	err := arb.Init()
	if !errors.Is(err, spi.ResultOutOfMemory) {
		t.Fatalf("Init error %v, want %v", err, spi.ResultOutOfMemory)
	}
	if arb.Initialized() {
		t.Fatal("initialized after failed Init")
	}
}

func TestArbiterClientWaitReturnsWhenNotLess(t *testing.T) {
	arb, k := newArbiter(t)
	var word atomix.Int32
	word.Store(3)
	arb.WaitIfLessThan(&word, 0)
	arb.Signal(&word, 1)
	if k.waits.Load() != 1 || k.signals.Load() != 1 {
		t.Fatalf("waits=%d signals=%d, want 1 and 1", k.waits.Load(), k.signals.Load())
	}
}

func TestArbiterClientKernelFailureIsFatal(t *testing.T) {
	arb, k := newArbiter(t)
	k.fail = spi.ResultInvalidHandle
	var word atomix.Int32
	fe := expectFatal(t, func() { arb.Signal(&word, 1) })
	if !errors.Is(fe, spi.ResultInvalidHandle) {
		t.Fatalf("fatal error %v does not wrap %v", fe, spi.ResultInvalidHandle)
	}
	fe = expectFatal(t, func() { arb.WaitIfLessThan(&word, 1) })
	if fe.Op == "" {
		t.Fatal("fatal error without op")
	}
}
