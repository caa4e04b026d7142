// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi

import (
	"fmt"

	"code.hybscloud.com/atomix"
)

// Arbiter parks and wakes threads on a watched word.
// Both calls imply a full memory barrier.
type Arbiter interface {
	// WaitIfLessThan blocks while *word < threshold. It returns at once
	// when the condition does not hold. Spurious returns are allowed;
	// callers re-check their condition.
	WaitIfLessThan(word *atomix.Int32, threshold int32)
	// Signal wakes up to count threads parked on word.
	Signal(word *atomix.Int32, count int32)
}

// ArbiterClient is the process-wide handle to the kernel address arbiter.
// Every LightLock in the process borrows one ArbiterClient; none owns it.
//
// Init and Teardown are called once each, at service start and stop.
type ArbiterClient struct {
	k      ArbiterKernel
	handle Handle
}

// NewArbiterClient returns an uninitialized client over k.
func NewArbiterClient(k ArbiterKernel) *ArbiterClient {
	return &ArbiterClient{k: k}
}

// Init creates the kernel arbitration object. It is a no-op when the client
// is already initialized.
func (a *ArbiterClient) Init() error {
	if a.handle != 0 {
		return nil
	}
	h, err := a.k.CreateAddressArbiter()
	if err != nil {
		return fmt.Errorf("spi: create address arbiter: %w", err)
	}
	a.handle = h
	return nil
}

// Teardown releases the arbitration object. Safe to call repeatedly and on a
// client that was never initialized.
func (a *ArbiterClient) Teardown() {
	if a.handle == 0 {
		return
	}
	_ = a.k.CloseHandle(a.handle)
	a.handle = 0
}

// Initialized reports whether Init succeeded and Teardown has not run since.
func (a *ArbiterClient) Initialized() bool { return a.handle != 0 }

// WaitIfLessThan implements Arbiter. A kernel failure is fatal.
func (a *ArbiterClient) WaitIfLessThan(word *atomix.Int32, threshold int32) {
	if err := a.k.ArbitrateAddress(a.handle, word, ArbitrationWaitIfLessThan, threshold); err != nil {
		fatal("arbitrate wait", err)
	}
}

// Signal implements Arbiter. A kernel failure is fatal.
func (a *ArbiterClient) Signal(word *atomix.Int32, count int32) {
	if err := a.k.ArbitrateAddress(a.handle, word, ArbitrationSignal, count); err != nil {
		fatal("arbitrate signal", err)
	}
}
