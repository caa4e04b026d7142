// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package emu

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spi"
)

// arbiter parks threads on the address of a word. The compare in
// WaitIfLessThan and the enqueue happen under mu, which Signal also
// holds, so a signal issued after the word changed cannot be lost.
type arbiter struct {
	mu      sync.Mutex
	waiters map[*atomix.Int32][]chan struct{}
	closed  bool
}

// CreateAddressArbiter returns a new arbiter handle.
func (k *Kernel) CreateAddressArbiter() (spi.Handle, error) {
	k.mu.Lock()
	if k.arbiterLimit >= 0 && k.arbiters >= k.arbiterLimit {
		k.mu.Unlock()
		return 0, spi.ResultOutOfMemory
	}
	k.arbiters++
	k.mu.Unlock()
	return k.install(&arbiter{waiters: make(map[*atomix.Int32][]chan struct{})}), nil
}

// ArbitrateAddress parks the caller while word < value, or wakes up to
// value threads parked on word.
func (k *Kernel) ArbitrateAddress(h spi.Handle, word *atomix.Int32, typ spi.ArbitrationType, value int32) error {
	obj, ok := k.lookup(h)
	a, isArb := obj.(*arbiter)
	if !ok || !isArb {
		return spi.ResultInvalidHandle
	}
	switch typ {
	case spi.ArbitrationWaitIfLessThan:
		a.wait(word, value)
	case spi.ArbitrationSignal:
		a.signal(word, int(value))
	default:
		return spi.ResultNotImplemented
	}
	return nil
}

// Parked returns the number of threads parked on word under h.
func (k *Kernel) Parked(h spi.Handle, word *atomix.Int32) int {
	obj, ok := k.lookup(h)
	a, isArb := obj.(*arbiter)
	if !ok || !isArb {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.waiters[word])
}

func (a *arbiter) wait(word *atomix.Int32, threshold int32) {
	a.mu.Lock()
	if a.closed || word.Load() >= threshold {
		a.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	a.waiters[word] = append(a.waiters[word], ch)
	a.mu.Unlock()
	<-ch
}

// signal wakes up to count waiters in arrival order. A negative count
// wakes all of them.
func (a *arbiter) signal(word *atomix.Int32, count int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	q := a.waiters[word]
	if count < 0 || count > len(q) {
		count = len(q)
	}
	for _, ch := range q[:count] {
		close(ch)
	}
	if rest := q[count:]; len(rest) > 0 {
		a.waiters[word] = rest
	} else {
		delete(a.waiters, word)
	}
}

// close releases every parked thread.
func (a *arbiter) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for word, q := range a.waiters {
		for _, ch := range q {
			close(ch)
		}
		delete(a.waiters, word)
	}
}
