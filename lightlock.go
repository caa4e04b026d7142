// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi

import "code.hybscloud.com/atomix"

// LightLock is a mutual-exclusion lock over a single word.
//
// The sign of the word encodes the lock state (negative = held) and the
// magnitude is 1 + the number of parked waiters. Zero is never written by the
// lock and reads as 1 (free, no waiters).
//
// The uncontended path is a single compare-and-swap. Contended callers
// publish themselves as waiters and park on the Arbiter until woken; each
// Unlock wakes exactly one of them. There is no timeout and no fairness
// beyond that single wake.
//
// A LightLock must not be copied after first use.
type LightLock struct {
	word atomix.Int32
	arb  Arbiter
}

// NewLightLock returns a free lock parking on arb.
func NewLightLock(arb Arbiter) *LightLock {
	l := &LightLock{arb: arb}
	l.Init()
	return l
}

// Init drives the word to free with no waiters.
func (l *LightLock) Init() {
	for {
		old := l.word.Load()
		if l.word.CompareAndSwap(old, 1) {
			return
		}
	}
}

// Lock acquires l, parking while another holder owns it.
func (l *LightLock) Lock() {
	var held bool
	for {
		val := l.word.Load()
		next := val
		if next == 0 {
			next = 1
		}
		held = next < 0
		if held {
			// One more waiter; the magnitude grows away from zero.
			next--
		} else {
			next = -next
		}
		if l.word.CompareAndSwap(val, next) {
			break
		}
	}

	for held {
		l.arb.WaitIfLessThan(&l.word, 0)
		for {
			val := l.word.Load()
			if val < 0 {
				// Still held: cancel the attempt and park again.
				break
			}
			// Claim it and drop this waiter from the count.
			if l.word.CompareAndSwap(val, -(val - 1)) {
				held = false
				break
			}
		}
	}
}

// TryLock acquires l only if it is free and reports whether it did.
func (l *LightLock) TryLock() bool {
	for {
		val := l.word.Load()
		next := val
		if next == 0 {
			next = 1
		}
		if next < 0 {
			return false
		}
		if l.word.CompareAndSwap(val, -next) {
			return true
		}
	}
}

// Unlock releases l and wakes one parked waiter if any was recorded.
func (l *LightLock) Unlock() {
	var val int32
	for {
		old := l.word.Load()
		val = -old
		if l.word.CompareAndSwap(old, val) {
			break
		}
	}
	if val > 1 {
		l.arb.Signal(&l.word, 1)
	}
}

// Held reports whether l is currently held by someone.
func (l *LightLock) Held() bool { return l.word.Load() < 0 }

// Waiters returns the number of recorded waiters.
func (l *LightLock) Waiters() int32 {
	val := l.word.Load()
	switch {
	case val < 0:
		return -val - 1
	case val == 0:
		return 0
	default:
		return val - 1
	}
}
