// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi_test

import (
	"sync"
	"testing"
	"testing/quick"

	"code.hybscloud.com/spi"
)

func TestLightLockUncontended(t *testing.T) {
	arb, k := newArbiter(t)
	l := spi.NewLightLock(arb)
	if l.Held() || l.Waiters() != 0 {
		t.Fatalf("fresh lock: held=%v waiters=%d", l.Held(), l.Waiters())
	}
	for range 100 {
		l.Lock()
		if !l.Held() {
			t.Fatal("lock not held after Lock")
		}
		l.Unlock()
	}
	if l.Held() {
		t.Fatal("lock held after Unlock")
	}
	if w, s := k.waits.Load(), k.signals.Load(); w != 0 || s != 0 {
		t.Fatalf("uncontended path reached the kernel: waits=%d signals=%d", w, s)
	}
}

func TestLightLockZeroWordReadsFree(t *testing.T) {
	var l spi.LightLock
	if !l.TryLock() {
		t.Fatal("zero-value lock should acquire")
	}
	if l.TryLock() {
		t.Fatal("TryLock succeeded on held lock")
	}
	if l.Waiters() != 0 {
		t.Fatalf("waiters=%d, want 0", l.Waiters())
	}
	// Unlock with no waiters never signals, so a missing arbiter is fine.
	l.Unlock()
	if l.Held() {
		t.Fatal("held after Unlock")
	}
}

func TestLightLockSingleWake(t *testing.T) {
	skipRace(t)
	arb, k := newArbiter(t)
	l := spi.NewLightLock(arb)
	l.Lock()

	acquired := make(chan struct{})
	go func() {
		l.Lock()
		close(acquired)
		l.Unlock()
	}()
	waitFor(t, "waiter to register", func() bool { return l.Waiters() == 1 })

	l.Unlock()
	<-acquired
	waitFor(t, "signal", func() bool { return k.signals.Load() == 1 })
	waitFor(t, "lock release", func() bool { return !l.Held() })
	if l.Waiters() != 0 {
		t.Fatalf("waiters=%d after hand-off, want 0", l.Waiters())
	}
}

func TestLightLockMutualExclusion(t *testing.T) {
	skipRace(t)
	arb, _ := newArbiter(t)
	l := spi.NewLightLock(arb)

	const workers, rounds = 8, 2000
	var inside, counter int
	var violated bool
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				l.Lock()
				inside++
				if inside != 1 {
					violated = true
				}
				counter++
				inside--
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	if violated {
		t.Fatal("two holders inside the critical section")
	}
	if counter != workers*rounds {
		t.Fatalf("counter=%d, want %d", counter, workers*rounds)
	}
	if l.Held() || l.Waiters() != 0 {
		t.Fatalf("final state: held=%v waiters=%d", l.Held(), l.Waiters())
	}
}

// TestPropertyLightLockSequential checks that any sequence of TryLock and
// Unlock calls on one goroutine matches a boolean model of the lock.
func TestPropertyLightLockSequential(t *testing.T) {
	arb, _ := newArbiter(t)
	property := func(ops []bool) bool {
		l := spi.NewLightLock(arb)
		held := false
		for _, try := range ops {
			if try {
				if l.TryLock() == held {
					return false
				}
				held = true
			} else if held {
				l.Unlock()
				held = false
			}
			if l.Held() != held || l.Waiters() != 0 {
				return false
			}
		}
		return true
	}
	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
}

func BenchmarkLightLockUncontended(b *testing.B) {
	arb, _ := newArbiter(b)
	l := spi.NewLightLock(arb)
	b.ReportAllocs()
	for b.Loop() {
		l.Lock()
		l.Unlock()
	}
}
