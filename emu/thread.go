// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package emu

import (
	"context"
	"fmt"
	"runtime"

	"code.hybscloud.com/spi"
	"go.uber.org/zap"
)

// notifierDepth bounds undelivered notifications per handle.
const notifierDepth = 16

type notifier struct {
	ch chan uint32
}

// EnableNotification returns a handle that receives every later Notify.
func (k *Kernel) EnableNotification() (spi.Handle, error) {
	n := &notifier{ch: make(chan uint32, notifierDepth)}
	k.mu.Lock()
	k.notifies = append(k.notifies, n)
	k.mu.Unlock()
	return k.install(n), nil
}

// Notify delivers id to every enabled notification handle. A handle whose
// queue is full drops id.
func (k *Kernel) Notify(id uint32) {
	k.mu.Lock()
	targets := append([]*notifier(nil), k.notifies...)
	k.mu.Unlock()
	for _, n := range targets {
		select {
		case n.ch <- id:
		default:
			k.logger.Warn("notification dropped", zap.Uint32("id", id))
		}
	}
}

// ReceiveNotification blocks until a notification arrives on h or ctx is
// done.
func (k *Kernel) ReceiveNotification(ctx context.Context, h spi.Handle) (uint32, error) {
	obj, ok := k.lookup(h)
	n, isNotifier := obj.(*notifier)
	if !ok || !isNotifier {
		return 0, spi.ResultInvalidHandle
	}
	select {
	case id := <-n.ch:
		return id, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type thread struct {
	priority  int
	processor int
	done      chan struct{}
	err       error
}

// CreateThread runs entry on a goroutine locked to its own OS thread. A
// non-negative processor pins that thread to the CPU when affinity is
// enabled. A panic escaping entry ends the thread with an error.
func (k *Kernel) CreateThread(entry func() error, priority, processor int) (spi.Handle, error) {
	t := &thread{priority: priority, processor: processor, done: make(chan struct{})}
	h := k.install(t)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("emu: thread %d panicked: %v", h, r)
			}
		}()
		if k.affinity && processor >= 0 {
			if err := setAffinity(processor); err != nil {
				k.logger.Warn("set affinity failed", zap.Int("processor", processor), zap.Error(err))
			}
		}
		t.err = entry()
	}()
	return h, nil
}

// WaitThread blocks until the thread h returns and reports its error.
func (k *Kernel) WaitThread(h spi.Handle) error {
	obj, ok := k.lookup(h)
	t, isThread := obj.(*thread)
	if !ok || !isThread {
		return spi.ResultInvalidHandle
	}
	<-t.done
	return t.err
}
