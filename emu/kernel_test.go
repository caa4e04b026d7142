// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package emu_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/quick"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spi"
	"code.hybscloud.com/spi/emu"
)

func TestRegisterAndConnect(t *testing.T) {
	k := emu.NewKernel()
	if _, err := k.ConnectToService("x"); !errors.Is(err, spi.ResultNotFound) {
		t.Fatalf("connect to unknown = %v", err)
	}
	port, err := k.RegisterService("x", 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := k.RegisterService("x", 1); !errors.Is(err, spi.ResultAlreadyExists) {
		t.Fatalf("duplicate register = %v", err)
	}
	if _, err := k.AcceptSession(port); !iox.IsWouldBlock(err) {
		t.Fatalf("accept with nothing pending = %v", err)
	}

	if _, err := k.ConnectToService("x"); err != nil {
		t.Fatal(err)
	}
	var buf spi.CommandBuffer
	idx, err := k.ReplyAndReceive([]spi.Handle{port}, 0, &buf)
	if err != nil || idx != 0 {
		t.Fatalf("ReplyAndReceive = %d, %v", idx, err)
	}
	if _, err := k.AcceptSession(port); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := k.UnregisterService("x"); err != nil {
		t.Fatal(err)
	}
	if k.Registered("x") {
		t.Fatal("still registered")
	}
	if err := k.UnregisterService("x"); !errors.Is(err, spi.ResultNotFound) {
		t.Fatalf("second unregister = %v", err)
	}
	if err := k.CloseHandle(port); err != nil {
		t.Fatal(err)
	}
	if err := k.CloseHandle(port); !errors.Is(err, spi.ResultInvalidHandle) {
		t.Fatalf("double close = %v", err)
	}
}

// echo accepts one session on name and answers every request with its
// words incremented by one, until the client closes.
func echo(t *testing.T, k *emu.Kernel, name string) <-chan error {
	t.Helper()
	port, err := k.RegisterService(name, 1)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		var buf spi.CommandBuffer
		handles := []spi.Handle{port}
		var target spi.Handle
		for {
			idx, err := k.ReplyAndReceive(handles, target, &buf)
			target = 0
			if errors.Is(err, spi.ResultSessionClosed) {
				done <- k.CloseHandle(port)
				return
			}
			if err != nil {
				done <- err
				return
			}
			if idx == 0 {
				h, err := k.AcceptSession(port)
				if err != nil {
					done <- err
					return
				}
				handles = append(handles, h)
				continue
			}
			for i := 1; i < 4; i++ {
				buf.Words[i]++
			}
			target = handles[idx]
		}
	}()
	return done
}

func TestSessionRoundTrip(t *testing.T) {
	skipRace(t)
	k := emu.NewKernel()
	done := echo(t, k, "echo")

	h, err := k.ConnectToService("echo")
	if err != nil {
		t.Fatal(err)
	}
	property := func(a, b, c uint32) bool {
		var buf spi.CommandBuffer
		buf.Words[1], buf.Words[2], buf.Words[3] = a, b, c
		if err := k.SendSyncRequest(context.Background(), h, &buf); err != nil {
			return false
		}
		return buf.Words[1] == a+1 && buf.Words[2] == b+1 && buf.Words[3] == c+1
	}
	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
	_ = k.CloseHandle(h)
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestSessionMappingShared(t *testing.T) {
	skipRace(t)
	k := emu.NewKernel()
	port, _ := k.RegisterService("map", 1)
	h, _ := k.ConnectToService("map")

	region := make([]byte, 4)
	go func() {
		var buf spi.CommandBuffer
		k.ReplyAndReceive([]spi.Handle{port}, 0, &buf)
		s, _ := k.AcceptSession(port)
		k.ReplyAndReceive([]spi.Handle{port, s}, 0, &buf)
		m, _ := buf.Mapping(0x40, 4)
		copy(m, "spi!")
		k.ReplyAndReceive([]spi.Handle{port, s}, s, &buf)
	}()

	var buf spi.CommandBuffer
	buf.Map(0x40, region)
	if err := k.SendSyncRequest(context.Background(), h, &buf); err != nil {
		t.Fatal(err)
	}
	if string(region) != "spi!" {
		t.Fatalf("region %q", region)
	}
	_ = k.CloseHandle(h)
}

func TestClosedServerEnd(t *testing.T) {
	skipRace(t)
	k := emu.NewKernel()
	port, _ := k.RegisterService("gone", 1)
	h, _ := k.ConnectToService("gone")
	_ = k.CloseHandle(port)

	var buf spi.CommandBuffer
	if err := k.SendSyncRequest(context.Background(), h, &buf); !errors.Is(err, spi.ResultSessionClosed) {
		t.Fatalf("request on a session whose port closed = %v", err)
	}
}

func TestReplyToClosedTarget(t *testing.T) {
	skipRace(t)
	k := emu.NewKernel()
	port, _ := k.RegisterService("t", 1)
	h, _ := k.ConnectToService("t")
	s, _ := k.AcceptSession(port)
	_ = k.CloseHandle(h)

	var buf spi.CommandBuffer
	idx, err := k.ReplyAndReceive([]spi.Handle{port, s}, s, &buf)
	if idx != -1 || !errors.Is(err, spi.ResultSessionClosed) {
		t.Fatalf("ReplyAndReceive = %d, %v", idx, err)
	}
	idx, err = k.ReplyAndReceive([]spi.Handle{port, s}, 0, &buf)
	if idx != 1 || !errors.Is(err, spi.ResultSessionClosed) {
		t.Fatalf("ReplyAndReceive = %d, %v", idx, err)
	}
}

func TestSendSyncRequestContext(t *testing.T) {
	skipRace(t)
	k := emu.NewKernel()
	k.RegisterService("slow", 1)
	h, _ := k.ConnectToService("slow")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var buf spi.CommandBuffer
	if err := k.SendSyncRequest(ctx, h, &buf); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("SendSyncRequest = %v", err)
	}
}

func TestArbiterNoLostWakeup(t *testing.T) {
	skipRace(t)
	k := emu.NewKernel()
	h, err := k.CreateAddressArbiter()
	if err != nil {
		t.Fatal(err)
	}
	var word atomix.Int32
	word.Store(-1)

	const waiters = 4
	var wg sync.WaitGroup
	for range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.ArbitrateAddress(h, &word, spi.ArbitrationWaitIfLessThan, 0)
		}()
	}
	deadline := time.Now().Add(5 * time.Second)
	for k.Parked(h, &word) != waiters {
		if time.Now().After(deadline) {
			t.Fatal("waiters did not park")
		}
		time.Sleep(time.Millisecond)
	}

	word.Store(1)
	k.ArbitrateAddress(h, &word, spi.ArbitrationSignal, 1)
	if n := k.Parked(h, &word); n != waiters-1 {
		t.Fatalf("parked after one signal = %d", n)
	}
	k.ArbitrateAddress(h, &word, spi.ArbitrationSignal, -1)
	wg.Wait()

	// Word not below the threshold: returns at once.
	if err := k.ArbitrateAddress(h, &word, spi.ArbitrationWaitIfLessThan, 0); err != nil {
		t.Fatal(err)
	}
	if err := k.ArbitrateAddress(spi.Handle(0xFFFF), &word, spi.ArbitrationSignal, 1); !errors.Is(err, spi.ResultInvalidHandle) {
		t.Fatalf("bad handle = %v", err)
	}
}

func TestArbiterCloseReleasesWaiters(t *testing.T) {
	skipRace(t)
	k := emu.NewKernel()
	h, _ := k.CreateAddressArbiter()
	var word atomix.Int32
	word.Store(-1)
	done := make(chan struct{})
	go func() {
		k.ArbitrateAddress(h, &word, spi.ArbitrationWaitIfLessThan, 0)
		close(done)
	}()
	for k.Parked(h, &word) != 1 {
		time.Sleep(time.Millisecond)
	}
	_ = k.CloseHandle(h)
	<-done
}

func TestNotifications(t *testing.T) {
	k := emu.NewKernel()
	h, _ := k.EnableNotification()
	k.Notify(7)
	id, err := k.ReceiveNotification(context.Background(), h)
	if err != nil || id != 7 {
		t.Fatalf("ReceiveNotification = %d, %v", id, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := k.ReceiveNotification(ctx, h); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled receive = %v", err)
	}
	_ = k.CloseHandle(h)
	if _, err := k.ReceiveNotification(context.Background(), h); !errors.Is(err, spi.ResultInvalidHandle) {
		t.Fatalf("receive on closed handle = %v", err)
	}
}

func TestThreads(t *testing.T) {
	k := emu.NewKernel()
	want := errors.New("exit")
	h, err := k.CreateThread(func() error { return want }, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := k.WaitThread(h); !errors.Is(err, want) {
		t.Fatalf("WaitThread = %v", err)
	}

	h, _ = k.CreateThread(func() error { panic("boom") }, 20, -2)
	if err := k.WaitThread(h); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("WaitThread after panic = %v", err)
	}
}

func TestConfigReg(t *testing.T) {
	var r emu.ConfigReg
	r.Set(1 << 0)
	r.Set(1 << 2)
	r.Clear(1 << 0)
	if r.Load() != 1<<2 {
		t.Fatalf("Load = %#x", r.Load())
	}
}
