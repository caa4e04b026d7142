// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package emu is an in-process microkernel and bus board for running the
// service without hardware.
//
// [Kernel] implements spi.Kernel. Sessions are pairs of bounded lock-free
// SPSC queues; blocking calls poll them with iox.Backoff. Threads are
// goroutines locked to an OS thread and, on Linux, pinned to the requested
// processor.
//
// [Board] emulates the register banks of the bus controllers. Chips are
// [Peripheral] models attached by device id; [Recorder] captures the frames a
// chip sees.
package emu
