// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package spi implements a bus broker service for a microkernel: client
// processes reach shared hardware buses only through kernel sessions, and the
// service serializes their transfers per physical bus.
//
// # Architecture
//
//   - Locking: [LightLock] is a sign/magnitude word driven by compare-and-swap
//     with a park/wake fallback on the process-wide [ArbiterClient].
//   - Buses: [BusSet] maps logical devices onto three bus groups, each guarded
//     by one LightLock, and forwards transfers to a [Transport] in the group's
//     current protocol mode.
//   - Dispatch: [Dispatcher] decodes one [CommandBuffer], validates the header
//     shape, runs the command and encodes the reply in place.
//   - Sessions: [ServerLoop] owns a [SessionSet] (port in slot 0) and cycles
//     through the kernel's combined reply-and-receive call.
//   - Process: [Service] starts one loop thread per name, waits for the
//     terminate notification and joins the loops once their clients leave.
//
// The kernel is reached through [Kernel]; package
// code.hybscloud.com/spi/emu provides an in-process implementation and
// package code.hybscloud.com/spi/hw the register-level transports.
//
// # Errors
//
// Client mistakes come back as a non-zero [Result] in the reply. Kernel
// failures, out-of-range handle indices and unmapped device ids abort the
// owning loop with a [*FatalError].
//
// # Example
//
//	k := emu.NewKernel()
//	svc, _ := spi.NewService(k, hw, spi.DefaultConfig(false), logger)
//	go svc.Run(ctx)
//	k.Notify(spi.NotificationTerminate)
package spi
