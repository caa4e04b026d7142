// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi

import (
	"context"

	"code.hybscloud.com/atomix"
)

// Handle names a kernel object. The zero Handle is never valid.
type Handle uint32

// ArbitrationType selects an address arbiter action.
type ArbitrationType uint32

// Arbitration actions.
const (
	// ArbitrationSignal wakes up to value threads parked on the address.
	ArbitrationSignal ArbitrationType = 0
	// ArbitrationWaitIfLessThan parks the caller while the word at the
	// address is strictly lower than value.
	ArbitrationWaitIfLessThan ArbitrationType = 1
)

// NotificationTerminate is the notification id announcing that the service
// must stop.
const NotificationTerminate = 0x100

// ArbiterKernel is the kernel surface backing ArbiterClient.
type ArbiterKernel interface {
	CreateAddressArbiter() (Handle, error)
	ArbitrateAddress(arbiter Handle, word *atomix.Int32, typ ArbitrationType, value int32) error
	CloseHandle(h Handle) error
}

// SessionKernel is the kernel surface a ServerLoop runs on.
type SessionKernel interface {
	// RegisterService publishes name and returns its port handle.
	RegisterService(name string, maxSessions int) (Handle, error)
	UnregisterService(name string) error
	// AcceptSession takes one pending session from port.
	AcceptSession(port Handle) (Handle, error)
	// ReplyAndReceive optionally replies to target with buf, then blocks
	// until one of handles is signalled and returns its index. A request
	// received on a session is copied into buf. A peer that closed its end
	// yields ResultSessionClosed with the index of that handle, or -1 when
	// it was the reply target.
	ReplyAndReceive(handles []Handle, target Handle, buf *CommandBuffer) (int, error)
	CloseHandle(h Handle) error
}

// Kernel is everything the Service needs from the kernel.
type Kernel interface {
	ArbiterKernel
	SessionKernel

	// ConnectToService opens a client session to name.
	ConnectToService(name string) (Handle, error)
	// EnableNotification returns a handle notifications are delivered on.
	EnableNotification() (Handle, error)
	// ReceiveNotification blocks until a notification arrives on h.
	ReceiveNotification(ctx context.Context, h Handle) (uint32, error)
	// CreateThread runs entry on a new thread with the given priority and
	// processor. A negative processor leaves placement to the kernel.
	CreateThread(entry func() error, priority, processor int) (Handle, error)
	// WaitThread blocks until the thread exits and returns its error.
	WaitThread(h Handle) error
}
