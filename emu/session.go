// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package emu

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
	"code.hybscloud.com/spi"
)

// channelCapacity is the bounded capacity for session transport queues.
// Requests are synchronous, so at most one message is in flight per
// direction; the slack absorbs a reply racing a close.
const channelCapacity = 4

// sessionContext holds the lock-free transport for one end of a session.
// Each direction is a single-producer single-consumer bounded queue.
type sessionContext struct {
	sendQ      *lfq.SPSC[spi.CommandBuffer]
	recvQ      *lfq.SPSC[spi.CommandBuffer]
	closed     *atomix.Uint32
	peerClosed *atomix.Uint32
	sendSlot   spi.CommandBuffer
}

// Endpoint is one end of a kernel session.
type Endpoint struct {
	ctx    sessionContext
	serial Serial
	server bool
}

// Serial returns the serial number shared by both ends of the session.
func (ep *Endpoint) Serial() Serial {
	return ep.serial
}

// PeerClosed reports whether the other end has been closed.
func (ep *Endpoint) PeerClosed() bool {
	return ep.ctx.peerClosed.Load() != 0
}

// send enqueues a copy of buf.
// Non-blocking: returns iox.ErrWouldBlock if the bounded queue is full.
func (ep *Endpoint) send(buf *spi.CommandBuffer) error {
	if ep.ctx.closed.Load() != 0 {
		return spi.ResultInvalidHandle
	}
	if ep.ctx.peerClosed.Load() != 0 {
		return spi.ResultSessionClosed
	}
	ep.ctx.sendSlot = *buf
	return ep.ctx.sendQ.Enqueue(&ep.ctx.sendSlot)
}

// tryRecv dequeues the next message into buf. A message queued before
// the peer closed is still delivered.
// Non-blocking: returns iox.ErrWouldBlock if the queue is empty.
func (ep *Endpoint) tryRecv(buf *spi.CommandBuffer) error {
	v, err := ep.ctx.recvQ.Dequeue()
	if err == nil {
		*buf = v
		return nil
	}
	if ep.ctx.peerClosed.Load() != 0 {
		return spi.ResultSessionClosed
	}
	return iox.ErrWouldBlock
}

func (ep *Endpoint) close() {
	ep.ctx.closed.Store(1)
}

// sessionPair holds both ends, queues and close flags in a single
// allocation. SPSC queues are embedded as values; only the ring buffers
// are separate heap objects.
type sessionPair struct {
	client       Endpoint
	server       Endpoint
	clientClosed atomix.Uint32
	serverClosed atomix.Uint32
	requests     lfq.SPSC[spi.CommandBuffer]
	replies      lfq.SPSC[spi.CommandBuffer]
}

// newSession creates a connected client/server pair.
func newSession() (client, server *Endpoint) {
	s := nextSerial()

	pair := &sessionPair{}
	pair.requests.Init(channelCapacity)
	pair.replies.Init(channelCapacity)

	pair.client = Endpoint{
		ctx: sessionContext{
			sendQ:      &pair.requests,
			recvQ:      &pair.replies,
			closed:     &pair.clientClosed,
			peerClosed: &pair.serverClosed,
		},
		serial: s,
	}
	pair.server = Endpoint{
		ctx: sessionContext{
			sendQ:      &pair.replies,
			recvQ:      &pair.requests,
			closed:     &pair.serverClosed,
			peerClosed: &pair.clientClosed,
		},
		serial: s,
		server: true,
	}
	return &pair.client, &pair.server
}
