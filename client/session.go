// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"fmt"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/spi"
)

// Caller performs synchronous requests on kernel sessions.
type Caller interface {
	SendSyncRequest(ctx context.Context, h spi.Handle, buf *spi.CommandBuffer) error
	CloseHandle(h spi.Handle) error
}

// Connector is a Caller that can also open sessions by name.
type Connector interface {
	Caller
	ConnectToService(name string) (spi.Handle, error)
}

// bufferAddr is the address the client publishes its transfer buffer at.
const bufferAddr = 0x0800_0000

// callContext is the per-session state operations dispatch against.
type callContext struct {
	ctx     context.Context
	caller  Caller
	session spi.Handle
	buf     spi.CommandBuffer
}

// call sends the request in c.buf and leaves the reply there.
func (c *callContext) call() error {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return c.caller.SendSyncRequest(ctx, c.session, &c.buf)
}

// status decodes the status word of a reply expected to carry header want.
// A rejection reply (command 0) is decoded too.
func (c *callContext) status(want spi.Header) (spi.Result, error) {
	h := c.buf.Header()
	if h != want && h != spi.MakeHeader(0, 1, 0) {
		return 0, fmt.Errorf("client: unexpected reply header %#08x, want %#08x", uint32(h), uint32(want))
	}
	return spi.Result(c.buf.Words[1]), nil
}

// callDispatcher is the structural interface for service operations.
// DispatchCall performs one request/reply exchange and returns the
// operation's resumption value, or a transport error.
type callDispatcher interface {
	DispatchCall(c *callContext) (kont.Resumed, error)
}

// Session is the client end of one service session.
type Session struct {
	c callContext
}

// NewSession wraps the session handle h, reached through caller.
func NewSession(caller Caller, h spi.Handle) *Session {
	return &Session{c: callContext{caller: caller, session: h}}
}

// Dial opens a session to name.
func Dial(k Connector, name string) (*Session, error) {
	h, err := k.ConnectToService(name)
	if err != nil {
		return nil, fmt.Errorf("client: connect %s: %w", name, err)
	}
	return NewSession(k, h), nil
}

// Handle returns the session handle.
func (s *Session) Handle() spi.Handle { return s.c.session }

// Close closes the session handle.
func (s *Session) Close() error {
	return s.c.caller.CloseHandle(s.c.session)
}
