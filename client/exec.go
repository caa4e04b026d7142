// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"context"

	"code.hybscloud.com/kont"
)

// callHandler implements kont.Handler for service operations.
// A transport error stops evaluation and is reported through err.
// Value type: passed to evalFrames on the stack, avoiding heap allocation.
type callHandler[R any] struct {
	c   *callContext
	err *error
}

// Dispatch implements kont.Handler via structural interface assertion.
func (h callHandler[R]) Dispatch(op kont.Operation) (kont.Resumed, bool) {
	cop, ok := op.(callDispatcher)
	if !ok {
		panic("client: unhandled effect in callHandler")
	}
	v, err := cop.DispatchCall(h.c)
	if err != nil {
		*h.err = err
		var zero R
		return zero, false
	}
	return v, true
}

// Exec runs a protocol on s. Each operation is one synchronous request;
// a transport failure such as the service closing the session stops the
// protocol and is returned. Status words are left to the protocol.
func Exec[R any](ctx context.Context, s *Session, protocol kont.Eff[R]) (R, error) {
	s.c.ctx = ctx
	defer func() { s.c.ctx = nil }()
	var err error
	h := callHandler[R]{c: &s.c, err: &err}
	r := kont.Handle(protocol, h)
	if err != nil {
		var zero R
		return zero, err
	}
	return r, nil
}
