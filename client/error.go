// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"context"

	"code.hybscloud.com/kont"
)

// callErrorHandler handles both service and error effects.
// Service ops perform one request each; a transport failure and a Throw
// both short-circuit to Left.
// Value type: passed to evalFrames on the stack, avoiding heap allocation.
type callErrorHandler[A any] struct {
	c      *callContext
	errCtx *kont.ErrorContext[error]
}

// Dispatch implements kont.Handler for the composed Call+Error handler.
// Dispatch order: Call → Error.
func (h callErrorHandler[A]) Dispatch(op kont.Operation) (kont.Resumed, bool) {
	if cop, ok := op.(callDispatcher); ok {
		v, err := cop.DispatchCall(h.c)
		if err != nil {
			return kont.Left[error, A](err), false
		}
		return v, true
	}
	if eop, ok := op.(interface {
		DispatchError(ctx *kont.ErrorContext[error]) (kont.Resumed, bool)
	}); ok {
		v, _ := eop.DispatchError(h.errCtx)
		if h.errCtx.HasErr {
			return kont.Left[error, A](h.errCtx.Err), false
		}
		return v, true
	}
	panic("client: unhandled effect in callErrorHandler")
}

// ExecError runs a protocol with error handling on s.
// Returns Either[error, R]: Right on success, Left on a transport failure
// or a Throw, including the failed status thrown by the fused helpers.
func ExecError[R any](ctx context.Context, s *Session, protocol kont.Eff[R]) kont.Either[error, R] {
	s.c.ctx = ctx
	defer func() { s.c.ctx = nil }()
	wrapped := kont.Map[kont.Resumed, R, kont.Either[error, R]](protocol, func(r R) kont.Either[error, R] {
		return kont.Right[error, R](r)
	})
	var errCtx kont.ErrorContext[error]
	h := callErrorHandler[R]{c: &s.c, errCtx: &errCtx}
	return kont.Handle(wrapped, h)
}
