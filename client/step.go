// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"context"

	"code.hybscloud.com/kont"
)

// Step evaluates protocol until its first service operation.
// Returns (result, nil) on completion, or (zero, suspension) if an
// operation is pending. The protocol is reified once, so stepping a long
// protocol does not grow the stack. Only service operations can be
// stepped; a protocol that throws is run with ExecError instead.
func Step[R any](protocol kont.Eff[R]) (R, *kont.Suspension[R]) {
	return kont.StepExpr(kont.Reify(protocol))
}

// Advance performs the suspended operation as one request on s.
//
// On success the suspension is consumed and the protocol runs to its next
// operation or to completion. On a transport error the suspension is
// returned unconsumed; the caller may retry it or Discard it.
func Advance[R any](ctx context.Context, s *Session, susp *kont.Suspension[R]) (R, *kont.Suspension[R], error) {
	cop, ok := susp.Op().(callDispatcher)
	if !ok {
		panic("client: unhandled effect in Advance")
	}
	s.c.ctx = ctx
	v, err := cop.DispatchCall(&s.c)
	s.c.ctx = nil
	if err != nil {
		var zero R
		return zero, susp, err
	}
	result, next := susp.Resume(v)
	return result, next, nil
}
