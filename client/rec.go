// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"errors"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/spi"
)

// Loop runs a recursive protocol.
// step returns Left(nextState) to continue or Right(result) to finish.
func Loop[S, A any](initial S, step func(S) kont.Eff[kont.Either[S, A]]) kont.Eff[A] {
	return kont.Bind(step(initial), func(e kont.Either[S, A]) kont.Eff[A] {
		if left, ok := e.GetLeft(); ok {
			return Loop(left, step)
		}
		right, _ := e.GetRight()
		return kont.Pure(right)
	})
}

// ErrPollExhausted is thrown by PollUntil when no read was accepted.
var ErrPollExhausted = errors.New("client: poll attempts exhausted")

// PollUntil sends cmd to dev and reads n bytes until done accepts the data,
// making at most attempts reads. It throws ErrPollExhausted otherwise.
func PollUntil(dev spi.DeviceID, cmd []byte, n, attempts int, done func([]byte) bool) kont.Eff[[]byte] {
	return Loop(attempts, func(left int) kont.Eff[kont.Either[int, []byte]] {
		if left <= 0 {
			return kont.ThrowError[error, kont.Either[int, []byte]](ErrPollExhausted)
		}
		return ReadBind(dev, cmd, n, func(data []byte) kont.Eff[kont.Either[int, []byte]] {
			if done(data) {
				return kont.Pure(kont.Right[int](data))
			}
			return kont.Pure(kont.Left[int, []byte](left - 1))
		})
	})
}
