// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"code.hybscloud.com/kont"
	"code.hybscloud.com/spi"
)

// The fused helpers below throw a failed status as an error, so protocols
// built from them run under ExecError.

// checked continues with next when res is success and throws res otherwise.
func checked[B any](next func() kont.Eff[B]) func(spi.Result) kont.Eff[B] {
	return func(res spi.Result) kont.Eff[B] {
		if res != 0 {
			return kont.ThrowError[error, B](res)
		}
		return next()
	}
}

// InitRateThen initializes dev at rate and then continues with next.
// Fuses Perform(InitRate{...}) + status check + Then.
func InitRateThen[B any](dev spi.DeviceID, rate spi.Rate, next kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(InitRate{Device: dev, Rate: rate}),
		checked(func() kont.Eff[B] { return next }))
}

// ProbeThen checks the service answers and then continues with next.
func ProbeThen[B any](next kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Probe{}),
		checked(func() kont.Eff[B] { return next }))
}

// ReadBind sends cmd to dev, reads n bytes inline and passes them to f.
// Fuses Perform(Read{...}) + status check + Bind.
func ReadBind[B any](dev spi.DeviceID, cmd []byte, n int, f func([]byte) kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Read{Device: dev, Cmd: cmd, Len: n}), func(r ReadReply) kont.Eff[B] {
		if r.Status != 0 {
			return kont.ThrowError[error, B](r.Status)
		}
		return f(r.Data)
	})
}

// WriteThen sends cmd and data to dev inline and then continues with next.
func WriteThen[B any](dev spi.DeviceID, cmd, data []byte, next kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Write{Device: dev, Cmd: cmd, Data: data}),
		checked(func() kont.Eff[B] { return next }))
}

// SendThen sends cmd to dev and then continues with next.
func SendThen[B any](dev spi.DeviceID, cmd []byte, next kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(Send{Device: dev, Cmd: cmd}),
		checked(func() kont.Eff[B] { return next }))
}

// ReadBufferThen sends cmd to dev, fills buf and then continues with next.
func ReadBufferThen[B any](dev spi.DeviceID, cmd, buf []byte, next kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(ReadBuffer{Device: dev, Cmd: cmd, Buf: buf}),
		checked(func() kont.Eff[B] { return next }))
}

// WriteBufferThen sends cmd and buf to dev and then continues with next.
func WriteBufferThen[B any](dev spi.DeviceID, cmd, buf []byte, next kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(WriteBuffer{Device: dev, Cmd: cmd, Buf: buf}),
		checked(func() kont.Eff[B] { return next }))
}

// SetModeThen switches dev's group mode, sets its rate and then continues
// with next.
func SetModeThen[B any](dev spi.DeviceID, enhanced bool, rate spi.Rate, next kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(SetMode{Device: dev, Enhanced: enhanced, Rate: rate}),
		checked(func() kont.Eff[B] { return next }))
}

// SetGroup2ModeThen switches group 2's mode and then continues with next.
func SetGroup2ModeThen[B any](enhanced bool, next kont.Eff[B]) kont.Eff[B] {
	return kont.Bind(kont.Perform(SetGroup2Mode{Enhanced: enhanced}),
		checked(func() kont.Eff[B] { return next }))
}

// CloseDone closes the session and returns a.
// Fuses Perform(Close{}) + Then + Pure.
func CloseDone[A any](a A) kont.Eff[A] {
	return kont.Then(kont.Perform(Close{}), kont.Pure(a))
}
