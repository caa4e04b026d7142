// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package client speaks the bus broker protocol from the client side.
//
// Every service command is an effect operation. A protocol is a kont.Eff
// built from Perform calls or from the fused helpers, and runs on a Session
// with Exec or ExecError:
//
//	s, _ := client.Dial(k, "SPI::NOR")
//	protocol := client.InitRateThen(0, 0,
//		client.ReadBind(0, []byte{0x9F}, 3, func(id []byte) kont.Eff[[]byte] {
//			return client.CloseDone(id)
//		}))
//	r := client.ExecError(ctx, s, protocol)
//
// Each operation is one synchronous request on the session. Fused helpers
// throw a non-zero status as a [spi.Result] error, so they need ExecError;
// bare Perform protocols receive the status as a value and run under either.
// Step and Advance run a protocol one request at a time for callers that
// interleave it with other work.
package client
