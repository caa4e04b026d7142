// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package hw drives the bus controllers at register level.
//
// [Legacy] shifts one byte at a time through an 8-bit data register and polls
// a busy bit after each byte. [Enhanced] moves 32-bit words through a FIFO
// with a block length register. Both implement [code.hybscloud.com/spi.Transport]
// and busy-poll the hardware; neither ever suspends on the kernel except for
// the rate-dependent pause of long enhanced reads.
package hw
