// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package emu

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spi"
)

// Serial is a monotonically increasing session identifier.
// Each connection assigns the next serial value to both of its ends.
type Serial = uint32

// sessionCounter is the process-wide counter for session serials.
var sessionCounter atomix.Uint32

func nextSerial() Serial {
	return sessionCounter.Add(1)
}

// handleCounter allocates kernel handles. Values are never reused, so a
// stale handle fails lookup instead of aliasing a newer object.
type handleCounter struct {
	n atomix.Uint32
}

// next returns a fresh handle. Zero is reserved for "no handle".
func (c *handleCounter) next() spi.Handle {
	return spi.Handle(c.n.Add(1))
}
