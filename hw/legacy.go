// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hw

import "code.hybscloud.com/spi"

// Legacy control register bits.
const (
	LegacyEnable     = 1 << 15
	LegacySelectHold = 1 << 11
	LegacyBusy       = 1 << 7
)

// LegacyRegs is the register bank of a legacy bus controller.
type LegacyRegs interface {
	CNT() uint16
	SetCNT(v uint16)
	Data() uint8
	SetData(v uint8)
}

// Legacy is the byte-wise full-duplex transport. Chip select stays asserted
// while the select-hold bit is set and drops after the byte written with it
// cleared.
type Legacy struct {
	regs LegacyRegs
}

// NewLegacy returns a transport over regs.
func NewLegacy(regs LegacyRegs) *Legacy {
	return &Legacy{regs: regs}
}

func legacyCNT(dev spi.DeviceID, rate spi.Rate, hold bool) uint16 {
	v := uint16(LegacyEnable) | uint16(dev%3)<<8 | uint16(rate)
	if hold {
		v |= LegacySelectHold
	}
	return v
}

func (c *Legacy) wait() {
	for c.regs.CNT()&LegacyBusy != 0 {
	}
}

func (c *Legacy) write(p []byte) {
	for _, b := range p {
		c.regs.SetData(b)
		c.wait()
	}
}

func (c *Legacy) read(p []byte) {
	for i := range p {
		c.regs.SetData(0)
		c.wait()
		p[i] = c.regs.Data()
	}
}

// SendOnly implements spi.Transport.
func (c *Legacy) SendOnly(dev spi.DeviceID, rate spi.Rate, cmd []byte) {
	if len(cmd) == 0 {
		return
	}
	last := len(cmd) - 1
	c.regs.SetCNT(legacyCNT(dev, rate, true))
	c.write(cmd[:last])
	c.regs.SetCNT(legacyCNT(dev, rate, false))
	c.regs.SetData(cmd[last])
	c.wait()
}

// SendAndRead implements spi.Transport.
func (c *Legacy) SendAndRead(dev spi.DeviceID, rate spi.Rate, cmd, out []byte) {
	if len(out) == 0 {
		c.SendOnly(dev, rate, cmd)
		return
	}
	last := len(out) - 1
	c.regs.SetCNT(legacyCNT(dev, rate, true))
	c.write(cmd)
	c.read(out[:last])
	c.regs.SetCNT(legacyCNT(dev, rate, false))
	c.regs.SetData(0)
	c.wait()
	out[last] = c.regs.Data()
}

// SendAndWrite implements spi.Transport.
func (c *Legacy) SendAndWrite(dev spi.DeviceID, rate spi.Rate, cmd, in []byte) {
	if len(in) == 0 {
		c.SendOnly(dev, rate, cmd)
		return
	}
	last := len(in) - 1
	c.regs.SetCNT(legacyCNT(dev, rate, true))
	c.write(cmd)
	c.write(in[:last])
	c.regs.SetCNT(legacyCNT(dev, rate, false))
	c.regs.SetData(in[last])
	c.wait()
}
