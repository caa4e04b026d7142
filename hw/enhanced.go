// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hw

import (
	"encoding/binary"
	"time"

	"code.hybscloud.com/spi"
)

// Enhanced control and status register bits.
const (
	EnhancedEnable   = 1 << 15
	EnhancedBusy     = 1 << 15
	EnhancedWrite    = 1 << 13
	EnhancedRead     = 0
	EnhancedFIFOFull = 1 << 0

	// FIFOWidth is the number of bytes the FIFO takes between full checks.
	FIFOWidth = 32
)

// EnhancedRegs is the register bank of an enhanced bus controller.
type EnhancedRegs interface {
	CNT() uint32
	SetCNT(v uint32)
	SetDone(v uint32)
	SetBlockLen(v uint32)
	FIFO() uint32
	SetFIFO(v uint32)
	Status() uint32
}

// Enhanced is the FIFO-based transport. Long reads pause between FIFO
// chunks for a rate-dependent interval.
type Enhanced struct {
	regs  EnhancedRegs
	sleep func(time.Duration)
}

// EnhancedOption configures an Enhanced transport.
type EnhancedOption func(*Enhanced)

// WithSleep replaces the pause used during long reads.
func WithSleep(sleep func(time.Duration)) EnhancedOption {
	return func(c *Enhanced) { c.sleep = sleep }
}

// NewEnhanced returns a transport over regs.
func NewEnhanced(regs EnhancedRegs, opts ...EnhancedOption) *Enhanced {
	c := &Enhanced{regs: regs, sleep: time.Sleep}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReadPause returns the pause between FIFO chunks of a long read at rate.
func ReadPause(rate spi.Rate) time.Duration {
	switch rate {
	case 1:
		return 268800 * time.Nanosecond
	case 2:
		return 134400 * time.Nanosecond
	case 3:
		return 67200 * time.Nanosecond
	case 4:
		return 33600 * time.Nanosecond
	case 5:
		return 16800 * time.Nanosecond
	}
	return 537600 * time.Nanosecond
}

func enhancedCNT(dev spi.DeviceID, rate spi.Rate, dir uint32) uint32 {
	return EnhancedEnable | dir | uint32(dev%3)<<6 | uint32(rate)
}

func (c *Enhanced) waitIdle() {
	for c.regs.CNT()&EnhancedBusy != 0 {
	}
}

func (c *Enhanced) waitFIFO() {
	for c.regs.Status()&EnhancedFIFOFull != 0 {
	}
}

func (c *Enhanced) write(p []byte) {
	for i := 0; i < len(p); i += 4 {
		if i&(FIFOWidth-1) == 0 {
			c.waitFIFO()
		}
		var w [4]byte
		copy(w[:], p[i:])
		c.regs.SetFIFO(binary.LittleEndian.Uint32(w[:]))
	}
	c.waitIdle()
}

func (c *Enhanced) read(p []byte, pause time.Duration) {
	long := len(p) >= FIFOWidth*2
	for i := 0; i < len(p); i += 4 {
		if i&(FIFOWidth-1) == 0 {
			c.waitFIFO()
			if long {
				c.sleep(pause)
			}
		}
		var w [4]byte
		binary.LittleEndian.PutUint32(w[:], c.regs.FIFO())
		copy(p[i:], w[:])
	}
	c.waitIdle()
}

func (c *Enhanced) phase(dev spi.DeviceID, rate spi.Rate, dir uint32, n int) {
	c.regs.SetBlockLen(uint32(n))
	c.regs.SetCNT(enhancedCNT(dev, rate, dir))
}

// SendOnly implements spi.Transport.
func (c *Enhanced) SendOnly(dev spi.DeviceID, rate spi.Rate, cmd []byte) {
	c.waitIdle()
	c.phase(dev, rate, EnhancedWrite, len(cmd))
	c.write(cmd)
	c.regs.SetDone(0)
}

// SendAndRead implements spi.Transport.
func (c *Enhanced) SendAndRead(dev spi.DeviceID, rate spi.Rate, cmd, out []byte) {
	pause := ReadPause(rate)
	c.waitIdle()
	c.phase(dev, rate, EnhancedWrite, len(cmd))
	c.write(cmd)
	c.phase(dev, rate, EnhancedRead, len(out))
	c.read(out, pause)
	c.regs.SetDone(0)
}

// SendAndWrite implements spi.Transport.
func (c *Enhanced) SendAndWrite(dev spi.DeviceID, rate spi.Rate, cmd, in []byte) {
	c.waitIdle()
	c.phase(dev, rate, EnhancedWrite, len(cmd))
	c.write(cmd)
	c.phase(dev, rate, EnhancedWrite, len(in))
	c.write(in)
	c.regs.SetDone(0)
}
