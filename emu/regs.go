// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package emu

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spi"
	"code.hybscloud.com/spi/hw"
)

// Peripheral is a chip on an emulated bus. Exchange shifts one byte out to
// the chip and returns the byte shifted back. Deselect marks the end of a
// chip-select frame.
type Peripheral interface {
	Exchange(out byte) byte
	Deselect()
}

// ConfigReg is an emulated mode register.
type ConfigReg struct {
	v atomix.Uint32
}

var _ spi.ConfigRegister = (*ConfigReg)(nil)

// Load implements spi.ConfigRegister.
func (r *ConfigReg) Load() uint16 { return uint16(r.v.Load()) }

// Set implements spi.ConfigRegister.
func (r *ConfigReg) Set(mask uint16) {
	for {
		old := r.v.Load()
		if r.v.CompareAndSwap(old, old|uint32(mask)) {
			return
		}
	}
}

// Clear implements spi.ConfigRegister.
func (r *ConfigReg) Clear(mask uint16) {
	for {
		old := r.v.Load()
		if r.v.CompareAndSwap(old, old&^uint32(mask)) {
			return
		}
	}
}

// LegacyBank emulates the registers of a legacy controller. Writing the
// data register shifts one byte with the chip selected in CNT.
type LegacyBank struct {
	cnt   uint16
	data  uint8
	busy  int
	chips [3]Peripheral

	// BusyPolls is how many CNT reads report busy after each byte.
	BusyPolls int
}

var _ hw.LegacyRegs = (*LegacyBank)(nil)

// CNT implements hw.LegacyRegs.
func (b *LegacyBank) CNT() uint16 {
	v := b.cnt
	if b.busy > 0 {
		b.busy--
		v |= hw.LegacyBusy
	}
	return v
}

// SetCNT implements hw.LegacyRegs.
func (b *LegacyBank) SetCNT(v uint16) { b.cnt = v &^ hw.LegacyBusy }

// Data implements hw.LegacyRegs.
func (b *LegacyBank) Data() uint8 { return b.data }

// SetData implements hw.LegacyRegs.
func (b *LegacyBank) SetData(v uint8) {
	if b.cnt&hw.LegacyEnable == 0 {
		return
	}
	b.busy = b.BusyPolls
	p := b.chips[(b.cnt>>8)&3%3]
	if p == nil {
		b.data = 0xFF
		return
	}
	b.data = p.Exchange(v)
	if b.cnt&hw.LegacySelectHold == 0 {
		p.Deselect()
	}
}

// EnhancedBank emulates the registers of an enhanced controller. Each FIFO
// access moves up to four bytes of the current block.
type EnhancedBank struct {
	cnt       uint32
	blockLen  uint32
	remaining uint32
	full      int
	chips     [3]Peripheral

	// FullPolls is how many status reads report a full FIFO before each
	// chunk.
	FullPolls int
}

var _ hw.EnhancedRegs = (*EnhancedBank)(nil)

func (b *EnhancedBank) chip() Peripheral { return b.chips[(b.cnt>>6)&3%3] }

// CNT implements hw.EnhancedRegs.
func (b *EnhancedBank) CNT() uint32 {
	v := b.cnt &^ hw.EnhancedBusy
	if b.cnt&hw.EnhancedEnable != 0 && b.remaining > 0 {
		v |= hw.EnhancedBusy
	}
	return v
}

// SetCNT implements hw.EnhancedRegs and starts a block.
func (b *EnhancedBank) SetCNT(v uint32) {
	b.cnt = v
	b.remaining = b.blockLen
	b.full = b.FullPolls
}

// SetDone implements hw.EnhancedRegs and ends the frame.
func (b *EnhancedBank) SetDone(uint32) {
	if p := b.chip(); p != nil {
		p.Deselect()
	}
	b.cnt = 0
	b.remaining = 0
}

// SetBlockLen implements hw.EnhancedRegs.
func (b *EnhancedBank) SetBlockLen(v uint32) { b.blockLen = v }

// Status implements hw.EnhancedRegs.
func (b *EnhancedBank) Status() uint32 {
	if b.full > 0 {
		b.full--
		return hw.EnhancedFIFOFull
	}
	b.full = b.FullPolls
	return 0
}

// SetFIFO implements hw.EnhancedRegs.
func (b *EnhancedBank) SetFIFO(v uint32) {
	if b.cnt&hw.EnhancedWrite == 0 {
		return
	}
	p := b.chip()
	for i := 0; i < 4 && b.remaining > 0; i++ {
		if p != nil {
			p.Exchange(byte(v >> (8 * i)))
		}
		b.remaining--
	}
}

// FIFO implements hw.EnhancedRegs.
func (b *EnhancedBank) FIFO() uint32 {
	if b.cnt&hw.EnhancedWrite != 0 {
		return 0
	}
	p := b.chip()
	var v uint32
	for i := 0; i < 4 && b.remaining > 0; i++ {
		in := byte(0xFF)
		if p != nil {
			in = p.Exchange(0)
		}
		v |= uint32(in) << (8 * i)
		b.remaining--
	}
	return v
}

// Board is an emulated set of bus controllers: one legacy and one enhanced
// bank per group sharing the same chips, plus the mode register.
type Board struct {
	Legacy   [spi.GroupCount]*LegacyBank
	Enhanced [spi.GroupCount]*EnhancedBank
	Config   *ConfigReg
}

// NewBoard returns a board with no chips attached.
func NewBoard() *Board {
	b := &Board{Config: &ConfigReg{}}
	for i := range b.Legacy {
		b.Legacy[i] = &LegacyBank{}
		b.Enhanced[i] = &EnhancedBank{}
	}
	return b
}

// Attach connects p as dev. It panics if dev is not mapped to a group.
func (b *Board) Attach(dev spi.DeviceID, p Peripheral) {
	g, ok := spi.GroupOf(dev)
	if !ok {
		panic("emu: attach to unmapped device")
	}
	b.Legacy[g].chips[dev%3] = p
	b.Enhanced[g].chips[dev%3] = p
}

// Hardware returns transports driving the board's banks.
func (b *Board) Hardware(opts ...hw.EnhancedOption) spi.Hardware {
	var h spi.Hardware
	for i := range h.Legacy {
		h.Legacy[i] = hw.NewLegacy(b.Legacy[i])
		h.Enhanced[i] = hw.NewEnhanced(b.Enhanced[i], opts...)
	}
	h.Config = b.Config
	return h
}

// Recorder is a Peripheral that records every frame it sees and answers
// with Respond, or 0xFF when Respond is nil.
type Recorder struct {
	// Respond returns the byte shifted back at position n of the current
	// frame.
	Respond func(n int, out byte) byte

	mu     sync.Mutex
	cur    []byte
	frames [][]byte
}

// Exchange implements Peripheral.
func (r *Recorder) Exchange(out byte) byte {
	r.mu.Lock()
	n := len(r.cur)
	r.cur = append(r.cur, out)
	respond := r.Respond
	r.mu.Unlock()
	if respond == nil {
		return 0xFF
	}
	return respond(n, out)
}

// Deselect implements Peripheral.
func (r *Recorder) Deselect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cur) == 0 {
		return
	}
	r.frames = append(r.frames, r.cur)
	r.cur = nil
}

// Frames returns the completed frames in order.
func (r *Recorder) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.frames))
	for i, f := range r.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Reset discards recorded frames.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = nil
	r.frames = nil
}
