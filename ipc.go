// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi

import "encoding/binary"

// CommandBufferWords is the capacity of a per-thread command buffer.
const CommandBufferWords = 64

// InlineCapacity is the largest payload, in bytes, moved inline by the
// transfer commands.
const InlineCapacity = 64

// idleHeader is written into word 0 before a wait with no reply target, so a
// stale header is never mistaken for a reply.
const idleHeader = 0xFFFF0000

// Header is the first word of a request or reply:
// [command:16][reserved:4][normal:6][translate:6].
type Header uint32

// MakeHeader builds a header word.
func MakeHeader(command uint16, normal, translate uint32) Header {
	return Header(uint32(command)<<16 | (normal&0x3F)<<6 | translate&0x3F)
}

// Command returns the command id.
func (h Header) Command() uint16 { return uint16(h >> 16) }

// Normal returns the count of normal parameter words.
func (h Header) Normal() uint32 { return uint32(h) >> 6 & 0x3F }

// Translate returns the count of translate parameter words.
func (h Header) Translate() uint32 { return uint32(h) & 0x3F }

// Is reports whether h has exactly the given shape.
func (h Header) Is(command uint16, normal, translate uint32) bool {
	return h == MakeHeader(command, normal, translate)
}

// Buffer descriptor access rights.
const (
	BufferRead      = 1 << 1
	BufferWrite     = 1 << 2
	BufferReadWrite = BufferRead | BufferWrite

	bufferDescTag = 0x8
)

// BufferDesc builds a buffer descriptor word for size bytes with the given
// access rights.
func BufferDesc(size uint32, rights uint32) uint32 {
	return size<<4 | bufferDescTag | rights
}

// IsBufferDesc reports whether desc is a buffer descriptor with exactly the
// given rights.
func IsBufferDesc(desc uint32, rights uint32) bool {
	return desc&0xF == bufferDescTag|rights
}

// BufferDescSize returns the size field of a buffer descriptor.
func BufferDescSize(desc uint32) uint32 { return desc >> 4 }

// mappingSlots bounds the buffer mappings one request can carry.
const mappingSlots = 2

type mapping struct {
	addr uint32
	data []byte
}

// CommandBuffer is the per-thread request/reply area shared with the kernel.
// Requests that move bulk data by reference carry a descriptor word and an
// address word; the kernel attaches the translated region with Map so the
// service can reach it through Mapping.
type CommandBuffer struct {
	Words    [CommandBufferWords]uint32
	mappings [mappingSlots]mapping
	mapped   int
}

// Header returns word 0 as a Header.
func (b *CommandBuffer) Header() Header { return Header(b.Words[0]) }

// SetHeader stores h into word 0.
func (b *CommandBuffer) SetHeader(h Header) { b.Words[0] = uint32(h) }

// Map attaches the region data at address addr. It reports false when the
// buffer already carries the maximum number of mappings.
func (b *CommandBuffer) Map(addr uint32, data []byte) bool {
	if b.mapped == mappingSlots {
		return false
	}
	b.mappings[b.mapped] = mapping{addr: addr, data: data}
	b.mapped++
	return true
}

// Mapping returns the first size bytes of the region attached at addr.
func (b *CommandBuffer) Mapping(addr uint32, size uint32) ([]byte, bool) {
	for i := range b.mapped {
		m := &b.mappings[i]
		if m.addr == addr && uint64(size) <= uint64(len(m.data)) {
			return m.data[:size], true
		}
	}
	return nil, false
}

// Unmap drops all attached regions.
func (b *CommandBuffer) Unmap() {
	for i := range b.mapped {
		b.mappings[i] = mapping{}
	}
	b.mapped = 0
}

// Bytes copies the little-endian byte view of words[from:] into dst and
// returns the number of bytes copied.
func (b *CommandBuffer) Bytes(from int, dst []byte) int {
	n := 0
	for i := from; i < CommandBufferWords && n < len(dst); i++ {
		var w [4]byte
		binary.LittleEndian.PutUint32(w[:], b.Words[i])
		n += copy(dst[n:], w[:])
	}
	return n
}

// PutBytes stores src as little-endian words starting at words[from],
// zero-padding the last word.
func (b *CommandBuffer) PutBytes(from int, src []byte) {
	for i := from; i < CommandBufferWords && len(src) > 0; i++ {
		var w [4]byte
		n := copy(w[:], src)
		b.Words[i] = binary.LittleEndian.Uint32(w[:])
		src = src[n:]
	}
}
