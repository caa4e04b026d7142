// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi

import (
	"encoding/binary"

	"go.uber.org/zap"
)

// Command ids.
const (
	CmdInitDeviceRate       = 0x1
	CmdProbe                = 0x2
	CmdSendAndReadInline    = 0x3
	CmdSendAndWriteInline   = 0x4
	CmdSendOnly             = 0x5
	CmdSendAndReadBuffer    = 0x6
	CmdSendAndWriteBuffer   = 0x7
	CmdSetDeviceModeAndRate = 0x8
	CmdSetGroup2Mode        = 0x9
)

// Request shapes, as (normal, translate) word counts.
var requestShapes = map[uint16][2]uint32{
	CmdInitDeviceRate:       {2, 0},
	CmdProbe:                {0, 0},
	CmdSendAndReadInline:    {4, 0},
	CmdSendAndWriteInline:   {20, 0},
	CmdSendOnly:             {3, 0},
	CmdSendAndReadBuffer:    {4, 2},
	CmdSendAndWriteBuffer:   {4, 2},
	CmdSetDeviceModeAndRate: {3, 0},
	CmdSetGroup2Mode:        {1, 0},
}

// RequestHeader returns the header a well-formed request for command carries.
func RequestHeader(command uint16) (Header, bool) {
	shape, ok := requestShapes[command]
	if !ok {
		return 0, false
	}
	return MakeHeader(command, shape[0], shape[1]), true
}

// Word offsets of the inline write payload.
const (
	inlineWriteData   = 4
	inlineWriteLength = 20
	inlineReadData    = 2
)

// Dispatcher decodes one request buffer, runs it against the bus set and
// encodes the reply in place.
type Dispatcher struct {
	buses  *BusSet
	logger *zap.Logger
}

// NewDispatcher returns a dispatcher over buses. A nil logger discards.
func NewDispatcher(buses *BusSet, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{buses: buses, logger: logger}
}

// Handle services the request in buf and leaves the reply in buf.
// Client mistakes come back as a status word; an unmapped device id is fatal.
func (d *Dispatcher) Handle(buf *CommandBuffer) {
	w := &buf.Words
	h := buf.Header()
	cmd := h.Command()

	want, known := RequestHeader(cmd)
	if !known {
		d.reject(buf, ResultInvalidHeader)
		return
	}
	if h != want {
		if cmd == CmdSendAndReadBuffer || cmd == CmdSendAndWriteBuffer {
			d.reject(buf, ResultInvalidIPCParameter)
		} else {
			d.reject(buf, ResultInvalidHeader)
		}
		return
	}

	switch cmd {
	case CmdInitDeviceRate:
		d.buses.InitDeviceRate(DeviceID(w[1]), Rate(w[2]))
		d.ack(buf, cmd)

	case CmdProbe:
		d.ack(buf, cmd)

	case CmdSendAndReadInline:
		dev := DeviceID(w[1])
		cmdBytes := commandBytes(w[2], w[3])
		n := w[4]
		var res Result
		if n > InlineCapacity || cmdBytes == nil {
			res = ResultOutOfRange
		} else {
			var data [InlineCapacity]byte
			res = d.buses.SendAndRead(dev, cmdBytes, data[:n])
			if res == 0 {
				buf.PutBytes(inlineReadData, data[:])
			}
		}
		buf.SetHeader(MakeHeader(cmd, 17, 0))
		w[1] = uint32(res)

	case CmdSendAndWriteInline:
		dev := DeviceID(w[1])
		cmdBytes := commandBytes(w[2], w[3])
		n := w[inlineWriteLength]
		var res Result
		if n > InlineCapacity || cmdBytes == nil {
			res = ResultOutOfRange
		} else {
			var data [InlineCapacity]byte
			buf.Bytes(inlineWriteData, data[:n])
			res = d.buses.SendAndWrite(dev, cmdBytes, data[:n])
		}
		buf.SetHeader(MakeHeader(cmd, 1, 0))
		w[1] = uint32(res)

	case CmdSendOnly:
		dev := DeviceID(w[1])
		cmdBytes := commandBytes(w[2], w[3])
		res := ResultOutOfRange
		if cmdBytes != nil {
			res = d.buses.SendOnly(dev, cmdBytes)
		}
		buf.SetHeader(MakeHeader(cmd, 1, 0))
		w[1] = uint32(res)

	case CmdSendAndReadBuffer, CmdSendAndWriteBuffer:
		d.handleBuffer(buf, cmd)

	case CmdSetDeviceModeAndRate:
		d.buses.SetDeviceModeAndRate(DeviceID(w[1]), uint8(w[2]) != 0, Rate(w[3]))
		d.ack(buf, cmd)

	case CmdSetGroup2Mode:
		d.buses.SetGroup2Mode(uint8(w[1]) != 0)
		d.ack(buf, cmd)
	}
}

func (d *Dispatcher) handleBuffer(buf *CommandBuffer, cmd uint16) {
	w := &buf.Words
	rights := uint32(BufferWrite)
	if cmd == CmdSendAndWriteBuffer {
		rights = BufferRead
	}
	desc, addr := w[5], w[6]
	if !IsBufferDesc(desc, rights) {
		d.reject(buf, ResultInvalidIPCParameter)
		return
	}
	size := BufferDescSize(desc)
	data, ok := buf.Mapping(addr, size)
	if !ok {
		d.reject(buf, ResultInvalidIPCParameter)
		return
	}

	dev := DeviceID(w[1])
	cmdBytes := commandBytes(w[2], w[3])
	res := ResultOutOfRange
	if cmdBytes != nil {
		if cmd == CmdSendAndReadBuffer {
			res = d.buses.SendAndRead(dev, cmdBytes, data)
		} else {
			res = d.buses.SendAndWrite(dev, cmdBytes, data)
		}
	}
	buf.SetHeader(MakeHeader(cmd, 1, 2))
	w[1] = uint32(res)
	w[2] = BufferDesc(size, rights)
	w[3] = addr
}

func (d *Dispatcher) ack(buf *CommandBuffer, cmd uint16) {
	buf.SetHeader(MakeHeader(cmd, 1, 0))
	buf.Words[1] = 0
}

func (d *Dispatcher) reject(buf *CommandBuffer, res Result) {
	d.logger.Debug("reject request",
		zap.Uint32("header", buf.Words[0]),
		zap.NamedError("result", res))
	buf.SetHeader(MakeHeader(0, 1, 0))
	buf.Words[1] = uint32(res)
}

// commandBytes returns the first n little-endian bytes of word, or nil when n
// exceeds MaxCommandBytes.
func commandBytes(word, n uint32) []byte {
	if n > MaxCommandBytes {
		return nil
	}
	b := make([]byte, MaxCommandBytes)
	binary.LittleEndian.PutUint32(b, word)
	return b[:n]
}
