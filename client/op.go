// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"encoding/binary"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/spi"
)

// cmdWord packs up to four command bytes little-endian.
func cmdWord(cmd []byte) uint32 {
	var w [4]byte
	copy(w[:], cmd)
	return binary.LittleEndian.Uint32(w[:])
}

func (c *callContext) request(command uint16) {
	h, _ := spi.RequestHeader(command)
	c.buf.Unmap()
	c.buf.SetHeader(h)
}

func (c *callContext) transfer(command uint16, dev spi.DeviceID, cmd []byte) {
	c.request(command)
	c.buf.Words[1] = uint32(dev)
	c.buf.Words[2] = cmdWord(cmd)
	c.buf.Words[3] = uint32(len(cmd))
}

// InitRate is the effect operation for command 0x1.
// Perform(InitRate{Device: d, Rate: r}) marks d initialized at rate r.
type InitRate struct {
	kont.Phantom[spi.Result]
	Device spi.DeviceID
	Rate   spi.Rate
}

// DispatchCall implements the session round trip for InitRate.
func (o InitRate) DispatchCall(c *callContext) (kont.Resumed, error) {
	c.request(spi.CmdInitDeviceRate)
	c.buf.Words[1] = uint32(o.Device)
	c.buf.Words[2] = uint32(o.Rate)
	return c.simple(spi.CmdInitDeviceRate)
}

// Probe is the effect operation for command 0x2, which only acknowledges.
type Probe struct {
	kont.Phantom[spi.Result]
}

// DispatchCall implements the session round trip for Probe.
func (Probe) DispatchCall(c *callContext) (kont.Resumed, error) {
	c.request(spi.CmdProbe)
	return c.simple(spi.CmdProbe)
}

// ReadReply is the result of Read.
type ReadReply struct {
	Status spi.Result
	Data   []byte
}

// Read is the effect operation for command 0x3: send Cmd to Device, then
// read Len bytes inline.
type Read struct {
	kont.Phantom[ReadReply]
	Device spi.DeviceID
	Cmd    []byte
	Len    int
}

// DispatchCall implements the session round trip for Read.
func (o Read) DispatchCall(c *callContext) (kont.Resumed, error) {
	c.transfer(spi.CmdSendAndReadInline, o.Device, o.Cmd)
	c.buf.Words[4] = uint32(o.Len)
	if err := c.call(); err != nil {
		return nil, err
	}
	res, err := c.status(spi.MakeHeader(spi.CmdSendAndReadInline, 17, 0))
	if err != nil {
		return nil, err
	}
	reply := ReadReply{Status: res}
	if res == 0 {
		reply.Data = make([]byte, o.Len)
		c.buf.Bytes(2, reply.Data)
	}
	return reply, nil
}

// Write is the effect operation for command 0x4: send Cmd to Device, then
// write Data inline.
type Write struct {
	kont.Phantom[spi.Result]
	Device spi.DeviceID
	Cmd    []byte
	Data   []byte
}

// DispatchCall implements the session round trip for Write.
func (o Write) DispatchCall(c *callContext) (kont.Resumed, error) {
	c.transfer(spi.CmdSendAndWriteInline, o.Device, o.Cmd)
	data := o.Data
	if len(data) > spi.InlineCapacity {
		data = data[:spi.InlineCapacity]
	}
	c.buf.PutBytes(4, data)
	c.buf.Words[20] = uint32(len(o.Data))
	return c.simple(spi.CmdSendAndWriteInline)
}

// Send is the effect operation for command 0x5: send Cmd to Device.
type Send struct {
	kont.Phantom[spi.Result]
	Device spi.DeviceID
	Cmd    []byte
}

// DispatchCall implements the session round trip for Send.
func (o Send) DispatchCall(c *callContext) (kont.Resumed, error) {
	c.transfer(spi.CmdSendOnly, o.Device, o.Cmd)
	return c.simple(spi.CmdSendOnly)
}

// ReadBuffer is the effect operation for command 0x6: send Cmd to Device,
// then read len(Buf) bytes into Buf through a write-mapped buffer.
type ReadBuffer struct {
	kont.Phantom[spi.Result]
	Device spi.DeviceID
	Cmd    []byte
	Buf    []byte
}

// DispatchCall implements the session round trip for ReadBuffer.
func (o ReadBuffer) DispatchCall(c *callContext) (kont.Resumed, error) {
	return c.buffered(spi.CmdSendAndReadBuffer, o.Device, o.Cmd, o.Buf, spi.BufferWrite)
}

// WriteBuffer is the effect operation for command 0x7: send Cmd to Device,
// then write Buf through a read-mapped buffer.
type WriteBuffer struct {
	kont.Phantom[spi.Result]
	Device spi.DeviceID
	Cmd    []byte
	Buf    []byte
}

// DispatchCall implements the session round trip for WriteBuffer.
func (o WriteBuffer) DispatchCall(c *callContext) (kont.Resumed, error) {
	return c.buffered(spi.CmdSendAndWriteBuffer, o.Device, o.Cmd, o.Buf, spi.BufferRead)
}

func (c *callContext) buffered(command uint16, dev spi.DeviceID, cmd, data []byte, rights uint32) (kont.Resumed, error) {
	c.transfer(command, dev, cmd)
	c.buf.Words[4] = uint32(len(data))
	c.buf.Words[5] = spi.BufferDesc(uint32(len(data)), rights)
	c.buf.Words[6] = bufferAddr
	c.buf.Map(bufferAddr, data)
	err := c.call()
	c.buf.Unmap()
	if err != nil {
		return nil, err
	}
	res, err := c.status(spi.MakeHeader(command, 1, 2))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SetMode is the effect operation for command 0x8: switch Device's group
// to the enhanced or legacy protocol and set its rate.
type SetMode struct {
	kont.Phantom[spi.Result]
	Device   spi.DeviceID
	Enhanced bool
	Rate     spi.Rate
}

// DispatchCall implements the session round trip for SetMode.
func (o SetMode) DispatchCall(c *callContext) (kont.Resumed, error) {
	c.request(spi.CmdSetDeviceModeAndRate)
	c.buf.Words[1] = uint32(o.Device)
	c.buf.Words[2] = boolWord(o.Enhanced)
	c.buf.Words[3] = uint32(o.Rate)
	return c.simple(spi.CmdSetDeviceModeAndRate)
}

// SetGroup2Mode is the effect operation for command 0x9.
type SetGroup2Mode struct {
	kont.Phantom[spi.Result]
	Enhanced bool
}

// DispatchCall implements the session round trip for SetGroup2Mode.
func (o SetGroup2Mode) DispatchCall(c *callContext) (kont.Resumed, error) {
	c.request(spi.CmdSetGroup2Mode)
	c.buf.Words[1] = boolWord(o.Enhanced)
	return c.simple(spi.CmdSetGroup2Mode)
}

// Raw is the effect operation for an arbitrary request. Words[0] is the
// header; the reply words are returned as they come back.
type Raw struct {
	kont.Phantom[[spi.CommandBufferWords]uint32]
	Words [spi.CommandBufferWords]uint32
}

// DispatchCall implements the session round trip for Raw.
func (o Raw) DispatchCall(c *callContext) (kont.Resumed, error) {
	c.buf.Unmap()
	c.buf.Words = o.Words
	if err := c.call(); err != nil {
		return nil, err
	}
	return c.buf.Words, nil
}

// Close is the effect operation for closing the session.
// Perform(Close{}) closes the handle; later operations fail.
type Close struct {
	kont.Phantom[struct{}]
}

// DispatchCall closes the session handle. Never blocks.
func (Close) DispatchCall(c *callContext) (kont.Resumed, error) {
	if err := c.caller.CloseHandle(c.session); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

// simple finishes a request whose reply is a bare status word.
func (c *callContext) simple(command uint16) (kont.Resumed, error) {
	if err := c.call(); err != nil {
		return nil, err
	}
	res, err := c.status(spi.MakeHeader(command, 1, 0))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
