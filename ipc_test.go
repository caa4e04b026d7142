// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi_test

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"testing/quick"

	"code.hybscloud.com/spi"
)

func TestHeaderFields(t *testing.T) {
	property := func(command uint16, normal, translate uint8) bool {
		h := spi.MakeHeader(command, uint32(normal), uint32(translate))
		return h.Command() == command &&
			h.Normal() == uint32(normal)&0x3F &&
			h.Translate() == uint32(translate)&0x3F
	}
	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}
	if got := uint32(spi.MakeHeader(0x3, 17, 0)); got != 0x00030440 {
		t.Fatalf("MakeHeader(3,17,0) = %#08x", got)
	}
	for cmd := uint16(0x1); cmd <= 0x9; cmd++ {
		if _, ok := spi.RequestHeader(cmd); !ok {
			t.Fatalf("no request header for %#x", cmd)
		}
	}
	if _, ok := spi.RequestHeader(0xA); ok {
		t.Fatal("request header for unknown command")
	}
}

func TestBufferDesc(t *testing.T) {
	d := spi.BufferDesc(0x40, spi.BufferWrite)
	if d != 0x40<<4|0x8|0x4 {
		t.Fatalf("BufferDesc = %#x", d)
	}
	if !spi.IsBufferDesc(d, spi.BufferWrite) || spi.IsBufferDesc(d, spi.BufferRead) {
		t.Fatal("rights not checked exactly")
	}
	if spi.BufferDescSize(d) != 0x40 {
		t.Fatalf("size %d", spi.BufferDescSize(d))
	}
}

func TestCommandBufferBytes(t *testing.T) {
	property := func(payload []byte) bool {
		if len(payload) > spi.InlineCapacity {
			payload = payload[:spi.InlineCapacity]
		}
		var buf spi.CommandBuffer
		buf.PutBytes(4, payload)
		out := make([]byte, len(payload))
		n := buf.Bytes(4, out)
		return n == len(payload) && bytes.Equal(out, payload)
	}
	if err := quick.Check(property, nil); err != nil {
		t.Error(err)
	}

	var buf spi.CommandBuffer
	buf.PutBytes(2, []byte{0x01, 0x02, 0x03, 0x04, 0x05})
	if buf.Words[2] != 0x04030201 || buf.Words[3] != 0x05 {
		t.Fatalf("words %#x %#x", buf.Words[2], buf.Words[3])
	}
}

func TestCommandBufferMapping(t *testing.T) {
	var buf spi.CommandBuffer
	region := make([]byte, 16)
	if !buf.Map(0x100, region) || !buf.Map(0x200, region[:4]) {
		t.Fatal("Map failed")
	}
	if buf.Map(0x300, region) {
		t.Fatal("third mapping accepted")
	}
	if m, ok := buf.Mapping(0x100, 8); !ok || len(m) != 8 {
		t.Fatalf("Mapping(0x100, 8) = %d, %v", len(m), ok)
	}
	if _, ok := buf.Mapping(0x200, 8); ok {
		t.Fatal("mapping larger than the region")
	}
	buf.Unmap()
	if _, ok := buf.Mapping(0x100, 1); ok {
		t.Fatal("mapping survived Unmap")
	}
}

func TestResult(t *testing.T) {
	if !spi.ResultInvalidHeader.Failed() || spi.Result(0).Failed() {
		t.Fatal("Failed misreports")
	}
	r := spi.ResultNotInitialized
	if r.Module() != spi.ModuleSPI || r.Description() != spi.DescNotInitialized ||
		r.Summary() != spi.SummaryInvalidState || r.Level() != spi.LevelPermanent {
		t.Fatalf("fields of %#x", uint32(r))
	}
	if !strings.HasPrefix(r.Error(), "spi: ") {
		t.Fatalf("Error() = %q", r.Error())
	}

	wrapped := fmt.Errorf("op: %w", &spi.FatalError{Op: "x", Err: spi.ResultOutOfRange})
	if spi.ResultOf(wrapped) != spi.ResultOutOfRange {
		t.Fatalf("ResultOf = %#x", uint32(spi.ResultOf(wrapped)))
	}
	if spi.ResultOf(nil) != 0 {
		t.Fatal("ResultOf(nil) != 0")
	}
	if !spi.ResultOf(errors.New("other")).Failed() {
		t.Fatal("foreign error maps to success")
	}
}
