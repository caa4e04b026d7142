// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi

import (
	"errors"
	"fmt"
	"strconv"
)

// Result is the 32-bit status word carried in reply buffers and returned by
// kernel calls. The zero value means success.
//
// Layout: [level:5][summary:6][reserved:3][module:8][description:10].
type Result uint32

// Result levels.
const (
	LevelSuccess   = 0
	LevelInfo      = 1
	LevelStatus    = 25
	LevelTemporary = 26
	LevelPermanent = 27
	LevelUsage     = 28
	LevelFatal     = 31
)

// Result summaries.
const (
	SummarySuccess       = 0
	SummaryNop           = 1
	SummaryWouldBlock    = 2
	SummaryOutOfResource = 3
	SummaryNotFound      = 4
	SummaryInvalidState  = 5
	SummaryNotSupported  = 6
	SummaryInvalidArg    = 7
	SummaryWrongArg      = 8
	SummaryCanceled      = 9
	SummaryStatusChanged = 10
	SummaryInternal      = 11
)

// Result modules.
const (
	ModuleCommon = 0
	ModuleKernel = 1
	ModuleOS     = 6
	ModuleSPI    = 15
)

// Result descriptions.
const (
	DescSessionClosed       = 26
	DescInvalidHeader       = 47
	DescInvalidIPCParameter = 48
	DescInvalidSelection    = 1000
	DescMisalignedAddress   = 1009
	DescOutOfMemory         = 1011
	DescNotImplemented      = 1012
	DescInvalidHandle       = 1015
	DescNotInitialized      = 1016
	DescNotFound            = 1018
	DescAlreadyExists       = 1020
	DescOutOfRange          = 1021
)

// MakeResult packs a result word.
func MakeResult(level, summary, module, description uint32) Result {
	return Result((level&0x1F)<<27 | (summary&0x3F)<<21 | (module&0xFF)<<10 | description&0x3FF)
}

// Kernel and IPC results.
var (
	ResultSessionClosed       = MakeResult(LevelStatus, SummaryCanceled, ModuleOS, DescSessionClosed)
	ResultInvalidHeader       = MakeResult(LevelPermanent, SummaryWrongArg, ModuleOS, DescInvalidHeader)
	ResultInvalidIPCParameter = MakeResult(LevelPermanent, SummaryWrongArg, ModuleOS, DescInvalidIPCParameter)
	ResultMisalignedAddress   = MakeResult(LevelUsage, SummaryInvalidArg, ModuleOS, DescMisalignedAddress)
	ResultInvalidHandle       = MakeResult(LevelPermanent, SummaryWrongArg, ModuleKernel, DescInvalidHandle)
	ResultOutOfMemory         = MakeResult(LevelPermanent, SummaryOutOfResource, ModuleKernel, DescOutOfMemory)
	ResultNotImplemented      = MakeResult(LevelPermanent, SummaryNotSupported, ModuleKernel, DescNotImplemented)
	ResultNotFound            = MakeResult(LevelPermanent, SummaryNotFound, ModuleOS, DescNotFound)
	ResultAlreadyExists       = MakeResult(LevelPermanent, SummaryWrongArg, ModuleOS, DescAlreadyExists)
)

// Service results.
var (
	ResultOutOfRange       = MakeResult(LevelPermanent, SummaryInvalidArg, ModuleSPI, DescOutOfRange)
	ResultNotInitialized   = MakeResult(LevelPermanent, SummaryInvalidState, ModuleSPI, DescNotInitialized)
	ResultInvalidSelection = MakeResult(LevelPermanent, SummaryWrongArg, ModuleSPI, DescInvalidSelection)
	ResultCanceledRange    = MakeResult(LevelPermanent, SummaryCanceled, ModuleSPI, DescOutOfRange)
	ResultInternalRange    = MakeResult(LevelPermanent, SummaryInternal, ModuleSPI, DescOutOfRange)
)

// Failed reports whether r encodes a failure. Failure levels have the sign
// bit set.
func (r Result) Failed() bool { return int32(r) < 0 }

// Level returns the level field.
func (r Result) Level() uint32 { return uint32(r) >> 27 }

// Summary returns the summary field.
func (r Result) Summary() uint32 { return uint32(r) >> 21 & 0x3F }

// Module returns the module field.
func (r Result) Module() uint32 { return uint32(r) >> 10 & 0xFF }

// Description returns the description field.
func (r Result) Description() uint32 { return uint32(r) & 0x3FF }

// Error implements error.
func (r Result) Error() string {
	if name, ok := resultNames[r]; ok {
		return "spi: " + name
	}
	return "spi: result 0x" + strconv.FormatUint(uint64(r), 16)
}

var resultNames = map[Result]string{
	ResultSessionClosed:       "remote session closed",
	ResultInvalidHeader:       "invalid header",
	ResultInvalidIPCParameter: "invalid ipc parameter",
	ResultMisalignedAddress:   "misaligned address",
	ResultInvalidHandle:       "invalid handle",
	ResultOutOfMemory:         "out of memory",
	ResultNotImplemented:      "not implemented",
	ResultNotFound:            "not found",
	ResultAlreadyExists:       "already exists",
	ResultOutOfRange:          "out of range",
	ResultNotInitialized:      "device not initialized",
	ResultInvalidSelection:    "invalid device selection",
	ResultCanceledRange:       "closed handle index out of range",
	ResultInternalRange:       "handle index out of range",
}

// ResultOf converts err into a status word. nil maps to 0 and a wrapped
// Result to itself; any other error becomes a permanent internal failure.
func ResultOf(err error) Result {
	if err == nil {
		return 0
	}
	var r Result
	if errors.As(err, &r) {
		return r
	}
	return MakeResult(LevelPermanent, SummaryInternal, ModuleCommon, 0x3FF)
}

// FatalError reports a condition that aborts the owning thread, such as a
// failed kernel call or an unmapped device id.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("spi: fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// fatal aborts the calling thread. ServerLoop recovers it into its return
// value; elsewhere it terminates the process.
func fatal(op string, err error) {
	panic(&FatalError{Op: op, Err: err})
}
