// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi

import "code.hybscloud.com/atomix"

// ShutdownFlag is the process-wide termination flag. It only ever moves
// from unset to set; a reader that sees the old value for one more cycle
// simply waits once more.
type ShutdownFlag struct {
	v atomix.Uint32
}

// Set raises the flag.
func (f *ShutdownFlag) Set() { f.v.Store(1) }

// IsSet reports whether the flag was raised.
func (f *ShutdownFlag) IsSet() bool { return f.v.Load() != 0 }
