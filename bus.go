// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi

import "strconv"

// DeviceID is a logical device on one of the bus groups.
type DeviceID uint8

// Rate is a bus clock rate code as understood by the transfer controllers.
type Rate uint8

// Bus group layout. Devices 0-2 share group 0, 3-5 share group 1 and 6 owns
// group 2.
const (
	GroupCount  = 3
	DeviceCount = 7

	// ModeSwitchGroup is the group command 0x9 switches.
	ModeSwitchGroup = 2

	// MaxCommandBytes bounds the command phase of a transfer.
	MaxCommandBytes = 4
)

// GroupOf maps dev to its bus group.
func GroupOf(dev DeviceID) (int, bool) {
	switch {
	case dev <= 2:
		return 0, true
	case dev <= 5:
		return 1, true
	case dev == 6:
		return 2, true
	}
	return -1, false
}

// Transport is a synchronous transfer primitive for one bus group in one
// protocol mode. Calls return when the bytes have been shifted; they may
// busy-poll the hardware.
type Transport interface {
	SendAndRead(dev DeviceID, rate Rate, cmd, out []byte)
	SendAndWrite(dev DeviceID, rate Rate, cmd, in []byte)
	SendOnly(dev DeviceID, rate Rate, cmd []byte)
}

// ConfigRegister is the memory-mapped register holding one enhanced-mode bit
// per bus group.
type ConfigRegister interface {
	Load() uint16
	Set(mask uint16)
	Clear(mask uint16)
}

// Hardware wires the transfer primitives and the mode register.
type Hardware struct {
	Legacy   [GroupCount]Transport
	Enhanced [GroupCount]Transport
	Config   ConfigRegister
}

// RateTable records per-device initialization and rate.
//
// Entries are written by InitDeviceRate and read on every transfer without
// synchronization; a concurrent init and transfer for the same device is last
// writer wins.
type RateTable struct {
	entries [DeviceCount]rateEntry
}

type rateEntry struct {
	init bool
	rate Rate
}

// Lookup returns dev's rate and whether it was initialized.
func (t *RateTable) Lookup(dev DeviceID) (Rate, bool) {
	if int(dev) >= DeviceCount {
		return 0, false
	}
	e := &t.entries[dev]
	return e.rate, e.init
}

func (t *RateTable) set(dev DeviceID, rate Rate, markInit bool) {
	if int(dev) >= DeviceCount {
		fatal("rate table", ResultInvalidSelection)
	}
	e := &t.entries[dev]
	if markInit {
		e.init = true
	}
	e.rate = rate
}

// Bus is one physical bus group. Fields are mutated only under lock.
type Bus struct {
	lock     *LightLock
	enhanced bool
	legacy   Transport
	nspi     Transport
}

// Enhanced reports the current protocol mode. Callers that need a stable
// answer hold the bus lock.
func (b *Bus) Enhanced() bool { return b.enhanced }

// BusSet owns the bus groups, the rate table and the mode register.
type BusSet struct {
	buses [GroupCount]Bus
	rates RateTable
	cfg   ConfigRegister
}

// NewBusSet builds the groups over hw. Each group's lock parks on arb.
func NewBusSet(arb Arbiter, hw Hardware) *BusSet {
	s := &BusSet{cfg: hw.Config}
	for i := range s.buses {
		s.buses[i] = Bus{
			lock:   NewLightLock(arb),
			legacy: hw.Legacy[i],
			nspi:   hw.Enhanced[i],
		}
	}
	return s
}

// Bus returns group i.
func (s *BusSet) Bus(i int) *Bus { return &s.buses[i] }

// Rates returns the device rate table.
func (s *BusSet) Rates() *RateTable { return &s.rates }

// LoadModes seeds every group's mode from the mode register.
func (s *BusSet) LoadModes() {
	if s.cfg == nil {
		return
	}
	v := s.cfg.Load()
	for i := range s.buses {
		b := &s.buses[i]
		b.lock.Lock()
		b.enhanced = v&(1<<i) != 0
		b.lock.Unlock()
	}
}

func (s *BusSet) group(dev DeviceID) *Bus {
	i, ok := GroupOf(dev)
	if !ok {
		fatal("device "+strconv.Itoa(int(dev)), ResultInvalidSelection)
	}
	return &s.buses[i]
}

// InitDeviceRate marks dev initialized with rate. An unmapped dev is fatal.
func (s *BusSet) InitDeviceRate(dev DeviceID, rate Rate) {
	s.rates.set(dev, rate, true)
}

// prepare runs the checks shared by the transfer operations and returns the
// owning group and rate.
func (s *BusSet) prepare(dev DeviceID, cmd []byte) (*Bus, Rate, Result) {
	if len(cmd) > MaxCommandBytes {
		return nil, 0, ResultOutOfRange
	}
	b := s.group(dev)
	rate, ok := s.rates.Lookup(dev)
	if !ok {
		return nil, 0, ResultNotInitialized
	}
	return b, rate, 0
}

// SendAndRead sends cmd to dev and reads len(out) bytes back.
func (s *BusSet) SendAndRead(dev DeviceID, cmd, out []byte) Result {
	b, rate, res := s.prepare(dev, cmd)
	if res != 0 {
		return res
	}
	b.lock.Lock()
	if b.enhanced {
		b.nspi.SendAndRead(dev, rate, cmd, out)
	} else {
		b.legacy.SendAndRead(dev, rate, cmd, out)
	}
	b.lock.Unlock()
	return 0
}

// SendAndWrite sends cmd followed by in to dev.
func (s *BusSet) SendAndWrite(dev DeviceID, cmd, in []byte) Result {
	b, rate, res := s.prepare(dev, cmd)
	if res != 0 {
		return res
	}
	b.lock.Lock()
	if b.enhanced {
		b.nspi.SendAndWrite(dev, rate, cmd, in)
	} else {
		b.legacy.SendAndWrite(dev, rate, cmd, in)
	}
	b.lock.Unlock()
	return 0
}

// SendOnly sends cmd to dev.
func (s *BusSet) SendOnly(dev DeviceID, cmd []byte) Result {
	b, rate, res := s.prepare(dev, cmd)
	if res != 0 {
		return res
	}
	b.lock.Lock()
	if b.enhanced {
		b.nspi.SendOnly(dev, rate, cmd)
	} else {
		b.legacy.SendOnly(dev, rate, cmd)
	}
	b.lock.Unlock()
	return 0
}

// SetDeviceModeAndRate switches dev's group to the given mode and records
// rate for dev. The device is not marked initialized.
func (s *BusSet) SetDeviceModeAndRate(dev DeviceID, enhanced bool, rate Rate) {
	i, ok := GroupOf(dev)
	if !ok {
		fatal("device "+strconv.Itoa(int(dev)), ResultInvalidSelection)
	}
	b := &s.buses[i]
	b.lock.Lock()
	s.switchMode(b, i, enhanced)
	s.rates.set(dev, rate, false)
	b.lock.Unlock()
}

// SetGroup2Mode switches group 2 to the given mode.
func (s *BusSet) SetGroup2Mode(enhanced bool) {
	b := &s.buses[ModeSwitchGroup]
	b.lock.Lock()
	s.switchMode(b, ModeSwitchGroup, enhanced)
	b.lock.Unlock()
}

func (s *BusSet) switchMode(b *Bus, i int, enhanced bool) {
	b.enhanced = enhanced
	if s.cfg == nil {
		return
	}
	if enhanced {
		s.cfg.Set(1 << i)
	} else {
		s.cfg.Clear(1 << i)
	}
}
