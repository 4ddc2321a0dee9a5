// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package vd6gtest implements a fake VD56G3/VD66GY at the register level.
//
// Sensor emulates the boot and streaming state machine: commands are
// acknowledged immediately unless their register is marked as stuck.
package vd6gtest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maruel/go-vd6g/vd6g"
	"periph.io/x/periph/conn"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpiotest"
	"periph.io/x/periph/conn/physic"
)

// DefaultPLL is the PLL clock reported by a fake Sensor.
const DefaultPLL = 400000000

// DefaultPatchRevision is reported after the patch is loaded.
const DefaultPatchRevision = 0x0105

// Write is one register write, as received on the wire.
type Write struct {
	Addr vd6g.RegisterAddress
	Data []byte
}

// Sensor is a fake sensor. It implements conn.Conn.
type Sensor struct {
	sync.Mutex
	Regs   [0x10000]byte
	Writes []Write // Every write received, in order.
	Reads  int     // Number of read transactions.
	// Stuck lists the command registers that never acknowledge.
	Stuck map[vd6g.RegisterAddress]bool
	// Err is returned by every transaction when set.
	Err error
}

// New returns a powered up Sensor with valid identification.
func New() *Sensor {
	s := &Sensor{Stuck: map[vd6g.RegisterAddress]bool{}}
	s.Put32(vd6g.RegModelID, vd6g.ModelID)
	s.Put32(vd6g.RegDeviceRevision, vd6g.DeviceRevision)
	s.Put32(vd6g.RegROMRevision, vd6g.ROMRevision)
	s.Put16(vd6g.RegUIRevision, vd6g.UIRevision)
	s.Put32(vd6g.RegSystemPLLClock, DefaultPLL)
	s.Regs[vd6g.RegSystemFSM] = byte(vd6g.FSMSystemUp)
	return s
}

func (s *Sensor) String() string {
	return "vd6gtest"
}

// Duplex implements conn.Conn.
func (s *Sensor) Duplex() conn.Duplex {
	return conn.Half
}

// Tx implements conn.Conn. w starts with the big endian register address. A
// read is a transaction with a non-empty r.
func (s *Sensor) Tx(w, r []byte) error {
	s.Lock()
	defer s.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if len(w) < 2 {
		return errors.New("vd6gtest: missing register address")
	}
	addr := int(binary.BigEndian.Uint16(w))
	if len(r) != 0 {
		if len(w) != 2 {
			return errors.New("vd6gtest: unexpected write during read")
		}
		if addr+len(r) > len(s.Regs) {
			return fmt.Errorf("vd6gtest: read past end at 0x%04X", addr)
		}
		s.Reads++
		copy(r, s.Regs[addr:])
		return nil
	}
	data := w[2:]
	if len(data) == 0 || addr+len(data) > len(s.Regs) {
		return fmt.Errorf("vd6gtest: invalid write of %d bytes at 0x%04X", len(data), addr)
	}
	copy(s.Regs[addr:], data)
	s.Writes = append(s.Writes, Write{Addr: vd6g.RegisterAddress(addr), Data: append([]byte(nil), data...)})
	if len(data) == 1 {
		s.command(vd6g.RegisterAddress(addr), data[0])
	}
	return nil
}

// FSM returns the current state.
func (s *Sensor) FSM() vd6g.FSMState {
	s.Lock()
	defer s.Unlock()
	return vd6g.FSMState(s.Regs[vd6g.RegSystemFSM])
}

// Get16 returns the little endian register value at addr.
func (s *Sensor) Get16(addr vd6g.RegisterAddress) uint16 {
	s.Lock()
	defer s.Unlock()
	return binary.LittleEndian.Uint16(s.Regs[addr:])
}

// Get32 returns the little endian register value at addr.
func (s *Sensor) Get32(addr vd6g.RegisterAddress) uint32 {
	s.Lock()
	defer s.Unlock()
	return binary.LittleEndian.Uint32(s.Regs[addr:])
}

// Put16 sets a little endian register value.
func (s *Sensor) Put16(addr vd6g.RegisterAddress, v uint16) {
	s.Lock()
	defer s.Unlock()
	binary.LittleEndian.PutUint16(s.Regs[addr:], v)
}

// Put32 sets a little endian register value.
func (s *Sensor) Put32(addr vd6g.RegisterAddress, v uint32) {
	s.Lock()
	defer s.Unlock()
	binary.LittleEndian.PutUint32(s.Regs[addr:], v)
}

// WritesTo returns the writes done at addr.
func (s *Sensor) WritesTo(addr vd6g.RegisterAddress) []Write {
	s.Lock()
	defer s.Unlock()
	var out []Write
	for _, w := range s.Writes {
		if w.Addr == addr {
			out = append(out, w)
		}
	}
	return out
}

// Transport returns a vd6g.Transport to the fake sensor that doesn't sleep.
func (s *Sensor) Transport() *Bus {
	pin := &gpiotest.Pin{N: "XSHUTDOWN"}
	return &Bus{Bus: vd6g.NewBus(s, pin), Pin: pin}
}

// Bus is a vd6g.Bus that records delays instead of sleeping.
type Bus struct {
	*vd6g.Bus
	Pin    *gpiotest.Pin
	Levels []gpio.Level  // Every level set on the XSHUTDOWN line.
	Delays time.Duration // Sum of all the delays requested.
}

// Delay implements vd6g.Transport.
func (b *Bus) Delay(d time.Duration) {
	b.Delays += d
}

// SetShutdown implements vd6g.Transport.
func (b *Bus) SetShutdown(l gpio.Level) error {
	b.Levels = append(b.Levels, l)
	return b.Bus.SetShutdown(l)
}

// Firmware returns blobs for v of arbitrary content with the right shape. The
// certificate spans 3 chunks.
func Firmware(v vd6g.Variant) *vd6g.Firmware {
	f := &vd6g.Firmware{Variant: v, Certificate: blob(300, 1), Patch: blob(200, 2)}
	for i := range f.VTPatches {
		f.VTPatches[i] = blob(16, byte(3+i))
	}
	return f
}

// Config returns a valid configuration for the variant.
func Config(v vd6g.Variant) *vd6g.Config {
	return &vd6g.Config{
		Variant:    v,
		ExtClock:   24 * physic.MegaHertz,
		Resolution: vd6g.Res1920x1080,
		FPS:        30,
		Mode:       vd6g.ModeGSNative10,
		MIPI: vd6g.MIPIConfig{
			DataRateMbps: 800,
			Lanes:        2,
			LaneMap:      [4]uint8{0, 1, 2, 3},
		},
		Firmware: Firmware(v),
	}
}

// Private details.

func blob(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

// command emulates the sensor firmware reacting to a command. Must be called
// with the lock held.
func (s *Sensor) command(addr vd6g.RegisterAddress, v byte) {
	fsm := vd6g.FSMState(s.Regs[vd6g.RegSystemFSM])
	next := fsm
	switch addr {
	case vd6g.RegCmdSystemUp:
		if v == vd6g.CmdStartSensor && fsm == vd6g.FSMSystemUp {
			next = vd6g.FSMBoot
		}
	case vd6g.RegCmdBoot:
		if fsm != vd6g.FSMBoot {
			break
		}
		switch v {
		case vd6g.CmdLoadPatch:
			binary.LittleEndian.PutUint16(s.Regs[vd6g.RegPatchRevision:], DefaultPatchRevision)
		case vd6g.CmdEndBoot:
			next = vd6g.FSMSWStandby
		}
	case vd6g.RegCmdStandby:
		if v == vd6g.CmdStartStreaming && fsm == vd6g.FSMSWStandby {
			next = vd6g.FSMStreaming
		}
	case vd6g.RegCmdStreaming:
		if v == vd6g.CmdStopStreaming && fsm == vd6g.FSMStreaming {
			next = vd6g.FSMSWStandby
		}
	default:
		return
	}
	if s.Stuck[addr] {
		return
	}
	s.Regs[addr] = 0
	s.Regs[vd6g.RegSystemFSM] = byte(next)
}

var _ conn.Conn = &Sensor{}
var _ vd6g.Transport = &Bus{}
