// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vd6g

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"periph.io/x/periph/conn"
	"periph.io/x/periph/conn/gpio"
)

// Transport is the register access to the sensor. Dev assumes exclusive use
// of it for the duration of each call.
type Transport interface {
	Read8(addr RegisterAddress) (uint8, error)
	Read16(addr RegisterAddress) (uint16, error)
	Read32(addr RegisterAddress) (uint32, error)
	Write8(addr RegisterAddress, v uint8) error
	Write16(addr RegisterAddress, v uint16) error
	Write32(addr RegisterAddress, v uint32) error
	// WriteArray writes b at consecutive addresses starting at addr. Dev never
	// sends more than 128 bytes at once.
	WriteArray(addr RegisterAddress, b []byte) error
	// Delay blocks for d.
	Delay(d time.Duration)
	// SetShutdown drives the XSHUTDOWN line. gpio.Low holds the sensor in
	// reset.
	SetShutdown(l gpio.Level) error
}

// Logger is the leveled log sink used by Dev.
type Logger interface {
	Errorf(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Noticef(format string, args ...interface{})
	Debugf(level int, format string, args ...interface{})
}

// GLogger logs to glog. Debug levels map to glog verbosity.
type GLogger struct{}

func (GLogger) Errorf(format string, args ...interface{}) {
	glog.ErrorDepth(1, fmt.Sprintf(format, args...))
}

func (GLogger) Warningf(format string, args ...interface{}) {
	glog.WarningDepth(1, fmt.Sprintf(format, args...))
}

func (GLogger) Noticef(format string, args ...interface{}) {
	glog.InfoDepth(1, fmt.Sprintf(format, args...))
}

func (GLogger) Debugf(level int, format string, args ...interface{}) {
	if glog.V(glog.Level(level)) {
		glog.InfoDepth(1, fmt.Sprintf(format, args...))
	}
}

// I2CAddr is the sensor's I²C address.
const I2CAddr = 0x10

// Bus implements Transport over a periph connection, usually an
// i2c.Dev{Addr: I2CAddr}, and the XSHUTDOWN pin.
//
// Register addresses are sent big endian. Register values are little endian.
type Bus struct {
	closed int32
	lock   sync.Mutex
	c      conn.Conn
	pin    gpio.PinOut
}

// NewBus returns a Transport to the sensor. pin may be nil if the XSHUTDOWN
// line is not wired, in which case the sensor must already be powered.
func NewBus(c conn.Conn, pin gpio.PinOut) *Bus {
	return &Bus{c: c, pin: pin}
}

func (b *Bus) String() string {
	return fmt.Sprintf("vd6g.Bus{%s}", b.c)
}

// Close stops the use of the bus. It doesn't close the underlying connection.
func (b *Bus) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return io.ErrClosedPipe
	}
	return nil
}

func (b *Bus) Read8(addr RegisterAddress) (uint8, error) {
	var v [1]byte
	err := b.readData(addr, v[:])
	return v[0], err
}

func (b *Bus) Read16(addr RegisterAddress) (uint16, error) {
	var v [2]byte
	err := b.readData(addr, v[:])
	return binary.LittleEndian.Uint16(v[:]), err
}

func (b *Bus) Read32(addr RegisterAddress) (uint32, error) {
	var v [4]byte
	err := b.readData(addr, v[:])
	return binary.LittleEndian.Uint32(v[:]), err
}

func (b *Bus) Write8(addr RegisterAddress, v uint8) error {
	return b.writeData(addr, []byte{v})
}

func (b *Bus) Write16(addr RegisterAddress, v uint16) error {
	var p [2]byte
	binary.LittleEndian.PutUint16(p[:], v)
	return b.writeData(addr, p[:])
}

func (b *Bus) Write32(addr RegisterAddress, v uint32) error {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], v)
	return b.writeData(addr, p[:])
}

func (b *Bus) WriteArray(addr RegisterAddress, p []byte) error {
	if l, ok := b.c.(conn.Limits); ok {
		if n := l.MaxTxSize(); n != 0 && len(p)+2 > n {
			return fmt.Errorf("vd6g: write of %d bytes exceeds the bus limit of %d", len(p), n-2)
		}
	}
	return b.writeData(addr, p)
}

func (b *Bus) Delay(d time.Duration) {
	time.Sleep(d)
}

func (b *Bus) SetShutdown(l gpio.Level) error {
	if atomic.LoadInt32(&b.closed) != 0 {
		return io.ErrClosedPipe
	}
	if b.pin == nil {
		return nil
	}
	return b.pin.Out(l)
}

// Private details.

var errEmptyWrite = errors.New("vd6g: empty write")

func (b *Bus) readData(addr RegisterAddress, data []byte) error {
	if atomic.LoadInt32(&b.closed) != 0 {
		return io.ErrClosedPipe
	}
	var a [2]byte
	binary.BigEndian.PutUint16(a[:], uint16(addr))
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.c.Tx(a[:], data)
}

func (b *Bus) writeData(addr RegisterAddress, data []byte) error {
	if atomic.LoadInt32(&b.closed) != 0 {
		return io.ErrClosedPipe
	}
	if len(data) == 0 {
		return errEmptyWrite
	}
	tmp := make([]byte, 2, len(data)+2)
	binary.BigEndian.PutUint16(tmp, uint16(addr))
	tmp = append(tmp, data...)
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.c.Tx(tmp, nil)
}

var _ Transport = &Bus{}
