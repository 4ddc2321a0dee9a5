// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vd6g

import (
	"time"

	"github.com/maruel/go-vd6g/vd6g/internal"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/physic"
)

// ChunkSize is the largest bulk write sent to the transport.
const ChunkSize = 128

const powerDelay = 10 * time.Millisecond

// boot takes the sensor from power off to software standby. The first
// failure aborts the sequence.
func (d *Dev) boot() error {
	if err := d.powerOn(); err != nil {
		return err
	}
	if err := d.waitState(FSMSystemUp); err != nil {
		return err
	}
	if err := d.checkModelID(); err != nil {
		return err
	}
	if err := d.goToBootState(); err != nil {
		return err
	}
	if err := d.goToStandbyState(); err != nil {
		return err
	}
	return d.applyVTPatch()
}

func (d *Dev) powerOn() error {
	if err := d.t.SetShutdown(gpio.Low); err != nil {
		d.log.Errorf("vd6g: asserting shutdown: %v", err)
		return err
	}
	d.t.Delay(powerDelay)
	if err := d.t.SetShutdown(gpio.High); err != nil {
		d.log.Errorf("vd6g: releasing shutdown: %v", err)
		return err
	}
	d.t.Delay(powerDelay)
	return nil
}

func (d *Dev) checkModelID() error {
	ids := []struct {
		name     string
		addr     RegisterAddress
		expected uint32
		wide     bool
	}{
		{"model id", RegModelID, ModelID, true},
		{"device revision", RegDeviceRevision, DeviceRevision, true},
		{"ROM revision", RegROMRevision, ROMRevision, true},
		{"UI revision", RegUIRevision, uint32(UIRevision), false},
	}
	for _, id := range ids {
		var v uint32
		var err error
		if id.wide {
			v, err = d.t.Read32(id.addr)
		} else {
			var v16 uint16
			v16, err = d.t.Read16(id.addr)
			v = uint32(v16)
		}
		if err != nil {
			d.log.Errorf("vd6g: reading %s: %v", id.name, err)
			return err
		}
		if v != id.expected {
			e := &IdentificationError{Name: id.name, Addr: id.addr, Expected: id.expected, Actual: v}
			d.log.Errorf("%v", e)
			return e
		}
	}
	return nil
}

func (d *Dev) goToBootState() error {
	if err := d.applyCommandAndWait(RegCmdSystemUp, CmdStartSensor); err != nil {
		return err
	}
	return d.waitState(FSMBoot)
}

func (d *Dev) goToStandbyState() error {
	fw := d.cfg.Firmware
	if err := d.upload("certificate", RegCertificateArea, fw.Certificate); err != nil {
		return err
	}
	if err := d.applyCommandAndWait(RegCmdBoot, CmdLoadCertificate); err != nil {
		return err
	}
	if err := d.upload("patch", RegPatchArea, fw.Patch); err != nil {
		return err
	}
	if err := d.applyCommandAndWait(RegCmdBoot, CmdLoadPatch); err != nil {
		return err
	}
	rev, err := d.t.Read16(RegPatchRevision)
	if err != nil {
		d.log.Errorf("vd6g: reading patch revision: %v", err)
		return err
	}
	d.patchRev = rev
	d.log.Noticef("vd6g: %s patch revision %d.%d", d.cfg.Variant, rev>>8, rev&0xFF)
	if err := d.t.Write32(RegExtClock, uint32(d.cfg.ExtClock/physic.Hertz)); err != nil {
		d.log.Errorf("vd6g: writing external clock: %v", err)
		return err
	}
	if err := d.applyCommandAndWait(RegCmdBoot, CmdEndBoot); err != nil {
		return err
	}
	return d.waitState(FSMSWStandby)
}

func (d *Dev) applyVTPatch() error {
	if err := d.applyCommandAndWait(RegCmdStandby, CmdBeginVTRAM); err != nil {
		return err
	}
	for i, p := range d.cfg.Firmware.VTPatches {
		if err := d.upload("vt ram patch", vtRAMAreas[i], p); err != nil {
			return err
		}
	}
	return d.applyCommandAndWait(RegCmdStandby, CmdEndVTRAM)
}

// upload writes b at addr in ChunkSize pieces. A failed chunk fails the whole
// upload.
func (d *Dev) upload(name string, addr RegisterAddress, b []byte) error {
	d.log.Debugf(1, "vd6g: uploading %s to 0x%04X: %d bytes, crc 0x%04X", name, uint16(addr), len(b), internal.CRC16(b))
	for off := 0; off < len(b); off += ChunkSize {
		end := off + ChunkSize
		if end > len(b) {
			end = len(b)
		}
		if err := d.t.WriteArray(addr+RegisterAddress(off), b[off:end]); err != nil {
			d.log.Errorf("vd6g: uploading %s at offset %d: %v", name, off, err)
			return err
		}
	}
	return nil
}
