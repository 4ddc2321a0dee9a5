// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vd6g

import "time"

// Polling bounds. A poll always terminates within PollTimeout.
const (
	PollInterval = 10 * time.Millisecond
	PollTimeout  = 500 * time.Millisecond
	pollAttempts = int(PollTimeout / PollInterval)
)

// poll reads addr until it equals want.
func (d *Dev) poll(addr RegisterAddress, want uint8) error {
	last := uint8(0)
	for i := 0; i < pollAttempts; i++ {
		v, err := d.t.Read8(addr)
		if err != nil {
			d.log.Errorf("vd6g: reading 0x%04X: %v", uint16(addr), err)
			return err
		}
		if v == want {
			return nil
		}
		last = v
		d.log.Debugf(3, "vd6g: 0x%04X is 0x%02X, waiting for 0x%02X", uint16(addr), v, want)
		d.t.Delay(PollInterval)
	}
	sysErr, err := d.t.Read16(RegSystemError)
	if err != nil {
		d.log.Errorf("vd6g: timeout polling 0x%04X; expected 0x%02X, last 0x%02X; system error unreadable: %v", uint16(addr), want, last, err)
	} else {
		d.log.Errorf("vd6g: timeout polling 0x%04X; expected 0x%02X, last 0x%02X; system error 0x%04X", uint16(addr), want, last, sysErr)
	}
	return &TimeoutError{Addr: addr, Expected: want, Last: last}
}

// waitState waits for the system FSM to reach s.
func (d *Dev) waitState(s FSMState) error {
	return d.poll(RegSystemFSM, uint8(s))
}

// applyCommandAndWait writes cmd to addr and waits for the sensor to
// acknowledge it by clearing the register.
func (d *Dev) applyCommandAndWait(addr RegisterAddress, cmd uint8) error {
	if err := d.t.Write8(addr, cmd); err != nil {
		d.log.Errorf("vd6g: writing command 0x%02X to 0x%04X: %v", cmd, uint16(addr), err)
		return err
	}
	return d.poll(addr, cmdAck)
}
