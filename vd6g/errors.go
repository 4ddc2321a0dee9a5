// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vd6g

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a gain or exposure value is rejected. No
// register was written.
var ErrOutOfRange = errors.New("vd6g: value out of range")

// ErrState is returned when an operation is not legal in the current state,
// e.g. Start while streaming or any runtime operation before Init.
var ErrState = errors.New("vd6g: invalid state")

// ConfigError is returned by Init when the configuration is rejected. No
// register was accessed.
type ConfigError struct {
	Field  string
	Reason string
}

func (c *ConfigError) Error() string {
	return fmt.Sprintf("vd6g: invalid config %s: %s", c.Field, c.Reason)
}

// IdentificationError is returned by Init when the sensor doesn't identify as
// a supported silicon.
type IdentificationError struct {
	Name     string
	Addr     RegisterAddress
	Expected uint32
	Actual   uint32
}

func (i *IdentificationError) Error() string {
	return fmt.Sprintf("vd6g: %s mismatch at 0x%04X; expected 0x%X, got 0x%X", i.Name, uint16(i.Addr), i.Expected, i.Actual)
}

// TimeoutError is returned when a register didn't reach the expected value in
// time.
type TimeoutError struct {
	Addr     RegisterAddress
	Expected uint8
	Last     uint8
}

func (t *TimeoutError) Error() string {
	return fmt.Sprintf("vd6g: timeout polling 0x%04X; expected 0x%02X, last 0x%02X", uint16(t.Addr), t.Expected, t.Last)
}
