// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package vd6g controls the ST VD56G3 (mono) and VD66GY (RGB+NIR) global
// shutter image sensors.
//
// The sensor is booted through a sequence of commands over I²C: a
// certificate and a firmware patch are uploaded, the vertical timing RAM is
// patched, then the sensor waits in software standby until streaming is
// requested. Each command is acknowledged by the sensor clearing the command
// register, and each state change is observed on the system FSM register.
//
// Pixels are sent over MIPI CSI-2, which is not handled by this package.
//
// Dev performs no locking. Calls must be serialized by the caller.
package vd6g

import (
	"fmt"
	"time"

	"periph.io/x/periph/conn"
	"periph.io/x/periph/conn/gpio"
)

// State is the streaming state of the sensor.
type State uint8

// Valid values for State.
const (
	Idle      State = 0
	Streaming State = 1
)

func (s State) String() string {
	return enumString("State", []string{"Idle", "Streaming"}, int(s))
}

// Status is the sensor's own view of its state.
type Status struct {
	FSM         FSMState
	SystemError uint16
}

// Opts holds optional parameters.
type Opts struct {
	Logger Logger // Defaults to GLogger.
}

// Gain limits.
const (
	MaxAnalogGain  = 12
	MaxDigitalGain = 0x1FFF // 5.8 fixed point, [0, 32).
	// DigitalGainUnity is 1.0 in 5.8 fixed point.
	DigitalGainUnity = 0x0100
)

// Dev controls one VD56G3 or VD66GY sensor.
type Dev struct {
	t   Transport
	log Logger

	initialized bool
	cfg         Config
	capability  Capability
	bayer       Bayer
	state       State
	patchRev    uint16
	pllHz       uint32
	lineLength  uint16
	frameLength uint16
	digitalGain uint16 // The sensor cannot read it back.
}

// New returns a Dev using t. Init must be called before any other
// operation.
func New(t Transport, opts *Opts) *Dev {
	d := &Dev{t: t, log: GLogger{}}
	if opts != nil && opts.Logger != nil {
		d.log = opts.Logger
	}
	return d
}

func (d *Dev) String() string {
	if !d.initialized {
		return "vd6g"
	}
	return fmt.Sprintf("vd6g{%s, %s, %s}", d.cfg.Variant, d.cfg.Resolution, d.cfg.Mode)
}

// Init validates cfg, boots the sensor and computes its timings. The sensor
// is left Idle.
//
// Calling Init on an initialized Dev is a no-op.
func (d *Dev) Init(cfg *Config) error {
	if d.initialized {
		return nil
	}
	c, err := cfg.Validate()
	if err != nil {
		d.log.Errorf("vd6g: %v", err)
		return err
	}
	d.cfg = *cfg
	if err := d.boot(); err != nil {
		d.cfg = Config{}
		return err
	}
	d.bayer = resolveBayer(d.cfg.Mode, d.cfg.Orientation, d.cfg.Variant)
	if err := d.setupLineLength(); err != nil {
		d.cfg = Config{}
		return err
	}
	d.frameLength = FrameLength(d.pllHz, d.lineLength, d.cfg.Resolution.Crop().Dy(), d.cfg.FPS)
	d.capability = c
	d.digitalGain = DigitalGainUnity
	d.state = Idle
	d.initialized = true
	d.log.Noticef("vd6g: initialized %s; pll %dHz, line length %d, frame length %d, bayer %s, %s", d.cfg.Mode, d.pllHz, d.lineLength, d.frameLength, d.bayer, c)
	return nil
}

// DeInit stops streaming if needed and puts the sensor back in shutdown. The
// configuration is forgotten even on failure.
func (d *Dev) DeInit() error {
	if !d.initialized {
		return nil
	}
	var err error
	if d.state == Streaming {
		err = d.Stop()
	}
	if err2 := d.t.SetShutdown(gpio.Low); err2 != nil {
		d.log.Errorf("vd6g: asserting shutdown: %v", err2)
		if err == nil {
			err = err2
		}
	}
	*d = Dev{t: d.t, log: d.log}
	return err
}

// Halt implements conn.Resource. It stops streaming.
func (d *Dev) Halt() error {
	if d.initialized && d.state == Streaming {
		return d.Stop()
	}
	return nil
}

// Start configures the output and starts streaming. On failure the sensor is
// left Idle.
func (d *Dev) Start() error {
	if err := d.checkState("start", Idle); err != nil {
		return err
	}
	if err := d.setup(); err != nil {
		return err
	}
	if err := d.applyCommandAndWait(RegCmdStandby, CmdStartStreaming); err != nil {
		return err
	}
	if err := d.waitState(FSMStreaming); err != nil {
		return err
	}
	d.state = Streaming
	return nil
}

// Stop stops streaming.
func (d *Dev) Stop() error {
	if err := d.checkState("stop", Streaming); err != nil {
		return err
	}
	if err := d.applyCommandAndWait(RegCmdStreaming, CmdStopStreaming); err != nil {
		return err
	}
	if err := d.waitState(FSMSWStandby); err != nil {
		return err
	}
	d.state = Idle
	return nil
}

// Hold enables or disables the group parameter hold. While held, parameter
// changes are applied together on release.
func (d *Dev) Hold(enable bool) error {
	if err := d.checkInit("hold"); err != nil {
		return err
	}
	v := uint8(0)
	if enable {
		v = 1
	}
	return d.write8("group parameter hold", RegGroupParamHold, v)
}

// GetState returns Idle or Streaming.
func (d *Dev) GetState() State {
	return d.state
}

// GetBayer returns the color filter layout of the output image.
func (d *Dev) GetBayer() Bayer {
	return d.bayer
}

// GetCapability returns the gain and exposure algorithms in use.
func (d *Dev) GetCapability() Capability {
	return d.capability
}

// GetPatchRevision returns the revision reported after the patch upload.
func (d *Dev) GetPatchRevision() uint16 {
	return d.patchRev
}

// GetTiming returns the sampled PLL clock, the line length and the frame
// length.
func (d *Dev) GetTiming() (pllHz uint32, lineLength, frameLength uint16) {
	return d.pllHz, d.lineLength, d.frameLength
}

// ReadStatus reads the sensor FSM state and its last error.
func (d *Dev) ReadStatus() (Status, error) {
	s := Status{}
	if err := d.checkInit("read status"); err != nil {
		return s, err
	}
	v, err := d.t.Read8(RegSystemFSM)
	if err != nil {
		d.log.Errorf("vd6g: reading FSM state: %v", err)
		return s, err
	}
	s.FSM = FSMState(v)
	if s.SystemError, err = d.t.Read16(RegSystemError); err != nil {
		d.log.Errorf("vd6g: reading system error: %v", err)
	}
	return s, err
}

// SetAnalogGain sets the analog gain, in [0, 12].
func (d *Dev) SetAnalogGain(g uint8) error {
	if err := d.checkInit("set analog gain"); err != nil {
		return err
	}
	if g > MaxAnalogGain {
		d.log.Errorf("vd6g: analog gain %d > %d", g, MaxAnalogGain)
		return fmt.Errorf("%w: analog gain %d > %d", ErrOutOfRange, g, MaxAnalogGain)
	}
	return d.write8("analog gain", ctx(ctxAnalogGain), g)
}

// GetAnalogGain reads the analog gain.
func (d *Dev) GetAnalogGain() (uint8, error) {
	if err := d.checkInit("get analog gain"); err != nil {
		return 0, err
	}
	return d.t.Read8(ctx(ctxAnalogGain))
}

// SetDigitalGain sets the digital gain in 5.8 fixed point, in [0, 0x1FFF].
// The channels written depend on the image mode.
func (d *Dev) SetDigitalGain(g uint16) error {
	if err := d.checkInit("set digital gain"); err != nil {
		return err
	}
	if g > MaxDigitalGain {
		d.log.Errorf("vd6g: digital gain 0x%X > 0x%X", g, MaxDigitalGain)
		return fmt.Errorf("%w: digital gain 0x%X > 0x%X", ErrOutOfRange, g, MaxDigitalGain)
	}
	var regs []RegisterAddress
	switch d.capability.Gain {
	case GainRGBNIR:
		regs = []RegisterAddress{ctxDigitalGainR, ctxDigitalGainG, ctxDigitalGainB, ctxDigitalGainIR}
	case GainRGB:
		regs = []RegisterAddress{ctxDigitalGainR, ctxDigitalGainG, ctxDigitalGainB}
	case GainIR:
		regs = []RegisterAddress{ctxDigitalGainIR}
	default:
		panic("internal error")
	}
	for _, r := range regs {
		if err := d.write16("digital gain", ctx(r), g); err != nil {
			return err
		}
	}
	d.digitalGain = g
	return nil
}

// GetDigitalGain returns the last digital gain set. The sensor cannot report
// it.
func (d *Dev) GetDigitalGain() uint16 {
	return d.digitalGain
}

// SetExposure sets the integration time. It is rounded up to a whole number
// of lines.
func (d *Dev) SetExposure(e time.Duration) error {
	if err := d.checkInit("set exposure"); err != nil {
		return err
	}
	lt := lineTimeNs(d.pllHz, d.lineLength)
	if e < 0 || lt == 0 {
		d.log.Errorf("vd6g: exposure %s is invalid", e)
		return fmt.Errorf("%w: exposure %s", ErrOutOfRange, e)
	}
	us := uint64(e / time.Microsecond)
	lines := (us*1000 + lt - 1) / lt
	lo := uint64(d.capability.Exposure.minLines())
	hi := uint64(d.frameLength) - exposureMargin
	if lines < lo || lines > hi {
		d.log.Errorf("vd6g: exposure %s is %d lines, outside [%d, %d]", e, lines, lo, hi)
		return fmt.Errorf("%w: exposure %s is %d lines, outside [%d, %d]", ErrOutOfRange, e, lines, lo, hi)
	}
	switch d.capability.Exposure {
	case ExposureGS, ExposureRS:
		return d.write16("integration time", ctx(ctxIntegration), uint16(lines))
	case ExposureGSSplit:
		if err := d.write16("integration time", ctx(ctxIntegration), uint16(lines)); err != nil {
			return err
		}
		return d.write16("IR integration time", ctx(ctxIntegrationIR), uint16(lines))
	case ExposureHDR:
		if err := d.write16("long integration time", ctx(ctxIntegration), uint16(lines)); err != nil {
			return err
		}
		short := us * 50 / lt
		if short < 2 {
			short = 2
		}
		return d.write16("short integration time", ctx(ctxIntegrationSh), uint16(short))
	default:
		panic("internal error")
	}
}

// GetExposure reads back the integration time. In HDR mode, it is the long
// exposure.
func (d *Dev) GetExposure() (time.Duration, error) {
	if err := d.checkInit("get exposure"); err != nil {
		return 0, err
	}
	lines, err := d.t.Read16(ctx(ctxIntegration))
	if err != nil {
		d.log.Errorf("vd6g: reading integration time: %v", err)
		return 0, err
	}
	return time.Duration(uint64(lines) * lineTimeNs(d.pllHz, d.lineLength)), nil
}

// Private details.

func (d *Dev) checkInit(op string) error {
	if !d.initialized {
		d.log.Errorf("vd6g: %s: not initialized", op)
		return fmt.Errorf("%w: %s: not initialized", ErrState, op)
	}
	return nil
}

func (d *Dev) checkState(op string, want State) error {
	if err := d.checkInit(op); err != nil {
		return err
	}
	if d.state != want {
		d.log.Errorf("vd6g: %s: sensor is %s", op, d.state)
		return fmt.Errorf("%w: %s: sensor is %s", ErrState, op, d.state)
	}
	return nil
}

// setupLineLength samples the PLL and programs the line length.
func (d *Dev) setupLineLength() error {
	pll, err := d.t.Read32(RegSystemPLLClock)
	if err != nil {
		d.log.Errorf("vd6g: reading pll clock: %v", err)
		return err
	}
	if pll == 0 {
		d.log.Errorf("vd6g: pll clock reads as 0")
		return fmt.Errorf("vd6g: pll clock reads as 0")
	}
	d.pllHz = pll
	d.lineLength = LineLength(pll)
	return d.write16("line length", RegLineLength, d.lineLength)
}

// setup programs the output interface and the image registers before
// streaming.
func (d *Dev) setup() error {
	c := &d.cfg
	if err := d.write32("mipi data rate", RegMIPIDataRate, c.MIPI.DataRateMbps*1000000); err != nil {
		return err
	}
	if err := d.write8("lane number", RegLaneNumber, c.MIPI.Lanes); err != nil {
		return err
	}
	laneMap := uint8(0)
	laneSwap := uint8(0)
	if c.MIPI.ClockSwap {
		laneSwap = 1
	}
	for i := 0; i < int(c.MIPI.Lanes); i++ {
		laneMap |= (c.MIPI.LaneMap[i] & 3) << (2 * uint(i))
		if c.MIPI.LaneSwap[i] {
			laneSwap |= 1 << uint(i+1)
		}
	}
	if err := d.write8("lane mapping", RegLaneMapping, laneMap); err != nil {
		return err
	}
	if err := d.write8("lane swap", RegLaneSwap, laneSwap); err != nil {
		return err
	}
	if err := d.write8("readout mode", ctx(ctxReadoutMode), uint8(c.Mode)); err != nil {
		return err
	}
	if err := d.write8("output format", ctx(ctxOutputFormat), uint8(c.Mode.BitDepth())); err != nil {
		return err
	}
	r := c.Resolution.Crop()
	roi := []struct {
		addr RegisterAddress
		v    int
	}{
		{ctxXStart, r.Min.X},
		{ctxXEnd, r.Max.X - 1},
		{ctxYStart, r.Min.Y},
		{ctxYEnd, r.Max.Y - 1},
	}
	for _, x := range roi {
		if err := d.write16("roi", ctx(x.addr), uint16(x.v)); err != nil {
			return err
		}
	}
	if err := d.write16("frame length", ctx(ctxFrameLength), d.frameLength); err != nil {
		return err
	}
	if err := d.write8("orientation", RegOrientation, uint8(c.Orientation)); err != nil {
		return err
	}
	if err := d.write16("pattern generator", RegPatternCtrl, c.Pattern.reg()); err != nil {
		return err
	}
	for i, g := range c.GPIO {
		if err := d.write8("gpio", ctx(ctxGPIO0)+RegisterAddress(i), g.reg()); err != nil {
			return err
		}
	}
	if err := d.write8("vt sync mode", RegVTSyncMode, uint8(c.VTSync)); err != nil {
		return err
	}
	if err := d.write8("diagnostics", RegDiagDisable0, 0); err != nil {
		return err
	}
	return d.write8("diagnostics", RegDiagDisable1, 0)
}

func (d *Dev) write8(name string, addr RegisterAddress, v uint8) error {
	if err := d.t.Write8(addr, v); err != nil {
		d.log.Errorf("vd6g: writing %s 0x%02X to 0x%04X: %v", name, v, uint16(addr), err)
		return err
	}
	return nil
}

func (d *Dev) write16(name string, addr RegisterAddress, v uint16) error {
	if err := d.t.Write16(addr, v); err != nil {
		d.log.Errorf("vd6g: writing %s 0x%04X to 0x%04X: %v", name, v, uint16(addr), err)
		return err
	}
	return nil
}

func (d *Dev) write32(name string, addr RegisterAddress, v uint32) error {
	if err := d.t.Write32(addr, v); err != nil {
		d.log.Errorf("vd6g: writing %s 0x%08X to 0x%04X: %v", name, v, uint16(addr), err)
		return err
	}
	return nil
}

var _ conn.Resource = &Dev{}
