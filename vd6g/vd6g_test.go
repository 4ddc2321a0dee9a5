// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vd6g_test

import (
	"errors"
	"testing"
	"time"

	"github.com/maruel/go-vd6g/vd6g"
	"github.com/maruel/go-vd6g/vd6g/vd6gtest"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2ctest"
)

func TestDev(t *testing.T) {
	s := vd6gtest.New()
	b := s.Transport()
	d := vd6g.New(b, &vd6g.Opts{Logger: &testLogger{t: t}})
	if err := d.Init(vd6gtest.Config(vd6g.RGBNIR)); err != nil {
		t.Fatal(err)
	}
	if f := s.FSM(); f != vd6g.FSMSWStandby {
		t.Fatal(f)
	}
	if st := d.GetState(); st != vd6g.Idle {
		t.Fatal(st)
	}
	if l := b.Levels; len(l) != 2 || l[0] != gpio.Low || l[1] != gpio.High {
		t.Fatalf("unexpected shutdown sequence %v", l)
	}
	if v := s.Get32(vd6g.RegExtClock); v != 24000000 {
		t.Fatal(v)
	}
	if r := d.GetPatchRevision(); r != vd6gtest.DefaultPatchRevision {
		t.Fatal(r)
	}
	if pll, ll, fl := d.GetTiming(); pll != vd6gtest.DefaultPLL || ll != 1448 || fl != 2302 {
		t.Fatal(pll, ll, fl)
	}
	if v := s.Get16(vd6g.RegLineLength); v != 1448 {
		t.Fatal(v)
	}
	if b := d.GetBayer(); b != vd6g.BayerRGIB {
		t.Fatal(b)
	}
	if c := d.GetCapability(); c != (vd6g.Capability{Gain: vd6g.GainRGBNIR, Exposure: vd6g.ExposureGS}) {
		t.Fatal(c)
	}

	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	if f := s.FSM(); f != vd6g.FSMStreaming {
		t.Fatal(f)
	}
	if st := d.GetState(); st != vd6g.Streaming {
		t.Fatal(st)
	}
	regs := []struct {
		addr vd6g.RegisterAddress
		want uint16
	}{
		{0x0960, 2302}, // Frame length.
		{0x0962, 320},
		{0x0964, 2239},
		{0x0966, 452},
		{0x0968, 1531},
	}
	for _, r := range regs {
		if v := s.Get16(r.addr); v != r.want {
			t.Fatalf("0x%04X: got %d; want %d", uint16(r.addr), v, r.want)
		}
	}
	if v := s.Get32(vd6g.RegMIPIDataRate); v != 800000000 {
		t.Fatal(v)
	}
	if v := s.Regs[vd6g.RegLaneMapping]; v != 0x04 {
		t.Fatalf("0x%02X", v)
	}
	if v := s.Regs[vd6g.RegLaneNumber]; v != 2 {
		t.Fatal(v)
	}
	st, err := d.ReadStatus()
	if err != nil || st.FSM != vd6g.FSMStreaming || st.SystemError != 0 {
		t.Fatal(st, err)
	}

	if err := d.Stop(); err != nil {
		t.Fatal(err)
	}
	if f := s.FSM(); f != vd6g.FSMSWStandby {
		t.Fatal(f)
	}
	if st := d.GetState(); st != vd6g.Idle {
		t.Fatal(st)
	}
	if err := d.DeInit(); err != nil {
		t.Fatal(err)
	}
	if l := b.Levels; len(l) != 3 || l[2] != gpio.Low {
		t.Fatalf("unexpected shutdown sequence %v", l)
	}
	if err := d.SetAnalogGain(1); !errors.Is(err, vd6g.ErrState) {
		t.Fatal(err)
	}
}

func TestDev_Init_idempotent(t *testing.T) {
	s, d := initDev(t, vd6gtest.Config(vd6g.RGBNIR))
	n := len(s.Writes)
	c := vd6gtest.Config(vd6g.Mono)
	c.FPS = 60
	if err := d.Init(c); err != nil {
		t.Fatal(err)
	}
	if len(s.Writes) != n {
		t.Fatal("second Init touched the sensor")
	}
	if _, _, fl := d.GetTiming(); fl != 2302 {
		t.Fatal(fl)
	}
}

func TestDev_DeInit_streaming(t *testing.T) {
	s, d := initDev(t, vd6gtest.Config(vd6g.RGBNIR))
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	if err := d.DeInit(); err != nil {
		t.Fatal(err)
	}
	if f := s.FSM(); f != vd6g.FSMSWStandby {
		t.Fatal(f)
	}
	if st := d.GetState(); st != vd6g.Idle {
		t.Fatal(st)
	}
	// DeInit on an uninitialized Dev is a no-op.
	if err := d.DeInit(); err != nil {
		t.Fatal(err)
	}
}

func TestDev_state(t *testing.T) {
	s := vd6gtest.New()
	d := vd6g.New(s.Transport(), &vd6g.Opts{Logger: &testLogger{t: t}})
	if err := d.Start(); !errors.Is(err, vd6g.ErrState) {
		t.Fatal(err)
	}
	if err := d.SetExposure(time.Millisecond); !errors.Is(err, vd6g.ErrState) {
		t.Fatal(err)
	}
	if _, err := d.ReadStatus(); !errors.Is(err, vd6g.ErrState) {
		t.Fatal(err)
	}
	if len(s.Writes) != 0 || s.Reads != 0 {
		t.Fatal("uninitialized Dev touched the sensor")
	}
	if err := d.Init(vd6gtest.Config(vd6g.RGBNIR)); err != nil {
		t.Fatal(err)
	}
	if err := d.Stop(); !errors.Is(err, vd6g.ErrState) {
		t.Fatal(err)
	}
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	n := len(s.Writes)
	if err := d.Start(); !errors.Is(err, vd6g.ErrState) {
		t.Fatal(err)
	}
	if len(s.Writes) != n {
		t.Fatal("rejected Start touched the sensor")
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if st := d.GetState(); st != vd6g.Idle {
		t.Fatal(st)
	}
}

func TestDev_Init_config(t *testing.T) {
	// A color mode on the mono silicon.
	c := vd6gtest.Config(vd6g.Mono)
	c.Mode = vd6g.ModeGSRGB8

	spy := &countingTransport{}
	d := vd6g.New(spy, &vd6g.Opts{Logger: &testLogger{t: t}})
	var ce *vd6g.ConfigError
	if err := d.Init(c); !errors.As(err, &ce) || ce.Field != "mode" {
		t.Fatal(err)
	}
	if spy.calls != 0 {
		t.Fatalf("%d transport calls", spy.calls)
	}

	r := i2ctest.Record{}
	d = vd6g.New(vd6g.NewBus(&i2c.Dev{Bus: &r, Addr: vd6g.I2CAddr}, nil), &vd6g.Opts{Logger: &testLogger{t: t}})
	if err := d.Init(c); !errors.As(err, &ce) {
		t.Fatal(err)
	}
	if len(r.Ops) != 0 {
		t.Fatalf("unexpected I²C transactions: %v", r.Ops)
	}

	// The RGB+NIR blobs on the mono silicon.
	c = vd6gtest.Config(vd6g.Mono)
	c.Firmware = vd6gtest.Firmware(vd6g.RGBNIR)
	s := vd6gtest.New()
	d = vd6g.New(s.Transport(), &vd6g.Opts{Logger: &testLogger{t: t}})
	if err := d.Init(c); !errors.As(err, &ce) || ce.Field != "firmware" {
		t.Fatal(err)
	}
	if s.Reads != 0 || len(s.Writes) != 0 {
		t.Fatalf("%d reads, %d writes", s.Reads, len(s.Writes))
	}
	if err := d.Start(); !errors.Is(err, vd6g.ErrState) {
		t.Fatal(err)
	}
}

func TestDev_Init_identification(t *testing.T) {
	s := vd6gtest.New()
	s.Put32(vd6g.RegROMRevision, 0x15)
	d := vd6g.New(s.Transport(), &vd6g.Opts{Logger: &testLogger{t: t}})
	var ie *vd6g.IdentificationError
	if err := d.Init(vd6gtest.Config(vd6g.RGBNIR)); !errors.As(err, &ie) {
		t.Fatal(err)
	}
	if ie.Addr != vd6g.RegROMRevision || ie.Expected != vd6g.ROMRevision || ie.Actual != 0x15 {
		t.Fatal(ie)
	}
	if f := s.FSM(); f != vd6g.FSMSystemUp {
		t.Fatal(f)
	}
	if err := d.Start(); !errors.Is(err, vd6g.ErrState) {
		t.Fatal(err)
	}
}

func TestDev_Init_timeout(t *testing.T) {
	s := vd6gtest.New()
	s.Stuck[vd6g.RegCmdBoot] = true
	b := s.Transport()
	d := vd6g.New(b, &vd6g.Opts{Logger: &testLogger{t: t}})
	var te *vd6g.TimeoutError
	if err := d.Init(vd6gtest.Config(vd6g.RGBNIR)); !errors.As(err, &te) {
		t.Fatal(err)
	}
	if te.Addr != vd6g.RegCmdBoot || te.Expected != 0 || te.Last != vd6g.CmdLoadCertificate {
		t.Fatal(te)
	}
	if b.Delays < vd6g.PollTimeout {
		t.Fatalf("gave up after %s", b.Delays)
	}
	if err := d.SetAnalogGain(1); !errors.Is(err, vd6g.ErrState) {
		t.Fatal(err)
	}
	// The patch is never sent after the certificate failed to load.
	if w := s.WritesTo(vd6g.RegPatchArea); len(w) != 0 {
		t.Fatal("patch uploaded")
	}
}

func TestDev_Start_timeout(t *testing.T) {
	s, d := initDev(t, vd6gtest.Config(vd6g.RGBNIR))
	s.Stuck[vd6g.RegCmdStandby] = true
	var te *vd6g.TimeoutError
	if err := d.Start(); !errors.As(err, &te) || te.Addr != vd6g.RegCmdStandby {
		t.Fatal(err)
	}
	if st := d.GetState(); st != vd6g.Idle {
		t.Fatal(st)
	}
	if f := s.FSM(); f != vd6g.FSMSWStandby {
		t.Fatal(f)
	}
}

func TestDev_upload(t *testing.T) {
	s, _ := initDev(t, vd6gtest.Config(vd6g.RGBNIR))
	fw := vd6gtest.Firmware(vd6g.RGBNIR)
	chunks := []struct {
		addr vd6g.RegisterAddress
		size int
	}{
		{vd6g.RegCertificateArea, 128},
		{vd6g.RegCertificateArea + 128, 128},
		{vd6g.RegCertificateArea + 256, 44},
	}
	var got []byte
	for _, c := range chunks {
		w := s.WritesTo(c.addr)
		if len(w) != 1 || len(w[0].Data) != c.size {
			t.Fatalf("0x%04X: %v", uint16(c.addr), w)
		}
		got = append(got, w[0].Data...)
	}
	if string(got) != string(fw.Certificate) {
		t.Fatal("certificate corrupted")
	}
	if w := s.WritesTo(vd6g.RegPatchArea); len(w) != 1 || len(w[0].Data) != 128 {
		t.Fatal(w)
	}
	if w := s.WritesTo(vd6g.RegPatchArea + 128); len(w) != 1 || len(w[0].Data) != len(fw.Patch)-128 {
		t.Fatal(w)
	}
	for _, w := range s.Writes {
		if len(w.Data) > vd6g.ChunkSize {
			t.Fatalf("0x%04X: %d bytes", uint16(w.Addr), len(w.Data))
		}
	}
}

func TestDev_gain(t *testing.T) {
	s, d := initDev(t, vd6gtest.Config(vd6g.RGBNIR))
	n := len(s.Writes)
	if err := d.SetAnalogGain(vd6g.MaxAnalogGain + 1); !errors.Is(err, vd6g.ErrOutOfRange) {
		t.Fatal(err)
	}
	if err := d.SetDigitalGain(vd6g.MaxDigitalGain + 1); !errors.Is(err, vd6g.ErrOutOfRange) {
		t.Fatal(err)
	}
	if len(s.Writes) != n {
		t.Fatal("rejected gain was written")
	}
	if g := d.GetDigitalGain(); g != vd6g.DigitalGainUnity {
		t.Fatalf("0x%X", g)
	}
	if err := d.SetAnalogGain(vd6g.MaxAnalogGain); err != nil {
		t.Fatal(err)
	}
	if g, err := d.GetAnalogGain(); err != nil || g != vd6g.MaxAnalogGain {
		t.Fatal(g, err)
	}
	if err := d.SetDigitalGain(0x0200); err != nil {
		t.Fatal(err)
	}
	if g := d.GetDigitalGain(); g != 0x0200 {
		t.Fatalf("0x%X", g)
	}
}

func TestDev_SetDigitalGain(t *testing.T) {
	const r, g, b, ir = 0x0958, 0x095A, 0x095C, 0x095E
	data := []struct {
		mode vd6g.ImageMode
		want []vd6g.RegisterAddress
	}{
		{vd6g.ModeGSNative10, []vd6g.RegisterAddress{r, g, b, ir}},
		{vd6g.ModeGSSplitIR8, []vd6g.RegisterAddress{r, g, b, ir}},
		{vd6g.ModeRSRGB12, []vd6g.RegisterAddress{r, g, b}},
		{vd6g.ModeRSHDRNative10, []vd6g.RegisterAddress{r, g, b}},
		{vd6g.ModeGSIROnly10, []vd6g.RegisterAddress{ir}},
		{vd6g.ModeGSSub4x8, []vd6g.RegisterAddress{ir}},
	}
	for i, line := range data {
		c := vd6gtest.Config(vd6g.RGBNIR)
		c.Mode = line.mode
		s, d := initDev(t, c)
		n := len(s.Writes)
		if err := d.SetDigitalGain(0x0180); err != nil {
			t.Fatal(err)
		}
		w := s.Writes[n:]
		if len(w) != len(line.want) {
			t.Fatalf("#%d: %s: %d writes; want %d", i, line.mode, len(w), len(line.want))
		}
		for j, a := range line.want {
			if w[j].Addr != a || len(w[j].Data) != 2 || w[j].Data[0] != 0x80 || w[j].Data[1] != 0x01 {
				t.Fatalf("#%d: %s: unexpected write %v", i, line.mode, w[j])
			}
		}
	}
}

func TestDev_SetExposure(t *testing.T) {
	const integration, integrationIR, integrationShort = 0x0952, 0x0954, 0x0956
	data := []struct {
		mode vd6g.ImageMode
		e    time.Duration
		want map[vd6g.RegisterAddress]uint16
	}{
		// 10ms at 14480ns per line.
		{vd6g.ModeGSNative10, 10 * time.Millisecond, map[vd6g.RegisterAddress]uint16{integration: 691}},
		{vd6g.ModeRSNative10, 10 * time.Millisecond, map[vd6g.RegisterAddress]uint16{integration: 691}},
		{vd6g.ModeGSSplitRGBNIR10, 10 * time.Millisecond, map[vd6g.RegisterAddress]uint16{integration: 691, integrationIR: 691}},
		{vd6g.ModeRSHDRRGB10, 10 * time.Millisecond, map[vd6g.RegisterAddress]uint16{integration: 691, integrationShort: 34}},
		// Rounded up.
		{vd6g.ModeGSNative10, 50 * time.Microsecond, map[vd6g.RegisterAddress]uint16{integration: 4}},
		// The short exposure has a floor.
		{vd6g.ModeRSHDRNative10, 30 * time.Microsecond, map[vd6g.RegisterAddress]uint16{integration: 3, integrationShort: 2}},
	}
	for i, line := range data {
		c := vd6gtest.Config(vd6g.RGBNIR)
		c.Mode = line.mode
		s, d := initDev(t, c)
		n := len(s.Writes)
		if err := d.SetExposure(line.e); err != nil {
			t.Fatalf("#%d: %v", i, err)
		}
		if w := len(s.Writes) - n; w != len(line.want) {
			t.Fatalf("#%d: %d writes; want %d", i, w, len(line.want))
		}
		for a, v := range line.want {
			if got := s.Get16(a); got != v {
				t.Fatalf("#%d: 0x%04X: got %d; want %d", i, uint16(a), got, v)
			}
		}
		want := time.Duration(line.want[integration]) * 14480 * time.Nanosecond
		if got, err := d.GetExposure(); err != nil || got != want {
			t.Fatalf("#%d: %s %v", i, got, err)
		}
	}
}

func TestDev_SetExposure_range(t *testing.T) {
	data := []struct {
		mode vd6g.ImageMode
		e    time.Duration
	}{
		// 1 line, below the global shutter minimum of 4.
		{vd6g.ModeGSNative10, 10 * time.Microsecond},
		// 3 lines.
		{vd6g.ModeGSSplitIR10, 40 * time.Microsecond},
		// 1 line, below the rolling shutter minimum of 2.
		{vd6g.ModeRSRGB10, 10 * time.Microsecond},
		{vd6g.ModeRSNative8, 0},
		{vd6g.ModeRSNative8, -time.Millisecond},
		// Longer than a frame.
		{vd6g.ModeGSNative10, 40 * time.Millisecond},
	}
	for i, line := range data {
		c := vd6gtest.Config(vd6g.RGBNIR)
		c.Mode = line.mode
		s, d := initDev(t, c)
		n := len(s.Writes)
		if err := d.SetExposure(line.e); !errors.Is(err, vd6g.ErrOutOfRange) {
			t.Fatalf("#%d: %v", i, err)
		}
		if len(s.Writes) != n {
			t.Fatalf("#%d: rejected exposure was written", i)
		}
	}
}

func TestDev_Hold(t *testing.T) {
	s, d := initDev(t, vd6gtest.Config(vd6g.RGBNIR))
	if err := d.Hold(true); err != nil {
		t.Fatal(err)
	}
	if v := s.Regs[vd6g.RegGroupParamHold]; v != 1 {
		t.Fatal(v)
	}
	if err := d.Hold(false); err != nil {
		t.Fatal(err)
	}
	if v := s.Regs[vd6g.RegGroupParamHold]; v != 0 {
		t.Fatal(v)
	}
}

func TestDev_transportError(t *testing.T) {
	s, d := initDev(t, vd6gtest.Config(vd6g.RGBNIR))
	busErr := errors.New("bus error")
	s.Err = busErr
	if err := d.SetAnalogGain(1); !errors.Is(err, busErr) {
		t.Fatal(err)
	}
	if err := d.Start(); !errors.Is(err, busErr) {
		t.Fatal(err)
	}
	if st := d.GetState(); st != vd6g.Idle {
		t.Fatal(st)
	}

	l := &testLogger{t: t}
	s = vd6gtest.New()
	d = vd6g.New(s.Transport(), &vd6g.Opts{Logger: l})
	if err := d.Init(vd6gtest.Config(vd6g.RGBNIR)); err != nil {
		t.Fatal(err)
	}
	s.Err = busErr
	if _, err := d.ReadStatus(); !errors.Is(err, busErr) {
		t.Fatal(err)
	}
	if l.errors != 1 {
		t.Fatalf("%d errors logged", l.errors)
	}
}

func TestDev_String(t *testing.T) {
	_, d := initDev(t, vd6gtest.Config(vd6g.RGBNIR))
	if s := d.String(); s != "vd6g{rgbnir, 1920x1080, gs-native-10}" {
		t.Fatal(s)
	}
}

//

func initDev(t *testing.T, c *vd6g.Config) (*vd6gtest.Sensor, *vd6g.Dev) {
	s := vd6gtest.New()
	d := vd6g.New(s.Transport(), &vd6g.Opts{Logger: &testLogger{t: t}})
	if err := d.Init(c); err != nil {
		t.Fatal(err)
	}
	return s, d
}

type testLogger struct {
	t      *testing.T
	errors int
}

func (l *testLogger) Errorf(format string, args ...interface{}) {
	l.errors++
	l.t.Logf("E "+format, args...)
}

func (l *testLogger) Warningf(format string, args ...interface{}) {
	l.t.Logf("W "+format, args...)
}

func (l *testLogger) Noticef(format string, args ...interface{}) {
	l.t.Logf("I "+format, args...)
}

func (l *testLogger) Debugf(level int, format string, args ...interface{}) {
	if level <= 1 {
		l.t.Logf("D "+format, args...)
	}
}

// countingTransport fails every call and counts them.
type countingTransport struct {
	calls int
}

var errCounting = errors.New("countingTransport")

func (c *countingTransport) Read8(vd6g.RegisterAddress) (uint8, error) {
	c.calls++
	return 0, errCounting
}

func (c *countingTransport) Read16(vd6g.RegisterAddress) (uint16, error) {
	c.calls++
	return 0, errCounting
}

func (c *countingTransport) Read32(vd6g.RegisterAddress) (uint32, error) {
	c.calls++
	return 0, errCounting
}

func (c *countingTransport) Write8(vd6g.RegisterAddress, uint8) error {
	c.calls++
	return errCounting
}

func (c *countingTransport) Write16(vd6g.RegisterAddress, uint16) error {
	c.calls++
	return errCounting
}

func (c *countingTransport) Write32(vd6g.RegisterAddress, uint32) error {
	c.calls++
	return errCounting
}

func (c *countingTransport) WriteArray(vd6g.RegisterAddress, []byte) error {
	c.calls++
	return errCounting
}

func (c *countingTransport) Delay(time.Duration) {
	c.calls++
}

func (c *countingTransport) SetShutdown(gpio.Level) error {
	c.calls++
	return errCounting
}
