// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sensorcfg reads the sensor configuration and the runtime tuning
// files used by the commands.
//
// Any format supported by viper works. A minimal sensor.yaml:
//
//	variant: rgbnir
//	ext_clock_hz: 24000000
//	resolution: 1920x1080
//	fps: 30
//	mode: gs-native-10
//	firmware: /lib/firmware/vd6g
//	mipi:
//	  data_rate: 800
//	  lanes: 2
//	  lane_map: [0, 1]
package sensorcfg

import (
	"fmt"
	"time"

	"github.com/maruel/go-vd6g/vd6g"
	"github.com/spf13/viper"
	"periph.io/x/periph/conn/physic"
)

// File is the on-disk sensor configuration. Enumerations are by name.
type File struct {
	Variant     string `mapstructure:"variant"`
	ExtClockHz  int64  `mapstructure:"ext_clock_hz"`
	Resolution  string `mapstructure:"resolution"`
	FPS         uint32 `mapstructure:"fps"`
	Mode        string `mapstructure:"mode"`
	Orientation string `mapstructure:"orientation"`
	Pattern     string `mapstructure:"pattern"`
	VTSync      string `mapstructure:"vt_sync"`
	Firmware    string `mapstructure:"firmware"` // Directory, see vd6g.LoadFirmware.
	MIPI        struct {
		DataRate  uint32  `mapstructure:"data_rate"`
		Lanes     uint8   `mapstructure:"lanes"`
		LaneMap   []uint8 `mapstructure:"lane_map"`
		LaneSwap  []bool  `mapstructure:"lane_swap"`
		ClockSwap bool    `mapstructure:"clock_swap"`
	} `mapstructure:"mipi"`
	GPIO []struct {
		Mode   string `mapstructure:"mode"`
		Enable bool   `mapstructure:"enable"`
	} `mapstructure:"gpio"`
}

// Read reads a sensor configuration file. When path is empty, vd6g.* is
// searched in /etc/vd6g, $HOME/.config/vd6g and the current directory.
func Read(path string) (*File, error) {
	v := viper.New()
	v.SetDefault("variant", "rgbnir")
	v.SetDefault("ext_clock_hz", 24000000)
	v.SetDefault("resolution", "1920x1080")
	v.SetDefault("fps", 30)
	v.SetDefault("mode", "gs-native-10")
	v.SetDefault("orientation", "none")
	v.SetDefault("pattern", "disabled")
	v.SetDefault("vt_sync", "master")
	v.SetDefault("mipi.data_rate", 800)
	v.SetDefault("mipi.lanes", 2)
	v.SetDefault("mipi.lane_map", []uint8{0, 1, 2, 3})
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vd6g")
		v.AddConfigPath("/etc/vd6g")
		v.AddConfigPath("$HOME/.config/vd6g")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	f := &File{}
	if err := v.Unmarshal(f); err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", v.ConfigFileUsed(), err)
	}
	return f, nil
}

// Config converts the file into a vd6g.Config. The firmware is loaded only if
// fw is nil.
func (f *File) Config(fw *vd6g.Firmware) (*vd6g.Config, error) {
	c := &vd6g.Config{
		ExtClock: physic.Frequency(f.ExtClockHz) * physic.Hertz,
		FPS:      f.FPS,
		MIPI: vd6g.MIPIConfig{
			DataRateMbps: f.MIPI.DataRate,
			Lanes:        f.MIPI.Lanes,
			ClockSwap:    f.MIPI.ClockSwap,
		},
	}
	var err error
	if c.Variant, err = vd6g.ParseVariant(f.Variant); err != nil {
		return nil, err
	}
	if c.Resolution, err = vd6g.ParseResolution(f.Resolution); err != nil {
		return nil, err
	}
	if c.Mode, err = vd6g.ParseImageMode(f.Mode); err != nil {
		return nil, err
	}
	if c.Orientation, err = vd6g.ParseOrientation(f.Orientation); err != nil {
		return nil, err
	}
	if c.Pattern, err = vd6g.ParsePattern(f.Pattern); err != nil {
		return nil, err
	}
	if c.VTSync, err = vd6g.ParseVTSync(f.VTSync); err != nil {
		return nil, err
	}
	if len(f.MIPI.LaneMap) > len(c.MIPI.LaneMap) || len(f.MIPI.LaneSwap) > len(c.MIPI.LaneSwap) {
		return nil, &vd6g.ConfigError{Field: "mipi.lane_map", Reason: "at most 4 lanes"}
	}
	copy(c.MIPI.LaneMap[:], f.MIPI.LaneMap)
	copy(c.MIPI.LaneSwap[:], f.MIPI.LaneSwap)
	if len(f.GPIO) > vd6g.NumGPIO {
		return nil, &vd6g.ConfigError{Field: "gpio", Reason: fmt.Sprintf("at most %d pads", vd6g.NumGPIO)}
	}
	for i, g := range f.GPIO {
		if c.GPIO[i].Mode, err = vd6g.ParseGPIOMode(g.Mode); err != nil {
			return nil, err
		}
		c.GPIO[i].Enable = g.Enable
	}
	if fw == nil {
		if f.Firmware == "" {
			return nil, &vd6g.ConfigError{Field: "firmware", Reason: "no directory set"}
		}
		if fw, err = vd6g.LoadFirmware(f.Firmware, c.Variant); err != nil {
			return nil, err
		}
	}
	c.Firmware = fw
	return c, nil
}

// Tuning is the set of runtime parameters that can be changed while
// streaming. Absent keys are left untouched.
type Tuning struct {
	AnalogGain  *uint8         `mapstructure:"analog_gain"`
	DigitalGain *uint16        `mapstructure:"digital_gain"`
	Exposure    *time.Duration `mapstructure:"exposure"`
}

// ReadTuning reads a tuning file, e.g.:
//
//	analog_gain: 4
//	digital_gain: 0x0180
//	exposure: 10ms
func ReadTuning(path string) (*Tuning, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading tuning file: %w", err)
	}
	t := &Tuning{}
	if err := v.Unmarshal(t); err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}
	return t, nil
}

// Apply sets the tuning on the sensor. The changes are grouped so they take
// effect on the same frame.
func (t *Tuning) Apply(d *vd6g.Dev) error {
	if err := d.Hold(true); err != nil {
		return err
	}
	err := t.apply(d)
	if err2 := d.Hold(false); err == nil {
		err = err2
	}
	return err
}

func (t *Tuning) apply(d *vd6g.Dev) error {
	if t.AnalogGain != nil {
		if err := d.SetAnalogGain(*t.AnalogGain); err != nil {
			return err
		}
	}
	if t.DigitalGain != nil {
		if err := d.SetDigitalGain(*t.DigitalGain); err != nil {
			return err
		}
	}
	if t.Exposure != nil {
		if err := d.SetExposure(*t.Exposure); err != nil {
			return err
		}
	}
	return nil
}
