// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vd6g

import (
	"fmt"

	"periph.io/x/periph/conn/physic"
)

// Accepted ranges.
const (
	MinExtClock     = 12 * physic.MegaHertz
	MaxExtClock     = 50 * physic.MegaHertz
	MinMIPIDataRate = 250  // Mbps
	MaxMIPIDataRate = 1500 // Mbps
)

// GainKind is how the digital gain is applied.
type GainKind uint8

// Valid values for GainKind.
const (
	GainRGBNIR GainKind = iota // R, G, B and IR channels.
	GainRGB                    // R, G and B channels.
	GainIR                     // IR channel only.
)

func (g GainKind) String() string {
	return enumString("GainKind", []string{"rgbnir", "rgb", "ir"}, int(g))
}

// ExposureKind is how the exposure is converted and applied.
type ExposureKind uint8

// Valid values for ExposureKind.
const (
	ExposureGS      ExposureKind = iota // Single integration time, min 4 lines.
	ExposureGSSplit                     // Primary and IR integration times written identically.
	ExposureRS                          // Single integration time, min 2 lines.
	ExposureHDR                         // Long via the RS formula, short at 1/20.
)

func (e ExposureKind) String() string {
	return enumString("ExposureKind", []string{"gs", "gs-split", "rs", "hdr"}, int(e))
}

// minLines returns the minimum integration time in lines.
func (e ExposureKind) minLines() uint32 {
	switch e {
	case ExposureGS, ExposureGSSplit:
		return 4
	default:
		return 2
	}
}

// Capability is the gain and exposure algorithm selected for an ImageMode.
// It is resolved once by Init and never changes afterward.
type Capability struct {
	Gain     GainKind
	Exposure ExposureKind
}

func (c Capability) String() string {
	return fmt.Sprintf("gain:%s exposure:%s", c.Gain, c.Exposure)
}

// Bayer is the color filter layout of the output image, described by its top
// left 2x2 pixels. I is a NIR pixel.
type Bayer uint8

// Valid values for Bayer.
const (
	BayerNone Bayer = iota
	BayerGRBG
	BayerRGGB
	BayerBGGR
	BayerGBRG
	BayerRGIB
	BayerGRBI
	BayerIBRG
	BayerBIGR
)

func (b Bayer) String() string {
	return enumString("Bayer", []string{"none", "GRBG", "RGGB", "BGGR", "GBRG", "RGIB", "GRBI", "IBRG", "BIGR"}, int(b))
}

// ResolveCapability returns the capability used for the mode. It is a many to
// one mapping.
func ResolveCapability(m ImageMode) (Capability, error) {
	if m >= numModes {
		return Capability{}, &ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown %d", m)}
	}
	switch modes[m].class {
	case classGSNative:
		return Capability{GainRGBNIR, ExposureGS}, nil
	case classGSSplitRGBNIR, classGSSplitIR:
		return Capability{GainRGBNIR, ExposureGSSplit}, nil
	case classGSRGB:
		return Capability{GainRGB, ExposureGS}, nil
	case classGSIROnly, classGSSubsampled:
		return Capability{GainIR, ExposureGS}, nil
	case classRSNative:
		return Capability{GainRGBNIR, ExposureRS}, nil
	case classRSRGB:
		return Capability{GainRGB, ExposureRS}, nil
	case classHDRNative, classHDRRGB:
		return Capability{GainRGB, ExposureHDR}, nil
	default:
		panic("internal error")
	}
}

// needsColor returns true if the mode relies on the RGB+NIR color filter.
func (m ImageMode) needsColor() bool {
	switch modes[m].class {
	case classGSRGB, classGSSplitRGBNIR, classGSSplitIR, classGSIROnly, classRSRGB, classHDRRGB:
		return true
	default:
		return false
	}
}

// resolveBayer returns the layout seen in the output image.
//
// The mode must have been validated for the variant.
func resolveBayer(m ImageMode, o Orientation, v Variant) Bayer {
	switch modes[m].class {
	case classGSRGB, classGSSplitRGBNIR, classRSRGB, classHDRRGB:
		return [4]Bayer{BayerGRBG, BayerRGGB, BayerBGGR, BayerGBRG}[o&3]
	case classGSNative, classGSSubsampled, classRSNative, classHDRNative:
		if v == Mono {
			return BayerNone
		}
		return [4]Bayer{BayerRGIB, BayerGRBI, BayerIBRG, BayerBIGR}[o&3]
	case classGSSplitIR, classGSIROnly:
		return BayerNone
	default:
		panic("internal error")
	}
}

// Validate checks the whole configuration and returns the capability for its
// mode. It doesn't access the sensor.
func (c *Config) Validate() (Capability, error) {
	if c.Variant != Mono && c.Variant != RGBNIR {
		return Capability{}, &ConfigError{Field: "variant", Reason: fmt.Sprintf("unknown %d", c.Variant)}
	}
	if c.ExtClock < MinExtClock || c.ExtClock > MaxExtClock {
		return Capability{}, &ConfigError{Field: "ext_clock", Reason: fmt.Sprintf("%s is outside [%s, %s]", c.ExtClock, MinExtClock, MaxExtClock)}
	}
	if r := c.MIPI.DataRateMbps; r < MinMIPIDataRate || r > MaxMIPIDataRate {
		return Capability{}, &ConfigError{Field: "mipi.data_rate", Reason: fmt.Sprintf("%dMbps is outside [%d, %d]", r, MinMIPIDataRate, MaxMIPIDataRate)}
	}
	if c.MIPI.Lanes != 2 && c.MIPI.Lanes != 4 {
		return Capability{}, &ConfigError{Field: "mipi.lanes", Reason: fmt.Sprintf("%d lanes; must be 2 or 4", c.MIPI.Lanes)}
	}
	var used [4]bool
	for i := 0; i < int(c.MIPI.Lanes); i++ {
		p := c.MIPI.LaneMap[i]
		if p >= 4 || used[p] {
			return Capability{}, &ConfigError{Field: "mipi.lane_map", Reason: fmt.Sprintf("logical lane %d maps to invalid or duplicate physical lane %d", i, p)}
		}
		used[p] = true
	}
	if c.Resolution >= numResolutions {
		return Capability{}, &ConfigError{Field: "resolution", Reason: fmt.Sprintf("unknown %d", c.Resolution)}
	}
	if c.FPS == 0 {
		return Capability{}, &ConfigError{Field: "fps", Reason: "must be positive"}
	}
	if c.Mode >= numModes {
		return Capability{}, &ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown %d", c.Mode)}
	}
	if c.Variant == Mono && c.Mode.needsColor() {
		return Capability{}, &ConfigError{Field: "mode", Reason: fmt.Sprintf("%s requires the RGB+NIR variant", c.Mode)}
	}
	if c.Orientation > OrientBoth {
		return Capability{}, &ConfigError{Field: "orientation", Reason: fmt.Sprintf("unknown %d", c.Orientation)}
	}
	if c.Pattern >= numPatterns {
		return Capability{}, &ConfigError{Field: "pattern", Reason: fmt.Sprintf("unknown %d", c.Pattern)}
	}
	if c.VTSync != VTSyncMaster && c.VTSync != VTSyncSlave {
		return Capability{}, &ConfigError{Field: "vt_sync", Reason: fmt.Sprintf("unknown %d", c.VTSync)}
	}
	for i, g := range c.GPIO {
		if g.Mode >= numGPIOModes {
			return Capability{}, &ConfigError{Field: fmt.Sprintf("gpio[%d]", i), Reason: fmt.Sprintf("unknown mode %d", g.Mode)}
		}
	}
	if err := c.Firmware.validate(c.Variant); err != nil {
		return Capability{}, err
	}
	return ResolveCapability(c.Mode)
}
