// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vd6g

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"periph.io/x/periph/conn/physic"
)

// Config is the sensor configuration. It is validated as a whole by Init
// before any register is accessed and must not be modified afterward.
type Config struct {
	Variant     Variant          // Silicon family; selects the firmware and the color layouts.
	ExtClock    physic.Frequency // Clock fed to the sensor, [12MHz, 50MHz].
	Resolution  Resolution       //
	FPS         uint32           // Requested frame rate.
	Mode        ImageMode        //
	Orientation Orientation      //
	Pattern     Pattern          // Test pattern generator.
	MIPI        MIPIConfig       //
	VTSync      VTSync           //
	GPIO        [NumGPIO]GPIO    //
	Firmware    *Firmware        // Blobs for Variant, see LoadFirmware.
}

// MIPIConfig describes the CSI-2 output interface.
type MIPIConfig struct {
	DataRateMbps uint32   // Per lane, [250, 1500].
	Lanes        uint8    // 2 or 4.
	LaneMap      [4]uint8 // Physical lane used for each logical data lane.
	LaneSwap     [4]bool  // Swap P/N of each logical data lane.
	ClockSwap    bool     // Swap P/N of the clock lane.
}

// Variant is the sensor silicon family.
type Variant uint8

// Valid values for Variant.
const (
	Mono   Variant = 0 // VD56G3.
	RGBNIR Variant = 1 // VD66GY.
)

var variantNames = []string{"mono", "rgbnir"}

func (v Variant) String() string {
	return enumString("Variant", variantNames, int(v))
}

// ParseVariant returns the Variant for its name.
func ParseVariant(s string) (Variant, error) {
	i, err := parseEnum("variant", variantNames, s)
	return Variant(i), err
}

// Resolution is one of the supported output sizes. Each is a crop centered in
// the pixel array.
type Resolution uint8

// Valid values for Resolution.
const (
	Res2560x1984 Resolution = iota
	Res2048x1536
	Res1984x1984
	Res1920x1080
	Res1600x1200
	Res1280x720
	Res1024x768
	Res640x480
	Res320x240
	numResolutions
)

// Pixel array size.
const (
	MaxWidth  = 2560
	MaxHeight = 1984
)

var resolutionSizes = [numResolutions]image.Point{
	{2560, 1984},
	{2048, 1536},
	{1984, 1984},
	{1920, 1080},
	{1600, 1200},
	{1280, 720},
	{1024, 768},
	{640, 480},
	{320, 240},
}

// Crop returns the area of the pixel array read out for this resolution.
// Returns an empty rectangle for an unknown value.
func (r Resolution) Crop() image.Rectangle {
	if r >= numResolutions {
		return image.Rectangle{}
	}
	s := resolutionSizes[r]
	// Centered, rounded down to a multiple of 4.
	left := (MaxWidth - s.X) / 2 &^ 3
	top := (MaxHeight - s.Y) / 2 &^ 3
	return image.Rect(left, top, left+s.X, top+s.Y)
}

func (r Resolution) String() string {
	if r >= numResolutions {
		return "Resolution(" + strconv.Itoa(int(r)) + ")"
	}
	s := resolutionSizes[r]
	return fmt.Sprintf("%dx%d", s.X, s.Y)
}

// ParseResolution parses a "WxH" string.
func ParseResolution(s string) (Resolution, error) {
	for i := Resolution(0); i < numResolutions; i++ {
		if i.String() == strings.ToLower(s) {
			return i, nil
		}
	}
	return 0, &ConfigError{Field: "resolution", Reason: fmt.Sprintf("unknown %q", s)}
}

// ImageMode selects the readout and the color processing done by the sensor.
type ImageMode uint8

// Valid values for ImageMode.
//
// GS is global shutter, RS is rolling shutter. Native keeps the color filter
// layout of the silicon (RGB+NIR or mono), RGB outputs a standard bayer,
// split outputs the color and the IR images alternately, IR outputs only the
// NIR channel and sub-sampled modes skip pixels to output a mono image.
const (
	ModeGSNative8 ImageMode = iota
	ModeGSNative10
	ModeGSRGB8
	ModeGSRGB10
	ModeGSSplitRGBNIR8
	ModeGSSplitRGBNIR10
	ModeGSSplitIR8
	ModeGSSplitIR10
	ModeGSIROnly8
	ModeGSIROnly10
	ModeGSSub2x8
	ModeGSSub2x10
	ModeGSSub4x8
	ModeGSSub4x10
	ModeGSSub32x8
	ModeRSNative8
	ModeRSNative10
	ModeRSNative12
	ModeRSRGB8
	ModeRSRGB10
	ModeRSRGB12
	ModeRSHDRNative10
	ModeRSHDRNative12
	ModeRSHDRRGB10
	ModeRSHDRRGB12
	numModes
)

// modeClass groups the modes sharing the same processing.
type modeClass uint8

const (
	classGSNative modeClass = iota
	classGSRGB
	classGSSplitRGBNIR
	classGSSplitIR
	classGSIROnly
	classGSSubsampled
	classRSNative
	classRSRGB
	classHDRNative
	classHDRRGB
)

type modeInfo struct {
	name  string
	class modeClass
	depth uint8
}

var modes = [numModes]modeInfo{
	{"gs-native-8", classGSNative, 8},
	{"gs-native-10", classGSNative, 10},
	{"gs-rgb-8", classGSRGB, 8},
	{"gs-rgb-10", classGSRGB, 10},
	{"gs-split-rgbnir-8", classGSSplitRGBNIR, 8},
	{"gs-split-rgbnir-10", classGSSplitRGBNIR, 10},
	{"gs-split-ir-8", classGSSplitIR, 8},
	{"gs-split-ir-10", classGSSplitIR, 10},
	{"gs-ir-8", classGSIROnly, 8},
	{"gs-ir-10", classGSIROnly, 10},
	{"gs-sub2-8", classGSSubsampled, 8},
	{"gs-sub2-10", classGSSubsampled, 10},
	{"gs-sub4-8", classGSSubsampled, 8},
	{"gs-sub4-10", classGSSubsampled, 10},
	{"gs-sub32-8", classGSSubsampled, 8},
	{"rs-native-8", classRSNative, 8},
	{"rs-native-10", classRSNative, 10},
	{"rs-native-12", classRSNative, 12},
	{"rs-rgb-8", classRSRGB, 8},
	{"rs-rgb-10", classRSRGB, 10},
	{"rs-rgb-12", classRSRGB, 12},
	{"rs-hdr-native-10", classHDRNative, 10},
	{"rs-hdr-native-12", classHDRNative, 12},
	{"rs-hdr-rgb-10", classHDRRGB, 10},
	{"rs-hdr-rgb-12", classHDRRGB, 12},
}

// BitDepth returns the number of bits per pixel output in this mode, or 0 for
// an unknown mode.
func (m ImageMode) BitDepth() int {
	if m >= numModes {
		return 0
	}
	return int(modes[m].depth)
}

func (m ImageMode) String() string {
	if m >= numModes {
		return "ImageMode(" + strconv.Itoa(int(m)) + ")"
	}
	return modes[m].name
}

// ParseImageMode returns the ImageMode for its name, e.g. "gs-native-10".
func ParseImageMode(s string) (ImageMode, error) {
	s = strings.ToLower(s)
	for i := range modes {
		if modes[i].name == s {
			return ImageMode(i), nil
		}
	}
	return 0, &ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown %q", s)}
}

// Orientation is the readout direction. The value is the register encoding.
type Orientation uint8

// Valid values for Orientation.
const (
	OrientNone   Orientation = 0
	OrientMirror Orientation = 1 // Horizontal.
	OrientFlip   Orientation = 2 // Vertical.
	OrientBoth   Orientation = 3
)

var orientationNames = []string{"none", "mirror", "flip", "both"}

func (o Orientation) String() string {
	return enumString("Orientation", orientationNames, int(o))
}

// ParseOrientation returns the Orientation for its name.
func ParseOrientation(s string) (Orientation, error) {
	i, err := parseEnum("orientation", orientationNames, s)
	return Orientation(i), err
}

// Pattern selects the test pattern generator.
type Pattern uint8

// Valid values for Pattern.
const (
	PatternDisabled Pattern = iota
	PatternDiagonalGray
	PatternPseudoRandom
	numPatterns
)

var patternNames = []string{"disabled", "diagonal-gray", "pseudo-random"}

func (p Pattern) String() string {
	return enumString("Pattern", patternNames, int(p))
}

// ParsePattern returns the Pattern for its name.
func ParsePattern(s string) (Pattern, error) {
	i, err := parseEnum("pattern", patternNames, s)
	return Pattern(i), err
}

// reg returns the RegPatternCtrl encoding: bit 0 enables the generator, bits
// 4-7 select the pattern.
func (p Pattern) reg() uint16 {
	switch p {
	case PatternDiagonalGray:
		return 0x0021
	case PatternPseudoRandom:
		return 0x0041
	default:
		return 0
	}
}

// VTSync is the vertical timing synchronization role.
type VTSync uint8

// Valid values for VTSync.
const (
	VTSyncMaster VTSync = 0
	VTSyncSlave  VTSync = 1
)

var vtSyncNames = []string{"master", "slave"}

func (v VTSync) String() string {
	return enumString("VTSync", vtSyncNames, int(v))
}

// ParseVTSync returns the VTSync for its name.
func ParseVTSync(s string) (VTSync, error) {
	i, err := parseEnum("vt_sync", vtSyncNames, s)
	return VTSync(i), err
}

// NumGPIO is the number of GPIO pads of the sensor.
const NumGPIO = 4

// GPIOMode is the function of a sensor GPIO pad.
type GPIOMode uint8

// Valid values for GPIOMode.
const (
	GPIOInput GPIOMode = iota
	GPIOOutputLow
	GPIOOutputHigh
	GPIOStrobe
	GPIOVSyncOut
	numGPIOModes
)

var gpioModeNames = []string{"input", "low", "high", "strobe", "vsync"}

func (g GPIOMode) String() string {
	return enumString("GPIOMode", gpioModeNames, int(g))
}

// ParseGPIOMode returns the GPIOMode for its name.
func ParseGPIOMode(s string) (GPIOMode, error) {
	i, err := parseEnum("gpio", gpioModeNames, s)
	return GPIOMode(i), err
}

// GPIO configures one sensor GPIO pad.
type GPIO struct {
	Mode   GPIOMode
	Enable bool
}

func (g GPIO) reg() uint8 {
	v := uint8(g.Mode) & 0x0F
	if g.Enable {
		v |= 0x80
	}
	return v
}

//

func enumString(typ string, names []string, i int) string {
	if i < 0 || i >= len(names) {
		return typ + "(" + strconv.Itoa(i) + ")"
	}
	return names[i]
}

func parseEnum(field string, names []string, s string) (int, error) {
	s = strings.ToLower(s)
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, &ConfigError{Field: field, Reason: fmt.Sprintf("unknown %q; valid values are %s", s, strings.Join(names, ", "))}
}
