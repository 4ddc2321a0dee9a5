// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vd6g

// Timing constants.
const (
	// TargetLineTimeNs is the requested line time. It is above the nominal
	// maximum so a full 10 bits global shutter frame fits over 2 lanes.
	TargetLineTimeNs = 14500
	// MinVBlank is the minimum vertical blanking, in lines.
	MinVBlank = 86
	// MaxFrameLength is the largest value of the frame length register.
	MaxFrameLength = 65535
	// exposureMargin is the number of lines of a frame that cannot be
	// integrated.
	exposureMargin = 8
)

// LineLength returns the line length register value for the sampled PLL
// clock. The result is a multiple of 4.
func LineLength(pllHz uint32) uint16 {
	return uint16(((TargetLineTimeNs * uint64(pllHz)) / 16000000000) * 4)
}

// FrameLength returns the frame length register value to get fps with
// lineLength. It is clamped to [height+MinVBlank, MaxFrameLength].
func FrameLength(pllHz uint32, lineLength uint16, height int, fps uint32) uint16 {
	lo := uint64(height) + MinVBlank
	req := uint64(MaxFrameLength)
	if d := 4 * uint64(lineLength) * uint64(fps); d != 0 {
		req = uint64(pllHz) / d
	}
	if req < lo {
		req = lo
	}
	if req > MaxFrameLength {
		req = MaxFrameLength
	}
	return uint16(req)
}

// lineTimeNs returns the effective duration of a line.
func lineTimeNs(pllHz uint32, lineLength uint16) uint64 {
	if pllHz == 0 {
		return 0
	}
	return 4 * uint64(lineLength) * 1000000000 / uint64(pllHz)
}
