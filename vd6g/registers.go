// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vd6g

import "strconv"

// RegisterAddress is a 16 bits register address on the sensor.
type RegisterAddress uint16

// Status and identification registers.
const (
	RegModelID        RegisterAddress = 0x0000 // 32
	RegDeviceRevision RegisterAddress = 0x0004 // 32
	RegUIRevision     RegisterAddress = 0x0008 // 16
	RegROMRevision    RegisterAddress = 0x000C // 32
	RegSystemFSM      RegisterAddress = 0x0044 // 8
	RegSystemError    RegisterAddress = 0x0048 // 16
	RegPatchRevision  RegisterAddress = 0x004A // 16
	RegSystemPLLClock RegisterAddress = 0x0228 // 32  Sampled after boot.
)

// Command registers. Each returns to 0 once the command was consumed.
const (
	RegCmdSystemUp  RegisterAddress = 0x0514 // 8
	RegCmdBoot      RegisterAddress = 0x0515 // 8
	RegCmdStandby   RegisterAddress = 0x0516 // 8
	RegCmdStreaming RegisterAddress = 0x0517 // 8
)

// Output interface registers.
const (
	RegExtClock     RegisterAddress = 0x0734 // 32  Must be written before end of boot.
	RegMIPIDataRate RegisterAddress = 0x0738 // 32  In bits per second.
	RegLaneNumber   RegisterAddress = 0x0743 // 8
	RegLaneMapping  RegisterAddress = 0x0744 // 8   2 bits per logical lane.
	RegLaneSwap     RegisterAddress = 0x0745 // 8   bit0 clock lane, bit1-4 data lanes.
)

// Sensor timing and image registers.
const (
	RegGroupParamHold RegisterAddress = 0x0930 // 8
	RegLineLength     RegisterAddress = 0x0934 // 16
	RegOrientation    RegisterAddress = 0x0937 // 8
	RegPatternCtrl    RegisterAddress = 0x0938 // 16
	RegVTSyncMode     RegisterAddress = 0x093A // 8
	RegDiagDisable0   RegisterAddress = 0x093C // 8
	RegDiagDisable1   RegisterAddress = 0x093D // 8
)

// Bulk areas.
const (
	RegCertificateArea RegisterAddress = 0x1AA8
	RegPatchArea       RegisterAddress = 0x2000
)

// vtRAMAreas are where the vertical timing RAM patches are uploaded, in order.
var vtRAMAreas = [NumVTPatches]RegisterAddress{0x6000, 0x6200, 0x6400, 0x6600, 0x6800, 0x6A00}

// Per context registers, relative to the context base.
const (
	context0Base RegisterAddress = 0x0950

	ctxReadoutMode   RegisterAddress = 0x00 // 8
	ctxAnalogGain    RegisterAddress = 0x01 // 8
	ctxIntegration   RegisterAddress = 0x02 // 16  Primary, or long in HDR.
	ctxIntegrationIR RegisterAddress = 0x04 // 16
	ctxIntegrationSh RegisterAddress = 0x06 // 16  Short exposure in HDR.
	ctxDigitalGainR  RegisterAddress = 0x08 // 16
	ctxDigitalGainG  RegisterAddress = 0x0A // 16
	ctxDigitalGainB  RegisterAddress = 0x0C // 16
	ctxDigitalGainIR RegisterAddress = 0x0E // 16
	ctxFrameLength   RegisterAddress = 0x10 // 16
	ctxXStart        RegisterAddress = 0x12 // 16
	ctxXEnd          RegisterAddress = 0x14 // 16
	ctxYStart        RegisterAddress = 0x16 // 16
	ctxYEnd          RegisterAddress = 0x18 // 16
	ctxOutputFormat  RegisterAddress = 0x1A // 8
	ctxGPIO0         RegisterAddress = 0x1B // 8   4 consecutive registers.
)

// ctx returns the address of a context 0 register.
func ctx(r RegisterAddress) RegisterAddress {
	return context0Base + r
}

// FSMState is the value of RegSystemFSM.
type FSMState uint8

// Valid values for FSMState.
const (
	FSMSystemUp  FSMState = 0x01
	FSMBoot      FSMState = 0x02
	FSMSWStandby FSMState = 0x03
	FSMStreaming FSMState = 0x04
)

func (f FSMState) String() string {
	switch f {
	case FSMSystemUp:
		return "SystemUp"
	case FSMBoot:
		return "Boot"
	case FSMSWStandby:
		return "SWStandby"
	case FSMStreaming:
		return "Streaming"
	default:
		return "FSMState(" + strconv.Itoa(int(f)) + ")"
	}
}

// Command values written to the command registers.
const (
	CmdStartSensor     uint8 = 0x01 // RegCmdSystemUp
	CmdLoadCertificate uint8 = 0x01 // RegCmdBoot
	CmdLoadPatch       uint8 = 0x02 // RegCmdBoot
	CmdEndBoot         uint8 = 0x10 // RegCmdBoot
	CmdStartStreaming  uint8 = 0x01 // RegCmdStandby
	CmdBeginVTRAM      uint8 = 0x08 // RegCmdStandby
	CmdEndVTRAM        uint8 = 0x10 // RegCmdStandby
	CmdStopStreaming   uint8 = 0x01 // RegCmdStreaming

	cmdAck uint8 = 0
)

// Expected identification values.
const (
	ModelID        uint32 = 0x53354731
	DeviceRevision uint32 = 0x00000020
	ROMRevision    uint32 = 0x00000014
	UIRevision     uint16 = 0x0302
)
