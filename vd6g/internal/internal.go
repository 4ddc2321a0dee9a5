// Copyright 2017 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package internal fingerprints the blobs uploaded to the sensor so a log
// line is enough to tell which firmware a device booted with.
package internal

type table [256]uint16

const ccittFalse = 0x1021

var ccittFalseTable table

func init() {
	makeTable(ccittFalse, &ccittFalseTable)
}

func makeTable(poly uint16, t *table) {
	width := uint16(16)
	for i := uint16(0); i < 256; i++ {
		crc := i << (width - 8)
		for j := 0; j < 8; j++ {
			if crc&(1<<(width-1)) != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
}

func update(crc uint16, t *table, p []byte) uint16 {
	for _, v := range p {
		crc = t[byte(crc>>8)^v] ^ (crc << 8)
	}
	return crc
}

// CRC16 calculates the CCITT-FALSE CRC16 checksum.
func CRC16(d []byte) uint16 {
	return update(0xFFFF, &ccittFalseTable, d)
}
