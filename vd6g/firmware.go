// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package vd6g

import (
	"fmt"
	"os"
	"path/filepath"
)

// NumVTPatches is the number of vertical timing RAM patches.
const NumVTPatches = 6

// maxVTPatch is the size of each vertical timing RAM area.
const maxVTPatch = 0x200

// Firmware is the set of vendor signed blobs uploaded at boot. Each silicon
// variant has its own.
type Firmware struct {
	Variant     Variant // Silicon the blobs are signed for.
	Certificate []byte
	Patch       []byte
	VTPatches   [NumVTPatches][]byte
}

// LoadFirmware loads the blobs for a variant from dir.
//
// The expected layout is:
//
//	<dir>/<variant>/certificate.bin
//	<dir>/<variant>/patch.bin
//	<dir>/<variant>/vtram0.bin ... vtram5.bin
func LoadFirmware(dir string, v Variant) (*Firmware, error) {
	base := filepath.Join(dir, v.String())
	f := &Firmware{Variant: v}
	var err error
	if f.Certificate, err = os.ReadFile(filepath.Join(base, "certificate.bin")); err != nil {
		return nil, err
	}
	if f.Patch, err = os.ReadFile(filepath.Join(base, "patch.bin")); err != nil {
		return nil, err
	}
	for i := range f.VTPatches {
		if f.VTPatches[i], err = os.ReadFile(filepath.Join(base, fmt.Sprintf("vtram%d.bin", i))); err != nil {
			return nil, err
		}
	}
	return f, f.validate(v)
}

// validate checks that the blobs are for the v silicon and fit in their areas.
func (f *Firmware) validate(v Variant) error {
	if f == nil {
		return &ConfigError{Field: "firmware", Reason: "missing"}
	}
	if f.Variant != v {
		return &ConfigError{Field: "firmware", Reason: fmt.Sprintf("blobs are for %s, not %s", f.Variant, v)}
	}
	if err := checkBlob("firmware.certificate", RegCertificateArea, f.Certificate, int(RegPatchArea-RegCertificateArea)); err != nil {
		return err
	}
	if err := checkBlob("firmware.patch", RegPatchArea, f.Patch, 0x10000-int(RegPatchArea)); err != nil {
		return err
	}
	for i, p := range f.VTPatches {
		if err := checkBlob(fmt.Sprintf("firmware.vtram%d", i), vtRAMAreas[i], p, maxVTPatch); err != nil {
			return err
		}
	}
	return nil
}

func checkBlob(field string, addr RegisterAddress, b []byte, limit int) error {
	if len(b) == 0 {
		return &ConfigError{Field: field, Reason: "empty"}
	}
	if len(b) > limit {
		return &ConfigError{Field: field, Reason: fmt.Sprintf("%d bytes doesn't fit at 0x%04X; max %d", len(b), uint16(addr), limit)}
	}
	return nil
}
