package snp

import (
	"bytes"
	"encoding/binary"
)

// CpuidPageEntries is the number of leaf slots in the CPUID page.
const CpuidPageEntries = 64

// CpuidFunc is one CPUID leaf of the SNP CPUID page.
type CpuidFunc struct {
	EaxIn    uint32
	EcxIn    uint32
	Xcr0In   uint64
	XssIn    uint64
	Eax      uint32
	Ebx      uint32
	Ecx      uint32
	Edx      uint32
	Reserved uint64
}

// CpuidInfo is the firmware-visible CPUID page structure.
type CpuidInfo struct {
	Count     uint32
	Reserved1 uint32
	Reserved2 uint64
	Entries   [CpuidPageEntries]CpuidFunc
}

// CanonicalCpuidInfo returns the fixed CPUID page the loader writes for
// CPUID page-data directives: a single zeroed entry and nothing else.
// The boot image's own leaf table is deliberately not forwarded; leaf
// filtering against the host is unimplemented, and an un-validated
// table must not reach the measured guest.
func CanonicalCpuidInfo() *CpuidInfo {
	return &CpuidInfo{Count: 1}
}

// Bytes encodes the page structure in its little endian layout.
func (c *CpuidInfo) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, c); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
