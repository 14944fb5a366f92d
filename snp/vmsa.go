package snp

import (
	"bytes"
	"encoding/binary"
)

// VmsaSegment is one segment register in the VMSA save area.
type VmsaSegment struct {
	Selector uint16
	Attrib   uint16
	Limit    uint32
	Base     uint64
}

// Vmsa is the initial register and execution state of a virtual
// processor, imported as a single measured page of its own type. Field
// order follows the SEV-ES save area layout; reserved runs are kept so
// the encoded offsets line up.
type Vmsa struct {
	ES   VmsaSegment
	CS   VmsaSegment
	SS   VmsaSegment
	DS   VmsaSegment
	FS   VmsaSegment
	GS   VmsaSegment
	GDTR VmsaSegment
	LDTR VmsaSegment
	IDTR VmsaSegment
	TR   VmsaSegment

	Reserved1 [42]uint8
	VMPL      uint8
	CPL       uint8
	Reserved2 [4]uint8

	EFER uint64

	Reserved3 [104]uint8

	XSS    uint64
	CR4    uint64
	CR3    uint64
	CR0    uint64
	DR7    uint64
	DR6    uint64
	RFLAGS uint64
	RIP    uint64

	Reserved4 [88]uint8

	RSP uint64

	Reserved5 [24]uint8

	RAX uint64

	Reserved6 [104]uint8

	GPAT      uint64
	RCX       uint64
	RDX       uint64
	RBX       uint64
	Reserved7 uint64
	RBP       uint64
	RSI       uint64
	RDI       uint64
	R8        uint64
	R9        uint64
	R10       uint64
	R11       uint64
	R12       uint64
	R13       uint64
	R14       uint64
	R15       uint64

	Reserved8 [16]uint8

	SwExitCode  uint64
	SwExitInfo1 uint64
	SwExitInfo2 uint64
	SwScratch   uint64

	SevFeatures       uint64
	VirtualTomEnabled uint64
	XCR0              uint64
}

// Bytes encodes the save area in its little endian in-memory layout.
// The result is smaller than a page; the loader zero-pads it into the
// VMSA page.
func (v *Vmsa) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
