package igvm

import (
	"bytes"
	"encoding/binary"

	"github.com/ymjing/cloud-hypervisor/snp"
)

// Directive is one typed instruction of the boot image. The set of
// variants is closed: decoding maps every known header type to one of
// the structs below and everything else to Unsupported, so a consumer
// switching over Directive can reject unknown kinds explicitly instead
// of skipping them.
//
// Mask returns the directive's compatibility mask. Parameter-location
// directives (VPCount, MemoryMap, CommandLine) carry no mask of their
// own; for those ok is false and the caller substitutes the platform
// mask.
type Directive interface {
	Mask() (mask uint32, ok bool)
}

// PageData imports one page of content at GPA.
type PageData struct {
	GPA               uint64
	CompatibilityMask uint32
	Flags             PageDataFlags
	DataType          PageDataType
	Data              []byte
}

// ParameterArea declares a writable scratch region, identified by
// ParameterAreaIndex, that later parameter directives fill.
type ParameterArea struct {
	NumberOfBytes      uint64
	ParameterAreaIndex uint32
	InitialData        []byte
}

// ParameterInsert commits a previously declared parameter area to guest
// memory at GPA.
type ParameterInsert struct {
	GPA                uint64
	CompatibilityMask  uint32
	ParameterAreaIndex uint32
}

// VPCount requests the virtual processor count at the referenced
// parameter location.
type VPCount struct {
	Ref ParameterRef
}

// MemoryMap requests the synthesized guest memory map at the referenced
// parameter location.
type MemoryMap struct {
	Ref ParameterRef
}

// CommandLine requests the null-terminated kernel command line at the
// referenced parameter location.
type CommandLine struct {
	Ref ParameterRef
}

// RequiredMemory declares a guest range that must be backed by RAM
// before launch.
type RequiredMemory struct {
	GPA               uint64
	CompatibilityMask uint32
	NumberOfBytes     uint32
	VTL2Protectable   bool
}

// SnpVPContext carries the initial VMSA for one virtual processor.
type SnpVPContext struct {
	GPA               uint64
	CompatibilityMask uint32
	VPIndex           uint16
	Vmsa              *snp.Vmsa
}

// SnpIDBlock carries the signed identity of the guest image, forwarded
// verbatim to the launch finalize step.
type SnpIDBlock struct {
	Block snp.IDBlock
}

// MmioRanges declares guest MMIO ranges. Not supported by the loader.
type MmioRanges struct {
	CompatibilityMask uint32
}

// ErrorRange declares a range for error reporting. Not supported by the
// loader.
type ErrorRange struct {
	GPA               uint64
	CompatibilityMask uint32
}

// Unsupported stands in for any header type this package does not
// model. Type is the raw variable header type.
type Unsupported struct {
	Type uint32
}

func (d *PageData) Mask() (uint32, bool)        { return d.CompatibilityMask, true }
func (d *ParameterArea) Mask() (uint32, bool)   { return 0, false }
func (d *ParameterInsert) Mask() (uint32, bool) { return d.CompatibilityMask, true }
func (d *VPCount) Mask() (uint32, bool)         { return 0, false }
func (d *MemoryMap) Mask() (uint32, bool)       { return 0, false }
func (d *CommandLine) Mask() (uint32, bool)     { return 0, false }
func (d *RequiredMemory) Mask() (uint32, bool)  { return d.CompatibilityMask, true }
func (d *SnpVPContext) Mask() (uint32, bool)    { return d.CompatibilityMask, true }
func (d *SnpIDBlock) Mask() (uint32, bool)      { return d.Block.CompatibilityMask, true }
func (d *MmioRanges) Mask() (uint32, bool)      { return d.CompatibilityMask, true }
func (d *ErrorRange) Mask() (uint32, bool)      { return d.CompatibilityMask, true }
func (d *Unsupported) Mask() (uint32, bool)     { return 0, false }

// EncodeMemoryMapEntries serializes the entry table in its little
// endian wire format, ready to be written into a parameter area.
func EncodeMemoryMapEntries(entries []MemoryMapEntry) ([]byte, error) {
	buf := new(bytes.Buffer)

	for i := range entries {
		if err := binary.Write(buf, binary.LittleEndian, &entries[i]); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}
