// Package igvm models the Independent Guest Virtual Machine (IGVM) boot
// image container: the fixed file header, the variable header stream, and
// the typed directives that describe guest memory contents and initial
// virtual processor state.
package igvm

// Magic is the fixed header signature, "IGVM" in little endian.
const Magic = 0x4D564749

// FormatVersion1 is the only container revision this package decodes.
const FormatVersion1 = 1

// PageSize is the hypervisor page granularity used throughout the
// format. All directive addresses and parameter area sizes are multiples
// of it.
const PageSize = 0x1000

// Variable header types. The high ranges separate platform,
// initialization and directive headers.
const (
	vhtSupportedPlatform uint32 = 0x1

	vhtParameterArea   uint32 = 0x301
	vhtPageData        uint32 = 0x302
	vhtParameterInsert uint32 = 0x303
	vhtVPContext       uint32 = 0x304
	vhtRequiredMemory  uint32 = 0x305
	vhtVPCount         uint32 = 0x307
	vhtSnpIDBlock      uint32 = 0x30B
	vhtMemoryMap       uint32 = 0x30C
	vhtErrorRange      uint32 = 0x30D
	vhtCommandLine     uint32 = 0x30E
	vhtMmioRanges      uint32 = 0x30F
)

// PlatformType identifies the isolation technology a platform header
// targets.
type PlatformType uint8

const (
	PlatformNative       PlatformType = 0
	PlatformVSMIsolation PlatformType = 1
	PlatformSevSnp       PlatformType = 2
	PlatformTDX          PlatformType = 3
)

// PageDataType declares the content class of a PageData directive.
type PageDataType uint16

const (
	PageDataNormal  PageDataType = 0
	PageDataSecrets PageDataType = 1
	PageDataCpuid   PageDataType = 2
	PageDataCpuidXF PageDataType = 3
)

// PageDataFlags carries per-page modifiers for a PageData directive.
type PageDataFlags uint32

// Is2MB reports whether the page is a large page. Large pages are not
// supported by the loader and rejected there.
func (f PageDataFlags) Is2MB() bool { return f&0x1 != 0 }

// Unmeasured reports whether the page contents are excluded from the
// launch measurement.
func (f PageDataFlags) Unmeasured() bool { return f&0x2 != 0 }

// Shared reports whether the page is host-shared rather than private.
func (f PageDataFlags) Shared() bool { return f&0x4 != 0 }

// SupportedPlatform is the decoded platform header. The compatibility
// mask links every directive to the platforms it applies to.
type SupportedPlatform struct {
	CompatibilityMask uint32
	HighestVTL        uint8
	PlatformType      PlatformType
	PlatformVersion   uint16
	SharedGPABoundary uint64
}

// ParameterRef locates a run-time parameter inside a declared parameter
// area: which area, and at which byte offset the value is written.
type ParameterRef struct {
	ParameterAreaIndex uint32
	ByteOffset         uint32
}

// MemoryMapEntryType classifies one synthesized memory map entry.
type MemoryMapEntryType uint16

const (
	MemoryMapEntryMemory            MemoryMapEntryType = 0
	MemoryMapEntryPlatformReserved  MemoryMapEntryType = 1
	MemoryMapEntryPersistent        MemoryMapEntryType = 2
	MemoryMapEntryVTL2ProtectedArea MemoryMapEntryType = 3
)

// MemoryMapEntry is the wire format of one entry of the memory map
// parameter, page-granular start and length.
type MemoryMapEntry struct {
	StartingGPAPageNumber uint64
	NumberOfPages         uint64
	EntryType             MemoryMapEntryType
	Flags                 uint16
	Reserved              uint32
}
