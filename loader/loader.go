// Package loader interprets a decoded IGVM directive stream into guest
// memory and drives the SEV-SNP isolated-import protocol that turns that
// memory into a measured guest.
//
// A load is a single sequential pass: directives are consumed in file
// order because later ones reference parameter areas and record state
// established by earlier ones. When the stream is exhausted the commit
// pipeline imports every recorded page, writes the isolation control
// register on each virtual processor, and finalizes the launch
// measurement, in that order.
package loader

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/ymjing/cloud-hypervisor/igvm"
	"github.com/ymjing/cloud-hypervisor/memory"
	"github.com/ymjing/cloud-hypervisor/snp"
)

// Memory is the guest-memory collaborator: page-granular writes at
// guest physical addresses plus the queries the loader needs.
type Memory interface {
	WriteAt(p []byte, gpa uint64) error
	RAMRanges() []memory.Range
	HostAddr(gpa uint64) (uint64, error)
	VerifyAvailable(gpa, size uint64) error
}

// VCPUSet is the virtual-processor collaborator.
type VCPUSet interface {
	Count() int
	SetSevControlRegister(cpu int, value uint64) error
}

// IsolationBackend is the hypervisor's isolated-import interface.
type IsolationBackend interface {
	ImportIsolatedPages(pageType snp.IsolatedPageType, pageSize uint32, pfns, hostAddrs []uint64) error
	CompleteIsolatedImport(block snp.IDBlock, hostData [snp.HostDataSize]byte, vmsaCount uint32) error
}

// Options are the host-supplied inputs to a load.
type Options struct {
	// CommandLine is the kernel command line. It must not contain
	// embedded null bytes; the loader appends the terminator.
	CommandLine string

	// HostData is the hex-encoded 32-byte measurement salt passed to
	// launch finalize. Empty means an all-zero salt.
	HostData string
}

// Load interprets the boot image's directives into guest memory and
// commits the recorded pages through the isolation backend. On success
// the returned record is fully populated and all isolated pages are
// committed; on error no guest state is usable.
func Load(file *igvm.File, mem Memory, cpus VCPUSet, hv IsolationBackend, opts Options) (*LoadedInfo, error) {
	if strings.IndexByte(opts.CommandLine, 0) >= 0 {
		return nil, ErrInvalidCommandLine
	}

	cmdline := append([]byte(opts.CommandLine), 0)

	hostData, err := decodeHostData(opts.HostData)
	if err != nil {
		return nil, err
	}

	if len(file.Platforms) == 0 {
		return nil, invariantf("no platform header")
	}

	platform := file.Platforms[0]
	if platform.PlatformType != igvm.PlatformSevSnp {
		return nil, invariantf("unsupported platform type %d", platform.PlatformType)
	}

	ld := &loadState{
		mem:    mem,
		cpus:   cpus,
		mask:   platform.CompatibilityMask,
		params: NewParameterAreas(),
		digest: blake3.New(),
		info:   &LoadedInfo{},
	}
	ld.cmdline = cmdline

	for i, d := range file.Directives {
		if err := ld.checkMask(d); err != nil {
			return nil, fmt.Errorf("directive %d: %w", i, err)
		}

		if err := ld.apply(d); err != nil {
			return nil, fmt.Errorf("directive %d: %w", i, err)
		}
	}

	ld.digest.Sum(ld.info.PageDigest[:0])

	if err := commit(mem, cpus, hv, ld.info, hostData); err != nil {
		return nil, err
	}

	slog.Info("igvm image loaded",
		"pages", len(ld.info.Pages),
		"vmsa_gpa", fmt.Sprintf("0x%x", ld.info.VmsaGPA),
		"page_digest", hex.EncodeToString(ld.info.PageDigest[:]))

	return ld.info, nil
}

type loadState struct {
	mem     Memory
	cpus    VCPUSet
	mask    uint32
	cmdline []byte
	params  *ParameterAreas
	digest  *blake3.Hasher
	info    *LoadedInfo
}

// checkMask verifies the directive targets the running platform
// configuration. Directives without their own mask inherit the
// platform's.
func (ld *loadState) checkMask(d igvm.Directive) error {
	mask, ok := d.Mask()
	if !ok {
		mask = ld.mask
	}

	if mask&ld.mask != ld.mask {
		return invariantf("compatibility mask 0x%x does not cover platform mask 0x%x",
			mask, ld.mask)
	}

	return nil
}

func (ld *loadState) apply(d igvm.Directive) error {
	switch d := d.(type) {
	case *igvm.PageData:
		return ld.pageData(d)
	case *igvm.ParameterArea:
		return ld.params.Declare(d.ParameterAreaIndex, d.NumberOfBytes, d.InitialData)
	case *igvm.VPCount:
		count := make([]byte, 4)
		binary.LittleEndian.PutUint32(count, uint32(ld.cpus.Count()))

		return ld.params.Fill(d.Ref.ParameterAreaIndex, d.Ref.ByteOffset, count)
	case *igvm.MemoryMap:
		entries, err := generateMemoryMap(ld.mem.RAMRanges())
		if err != nil {
			return err
		}

		encoded, err := igvm.EncodeMemoryMapEntries(entries)
		if err != nil {
			return err
		}

		return ld.params.Fill(d.Ref.ParameterAreaIndex, d.Ref.ByteOffset, encoded)
	case *igvm.CommandLine:
		return ld.params.Fill(d.Ref.ParameterAreaIndex, d.Ref.ByteOffset, ld.cmdline)
	case *igvm.RequiredMemory:
		ld.info.RequiredGPAs = append(ld.info.RequiredGPAs, d.GPA)

		if err := ld.mem.VerifyAvailable(d.GPA, uint64(d.NumberOfBytes)); err != nil {
			return fmt.Errorf("gpa 0x%x: %w: %w", d.GPA, ErrStartupMemory, err)
		}

		return nil
	case *igvm.SnpVPContext:
		return ld.vpContext(d)
	case *igvm.SnpIDBlock:
		ld.info.IDBlock = d.Block

		return nil
	case *igvm.ParameterInsert:
		return ld.parameterInsert(d)
	default:
		return invariantf("unsupported directive %T", d)
	}
}

func (ld *loadState) pageData(d *igvm.PageData) error {
	if d.Flags.Is2MB() {
		return invariantf("2MiB page data at gpa 0x%x is not supported", d.GPA)
	}

	if len(d.Data) != 0 && len(d.Data) != igvm.PageSize {
		return invariantf("page data at gpa 0x%x has size 0x%x", d.GPA, len(d.Data))
	}

	cls, err := Classify(d.DataType, d.Flags)
	if err != nil {
		return err
	}

	ld.info.Pages = append(ld.info.Pages, GpaPage{
		GPA:      d.GPA,
		PageType: cls.PageType,
		PageSize: snp.PageSize,
	})

	data := d.Data

	// The CPUID page never carries the image's raw leaf table through:
	// the canonical minimal structure is written instead, because leaf
	// filtering against the host is unimplemented.
	if d.DataType == igvm.PageDataCpuid {
		b, err := snp.CanonicalCpuidInfo().Bytes()
		if err != nil {
			return err
		}

		data = b
	}

	return ld.importPages(d.GPA/igvm.PageSize, 1, cls.Acceptance, data)
}

func (ld *loadState) vpContext(d *igvm.SnpVPContext) error {
	if d.GPA%igvm.PageSize != 0 {
		return invariantf("vp context gpa 0x%x is not page aligned", d.GPA)
	}

	ld.info.VmsaGPA = d.GPA
	ld.info.Vmsa = *d.Vmsa

	// Only VP0 is materialized as a guest page. Other indices are still
	// recorded in the page list; multi-VP contexts are unimplemented.
	if d.VPIndex == 0 {
		b, err := d.Vmsa.Bytes()
		if err != nil {
			return err
		}

		page := make([]byte, igvm.PageSize)
		copy(page, b)

		if err := ld.importPages(d.GPA/igvm.PageSize, 1, AcceptVpContext, page); err != nil {
			return err
		}
	} else {
		slog.Warn("vp context for nonzero index not materialized", "vp_index", d.VPIndex)
	}

	ld.info.Pages = append(ld.info.Pages, GpaPage{
		GPA:      d.GPA,
		PageType: snp.PageTypeVmsa,
		PageSize: snp.PageSize,
	})

	return nil
}

func (ld *loadState) parameterInsert(d *igvm.ParameterInsert) error {
	if d.GPA%igvm.PageSize != 0 {
		return invariantf("parameter insert gpa 0x%x is not page aligned", d.GPA)
	}

	data, maxSize, err := ld.params.TakeForInsert(d.ParameterAreaIndex)
	if err != nil {
		return err
	}

	if err := ld.importPages(d.GPA/igvm.PageSize, maxSize/igvm.PageSize,
		AcceptExclusiveUnmeasured, data); err != nil {
		return err
	}

	// One record per insert, not per page. Parameter areas in practice
	// are single pages.
	ld.info.Pages = append(ld.info.Pages, GpaPage{
		GPA:      d.GPA,
		PageType: snp.PageTypeUnmeasured,
		PageSize: snp.PageSize,
	})

	return nil
}

// importPages writes count pages at pfn through the guest-memory sink,
// zero-padding data to the page boundary. Measured exclusive pages also
// feed the diagnostic digest.
func (ld *loadState) importPages(pfn, count uint64, acceptance Acceptance, data []byte) error {
	buf := make([]byte, count*igvm.PageSize)
	copy(buf, data)

	if err := ld.mem.WriteAt(buf, pfn*igvm.PageSize); err != nil {
		return err
	}

	if acceptance == AcceptExclusive {
		ld.digest.Write(buf)
	}

	return nil
}

func decodeHostData(s string) ([snp.HostDataSize]byte, error) {
	var out [snp.HostDataSize]byte

	if s == "" {
		return out, nil
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrDecodeHostData, err)
	}

	if len(b) != snp.HostDataSize {
		return out, fmt.Errorf("%w: got %d bytes, want %d", ErrDecodeHostData, len(b), snp.HostDataSize)
	}

	copy(out[:], b)

	return out, nil
}
