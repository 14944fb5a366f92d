// Package memory manages the guest physical address space of a VM under
// construction: mmap-backed RAM regions, page-granular access at guest
// physical addresses, and the queries the boot-image loader needs (RAM
// ranges for the memory map parameter, guest-to-host translation for
// isolated page import).
package memory

import (
	"errors"
	"fmt"
	"sort"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	errRegionOverlap  = errors.New("guest region overlaps an existing region")
	errRegionUnmapped = errors.New("guest address not backed by any region")
	errMisaligned     = errors.New("guest region is not page aligned")
)

// PageSize is the guest page granularity.
const PageSize = 0x1000

// Range is a half-open guest physical range [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// Region is one mmap-backed slice of guest RAM.
type Region struct {
	GPA  uint64
	Size uint64
	Buf  []byte
}

// Memory is the set of RAM regions of one guest, kept sorted by guest
// address.
type Memory struct {
	regions []*Region
}

// New returns an empty guest address space.
func New() *Memory {
	return &Memory{}
}

// AddRAMRegion maps size bytes of zeroed anonymous memory at gpa. Both
// must be page aligned and the range must not overlap an existing
// region.
func (m *Memory) AddRAMRegion(gpa, size uint64) (*Region, error) {
	if gpa%PageSize != 0 || size == 0 || size%PageSize != 0 {
		return nil, fmt.Errorf("gpa 0x%x size 0x%x: %w", gpa, size, errMisaligned)
	}

	for _, r := range m.regions {
		if gpa < r.GPA+r.Size && r.GPA < gpa+size {
			return nil, fmt.Errorf("gpa 0x%x size 0x%x: %w", gpa, size, errRegionOverlap)
		}
	}

	buf, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap guest region: %w", err)
	}

	r := &Region{GPA: gpa, Size: size, Buf: buf}
	m.regions = append(m.regions, r)

	sort.Slice(m.regions, func(i, j int) bool {
		return m.regions[i].GPA < m.regions[j].GPA
	})

	return r, nil
}

func (m *Memory) find(gpa, size uint64) (*Region, error) {
	for _, r := range m.regions {
		if gpa >= r.GPA && gpa+size <= r.GPA+r.Size {
			return r, nil
		}
	}

	return nil, fmt.Errorf("gpa 0x%x size 0x%x: %w", gpa, size, errRegionUnmapped)
}

// WriteAt copies p into guest memory at gpa. The whole write must land
// inside a single region.
func (m *Memory) WriteAt(p []byte, gpa uint64) error {
	r, err := m.find(gpa, uint64(len(p)))
	if err != nil {
		return err
	}

	copy(r.Buf[gpa-r.GPA:], p)

	return nil
}

// ReadAt fills p from guest memory at gpa.
func (m *Memory) ReadAt(p []byte, gpa uint64) error {
	r, err := m.find(gpa, uint64(len(p)))
	if err != nil {
		return err
	}

	copy(p, r.Buf[gpa-r.GPA:])

	return nil
}

// RAMRanges returns the usable RAM ranges in ascending guest address
// order. Adjacent regions are not merged; each region is one range.
func (m *Memory) RAMRanges() []Range {
	ranges := make([]Range, 0, len(m.regions))

	for _, r := range m.regions {
		ranges = append(ranges, Range{Start: r.GPA, End: r.GPA + r.Size})
	}

	return ranges
}

// HostAddr translates a guest physical address to the linear address of
// its backing host memory.
func (m *Memory) HostAddr(gpa uint64) (uint64, error) {
	r, err := m.find(gpa, 1)
	if err != nil {
		return 0, err
	}

	return uint64(uintptr(unsafe.Pointer(&r.Buf[gpa-r.GPA]))), nil
}

// VerifyAvailable reports whether [gpa, gpa+size) is fully backed by
// RAM.
func (m *Memory) VerifyAvailable(gpa, size uint64) error {
	_, err := m.find(gpa, size)

	return err
}

// Free unmaps all regions. The Memory is unusable afterwards.
func (m *Memory) Free() error {
	for _, r := range m.regions {
		if err := unix.Munmap(r.Buf); err != nil {
			return err
		}
	}

	m.regions = nil

	return nil
}
