package loader

import (
	"github.com/ymjing/cloud-hypervisor/igvm"
	"github.com/ymjing/cloud-hypervisor/memory"
)

// generateMemoryMap synthesizes the memory map parameter from the
// guest's current RAM layout, one usable-memory entry per range.
// Region alignment is the memory manager's responsibility; a misaligned
// range here is a layout bug of the same severity as a malformed image.
func generateMemoryMap(ranges []memory.Range) ([]igvm.MemoryMapEntry, error) {
	entries := make([]igvm.MemoryMapEntry, 0, len(ranges))

	for _, r := range ranges {
		if r.Start%igvm.PageSize != 0 || (r.End-r.Start)%igvm.PageSize != 0 {
			return nil, invariantf("ram range [0x%x, 0x%x) is not page aligned", r.Start, r.End)
		}

		entries = append(entries, igvm.MemoryMapEntry{
			StartingGPAPageNumber: r.Start / igvm.PageSize,
			NumberOfPages:         (r.End - r.Start) / igvm.PageSize,
			EntryType:             igvm.MemoryMapEntryMemory,
		})
	}

	return entries, nil
}
