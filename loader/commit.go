package loader

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ymjing/cloud-hypervisor/snp"
)

// SortAndGroup orders the recorded pages by ascending guest address and
// partitions them into maximal runs of equal page type in that order. A
// new group starts exactly where the page type differs from the
// immediately preceding record; physical adjacency is irrelevant. One
// batched hypervisor import is issued per group.
func SortAndGroup(pages []GpaPage) [][]GpaPage {
	sorted := make([]GpaPage, len(pages))
	copy(sorted, pages)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].GPA < sorted[j].GPA
	})

	var groups [][]GpaPage

	for _, p := range sorted {
		if n := len(groups); n > 0 && groups[n-1][0].PageType == p.PageType {
			groups[n-1] = append(groups[n-1], p)

			continue
		}

		groups = append(groups, []GpaPage{p})
	}

	return groups
}

// commit runs the isolation handshake over everything the interpreter
// recorded. The ordering is a protocol contract: every page group must
// be imported before any isolation control register is written, and
// every register must be written before finalize.
func commit(mem Memory, cpus VCPUSet, hv IsolationBackend, info *LoadedInfo, hostData [snp.HostDataSize]byte) error {
	start := time.Now()

	for _, group := range SortAndGroup(info.Pages) {
		pfns := make([]uint64, len(group))
		hostAddrs := make([]uint64, len(group))

		for i, p := range group {
			pfns[i] = p.GPA >> snp.PageShift

			addr, err := mem.HostAddr(p.GPA)
			if err != nil {
				return err
			}

			hostAddrs[i] = addr
		}

		slog.Debug("importing isolated pages",
			"page_type", group[0].PageType, "count", len(group))

		if err := hv.ImportIsolatedPages(group[0].PageType, snp.PageSize, pfns, hostAddrs); err != nil {
			return fmt.Errorf("%w: %w", ErrImportIsolatedPages, err)
		}
	}

	slog.Info("isolated page import complete",
		"pages", len(info.Pages), "elapsed", time.Since(start))

	// Initial vCPU isolation state must be set after all imports and
	// before finalize.
	for cpu := 0; cpu < cpus.Count(); cpu++ {
		if err := cpus.SetSevControlRegister(cpu, 0); err != nil {
			return fmt.Errorf("vcpu %d: %w: %w", cpu, ErrSetSevControlRegister, err)
		}
	}

	start = time.Now()

	if err := hv.CompleteIsolatedImport(info.IDBlock, hostData, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrCompleteIsolatedImport, err)
	}

	slog.Info("isolated import finalized", "elapsed", time.Since(start))

	return nil
}
