package mshv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/ymjing/cloud-hypervisor/snp"
)

// Numeric page type encoding of the hv_isolated_page_type enum. The
// loader deals in semantic types only; this table is the single place a
// backend's encoding lives.
var pageTypes = map[snp.IsolatedPageType]uint32{
	snp.PageTypeNormal:     0, // HV_ISOLATED_PAGE_TYPE_NORMAL
	snp.PageTypeVmsa:       1, // HV_ISOLATED_PAGE_TYPE_VMSA
	snp.PageTypeUnmeasured: 2, // HV_ISOLATED_PAGE_TYPE_UNMEASURED
	snp.PageTypeSecrets:    3, // HV_ISOLATED_PAGE_TYPE_SECRETS
	snp.PageTypeCpuid:      4, // HV_ISOLATED_PAGE_TYPE_CPUID
}

// HV_ISOLATED_PAGE_SIZE_4KB. Only 4KiB isolated pages are supported.
const isolatedPageSize4KB = 0

type importIsolatedPagesHeader struct {
	PageType  uint32
	PageSize  uint32
	PageCount uint64
}

// ImportIsolatedPages issues one batched import for a group of pages of
// a single type. The request carries the page frame numbers and the
// host linear addresses of their contents.
func (vm *VM) ImportIsolatedPages(pageType snp.IsolatedPageType, pageSize uint32, pfns, hostAddrs []uint64) error {
	if len(pfns) != len(hostAddrs) {
		return fmt.Errorf("pfn/host address count mismatch: %d != %d", len(pfns), len(hostAddrs))
	}

	if pageSize != snp.PageSize {
		return fmt.Errorf("unsupported isolated page size 0x%x", pageSize)
	}

	typ, ok := pageTypes[pageType]
	if !ok {
		return fmt.Errorf("unsupported isolated page type %v", pageType)
	}

	hdr := importIsolatedPagesHeader{
		PageType:  typ,
		PageSize:  isolatedPageSize4KB,
		PageCount: uint64(len(pfns)),
	}

	buf := new(bytes.Buffer)

	for _, v := range []any{&hdr, pfns, hostAddrs} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	req := buf.Bytes()

	_, err := Ioctl(vm.fd,
		IIOW(mshvImportIsolatedPages, unsafe.Sizeof(hdr)),
		uintptr(unsafe.Pointer(&req[0])))

	return err
}

type completeIsolatedImportArgs struct {
	IDBlock   snp.IDBlock
	HostData  [snp.HostDataSize]byte
	VmsaCount uint32
	Reserved  uint32
}

// CompleteIsolatedImport finalizes the launch measurement with the
// image's signed ID block and the host measurement salt.
func (vm *VM) CompleteIsolatedImport(block snp.IDBlock, hostData [snp.HostDataSize]byte, vmsaCount uint32) error {
	args := completeIsolatedImportArgs{
		IDBlock:   block,
		HostData:  hostData,
		VmsaCount: vmsaCount,
	}

	_, err := Ioctl(vm.fd,
		IIOW(mshvCompleteIsolatedImport, unsafe.Sizeof(args)),
		uintptr(unsafe.Pointer(&args)))

	return err
}
