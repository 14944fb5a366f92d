// Package snp holds the SEV-SNP platform structures and constants the
// loader and the hypervisor backend share: isolated page types, the
// initial VMSA, the signed ID block, and the CPUID page layout.
package snp

// PageSize and PageShift are the isolated page granularity. Only 4KiB
// isolated pages are supported.
const (
	PageSize  = 0x1000
	PageShift = 12
)

// HostDataSize is the size of the host-supplied measurement salt passed
// to launch finalize.
const HostDataSize = 32

// IsolatedPageType classifies a page for the isolated-import protocol.
// The values here are semantic; the hypervisor backend translates them
// to its own numeric encoding at import time, so an alternate backend
// only touches that translation table.
type IsolatedPageType uint32

const (
	PageTypeNormal IsolatedPageType = iota
	PageTypeUnmeasured
	PageTypeSecrets
	PageTypeCpuid
	PageTypeVmsa
)

func (t IsolatedPageType) String() string {
	switch t {
	case PageTypeNormal:
		return "normal"
	case PageTypeUnmeasured:
		return "unmeasured"
	case PageTypeSecrets:
		return "secrets"
	case PageTypeCpuid:
		return "cpuid"
	case PageTypeVmsa:
		return "vmsa"
	}

	return "unknown"
}
