package loader

import "github.com/ymjing/cloud-hypervisor/snp"

// GpaPage records one page committed to the isolation pipeline.
type GpaPage struct {
	GPA      uint64
	PageType snp.IsolatedPageType
	PageSize uint32
}

// LoadedInfo is the measurement-relevant state accumulated while
// loading a boot image: the VP0 initial state and where it lives, the
// signed ID block, the guest addresses the image requires, and the full
// page list the commit pipeline imported. Callers keep it for
// attestation and debugging; it is never mutated after Load returns.
type LoadedInfo struct {
	VmsaGPA      uint64
	Vmsa         snp.Vmsa
	IDBlock      snp.IDBlock
	RequiredGPAs []uint64
	Pages        []GpaPage

	// PageDigest is a blake3 digest over the measured page contents in
	// file order. It is a host-side diagnostic for comparing two loads
	// of the same image, not the platform launch measurement.
	PageDigest [32]byte
}
