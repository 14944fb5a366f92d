package loader

import (
	"github.com/ymjing/cloud-hypervisor/igvm"
	"github.com/ymjing/cloud-hypervisor/snp"
)

// Acceptance is how the page-import sink treats a page: whether its
// contents enter the launch measurement and which special handling the
// platform applies.
type Acceptance int

const (
	// AcceptExclusive is a private, measured page.
	AcceptExclusive Acceptance = iota

	// AcceptExclusiveUnmeasured is a private page excluded from the
	// launch measurement, used for late-filled parameter pages.
	AcceptExclusiveUnmeasured

	// AcceptSecrets is the platform secrets page.
	AcceptSecrets

	// AcceptCpuid is the platform CPUID page.
	AcceptCpuid

	// AcceptVpContext is an initial VP state page.
	AcceptVpContext
)

// Classification pairs the isolation page type recorded for the commit
// pipeline with the acceptance the import sink applies.
type Classification struct {
	PageType   snp.IsolatedPageType
	Acceptance Acceptance
}

// Classify maps a page-data directive's declared type and flags to its
// classification. Page data types outside the supported set fail the
// load; silently accepting one would produce a guest whose measurement
// does not match what the operator expects.
func Classify(dataType igvm.PageDataType, flags igvm.PageDataFlags) (Classification, error) {
	switch dataType {
	case igvm.PageDataNormal:
		if flags.Unmeasured() {
			return Classification{snp.PageTypeUnmeasured, AcceptExclusiveUnmeasured}, nil
		}

		return Classification{snp.PageTypeNormal, AcceptExclusive}, nil
	case igvm.PageDataSecrets:
		return Classification{snp.PageTypeSecrets, AcceptSecrets}, nil
	case igvm.PageDataCpuid:
		return Classification{snp.PageTypeCpuid, AcceptCpuid}, nil
	default:
		return Classification{}, invariantf("unsupported page data type %d", dataType)
	}
}
