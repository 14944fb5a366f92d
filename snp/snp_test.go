package snp_test

import (
	"testing"

	"github.com/ymjing/cloud-hypervisor/snp"
)

func TestCanonicalCpuidInfo(t *testing.T) {
	t.Parallel()

	info := snp.CanonicalCpuidInfo()

	if info.Count != 1 {
		t.Errorf("Count = %d, want 1", info.Count)
	}

	for i, e := range info.Entries {
		if e != (snp.CpuidFunc{}) {
			t.Errorf("entry %d = %+v, want zero", i, e)
		}
	}

	b, err := info.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	// 16-byte header plus 64 48-byte leaves, fits in one page.
	want := 16 + snp.CpuidPageEntries*48
	if len(b) != want {
		t.Errorf("encoded length = %d, want %d", len(b), want)
	}

	if len(b) > snp.PageSize {
		t.Errorf("encoded CPUID page (%d bytes) exceeds a page", len(b))
	}
}

func TestVmsaBytes(t *testing.T) {
	t.Parallel()

	vmsa := &snp.Vmsa{
		RIP:         0xFFFF_FFF0,
		RSP:         0x8000,
		EFER:        0x1000,
		SevFeatures: 0x1,
		CS: snp.VmsaSegment{
			Selector: 0xF000, Attrib: 0x9B, Limit: 0xFFFF, Base: 0xFFFF_0000,
		},
	}

	b, err := vmsa.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	if len(b) > snp.PageSize {
		t.Fatalf("encoded VMSA (%d bytes) exceeds a page", len(b))
	}

	// CS is the second segment in the save area, directly after ES.
	if got := uint16(b[16]) | uint16(b[17])<<8; got != 0xF000 {
		t.Errorf("CS selector = 0x%x, want 0xF000", got)
	}
}

func TestIsolatedPageTypeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pt   snp.IsolatedPageType
		want string
	}{
		{snp.PageTypeNormal, "normal"},
		{snp.PageTypeUnmeasured, "unmeasured"},
		{snp.PageTypeSecrets, "secrets"},
		{snp.PageTypeCpuid, "cpuid"},
		{snp.PageTypeVmsa, "vmsa"},
	}

	for _, tt := range tests {
		if got := tt.pt.String(); got != tt.want {
			t.Errorf("IsolatedPageType(%d).String() = %q, want %q", tt.pt, got, tt.want)
		}
	}
}
