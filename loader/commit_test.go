package loader_test

import (
	"strings"
	"testing"

	"github.com/ymjing/cloud-hypervisor/igvm"
	"github.com/ymjing/cloud-hypervisor/loader"
	"github.com/ymjing/cloud-hypervisor/snp"
)

func TestSortAndGroup(t *testing.T) {
	t.Parallel()

	page := func(gpa uint64, t snp.IsolatedPageType) loader.GpaPage {
		return loader.GpaPage{GPA: gpa, PageType: t, PageSize: snp.PageSize}
	}

	// Five records, two types: group boundaries appear exactly where the
	// type changes in address order, regardless of physical adjacency.
	pages := []loader.GpaPage{
		page(0x1000, snp.PageTypeNormal),
		page(0x2000, snp.PageTypeNormal),
		page(0x3000, snp.PageTypeSecrets),
		page(0x5000, snp.PageTypeSecrets),
		page(0x6000, snp.PageTypeNormal),
	}

	groups := loader.SortAndGroup(pages)

	wantGPAs := [][]uint64{{0x1000, 0x2000}, {0x3000, 0x5000}, {0x6000}}
	wantTypes := []snp.IsolatedPageType{snp.PageTypeNormal, snp.PageTypeSecrets, snp.PageTypeNormal}

	if len(groups) != len(wantGPAs) {
		t.Fatalf("got %d groups, want %d", len(groups), len(wantGPAs))
	}

	for i, group := range groups {
		if group[0].PageType != wantTypes[i] {
			t.Errorf("group %d type = %v, want %v", i, group[0].PageType, wantTypes[i])
		}

		if len(group) != len(wantGPAs[i]) {
			t.Fatalf("group %d has %d pages, want %d", i, len(group), len(wantGPAs[i]))
		}

		for j, p := range group {
			if p.GPA != wantGPAs[i][j] {
				t.Errorf("group %d page %d gpa = 0x%x, want 0x%x", i, j, p.GPA, wantGPAs[i][j])
			}
		}
	}
}

func TestSortAndGroupSortsFirst(t *testing.T) {
	t.Parallel()

	pages := []loader.GpaPage{
		{GPA: 0x6000, PageType: snp.PageTypeNormal},
		{GPA: 0x1000, PageType: snp.PageTypeNormal},
		{GPA: 0x3000, PageType: snp.PageTypeSecrets},
	}

	groups := loader.SortAndGroup(pages)

	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}

	if groups[0][0].GPA != 0x1000 || groups[1][0].GPA != 0x3000 || groups[2][0].GPA != 0x6000 {
		t.Errorf("groups not in ascending address order: %+v", groups)
	}
}

func TestSortAndGroupEmpty(t *testing.T) {
	t.Parallel()

	if groups := loader.SortAndGroup(nil); len(groups) != 0 {
		t.Errorf("got %d groups for empty input, want 0", len(groups))
	}
}

func TestCommitOrdering(t *testing.T) {
	t.Parallel()

	mem, cpus, hv, log := testCollaborators(2)

	page := make([]byte, igvm.PageSize)

	file := imageFile(
		&igvm.PageData{GPA: 0x1000, CompatibilityMask: 0x1, DataType: igvm.PageDataNormal, Data: page},
		&igvm.PageData{GPA: 0x2000, CompatibilityMask: 0x1, DataType: igvm.PageDataSecrets, Data: page},
		&igvm.SnpVPContext{GPA: 0x6000, CompatibilityMask: 0x1, VPIndex: 0, Vmsa: &snp.Vmsa{}},
	)

	if _, err := loader.Load(file, mem, cpus, hv, loader.Options{}); err != nil {
		t.Fatal(err)
	}

	var imports, sevWrites int

	lastImport, firstSev, lastSev, completeAt := -1, -1, -1, -1

	for i, call := range log.calls {
		switch {
		case strings.HasPrefix(call, "import"):
			imports++
			lastImport = i
		case strings.HasPrefix(call, "sev_control"):
			sevWrites++

			if firstSev < 0 {
				firstSev = i
			}

			lastSev = i
		case call == "complete":
			completeAt = i
		}
	}

	if imports != 3 {
		t.Errorf("got %d import calls, want 3 (normal, secrets, vmsa)", imports)
	}

	if sevWrites != 2 {
		t.Errorf("got %d sev control writes, want one per vcpu", sevWrites)
	}

	if completeAt < 0 {
		t.Fatal("complete was never called")
	}

	// Protocol contract: every import precedes every register write, and
	// every register write precedes finalize.
	if !(lastImport < firstSev && lastSev < completeAt) {
		t.Errorf("call order violated: %v", log.calls)
	}
}
