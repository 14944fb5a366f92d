package loader_test

import (
	"testing"

	"github.com/ymjing/cloud-hypervisor/igvm"
	"github.com/ymjing/cloud-hypervisor/loader"
	"github.com/ymjing/cloud-hypervisor/snp"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		dataType igvm.PageDataType
		flags    igvm.PageDataFlags
		want     loader.Classification
		fatal    bool
	}{
		{
			name:     "normal measured",
			dataType: igvm.PageDataNormal,
			want:     loader.Classification{PageType: snp.PageTypeNormal, Acceptance: loader.AcceptExclusive},
		},
		{
			name:     "normal unmeasured",
			dataType: igvm.PageDataNormal,
			flags:    igvm.PageDataFlags(0x2),
			want:     loader.Classification{PageType: snp.PageTypeUnmeasured, Acceptance: loader.AcceptExclusiveUnmeasured},
		},
		{
			name:     "secrets",
			dataType: igvm.PageDataSecrets,
			want:     loader.Classification{PageType: snp.PageTypeSecrets, Acceptance: loader.AcceptSecrets},
		},
		{
			name:     "cpuid",
			dataType: igvm.PageDataCpuid,
			want:     loader.Classification{PageType: snp.PageTypeCpuid, Acceptance: loader.AcceptCpuid},
		},
		{
			name:     "cpuid xf unsupported",
			dataType: igvm.PageDataCpuidXF,
			fatal:    true,
		},
		{
			name:     "unknown unsupported",
			dataType: igvm.PageDataType(0x99),
			fatal:    true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := loader.Classify(tt.dataType, tt.flags)

			if tt.fatal {
				if !loader.IsInvariantViolation(err) {
					t.Fatalf("err = %v, want an invariant violation", err)
				}

				return
			}

			if err != nil {
				t.Fatal(err)
			}

			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
