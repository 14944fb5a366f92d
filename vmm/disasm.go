package vmm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// DisasmEntry disassembles up to n instructions at the loaded VP0 entry
// point. Useful for checking that the measured image actually put code
// where the VMSA says execution starts.
func (v *VMM) DisasmEntry(n int) ([]string, error) {
	if v.Loaded == nil {
		return nil, fmt.Errorf("no image loaded")
	}

	rip := v.Loaded.Vmsa.RIP
	buf := make([]byte, 64)

	if err := v.mem.ReadAt(buf, rip); err != nil {
		return nil, err
	}

	var out []string

	for len(buf) > 0 && len(out) < n {
		inst, err := x86asm.Decode(buf, 64)
		if err != nil {
			return out, fmt.Errorf("decode at 0x%x: %w", rip, err)
		}

		out = append(out, fmt.Sprintf("0x%x: %s", rip, x86asm.GNUSyntax(inst, rip, nil)))
		buf = buf[inst.Len:]
		rip += uint64(inst.Len)
	}

	return out, nil
}
