package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/arch/x86/x86asm"

	"github.com/ymjing/cloud-hypervisor/igvm"
)

var inspectDisasmGPA string

var inspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Decode a boot image and summarize its directives",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		file, err := igvm.Decode(data)
		if err != nil {
			return fmt.Errorf("decode igvm file: %w", err)
		}

		for _, p := range file.Platforms {
			fmt.Printf("platform: type=%d mask=0x%x vtl=%d shared_gpa_boundary=0x%x\n",
				p.PlatformType, p.CompatibilityMask, p.HighestVTL, p.SharedGPABoundary)
		}

		for i, d := range file.Directives {
			fmt.Printf("%4d: %s\n", i, describe(d))
		}

		if inspectDisasmGPA != "" {
			var gpa uint64
			if _, err := fmt.Sscanf(inspectDisasmGPA, "0x%x", &gpa); err != nil {
				return fmt.Errorf("parse --disasm gpa %q: %w", inspectDisasmGPA, err)
			}

			return disasmPage(file, gpa)
		}

		return nil
	},
}

// disasmPage disassembles the content of the page-data directive at gpa.
func disasmPage(file *igvm.File, gpa uint64) error {
	for _, d := range file.Directives {
		page, ok := d.(*igvm.PageData)
		if !ok || page.GPA != gpa || len(page.Data) == 0 {
			continue
		}

		buf := page.Data
		addr := gpa

		for len(buf) > 0 {
			inst, err := x86asm.Decode(buf, 64)
			if err != nil {
				return nil
			}

			fmt.Printf("0x%x: %s\n", addr, x86asm.GNUSyntax(inst, addr, nil))
			buf = buf[inst.Len:]
			addr += uint64(inst.Len)
		}

		return nil
	}

	return fmt.Errorf("no page data directive at gpa 0x%x", gpa)
}

func describe(d igvm.Directive) string {
	switch d := d.(type) {
	case *igvm.PageData:
		return fmt.Sprintf("page data      gpa=0x%x type=%d unmeasured=%t len=0x%x",
			d.GPA, d.DataType, d.Flags.Unmeasured(), len(d.Data))
	case *igvm.ParameterArea:
		return fmt.Sprintf("parameter area index=%d size=0x%x initial=0x%x",
			d.ParameterAreaIndex, d.NumberOfBytes, len(d.InitialData))
	case *igvm.ParameterInsert:
		return fmt.Sprintf("param insert   gpa=0x%x index=%d", d.GPA, d.ParameterAreaIndex)
	case *igvm.VPCount:
		return fmt.Sprintf("vp count       index=%d offset=0x%x",
			d.Ref.ParameterAreaIndex, d.Ref.ByteOffset)
	case *igvm.MemoryMap:
		return fmt.Sprintf("memory map     index=%d offset=0x%x",
			d.Ref.ParameterAreaIndex, d.Ref.ByteOffset)
	case *igvm.CommandLine:
		return fmt.Sprintf("command line   index=%d offset=0x%x",
			d.Ref.ParameterAreaIndex, d.Ref.ByteOffset)
	case *igvm.RequiredMemory:
		return fmt.Sprintf("required mem   gpa=0x%x size=0x%x", d.GPA, d.NumberOfBytes)
	case *igvm.SnpVPContext:
		return fmt.Sprintf("vp context     gpa=0x%x vp=%d rip=0x%x",
			d.GPA, d.VPIndex, d.Vmsa.RIP)
	case *igvm.SnpIDBlock:
		return fmt.Sprintf("snp id block   version=%d svn=%d", d.Block.Version, d.Block.GuestSVN)
	case *igvm.MmioRanges:
		return "mmio ranges    (unsupported by loader)"
	case *igvm.ErrorRange:
		return fmt.Sprintf("error range    gpa=0x%x (unsupported by loader)", d.GPA)
	case *igvm.Unsupported:
		return fmt.Sprintf("unknown header type=0x%x (unsupported by loader)", d.Type)
	default:
		return fmt.Sprintf("%T", d)
	}
}

func init() {
	inspectCmd.Flags().StringVar(&inspectDisasmGPA, "disasm", "",
		"disassemble the page data directive at this gpa (hex, e.g. 0xffe00000)")
}
