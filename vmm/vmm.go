// Package vmm wires the collaborators together: it builds the guest
// address space and the hypervisor partition from a Config, then drives
// the IGVM loader over a boot image.
package vmm

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ymjing/cloud-hypervisor/igvm"
	"github.com/ymjing/cloud-hypervisor/loader"
	"github.com/ymjing/cloud-hypervisor/memory"
	"github.com/ymjing/cloud-hypervisor/mshv"
)

const (
	// Firmware load region. This should come from the boot image's
	// required-memory directives eventually; for now it mirrors the
	// fixed layout the images in use expect.
	firmwareBase = 0xffe0_0000
	firmwareSize = 0x20_0000

	// Region backing the VMSA page.
	vmsaBase = 0xffff_ffff_f000
	vmsaSize = 0x1000
)

// VMM owns the collaborators for one guest under construction.
type VMM struct {
	Config

	mem  *memory.Memory
	vm   *mshv.VM
	cpus *mshv.VCPUSet

	// Loaded is the measurement-relevant record of the last successful
	// Load.
	Loaded *loader.LoadedInfo
}

// New returns a VMM for the given configuration.
func New(c Config) *VMM {
	return &VMM{Config: c}
}

// Init creates the partition, its virtual processors, and the guest RAM
// layout.
func (v *VMM) Init() error {
	vm, err := mshv.NewVM(v.Device, mshv.IsolationSNP)
	if err != nil {
		return err
	}

	v.vm = vm

	if v.cpus, err = vm.CreateVCPUs(v.NCPUs); err != nil {
		return err
	}

	v.mem = memory.New()

	if _, err := v.mem.AddRAMRegion(0, uint64(v.MemSize)); err != nil {
		return err
	}

	if _, err := v.mem.AddRAMRegion(firmwareBase, firmwareSize); err != nil {
		return err
	}

	if _, err := v.mem.AddRAMRegion(vmsaBase, vmsaSize); err != nil {
		return err
	}

	return nil
}

// Load reads the boot image, interprets its directives into guest
// memory, and runs the isolation commit. On success v.Loaded holds the
// record.
func (v *VMM) Load() error {
	data, err := os.ReadFile(v.Image)
	if err != nil {
		return fmt.Errorf("read igvm file: %w", err)
	}

	file, err := igvm.Decode(data)
	if err != nil {
		return fmt.Errorf("decode igvm file: %w", err)
	}

	info, err := loader.Load(file, v.mem, v.cpus, v.vm, loader.Options{
		CommandLine: v.CommandLine,
		HostData:    v.HostData,
	})
	if err != nil {
		return err
	}

	v.Loaded = info

	if v.Debug {
		if asm, err := v.DisasmEntry(8); err == nil {
			for _, line := range asm {
				slog.Debug("entry", "insn", line)
			}
		}
	}

	return nil
}

// Close releases the partition, processors and guest memory.
func (v *VMM) Close() error {
	if v.cpus != nil {
		if err := v.cpus.Close(); err != nil {
			return err
		}
	}

	if v.vm != nil {
		if err := v.vm.Close(); err != nil {
			return err
		}
	}

	if v.mem != nil {
		return v.mem.Free()
	}

	return nil
}
