package mshv

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// HV_X64_REGISTER_SEV_CONTROL
const registerSevControl = 0x00090040

type createVP struct {
	VPIndex uint32
}

type registerAssoc struct {
	Name     uint32
	Reserved [3]uint32
	Value    [16]byte
}

type setVPRegisters struct {
	Count     uint32
	Reserved  uint32
	Registers [1]registerAssoc
}

// VCPUSet is the partition's virtual processors.
type VCPUSet struct {
	fds []uintptr
}

// CreateVCPUs creates n virtual processors on the partition.
func (vm *VM) CreateVCPUs(n int) (*VCPUSet, error) {
	set := &VCPUSet{}

	for i := 0; i < n; i++ {
		args := createVP{VPIndex: uint32(i)}

		fd, err := Ioctl(vm.fd,
			IIOW(mshvCreateVP, unsafe.Sizeof(args)),
			uintptr(unsafe.Pointer(&args)))
		if err != nil {
			set.Close()

			return nil, fmt.Errorf("create vp %d: %w", i, err)
		}

		set.fds = append(set.fds, fd)
	}

	return set, nil
}

// Count returns the number of virtual processors.
func (c *VCPUSet) Count() int {
	return len(c.fds)
}

// SetSevControlRegister writes the isolation control register of one
// virtual processor.
func (c *VCPUSet) SetSevControlRegister(cpu int, value uint64) error {
	if cpu < 0 || cpu >= len(c.fds) {
		return fmt.Errorf("no such vcpu %d", cpu)
	}

	args := setVPRegisters{Count: 1}
	args.Registers[0].Name = registerSevControl

	for i := 0; i < 8; i++ {
		args.Registers[0].Value[i] = byte(value >> (8 * i))
	}

	_, err := Ioctl(c.fds[cpu],
		IIOW(mshvSetVPRegisters, unsafe.Sizeof(args)),
		uintptr(unsafe.Pointer(&args)))

	return err
}

// Close releases all virtual processor fds.
func (c *VCPUSet) Close() error {
	for _, fd := range c.fds {
		if err := unix.Close(int(fd)); err != nil {
			return err
		}
	}

	c.fds = nil

	return nil
}
