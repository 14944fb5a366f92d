// Package mshv wraps the /dev/mshv ioctl surface the loader needs: a
// root partition with virtual processors, batched isolated page import,
// launch finalize, and the per-VP isolation control register write. It
// satisfies the loader's IsolationBackend and VCPUSet interfaces.
package mshv

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevicePath is the Microsoft hypervisor device node.
const DevicePath = "/dev/mshv"

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	// MSHV_IOCTL
	mshvIoc = 0xB8
)

const (
	mshvCreatePartition        = 0x00
	mshvInitializePartition    = 0x01
	mshvCreateVP               = 0x04
	mshvSetVPRegisters         = 0x06
	mshvImportIsolatedPages    = 0x18
	mshvCompleteIsolatedImport = 0x19
)

// Ioctl issues one ioctl against fd.
func Ioctl(fd, op, arg uintptr) (uintptr, error) {
	res, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, op, arg)

	var err error
	if errno != 0 {
		err = errno
	}

	return res, err
}

// IIOW computes the ioctl op for a write-direction request.
func IIOW(nr, size uintptr) uintptr {
	return iocWrite<<iocDirShift | mshvIoc<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

// IIOWR computes the ioctl op for a read-write request.
func IIOWR(nr, size uintptr) uintptr {
	return (iocWrite|iocRead)<<iocDirShift | mshvIoc<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

type createPartition struct {
	Flags             uint64
	PartitionCreation uint64
	IsolationType     uint64
}

// Partition isolation types, HV_PARTITION_ISOLATION_TYPE_*.
const (
	IsolationNone uint64 = 0
	IsolationVBS  uint64 = 1
	IsolationSNP  uint64 = 2
)

// VM is an mshv partition.
type VM struct {
	dev *os.File
	fd  uintptr
}

// NewVM opens the hypervisor device and creates a partition with the
// given isolation type.
func NewVM(devPath string, isolation uint64) (*VM, error) {
	dev, err := os.OpenFile(devPath, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", devPath, err)
	}

	args := createPartition{IsolationType: isolation}

	fd, err := Ioctl(dev.Fd(),
		IIOWR(mshvCreatePartition, unsafe.Sizeof(args)),
		uintptr(unsafe.Pointer(&args)))
	if err != nil {
		dev.Close()

		return nil, fmt.Errorf("create partition: %w", err)
	}

	vm := &VM{dev: dev, fd: fd}

	if _, err := Ioctl(vm.fd, IIOW(mshvInitializePartition, 0), 0); err != nil {
		vm.Close()

		return nil, fmt.Errorf("initialize partition: %w", err)
	}

	return vm, nil
}

// Close releases the partition and the device.
func (vm *VM) Close() error {
	if err := unix.Close(int(vm.fd)); err != nil {
		return err
	}

	return vm.dev.Close()
}
