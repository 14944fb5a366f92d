package igvm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ymjing/cloud-hypervisor/snp"
)

var (
	// ErrBadMagic means the input does not start with the IGVM signature.
	ErrBadMagic = errors.New("bad igvm magic")

	// ErrUnsupportedVersion means the container revision is unknown.
	ErrUnsupportedVersion = errors.New("unsupported igvm format version")

	// ErrTruncated means a header or its referenced file data lies
	// outside the input.
	ErrTruncated = errors.New("igvm file truncated")

	// ErrNoPlatform means the file declares no supported platform.
	ErrNoPlatform = errors.New("igvm file has no platform header")
)

// File is a decoded boot image: the platform headers followed by the
// directives in file order. Directives must be consumed sequentially;
// later ones reference state established by earlier ones.
type File struct {
	Platforms  []SupportedPlatform
	Directives []Directive
}

type fixedHeader struct {
	Magic                uint32
	FormatVersion        uint32
	VariableHeaderOffset uint32
	VariableHeaderSize   uint32
	TotalFileSize        uint32
	Checksum             uint32
}

type variableHeader struct {
	Type   uint32
	Length uint32
}

type pageDataHeader struct {
	GPA               uint64
	CompatibilityMask uint32
	FileOffset        uint32
	Flags             uint32
	DataType          uint16
	Reserved          uint16
}

type parameterAreaHeader struct {
	NumberOfBytes      uint64
	ParameterAreaIndex uint32
	FileOffset         uint32
}

type parameterInsertHeader struct {
	GPA                uint64
	CompatibilityMask  uint32
	ParameterAreaIndex uint32
}

type requiredMemoryHeader struct {
	GPA               uint64
	CompatibilityMask uint32
	NumberOfBytes     uint32
	Flags             uint32
	Reserved          uint32
}

type vpContextHeader struct {
	GPA               uint64
	CompatibilityMask uint32
	FileOffset        uint32
	VPIndex           uint16
	Reserved          uint16
}

type errorRangeHeader struct {
	GPA               uint64
	CompatibilityMask uint32
	SizeBytes         uint32
}

// Decode parses an IGVM file image into its platform headers and
// directive list. Directive kinds outside the modeled set decode to
// Unsupported so the consumer can fail them explicitly.
func Decode(data []byte) (*File, error) {
	var fh fixedHeader

	if len(data) < binary.Size(fh) {
		return nil, ErrTruncated
	}

	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &fh); err != nil {
		return nil, err
	}

	if fh.Magic != Magic {
		return nil, ErrBadMagic
	}

	if fh.FormatVersion != FormatVersion1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, fh.FormatVersion)
	}

	end := uint64(fh.VariableHeaderOffset) + uint64(fh.VariableHeaderSize)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("variable headers: %w", ErrTruncated)
	}

	f := &File{}
	off := uint64(fh.VariableHeaderOffset)

	for off < end {
		var vh variableHeader

		content, err := fileBytes(data, off, uint64(binary.Size(vh)))
		if err != nil {
			return nil, err
		}

		if err := binary.Read(bytes.NewReader(content), binary.LittleEndian, &vh); err != nil {
			return nil, err
		}

		off += uint64(binary.Size(vh))

		content, err = fileBytes(data, off, uint64(vh.Length))
		if err != nil {
			return nil, err
		}

		if err := f.decodeHeader(vh.Type, content, data); err != nil {
			return nil, err
		}

		// Contents are padded to 8-byte alignment.
		off += (uint64(vh.Length) + 7) &^ 7
	}

	if len(f.Platforms) == 0 {
		return nil, ErrNoPlatform
	}

	return f, nil
}

func (f *File) decodeHeader(typ uint32, content, data []byte) error {
	r := bytes.NewReader(content)

	switch typ {
	case vhtSupportedPlatform:
		var p SupportedPlatform
		if err := binary.Read(r, binary.LittleEndian, &p); err != nil {
			return err
		}

		f.Platforms = append(f.Platforms, p)
	case vhtPageData:
		var h pageDataHeader
		if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
			return err
		}

		var page []byte

		if h.FileOffset != 0 {
			b, err := fileBytes(data, uint64(h.FileOffset), PageSize)
			if err != nil {
				return err
			}

			page = b
		}

		f.Directives = append(f.Directives, &PageData{
			GPA:               h.GPA,
			CompatibilityMask: h.CompatibilityMask,
			Flags:             PageDataFlags(h.Flags),
			DataType:          PageDataType(h.DataType),
			Data:              page,
		})
	case vhtParameterArea:
		var h parameterAreaHeader
		if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
			return err
		}

		var initial []byte

		if h.FileOffset != 0 {
			b, err := fileBytes(data, uint64(h.FileOffset), h.NumberOfBytes)
			if err != nil {
				return err
			}

			initial = b
		}

		f.Directives = append(f.Directives, &ParameterArea{
			NumberOfBytes:      h.NumberOfBytes,
			ParameterAreaIndex: h.ParameterAreaIndex,
			InitialData:        initial,
		})
	case vhtParameterInsert:
		var h parameterInsertHeader
		if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
			return err
		}

		f.Directives = append(f.Directives, &ParameterInsert{
			GPA:                h.GPA,
			CompatibilityMask:  h.CompatibilityMask,
			ParameterAreaIndex: h.ParameterAreaIndex,
		})
	case vhtVPCount, vhtMemoryMap, vhtCommandLine:
		var ref ParameterRef
		if err := binary.Read(r, binary.LittleEndian, &ref); err != nil {
			return err
		}

		switch typ {
		case vhtVPCount:
			f.Directives = append(f.Directives, &VPCount{Ref: ref})
		case vhtMemoryMap:
			f.Directives = append(f.Directives, &MemoryMap{Ref: ref})
		case vhtCommandLine:
			f.Directives = append(f.Directives, &CommandLine{Ref: ref})
		}
	case vhtRequiredMemory:
		var h requiredMemoryHeader
		if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
			return err
		}

		f.Directives = append(f.Directives, &RequiredMemory{
			GPA:               h.GPA,
			CompatibilityMask: h.CompatibilityMask,
			NumberOfBytes:     h.NumberOfBytes,
			VTL2Protectable:   h.Flags&0x1 != 0,
		})
	case vhtVPContext:
		var h vpContextHeader
		if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
			return err
		}

		vmsa := &snp.Vmsa{}

		if h.FileOffset != 0 {
			b, err := fileBytes(data, uint64(h.FileOffset), uint64(binary.Size(vmsa)))
			if err != nil {
				return err
			}

			if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, vmsa); err != nil {
				return err
			}
		}

		f.Directives = append(f.Directives, &SnpVPContext{
			GPA:               h.GPA,
			CompatibilityMask: h.CompatibilityMask,
			VPIndex:           h.VPIndex,
			Vmsa:              vmsa,
		})
	case vhtSnpIDBlock:
		var b snp.IDBlock
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return err
		}

		f.Directives = append(f.Directives, &SnpIDBlock{Block: b})
	case vhtErrorRange:
		var h errorRangeHeader
		if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
			return err
		}

		f.Directives = append(f.Directives, &ErrorRange{
			GPA:               h.GPA,
			CompatibilityMask: h.CompatibilityMask,
		})
	case vhtMmioRanges:
		var mask uint32
		if err := binary.Read(r, binary.LittleEndian, &mask); err != nil {
			return err
		}

		f.Directives = append(f.Directives, &MmioRanges{CompatibilityMask: mask})
	default:
		f.Directives = append(f.Directives, &Unsupported{Type: typ})
	}

	return nil
}

func fileBytes(data []byte, off, n uint64) ([]byte, error) {
	if off+n > uint64(len(data)) {
		return nil, fmt.Errorf("offset 0x%x size 0x%x: %w", off, n, ErrTruncated)
	}

	return data[off : off+n], nil
}
