package igvm_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ymjing/cloud-hypervisor/igvm"
)

// buildImage assembles a minimal file: fixed header, then the given
// variable headers (type, content) 8-byte aligned, then extra file data.
func buildImage(t *testing.T, headers []struct {
	typ     uint32
	content any
}, fileData []byte,
) []byte {
	t.Helper()

	var varBuf bytes.Buffer

	for _, h := range headers {
		content := new(bytes.Buffer)
		if err := binary.Write(content, binary.LittleEndian, h.content); err != nil {
			t.Fatal(err)
		}

		if err := binary.Write(&varBuf, binary.LittleEndian,
			[2]uint32{h.typ, uint32(content.Len())}); err != nil {
			t.Fatal(err)
		}

		varBuf.Write(content.Bytes())

		for varBuf.Len()%8 != 0 {
			varBuf.WriteByte(0)
		}
	}

	const fixedSize = 24

	fixed := struct {
		Magic                uint32
		FormatVersion        uint32
		VariableHeaderOffset uint32
		VariableHeaderSize   uint32
		TotalFileSize        uint32
		Checksum             uint32
	}{
		Magic:                igvm.Magic,
		FormatVersion:        igvm.FormatVersion1,
		VariableHeaderOffset: fixedSize,
		VariableHeaderSize:   uint32(varBuf.Len()),
		TotalFileSize:        uint32(fixedSize + varBuf.Len() + len(fileData)),
	}

	out := new(bytes.Buffer)
	if err := binary.Write(out, binary.LittleEndian, &fixed); err != nil {
		t.Fatal(err)
	}

	out.Write(varBuf.Bytes())
	out.Write(fileData)

	return out.Bytes()
}

type header = struct {
	typ     uint32
	content any
}

func platformHeader() header {
	return header{0x1, struct {
		CompatibilityMask uint32
		HighestVTL        uint8
		PlatformType      uint8
		PlatformVersion   uint16
		SharedGPABoundary uint64
	}{CompatibilityMask: 0x1, PlatformType: uint8(igvm.PlatformSevSnp)}}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	// Page data content lives at the end of the file: fixed header (24)
	// + four variable headers.
	pagePayload := bytes.Repeat([]byte{0xAA}, igvm.PageSize)

	headers := []header{
		platformHeader(),
		{0x301, struct {
			NumberOfBytes      uint64
			ParameterAreaIndex uint32
			FileOffset         uint32
		}{NumberOfBytes: 0x1000}},
		{0x30E, struct {
			ParameterAreaIndex uint32
			ByteOffset         uint32
		}{ByteOffset: 4}},
		{0x303, struct {
			GPA                uint64
			CompatibilityMask  uint32
			ParameterAreaIndex uint32
		}{GPA: 0x8000, CompatibilityMask: 0x1}},
	}

	// First build without page data to learn the data offset, then add
	// the page data directive pointing at it.
	base := buildImage(t, headers, nil)
	dataOffset := uint32(len(base) + 8 + 24) // its own header precedes the payload

	headers = append(headers, header{0x302, struct {
		GPA               uint64
		CompatibilityMask uint32
		FileOffset        uint32
		Flags             uint32
		DataType          uint16
		Reserved          uint16
	}{GPA: 0x1000, CompatibilityMask: 0x1, FileOffset: dataOffset, Flags: 0x2}})

	image := buildImage(t, headers, pagePayload)

	f, err := igvm.Decode(image)
	if err != nil {
		t.Fatal(err)
	}

	if len(f.Platforms) != 1 || f.Platforms[0].PlatformType != igvm.PlatformSevSnp {
		t.Fatalf("platforms = %+v", f.Platforms)
	}

	if len(f.Directives) != 4 {
		t.Fatalf("got %d directives, want 4", len(f.Directives))
	}

	area, ok := f.Directives[0].(*igvm.ParameterArea)
	if !ok || area.NumberOfBytes != 0x1000 {
		t.Errorf("directive 0 = %+v, want parameter area of 0x1000", f.Directives[0])
	}

	cmdline, ok := f.Directives[1].(*igvm.CommandLine)
	if !ok || cmdline.Ref.ByteOffset != 4 {
		t.Errorf("directive 1 = %+v, want command line at offset 4", f.Directives[1])
	}

	insert, ok := f.Directives[2].(*igvm.ParameterInsert)
	if !ok || insert.GPA != 0x8000 {
		t.Errorf("directive 2 = %+v, want parameter insert at 0x8000", f.Directives[2])
	}

	page, ok := f.Directives[3].(*igvm.PageData)
	if !ok {
		t.Fatalf("directive 3 = %+v, want page data", f.Directives[3])
	}

	if !page.Flags.Unmeasured() {
		t.Error("page data lost its unmeasured flag")
	}

	if !bytes.Equal(page.Data, pagePayload) {
		t.Error("page data content does not match the file payload")
	}
}

func TestDecodeUnknownHeaderType(t *testing.T) {
	t.Parallel()

	image := buildImage(t, []header{
		platformHeader(),
		{0x7777, uint64(0)},
	}, nil)

	f, err := igvm.Decode(image)
	if err != nil {
		t.Fatal(err)
	}

	u, ok := f.Directives[0].(*igvm.Unsupported)
	if !ok || u.Type != 0x7777 {
		t.Errorf("directive = %+v, want Unsupported{0x7777}", f.Directives[0])
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	valid := buildImage(t, []header{platformHeader()}, nil)

	badMagic := bytes.Clone(valid)
	badMagic[0] = 'X'

	badVersion := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(badVersion[4:], 99)

	truncated := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(truncated[12:], 0xFFFF) // header region out of bounds

	tests := []struct {
		name  string
		image []byte
		want  error
	}{
		{"empty", nil, igvm.ErrTruncated},
		{"bad magic", badMagic, igvm.ErrBadMagic},
		{"bad version", badVersion, igvm.ErrUnsupportedVersion},
		{"truncated headers", truncated, igvm.ErrTruncated},
		{"no platform", buildImage(t, nil, nil), igvm.ErrNoPlatform},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := igvm.Decode(tt.image)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
