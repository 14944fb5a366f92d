package loader

import "fmt"

// parameterArea is one declared scratch region. data grows lazily up to
// maxSize as parameters are written; once inserted into guest memory the
// area is terminal and any further use is a format violation.
type parameterArea struct {
	data     []byte
	maxSize  uint64
	inserted bool
}

// ParameterAreas tracks the parameter areas a boot image declares,
// keyed by their small integer index. The registry enforces the format's
// structural rules: each index is declared at most once, filled only
// while allocated, and inserted at most once.
type ParameterAreas struct {
	areas map[uint32]*parameterArea
}

// NewParameterAreas returns an empty registry.
func NewParameterAreas() *ParameterAreas {
	return &ParameterAreas{areas: make(map[uint32]*parameterArea)}
}

// Declare allocates a new area of at most maxSize bytes, optionally
// seeded with initial content. Re-declaring an index is a structural
// violation.
func (p *ParameterAreas) Declare(index uint32, maxSize uint64, initial []byte) error {
	if _, ok := p.areas[index]; ok {
		return invariantf("parameter area %d declared twice", index)
	}

	if uint64(len(initial)) > maxSize {
		return invariantf("parameter area %d initial data 0x%x exceeds declared size 0x%x",
			index, len(initial), maxSize)
	}

	data := make([]byte, len(initial))
	copy(data, initial)

	p.areas[index] = &parameterArea{data: data, maxSize: maxSize}

	return nil
}

// Fill writes data at byteOffset into the area, growing the buffer
// zero-padded as needed. A write past maxSize returns
// ErrParameterTooLarge and leaves the buffer unchanged. Filling an
// unknown or already inserted area is a structural violation.
func (p *ParameterAreas) Fill(index uint32, byteOffset uint32, data []byte) error {
	area, ok := p.areas[index]
	if !ok {
		return invariantf("fill of undeclared parameter area %d", index)
	}

	if area.inserted {
		return invariantf("fill of parameter area %d after insert", index)
	}

	end := uint64(byteOffset) + uint64(len(data))
	if end > area.maxSize {
		return fmt.Errorf("area %d offset 0x%x len 0x%x: %w",
			index, byteOffset, len(data), ErrParameterTooLarge)
	}

	if uint64(len(area.data)) < end {
		grown := make([]byte, end)
		copy(grown, area.data)
		area.data = grown
	}

	copy(area.data[byteOffset:end], data)

	return nil
}

// TakeForInsert transitions the area to its terminal inserted state and
// returns its buffer and declared size for the caller to commit as guest
// pages. A second insert, or an insert of an unknown index, is a
// structural violation.
func (p *ParameterAreas) TakeForInsert(index uint32) ([]byte, uint64, error) {
	area, ok := p.areas[index]
	if !ok {
		return nil, 0, invariantf("insert of undeclared parameter area %d", index)
	}

	if area.inserted {
		return nil, 0, invariantf("parameter area %d inserted twice", index)
	}

	area.inserted = true
	data := area.data
	area.data = nil

	return data, area.maxSize, nil
}
