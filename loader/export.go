package loader

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same loaded image
// always serializes to identical bytes, which lets attestation tooling
// compare records directly.
var encMode cbor.EncMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("loader: CBOR encoder initialization failed: " + err.Error())
	}
}

// EncodeCBOR serializes the record deterministically for attestation
// tooling and offline debugging.
func (info *LoadedInfo) EncodeCBOR() ([]byte, error) {
	return encMode.Marshal(info)
}

// DecodeLoadedInfo is the inverse of EncodeCBOR.
func DecodeLoadedInfo(data []byte) (*LoadedInfo, error) {
	info := &LoadedInfo{}
	if err := cbor.Unmarshal(data, info); err != nil {
		return nil, err
	}

	return info, nil
}
