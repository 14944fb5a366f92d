package snp

// IDBlockLDSize is the size of the expected launch digest.
const IDBlockLDSize = 48

// IDBlockSignature is an ECDSA P-384 signature (R || S, zero padded).
type IDBlockSignature [512]byte

// IDBlockPublicKey is the encoded public key of an ID block signer.
type IDBlockPublicKey [1028]byte

// IDBlock is the signed identity of the guest image: the expected launch
// digest, versioning identifiers, and the signing keys. It is copied out
// of the boot image unmodified and handed to launch finalize, which
// verifies it against the measured pages.
type IDBlock struct {
	CompatibilityMask  uint32
	AuthorKeyEnabled   uint8
	Reserved           [3]uint8
	LD                 [IDBlockLDSize]uint8
	FamilyID           [16]uint8
	ImageID            [16]uint8
	Version            uint32
	GuestSVN           uint32
	IDKeyAlgorithm     uint32
	AuthorKeyAlgorithm uint32
	IDKeySignature     IDBlockSignature
	IDPublicKey        IDBlockPublicKey
	AuthorKeySignature IDBlockSignature
	AuthorPublicKey    IDBlockPublicKey
}
