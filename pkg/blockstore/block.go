package blockstore

import (
	"encoding/binary"
	"fmt"

	"github.com/hyperpolymath/lithoglyph/pkg/codec"
)

// PageSize is the fixed on-disk size of every block.
const PageSize = 4096

// HeaderSize is the fixed-layout header preceding every block's
// payload.
const HeaderSize = 64

// MaxPayloadLen is the largest payload a single block can carry.
const MaxPayloadLen = PageSize - HeaderSize

// Magic identifies a Lithoglyph block image.
var Magic = [4]byte{'L', 'I', 'T', 'H'}

// FormatVersion is the current block format version.
const FormatVersion uint16 = 1

// Type is the block's payload kind. A block's type never changes
// after its first write.
type Type uint16

const (
	TypeSuperblock Type = iota
	TypeDocument
	TypeEdge
	TypeJournal
	TypeSchema
	TypeConstraint
	TypeMigration
	TypeFree
)

func (t Type) String() string {
	switch t {
	case TypeSuperblock:
		return "SUPERBLOCK"
	case TypeDocument:
		return "DOCUMENT"
	case TypeEdge:
		return "EDGE"
	case TypeJournal:
		return "JOURNAL"
	case TypeSchema:
		return "SCHEMA"
	case TypeConstraint:
		return "CONSTRAINT"
	case TypeMigration:
		return "MIGRATION"
	case TypeFree:
		return "FREE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

// Flags is a bit set over a block's lifecycle state. Bits above these
// five are reserved; see DESIGN.md.
type Flags uint32

const (
	FlagCompressed Flags = 1 << iota
	FlagEncrypted
	FlagDeleted
	FlagImmutable
	FlagHasProvenance
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Header is the 64-byte fixed-layout block header.
type Header struct {
	Version    uint16
	Type       Type
	BlockID    uint64
	Sequence   uint64
	CreatedAt  int64 // wall-clock microseconds
	ModifiedAt int64 // wall-clock microseconds
	PayloadLen uint32
	Checksum   uint32
	PrevBlock  uint64
	Flags      Flags
}

// Block is a fully decoded block: header plus its raw payload bytes.
// Higher layers (model) interpret Payload as CBOR according to Type.
type Block struct {
	Header  Header
	Payload []byte
}

// encodeHeader writes h into buf[:HeaderSize], zeroing the checksum
// field as required before CRC computation.
func encodeHeader(buf []byte, h Header, zeroChecksum bool) {
	_ = buf[HeaderSize-1]
	copy(buf[0:4], Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.LittleEndian.PutUint64(buf[8:16], h.BlockID)
	binary.LittleEndian.PutUint64(buf[16:24], h.Sequence)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.ModifiedAt))
	binary.LittleEndian.PutUint32(buf[40:44], h.PayloadLen)
	if zeroChecksum {
		binary.LittleEndian.PutUint32(buf[44:48], 0)
	} else {
		binary.LittleEndian.PutUint32(buf[44:48], h.Checksum)
	}
	binary.LittleEndian.PutUint64(buf[48:56], h.PrevBlock)
	binary.LittleEndian.PutUint32(buf[56:60], uint32(h.Flags))
	binary.LittleEndian.PutUint32(buf[60:64], 0) // reserved, MUST be zero on write
}

// decodeHeader reads a Header from buf[:HeaderSize] and validates the
// magic sentinel.
func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("blockstore: short header (%d bytes)", len(buf))
	}
	var magic [4]byte
	copy(magic[:], buf[0:4])
	if magic != Magic {
		return Header{}, ErrNotABlock
	}
	return Header{
		Version:    binary.LittleEndian.Uint16(buf[4:6]),
		Type:       Type(binary.LittleEndian.Uint16(buf[6:8])),
		BlockID:    binary.LittleEndian.Uint64(buf[8:16]),
		Sequence:   binary.LittleEndian.Uint64(buf[16:24]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(buf[24:32])),
		ModifiedAt: int64(binary.LittleEndian.Uint64(buf[32:40])),
		PayloadLen: binary.LittleEndian.Uint32(buf[40:44]),
		Checksum:   binary.LittleEndian.Uint32(buf[44:48]),
		PrevBlock:  binary.LittleEndian.Uint64(buf[48:56]),
		Flags:      Flags(binary.LittleEndian.Uint32(buf[56:60])),
	}, nil
}

// encodeImage renders a full PageSize-byte on-disk image for b,
// computing its CRC32C over the header (checksum zeroed) + payload.
func encodeImage(h Header, payload []byte) ([PageSize]byte, error) {
	var image [PageSize]byte
	if len(payload) > MaxPayloadLen {
		return image, fmt.Errorf("%w: payload %d bytes exceeds %d", ErrInvalidArgument, len(payload), MaxPayloadLen)
	}
	h.PayloadLen = uint32(len(payload))

	encodeHeader(image[:HeaderSize], h, true)
	copy(image[HeaderSize:HeaderSize+len(payload)], payload)

	h.Checksum = codec.Checksum32C(image[:HeaderSize+len(payload)])
	encodeHeader(image[:HeaderSize], h, false)

	return image, nil
}

// decodeImage parses a full PageSize-byte on-disk image, verifying its
// checksum.
func decodeImage(image []byte) (Block, error) {
	if len(image) != PageSize {
		return Block{}, fmt.Errorf("blockstore: image is %d bytes, want %d", len(image), PageSize)
	}
	h, err := decodeHeader(image)
	if err != nil {
		return Block{}, err
	}
	if h.PayloadLen > MaxPayloadLen {
		return Block{}, fmt.Errorf("%w: payload_len %d exceeds %d", ErrChecksum, h.PayloadLen, MaxPayloadLen)
	}

	payload := append([]byte(nil), image[HeaderSize:HeaderSize+h.PayloadLen]...)

	check := make([]byte, HeaderSize+len(payload))
	encodeHeader(check[:HeaderSize], h, true)
	copy(check[HeaderSize:], payload)

	if !codec.VerifyChecksum32C(check, h.Checksum) {
		return Block{}, ErrChecksum
	}

	return Block{Header: h, Payload: payload}, nil
}
