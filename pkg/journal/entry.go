package journal

import (
	"encoding/binary"
	"fmt"

	"github.com/hyperpolymath/lithoglyph/pkg/codec"
)

// HeaderSize is the fixed-layout journal entry header.
const HeaderSize = 48

// OpType identifies the kind of operation a journal entry records.
type OpType uint16

const (
	OpCollectionCreate OpType = iota + 1
	OpCollectionDrop
	OpDocInsert
	OpDocUpdate
	OpDocDelete
	OpEdgeInsert
	OpEdgeUpdate
	OpEdgeDelete
	OpSchemaWrite
	OpConstraintWrite
	OpMigrationAnnounce
	OpMigrationShadow
	OpMigrationCommit
)

func (t OpType) String() string {
	switch t {
	case OpCollectionCreate:
		return "COLLECTION_CREATE"
	case OpCollectionDrop:
		return "COLLECTION_DROP"
	case OpDocInsert:
		return "DOC_INSERT"
	case OpDocUpdate:
		return "DOC_UPDATE"
	case OpDocDelete:
		return "DOC_DELETE"
	case OpEdgeInsert:
		return "EDGE_INSERT"
	case OpEdgeUpdate:
		return "EDGE_UPDATE"
	case OpEdgeDelete:
		return "EDGE_DELETE"
	case OpSchemaWrite:
		return "SCHEMA_WRITE"
	case OpConstraintWrite:
		return "CONSTRAINT_WRITE"
	case OpMigrationAnnounce:
		return "MIGRATION_ANNOUNCE"
	case OpMigrationShadow:
		return "MIGRATION_SHADOW"
	case OpMigrationCommit:
		return "MIGRATION_COMMIT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

// EntryFlags bit set over a journal entry's lifecycle.
type EntryFlags uint16

const (
	// FlagUncompleted marks an entry that is not part of committed
	// history: either its forward block-store effects never durably
	// applied, or it was rolled back by a transaction abort or by
	// crash recovery. Its inverse has already been applied (or never
	// needed to be, if the forward effects never landed); replay and
	// render_journal both skip it.
	FlagUncompleted EntryFlags = 1 << iota

	// FlagPending marks an entry written while its owning transaction
	// was still active. It is invisible to render_journal and replay
	// until txn_commit clears it; an abort or a crash before commit
	// rolls it back and sets FlagUncompleted instead.
	FlagPending
)

// Entry is a fully decoded journal entry: header plus its three CBOR
// payloads.
type Entry struct {
	Sequence      uint64
	Timestamp     int64 // wall-clock microseconds
	OpType        OpType
	Flags         EntryFlags
	AffectedBlock uint64
	Forward       []byte // CBOR operation to apply
	Inverse       []byte // CBOR operation that undoes it, or an Irreversible sentinel
	Provenance    []byte // CBOR Provenance
}

// DecodeProvenance decodes the entry's provenance payload.
func (e Entry) DecodeProvenance() (codec.Provenance, error) {
	var p codec.Provenance
	if err := codec.Decode(e.Provenance, &p); err != nil {
		return codec.Provenance{}, err
	}
	return p, nil
}

// IsIrreversible reports whether the entry's inverse is the
// IRREVERSIBLE sentinel rather than an applicable undo operation.
func (e Entry) IsIrreversible() bool {
	var irr codec.Irreversible
	return codec.Decode(e.Inverse, &irr) == nil && irr.Story != ""
}

// encode renders the full on-disk byte form of e: 48-byte header
// followed by the three payloads, with entry_len and checksum
// computed over the result.
func encode(e Entry) ([]byte, error) {
	total := HeaderSize + len(e.Forward) + len(e.Inverse) + len(e.Provenance)
	buf := make([]byte, total)

	writeHeader(buf, e, uint32(total), true)
	off := HeaderSize
	off += copy(buf[off:], e.Forward)
	off += copy(buf[off:], e.Inverse)
	copy(buf[off:], e.Provenance)

	checksum := codec.Checksum32C(buf)
	writeHeader(buf, e, uint32(total), false)
	binary.LittleEndian.PutUint32(buf[40:44], checksum)

	return buf, nil
}

// writeHeader writes e's 48-byte header into buf[:48]. With
// zeroChecksum it zeroes the checksum field (for computing the CRC);
// without it, buf[40:44] is left untouched, and encode stores the
// computed CRC there itself.
func writeHeader(buf []byte, e Entry, entryLen uint32, zeroChecksum bool) {
	_ = buf[HeaderSize-1]
	binary.LittleEndian.PutUint64(buf[0:8], e.Sequence)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.Timestamp))
	binary.LittleEndian.PutUint16(buf[16:18], uint16(e.OpType))
	binary.LittleEndian.PutUint16(buf[18:20], uint16(e.Flags))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(len(e.Forward)))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(e.Inverse)))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(len(e.Provenance)))
	binary.LittleEndian.PutUint64(buf[32:40], e.AffectedBlock)
	if zeroChecksum {
		binary.LittleEndian.PutUint32(buf[40:44], 0)
	}
	binary.LittleEndian.PutUint32(buf[44:48], entryLen)
}

// DecodeEntry parses a single encoded entry, as stored in a
// raft.Log's Data field by the replication projection.
func DecodeEntry(buf []byte) (Entry, error) {
	e, _, err := decode(buf)
	return e, err
}

// decode parses a single entry starting at buf[0]. It returns the
// decoded entry and the number of bytes consumed.
func decode(buf []byte) (Entry, int, error) {
	if len(buf) < HeaderSize {
		return Entry{}, 0, fmt.Errorf("journal: short header (%d bytes)", len(buf))
	}
	sequence := binary.LittleEndian.Uint64(buf[0:8])
	timestamp := int64(binary.LittleEndian.Uint64(buf[8:16]))
	opType := OpType(binary.LittleEndian.Uint16(buf[16:18]))
	flags := EntryFlags(binary.LittleEndian.Uint16(buf[18:20]))
	fwdLen := binary.LittleEndian.Uint32(buf[20:24])
	invLen := binary.LittleEndian.Uint32(buf[24:28])
	provLen := binary.LittleEndian.Uint32(buf[28:32])
	affected := binary.LittleEndian.Uint64(buf[32:40])
	checksum := binary.LittleEndian.Uint32(buf[40:44])
	entryLen := binary.LittleEndian.Uint32(buf[44:48])

	want := HeaderSize + int(fwdLen) + int(invLen) + int(provLen)
	if want != int(entryLen) {
		return Entry{}, 0, ErrLengthMismatch
	}
	if len(buf) < want {
		return Entry{}, 0, ErrTruncated
	}

	check := append([]byte(nil), buf[:want]...)
	binary.LittleEndian.PutUint32(check[40:44], 0)
	if !codec.VerifyChecksum32C(check, checksum) {
		return Entry{}, 0, ErrChecksum
	}

	off := HeaderSize
	forward := append([]byte(nil), buf[off:off+int(fwdLen)]...)
	off += int(fwdLen)
	inverse := append([]byte(nil), buf[off:off+int(invLen)]...)
	off += int(invLen)
	provenance := append([]byte(nil), buf[off:off+int(provLen)]...)

	return Entry{
		Sequence:      sequence,
		Timestamp:     timestamp,
		OpType:        opType,
		Flags:         flags,
		AffectedBlock: affected,
		Forward:       forward,
		Inverse:       inverse,
		Provenance:    provenance,
	}, want, nil
}
