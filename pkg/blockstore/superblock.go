package blockstore

import (
	"fmt"
	"time"

	"github.com/hyperpolymath/lithoglyph/pkg/codec"
)

// SuperblockBlockID is the sole globally unique block id.
const SuperblockBlockID uint64 = 0

// Superblock is the CBOR payload of block 0. It is
// rewritten on clean shutdown and at checkpoints.
type Superblock struct {
	FormatVersion       uint16            `cbor:"format_version"`
	NextFreeBlockID     uint64            `cbor:"next_free_block_id"`
	FreeListHead        uint64            `cbor:"free_list_head"`
	JournalHeadSequence uint64            `cbor:"journal_head_sequence"`
	Roots               map[string]uint64 `cbor:"roots"` // collection-kind root pointers
	CreatedAt           int64             `cbor:"created_at"`
	LastCleanShutdown   bool              `cbor:"last_clean_shutdown"`
	Unrecoverable       bool              `cbor:"unrecoverable,omitempty"`
}

// newSuperblock builds the superblock written when a fresh database is
// initialized.
func newSuperblock(now time.Time) Superblock {
	return Superblock{
		FormatVersion:     FormatVersion,
		NextFreeBlockID:   1, // id 0 is reserved for the superblock itself
		FreeListHead:      0,
		CreatedAt:         now.UnixMicro(),
		LastCleanShutdown: true,
		Roots:             make(map[string]uint64),
	}
}

func (s Superblock) encode() ([]byte, error) {
	return codec.Encode(s)
}

func decodeSuperblock(payload []byte) (Superblock, error) {
	var s Superblock
	if err := codec.Decode(payload, &s); err != nil {
		return Superblock{}, fmt.Errorf("blockstore: decode superblock: %w", err)
	}
	if s.Roots == nil {
		s.Roots = make(map[string]uint64)
	}
	return s, nil
}
