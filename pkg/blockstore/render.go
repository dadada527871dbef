package blockstore

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hyperpolymath/lithoglyph/pkg/codec"
)

// RenderOptions controls render_block's output.
// It is currently empty: every conforming render is field-ordered,
// fixed-width, and timestamped in RFC 3339 UTC regardless of caller
// preference, so two implementations always agree byte-for-byte.
type RenderOptions struct{}

// RenderBlock produces the deterministic canonical text render of id.
func (s *Store) RenderBlock(id uint64, _ RenderOptions) (string, error) {
	blk, err := s.ReadBlock(id)
	if err != nil {
		return "", err
	}
	return RenderBlockValue(blk), nil
}

// RenderBlockValue renders an already-decoded block. Exposed
// separately so the journal and model layers can render blocks they
// hold in memory without a round-trip through the store.
func RenderBlockValue(blk Block) string {
	var b strings.Builder
	h := blk.Header

	fmt.Fprintf(&b, "block_id:    %020d\n", h.BlockID)
	fmt.Fprintf(&b, "type:        %s\n", h.Type)
	fmt.Fprintf(&b, "version:     %d\n", h.Version)
	fmt.Fprintf(&b, "sequence:    %020d\n", h.Sequence)
	fmt.Fprintf(&b, "created_at:  %s\n", renderMicros(h.CreatedAt))
	fmt.Fprintf(&b, "modified_at: %s\n", renderMicros(h.ModifiedAt))
	fmt.Fprintf(&b, "prev_block:  %020d\n", h.PrevBlock)
	fmt.Fprintf(&b, "flags:       %s\n", renderFlags(h.Flags))
	fmt.Fprintf(&b, "payload_len: %d\n", h.PayloadLen)
	fmt.Fprintf(&b, "checksum:    %08x\n", h.Checksum)
	fmt.Fprintf(&b, "payload:     %s\n", hex.EncodeToString(blk.Payload))
	if txt, err := codec.RenderDiagnostic(blk.Payload); err == nil {
		fmt.Fprintf(&b, "payload_cbor: %s\n", txt)
	}

	return b.String()
}

func renderMicros(micros int64) string {
	return time.UnixMicro(micros).UTC().Format(time.RFC3339)
}

func renderFlags(f Flags) string {
	var names []string
	if f.Has(FlagCompressed) {
		names = append(names, "compressed")
	}
	if f.Has(FlagEncrypted) {
		names = append(names, "encrypted")
	}
	if f.Has(FlagDeleted) {
		names = append(names, "deleted")
	}
	if f.Has(FlagImmutable) {
		names = append(names, "immutable")
	}
	if f.Has(FlagHasProvenance) {
		names = append(names, "has_provenance")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}
