/*
Package blockstore implements Lithoglyph's fixed-size, content-
integrity-verified page store.

# Architecture

	┌──────────────────── BLOCK STORE ──────────────────────┐
	│                                                          │
	│  ┌──────────────────────────────────────────┐          │
	│  │              Store                        │          │
	│  │  - File: <dir>/data.blocks                 │          │
	│  │  - Page size: 4096 bytes, 64-byte header   │          │
	│  │  - Block 0: superblock (allocator + roots) │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Side index (bbolt)                 │          │
	│  │  - File: <dir>/data.index                   │          │
	│  │  - collection name -> metadata block id     │          │
	│  │  - schema block id -> owning collection     │          │
	│  │  - cached root pointers                     │          │
	│  │  - derived only; rebuildable from a scan    │          │
	│  └────────────────────────────────────────────┘          │
	└──────────────────────────────────────────────────────────┘

Every block image is written with WriteAt at its page-aligned offset
(block_id * 4096) and, when fsync_on_commit is set, synced before the
call returns. A block's type is fixed at first write; deletion sets a
flag rather than repurposing the block.

The side index is a cache, never a source of truth: a missing or
stale data.index is healed by the model layer's recovery pass, which
reconciles it against the journal-rebuilt collection registry.
*/
package blockstore
