/*
Package journal implements Lithoglyph's append-only, strictly
sequenced operation log.

# Architecture

	┌──────────────────── JOURNAL ──────────────────────────┐
	│                                                          │
	│  ┌──────────────────────────────────────────┐          │
	│  │              Journal                       │          │
	│  │  - File: <dir>/data.journal                 │          │
	│  │  - 48-byte header + forward/inverse/prov    │          │
	│  │  - sequence strictly increasing             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │   Replication projection (raft-boltdb)      │          │
	│  │  - File: <dir>/data.journal.raftlog         │          │
	│  │  - optional, derived, never read for         │          │
	│  │    recovery                                  │          │
	│  └────────────────────────────────────────────┘          │
	└──────────────────────────────────────────────────────────┘

A journal entry is durable once its header's checksum is written and
fsynced; the forward payload's block-store effects are applied only
after that fsync returns.
If those effects fail to apply durably, the caller appends a
compensating entry and marks the original FlagUncompleted so recovery
does not try to re-apply it.
*/
package journal
