/*
Package abi implements Lithoglyph's bridge/ABI: the
narrow, stable boundary every higher-level runtime (query planner,
HTTP/gRPC/GraphQL layers, language-binding SDKs) consumes instead of
reaching into the core packages directly.

# Architecture

	┌────────────────────── BRIDGE/ABI ─────────────────────────┐
	│                                                              │
	│  Database handle (opaque string)                            │
	│    └─ blockstore.Store + journal.Journal + model.Manager     │
	│       + txn.Manager                                          │
	│                                                              │
	│  Transaction handle (opaque string, owned by a database)     │
	│                                                              │
	│  Every fallible function returns a status code and, on       │
	│  failure, a CBOR error blob (code, message, block_refs,      │
	│  rationale) built from an *abierr.Error.                     │
	└──────────────────────────────────────────────────────────────┘

Handles are process-wide opaque tokens rather than pointers, since Go
has no equivalent of a raw C pointer crossing a language boundary;
callers (including a future cgo or WASM export shim) look handles up
in a table guarded by a mutex, giving exactly the "operations on the
same handle from multiple threads are serialized" guarantee without
requiring every caller to hold its own lock.

apply's op blob is a tagged CBOR map (see opEnvelope in apply.go); the
package never exposes journal.Entry, blockstore.Block, or model op
payload shapes directly; those remain internal to the core and may
change without breaking this boundary.
*/
package abi
