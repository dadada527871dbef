/*
Package codec provides the integrity primitives shared by every other
package in Lithoglyph: CRC32C checksums over block and journal bytes,
and canonical CBOR encoding/decoding for everything that crosses a
durability or ABI boundary.

# Canonical CBOR

Encode/Decode wrap github.com/fxamacker/cbor/v2 configured for RFC 8949
§4.2 deterministic encoding: map keys sorted, integers and floats in
their shortest form, and only definite-length containers. Two callers
encoding the same value always produce byte-identical output, which is
what the block store and journal rely on when they checksum payloads.

# FormDB tags

Lithoglyph reserves CBOR tag numbers 39001 through 39008 for its own
typed values (block references, document ids, provenance records,
PROMPT scores, proof references, migration references, constraint
references, and the IRREVERSIBLE sentinel). These are registered with
a cbor.TagSet so they round-trip as the Go types in tags.go; any other
tag number in that range decodes to a RawTag that preserves its bytes
unexamined, so a future format addition never breaks an older decoder.
*/
package codec
