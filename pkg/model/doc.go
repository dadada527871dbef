/*
Package model implements Lithoglyph's model layer: it
translates collection, document, edge, schema, constraint, and
migration operations into block-store writes journaled with a forward
payload, an inverse (or irreversibility sentinel), and provenance.

Collections have no dedicated block type; they are a journaled,
in-memory-indexed entity. Manager.Recover replays OP_COLLECTION_CREATE
and OP_COLLECTION_DROP entries (plus every insert/update/delete) to
reconstruct the insertion-ordered collection registry after an open.
*/
package model
