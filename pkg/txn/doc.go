// Package txn implements the transaction manager: a
// thin ACTIVE -> (COMMITTED | ABORTED) state machine layered over the
// model package.
//
// Every operation performed through a Txn is journaled immediately via
// the model layer's two-phase journal-then-block-store path, but
// flagged pending: invisible to render_journal and replay until
// txn_commit finalizes it. txn_abort walks the transaction's recorded
// operations in reverse, applies each inverse in place, and marks the
// original entries uncompleted; no new entries are written, since a
// pending entry that never finalized was never committed history. If
// any recorded operation was IRREVERSIBLE, abort is refused outright:
// there is no way to partially unwind past that point.
package txn
