// Package replication is an optional adapter for a higher layer that
// wants to project the journal onto a Raft group for replication; the
// core itself never runs Raft consensus. It implements raft.FSM over a
// journal.Journal opened with its replication projection enabled
// (pkg/journal's EnableReplicationProjection / LogStore), so a caller
// that already runs its own raft.Raft instance can drive this core as
// a replicated state machine without the core package importing
// hashicorp/raft for consensus itself.
//
// Nothing under pkg/abi, pkg/model, pkg/txn, or pkg/blockstore imports
// this package; it is a one-way consumer of the journal's history,
// exercised only by its own tests.
package replication
