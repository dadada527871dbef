package replication

import (
	"fmt"
	"io"

	"github.com/hashicorp/raft"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
	"github.com/hyperpolymath/lithoglyph/pkg/log"
	"github.com/hyperpolymath/lithoglyph/pkg/model"
	"github.com/rs/zerolog"
)

// FSM drives a model.Manager from a raft.Log stream instead of from
// this process's own journal.Journal. A caller wires it up as:
//
//	jrnl, _ := journal.Open(dir, journal.Options{EnableReplicationProjection: true})
//	logStore, _ := jrnl.LogStore()
//	fsm := replication.NewFSM(modelMgr, store)
//	raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
//
// Lithoglyph's core never does this itself; FSM exists for an embedder
// that already runs its own Raft group and wants this core replicated
// underneath it.
type FSM struct {
	model  *model.Manager
	store  *blockstore.Store
	logger zerolog.Logger
}

// NewFSM wraps an already-open model.Manager and its backing store.
func NewFSM(m *model.Manager, store *blockstore.Store) *FSM {
	return &FSM{model: m, store: store, logger: log.WithComponent("replication")}
}

// Apply decodes entryLog's Data (a journal.Entry encoded by the
// journal's replication projection, see journal.DecodeEntry) and
// re-applies its forward payload through the same idempotent path the
// local journal's own crash recovery uses.
func (f *FSM) Apply(entryLog *raft.Log) interface{} {
	entry, err := journal.DecodeEntry(entryLog.Data)
	if err != nil {
		return fmt.Errorf("replication: decode log entry at index %d: %w", entryLog.Index, err)
	}
	if err := f.model.ApplyEntry(entry); err != nil {
		f.logger.Error().Err(err).Uint64("sequence", entry.Sequence).Msg("fsm apply failed")
		return err
	}
	return nil
}

// collectionSnapshot is the CBOR shape of one collection's state
// within an FSM snapshot.
type collectionSnapshot struct {
	Name              string   `cbor:"name"`
	Kind              string   `cbor:"kind"`
	SchemaBlockID     uint64   `cbor:"schema_block_id,omitempty"`
	ConstraintBlockID uint64   `cbor:"constraint_block_id,omitempty"`
	BlockIDs          []uint64 `cbor:"block_ids"`
}

// snapshotState is the full CBOR payload an FSM snapshot persists.
// Block contents themselves are not included: a node restoring from a
// snapshot is expected to also receive a copy of the underlying
// data.blocks/data.journal files, the durable source of truth this
// snapshot only indexes.
type snapshotState struct {
	Collections         []collectionSnapshot `cbor:"collections"`
	JournalHeadSequence uint64                `cbor:"journal_head_sequence"`
}

// Snapshot captures the model layer's current collection registry.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	cols := f.model.Collections()
	state := snapshotState{
		Collections:         make([]collectionSnapshot, 0, len(cols)),
		JournalHeadSequence: f.model.Journal().HeadSequence(),
	}
	for _, c := range cols {
		state.Collections = append(state.Collections, collectionSnapshot{
			Name:              c.Name,
			Kind:              c.Kind.String(),
			SchemaBlockID:     c.SchemaBlockID,
			ConstraintBlockID: c.ConstraintBlockID,
			BlockIDs:          c.BlockIDs(),
		})
	}
	blob, err := codec.Encode(state)
	if err != nil {
		return nil, fmt.Errorf("replication: encode snapshot: %w", err)
	}
	return &fsmSnapshot{data: blob}, nil
}

// Restore decodes a received snapshot and logs its collection count and
// journal head sequence. It does not compare the snapshot with the
// local model registry and does not reconstruct block contents: a
// joining node is expected to already hold (or separately receive) a
// copy of the data.blocks/data.journal files this snapshot was taken
// from.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	blob, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("replication: read snapshot: %w", err)
	}
	var state snapshotState
	if err := codec.Decode(blob, &state); err != nil {
		return fmt.Errorf("replication: decode snapshot: %w", err)
	}
	f.logger.Info().
		Int("collections", len(state.Collections)).
		Uint64("journal_head_sequence", state.JournalHeadSequence).
		Msg("fsm restore received snapshot; expecting matching block/journal files on disk")
	return nil
}

// fsmSnapshot implements raft.FSMSnapshot over a pre-encoded blob.
type fsmSnapshot struct {
	data []byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if _, err := sink.Write(s.data); err != nil {
		sink.Cancel()
		return fmt.Errorf("replication: persist snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
