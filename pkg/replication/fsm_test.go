package replication

import (
	"io"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
	"github.com/hyperpolymath/lithoglyph/pkg/model"
	"github.com/stretchr/testify/require"
)

func openReplicatedManager(t *testing.T) (*model.Manager, *journal.Journal, func()) {
	t.Helper()
	dir := t.TempDir()
	store, err := blockstore.Open(dir, blockstore.DefaultOptions())
	require.NoError(t, err)
	jrnl, err := journal.Open(dir, journal.Options{FsyncOnCommit: true, EnableReplicationProjection: true})
	require.NoError(t, err)
	m := model.NewManager(store, jrnl)
	return m, jrnl, func() {
		jrnl.Close()
		store.Close()
	}
}

func TestFSMApplyReplaysLogStoreEntryIntoASecondManager(t *testing.T) {
	leaderModel, leaderJournal, closeLeader := openReplicatedManager(t)
	defer closeLeader()

	_, err := leaderModel.CreateCollection("widgets", model.KindDocument, codec.Provenance{Actor: "a", Rationale: "r"})
	require.NoError(t, err)
	docID, err := leaderModel.InsertDocument("widgets", []byte("hello"), codec.Provenance{Actor: "a", Rationale: "r"})
	require.NoError(t, err)

	logStore, ok := leaderJournal.LogStore()
	require.True(t, ok)

	followerDir := t.TempDir()
	followerStore, err := blockstore.Open(followerDir, blockstore.DefaultOptions())
	require.NoError(t, err)
	defer followerStore.Close()
	followerJournal, err := journal.Open(followerDir, journal.Options{FsyncOnCommit: true})
	require.NoError(t, err)
	defer followerJournal.Close()
	followerModel := model.NewManager(followerStore, followerJournal)
	_, err = followerModel.CreateCollection("widgets", model.KindDocument, codec.Provenance{Actor: "a", Rationale: "r"})
	require.NoError(t, err)

	fsm := NewFSM(followerModel, followerStore)

	firstIdx, err := logStore.FirstIndex()
	require.NoError(t, err)
	lastIdx, err := logStore.LastIndex()
	require.NoError(t, err)

	for idx := firstIdx; idx <= lastIdx; idx++ {
		var log raft.Log
		require.NoError(t, logStore.GetLog(idx, &log))
		result := fsm.Apply(&log)
		require.NoError(t, asApplyError(result))
	}

	col, ok := followerModel.Collection("widgets")
	require.True(t, ok)
	require.Contains(t, col.BlockIDs(), docID)
}

func asApplyError(result interface{}) error {
	if result == nil {
		return nil
	}
	if err, ok := result.(error); ok {
		return err
	}
	return nil
}

func TestFSMSnapshotAndRestoreRoundTrip(t *testing.T) {
	leaderModel, _, closeLeader := openReplicatedManager(t)
	defer closeLeader()

	_, err := leaderModel.CreateCollection("widgets", model.KindDocument, codec.Provenance{Actor: "a", Rationale: "r"})
	require.NoError(t, err)

	fsm := NewFSM(leaderModel, leaderModel.Store())
	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	sink := &fakeSnapshotSink{}
	require.NoError(t, snap.Persist(sink))

	require.NoError(t, fsm.Restore(sink.readCloser()))
}

// fakeSnapshotSink is a minimal in-memory raft.SnapshotSink for testing
// Persist without a real raft.SnapshotStore.
type fakeSnapshotSink struct {
	buf []byte
}

func (s *fakeSnapshotSink) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}
func (s *fakeSnapshotSink) Close() error  { return nil }
func (s *fakeSnapshotSink) Cancel() error { return nil }
func (s *fakeSnapshotSink) ID() string    { return "test-snapshot" }

func (s *fakeSnapshotSink) readCloser() *bufReadCloser { return &bufReadCloser{data: s.buf} }

type bufReadCloser struct {
	data []byte
	pos  int
}

func (b *bufReadCloser) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}
func (b *bufReadCloser) Close() error { return nil }
