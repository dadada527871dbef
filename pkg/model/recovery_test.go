package model

import (
	"testing"

	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reopen closes store/jrnl and returns a fresh Manager over the same
// directory, recovered from the journal.
func reopen(t *testing.T, dir string, store *blockstore.Store, jrnl *journal.Journal) *Manager {
	t.Helper()
	require.NoError(t, jrnl.Close())
	require.NoError(t, store.Close())

	store2, err := blockstore.Open(dir, blockstore.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { store2.Close() })
	jrnl2, err := journal.Open(dir, journal.Options{FsyncOnCommit: true})
	require.NoError(t, err)
	t.Cleanup(func() { jrnl2.Close() })

	m2 := NewManager(store2, jrnl2)
	_, err = m2.Recover()
	require.NoError(t, err)
	return m2
}

// TestRecoverRollsBackEntryWhoseEffectsNeverLanded simulates a crash
// between the journal fsync and the block-store write: a DOC_INSERT
// entry is committed to the journal directly, without ever calling
// store.WriteBlock for the block it describes. Recovery must detect
// that the forward effect never landed and roll the entry back rather
// than replaying it into the in-memory registry.
func TestRecoverRollsBackEntryWhoseEffectsNeverLanded(t *testing.T) {
	dir := t.TempDir()
	store, err := blockstore.Open(dir, blockstore.DefaultOptions())
	require.NoError(t, err)
	jrnl, err := journal.Open(dir, journal.Options{FsyncOnCommit: true})
	require.NoError(t, err)
	m := NewManager(store, jrnl)

	_, err = m.CreateCollection("widgets", KindDocument, prov())
	require.NoError(t, err)

	blockID, err := store.AllocBlock(blockstore.TypeDocument)
	require.NoError(t, err)

	forward, err := codec.Encode(opDocWrite{Collection: "widgets", BlockID: blockID, Body: []byte("never written")})
	require.NoError(t, err)
	inverse, err := codec.Encode(opDocDelete{Collection: "widgets", BlockID: blockID})
	require.NoError(t, err)

	b := jrnl.Begin(journal.OpDocInsert, blockID)
	b.SetForward(forward)
	b.SetInverse(inverse)
	require.NoError(t, b.SetProvenance(prov()))
	seq, err := jrnl.Commit(b)
	require.NoError(t, err)

	m2 := reopen(t, dir, store, jrnl)

	col, ok := m2.Collection("widgets")
	require.True(t, ok)
	assert.Equal(t, 0, col.DocumentCount())
	assert.NotContains(t, col.BlockIDs(), blockID)

	_, err = m2.store.ReadBlock(blockID)
	assert.ErrorIs(t, err, blockstore.ErrNotFound)

	entries, err := m2.jrnl.ReadSince(seq)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Flags.Has(journal.FlagUncompleted))
}

// TestRecoverRollsBackPendingEntryRegardlessOfLandedEffects simulates a
// crash while a transaction is still open: a DOC_INSERT entry is
// committed as pending (as BeginTxnScope would leave it) and its
// block-store effect is applied, as if the crash happened after the
// write but before txn_commit finalized the entry. Recovery must still
// roll it back, since the owning transaction never reached commit.
func TestRecoverRollsBackPendingEntryRegardlessOfLandedEffects(t *testing.T) {
	dir := t.TempDir()
	store, err := blockstore.Open(dir, blockstore.DefaultOptions())
	require.NoError(t, err)
	jrnl, err := journal.Open(dir, journal.Options{FsyncOnCommit: true})
	require.NoError(t, err)
	m := NewManager(store, jrnl)

	_, err = m.CreateCollection("widgets", KindDocument, prov())
	require.NoError(t, err)

	blockID, err := store.AllocBlock(blockstore.TypeDocument)
	require.NoError(t, err)
	body := []byte(`{"title":"x"}`)
	require.NoError(t, store.WriteBlock(blockID, blockstore.TypeDocument, body, 0, 0))

	forward, err := codec.Encode(opDocWrite{Collection: "widgets", BlockID: blockID, Body: body})
	require.NoError(t, err)
	inverse, err := codec.Encode(opDocDelete{Collection: "widgets", BlockID: blockID})
	require.NoError(t, err)

	b := jrnl.BeginPending(journal.OpDocInsert, blockID)
	b.SetForward(forward)
	b.SetInverse(inverse)
	require.NoError(t, b.SetProvenance(prov()))
	seq, err := jrnl.Commit(b)
	require.NoError(t, err)

	m2 := reopen(t, dir, store, jrnl)

	col, ok := m2.Collection("widgets")
	require.True(t, ok)
	assert.Equal(t, 0, col.DocumentCount())

	blk, err := m2.store.ReadBlock(blockID)
	require.NoError(t, err)
	assert.True(t, blk.Header.Flags.Has(blockstore.FlagDeleted))

	entries, err := m2.jrnl.ReadSince(seq)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Flags.Has(journal.FlagUncompleted))
	assert.False(t, entries[0].Flags.Has(journal.FlagPending))
}
