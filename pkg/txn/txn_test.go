package txn

import (
	"testing"

	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
	"github.com/hyperpolymath/lithoglyph/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestManager(t *testing.T) (*model.Manager, func()) {
	t.Helper()
	dir := t.TempDir()
	store, err := blockstore.Open(dir, blockstore.DefaultOptions())
	require.NoError(t, err)
	jrnl, err := journal.Open(dir, journal.Options{FsyncOnCommit: true})
	require.NoError(t, err)
	m := model.NewManager(store, jrnl)
	return m, func() {
		jrnl.Close()
		store.Close()
	}
}

func prov() codec.Provenance {
	return codec.Provenance{Actor: "alice", Rationale: "smoke"}
}

func TestCommitTransitionsStateAndForgetsTxn(t *testing.T) {
	m, closeFn := openTestManager(t)
	defer closeFn()

	mgr := NewManager(m)
	tx := mgr.Begin(ModeReadWrite)

	_, err := tx.CreateCollection(m, "widgets", model.KindDocument, prov())
	require.NoError(t, err)

	require.NoError(t, mgr.Commit(tx))
	assert.Equal(t, StateCommitted, tx.State())

	_, ok := mgr.Lookup(tx.ID())
	assert.False(t, ok)

	err = mgr.Commit(tx)
	var abiErr *abierr.Error
	require.ErrorAs(t, err, &abiErr)
	assert.Equal(t, abierr.TxnAlreadyCommitted, abiErr.Status)
}

// TestAbortReversesInsert: a document is inserted inside an active
// transaction, the transaction is aborted, and the document must no
// longer be visible.
func TestAbortReversesInsert(t *testing.T) {
	m, closeFn := openTestManager(t)
	defer closeFn()

	_, err := m.CreateCollection("widgets", model.KindDocument, prov())
	require.NoError(t, err)

	mgr := NewManager(m)
	tx := mgr.Begin(ModeReadWrite)

	id, err := tx.InsertDocument(m, "widgets", []byte(`{"title":"x"}`), prov())
	require.NoError(t, err)

	col, ok := m.Collection("widgets")
	require.True(t, ok)
	assert.Equal(t, 1, col.DocumentCount())

	require.NoError(t, mgr.Abort(tx))
	assert.Equal(t, StateAborted, tx.State())
	assert.Equal(t, 0, col.DocumentCount())

	blk, err := m.Store().ReadBlock(id)
	require.NoError(t, err)
	assert.True(t, blk.Header.Flags.Has(blockstore.FlagDeleted))
}

func TestAbortRefusedAfterIrreversibleOp(t *testing.T) {
	m, closeFn := openTestManager(t)
	defer closeFn()

	_, err := m.CreateCollection("widgets", model.KindDocument, prov())
	require.NoError(t, err)

	mgr := NewManager(m)
	tx := mgr.Begin(ModeReadWrite)

	migID, err := tx.AnnounceMigration(m, "widgets", 0, []byte{0x01}, prov())
	require.NoError(t, err)
	require.NoError(t, tx.AdvanceToShadow(m, migID, prov()))
	require.NoError(t, tx.CommitMigration(m, migID, prov()))

	err = mgr.Abort(tx)
	var abiErr *abierr.Error
	require.ErrorAs(t, err, &abiErr)
	assert.Equal(t, abierr.Internal, abiErr.Status)
	assert.Equal(t, StateActive, tx.State())
}

func TestReadOnlyTransactionRejectsMutation(t *testing.T) {
	m, closeFn := openTestManager(t)
	defer closeFn()

	_, err := m.CreateCollection("widgets", model.KindDocument, prov())
	require.NoError(t, err)

	mgr := NewManager(m)
	tx := mgr.Begin(ModeReadOnly)

	_, err = tx.InsertDocument(m, "widgets", []byte("x"), prov())
	var abiErr *abierr.Error
	require.ErrorAs(t, err, &abiErr)
	assert.Equal(t, abierr.InvalidArgument, abiErr.Status)
}

func TestOperationOnCommittedTxnIsRejected(t *testing.T) {
	m, closeFn := openTestManager(t)
	defer closeFn()

	_, err := m.CreateCollection("widgets", model.KindDocument, prov())
	require.NoError(t, err)

	mgr := NewManager(m)
	tx := mgr.Begin(ModeReadWrite)
	require.NoError(t, mgr.Commit(tx))

	_, err = tx.InsertDocument(m, "widgets", []byte("x"), prov())
	var abiErr *abierr.Error
	require.ErrorAs(t, err, &abiErr)
	assert.Equal(t, abierr.TxnAlreadyCommitted, abiErr.Status)
}

func TestLookupFindsOpenTransaction(t *testing.T) {
	m, closeFn := openTestManager(t)
	defer closeFn()

	mgr := NewManager(m)
	tx := mgr.Begin(ModeReadWrite)

	got, ok := mgr.Lookup(tx.ID())
	require.True(t, ok)
	assert.Equal(t, tx, got)
}
