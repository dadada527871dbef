package abi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeOp(t *testing.T, op opEnvelope) []byte {
	t.Helper()
	blob, err := codec.Encode(op)
	require.NoError(t, err)
	return blob
}

func insertDoc(t *testing.T, dbHandle, collection string, body []byte, prov codec.Provenance) uint64 {
	t.Helper()
	txnHandle, err := TxnBegin(dbHandle, "read_write")
	require.NoError(t, err)

	resultBlob, _, err := Apply(dbHandle, txnHandle, encodeOp(t, opEnvelope{
		Op: "doc_insert", Collection: collection, Body: body, Provenance: prov,
	}))
	require.NoError(t, err)
	require.NoError(t, TxnCommit(dbHandle, txnHandle))

	var result applyResult
	require.NoError(t, codec.Decode(resultBlob, &result))
	return result.BlockID
}

func createCollection(t *testing.T, dbHandle, name string) {
	t.Helper()
	txnHandle, err := TxnBegin(dbHandle, "read_write")
	require.NoError(t, err)
	_, _, err = Apply(dbHandle, txnHandle, encodeOp(t, opEnvelope{
		Op: "collection_create", Collection: name, Kind: "document",
		Provenance: codec.Provenance{Actor: "alice", Rationale: "smoke"},
	}))
	require.NoError(t, err)
	require.NoError(t, TxnCommit(dbHandle, txnHandle))
}

// TestEmptyOpenAndClose opens a nonexistent path with allow_create,
// expecting a handle that closes cleanly with block 0 holding a valid
// superblock.
func TestEmptyOpenAndClose(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s1")
	optsBlob, err := codec.Encode(map[string]interface{}{"allow_create": true})
	require.NoError(t, err)

	handle, err := DBOpen(dir, optsBlob)
	require.NoError(t, err)

	rendered, err := RenderBlock(handle, 0, nil)
	require.NoError(t, err)
	assert.Contains(t, rendered, "SUPERBLOCK")

	journalText, err := RenderJournal(handle, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, journalText)

	require.NoError(t, DBClose(handle))
}

// TestInsertAndReadJournal inserts a document and re-opens, expecting
// exactly one committed DOC_INSERT entry carrying the original
// provenance.
func TestInsertAndReadJournal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s2")
	handle, err := DBOpen(dir, nil)
	require.NoError(t, err)

	createCollection(t, handle, "widgets")
	insertDoc(t, handle, "widgets", []byte(`{"title":"x"}`), codec.Provenance{Actor: "alice", Rationale: "smoke"})

	require.NoError(t, DBClose(handle))

	handle2, err := DBOpen(dir, nil)
	require.NoError(t, err)
	defer DBClose(handle2)

	rendered, err := RenderJournal(handle2, 0, nil)
	require.NoError(t, err)

	assert.Contains(t, rendered, "op_type=DOC_INSERT")
	assert.Contains(t, rendered, `actor="alice"`)
	assert.Contains(t, rendered, `rationale="smoke"`)
}

// TestRollbackLeavesNoCommittedEntry aborts a transaction that
// inserted a document, expecting the block marked deleted and no
// forward entry surviving as committed history.
func TestRollbackLeavesNoCommittedEntry(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s3")
	handle, err := DBOpen(dir, nil)
	require.NoError(t, err)
	defer DBClose(handle)

	createCollection(t, handle, "widgets")

	txnHandle, err := TxnBegin(handle, "read_write")
	require.NoError(t, err)

	resultBlob, _, err := Apply(handle, txnHandle, encodeOp(t, opEnvelope{
		Op: "doc_insert", Collection: "widgets", Body: []byte(`{"title":"x"}`),
		Provenance: codec.Provenance{Actor: "alice", Rationale: "smoke"},
	}))
	require.NoError(t, err)
	var result applyResult
	require.NoError(t, codec.Decode(resultBlob, &result))

	require.NoError(t, TxnAbort(handle, txnHandle))

	db, ok := lookupDatabase(handle)
	require.True(t, ok)
	blk, err := db.store.ReadBlock(result.BlockID)
	require.NoError(t, err)
	assert.True(t, blk.Header.Flags.Has(blockstore.FlagDeleted))

	col, ok := db.model.Collection("widgets")
	require.True(t, ok)
	assert.Equal(t, 0, col.DocumentCount())

	// The insert was journaled pending, never finalized by txn_commit,
	// and rolled back in place on abort: no committed entry for it is
	// ever reachable by render_journal or replay.
	rendered, err := RenderJournal(handle, 0, nil)
	require.NoError(t, err)
	assert.NotContains(t, rendered, "op_type=DOC_INSERT")
}

// TestDuplicateCollectionRejected creates two collections with the
// same name, expecting the second attempt to fail with
// ERR_CONSTRAINT_VIOLATION and the first collection left unchanged.
func TestDuplicateCollectionRejected(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s4")
	handle, err := DBOpen(dir, nil)
	require.NoError(t, err)
	defer DBClose(handle)

	createCollection(t, handle, "widgets")

	txnHandle, err := TxnBegin(handle, "read_write")
	require.NoError(t, err)
	_, _, err = Apply(handle, txnHandle, encodeOp(t, opEnvelope{
		Op: "collection_create", Collection: "widgets", Kind: "document",
		Provenance: codec.Provenance{Actor: "bob", Rationale: "dup"},
	}))
	require.Error(t, err)
	require.NoError(t, TxnAbort(handle, txnHandle))

	var abiErr *abierr.Error
	require.ErrorAs(t, err, &abiErr)
	assert.Equal(t, abierr.ConstraintViolation, abiErr.Status)
	assert.Contains(t, abiErr.Rationale, "already bound")

	schemaBlob, err := IntrospectSchema(handle)
	require.NoError(t, err)
	var entries []map[string]interface{}
	require.NoError(t, codec.Decode(schemaBlob, &entries))
	assert.Len(t, entries, 1)
}

// TestChecksumCorruptionDetected corrupts a single byte of a block's
// payload on disk, expecting that detected as ERR_IO_ERROR carrying
// that block's id when read back.
func TestChecksumCorruptionDetected(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s5")
	handle, err := DBOpen(dir, nil)
	require.NoError(t, err)

	createCollection(t, handle, "widgets")
	blockID := insertDoc(t, handle, "widgets", []byte(`{"title":"x"}`), codec.Provenance{Actor: "alice", Rationale: "smoke"})

	require.NoError(t, DBClose(handle))

	f, err := os.OpenFile(filepath.Join(dir, "data.blocks"), os.O_RDWR, 0o644)
	require.NoError(t, err)
	offset := int64(blockID)*blockstore.PageSize + blockstore.HeaderSize
	buf := make([]byte, 1)
	_, err = f.ReadAt(buf, offset)
	require.NoError(t, err)
	buf[0] ^= 0xFF
	_, err = f.WriteAt(buf, offset)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	handle2, err := DBOpen(dir, nil)
	require.NoError(t, err)
	defer DBClose(handle2)

	_, err = RenderBlock(handle2, blockID, nil)
	require.Error(t, err)

	var abiErr *abierr.Error
	require.ErrorAs(t, err, &abiErr)
	assert.Equal(t, abierr.IOError, abiErr.Status)
	require.Len(t, abiErr.BlockRefs, 1)
	assert.Equal(t, blockID, abiErr.BlockRefs[0].BlockID)
}

// TestReopenRecoversCollectionRegistry closes and reopens a handle,
// expecting DBOpen's recovery pass to reconstruct the in-memory
// collection registry from the journal alone. Recovery's handling of
// entries whose forward effects never durably landed before a crash is
// covered at the model layer (see pkg/model's recovery tests), since
// reproducing that here would require reaching past the bridge to
// write a raw journal entry.
func TestReopenRecoversCollectionRegistry(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s6")
	handle, err := DBOpen(dir, nil)
	require.NoError(t, err)

	createCollection(t, handle, "widgets")
	insertDoc(t, handle, "widgets", []byte(`{"title":"1"}`), codec.Provenance{Actor: "alice", Rationale: "one"})
	insertDoc(t, handle, "widgets", []byte(`{"title":"2"}`), codec.Provenance{Actor: "alice", Rationale: "two"})

	db, ok := lookupDatabase(handle)
	require.True(t, ok)
	collectionsBefore := len(db.model.Collections())
	col, ok := db.model.Collection("widgets")
	require.True(t, ok)
	docCountBefore := col.DocumentCount()

	require.NoError(t, DBClose(handle))

	handle2, err := DBOpen(dir, nil)
	require.NoError(t, err)
	defer DBClose(handle2)

	db2, ok := lookupDatabase(handle2)
	require.True(t, ok)
	assert.Len(t, db2.model.Collections(), collectionsBefore)
	col2, ok := db2.model.Collection("widgets")
	require.True(t, ok)
	assert.Equal(t, docCountBefore, col2.DocumentCount())
}

// TestVersionIsAdditive checks version() reports the build's additive
// semantic version.
func TestVersionIsAdditive(t *testing.T) {
	major, minor, patch := Version()
	assert.Equal(t, VersionMajor, major)
	assert.Equal(t, VersionMinor, minor)
	assert.Equal(t, VersionPatch, patch)
}

func TestProofVerifyUnregisteredTypeIsNotImplemented(t *testing.T) {
	blob, err := codec.Encode(codec.ProofRef{ProofType: 999, Ref: "x"})
	require.NoError(t, err)

	_, err = ProofVerify(blob)
	require.Error(t, err)
	var abiErr *abierr.Error
	require.ErrorAs(t, err, &abiErr)
	assert.Equal(t, abierr.NotImplemented, abiErr.Status)
}
