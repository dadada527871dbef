package model

import (
	"testing"

	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestManager(t *testing.T) (*Manager, func()) {
	t.Helper()
	dir := t.TempDir()
	store, err := blockstore.Open(dir, blockstore.DefaultOptions())
	require.NoError(t, err)
	jrnl, err := journal.Open(dir, journal.Options{FsyncOnCommit: true})
	require.NoError(t, err)
	m := NewManager(store, jrnl)
	return m, func() {
		jrnl.Close()
		store.Close()
	}
}

func prov() codec.Provenance {
	return codec.Provenance{Actor: "alice", Rationale: "smoke"}
}

func TestCreateCollectionRejectsDuplicateName(t *testing.T) {
	m, closeFn := openTestManager(t)
	defer closeFn()

	_, err := m.CreateCollection("widgets", KindDocument, prov())
	require.NoError(t, err)

	_, err = m.CreateCollection("widgets", KindDocument, prov())
	var abiErr *abierr.Error
	require.ErrorAs(t, err, &abiErr)
	assert.Equal(t, abierr.ConstraintViolation, abiErr.Status)
	assert.Contains(t, abiErr.Rationale, "already bound")
}

func TestInsertAndUpdateAndDeleteDocument(t *testing.T) {
	m, closeFn := openTestManager(t)
	defer closeFn()

	_, err := m.CreateCollection("widgets", KindDocument, prov())
	require.NoError(t, err)

	id, err := m.InsertDocument("widgets", []byte(`{"title":"x"}`), prov())
	require.NoError(t, err)

	col, ok := m.Collection("widgets")
	require.True(t, ok)
	assert.Equal(t, 1, col.DocumentCount())

	require.NoError(t, m.UpdateDocument("widgets", id, []byte(`{"title":"y"}`), prov()))
	blk, err := m.store.ReadBlock(id)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"title":"y"}`), blk.Payload)

	require.NoError(t, m.DeleteDocument("widgets", id, prov()))
	assert.Equal(t, 0, col.DocumentCount())

	blk, err = m.store.ReadBlock(id)
	require.NoError(t, err)
	assert.True(t, blk.Header.Flags.Has(blockstore.FlagDeleted))
}

func TestInsertEdgeRoundTrips(t *testing.T) {
	m, closeFn := openTestManager(t)
	defer closeFn()

	_, err := m.CreateCollection("edges", KindEdge, prov())
	require.NoError(t, err)

	edge := Edge{
		FromCollection: "widgets",
		FromID:         "w1",
		ToCollection:   "widgets",
		ToID:           "w2",
		EdgeType:       "relates_to",
		Properties:     []byte{0x01, 0x02},
	}
	id, err := m.InsertEdge("edges", edge, prov())
	require.NoError(t, err)

	got, err := m.ReadEdge(id)
	require.NoError(t, err)
	assert.Equal(t, edge, got)
}

func TestInsertDocumentIntoEdgeCollectionRejected(t *testing.T) {
	m, closeFn := openTestManager(t)
	defer closeFn()

	_, err := m.CreateCollection("edges", KindEdge, prov())
	require.NoError(t, err)

	_, err = m.InsertDocument("edges", []byte("x"), prov())
	var abiErr *abierr.Error
	require.ErrorAs(t, err, &abiErr)
	assert.Equal(t, abierr.InvalidArgument, abiErr.Status)
}

func TestMigrationAnnounceShadowCommit(t *testing.T) {
	m, closeFn := openTestManager(t)
	defer closeFn()

	_, err := m.CreateCollection("widgets", KindDocument, prov())
	require.NoError(t, err)

	id, err := m.AnnounceMigration("widgets", 0, []byte{0x01}, prov())
	require.NoError(t, err)

	state, err := m.ReadMigration(id)
	require.NoError(t, err)
	assert.Equal(t, MigrationAnnounce, state.Phase)

	require.NoError(t, m.AdvanceToShadow(id, prov()))
	state, err = m.ReadMigration(id)
	require.NoError(t, err)
	assert.Equal(t, MigrationShadow, state.Phase)

	require.NoError(t, m.CommitMigration(id, prov()))
	state, err = m.ReadMigration(id)
	require.NoError(t, err)
	assert.Equal(t, MigrationCommit, state.Phase)
}

func TestRecoverReconstructsCollectionsAfterReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := blockstore.Open(dir, blockstore.DefaultOptions())
	require.NoError(t, err)
	jrnl, err := journal.Open(dir, journal.Options{FsyncOnCommit: true})
	require.NoError(t, err)
	m := NewManager(store, jrnl)

	_, err = m.CreateCollection("widgets", KindDocument, prov())
	require.NoError(t, err)
	docID, err := m.InsertDocument("widgets", []byte("x"), prov())
	require.NoError(t, err)
	require.NoError(t, jrnl.Close())
	require.NoError(t, store.Close())

	store2, err := blockstore.Open(dir, blockstore.DefaultOptions())
	require.NoError(t, err)
	defer store2.Close()
	jrnl2, err := journal.Open(dir, journal.Options{FsyncOnCommit: true})
	require.NoError(t, err)
	defer jrnl2.Close()

	m2 := NewManager(store2, jrnl2)
	_, err = m2.Recover()
	require.NoError(t, err)

	col, ok := m2.Collection("widgets")
	require.True(t, ok)
	assert.Equal(t, 1, col.DocumentCount())
	assert.Contains(t, col.BlockIDs(), docID)
}
