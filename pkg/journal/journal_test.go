package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prov(t *testing.T) codec.Provenance {
	t.Helper()
	return codec.Provenance{Actor: "alice", Rationale: "smoke"}
}

func TestCommitAssignsStrictlyIncreasingSequence(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, Options{FsyncOnCommit: true})
	require.NoError(t, err)
	defer j.Close()

	var seqs []uint64
	for i := 0; i < 3; i++ {
		b := j.Begin(OpDocInsert, uint64(i+1))
		b.SetForward([]byte{0x01})
		b.SetInverse([]byte{0x02})
		require.NoError(t, b.SetProvenance(prov(t)))
		seq, err := j.Commit(b)
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
	assert.Equal(t, uint64(3), j.HeadSequence())
}

func TestCommitRejectsMissingPayloads(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, Options{})
	require.NoError(t, err)
	defer j.Close()

	b := j.Begin(OpDocInsert, 1)
	_, err = j.Commit(b)
	assert.ErrorIs(t, err, ErrMissingForward)

	b.SetForward([]byte{0x01})
	_, err = j.Commit(b)
	assert.ErrorIs(t, err, ErrMissingInverse)

	b.SetInverse([]byte{0x02})
	_, err = j.Commit(b)
	assert.ErrorIs(t, err, ErrMissingProvenance)
}

func TestSetInverseIrreversibleIsDetectedOnReadback(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, Options{})
	require.NoError(t, err)
	defer j.Close()

	b := j.Begin(OpCollectionDrop, 7)
	b.SetForward([]byte{0x01})
	require.NoError(t, b.SetInverseIrreversible("collection data purged by compaction"))
	require.NoError(t, b.SetProvenance(prov(t)))
	seq, err := j.Commit(b)
	require.NoError(t, err)

	entries, err := j.ReadSince(seq)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsIrreversible())
}

func TestReopenRecoversSequenceAndTailOffset(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, Options{FsyncOnCommit: true})
	require.NoError(t, err)

	b := j.Begin(OpDocInsert, 1)
	b.SetForward([]byte{0x01})
	b.SetInverse([]byte{0x02})
	require.NoError(t, b.SetProvenance(prov(t)))
	_, err = j.Commit(b)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j2, err := Open(dir, Options{FsyncOnCommit: true})
	require.NoError(t, err)
	defer j2.Close()

	b2 := j2.Begin(OpDocInsert, 2)
	b2.SetForward([]byte{0x01})
	b2.SetInverse([]byte{0x02})
	require.NoError(t, b2.SetProvenance(prov(t)))
	seq, err := j2.Commit(b2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestScanFileDiscardsTornTrailingWrite(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, Options{FsyncOnCommit: true})
	require.NoError(t, err)

	b := j.Begin(OpDocInsert, 1)
	b.SetForward([]byte{0x01})
	b.SetInverse([]byte{0x02})
	require.NoError(t, b.SetProvenance(prov(t)))
	_, err = j.Commit(b)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	f, err := os.OpenFile(filepath.Join(dir, "data.journal"), os.O_RDWR|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	j2, err := Open(dir, Options{FsyncOnCommit: true})
	require.NoError(t, err)
	defer j2.Close()

	assert.Equal(t, uint64(1), j2.HeadSequence())

	info, err := os.Stat(filepath.Join(dir, "data.journal"))
	require.NoError(t, err)
	assert.Equal(t, j2.tailOffset, info.Size())
}

func TestMarkUncompletedIsSkippedByRecover(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, Options{FsyncOnCommit: true})
	require.NoError(t, err)
	defer j.Close()

	b := j.Begin(OpDocInsert, 1)
	b.SetForward([]byte{0x01})
	b.SetInverse([]byte{0x02})
	require.NoError(t, b.SetProvenance(prov(t)))
	seq, err := j.Commit(b)
	require.NoError(t, err)
	require.NoError(t, j.MarkUncompleted(seq))

	var applied []uint64
	n, err := j.Recover(0, func(e Entry) error {
		applied = append(applied, e.Sequence)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, applied)
}

func TestRenderSinceIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, Options{})
	require.NoError(t, err)
	defer j.Close()

	b := j.Begin(OpDocInsert, 9)
	b.SetForward([]byte{0xAA})
	b.SetInverse([]byte{0xBB})
	require.NoError(t, b.SetProvenance(prov(t)))
	_, err = j.Commit(b)
	require.NoError(t, err)

	out1, err := j.RenderSince(0, RenderOptions{})
	require.NoError(t, err)
	out2, err := j.RenderSince(0, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
	assert.Contains(t, out1, "op_type=DOC_INSERT")
	assert.Contains(t, out1, "affected_block=9")
}
