package blockstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFreshDatabaseCreatesSuperblock(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	blk, err := s.ReadBlock(SuperblockBlockID)
	require.NoError(t, err)
	assert.Equal(t, TypeSuperblock, blk.Header.Type)

	sb, err := decodeSuperblock(blk.Payload)
	require.NoError(t, err)
	assert.True(t, sb.LastCleanShutdown)
}

func TestOpenRefusesSecondWriter(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(dir, DefaultOptions())
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestWriteReadBlockRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	id, err := s.AllocBlock(TypeDocument)
	require.NoError(t, err)

	payload := []byte(`{"title":"x"}`)
	require.NoError(t, s.WriteBlock(id, TypeDocument, payload, 0, 0))

	blk, err := s.ReadBlock(id)
	require.NoError(t, err)
	assert.Equal(t, payload, blk.Payload)
	assert.Equal(t, TypeDocument, blk.Header.Type)
}

func TestReadBlockDetectsChecksumCorruption(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, DefaultOptions())
	require.NoError(t, err)

	id, err := s.AllocBlock(TypeDocument)
	require.NoError(t, err)
	require.NoError(t, s.WriteBlock(id, TypeDocument, []byte("hello"), 0, 0))
	require.NoError(t, s.Close())

	// Corrupt a single byte of the block's payload region directly on disk.
	f, err := os.OpenFile(filepath.Join(dir, "data.blocks"), os.O_RDWR, 0o644)
	require.NoError(t, err)
	offset := int64(id)*PageSize + HeaderSize
	buf := make([]byte, 1)
	_, err = f.ReadAt(buf, offset)
	require.NoError(t, err)
	buf[0] ^= 0xFF
	_, err = f.WriteAt(buf, offset)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s2, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer s2.Close()

	_, err = s2.ReadBlock(id)
	var checksumErr *ChecksumError
	assert.ErrorAs(t, err, &checksumErr)
	assert.Equal(t, id, checksumErr.BlockID)
}

func TestWriteBlockRejectsTypeChange(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	id, err := s.AllocBlock(TypeDocument)
	require.NoError(t, err)
	require.NoError(t, s.WriteBlock(id, TypeDocument, []byte("a"), 0, 0))

	err = s.WriteBlock(id, TypeEdge, []byte("b"), 0, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFreeBlockSetsDeletedFlagWithoutErasingPayload(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	id, err := s.AllocBlock(TypeDocument)
	require.NoError(t, err)
	payload := []byte("pre-image")
	require.NoError(t, s.WriteBlock(id, TypeDocument, payload, 0, 0))
	require.NoError(t, s.FreeBlock(id))

	blk, err := s.ReadBlock(id)
	require.NoError(t, err)
	assert.True(t, blk.Header.Flags.Has(FlagDeleted))
	assert.Equal(t, payload, blk.Payload)
	assert.Equal(t, TypeDocument, blk.Header.Type)
}

func TestRenderBlockIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	id, err := s.AllocBlock(TypeDocument)
	require.NoError(t, err)
	require.NoError(t, s.WriteBlock(id, TypeDocument, []byte("payload"), FlagImmutable, 0))

	first, err := s.RenderBlock(id, RenderOptions{})
	require.NoError(t, err)
	second, err := s.RenderBlock(id, RenderOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "type:        DOCUMENT")
	assert.Contains(t, first, "flags:       immutable")
	assert.Contains(t, first, "payload:     7061796c6f6164")
}

func TestRenderSuperblockPrettyPrintsCBORPayload(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	defer s.Close()

	rendered, err := s.RenderBlock(SuperblockBlockID, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, rendered, "type:        SUPERBLOCK")
	assert.Contains(t, rendered, `payload_cbor: {"created_at":`)
}
