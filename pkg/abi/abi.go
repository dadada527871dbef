package abi

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperpolymath/lithoglyph/pkg/abierr"
	"github.com/hyperpolymath/lithoglyph/pkg/blockstore"
	"github.com/hyperpolymath/lithoglyph/pkg/codec"
	"github.com/hyperpolymath/lithoglyph/pkg/journal"
	"github.com/hyperpolymath/lithoglyph/pkg/model"
	"github.com/hyperpolymath/lithoglyph/pkg/proof"
	"github.com/hyperpolymath/lithoglyph/pkg/txn"
)

// Version numbers for this build of the core, returned by version().
// These are additive across minor versions; removals and re-ordering
// of the ABI surface are not.
const (
	VersionMajor = 1
	VersionMinor = 0
	VersionPatch = 0
)

// Version returns the ABI's semantic version.
func Version() (major, minor, patch int) {
	return VersionMajor, VersionMinor, VersionPatch
}

// StatusOf extracts the stable status code from an ABI error, or OK if
// err is nil. A bridge shim exporting this package across a real
// language boundary (cgo, WASM) calls this to fill in the out-param a
// C caller expects alongside the error blob.
func StatusOf(err error) abierr.Status {
	if err == nil {
		return abierr.OK
	}
	var abiErr *abierr.Error
	if e, ok := err.(*abierr.Error); ok {
		abiErr = e
	} else {
		return abierr.Internal
	}
	return abiErr.Status
}

// ErrorBlob encodes err's CBOR error blob, or nil if err is nil. This
// is what a bridge shim returns as the out-error blob.
func ErrorBlob(err error) ([]byte, error) {
	if err == nil {
		return nil, nil
	}
	abiErr, ok := err.(*abierr.Error)
	if !ok {
		abiErr = abierr.New(abierr.Internal, err.Error())
	}
	return codec.Encode(abiErr.Blob())
}

// BlobFree releases a blob returned by the bridge. Blobs returned by
// this package are ordinary garbage-collected byte slices, so there is
// nothing to release in-process; the function exists so the ABI
// surface maps one-to-one onto a real language-boundary shim (cgo,
// WASM), where the out-blob is heap memory the caller must hand back.
func BlobFree(blob []byte) {}

// DBOpen opens (or initializes) the database rooted at path, decoding
// optsBlob (may be nil) as the CBOR options map documented for
// db_open (read_only, allow_create, fsync_on_commit,
// journal_checkpoint_bytes). Returns an opaque database handle.
func DBOpen(path string, optsBlob []byte) (string, error) {
	opts := blockstore.DefaultOptions()
	if len(optsBlob) > 0 {
		var raw map[string]interface{}
		if err := codec.Decode(optsBlob, &raw); err != nil {
			return "", abierr.Newf(abierr.InvalidArgument, "decode db_open options: %v", err)
		}
		applyOption(&opts.ReadOnly, raw, "read_only")
		applyOption(&opts.AllowCreate, raw, "allow_create")
		applyOption(&opts.FsyncOnCommit, raw, "fsync_on_commit")
		if v, ok := raw["journal_checkpoint_bytes"]; ok {
			if n, ok := toInt64(v); ok {
				opts.JournalCheckpointBytes = n
			}
		}
	} else {
		opts.AllowCreate = true
	}

	absDir, err := filepath.Abs(path)
	if err != nil {
		return "", abierr.Newf(abierr.InvalidArgument, "%v", err)
	}
	if err := requireFileLayout(absDir); err != nil {
		return "", abierr.Newf(abierr.IOError, "%v", err)
	}

	store, err := blockstore.Open(absDir, opts)
	if err != nil {
		return "", wrapOpenErr(err)
	}

	jrnl, err := journal.Open(absDir, journal.Options{
		FsyncOnCommit:               opts.FsyncOnCommit,
		EnableReplicationProjection: false,
	})
	if err != nil {
		store.Close()
		return "", abierr.Newf(abierr.IOError, "open journal: %v", err)
	}

	modelMgr := model.NewManager(store, jrnl)
	if _, err := modelMgr.Recover(); err != nil {
		jrnl.Close()
		store.Close()
		return "", abierr.Newf(abierr.Internal, "recover journal: %v", err)
	}

	db := &database{
		dir:                absDir,
		store:              store,
		jrnl:               jrnl,
		model:              modelMgr,
		txns:               txn.NewManager(modelMgr),
		checkpointBytes:    opts.JournalCheckpointBytes,
		lastCheckpointSize: jrnl.Size(),
		logger:             newDatabaseLogger(absDir),
	}
	handle := registerDatabase(db)
	db.logger.Debug().Str("handle", handle).Msg("database opened")
	return handle, nil
}

// wrapOpenErr maps blockstore.Open's sentinel errors onto the ABI's
// status codes. Concurrent-open conflicts and layout inconsistencies
// both surface as IO_ERROR per the error taxonomy.
func wrapOpenErr(err error) error {
	if err == blockstore.ErrAlreadyOpen {
		return abierr.Newf(abierr.IOError, "%v", err)
	}
	return abierr.Newf(abierr.IOError, "open database: %v", err)
}

// DBClose checkpoints and releases the database handle.
func DBClose(handle string) error {
	db, ok := lookupDatabase(handle)
	if !ok {
		return abierr.New(abierr.NotFound, "unknown database handle")
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	var firstErr error
	if !db.store.Superblock().Unrecoverable {
		if err := db.store.Checkpoint(db.jrnl.HeadSequence()); err != nil {
			firstErr = abierr.Newf(abierr.IOError, "checkpoint superblock: %v", err)
		}
	}
	if err := db.jrnl.Close(); err != nil && firstErr == nil {
		firstErr = abierr.Newf(abierr.IOError, "close journal: %v", err)
	}
	if err := db.store.Close(); err != nil && firstErr == nil {
		firstErr = abierr.Newf(abierr.IOError, "close block store: %v", err)
	}
	forgetDatabase(handle)
	return firstErr
}

// TxnBegin opens a new transaction against db in the given mode
// ("read_only" or "read_write").
func TxnBegin(dbHandle, mode string) (string, error) {
	db, ok := lookupDatabase(dbHandle)
	if !ok {
		return "", abierr.New(abierr.NotFound, "unknown database handle")
	}
	m, err := txn.ParseMode(mode)
	if err != nil {
		return "", abierr.New(abierr.InvalidArgument, err.Error())
	}
	db.mu.Lock()
	t := db.txns.Begin(m)
	db.mu.Unlock()
	return t.ID(), nil
}

// TxnCommit marks a transaction committed.
func TxnCommit(dbHandle, txnHandle string) error {
	db, t, err := resolveTxn(dbHandle, txnHandle)
	if err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.txns.Commit(t)
}

// TxnAbort rolls a transaction's effects back. Refused
// with ERR_INTERNAL if an IRREVERSIBLE operation was committed under
// this transaction.
func TxnAbort(dbHandle, txnHandle string) error {
	db, t, err := resolveTxn(dbHandle, txnHandle)
	if err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.txns.Abort(t)
}

func resolveTxn(dbHandle, txnHandle string) (*database, *txn.Txn, error) {
	db, ok := lookupDatabase(dbHandle)
	if !ok {
		return nil, nil, abierr.New(abierr.NotFound, "unknown database handle")
	}
	db.mu.Lock()
	t, ok := db.txns.Lookup(txnHandle)
	db.mu.Unlock()
	if !ok {
		return nil, nil, abierr.New(abierr.TxnNotActive, "unknown transaction handle")
	}
	return db, t, nil
}

// schemaEntry and constraintEntry are the CBOR shapes returned by
// introspect_schema/introspect_constraints.
type schemaEntry struct {
	Collection    string `cbor:"collection"`
	Kind          string `cbor:"kind"`
	SchemaBlockID uint64 `cbor:"schema_block_id,omitempty"`
	DocumentCount int    `cbor:"document_count"`
}

type constraintEntry struct {
	Collection        string `cbor:"collection"`
	ConstraintBlockID uint64 `cbor:"constraint_block_id,omitempty"`
}

// IntrospectSchema returns the CBOR-encoded list of every live
// collection's schema binding.
func IntrospectSchema(dbHandle string) ([]byte, error) {
	db, ok := lookupDatabase(dbHandle)
	if !ok {
		return nil, abierr.New(abierr.NotFound, "unknown database handle")
	}
	db.mu.Lock()
	cols := db.model.Collections()
	db.mu.Unlock()

	entries := make([]schemaEntry, 0, len(cols))
	for _, c := range cols {
		entries = append(entries, schemaEntry{
			Collection:    c.Name,
			Kind:          c.Kind.String(),
			SchemaBlockID: c.SchemaBlockID,
			DocumentCount: c.DocumentCount(),
		})
	}
	blob, err := codec.Encode(entries)
	if err != nil {
		return nil, abierr.Newf(abierr.Internal, "encode schema list: %v", err)
	}
	return blob, nil
}

// IntrospectConstraints returns the CBOR-encoded list of every live
// collection's constraint binding.
func IntrospectConstraints(dbHandle string) ([]byte, error) {
	db, ok := lookupDatabase(dbHandle)
	if !ok {
		return nil, abierr.New(abierr.NotFound, "unknown database handle")
	}
	db.mu.Lock()
	cols := db.model.Collections()
	db.mu.Unlock()

	entries := make([]constraintEntry, 0, len(cols))
	for _, c := range cols {
		entries = append(entries, constraintEntry{
			Collection:        c.Name,
			ConstraintBlockID: c.ConstraintBlockID,
		})
	}
	blob, err := codec.Encode(entries)
	if err != nil {
		return nil, abierr.Newf(abierr.Internal, "encode constraint list: %v", err)
	}
	return blob, nil
}

// RenderBlock returns the deterministic canonical text render of a
// block.
func RenderBlock(dbHandle string, blockID uint64, _ []byte) (string, error) {
	db, ok := lookupDatabase(dbHandle)
	if !ok {
		return "", abierr.New(abierr.NotFound, "unknown database handle")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	text, err := db.store.RenderBlock(blockID, blockstore.RenderOptions{})
	if err != nil {
		return "", wrapReadErr(blockID, err)
	}
	return text, nil
}

func wrapReadErr(blockID uint64, err error) error {
	if chkErr, ok := err.(*blockstore.ChecksumError); ok {
		return abierr.Newf(abierr.IOError, "%v", chkErr).WithBlockRefs(blockID)
	}
	if err == blockstore.ErrNotFound {
		return abierr.Newf(abierr.NotFound, "block %d not found", blockID).WithBlockRefs(blockID)
	}
	return abierr.Newf(abierr.IOError, "%v", err).WithBlockRefs(blockID)
}

// RenderJournal returns the deterministic canonical text render of
// every journal entry committed since sinceSeq.
func RenderJournal(dbHandle string, sinceSeq uint64, _ []byte) (string, error) {
	db, ok := lookupDatabase(dbHandle)
	if !ok {
		return "", abierr.New(abierr.NotFound, "unknown database handle")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	text, err := db.jrnl.RenderSince(sinceSeq, journal.RenderOptions{})
	if err != nil {
		return "", abierr.Newf(abierr.IOError, "render journal: %v", err)
	}
	return text, nil
}

// proofVerdict is the CBOR shape proof_verify returns.
type proofVerdict struct {
	Valid  bool   `cbor:"valid"`
	Reason string `cbor:"reason,omitempty"`
}

// ProofVerify dispatches a proof blob to the process-wide proof
// verifier registry. It is process-wide, not
// per-database: the registry has no connection to any one open
// database handle.
func ProofVerify(blob []byte) ([]byte, error) {
	verdict, err := globalProofs.Verify(blob)
	if err != nil {
		return nil, err
	}
	out, encErr := codec.Encode(proofVerdict{Valid: verdict.Valid, Reason: verdict.Reason})
	if encErr != nil {
		return nil, abierr.Newf(abierr.Internal, "encode proof verdict: %v", encErr)
	}
	return out, nil
}

// globalProofs is the process-wide proof verifier registry: databases do not each carry their own;
// proof_verify and proof_init_builtins are process-scoped ABI calls,
// not per-handle ones.
var globalProofs = proof.NewRegistry()

// ProofInitBuiltins registers the built-in proof verifiers. Idempotent.
func ProofInitBuiltins() error {
	globalProofs.InitBuiltins()
	return nil
}

func applyOption(dst *bool, raw map[string]interface{}, key string) {
	if v, ok := raw[key]; ok {
		if b, ok := v.(bool); ok {
			*dst = b
		}
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// requireFileLayout refuses a non-empty block file with no journal
// beside it before a full Open: that is an inconsistency the operator
// must repair, not a fresh database. It reads neither file's contents;
// the block file's magic is checked when blockstore.Open decodes the
// superblock, and journal entries carry no magic field.
func requireFileLayout(dir string) error {
	blocksPath := filepath.Join(dir, "data.blocks")
	if info, err := os.Stat(blocksPath); err == nil && info.Size() > 0 {
		journalPath := filepath.Join(dir, "data.journal")
		if _, err := os.Stat(journalPath); os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", blockstore.ErrInconsistent, journalPath)
		}
	}
	return nil
}
