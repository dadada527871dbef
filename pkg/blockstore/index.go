package blockstore

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Index is a bbolt-backed cache over the page file: collection name ->
// metadata block id, schema block id -> owning collection, and the
// superblock's root pointers. It is never authoritative (the page
// file is); it exists so name/schema lookups don't require a linear
// scan of the page file, the same way pkg/storage/boltdb.go reaches
// for bbolt buckets instead of re-deriving lookups every call.
type Index struct {
	db *bolt.DB
}

var (
	bucketCollectionsByName = []byte("collections_by_name")
	bucketSchemaOwner       = []byte("schema_owner")
	bucketRoots             = []byte("roots")
)

func openIndex(path string) (*Index, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("blockstore: open side index: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCollectionsByName, bucketSchemaOwner, bucketRoots} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("blockstore: initialize side index buckets: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying bbolt file.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// PutCollection records name -> metadata block id.
func (idx *Index) PutCollection(name string, metadataBlockID uint64) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCollectionsByName).Put([]byte(name), encodeUint64(metadataBlockID))
	})
}

// LookupCollection returns the metadata block id bound to name.
func (idx *Index) LookupCollection(name string) (uint64, bool, error) {
	var id uint64
	var found bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCollectionsByName).Get([]byte(name))
		if v == nil {
			return nil
		}
		found = true
		id = decodeUint64(v)
		return nil
	})
	return id, found, err
}

// DeleteCollection removes name's index entry.
func (idx *Index) DeleteCollection(name string) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCollectionsByName).Delete([]byte(name))
	})
}

// ListCollectionNames returns every indexed collection name, in bbolt's
// key order (not necessarily insertion order; the model layer keeps
// the authoritative insertion-ordered list in memory).
func (idx *Index) ListCollectionNames() ([]string, error) {
	var names []string
	err := idx.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCollectionsByName).ForEach(func(k, v []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

// PutSchemaOwner records which collection a schema block belongs to.
func (idx *Index) PutSchemaOwner(schemaBlockID uint64, collectionName string) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSchemaOwner).Put(encodeUint64(schemaBlockID), []byte(collectionName))
	})
}

// PutRoot records a named root pointer (mirrors Superblock.Roots for
// fast lookup without decoding the superblock payload).
func (idx *Index) PutRoot(kind string, blockID uint64) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoots).Put([]byte(kind), encodeUint64(blockID))
	})
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
