package strata

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// bucketTuples is the single bucket holding all encoded rows. The leading
// table-id component of every key partitions the keyspace; no per-table
// buckets are needed.
var bucketTuples = []byte("tuples")

// Options configures the physical stores.
type Options struct {
	// NoSync disables fsync after each commit for faster writes (risk of
	// data loss on crash). The temp store always runs with NoSync.
	NoSync bool
	// ReadOnly opens the root store in read-only mode.
	ReadOnly bool
	// MmapSize is the initial mmap size for the database file in bytes.
	MmapSize int
	// TempDir is where session temp stores are created. Empty means the
	// system temp directory.
	TempDir string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		NoSync:   false,
		ReadOnly: false,
		MmapSize: 64 * 1024 * 1024,
	}
}

// ReadOptions and WriteOptions are supplied by the caller and passed
// through the operator unmodified; the execution core never invents its
// own read or write behavior.
type ReadOptions struct {
	// VerifyValue requests payload decoding checks on read paths that
	// support them.
	VerifyValue bool
}

type WriteOptions struct {
	// Sync forces an fsync after the write when the backing store would
	// otherwise defer it.
	Sync bool
}

// Store is the root persistent store: a single bbolt database holding the
// encoded rows of every root-flagged table.
type Store struct {
	db   *bolt.DB
	path string
}

// OpenStore opens or creates the root store at the given path.
func OpenStore(path string, opts Options) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("strata: failed to create directory %s: %w", dir, err)
	}

	boltOpts := bolt.DefaultOptions
	boltOpts.NoSync = opts.NoSync
	boltOpts.ReadOnly = opts.ReadOnly
	if opts.MmapSize > 0 {
		boltOpts.InitialMmapSize = opts.MmapSize
	}

	db, err := bolt.Open(path, 0600, boltOpts)
	if err != nil {
		return nil, fmt.Errorf("strata: failed to open bolt db at %s: %w", path, err)
	}

	s := &Store{db: db, path: path}
	if !opts.ReadOnly {
		if err := s.initBuckets(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTuples); err != nil {
			return fmt.Errorf("strata: failed to create bucket %s: %w", bucketTuples, err)
		}
		return nil
	})
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error { return s.db.Close() }

// Begin starts a transaction. Writable transactions serialize on bbolt's
// single-writer lock; the caller must Commit or Rollback.
func (s *Store) Begin(writable bool) (*Txn, error) {
	btx, err := s.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("strata: failed to begin transaction: %w", err)
	}
	return &Txn{btx: btx}, nil
}

// Txn is the root transaction handle the insertion operator writes
// through for root-flagged tables. Get/Put/ScanPrefix operate on the
// tuples bucket; Commit/Rollback delegate to bbolt.
type Txn struct {
	btx *bolt.Tx
}

// Get returns the stored value for key, or nil when absent.
func (t *Txn) Get(_ ReadOptions, key []byte) ([]byte, error) {
	b := t.btx.Bucket(bucketTuples)
	if b == nil {
		return nil, nil
	}
	v := b.Get(key)
	if v == nil {
		return nil, nil
	}
	// bbolt value slices are only valid for the life of the tx.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put writes key → val.
func (t *Txn) Put(_ WriteOptions, key, val []byte) error {
	b := t.btx.Bucket(bucketTuples)
	if b == nil {
		return fmt.Errorf("strata: tuples bucket missing")
	}
	return b.Put(key, val)
}

// ScanPrefix iterates key/value pairs sharing the prefix, in key order.
func (t *Txn) ScanPrefix(prefix []byte, fn func(k, v []byte) error) error {
	b := t.btx.Bucket(bucketTuples)
	if b == nil {
		return nil
	}
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Commit commits the transaction.
func (t *Txn) Commit() error { return t.btx.Commit() }

// Rollback aborts the transaction. Safe to call after Commit (bbolt
// returns ErrTxClosed, which is swallowed here).
func (t *Txn) Rollback() error {
	err := t.btx.Rollback()
	if err == bolt.ErrTxClosed {
		return nil
	}
	return err
}

// ---------------------------------------------------------------------------
// TempStore — session-scoped store for non-root tables.
// ---------------------------------------------------------------------------

// TempStore backs non-root tables: rows live only for the session. It is a
// bbolt database in a temp directory with fsync disabled; Close removes
// the file.
type TempStore struct {
	db  *bolt.DB
	dir string
}

// OpenTempStore creates a fresh session store.
func OpenTempStore(opts Options) (*TempStore, error) {
	dir, err := os.MkdirTemp(opts.TempDir, "strata-temp-*")
	if err != nil {
		return nil, fmt.Errorf("strata: failed to create temp dir: %w", err)
	}

	boltOpts := bolt.DefaultOptions
	boltOpts.NoSync = true
	db, err := bolt.Open(filepath.Join(dir, "temp.db"), 0600, boltOpts)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("strata: failed to open temp store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketTuples)
		return e
	})
	if err != nil {
		db.Close()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("strata: failed to init temp store: %w", err)
	}

	return &TempStore{db: db, dir: dir}, nil
}

// Get returns the stored value for key, or nil when absent.
func (t *TempStore) Get(_ ReadOptions, key []byte) ([]byte, error) {
	var out []byte
	err := t.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTuples).Get(key)
		if v != nil {
			out = make([]byte, len(v))
			copy(out, v)
		}
		return nil
	})
	return out, err
}

// Put writes key → val.
func (t *TempStore) Put(_ WriteOptions, key, val []byte) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTuples).Put(key, val)
	})
}

// ScanPrefix iterates key/value pairs sharing the prefix, in key order.
func (t *TempStore) ScanPrefix(prefix []byte, fn func(k, v []byte) error) error {
	return t.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTuples).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the temp store and removes its files.
func (t *TempStore) Close() error {
	err := t.db.Close()
	if rmErr := os.RemoveAll(t.dir); err == nil {
		err = rmErr
	}
	return err
}

// kvHandle unifies the two write targets so the insertion operator can
// select by a table's root flag without branching at every call site.
type kvHandle interface {
	Get(opts ReadOptions, key []byte) ([]byte, error)
	Put(opts WriteOptions, key, val []byte) error
	ScanPrefix(prefix []byte, fn func(k, v []byte) error) error
}

var (
	_ kvHandle = (*Txn)(nil)
	_ kvHandle = (*TempStore)(nil)
)
