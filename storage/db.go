package storage

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/comparer"
	"github.com/syndtr/goleveldb/leveldb/memdb"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// KV is the minimal set of primitives the state layer needs: get, set, delete
// and exists.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
}

// Database is a generic interface for a key-value store.
// This allows the host to run on any database backend (in-memory or persistent).
type Database interface {
	KV
	// Write applies every operation in the batch atomically.
	Write(batch *leveldb.Batch) error
	Close() // A way to gracefully shut down the database connection.
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	db *memdb.DB
}

func NewMemDB() *MemDB {
	return &MemDB{db: memdb.New(comparer.DefaultComparer, 0)}
}

func (m *MemDB) Put(key []byte, value []byte) error {
	return m.db.Put(key, value)
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	value, err := m.db.Get(key)
	if errors.Is(err, memdb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), value...), nil
}

func (m *MemDB) Delete(key []byte) error {
	err := m.db.Delete(key)
	if errors.Is(err, memdb.ErrNotFound) {
		return nil
	}
	return err
}

func (m *MemDB) Has(key []byte) (bool, error) {
	return m.db.Contains(key), nil
}

// Write replays the batch into the in-memory table.
func (m *MemDB) Write(batch *leveldb.Batch) error {
	if batch == nil {
		return nil
	}
	return batch.Replay(memReplay{db: m.db})
}

// Len reports the number of live entries.
func (m *MemDB) Len() int {
	return m.db.Len()
}

// Close satisfies the Database interface for MemDB.
func (m *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

type memReplay struct {
	db *memdb.DB
}

func (r memReplay) Put(key, value []byte) {
	_ = r.db.Put(key, value)
}

func (r memReplay) Delete(key []byte) {
	_ = r.db.Delete(key)
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Delete removes the key. Deleting an absent key is not an error.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// Has reports whether the key exists.
func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, nil)
}

// Write commits the batch with a single synchronous write.
func (ldb *LevelDB) Write(batch *leveldb.Batch) error {
	if batch == nil {
		return nil
	}
	return ldb.db.Write(batch, nil)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}
