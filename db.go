// Core database type and lifecycle operations (spec.md §4.8 Engine).
//
// Database owns a directory: one append-only segment log per collection,
// an indexes/ subdirectory for the Index Store, and an in-memory write
// buffer shared across collections. It coordinates collection lifecycle,
// concurrency and flush ordering; CRUD and query logic live alongside it
// in mutate.go, find.go and aggregate.go.
package fluxdb

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// collectionNameSuffix is the on-disk extension for a collection's
// segment log.
const collectionNameSuffix = ".fdb"

// Database is a single open fluxdb store. All exported methods except
// Close are safe for concurrent use by multiple goroutines.
type Database struct {
	root   *os.Root
	config Config
	log    *zap.SugaredLogger

	buffer *writeBuffer
	index  *indexStore
	locks  *lockTable

	mu          sync.RWMutex
	collections map[string]*segmentLog
	txn         *transaction // nil unless a transaction is active
	closed      bool
}

// Open opens dir as a fluxdb database directory, creating it if it
// doesn't already exist, along with an indexes/ subdirectory for the
// Index Store.
func Open(dir string, config Config) (*Database, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fluxdb: open %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("fluxdb: open %s: %w", dir, err)
	}

	if err := root.Mkdir("indexes", 0o755); err != nil && !os.IsExist(err) {
		root.Close()
		return nil, fmt.Errorf("fluxdb: open %s: %w", dir, err)
	}

	db := &Database{
		root:        root,
		config:      config,
		log:         config.Logger,
		buffer:      newWriteBuffer(config.BufferSize),
		index:       newIndexStore(root, config.IndexCompression, config.Logger),
		locks:       newLockTable(config.LockShards),
		collections: make(map[string]*segmentLog),
	}

	if err := db.discoverCollections(); err != nil {
		root.Close()
		return nil, err
	}
	return db, nil
}

// discoverCollections populates db.collections from whatever *.fdb files
// already exist in the directory, so a reopened database sees its prior
// collections without an explicit CreateCollection call.
func (db *Database) discoverCollections() error {
	entries, err := db.root.Open(".")
	if err != nil {
		return fmt.Errorf("fluxdb: list collections: %w", err)
	}
	defer entries.Close()

	names, err := entries.Readdirnames(-1)
	if err != nil {
		return fmt.Errorf("fluxdb: list collections: %w", err)
	}
	for _, name := range names {
		if !strings.HasSuffix(name, collectionNameSuffix) {
			continue
		}
		collection := strings.TrimSuffix(name, collectionNameSuffix)
		db.collections[collection] = newSegmentLog(db.root, collection, db.config)
	}
	return nil
}

// Close flushes every pending write and releases the database's file
// handles. Close is not safe to call concurrently with other operations.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	db.closed = true

	var err error
	if ferr := db.buffer.flushAll(func(c string) *segmentLog { return db.collections[c] }); ferr != nil {
		err = multierr.Append(err, ferr)
	}
	if cerr := db.root.Close(); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	return err
}

func (db *Database) checkOpen() error {
	if db.closed {
		return ErrClosed
	}
	return nil
}

// validCollectionName enforces the collection name restrictions: no empty
// name, not the reserved name "indexes", no path separator, NUL byte or
// "..", and no leading dot.
func validCollectionName(name string) bool {
	if name == "" || name == "indexes" {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return false
	}
	if strings.HasPrefix(name, ".") {
		return false
	}
	return true
}

// CreateCollection creates an empty collection, optionally with an
// inverted index over indexFields. Creating a collection that already
// exists is a no-op; it does not reset an existing index definition.
func (db *Database) CreateCollection(name string, indexFields ...string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkOpen(); err != nil {
		return err
	}
	if !validCollectionName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	if err := db.snapshotForRollback(name); err != nil {
		return err
	}

	log, ok := db.collections[name]
	if !ok {
		log = newSegmentLog(db.root, name, db.config)
		if _, err := log.create(); err != nil {
			return err
		}
		db.collections[name] = log
	}

	if !ok && len(indexFields) > 0 {
		if err := db.index.createIndex(name, indexFields); err != nil {
			return err
		}
	}
	return nil
}

// CreateIndex (Index Store) defines or replaces the indexed fields for an
// existing collection. Unlike passing indexFields to CreateCollection,
// this can be called at any time, matching the original's standalone
// create_index entry point. Existing records are not retroactively
// reindexed; callers that need that should re-import the collection's
// current contents afterward.
func (db *Database) CreateIndex(name string, fields ...string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkOpen(); err != nil {
		return err
	}
	if _, ok := db.collections[name]; !ok {
		return fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	return db.index.createIndex(name, fields)
}

// DropCollection removes a collection's segment log, index and any
// pending buffered writes.
func (db *Database) DropCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkOpen(); err != nil {
		return err
	}
	log, ok := db.collections[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	if err := db.snapshotForRollback(name); err != nil {
		return err
	}

	db.buffer.drain(name)
	if err := db.index.dropIndex(name); err != nil {
		return err
	}
	if err := log.drop(); err != nil {
		return err
	}
	if db.config.KeepHistory {
		if err := db.dropHistory(name); err != nil {
			return err
		}
	}
	delete(db.collections, name)
	return nil
}

// ClearCollection empties a collection's contents and index while
// keeping it (and any index field definition) present.
func (db *Database) ClearCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkOpen(); err != nil {
		return err
	}
	log, ok := db.collections[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	if err := db.snapshotForRollback(name); err != nil {
		return err
	}

	db.buffer.drain(name)
	if err := log.truncate(); err != nil {
		return err
	}
	if db.config.KeepHistory {
		if err := db.dropHistory(name); err != nil {
			return err
		}
	}
	return db.index.clearIndex(name)
}

// ListCollections returns every known collection name, sorted.
func (db *Database) ListCollections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// collectionLog returns the segment log for name, or ErrCollectionNotFound.
func (db *Database) collectionLog(name string) (*segmentLog, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	log, ok := db.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	return log, nil
}

// withCollectionWrite resolves name's segment log, captures a rollback
// snapshot if a transaction is active, then runs fn with the collection's
// exclusive lock held. db.mu is only held for the bookkeeping step, not
// for the duration of fn, so unrelated collections stay unblocked.
func (db *Database) withCollectionWrite(name string, fn func(log *segmentLog) error) error {
	db.mu.Lock()
	if err := db.checkOpen(); err != nil {
		db.mu.Unlock()
		return err
	}
	log, ok := db.collections[name]
	if !ok {
		db.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	if err := db.snapshotForRollback(name); err != nil {
		db.mu.Unlock()
		return err
	}
	db.mu.Unlock()

	db.locks.lock(name)
	defer db.locks.unlock(name)
	return fn(log)
}

// withCollectionRead resolves name's segment log then runs fn with the
// collection's lock held. Read paths take the same exclusive lock writes
// do, not a shared one, because every read must first flush the write
// buffer — itself a mutation of the segment log — before scanning.
func (db *Database) withCollectionRead(name string, fn func(log *segmentLog) error) error {
	log, err := db.collectionLog(name)
	if err != nil {
		return err
	}
	db.locks.lock(name)
	defer db.locks.unlock(name)
	return fn(log)
}

// ExportCollection flushes pending writes and byte-copies name's segment
// log to outputFile. Reports false, with no error, if name doesn't exist.
func (db *Database) ExportCollection(name, outputFile string) (bool, error) {
	var data []byte
	err := db.withCollectionRead(name, func(log *segmentLog) error {
		if err := db.buffer.flush(log); err != nil {
			return err
		}
		snapshot, existed, err := log.snapshotBytes()
		if err != nil {
			return err
		}
		if !existed {
			return nil
		}
		data = snapshot
		return nil
	})
	if errors.Is(err, ErrCollectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}

	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		return false, fmt.Errorf("export collection %s: %w", name, err)
	}
	return true, nil
}

// ImportCollection byte-copies inputFile into name's segment log,
// replacing its prior contents, then reindexes from the imported
// contents. Reports false, with no error, if inputFile doesn't exist.
func (db *Database) ImportCollection(name, inputFile string) (bool, error) {
	data, err := os.ReadFile(inputFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("import collection %s: %w", name, err)
	}

	db.mu.Lock()
	if err := db.checkOpen(); err != nil {
		db.mu.Unlock()
		return false, err
	}
	log, ok := db.collections[name]
	if !ok {
		log = newSegmentLog(db.root, name, db.config)
		db.collections[name] = log
	}
	if err := db.snapshotForRollback(name); err != nil {
		db.mu.Unlock()
		return false, err
	}
	db.mu.Unlock()

	db.locks.lock(name)
	defer db.locks.unlock(name)

	db.buffer.drain(name)
	if err := log.restoreBytes(data, true); err != nil {
		return false, err
	}

	records, err := log.scan(nil)
	if err != nil {
		return false, err
	}
	if err := db.index.clearIndex(name); err != nil {
		return false, err
	}
	for _, rec := range records {
		if err := db.index.updateIndex(name, rec); err != nil {
			return false, err
		}
	}
	return true, nil
}
