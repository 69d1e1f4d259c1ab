// Transaction Journal (spec.md §4.7). A transaction lets a caller group
// several mutations and undo all of them together.
//
// Rather than capturing ambient state in closures, the journal records a
// flat, tagged snapshot per collection the first time the transaction
// touches it: the collection's raw segment log bytes, its buffered
// frames, and its index. Rollback restores every touched collection from
// its snapshot; Commit just discards them. This is a deliberate departure
// from the source's transaction manager, whose rollback does not restore
// prior state at all — only the set of operations performed is undone,
// not the data they overwrote.
package fluxdb

import "fmt"

// collectionSnapshot is the restore point captured for one collection the
// first time a transaction mutates it.
type collectionSnapshot struct {
	logBytes     []byte
	logExisted   bool
	bufferFrames [][]byte
	index        collectionIndex
	indexExisted bool
}

// transaction tracks the snapshots taken since BeginTransaction, one per
// collection touched.
type transaction struct {
	snapshots map[string]*collectionSnapshot
}

// BeginTransaction starts a new transaction. Only one transaction may be
// active at a time.
func (db *Database) BeginTransaction() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkOpen(); err != nil {
		return err
	}
	if db.txn != nil {
		return ErrTransactionActive
	}
	db.txn = &transaction{snapshots: make(map[string]*collectionSnapshot)}
	return nil
}

// Commit ends the active transaction, keeping every change made since
// BeginTransaction.
func (db *Database) Commit() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.txn == nil {
		return ErrNoTransaction
	}
	db.txn = nil
	return nil
}

// Rollback ends the active transaction, restoring every collection it
// touched to its state at BeginTransaction.
func (db *Database) Rollback() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.txn == nil {
		return ErrNoTransaction
	}
	txn := db.txn
	db.txn = nil

	for name, snap := range txn.snapshots {
		log, ok := db.collections[name]
		if !ok {
			log = newSegmentLog(db.root, name, db.config)
		}
		if err := log.restoreBytes(snap.logBytes, snap.logExisted); err != nil {
			return fmt.Errorf("rollback %s: %w", name, err)
		}
		if snap.logExisted {
			db.collections[name] = log
		} else {
			delete(db.collections, name)
		}

		db.buffer.restore(name, snap.bufferFrames)

		if err := db.index.restore(name, snap.index, snap.indexExisted); err != nil {
			return fmt.Errorf("rollback %s: %w", name, err)
		}
	}
	return nil
}

// snapshotForRollback captures name's current state into the active
// transaction the first time the transaction touches it. A no-op when no
// transaction is active, or the collection was already captured. Callers
// must hold db.mu for writing.
func (db *Database) snapshotForRollback(name string) error {
	if db.txn == nil {
		return nil
	}
	if _, already := db.txn.snapshots[name]; already {
		return nil
	}

	snap := &collectionSnapshot{
		bufferFrames: db.buffer.snapshot(name),
	}

	if log, ok := db.collections[name]; ok {
		data, existed, err := log.snapshotBytes()
		if err != nil {
			return err
		}
		snap.logBytes, snap.logExisted = data, existed
	}

	idx, existed := db.index.snapshot(name)
	snap.index, snap.indexExisted = idx, existed

	db.txn.snapshots[name] = snap
	return nil
}
