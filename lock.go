// Per-collection locking (spec.md §4.9, §5). Every collection's mutations
// are serialised through a mutex keyed by collection name. Unlike folio's
// lock.go, which takes an OS-level flock for cross-process exclusion,
// fluxdb only arbitrates goroutines within one process — spec.md's
// Non-goals exclude multi-process access, so a pure in-process primitive
// is enough and avoids the platform-specific lock_unix.go/lock_windows.go
// split folio needs.
//
// Collections are striped across a fixed number of shards by hashing the
// collection name with zeebo/xxh3, rather than growing one mutex per
// collection name forever.
package fluxdb

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// lockTable stripes collection locks across a fixed number of shards.
type lockTable struct {
	shards []sync.RWMutex
}

func newLockTable(shardCount int) *lockTable {
	if shardCount <= 0 {
		shardCount = defaultLockShards
	}
	return &lockTable{shards: make([]sync.RWMutex, shardCount)}
}

func (t *lockTable) shardFor(collection string) *sync.RWMutex {
	h := xxh3.HashString(collection)
	return &t.shards[h%uint64(len(t.shards))]
}

// lock acquires the exclusive lock for collection. Every operation that
// touches a collection's segment log takes this lock, including reads:
// a read must first flush the write buffer, which is itself a mutation
// of the log, so there is no safe shared-read path to offer. Two
// different collections that happen to hash into the same shard still
// serialise against each other; this is a deliberate simplicity-over-
// throughput tradeoff spec.md §5 allows for an embedded, single-process
// store.
func (t *lockTable) lock(collection string) {
	t.shardFor(collection).Lock()
}

func (t *lockTable) unlock(collection string) {
	t.shardFor(collection).Unlock()
}
