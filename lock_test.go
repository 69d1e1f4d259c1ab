// Per-collection lock table tests.
package fluxdb

import (
	"sync"
	"testing"
)

func TestLockTableSerialisesSameCollection(t *testing.T) {
	table := newLockTable(4)
	var counter int
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			table.lock("users")
			defer table.unlock("users")
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50 (lock should have serialised every increment)", counter)
	}
}

func TestLockTableShardForIsStable(t *testing.T) {
	table := newLockTable(8)
	a := table.shardFor("users")
	b := table.shardFor("users")
	if a != b {
		t.Error("shardFor should return the same shard for the same collection name")
	}
}
