// Write Buffer (spec.md §4.4): a per-collection in-memory FIFO of
// already-encoded frames, flushed to the Segment Log once it reaches
// Config.BufferSize entries or on an explicit Flush. Every read path
// (Find, Count, Exists, Export) must flush a collection's buffer before
// scanning its segment log, so a just-inserted record is always visible.
package fluxdb

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// writeBuffer holds the pending, not-yet-flushed frames for every
// collection.
type writeBuffer struct {
	mu       sync.Mutex
	pending  map[string][][]byte
	capacity int
}

func newWriteBuffer(capacity int) *writeBuffer {
	return &writeBuffer{
		pending:  make(map[string][][]byte),
		capacity: capacity,
	}
}

// append queues frame for collection and reports whether the buffer has
// now reached capacity and should be flushed.
func (b *writeBuffer) append(collection string, frame []byte) (full bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending[collection] = append(b.pending[collection], frame)
	return len(b.pending[collection]) >= b.capacity
}

// drain removes and returns every pending frame for collection, in
// insertion order. A nil or empty return means there was nothing to
// flush.
func (b *writeBuffer) drain(collection string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	frames := b.pending[collection]
	if len(frames) == 0 {
		return nil
	}
	delete(b.pending, collection)
	return frames
}

// peek returns the currently buffered frames for collection without
// removing them, for a read path that needs to search buffered-but-not-
// yet-flushed records directly instead of forcing a flush.
func (b *writeBuffer) peek(collection string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frames := b.pending[collection]; len(frames) > 0 {
		out := make([][]byte, len(frames))
		copy(out, frames)
		return out
	}
	return nil
}

// snapshot returns a copy of collection's currently pending frames, for
// the Transaction Journal to capture a restore point.
func (b *writeBuffer) snapshot(collection string) [][]byte {
	return b.peek(collection)
}

// restore replaces collection's pending frames with frames wholesale.
func (b *writeBuffer) restore(collection string, frames [][]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(frames) == 0 {
		delete(b.pending, collection)
		return
	}
	b.pending[collection] = frames
}

// collections returns the names of every collection with pending frames.
func (b *writeBuffer) collections() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.pending))
	for name, frames := range b.pending {
		if len(frames) > 0 {
			names = append(names, name)
		}
	}
	return names
}

// flush drains collection's buffer and appends it to log, the ordering
// every mutating and reading operation relies on to keep the log and the
// buffer consistent.
func (b *writeBuffer) flush(log *segmentLog) error {
	frames := b.drain(log.name)
	if len(frames) == 0 {
		return nil
	}
	if err := log.append(frames); err != nil {
		return fmt.Errorf("flush buffer: %w", err)
	}
	return nil
}

// flushAll concurrently flushes every collection with pending writes,
// using an errgroup the way solidcoredata's RunAll fans work out across
// goroutines and collects the first error.
func (b *writeBuffer) flushAll(logs func(collection string) *segmentLog) error {
	names := b.collections()
	if len(names) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, name := range names {
		name := name
		g.Go(func() error {
			return b.flush(logs(name))
		})
	}
	return g.Wait()
}
