// Index Store: per-collection inverted index over a fixed set of fields
// (spec.md §4.3), cached in memory and persisted to
// <root>/indexes/<collection>.idx.
//
// On-disk format: [algorithm byte][8-byte blake2b checksum of the
// compressed payload][compressed goccy-go-json encoding of the nested
// field -> value -> []id map]. The checksum lets the first load of an
// index file (indexes are read lazily, not by Open) detect a half written
// file and fall back to treating the collection as unindexed rather than
// trusting corrupt
// postings — folio's Header carries an analogous _e dirty flag for the
// same class of crash, detected here per-file instead of with a shared
// header.
package fluxdb

import (
	"fmt"
	"io"
	"os"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// fieldIndex maps a stringified field value to the ordered, de-duplicated
// list of record ids carrying that value.
type fieldIndex map[string][]string

// collectionIndex is the in-memory inverted index for one collection:
// field name -> fieldIndex.
type collectionIndex map[string]fieldIndex

const indexChecksumSize = 8

// indexStore owns every collection's inverted index, cached in memory and
// mirrored to <root>/indexes/<collection>.idx.
type indexStore struct {
	mu          sync.RWMutex
	root        *os.Root
	cache       map[string]collectionIndex
	compression CompressionAlgorithm
	log         *zap.SugaredLogger
}

func newIndexStore(root *os.Root, compression CompressionAlgorithm, log *zap.SugaredLogger) *indexStore {
	return &indexStore{
		root:        root,
		cache:       make(map[string]collectionIndex),
		compression: compression,
		log:         log,
	}
}

func (s *indexStore) path(collection string) string {
	return "indexes/" + collection + ".idx"
}

// createIndex initialises an empty index for each field, replacing any
// prior definition for the collection, and persists it.
func (s *indexStore) createIndex(collection string, fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := make(collectionIndex, len(fields))
	for _, f := range fields {
		idx[f] = make(fieldIndex)
	}
	s.cache[collection] = idx
	return s.persistLocked(collection, idx)
}

// updateIndex adds rec's id to the posting list for every indexed field's
// current value. It never removes a stale posting from a prior value —
// callers that replace a record's value must call removeFromIndex first (see
// spec.md §9's "update index cleanup" resolution, applied in Update).
func (s *indexStore) updateIndex(collection string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.loadLocked(collection)
	if idx == nil {
		return nil
	}

	id := rec["_id"]
	for field, postings := range idx {
		value := rec[field]
		ids := postings[value]
		if !containsID(ids, id) {
			postings[value] = append(ids, id)
		}
	}
	return s.persistLocked(collection, idx)
}

// removeFromIndex deletes id from every posting list it appears in,
// dropping any value entry left empty.
func (s *indexStore) removeFromIndex(collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.loadLocked(collection)
	if idx == nil {
		return nil
	}
	removeIDFromIndex(idx, id)
	return s.persistLocked(collection, idx)
}

// removeIDFromIndex is the pure mutation removeFromIndex persists; shared
// with Update's pre-reindex cleanup pass.
func removeIDFromIndex(idx collectionIndex, id string) {
	for field, postings := range idx {
		for value, ids := range postings {
			filtered := ids[:0]
			for _, existing := range ids {
				if existing != id {
					filtered = append(filtered, existing)
				}
			}
			if len(filtered) == 0 {
				delete(postings, value)
			} else {
				postings[value] = filtered
			}
		}
		idx[field] = postings
	}
}

// clearIndex empties every posting list but keeps the field set.
func (s *indexStore) clearIndex(collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.loadLocked(collection)
	if idx == nil {
		return nil
	}
	for field := range idx {
		idx[field] = make(fieldIndex)
	}
	return s.persistLocked(collection, idx)
}

// dropIndex removes the in-memory entry and the .idx file.
func (s *indexStore) dropIndex(collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, collection)
	if _, err := s.root.Stat(s.path(collection)); err == nil {
		return s.root.Remove(s.path(collection))
	}
	return nil
}

// canUseIndex reports whether an index exists for collection and at least
// one top-level query key names an indexed field with a scalar (equality)
// condition.
func (s *indexStore) canUseIndex(collection string, query Query) bool {
	s.mu.Lock()
	idx := s.loadLocked(collection)
	s.mu.Unlock()

	if idx == nil {
		return false
	}
	for key, condition := range query {
		if _, isOp := condition.(map[string]any); isOp {
			continue
		}
		if key == "$or" || key == "$and" {
			continue
		}
		if _, indexed := idx[key]; indexed {
			return true
		}
	}
	return false
}

// queryIndex intersects the posting lists of every equality clause whose
// key names an indexed field. Non-indexed clauses are not applied here;
// the caller post-filters the candidate set against the full query.
func (s *indexStore) queryIndex(collection string, query Query) map[string]struct{} {
	s.mu.Lock()
	idx := s.loadLocked(collection)
	s.mu.Unlock()

	if idx == nil {
		return nil
	}

	var result map[string]struct{}
	for key, condition := range query {
		if _, isOp := condition.(map[string]any); isOp {
			continue
		}
		postings, indexed := idx[key]
		if !indexed {
			continue
		}
		ids := postings[stringify(condition)]
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		if result == nil {
			result = set
		} else {
			for id := range result {
				if _, ok := set[id]; !ok {
					delete(result, id)
				}
			}
		}
	}
	if result == nil {
		return map[string]struct{}{}
	}
	return result
}

// snapshot returns a deep copy of collection's current index, for the
// Transaction Journal to capture a restore point. existed reports whether
// an index was defined for the collection at all.
func (s *indexStore) snapshot(collection string) (idx collectionIndex, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original := s.loadLocked(collection)
	if original == nil {
		return nil, false
	}
	return cloneCollectionIndex(original), true
}

// restore replaces collection's index with idx, or removes it entirely
// when existed is false.
func (s *indexStore) restore(collection string, idx collectionIndex, existed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !existed {
		delete(s.cache, collection)
		if _, err := s.root.Stat(s.path(collection)); err == nil {
			return s.root.Remove(s.path(collection))
		}
		return nil
	}
	s.cache[collection] = idx
	return s.persistLocked(collection, idx)
}

func cloneCollectionIndex(idx collectionIndex) collectionIndex {
	out := make(collectionIndex, len(idx))
	for field, postings := range idx {
		clonedPostings := make(fieldIndex, len(postings))
		for value, ids := range postings {
			clonedIDs := make([]string, len(ids))
			copy(clonedIDs, ids)
			clonedPostings[value] = clonedIDs
		}
		out[field] = clonedPostings
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// loadLocked returns the cached index, loading it from disk on a cold
// cache. Callers must hold s.mu.
func (s *indexStore) loadLocked(collection string) collectionIndex {
	if idx, ok := s.cache[collection]; ok {
		return idx
	}

	f, err := s.root.OpenFile(s.path(collection), os.O_RDONLY, 0)
	if err != nil {
		return nil
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil
	}
	idx, err := decodeIndexFile(data)
	if err != nil {
		s.log.Warnw("index store: discarding unreadable index file", "collection", collection, "error", err)
		return nil
	}
	s.cache[collection] = idx
	return idx
}

// persistLocked serialises idx and writes it to <collection>.idx via a
// temp file renamed into place, the same crash-safe swap segmentLog.rewrite
// uses for segment files.
func (s *indexStore) persistLocked(collection string, idx collectionIndex) error {
	payload, err := encodeIndexFile(s.compression, idx)
	if err != nil {
		return fmt.Errorf("index store: encode %s: %w", collection, err)
	}

	tmpName := s.path(collection) + ".tmp"
	f, err := s.root.Create(tmpName)
	if err != nil {
		return fmt.Errorf("index store: persist %s: %w", collection, err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return fmt.Errorf("index store: persist %s: %w", collection, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("index store: persist %s: %w", collection, err)
	}
	if err := s.root.Rename(tmpName, s.path(collection)); err != nil {
		return fmt.Errorf("index store: persist %s: %w", collection, err)
	}
	return nil
}

func encodeIndexFile(alg CompressionAlgorithm, idx collectionIndex) ([]byte, error) {
	raw, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	compressed, err := compressWith(alg, raw)
	if err != nil {
		return nil, err
	}
	sum := blake2b.Sum512(compressed)

	out := make([]byte, 0, 1+indexChecksumSize+len(compressed))
	out = append(out, byte(alg))
	out = append(out, sum[:indexChecksumSize]...)
	out = append(out, compressed...)
	return out, nil
}

func decodeIndexFile(data []byte) (collectionIndex, error) {
	if len(data) < 1+indexChecksumSize {
		return nil, fmt.Errorf("index file too short")
	}
	alg := CompressionAlgorithm(data[0])
	wantSum := data[1 : 1+indexChecksumSize]
	compressed := data[1+indexChecksumSize:]

	gotSum := blake2b.Sum512(compressed)
	if !bytesEqual(gotSum[:indexChecksumSize], wantSum) {
		return nil, fmt.Errorf("checksum mismatch, index file likely truncated by a crash")
	}

	raw, err := decompressWith(alg, compressed)
	if err != nil {
		return nil, err
	}
	var idx collectionIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
