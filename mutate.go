// Mutating operations: Insert, InsertMany, Update, Delete (spec.md §4.6),
// plus the Exists and Count reads that ride along with them in the
// original's data manager.
package fluxdb

import (
	"errors"
	"strings"
)

// Patch describes a change to apply with Update. A patch with any
// top-level key starting with "$" is an operator patch ($set, $unset,
// $inc), and its other keys are ignored; any other patch is treated as a
// $set-equivalent direct field merge.
type Patch map[string]any

// isOperatorPatch reports whether p uses $set/$unset/$inc keys rather
// than being a flat field merge.
func isOperatorPatch(p Patch) bool {
	for k := range p {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

// applyPatch returns rec with patch applied, never touching "_id" — a
// record's id is immutable once assigned, whether set directly or via
// $set.
func applyPatch(rec Record, patch Patch) Record {
	merged := rec.Clone()

	if !isOperatorPatch(patch) {
		for k, v := range patch {
			if k == "_id" {
				continue
			}
			merged[k] = stringify(v)
		}
		return merged
	}

	if set, ok := patch["$set"].(map[string]any); ok {
		for k, v := range set {
			if k == "_id" {
				continue
			}
			merged[k] = stringify(v)
		}
	}
	if unset, ok := patch["$unset"].(map[string]any); ok {
		for k := range unset {
			if k == "_id" {
				continue
			}
			delete(merged, k)
		}
	}
	if inc, ok := patch["$inc"].(map[string]any); ok {
		for k, v := range inc {
			if k == "_id" {
				continue
			}
			current, ok := parseFloat(merged[k])
			if !ok {
				continue
			}
			delta, ok := toFloat(v)
			if !ok {
				continue
			}
			merged[k] = formatFloat(current + delta)
		}
	}
	return merged
}

// Insert adds rec to collection, assigning a fresh "_id" if rec doesn't
// already carry one, and returns the id used.
func (db *Database) Insert(collection string, rec Record) (string, error) {
	var id string
	err := db.withCollectionWrite(collection, func(log *segmentLog) error {
		frame, newID, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		id = newID

		withID := rec.Clone()
		withID["_id"] = newID
		if err := db.index.updateIndex(collection, withID); err != nil {
			return err
		}

		if db.buffer.append(collection, frame) {
			return db.buffer.flush(log)
		}
		return nil
	})
	return id, err
}

// InsertMany inserts every record in recs into collection, returning the
// id assigned to each in order.
func (db *Database) InsertMany(collection string, recs []Record) ([]string, error) {
	ids := make([]string, 0, len(recs))
	err := db.withCollectionWrite(collection, func(log *segmentLog) error {
		for _, rec := range recs {
			frame, id, err := encodeRecord(rec)
			if err != nil {
				return err
			}

			withID := rec.Clone()
			withID["_id"] = id
			if err := db.index.updateIndex(collection, withID); err != nil {
				return err
			}

			ids = append(ids, id)
			if db.buffer.append(collection, frame) {
				if err := db.buffer.flush(log); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return ids, err
}

// Update applies patch to the record identified by id. A patch with any
// top-level key starting with "$" is interpreted as $set/$unset/$inc
// operators; any other patch is a direct field merge ($set-equivalent).
// "_id" can never be overwritten. If no record matches and upsert is
// true, a new record is materialised from the patch's $set fields (or
// its fields directly, for a non-operator patch) with "_id" set to id.
// Reports whether a record was modified or upserted.
func (db *Database) Update(collection, id string, patch Patch, upsert bool) (bool, error) {
	var changed bool
	err := db.withCollectionWrite(collection, func(log *segmentLog) error {
		if err := db.buffer.flush(log); err != nil {
			return err
		}
		records, err := log.scan(nil)
		if err != nil {
			return err
		}

		var result Record
		found := false
		for i, rec := range records {
			if rec["_id"] != id {
				continue
			}
			if err := db.recordHistory(collection, rec); err != nil {
				return err
			}
			result = applyPatch(rec, patch)
			result["_id"] = id
			records[i] = result
			found = true
			changed = true
			break
		}

		if !found {
			if !upsert {
				return nil
			}
			seed := patch
			if isOperatorPatch(patch) {
				seed = Patch{"$set": patch["$set"]}
			}
			result = applyPatch(Record{}, seed)
			result["_id"] = id
			records = append(records, result)
			changed = true
		}

		if err := db.index.removeFromIndex(collection, id); err != nil {
			return err
		}

		frames := make([][]byte, 0, len(records))
		for _, rec := range records {
			frame, _, err := encodeRecord(rec)
			if err != nil {
				return err
			}
			frames = append(frames, frame)
		}
		if err := log.rewrite(frames); err != nil {
			return err
		}
		return db.index.updateIndex(collection, result)
	})
	return changed, err
}

// Delete removes the record identified by id from collection. Reports
// whether a record with that id was found.
func (db *Database) Delete(collection, id string) (bool, error) {
	var deleted bool
	err := db.withCollectionWrite(collection, func(log *segmentLog) error {
		if err := db.buffer.flush(log); err != nil {
			return err
		}
		records, err := log.scan(nil)
		if err != nil {
			return err
		}

		kept := records[:0]
		for _, rec := range records {
			if rec["_id"] == id {
				if err := db.recordHistory(collection, rec); err != nil {
					return err
				}
				deleted = true
				continue
			}
			kept = append(kept, rec)
		}
		if !deleted {
			return nil
		}

		frames := make([][]byte, 0, len(kept))
		for _, rec := range kept {
			frame, _, err := encodeRecord(rec)
			if err != nil {
				return err
			}
			frames = append(frames, frame)
		}
		if err := log.rewrite(frames); err != nil {
			return err
		}
		return db.index.removeFromIndex(collection, id)
	})
	return deleted, err
}

// Exists reports whether collection contains a record with the given id,
// flushing pending writes first so a just-inserted record is visible.
func (db *Database) Exists(collection, id string) (bool, error) {
	var found bool
	err := db.withCollectionRead(collection, func(log *segmentLog) error {
		if err := db.buffer.flush(log); err != nil {
			return err
		}
		return log.scanFunc(map[string]struct{}{id: {}}, func(Record, int64) bool {
			found = true
			return false
		})
	})
	return found, err
}

// Count returns the number of records in collection matching query. A nil
// or empty query counts every record. A missing collection counts as 0
// rather than an error, matching spec.md §7.
func (db *Database) Count(collection string, query Query) (int, error) {
	records, err := db.Find(collection, query, FindOptions{})
	if errors.Is(err, ErrCollectionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
