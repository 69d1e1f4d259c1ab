// Repair and compaction. Repair rewrites a collection's segment log from
// a full scan, dropping any trailing corrupt or truncated frame a crash
// left behind and collapsing what may be many small appends (one per
// buffer flush) into a single contiguous write. Compact and Purge are
// convenience wrappers, the same shape as folio's compact.go sits on top
// of its Repair.
package fluxdb

// CompactOptions configures Repair's behaviour.
type CompactOptions struct {
	// PurgeHistory also discards collection's retired-version history,
	// when Config.KeepHistory is enabled.
	PurgeHistory bool
}

// Repair rewrites collection's segment log with only its well-formed
// frames, flushing pending writes first.
func (db *Database) Repair(collection string, opts *CompactOptions) error {
	if opts == nil {
		opts = &CompactOptions{}
	}

	err := db.withCollectionWrite(collection, func(log *segmentLog) error {
		if err := db.buffer.flush(log); err != nil {
			return err
		}
		records, err := log.scan(nil)
		if err != nil {
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
		return log.rewrite(frames)
	})
	if err != nil {
		return err
	}

	if opts.PurgeHistory && db.config.KeepHistory {
		if err := db.truncateHistory(collection); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites collection's segment log while preserving history.
func (db *Database) Compact(collection string) error {
	return db.Repair(collection, nil)
}

// Purge rewrites collection's segment log and discards its history.
func (db *Database) Purge(collection string) error {
	return db.Repair(collection, &CompactOptions{PurgeHistory: true})
}
