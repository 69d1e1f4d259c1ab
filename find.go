// Find orchestrates a query across the write buffer, the Index Store and
// the segment log (spec.md §4.5, §4.8): flush first, narrow the candidate
// set with an index when one applies, filter the rest with match, then
// sort and page.
package fluxdb

// FindOptions controls sorting and pagination of a Find call.
type FindOptions struct {
	Sort  Sort
	Skip  int
	Limit *int
}

// Find returns every record in collection matching query, flushing
// pending writes first. A nil or empty query matches every record.
func (db *Database) Find(collection string, query Query, opts FindOptions) ([]Record, error) {
	var out []Record
	err := db.withCollectionRead(collection, func(log *segmentLog) error {
		if err := db.buffer.flush(log); err != nil {
			return err
		}

		var records []Record
		var err error
		if len(query) > 0 && db.index.canUseIndex(collection, query) {
			candidates := db.index.queryIndex(collection, query)
			ids := make([]string, 0, len(candidates))
			for id := range candidates {
				ids = append(ids, id)
			}
			records, err = log.scanIDs(ids)
		} else {
			records, err = log.scan(nil)
		}
		if err != nil {
			return err
		}

		filtered := records[:0]
		for _, rec := range records {
			if len(query) == 0 || match(rec, query) {
				filtered = append(filtered, rec)
			}
		}
		out = filtered
		return nil
	})
	if err != nil {
		return nil, err
	}

	applySort(out, opts.Sort)
	return applySkipLimit(out, opts.Skip, opts.Limit), nil
}

// FindOne returns the first record in collection matching query, applying
// sort before taking the first result, and reports false if none match.
func (db *Database) FindOne(collection string, query Query, sort Sort) (Record, bool, error) {
	limit := 1
	records, err := db.Find(collection, query, FindOptions{Sort: sort, Limit: &limit})
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}
