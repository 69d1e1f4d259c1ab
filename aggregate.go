// Aggregation pipeline (spec.md §4.8): a sequential list of stages, of
// which only $group is required. $group buckets records by a field value
// and reduces each bucket with one or more accumulators.
package fluxdb

import (
	"errors"
	"strconv"
)

// formatFloat renders an accumulator's numeric result as a Record string
// value, using the shortest representation that round-trips exactly so
// whole-number sums read back as "300" rather than "300.000000".
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Stage is one step of an aggregation pipeline. Only the "$group" key is
// interpreted; other stages are accepted and ignored so a caller can pass
// a pipeline written for a richer engine without it failing outright.
type Stage map[string]any

// groupAccumulator tracks the running state for one output field of a
// $group stage across the records seen so far for a bucket.
type groupAccumulator struct {
	kind  string // "$sum", "$count", "$min", "$max", "$avg"
	field string
	sum   float64
	count int
	min   float64
	max   float64
	seen  bool
}

func (a *groupAccumulator) add(rec Record) {
	a.count++
	if a.kind == "$count" {
		return
	}
	v, ok := parseFloat(rec[a.field])
	if !ok {
		return
	}
	a.sum += v
	if !a.seen || v < a.min {
		a.min = v
	}
	if !a.seen || v > a.max {
		a.max = v
	}
	a.seen = true
}

func (a *groupAccumulator) result() float64 {
	switch a.kind {
	case "$count":
		return float64(a.count)
	case "$min":
		return a.min
	case "$max":
		return a.max
	case "$avg":
		if a.count == 0 {
			return 0
		}
		return a.sum / float64(a.count)
	default: // $sum
		return a.sum
	}
}

// Aggregate runs pipeline over every record in collection. Records are
// read the same way Find reads them: buffer flushed first, full scan,
// no query filter. A missing collection yields an empty result rather
// than an error, matching spec.md §7.
func (db *Database) Aggregate(collection string, pipeline []Stage) ([]Record, error) {
	records, err := db.Find(collection, nil, FindOptions{})
	if errors.Is(err, ErrCollectionNotFound) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, err
	}

	for _, stage := range pipeline {
		group, ok := stage["$group"].(map[string]any)
		if !ok {
			continue
		}
		records = runGroupStage(records, group)
	}
	return records, nil
}

func runGroupStage(records []Record, group map[string]any) []Record {
	groupField, _ := group["_id"].(string)

	type bucket struct {
		key   string
		accs  map[string]*groupAccumulator
		order []string
	}
	buckets := make(map[string]*bucket)
	var order []string

	newAccumulators := func() (map[string]*groupAccumulator, []string) {
		accs := make(map[string]*groupAccumulator)
		var names []string
		for outField, rawAcc := range group {
			if outField == "_id" {
				continue
			}
			acc, ok := rawAcc.(map[string]any)
			if !ok {
				continue
			}
			for kind, field := range acc {
				switch kind {
				case "$sum", "$min", "$max", "$avg":
					f, _ := field.(string)
					accs[outField] = &groupAccumulator{kind: kind, field: f}
				case "$count":
					accs[outField] = &groupAccumulator{kind: kind}
				}
			}
			names = append(names, outField)
		}
		return accs, names
	}

	for _, rec := range records {
		key := rec[groupField]
		b, ok := buckets[key]
		if !ok {
			accs, names := newAccumulators()
			b = &bucket{key: key, accs: accs, order: names}
			buckets[key] = b
			order = append(order, key)
		}
		for _, acc := range b.accs {
			acc.add(rec)
		}
	}

	out := make([]Record, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		rec := Record{"_id": key}
		for outField, acc := range b.accs {
			rec[outField] = formatFloat(acc.result())
		}
		out = append(out, rec)
	}
	return out
}
