// Query filter and sort evaluation (spec.md §4.5).
//
// A Query is a map from field name to a condition: either a scalar,
// compared to the record's field by stringifying both sides, or an
// operator map ($gt, $lt, $in, $regex). "$or" and "$and" may appear as
// top-level query keys, each holding a list of sub-queries.
package fluxdb

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// Query is a filter expression evaluated against a Record by Find,
// FindOne and Count.
type Query map[string]any

// SortField names one key of a multi-key sort and its direction.
type SortField struct {
	Field      string
	Descending bool
}

// Sort is an ordered list of sort keys, most significant first.
type Sort []SortField

// match reports whether rec satisfies every entry of query.
func match(rec Record, query Query) bool {
	for key, condition := range query {
		switch key {
		case "$or":
			subs, ok := condition.([]Query)
			if !ok {
				return false
			}
			if !matchAny(rec, subs) {
				return false
			}
		case "$and":
			subs, ok := condition.([]Query)
			if !ok {
				return false
			}
			if !matchAll(rec, subs) {
				return false
			}
		default:
			if !matchField(rec, key, condition) {
				return false
			}
		}
	}
	return true
}

func matchAny(rec Record, subs []Query) bool {
	for _, q := range subs {
		if match(rec, q) {
			return true
		}
	}
	return false
}

func matchAll(rec Record, subs []Query) bool {
	for _, q := range subs {
		if !match(rec, q) {
			return false
		}
	}
	return true
}

// matchField evaluates a single (key, condition) entry.
func matchField(rec Record, key string, condition any) bool {
	ops, isOperatorMap := condition.(map[string]any)
	if !isOperatorMap {
		return stringify(rec[key]) == stringify(condition)
	}

	for op, value := range ops {
		if !matchOperator(rec, key, op, value) {
			return false
		}
	}
	return true
}

func matchOperator(rec Record, key, op string, value any) bool {
	switch op {
	case "$gt":
		num, ok := parseFloat(rec[key])
		if !ok {
			return false
		}
		target, ok := toFloat(value)
		return ok && num > target
	case "$lt":
		num, ok := parseFloat(rec[key])
		if !ok {
			return false
		}
		target, ok := toFloat(value)
		return ok && num < target
	case "$in":
		list, ok := value.([]any)
		if !ok {
			return false
		}
		fieldVal := rec[key]
		for _, item := range list {
			if fieldVal == stringify(item) {
				return true
			}
		}
		return false
	case "$regex":
		pattern, ok := value.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile("^(?:" + pattern + ")")
		if err != nil {
			return false
		}
		return re.MatchString(rec[key])
	default:
		// Unrecognised operators never match; an unknown clause cannot
		// be proven true.
		return false
	}
}

// parseFloat parses a record's string field as a number. An empty value
// parses as 0, matching spec.md's numeric-comparison rule.
func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		return parseFloat(n)
	default:
		return 0, false
	}
}

// stringify renders a value as a string: strings unchanged, nil as "",
// anything else with fmt's %v (so 13.0 becomes "13" and true "true"), so
// that scalar-condition comparisons follow the "stringify both sides"
// rule.
func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

// applySort orders records by the composite key described by spec, each
// field independently ascending or descending, stable across ties. This
// is the "correct per-field direction" resolution of the sort-direction
// open question in spec.md §9, rather than the source's reverse-if-any
// quirk.
func applySort(records []Record, s Sort) {
	if len(s) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, field := range s {
			a, b := records[i][field.Field], records[j][field.Field]
			cmp := compareValues(a, b)
			if cmp == 0 {
				continue
			}
			if field.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// compareValues compares two field values numerically when both parse as
// numbers, falling back to a lexical string compare otherwise.
func compareValues(a, b string) int {
	af, aok := parseFloat(a)
	bf, bok := parseFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// applySkipLimit drops the first skip records, then keeps at most limit
// of what remains. A nil limit keeps everything.
func applySkipLimit(records []Record, skip int, limit *int) []Record {
	if skip > 0 {
		if skip >= len(records) {
			return nil
		}
		records = records[skip:]
	}
	if limit != nil && *limit < len(records) {
		if *limit < 0 {
			return nil
		}
		records = records[:*limit]
	}
	return records
}
