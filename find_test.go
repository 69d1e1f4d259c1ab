// Find/FindOne tests, directly exercising the insert-and-query, indexed
// equality, and numeric-range scenarios.
package fluxdb

import "testing"

func TestFindBasicQuery(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateCollection("users"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	id, err := db.Insert("users", Record{"name": "ada", "age": "36"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	records, err := db.Find("users", Query{"name": "ada"}, FindOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0]["_id"] != id || records[0]["age"] != "36" {
		t.Fatalf("unexpected record: %v", records[0])
	}
}

func TestFindIndexedEquality(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateCollection("items", "sku"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	idA, err := db.Insert("items", Record{"sku": "A"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	idB, err := db.Insert("items", Record{"sku": "B"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	records, err := db.Find("items", Query{"sku": "A"}, FindOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(records) != 1 || records[0]["_id"] != idA {
		t.Fatalf("equality query returned %v, want just the A record", records)
	}

	records, err = db.Find("items", Query{"sku": map[string]any{"$in": []any{"A", "B"}}}, FindOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("$in query returned %d records, want 2", len(records))
	}
	seen := map[string]bool{}
	for _, rec := range records {
		seen[rec["_id"]] = true
	}
	if !seen[idA] || !seen[idB] {
		t.Fatalf("$in query missing expected records: %v", records)
	}
}

func TestFindNumericRange(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateCollection("products"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	for _, price := range []string{"5", "15", "25"} {
		if _, err := db.Insert("products", Record{"price": price}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	records, err := db.Find("products", Query{"price": map[string]any{"$gt": 10}}, FindOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, rec := range records {
		if rec["price"] == "5" {
			t.Fatalf("price 5 should not match $gt 10: %v", records)
		}
	}
}

func TestFindSortSkipLimit(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateCollection("ranks"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	for _, n := range []string{"3", "1", "2"} {
		if _, err := db.Insert("ranks", Record{"n": n}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	limit := 2
	records, err := db.Find("ranks", nil, FindOptions{
		Sort:  Sort{{Field: "n", Descending: false}},
		Skip:  1,
		Limit: &limit,
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0]["n"] != "2" || records[1]["n"] != "3" {
		t.Fatalf("unexpected sort/skip/limit result: %v", records)
	}
}

func TestFindOneReturnsFalseWhenNoMatch(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateCollection("users"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	_, ok, err := db.FindOne("users", Query{"name": "nobody"}, nil)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if ok {
		t.Fatal("FindOne should report false when nothing matches")
	}
}
