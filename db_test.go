// Database lifecycle tests: collection management and the file byte-copy
// export/import contract.
package fluxdb

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExportImportCollectionRoundTrips(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateCollection("items", "sku"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if _, err := db.InsertMany("items", []Record{{"sku": "A"}, {"sku": "B"}}); err != nil {
		t.Fatalf("InsertMany: %v", err)
	}

	exportPath := filepath.Join(t.TempDir(), "items.fdb")
	ok, err := db.ExportCollection("items", exportPath)
	if err != nil {
		t.Fatalf("ExportCollection: %v", err)
	}
	if !ok {
		t.Fatal("ExportCollection should report true for an existing collection")
	}
	if _, err := os.Stat(exportPath); err != nil {
		t.Fatalf("exported file missing: %v", err)
	}

	if err := db.CreateCollection("restored", "sku"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	ok, err = db.ImportCollection("restored", exportPath)
	if err != nil {
		t.Fatalf("ImportCollection: %v", err)
	}
	if !ok {
		t.Fatal("ImportCollection should report true for an existing input file")
	}

	records, err := db.Find("restored", nil, FindOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records after import, want 2", len(records))
	}

	found, err := db.Find("restored", Query{"sku": "A"}, FindOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("reindexed query returned %d records, want 1 (import should reindex)", len(found))
	}
}

func TestExportCollectionMissingReturnsFalse(t *testing.T) {
	db := openTestDB(t)
	ok, err := db.ExportCollection("missing", filepath.Join(t.TempDir(), "out.fdb"))
	if err != nil {
		t.Fatalf("ExportCollection: %v", err)
	}
	if ok {
		t.Fatal("ExportCollection should report false for a missing collection")
	}
}

func TestImportCollectionMissingInputReturnsFalse(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateCollection("items"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	ok, err := db.ImportCollection("items", filepath.Join(t.TempDir(), "does-not-exist.fdb"))
	if err != nil {
		t.Fatalf("ImportCollection: %v", err)
	}
	if ok {
		t.Fatal("ImportCollection should report false for a missing input file")
	}
}

func TestCountOnMissingCollectionReturnsZero(t *testing.T) {
	db := openTestDB(t)
	count, err := db.Count("nonexistent", nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 for a missing collection", count)
	}
}

func TestAggregateOnMissingCollectionReturnsEmpty(t *testing.T) {
	db := openTestDB(t)
	results, err := db.Aggregate("nonexistent", []Stage{
		{"$group": map[string]any{"_id": "dept"}},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results, want 0 for a missing collection", len(results))
	}
}
