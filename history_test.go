// Version history tests: retired versions recorded on Update/Delete,
// readable newest-first, and discardable via DropCollection or Purge.
package fluxdb

import "testing"

func openTestDBWithHistory(t *testing.T) *Database {
	t.Helper()
	db, err := Open(t.TempDir(), Config{KeepHistory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestHistoryDisabledByDefault(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateCollection("items"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	id, err := db.Insert("items", Record{"name": "a"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := db.History("items", id); err == nil {
		t.Fatal("History should error when KeepHistory is not enabled")
	}
}

func TestHistoryRecordsPriorVersionsNewestFirst(t *testing.T) {
	db := openTestDBWithHistory(t)
	if err := db.CreateCollection("items"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	id, err := db.Insert("items", Record{"name": "v1"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := db.Update("items", id, Patch{"name": "v2"}, false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := db.Update("items", id, Patch{"name": "v3"}, false); err != nil {
		t.Fatalf("Update: %v", err)
	}

	versions, err := db.History("items", id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("got %d versions, want 2 (v1, v2 retired by the two updates)", len(versions))
	}
	if versions[0]["name"] != "v2" || versions[1]["name"] != "v1" {
		t.Fatalf("unexpected order: %v", versions)
	}
}

func TestHistoryRecordsDeletedVersion(t *testing.T) {
	db := openTestDBWithHistory(t)
	if err := db.CreateCollection("items"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	id, err := db.Insert("items", Record{"name": "gone"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := db.Delete("items", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	versions, err := db.History("items", id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(versions) != 1 || versions[0]["name"] != "gone" {
		t.Fatalf("unexpected history after delete: %v", versions)
	}
}

func TestDropCollectionDropsHistory(t *testing.T) {
	db := openTestDBWithHistory(t)
	if err := db.CreateCollection("items"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	id, err := db.Insert("items", Record{"name": "a"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := db.Update("items", id, Patch{"name": "b"}, false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := db.DropCollection("items"); err != nil {
		t.Fatalf("DropCollection: %v", err)
	}
	if err := db.CreateCollection("items"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	versions, err := db.History("items", id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("history should have been dropped with the collection, got %v", versions)
	}
}
