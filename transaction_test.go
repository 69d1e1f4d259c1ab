// Transaction Journal tests: commit keeps changes, rollback undoes them.
package fluxdb

import "testing"

// TestTransactionRollbackUndoesInserts exercises the S5 scenario: insert
// 3 records inside an active transaction (visible immediately to count
// on the same engine), then roll back and see count return to 0.
func TestTransactionRollbackUndoesInserts(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateCollection("orders"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	if err := db.BeginTransaction(); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := db.Insert("orders", Record{"n": "x"}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	count, err := db.Count("orders", nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count inside transaction = %d, want 3", count)
	}

	if err := db.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	count, err = db.Count("orders", nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count after rollback = %d, want 0", count)
	}
}

func TestTransactionCommitKeepsChanges(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateCollection("orders"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	if err := db.BeginTransaction(); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if _, err := db.Insert("orders", Record{"n": "x"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := db.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	count, err := db.Count("orders", nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count after commit = %d, want 1", count)
	}
}

func TestTransactionRollbackRestoresUpdatedRecord(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateCollection("items"); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	id, err := db.Insert("items", Record{"stock": "10"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := db.BeginTransaction(); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if _, err := db.Update("items", id, Patch{"$inc": map[string]any{"stock": 5}}, false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := db.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	rec, ok, err := db.FindOne("items", Query{"_id": id}, nil)
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if !ok {
		t.Fatal("record should still exist after rollback")
	}
	if rec["stock"] != "10" {
		t.Fatalf("stock = %q after rollback, want %q", rec["stock"], "10")
	}
}

func TestDoubleBeginTransactionFails(t *testing.T) {
	db := openTestDB(t)
	if err := db.BeginTransaction(); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if err := db.BeginTransaction(); err != ErrTransactionActive {
		t.Fatalf("second BeginTransaction error = %v, want ErrTransactionActive", err)
	}
}

func TestCommitWithoutTransactionFails(t *testing.T) {
	db := openTestDB(t)
	if err := db.Commit(); err != ErrNoTransaction {
		t.Fatalf("Commit error = %v, want ErrNoTransaction", err)
	}
}
