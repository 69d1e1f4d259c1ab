// Segment log append/scan/rewrite and recovery-by-truncation tests.
package fluxdb

import (
	"os"
	"testing"

	"go.uber.org/zap"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Config{Logger: zap.NewNop().Sugar()}.withDefaults()
	if err != nil {
		t.Fatalf("withDefaults: %v", err)
	}
	return cfg
}

func openTestRoot(t *testing.T) *os.Root {
	t.Helper()
	dir := t.TempDir()
	root, err := os.OpenRoot(dir)
	if err != nil {
		t.Fatalf("OpenRoot: %v", err)
	}
	t.Cleanup(func() { root.Close() })
	return root
}

func mustEncode(t *testing.T, rec Record) []byte {
	t.Helper()
	frame, _, err := encodeRecord(rec)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	return frame
}

func TestSegmentLogAppendAndScan(t *testing.T) {
	root := openTestRoot(t)
	log := newSegmentLog(root, "widgets", testConfig(t))

	if _, err := log.create(); err != nil {
		t.Fatalf("create: %v", err)
	}

	frames := [][]byte{
		mustEncode(t, Record{"name": "one"}),
		mustEncode(t, Record{"name": "two"}),
	}
	if err := log.append(frames); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := log.scan(nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0]["name"] != "one" || records[1]["name"] != "two" {
		t.Errorf("unexpected scan order: %v", records)
	}
}

func TestSegmentLogScanStopsAtTruncatedTail(t *testing.T) {
	root := openTestRoot(t)
	log := newSegmentLog(root, "widgets", testConfig(t))
	if _, err := log.create(); err != nil {
		t.Fatalf("create: %v", err)
	}

	good := mustEncode(t, Record{"name": "complete"})
	bad := mustEncode(t, Record{"name": "cut-short"})
	bad = bad[:len(bad)-3] // simulate a crash mid-write of the second frame

	if err := log.append([][]byte{good, bad}); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := log.scan(nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 (truncated tail should be silently dropped)", len(records))
	}
	if records[0]["name"] != "complete" {
		t.Errorf("unexpected surviving record: %v", records[0])
	}
}

func TestSegmentLogRewrite(t *testing.T) {
	root := openTestRoot(t)
	log := newSegmentLog(root, "widgets", testConfig(t))
	if _, err := log.create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := log.append([][]byte{mustEncode(t, Record{"name": "old"})}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := log.rewrite([][]byte{mustEncode(t, Record{"name": "new"})}); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	records, err := log.scan(nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(records) != 1 || records[0]["name"] != "new" {
		t.Fatalf("rewrite did not replace contents: %v", records)
	}
}

func TestSegmentLogScanIDsNarrowsResult(t *testing.T) {
	root := openTestRoot(t)
	log := newSegmentLog(root, "widgets", testConfig(t))
	if _, err := log.create(); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, idA, _ := encodeRecordOrFail(t, Record{"name": "a"})
	_, idB, _ := encodeRecordOrFail(t, Record{"name": "b"})
	frameA, _, _ := encodeRecord(Record{"_id": idA, "name": "a"})
	frameB, _, _ := encodeRecord(Record{"_id": idB, "name": "b"})
	if err := log.append([][]byte{frameA, frameB}); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := log.scanIDs([]string{idB})
	if err != nil {
		t.Fatalf("scanIDs: %v", err)
	}
	if len(records) != 1 || records[0]["name"] != "b" {
		t.Fatalf("scanIDs returned %v, want just record b", records)
	}
}

func encodeRecordOrFail(t *testing.T, rec Record) ([]byte, string, error) {
	t.Helper()
	frame, id, err := encodeRecord(rec)
	if err != nil {
		t.Fatalf("encodeRecord: %v", err)
	}
	return frame, id, err
}

func TestSegmentLogTruncate(t *testing.T) {
	root := openTestRoot(t)
	log := newSegmentLog(root, "widgets", testConfig(t))
	if _, err := log.create(); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := log.append([][]byte{mustEncode(t, Record{"name": "one"})}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	records, err := log.scan(nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records after truncate, want 0", len(records))
	}
}
