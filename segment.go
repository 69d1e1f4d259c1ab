// Segment Log: the per-collection append-only file holding a sequence of
// framed records.
//
// Frames are read sequentially from offset 0. A length prefix that would
// read past end-of-file, or a body shorter than its declared length,
// means the tail was cut short by a crash mid-append — scanning stops
// there without error (recovery-by-truncation, spec.md §4.1/§4.2). A
// frame whose body parses but is structurally invalid is logged and
// skipped; scanning continues, mirroring folio's scan.go treatment of
// unparsable lines.
package fluxdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// segmentLog is the append-only log backing a single collection.
type segmentLog struct {
	root           *os.Root
	name           string // e.g. "users.fdb"
	readBufferSize int
	maxRecordSize  int
	log            *zap.SugaredLogger
}

func newSegmentLog(root *os.Root, collection string, cfg Config) *segmentLog {
	return &segmentLog{
		root:           root,
		name:           collection + ".fdb",
		readBufferSize: cfg.ReadBufferSize,
		maxRecordSize:  cfg.MaxRecordSize,
		log:            cfg.Logger,
	}
}

// exists reports whether the backing file has been created.
func (s *segmentLog) exists() bool {
	_, err := s.root.Stat(s.name)
	return err == nil
}

// create makes an empty log file if one doesn't already exist. Reports
// whether it created a new file.
func (s *segmentLog) create() (bool, error) {
	if s.exists() {
		return false, nil
	}
	f, err := s.root.Create(s.name)
	if err != nil {
		return false, fmt.Errorf("create collection: %w", err)
	}
	return true, f.Close()
}

// drop removes the backing file.
func (s *segmentLog) drop() error {
	if !s.exists() {
		return nil
	}
	return s.root.Remove(s.name)
}

// truncate empties the backing file in place, keeping it present.
func (s *segmentLog) truncate() error {
	f, err := s.root.OpenFile(s.name, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	return f.Close()
}

// append writes every frame to the end of the file as a single syscall
// where possible. Frames must already be length-prefixed (see
// encodeRecord).
func (s *segmentLog) append(frames [][]byte) error {
	if len(frames) == 0 {
		return nil
	}
	f, err := s.root.OpenFile(s.name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}
	defer f.Close()

	total := 0
	for _, fr := range frames {
		total += len(fr)
	}
	batch := make([]byte, 0, total)
	for _, fr := range frames {
		batch = append(batch, fr...)
	}

	if _, err := f.Write(batch); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	return nil
}

// rewrite truncates the file and writes frames in place of its previous
// contents, via a temp file renamed over the original so a crash mid-write
// leaves either the old or the new contents, never a half-written file.
func (s *segmentLog) rewrite(frames [][]byte) error {
	tmpName := s.name + ".tmp"
	f, err := s.root.Create(tmpName)
	if err != nil {
		return fmt.Errorf("rewrite: %w", err)
	}

	for _, fr := range frames {
		if _, err := f.Write(fr); err != nil {
			f.Close()
			return fmt.Errorf("rewrite: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("rewrite: %w", err)
	}
	if err := s.root.Rename(tmpName, s.name); err != nil {
		return fmt.Errorf("rewrite: %w", err)
	}
	return nil
}

// scan walks every frame in the file and returns every decoded record,
// or with a non-nil wanted set only those whose _id is in it. Called with
// nil it is the full-scan counterpart to scanIDs, kept as a separate entry
// point the way the original's RecordLoader keeps load_all_records and
// load_records_by_ids distinct rather than folding both into one
// predicate closure.
func (s *segmentLog) scan(wanted map[string]struct{}) ([]Record, error) {
	var out []Record
	err := s.scanFunc(wanted, func(rec Record, _ int64) bool {
		out = append(out, rec)
		return true
	})
	return out, err
}

// scanIDs returns only the records whose _id is in ids, skipping every
// other frame after a cheap peek at its id blob rather than decoding the
// full field list — the narrower, index-assisted counterpart to scan.
func (s *segmentLog) scanIDs(ids []string) ([]Record, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	return s.scan(wanted)
}

// scanFunc is the shared scan engine. yield is called with each decoded
// record and its frame's starting offset; returning false stops the scan
// early.
func (s *segmentLog) scanFunc(wanted map[string]struct{}, yield func(Record, int64) bool) error {
	f, err := s.root.OpenFile(s.name, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrCollectionNotFound
		}
		return fmt.Errorf("scan: %w", err)
	}
	defer f.Close()

	bufSize := s.readBufferSize
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	r := bufio.NewReaderSize(f, bufSize)

	var offset int64
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err != io.EOF {
				s.log.Warnw("segment log: truncated frame length, stopping scan", "collection", s.name, "offset", offset)
			}
			return nil
		}
		bodyLen := binary.BigEndian.Uint32(lenBuf[:])
		maxSize := s.maxRecordSize
		if maxSize <= 0 {
			maxSize = 16 * 1024 * 1024
		}
		if bodyLen > uint32(maxSize) {
			s.log.Warnw("segment log: frame exceeds max record size, stopping scan", "collection", s.name, "offset", offset, "declared_len", bodyLen)
			return nil
		}

		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			s.log.Warnw("segment log: truncated frame body, stopping scan", "collection", s.name, "offset", offset)
			return nil
		}

		frameOffset := offset
		offset += 4 + int64(bodyLen)

		if wanted != nil {
			id, ok := peekFrameID(body)
			if !ok {
				s.log.Warnw("segment log: skipping corrupt frame", "collection", s.name, "offset", frameOffset)
				continue
			}
			if _, want := wanted[id]; !want {
				continue
			}
		}

		rec, ok := decodeFrameBody(body)
		if !ok {
			s.log.Warnw("segment log: skipping corrupt frame", "collection", s.name, "offset", frameOffset)
			continue
		}
		if !yield(rec, frameOffset) {
			return nil
		}
	}
}

// snapshotBytes reads the entire backing file verbatim, for the
// Transaction Journal to capture a restore point before a mutation.
// A missing file returns existed=false rather than an error.
func (s *segmentLog) snapshotBytes() (data []byte, existed bool, err error) {
	f, err := s.root.OpenFile(s.name, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()

	data, err = io.ReadAll(f)
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: %w", err)
	}
	return data, true, nil
}

// restoreBytes overwrites the backing file with data via the same
// temp-file-and-rename swap rewrite uses, or removes it entirely when
// existed is false (the collection didn't exist when the snapshot was
// taken).
func (s *segmentLog) restoreBytes(data []byte, existed bool) error {
	if !existed {
		return s.drop()
	}
	tmpName := s.name + ".tmp"
	f, err := s.root.Create(tmpName)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("restore: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return s.root.Rename(tmpName, s.name)
}

// peekFrameID reads just the id blob of a frame body, without parsing
// its field list — used to cheaply test membership in a candidate id set
// before paying for a full decode.
func peekFrameID(body []byte) (string, bool) {
	if len(body) < idBlobSize {
		return "", false
	}
	return string(bytes.TrimRight(body[:idBlobSize], "\x00")), true
}
