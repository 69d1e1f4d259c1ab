// Version history (supplements spec.md's core scope; off by default via
// Config.KeepHistory). Every time Update or Delete retires a record's
// prior content, its encoded frame is compressed with the same codec
// enum the Index Store uses and appended to a side file,
// "<collection>.history" — grounded in folio's "append new, blank and
// retype old" retirement pattern from set.go/repair.go, generalised here
// to a single side-file per collection instead of folio's in-line
// retired-record markers.
//
// The side file isn't a segmentLog: its entries are compressed, so they
// can't be scanned with the plain frame reader segment.go uses for live
// records. It gets its own tiny append/read pair instead.
package fluxdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

func historyFileName(collection string) string {
	return collection + ".history"
}

// recordHistory compresses rec's current encoded frame and appends it to
// collection's history file. A no-op when history isn't enabled.
func (db *Database) recordHistory(collection string, rec Record) error {
	if !db.config.KeepHistory {
		return nil
	}
	frame, _, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	compressed, err := compressWith(db.config.IndexCompression, frame)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}

	f, err := db.root.OpenFile(historyFileName(collection), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	defer f.Close()

	var header [5]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(compressed)))
	header[4] = byte(db.config.IndexCompression)

	if _, err := f.Write(header[:]); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	if _, err := f.Write(compressed); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

// History returns every retired version of the record identified by id,
// newest first. Returns an error if Config.KeepHistory was not enabled
// when the database was opened.
func (db *Database) History(collection, id string) ([]Record, error) {
	if !db.config.KeepHistory {
		return nil, fmt.Errorf("fluxdb: history is disabled, open with Config.KeepHistory to enable it")
	}

	var out []Record
	err := db.withCollectionRead(collection, func(*segmentLog) error {
		versions, err := db.readHistory(collection, id)
		out = versions
		return err
	})
	return out, err
}

func (db *Database) readHistory(collection, id string) ([]Record, error) {
	f, err := db.root.OpenFile(historyFileName(collection), os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []Record
	var header [5]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				break
			}
			db.log.Warnw("history: truncated entry header, stopping scan", "collection", collection)
			break
		}
		length := binary.BigEndian.Uint32(header[:4])
		alg := compressionAlgorithmFromByte(header[4])

		compressed := make([]byte, length)
		if _, err := io.ReadFull(r, compressed); err != nil {
			db.log.Warnw("history: truncated entry body, stopping scan", "collection", collection)
			break
		}

		frame, err := decompressWith(alg, compressed)
		if err != nil {
			db.log.Warnw("history: skipping unreadable entry", "collection", collection, "error", err)
			continue
		}
		if len(frame) < 4 {
			continue
		}
		rec, ok := decodeFrameBody(frame[4:])
		if !ok {
			continue
		}
		if rec["_id"] == id {
			out = append(out, rec)
		}
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func compressionAlgorithmFromByte(b byte) CompressionAlgorithm {
	return CompressionAlgorithm(b)
}

// dropHistory removes collection's history file, if any.
func (db *Database) dropHistory(collection string) error {
	if _, err := db.root.Stat(historyFileName(collection)); err != nil {
		return nil
	}
	return db.root.Remove(historyFileName(collection))
}

// truncateHistory empties collection's history file in place.
func (db *Database) truncateHistory(collection string) error {
	f, err := db.root.OpenFile(historyFileName(collection), os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	return f.Close()
}
