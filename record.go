// Record framing: the on-disk encoding of a single document.
//
// Every record is a flat, string-keyed, string-valued map that always
// carries an "_id" entry. A record is framed as:
//
//	[ frame_body_length : u32 ]  length of everything that follows
//	[ record_id_blob    : 36B ]  _id, UTF-8, NUL-padded to 36 bytes
//	[ field_count       : u32 ]
//	  repeated field_count times:
//	     [ key_length   : u32 ][ key_bytes   ]
//	     [ value_length : u32 ][ value_bytes ]
//
// The id blob duplicates whatever "_id" field is also present in the
// field list — this lets a reader recover just the id with a fixed-offset
// read, without parsing the field list, the same trick folio's record.go
// plays with its fixed "{"idx":N,"_id":"..." prefix.
package fluxdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Record is a flat, string-keyed mapping. Every Record read back from the
// store carries a non-empty "_id" entry.
type Record map[string]string

// idBlobSize is the fixed width of the record id slot in a frame.
const idBlobSize = 36

// minFrameBody is the smallest possible body: id blob + a zero field count.
const minFrameBody = idBlobSize + 4

// Clone returns a shallow copy of the record, safe to mutate without
// affecting the original.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// encodeRecord assigns an id if one isn't already present (a fresh UUIDv4),
// then serialises the record into a complete frame ready to append to a
// segment log. It returns the id actually used.
func encodeRecord(rec Record) (frame []byte, id string, err error) {
	id = rec["_id"]
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > idBlobSize {
		return nil, "", fmt.Errorf("%w: _id %q exceeds %d bytes", ErrRecordTooLarge, id, idBlobSize)
	}

	withID := rec.Clone()
	withID["_id"] = id

	keys := make([]string, 0, len(withID))
	for k := range withID {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var body bytes.Buffer
	idBlob := make([]byte, idBlobSize)
	copy(idBlob, id)
	body.Write(idBlob)

	var fieldCount [4]byte
	binary.BigEndian.PutUint32(fieldCount[:], uint32(len(keys)))
	body.Write(fieldCount[:])

	for _, k := range keys {
		if !utf8.ValidString(k) {
			return nil, "", fmt.Errorf("%w: key %q is not valid UTF-8", ErrRecordTooLarge, k)
		}
		v := withID[k]
		if err := writeLengthPrefixed(&body, []byte(k)); err != nil {
			return nil, "", err
		}
		if err := writeLengthPrefixed(&body, []byte(v)); err != nil {
			return nil, "", err
		}
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(body.Len()))

	frame = make([]byte, 0, 4+body.Len())
	frame = append(frame, lenPrefix[:]...)
	frame = append(frame, body.Bytes()...)
	return frame, id, nil
}

func writeLengthPrefixed(buf *bytes.Buffer, b []byte) error {
	if uint64(len(b)) > 1<<32-1 {
		return fmt.Errorf("%w: field too large", ErrRecordTooLarge)
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(b)))
	buf.Write(length[:])
	buf.Write(b)
	return nil
}

// decodeFrameBody parses a frame body (everything after the outer
// frame_body_length prefix has already been read and handed in as body).
// It reports ok=false — never an error — on any structural mismatch so
// that callers can silently skip a corrupt or truncated frame per
// spec.md's recovery-by-truncation contract.
func decodeFrameBody(body []byte) (rec Record, ok bool) {
	if len(body) < minFrameBody {
		return nil, false
	}

	idRaw := bytes.TrimRight(body[:idBlobSize], "\x00")
	offset := idBlobSize

	fieldCount := binary.BigEndian.Uint32(body[offset : offset+4])
	offset += 4

	rec = make(Record, fieldCount+1)
	for i := uint32(0); i < fieldCount; i++ {
		key, next, ok := readLengthPrefixed(body, offset)
		if !ok {
			return nil, false
		}
		offset = next

		value, next, ok := readLengthPrefixed(body, offset)
		if !ok {
			return nil, false
		}
		offset = next

		if !utf8.Valid(key) {
			return nil, false
		}
		rec[string(key)] = string(value)
	}

	if offset != len(body) {
		return nil, false
	}
	if _, present := rec["_id"]; !present {
		rec["_id"] = string(idRaw)
	}
	return rec, true
}

func readLengthPrefixed(body []byte, offset int) (value []byte, next int, ok bool) {
	if offset+4 > len(body) {
		return nil, 0, false
	}
	length := binary.BigEndian.Uint32(body[offset : offset+4])
	offset += 4
	end := offset + int(length)
	if length > uint32(len(body)) || end < offset || end > len(body) {
		return nil, 0, false
	}
	return body[offset:end], end, true
}
