// Compression codecs for on-disk side-data: the Index Store's persisted
// snapshot (§4.3) and, when Config.KeepHistory is enabled, retired record
// versions. This generalises folio's hash.go selectable-algorithm enum
// (AlgXXHash3 / AlgFNV1a / AlgBlake2b) to a selectable compression
// algorithm, chosen once via Config.IndexCompression and stamped into
// every file it writes so a later Open always knows how to read it back.
package fluxdb

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// CompressionAlgorithm selects the codec used for Index Store persistence
// and (when enabled) history snapshots.
type CompressionAlgorithm byte

const (
	// CompressZstd is the default: fast with a good ratio, same codec
	// folio uses for its history snapshots.
	CompressZstd CompressionAlgorithm = iota
	// CompressLZ4 favours encode/decode speed over ratio.
	CompressLZ4
	// CompressXZ favours ratio over speed — best for archival-heavy
	// workloads with infrequent index rebuilds.
	CompressXZ
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// compressWith encodes data with the given algorithm. The returned slice
// is self-contained; compressWith never needs external framing beyond the
// one leading algorithm byte callers are expected to store alongside it.
func compressWith(alg CompressionAlgorithm, data []byte) ([]byte, error) {
	switch alg {
	case CompressZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case CompressLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	case CompressXZ:
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("xz compress: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("xz compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("xz compress: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("fluxdb: unknown compression algorithm %d", alg)
	}
}

// decompressWith is the inverse of compressWith.
func decompressWith(alg CompressionAlgorithm, data []byte) ([]byte, error) {
	switch alg {
	case CompressZstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case CompressLZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out, nil
	case CompressXZ:
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("xz decompress: %w", err)
		}
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("xz decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("fluxdb: unknown compression algorithm %d", alg)
	}
}
