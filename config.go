// Configuration (spec.md §6). Config is a flat struct, not functional
// options, following folio's Config in db.go: a caller fills in only the
// fields they care about and Open backfills the rest.
package fluxdb

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	units "github.com/docker/go-units"
	"go.uber.org/zap"
)

// Config controls the tunables of an open Database. The zero Config is
// valid; every field defaults per spec.md §6 when left unset.
type Config struct {
	// ReadBufferSize is the buffered-reader size used when scanning a
	// segment log. Accepts a byte count; 0 defaults to 64KiB.
	ReadBufferSize int

	// MaxRecordSize caps how large a single frame body may declare
	// itself before a scan gives up on the rest of the file as
	// corrupt. 0 defaults to 16MiB.
	MaxRecordSize int

	// BufferSize is the number of pending frames the Write Buffer holds
	// per collection before an automatic flush. 0 triggers the
	// available-memory-based default described in spec.md §6.
	BufferSize int

	// BufferSizeHuman, if set, overrides BufferSize with a
	// human-readable byte size such as "4MB" parsed with
	// github.com/docker/go-units. It is provided for configuration
	// sources that hand fluxdb a string (env vars, config files)
	// rather than a pre-parsed int.
	BufferSizeHuman string

	// IndexCompression selects the codec used to persist inverted
	// indexes and, when KeepHistory is set, retired record versions.
	// Defaults to CompressZstd.
	IndexCompression CompressionAlgorithm

	// KeepHistory enables retaining prior versions of a record across
	// Update and Delete, recoverable via History. Off by default.
	KeepHistory bool

	// LockShards is the number of stripes the per-collection lock
	// table is split across. 0 defaults to 16.
	LockShards int

	// Logger receives structured diagnostics (truncated frames,
	// discarded index files, unreadable history entries). Defaults to a
	// no-op logger.
	Logger *zap.SugaredLogger
}

const (
	defaultReadBufferSize = 64 * 1024
	defaultMaxRecordSize  = 16 * 1024 * 1024
	defaultLockShards     = 16

	minBufferSize = 100
	maxBufferSize = 10000

	// fallbackAvailableMemMB is used when /proc/meminfo can't be read,
	// e.g. on a non-Linux platform. 2GiB is a conservative middle
	// ground; 2048/1000 clamps BufferSize to its minimum of 100.
	fallbackAvailableMemMB = 2048
)

// withDefaults returns a copy of cfg with every unset field backfilled.
func (cfg Config) withDefaults() (Config, error) {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	if cfg.MaxRecordSize <= 0 {
		cfg.MaxRecordSize = defaultMaxRecordSize
	}
	if cfg.LockShards <= 0 {
		cfg.LockShards = defaultLockShards
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	if cfg.BufferSizeHuman != "" {
		n, err := units.RAMInBytes(cfg.BufferSizeHuman)
		if err != nil {
			return Config{}, fmt.Errorf("fluxdb: invalid BufferSizeHuman %q: %w", cfg.BufferSizeHuman, err)
		}
		cfg.BufferSize = int(n)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize()
	}

	return cfg, nil
}

// defaultBufferSize implements spec.md §6's formula:
// clamp(100, 10000, availableMemoryMB / 1000).
func defaultBufferSize() int {
	memMB := availableMemoryMB()
	size := memMB / 1000
	if size < minBufferSize {
		return minBufferSize
	}
	if size > maxBufferSize {
		return maxBufferSize
	}
	return size
}

// availableMemoryMB reads MemAvailable from /proc/meminfo. No example
// repo in the reference corpus wires a memory-introspection library
// (none is a natural fit for a single scalar read), so this one reads
// the kernel interface directly with a hard-coded fallback for
// platforms without it.
func availableMemoryMB() int {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return fallbackAvailableMemMB
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return fallbackAvailableMemMB
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			return fallbackAvailableMemMB
		}
		return kb / 1024
	}
	return fallbackAvailableMemMB
}
