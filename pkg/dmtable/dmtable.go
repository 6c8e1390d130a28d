// Package dmtable compiles human-readable block-range specifications into
// device-mapper tables. A compiled table partitions a device's full address
// space into pass-through segments (linear targets mapping 1:1 onto the
// underlying device) and fault segments (error targets that fail all I/O).
//
// The package is pure: no I/O, no syscalls. Loading a table into the kernel
// is the job of pkg/blockdev.
package dmtable

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BlockSize is the fixed addressing unit of mapping tables, in bytes.
// Device-mapper calls this a sector.
const BlockSize = 512

// ErrInvalidBlockRange marks a fault specification that is malformed or
// addresses blocks outside the device.
var ErrInvalidBlockRange = errors.New("invalid block range")

// BlockRange is an inclusive range of blocks, [Start, End].
type BlockRange struct {
	Start uint64
	End   uint64
}

// Blocks returns the number of blocks the range covers.
func (r BlockRange) Blocks() uint64 {
	return r.End - r.Start + 1
}

// TotalBlocks derives the block count of a device from its byte size.
// A trailing partial block is not addressable and is dropped.
func TotalBlocks(sizeBytes uint64) uint64 {
	return sizeBytes / BlockSize
}

// ParseRanges parses a comma-separated fault specification into block
// ranges. Each token is either a single block number ("500") or an
// inclusive range ("500-510"). An empty specification yields no ranges.
//
// A token fails with ErrInvalidBlockRange when it is not a well-formed
// non-negative integer (or pair), when end < start, or when end addresses
// a block at or beyond totalBlocks. Overlapping or unsorted ranges are
// accepted; Compile merges them.
func ParseRanges(spec string, totalBlocks uint64) ([]BlockRange, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}

	if totalBlocks == 0 {
		return nil, fmt.Errorf("%w: device has no addressable blocks", ErrInvalidBlockRange)
	}

	var ranges []BlockRange
	for _, token := range strings.Split(spec, ",") {
		r, err := parseToken(strings.TrimSpace(token))
		if err != nil {
			return nil, err
		}
		if r.End >= totalBlocks {
			return nil, fmt.Errorf("%w: %q exceeds device end block %d", ErrInvalidBlockRange, token, totalBlocks-1)
		}
		ranges = append(ranges, r)
	}

	return ranges, nil
}

func parseToken(token string) (BlockRange, error) {
	start, end, isRange := strings.Cut(token, "-")

	first, err := strconv.ParseUint(start, 10, 64)
	if err != nil {
		return BlockRange{}, fmt.Errorf("%w: %q is not a block number", ErrInvalidBlockRange, token)
	}
	if !isRange {
		return BlockRange{Start: first, End: first}, nil
	}

	last, err := strconv.ParseUint(end, 10, 64)
	if err != nil {
		return BlockRange{}, fmt.Errorf("%w: %q is not a block range", ErrInvalidBlockRange, token)
	}
	if last < first {
		return BlockRange{}, fmt.Errorf("%w: %q ends before it starts", ErrInvalidBlockRange, token)
	}

	return BlockRange{Start: first, End: last}, nil
}

// mergeRanges sorts ranges by ascending start block and coalesces
// overlapping and adjacent ranges into single fault runs. The result is
// strictly ascending with at least one pass-through block between entries.
func mergeRanges(ranges []BlockRange) []BlockRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]BlockRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := sorted[:1]
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}

	return merged
}
