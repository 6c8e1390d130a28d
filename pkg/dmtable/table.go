package dmtable

import (
	"fmt"
	"strings"
)

// Segment is one contiguous run of blocks in a mapping table. A fault
// segment fails all I/O; a pass-through segment maps identically onto the
// underlying device, so SourceOffset always equals Start.
type Segment struct {
	Start        uint64 // first block of the segment
	Length       uint64 // blocks covered, always > 0
	Fault        bool
	SourceOffset uint64 // offset on the underlying device, pass-through only
}

// Table is a compiled mapping table covering a device's full address space
// with contiguous, non-overlapping segments.
type Table struct {
	TotalBlocks uint64
	Segments    []Segment
}

// Compile turns fault ranges into a gapless mapping table over totalBlocks.
// Overlapping and adjacent input ranges are merged first, so the result is
// well-formed for any set of ranges that passed ParseRanges. An empty
// range set compiles to a single pass-through segment spanning the device.
func Compile(ranges []BlockRange, totalBlocks uint64) Table {
	var segments []Segment
	var cursor uint64

	for _, r := range mergeRanges(ranges) {
		if cursor < r.Start {
			segments = append(segments, Segment{
				Start:        cursor,
				Length:       r.Start - cursor,
				SourceOffset: cursor,
			})
		}
		segments = append(segments, Segment{
			Start:  r.Start,
			Length: r.Blocks(),
			Fault:  true,
		})
		cursor = r.End + 1
	}

	if cursor < totalBlocks {
		segments = append(segments, Segment{
			Start:        cursor,
			Length:       totalBlocks - cursor,
			SourceOffset: cursor,
		})
	}

	return Table{TotalBlocks: totalBlocks, Segments: segments}
}

// Validate checks the table invariants: every segment has a positive
// length, segments are contiguous from block 0, pass-through segments map
// identically, and the lengths sum to TotalBlocks.
func (t Table) Validate() error {
	var cursor uint64
	for i, s := range t.Segments {
		if s.Length == 0 {
			return fmt.Errorf("segment %d has zero length", i)
		}
		if s.Start != cursor {
			return fmt.Errorf("segment %d starts at block %d, want %d", i, s.Start, cursor)
		}
		if !s.Fault && s.SourceOffset != s.Start {
			return fmt.Errorf("segment %d maps block %d to source %d, pass-through must be identity", i, s.Start, s.SourceOffset)
		}
		cursor = s.Start + s.Length
	}
	if cursor != t.TotalBlocks {
		return fmt.Errorf("segments cover %d blocks, device has %d", cursor, t.TotalBlocks)
	}
	return nil
}

// Format serializes the table into the dmsetup wire format, one target
// line per segment:
//
//	<startSector> <lengthSectors> linear <devicePath> <sourceStartSector>
//	<startSector> <lengthSectors> error
func (t Table) Format(devicePath string) string {
	var b strings.Builder
	for _, s := range t.Segments {
		if s.Fault {
			fmt.Fprintf(&b, "%d %d error\n", s.Start, s.Length)
		} else {
			fmt.Fprintf(&b, "%d %d linear %s %d\n", s.Start, s.Length, devicePath, s.SourceOffset)
		}
	}
	return b.String()
}
