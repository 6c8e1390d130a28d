package dmtable

import (
	"testing"
)

func mustParse(t *testing.T, spec string, totalBlocks uint64) []BlockRange {
	t.Helper()
	ranges, err := ParseRanges(spec, totalBlocks)
	if err != nil {
		t.Fatalf("ParseRanges(%q) failed: %v", spec, err)
	}
	return ranges
}

func TestCompileEmptySpec(t *testing.T) {
	table := Compile(nil, 2048)

	if err := table.Validate(); err != nil {
		t.Fatalf("table invalid: %v", err)
	}
	if len(table.Segments) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(table.Segments), table.Segments)
	}
	want := Segment{Start: 0, Length: 2048, Fault: false, SourceOffset: 0}
	if table.Segments[0] != want {
		t.Errorf("got %+v, want %+v", table.Segments[0], want)
	}
}

func TestCompileSingleBlockFaults(t *testing.T) {
	const totalBlocks = 2048
	table := Compile(mustParse(t, "500,1000", totalBlocks), totalBlocks)

	if err := table.Validate(); err != nil {
		t.Fatalf("table invalid: %v", err)
	}

	want := []Segment{
		{Start: 0, Length: 500, SourceOffset: 0},
		{Start: 500, Length: 1, Fault: true},
		{Start: 501, Length: 499, SourceOffset: 501},
		{Start: 1000, Length: 1, Fault: true},
		{Start: 1001, Length: totalBlocks - 1001, SourceOffset: 1001},
	}
	if len(table.Segments) != len(want) {
		t.Fatalf("got %d segments, want %d: %+v", len(table.Segments), len(want), table.Segments)
	}
	for i := range want {
		if table.Segments[i] != want[i] {
			t.Errorf("segment %d: got %+v, want %+v", i, table.Segments[i], want[i])
		}
	}
}

func TestCompileRangeFault(t *testing.T) {
	const totalBlocks = 2048
	table := Compile(mustParse(t, "500-510", totalBlocks), totalBlocks)

	if err := table.Validate(); err != nil {
		t.Fatalf("table invalid: %v", err)
	}
	if len(table.Segments) != 3 {
		t.Fatalf("got %d segments, want 3: %+v", len(table.Segments), table.Segments)
	}
	mid := table.Segments[1]
	if !mid.Fault || mid.Start != 500 || mid.Length != 11 {
		t.Errorf("middle segment is %+v, want Fault{500, 11}", mid)
	}
}

func TestCompileLeadingAndTrailingFaults(t *testing.T) {
	const totalBlocks = 100
	table := Compile(mustParse(t, "0-9,90-99", totalBlocks), totalBlocks)

	if err := table.Validate(); err != nil {
		t.Fatalf("table invalid: %v", err)
	}
	if len(table.Segments) != 3 {
		t.Fatalf("got %d segments, want 3: %+v", len(table.Segments), table.Segments)
	}
	if !table.Segments[0].Fault || table.Segments[0].Start != 0 {
		t.Errorf("first segment %+v, want fault at block 0", table.Segments[0])
	}
	if !table.Segments[2].Fault || table.Segments[2].Start+table.Segments[2].Length != totalBlocks {
		t.Errorf("last segment %+v, want fault ending at block %d", table.Segments[2], totalBlocks-1)
	}
}

func TestCompileMergesOverlappingAndAdjacentRanges(t *testing.T) {
	const totalBlocks = 1000
	tests := []struct {
		name string
		spec string
	}{
		{"overlapping", "100-200,150-300"},
		{"contained", "100-300,150-200"},
		{"adjacent", "100-200,201-300"},
		{"duplicate", "100-300,100-300"},
		{"unsorted", "150-300,100-200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Compile(mustParse(t, tt.spec, totalBlocks), totalBlocks)
			if err := table.Validate(); err != nil {
				t.Fatalf("table invalid: %v", err)
			}
			want := []Segment{
				{Start: 0, Length: 100, SourceOffset: 0},
				{Start: 100, Length: 201, Fault: true},
				{Start: 301, Length: totalBlocks - 301, SourceOffset: 301},
			}
			if len(table.Segments) != len(want) {
				t.Fatalf("got %d segments, want %d: %+v", len(table.Segments), len(want), table.Segments)
			}
			for i := range want {
				if table.Segments[i] != want[i] {
					t.Errorf("segment %d: got %+v, want %+v", i, table.Segments[i], want[i])
				}
			}
		})
	}
}

// TestCompileCoverage checks that compiled tables always partition the full
// address space, for a spread of specifications.
func TestCompileCoverage(t *testing.T) {
	specs := []string{
		"",
		"0",
		"1023",
		"0-1023",
		"1,3,5,7,9",
		"100-200,300-400,500-600",
		"512-600,0-100,99-300",
		"500,1000,42-48,42-48",
	}

	for _, spec := range specs {
		const totalBlocks = 1024
		table := Compile(mustParse(t, spec, totalBlocks), totalBlocks)

		if err := table.Validate(); err != nil {
			t.Errorf("spec %q: table invalid: %v", spec, err)
		}
		var sum uint64
		for _, s := range table.Segments {
			sum += s.Length
		}
		if sum != totalBlocks {
			t.Errorf("spec %q: segment lengths sum to %d, want %d", spec, sum, totalBlocks)
		}
	}
}

func TestFormat(t *testing.T) {
	const totalBlocks = 2048
	table := Compile(mustParse(t, "500-510", totalBlocks), totalBlocks)

	got := table.Format("/dev/loop3")
	want := "0 500 linear /dev/loop3 0\n" +
		"500 11 error\n" +
		"511 1537 linear /dev/loop3 511\n"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormatWholeDevicePassThrough(t *testing.T) {
	table := Compile(nil, 204800)

	got := table.Format("/dev/loop0")
	want := "0 204800 linear /dev/loop0 0\n"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestValidateRejectsBrokenTables(t *testing.T) {
	tests := []struct {
		name  string
		table Table
	}{
		{
			name:  "gap between segments",
			table: Table{TotalBlocks: 20, Segments: []Segment{{Start: 0, Length: 5, SourceOffset: 0}, {Start: 10, Length: 10, SourceOffset: 10}}},
		},
		{
			name:  "zero length segment",
			table: Table{TotalBlocks: 10, Segments: []Segment{{Start: 0, Length: 0}, {Start: 0, Length: 10, SourceOffset: 0}}},
		},
		{
			name:  "short of total blocks",
			table: Table{TotalBlocks: 10, Segments: []Segment{{Start: 0, Length: 5, SourceOffset: 0}}},
		},
		{
			name:  "non identity pass-through",
			table: Table{TotalBlocks: 10, Segments: []Segment{{Start: 0, Length: 10, SourceOffset: 5}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.table.Validate(); err == nil {
				t.Errorf("Validate() accepted broken table %+v", tt.table)
			}
		})
	}
}
