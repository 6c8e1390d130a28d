package dmtable

import (
	"errors"
	"strings"
	"testing"
)

func TestParseRanges(t *testing.T) {
	tests := []struct {
		name        string
		spec        string
		totalBlocks uint64
		want        []BlockRange
	}{
		{
			name:        "empty spec",
			spec:        "",
			totalBlocks: 100,
			want:        nil,
		},
		{
			name:        "single block",
			spec:        "42",
			totalBlocks: 100,
			want:        []BlockRange{{Start: 42, End: 42}},
		},
		{
			name:        "range",
			spec:        "10-20",
			totalBlocks: 100,
			want:        []BlockRange{{Start: 10, End: 20}},
		},
		{
			name:        "mixed list with spaces",
			spec:        "5, 10-20 ,99",
			totalBlocks: 100,
			want:        []BlockRange{{Start: 5, End: 5}, {Start: 10, End: 20}, {Start: 99, End: 99}},
		},
		{
			name:        "unsorted and overlapping input is accepted",
			spec:        "50-60,10,55-70",
			totalBlocks: 100,
			want:        []BlockRange{{Start: 50, End: 60}, {Start: 10, End: 10}, {Start: 55, End: 70}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRanges(tt.spec, tt.totalBlocks)
			if err != nil {
				t.Fatalf("ParseRanges(%q) failed: %v", tt.spec, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d ranges, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("range %d: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseRangesRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name        string
		spec        string
		totalBlocks uint64
	}{
		{"not a number", "abc", 100},
		{"negative block", "-5", 100},
		{"open ended range", "5-", 100},
		{"end before start", "20-10", 100},
		{"end equals total blocks", "0-100", 100},
		{"single block at total blocks", "100", 100},
		{"empty token", "5,,10", 100},
		{"fractional block", "1.5", 100},
		{"zero block device", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges, err := ParseRanges(tt.spec, tt.totalBlocks)
			if !errors.Is(err, ErrInvalidBlockRange) {
				t.Fatalf("ParseRanges(%q) = (%v, %v), want ErrInvalidBlockRange", tt.spec, ranges, err)
			}
			if ranges != nil {
				t.Errorf("ParseRanges(%q) returned ranges alongside error: %v", tt.spec, ranges)
			}
		})
	}
}

func TestParseRangesZeroBlockDeviceMessage(t *testing.T) {
	_, err := ParseRanges("0", 0)
	if err == nil {
		t.Fatal("ParseRanges accepted a block on a zero-block device")
	}
	if strings.Contains(err.Error(), "18446744073709551615") {
		t.Errorf("error message underflowed the end block: %v", err)
	}
}

func TestTotalBlocks(t *testing.T) {
	if got := TotalBlocks(1024 * 1024); got != 2048 {
		t.Errorf("TotalBlocks(1MiB) = %d, want 2048", got)
	}
	// trailing partial block is dropped
	if got := TotalBlocks(1023); got != 1 {
		t.Errorf("TotalBlocks(1023) = %d, want 1", got)
	}
}
