package main

import (
	"errors"
	"testing"

	"github.com/devfault/devfault/pkg/blockdev"
)

func TestSizeFlagParsesHumanSizes(t *testing.T) {
	tests := []struct {
		input string
		want  uint64
	}{
		{"4096", 4096},
		{"512K", 512 * 1000},
		{"512KiB", 512 * 1024},
		{"1MiB", 1024 * 1024},
		{"1GiB", 1024 * 1024 * 1024},
	}

	for _, tt := range tests {
		var s SizeFlag
		if err := s.UnmarshalFlag(tt.input); err != nil {
			t.Errorf("UnmarshalFlag(%q) failed: %v", tt.input, err)
			continue
		}
		if uint64(s) != tt.want {
			t.Errorf("UnmarshalFlag(%q) = %d, want %d", tt.input, s, tt.want)
		}
	}
}

func TestSizeFlagRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "lots", "12XB", "-5M"} {
		var s SizeFlag
		if err := s.UnmarshalFlag(input); !errors.Is(err, blockdev.ErrInvalidSizeSpec) {
			t.Errorf("UnmarshalFlag(%q) = %v, want ErrInvalidSizeSpec", input, err)
		}
	}
}
