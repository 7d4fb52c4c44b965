package util

import (
	"reflect"
	"strings"
	"testing"
)

func TestDumpByteSlice(t *testing.T) {
	b := []byte{0x41, 0x42, 0x00}
	expected := "00000200 :   41 42 00     AB. \n"
	if out := DumpByteSlice(b, 0x200, 4, true, true, false, nil); out != expected {
		t.Errorf("mismatched dump\nactual   %q\nexpected %q", out, expected)
	}

	// rows without a highlighted byte are skipped
	b = make([]byte, 32)
	out := DumpByteSlice(b, 0, 16, false, true, false, []int{20})
	if lines := strings.Count(out, "\n"); lines != 1 {
		t.Fatalf("expected one row, got %d:\n%s", lines, out)
	}
	if !strings.HasPrefix(out, "00000010 ") {
		t.Errorf("expected second row, got %q", out)
	}
}

func TestDiffOffsets(t *testing.T) {
	tests := []struct {
		a, b     []byte
		expected []int
	}{
		{[]byte{1, 2, 3}, []byte{1, 2, 3}, nil},
		{[]byte{1, 2, 3}, []byte{1, 9, 3, 4}, []int{1, 3}},
		{nil, []byte{0}, []int{0}},
	}
	for i, tt := range tests {
		if diffs := diffOffsets(tt.a, tt.b); !reflect.DeepEqual(diffs, tt.expected) {
			t.Errorf("%d: diffs %v, expected %v", i, diffs, tt.expected)
		}
	}

	different, out := DumpByteSlicesWithDiffs([]byte{1}, []byte{1}, 16, false, true, false)
	if different || out != "" {
		t.Errorf("identical slices reported as different: %q", out)
	}
	different, out = DumpByteSlicesWithDiffs([]byte{1}, []byte{2}, 16, false, true, false)
	if !different || strings.Count(out, "00000000") != 2 {
		t.Errorf("expected both slices dumped, got %q", out)
	}
}
