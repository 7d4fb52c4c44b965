// Package util holds helpers shared by the command line tool and tests.
package util

import (
	"fmt"
	"strings"
)

// DumpByteSlice renders b like xxd: bytesPerRow bytes per row in hex,
// optionally prefixed by the offset in hex and/or decimal and followed by
// the printable ASCII. base is added to the printed offsets, so a sector
// can be shown at its device position.
//
// When highlight is not nil only rows containing one of its offsets are
// shown, with those bytes in bold red.
func DumpByteSlice(b []byte, base int64, bytesPerRow int, showASCII, showPosHex, showPosDec bool, highlight []int) string {
	var (
		out   strings.Builder
		marks = make(map[int]bool, len(highlight))
	)
	for _, v := range highlight {
		marks[v] = true
	}
	for first := 0; first < len(b); first += bytesPerRow {
		last := first + bytesPerRow
		if highlight != nil && !rowMarked(marks, first, last) {
			continue
		}
		if showPosHex {
			fmt.Fprintf(&out, "%08x ", base+int64(first))
		}
		if showPosDec {
			fmt.Fprintf(&out, "%4d ", base+int64(first))
		}
		out.WriteString(": ")
		ascii := make([]byte, 0, bytesPerRow)
		for j := first; j < last; j++ {
			// extra space every 8 bytes
			if j%8 == 0 {
				out.WriteByte(' ')
			}
			if j >= len(b) {
				out.WriteString("   ")
				ascii = append(ascii, ' ')
				continue
			}
			hex := fmt.Sprintf(" %02x", b[j])
			if marks[j] {
				hex = "\033[1m\033[31m" + hex + "\033[0m"
			}
			out.WriteString(hex)
			if b[j] < 32 || b[j] > 126 {
				ascii = append(ascii, '.')
			} else {
				ascii = append(ascii, b[j])
			}
		}
		if showASCII {
			fmt.Fprintf(&out, "  %s", ascii)
		}
		out.WriteByte('\n')
	}
	return out.String()
}

func rowMarked(marks map[int]bool, first, last int) bool {
	for j := first; j < last; j++ {
		if marks[j] {
			return true
		}
	}
	return false
}

// diffOffsets returns the positions at which a and b differ; bytes beyond
// the end of the shorter slice count as different.
func diffOffsets(a, b []byte) []int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var diffs []int
	for i := 0; i < n; i++ {
		if i >= len(a) || i >= len(b) || a[i] != b[i] {
			diffs = append(diffs, i)
		}
	}
	return diffs
}

// DumpByteSlicesWithDiffs shows the rows where a and b differ, a first, with
// the differing bytes highlighted. different is false and out empty when the
// slices are identical.
func DumpByteSlicesWithDiffs(a, b []byte, bytesPerRow int, showASCII, showPosHex, showPosDec bool) (different bool, out string) {
	diffs := diffOffsets(a, b)
	if len(diffs) == 0 {
		return false, ""
	}
	out = DumpByteSlice(a, 0, bytesPerRow, showASCII, showPosHex, showPosDec, diffs)
	out += "\n"
	out += DumpByteSlice(b, 0, bytesPerRow, showASCII, showPosHex, showPosDec, diffs)
	return true, out
}
