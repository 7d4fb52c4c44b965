package gpt

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/diskfs/go-fdisk/label"
)

const (
	entrySize = 128
	// maximum length of a partition name in UTF-16 code units
	nameUnits = 36

	attrRequired       = 0
	attrNoBlockIO      = 1
	attrLegacyBootable = 2
)

var attrNames = map[string]uint{
	"RequiredPartition":  attrRequired,
	"NoBlockIOProtocol":  attrNoBlockIO,
	"LegacyBIOSBootable": attrLegacyBootable,
}

// formatAttrs renders attribute bits the way fdisk shows them, e.g.
// "RequiredPartition LegacyBIOSBootable GUID:48,63".
func formatAttrs(v uint64) string {
	var parts []string
	for _, name := range []string{"RequiredPartition", "NoBlockIOProtocol", "LegacyBIOSBootable"} {
		if v&(1<<attrNames[name]) != 0 {
			parts = append(parts, name)
		}
	}
	var bits []string
	for i := uint(3); i < 64; i++ {
		if v&(1<<i) != 0 {
			bits = append(bits, strconv.Itoa(int(i)))
		}
	}
	if len(bits) > 0 {
		parts = append(parts, "GUID:"+strings.Join(bits, ","))
	}
	return strings.Join(parts, " ")
}

func parseAttrs(s string) (uint64, error) {
	var v uint64
	for _, tok := range strings.Fields(s) {
		if bit, ok := attrNames[tok]; ok {
			v |= 1 << bit
			continue
		}
		list, ok := strings.CutPrefix(tok, "GUID:")
		if !ok {
			return 0, label.NewEncodingError("attrs", fmt.Sprintf("unknown attribute %q", tok))
		}
		for _, n := range strings.Split(list, ",") {
			bit, err := strconv.ParseUint(n, 10, 8)
			if err != nil || bit > 63 {
				return 0, label.NewEncodingError("attrs", fmt.Sprintf("invalid attribute bit %q", n))
			}
			v |= 1 << bit
		}
	}
	return v, nil
}

func encodeName(name string) ([]byte, error) {
	if !utf8.ValidString(name) {
		return nil, label.NewEncodingError("name", "not valid UTF-8")
	}
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	b, err := encoder.Bytes([]byte(name))
	if err != nil {
		return nil, label.NewEncodingError("name", err.Error())
	}
	if len(b)/2 > nameUnits {
		return nil, label.NewEncodingError("name", fmt.Sprintf("%d UTF-16 code units exceed the limit of %d", len(b)/2, nameUnits))
	}
	return b, nil
}

func decodeName(b []byte) string {
	// names are NUL padded
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			b = b[:i]
			break
		}
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	s, err := decoder.Bytes(b)
	if err != nil {
		return ""
	}
	return string(s)
}

func entryFromBytes(b []byte, n int) label.Entry {
	e := label.Entry{Partno: n, Parent: -1}
	typ := bytesToGUID(b[0:16])
	if guidString(typ) == Unused {
		return e
	}
	first := binary.LittleEndian.Uint64(b[32:40])
	last := binary.LittleEndian.Uint64(b[40:48])
	attrs := binary.LittleEndian.Uint64(b[48:56])
	e.Used = true
	e.Type = guidString(typ)
	e.UUID = guidString(bytesToGUID(b[16:32]))
	e.Start = first
	if last >= first {
		e.Size = last - first + 1
	}
	e.Attrs = formatAttrs(attrs)
	e.Bootable = attrs&(1<<attrLegacyBootable) != 0
	e.Name = decodeName(b[56:128])
	return e
}

func entryToBytes(e label.Entry) ([]byte, error) {
	b := make([]byte, entrySize)
	if !e.Used {
		return b, nil
	}
	typ, err := resolveType(e.Type)
	if err != nil {
		return nil, label.NewEncodingError("type", err.Error())
	}
	id, err := parseUUID(e.UUID)
	if err != nil {
		return nil, err
	}
	attrs, err := parseAttrs(e.Attrs)
	if err != nil {
		return nil, err
	}
	name, err := encodeName(e.Name)
	if err != nil {
		return nil, err
	}
	copy(b[0:16], guidToBytes(typ))
	copy(b[16:32], guidToBytes(id))
	binary.LittleEndian.PutUint64(b[32:40], e.Start)
	binary.LittleEndian.PutUint64(b[40:48], e.End())
	binary.LittleEndian.PutUint64(b[48:56], attrs)
	copy(b[56:128], name)
	return b, nil
}

// duplicateGUIDs reports entries sharing a unique partition GUID.
func duplicateGUIDs(entries []label.Entry) []label.Violation {
	seen := map[string]int{}
	var out []label.Violation
	for _, e := range entries {
		if !e.Used {
			continue
		}
		if other, ok := seen[e.UUID]; ok {
			out = append(out, label.Violation{Partno: e.Partno, Kind: label.ErrConflict,
				Msg: fmt.Sprintf("partition GUID %s already used by partition %d", e.UUID, other)})
			continue
		}
		seen[e.UUID] = e.Partno
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Partno < out[j].Partno })
	return out
}
