package label

import (
	"strconv"
	"strings"
)

// RejectText fails when v carries a non-empty value for a field the format
// cannot store.
func RejectText(field string, v *string) error {
	if v != nil && *v != "" {
		return NewEncodingError(field, "not supported by this disklabel")
	}
	return nil
}

// ParseHexType parses a numeric type code such as "83" or "0x83" that must
// fit in bits.
func ParseHexType(s string, bits int) (uint64, error) {
	v := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	n, err := strconv.ParseUint(v, 16, bits)
	if err != nil {
		return 0, NewEncodingError("type", "expected a hexadecimal code, got "+strconv.Quote(s))
	}
	return n, nil
}

// FormatHexType is the inverse of ParseHexType.
func FormatHexType(n uint64) string {
	return strconv.FormatUint(n, 16)
}

// BootCoder is implemented by drivers whose first sector also carries boot
// code that creating a label may wipe.
type BootCoder interface {
	SetBootbitsProtection(protect bool)
}
