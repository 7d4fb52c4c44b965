// Package label defines the contract between the partitioning core and the
// per-format disklabel drivers in its subpackages.
package label

import (
	"fmt"
	"runtime"
	"strings"
)

// Type identifies one of the supported disklabel formats.
type Type int

const (
	// Unknown is the zero Type, it never names a driver.
	Unknown Type = iota
	DOS
	Sun
	SGI
	BSD
	GPT
)

// Types lists every supported format in probing order.
var Types = []Type{GPT, DOS, Sun, SGI, BSD}

func (t Type) String() string {
	switch t {
	case DOS:
		return "dos"
	case Sun:
		return "sun"
	case SGI:
		return "sgi"
	case BSD:
		return "bsd"
	case GPT:
		return "gpt"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ParseType returns the Type for name. "mbr" is accepted for DOS.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(name) {
	case "dos", "mbr":
		return DOS, nil
	case "sun":
		return Sun, nil
	case "sgi":
		return SGI, nil
	case "bsd":
		return BSD, nil
	case "gpt":
		return GPT, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnsupportedLabel, name)
}

// Default is the label created when the caller does not name one.
func Default() Type {
	if strings.HasPrefix(runtime.GOARCH, "sparc") {
		return Sun
	}
	return DOS
}
