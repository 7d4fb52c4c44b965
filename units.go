package fdisk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// SizeUnit selects how sizes are rendered by FormatSize.
type SizeUnit int

const (
	// SizeUnitHuman renders IEC sizes such as "1.0 GiB".
	SizeUnitHuman SizeUnit = iota
	// SizeUnitBytes renders plain byte counts.
	SizeUnitBytes
)

func (u SizeUnit) String() string {
	switch u {
	case SizeUnitHuman:
		return "human"
	case SizeUnitBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

func (c *Context) SetSizeUnit(u SizeUnit) error {
	if u != SizeUnitHuman && u != SizeUnitBytes {
		return fmt.Errorf("%w: unknown size unit %d", ErrInvalidArgument, u)
	}
	c.sizeUnit = u
	return nil
}

func (c *Context) SizeUnit() SizeUnit {
	return c.sizeUnit
}

// FormatSize renders a number of sectors in the configured size unit.
func (c *Context) FormatSize(sectors uint64) string {
	b := c.geom.SectorsToBytes(sectors)
	if c.sizeUnit == SizeUnitBytes {
		return strconv.FormatUint(b, 10)
	}
	return humanize.IBytes(b)
}

// SetUnit selects the display unit, "sector" or "cylinder".
func (c *Context) SetUnit(unit string) error {
	switch strings.TrimSuffix(strings.ToLower(unit), "s") {
	case "sector":
		c.unitCylinders = false
	case "cylinder":
		c.unitCylinders = true
	default:
		return fmt.Errorf("%w: unknown display unit %q", ErrInvalidArgument, unit)
	}
	return nil
}

// UseCylinders reports whether positions are displayed in cylinders.
func (c *Context) UseCylinders() bool {
	return c.unitCylinders
}

// Unit returns the name of the display unit.
func (c *Context) Unit(singular bool) (string, error) {
	name := "sector"
	if c.unitCylinders {
		if c.geom.Heads == 0 || c.geom.Sectors == 0 {
			return "", fmt.Errorf("%w: no cylinder geometry", ErrNoData)
		}
		name = "cylinder"
	}
	if !singular {
		name += "s"
	}
	return name, nil
}

// UnitsPerSector is the number of sectors in one display unit.
func (c *Context) UnitsPerSector() uint64 {
	if c.unitCylinders {
		return c.geom.CylinderSectors()
	}
	return 1
}
