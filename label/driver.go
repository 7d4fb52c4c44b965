package label

import (
	"github.com/diskfs/go-fdisk/backend"
	"github.com/diskfs/go-fdisk/disk"
)

// Entry is a driver's view of one partition slot.
type Entry struct {
	Partno int
	Start  uint64
	Size   uint64
	// Type is the format specific type code: a hex byte for DOS, Sun, SGI and
	// BSD, a GUID for GPT.
	Type  string
	Name  string
	UUID  string
	Attrs string

	Bootable  bool
	Container bool
	Nested    bool
	Wholedisk bool
	Used      bool
	// Parent is the partno of the container holding a nested entry, -1 if none.
	Parent int
}

// End is the last sector of the entry.
func (e Entry) End() uint64 {
	if e.Size == 0 {
		return e.Start
	}
	return e.Start + e.Size - 1
}

// Template carries the fields a caller wants applied to a slot. Nil fields
// are left unchanged on set and defaulted on add.
type Template struct {
	Partno *int
	Start  *uint64
	Size   *uint64
	// StartDefault asks for the default placement even if Start is set.
	StartDefault bool
	// SizeExplicit disables aligning Size to the grain.
	SizeExplicit bool

	Type     *string
	Name     *string
	UUID     *string
	Attrs    *string
	Bootable *bool
}

// Driver is implemented by every disklabel format. A Driver holds the in
// memory state of one label; nothing reaches the device before Write.
type Driver interface {
	Type() Type

	// Probe looks for a label on dev. On success the decoded state is kept
	// and g narrowed to the label's usable range.
	Probe(dev backend.Storage, g *disk.Geometry) (bool, error)
	// Create discards any state and sets up an empty label for g.
	Create(dev backend.Storage, g *disk.Geometry) error
	// Reset drops all state.
	Reset()
	// ResetAlignment narrows g to the label's usable range.
	ResetAlignment(g *disk.Geometry)

	MaxPartitions() int
	// Partitions returns the used entries in partno order.
	Partitions() []Entry
	Partition(n int) (Entry, error)
	SetPartition(n int, t *Template, g *disk.Geometry) error
	AddPartition(t *Template, g *disk.Geometry) (int, error)
	DeletePartition(n int) error

	Write(dev backend.Storage, g *disk.Geometry) error
	Verify(g *disk.Geometry) []Violation
}

// Host describes the label a nested driver is embedded in.
type Host struct {
	Type    Type
	Entries []Entry
}

// Nester is implemented by drivers that can live inside another label.
type Nester interface {
	SetHost(h *Host)
}

// Identifier is implemented by drivers with a label-wide identifier.
type Identifier interface {
	ID() string
	SetID(id string) error
}
