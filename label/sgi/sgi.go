// Package sgi implements the SGI volume header: a 512-byte big-endian label
// with sixteen partitions, two of which describe the volume header itself
// and the entire volume.
package sgi

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/diskfs/go-fdisk/backend"
	"github.com/diskfs/go-fdisk/disk"
	"github.com/diskfs/go-fdisk/label"
)

const (
	labelSize = 512

	offRoot     = 4
	offSwap     = 6
	offBootFile = 8
	offDevParam = 24
	offNTrks    = offDevParam + 8
	offNSect    = offDevParam + 14
	offBytes    = offDevParam + 16
	offVolumes  = 72
	offParts    = 312
	offCsum     = 504

	magic       = 0x0be5a941
	bootFileLen = 16
	volumes     = 15
	maxBlocks   = 0xffffffff

	// MaxPartitions is the number of partitions in a volume header.
	MaxPartitions = 16
	// VolumeHeader is the slot describing the volume header area.
	VolumeHeader = 8
	// EntireDisk is the slot describing the whole volume.
	EntireDisk = 10

	// volume header size created by default, in sectors
	defaultVolhdr = 4096
	noPartition   = 0xffff
)

// Partition types.
const (
	TypeVolhdr      = 0x00
	TypeTrkRepl     = 0x01
	TypeSecRepl     = 0x02
	TypeSwap        = 0x03
	TypeBSD         = 0x04
	TypeSysV        = 0x05
	TypeEntireDisk  = 0x06
	TypeEFS         = 0x07
	TypeLVol        = 0x08
	TypeRLVol       = 0x09
	TypeXFS         = 0x0a
	TypeXFSLog      = 0x0b
	TypeXLV         = 0x0c
	TypeXVM         = 0x0d
	TypeLinuxSwap   = 0x82
	TypeLinuxNative = 0x83
	TypeLinuxLVM    = 0x8e
	TypeLinuxRAID   = 0xfd
)

// Table is the in-memory state of an SGI volume header.
type Table struct {
	slots    label.Slots
	root     int
	swap     int
	bootFile string
	// raw device parameters and volume directory, kept across writes
	devParam [offVolumes - offDevParam]byte
	volumes  [volumes * 16]byte
}

var _ label.Driver = (*Table)(nil)

// New returns an empty SGI driver.
func New() *Table {
	t := &Table{}
	t.Reset()
	return t
}

func (t *Table) Type() label.Type {
	return label.SGI
}

func (t *Table) MaxPartitions() int {
	return MaxPartitions
}

func (t *Table) Reset() {
	t.slots = label.NewSlots(MaxPartitions)
	t.slots.Ignore = func(e label.Entry) bool { return e.Wholedisk }
	// the volume header starts at sector 0, before the usable range
	t.slots.Unbounded = func(e label.Entry) bool { return e.Partno == VolumeHeader }
	t.root, t.swap = -1, -1
	t.bootFile = ""
	t.devParam = [offVolumes - offDevParam]byte{}
	t.volumes = [volumes * 16]byte{}
}

func checksum(b []byte) uint32 {
	var sum uint32
	for i := 0; i < labelSize; i += 4 {
		sum += binary.BigEndian.Uint32(b[i : i+4])
	}
	return sum
}

func slot(v uint16) int {
	if v >= MaxPartitions {
		return -1
	}
	return int(v)
}

func (t *Table) Probe(dev backend.Storage, g *disk.Geometry) (bool, error) {
	t.Reset()
	b, err := backend.ReadSectors(dev, 0, 1, g.SectorSize)
	if err != nil {
		return false, fmt.Errorf("could not read volume header: %w", err)
	}
	if binary.BigEndian.Uint32(b[0:4]) != magic || checksum(b[:labelSize]) != 0 {
		return false, nil
	}
	t.root = slot(binary.BigEndian.Uint16(b[offRoot:]))
	t.swap = slot(binary.BigEndian.Uint16(b[offSwap:]))
	t.bootFile = strings.TrimRight(string(b[offBootFile:offBootFile+bootFileLen]), "\x00")
	copy(t.devParam[:], b[offDevParam:offVolumes])
	copy(t.volumes[:], b[offVolumes:offParts])

	for i := 0; i < MaxPartitions; i++ {
		p := b[offParts+i*12:]
		size := binary.BigEndian.Uint32(p[0:4])
		if size == 0 {
			continue
		}
		t.slots.Entries[i] = label.Entry{
			Partno:    i,
			Size:      uint64(size),
			Start:     uint64(binary.BigEndian.Uint32(p[4:8])),
			Type:      label.FormatHexType(uint64(binary.BigEndian.Uint32(p[8:12]))),
			Wholedisk: binary.BigEndian.Uint32(p[8:12]) == TypeEntireDisk,
			Used:      true,
			Parent:    -1,
		}
	}
	t.ResetAlignment(g)
	return true, nil
}

// ResetAlignment limits the usable range to what 32-bit block numbers can
// address.
func (t *Table) ResetAlignment(g *disk.Geometry) {
	if g.LastLBA > maxBlocks {
		g.LastLBA = maxBlocks
	}
}

func (t *Table) Create(_ backend.Storage, g *disk.Geometry) error {
	t.Reset()
	t.ResetAlignment(g)
	volhdr := g.AlignLBA(defaultVolhdr, disk.AlignUp)
	if volhdr >= g.LastLBA {
		return fmt.Errorf("%w: device of %d sectors is too small for a volume header", label.ErrInvalidArgument, g.TotalSectors)
	}
	binary.BigEndian.PutUint16(t.devParam[offNTrks-offDevParam:], uint16(g.Heads))
	binary.BigEndian.PutUint16(t.devParam[offNSect-offDevParam:], uint16(g.Sectors))
	binary.BigEndian.PutUint16(t.devParam[offBytes-offDevParam:], uint16(g.SectorSize))

	t.slots.Entries[VolumeHeader] = label.Entry{Partno: VolumeHeader, Size: volhdr,
		Type: label.FormatHexType(TypeVolhdr), Used: true, Parent: -1}
	t.slots.Entries[EntireDisk] = label.Entry{Partno: EntireDisk, Size: g.LastLBA + 1,
		Type: label.FormatHexType(TypeEntireDisk), Wholedisk: true, Used: true, Parent: -1}
	return nil
}

func (t *Table) decorate(e label.Entry) label.Entry {
	if !e.Used {
		return e
	}
	var attrs []string
	if e.Partno == t.root {
		attrs = append(attrs, "boot")
	}
	if e.Partno == t.swap {
		attrs = append(attrs, "swap")
	}
	e.Attrs = strings.Join(attrs, " ")
	e.Bootable = e.Partno == t.root
	return e
}

func (t *Table) Partitions() []label.Entry {
	var out []label.Entry
	for _, e := range t.slots.Used() {
		out = append(out, t.decorate(e))
	}
	return out
}

func (t *Table) Partition(n int) (label.Entry, error) {
	e, err := t.slots.Get(n)
	if err != nil {
		return e, err
	}
	return t.decorate(e), nil
}

type flags struct {
	boot, swap *bool
}

func parseAttrs(s string) (boot, swap bool, err error) {
	for _, tok := range strings.Fields(s) {
		switch tok {
		case "boot":
			boot = true
		case "swap":
			swap = true
		default:
			return false, false, label.NewEncodingError("attrs", fmt.Sprintf("unknown sgi flag %q, expected boot or swap", tok))
		}
	}
	return boot, swap, nil
}

func (t *Table) template(tp *label.Template) (flags, error) {
	var f flags
	if err := label.RejectText("name", tp.Name); err != nil {
		return f, err
	}
	if err := label.RejectText("uuid", tp.UUID); err != nil {
		return f, err
	}
	if tp.Type != nil {
		if _, err := label.ParseHexType(*tp.Type, 32); err != nil {
			return f, err
		}
	}
	if tp.Attrs != nil {
		boot, swap, err := parseAttrs(*tp.Attrs)
		if err != nil {
			return f, err
		}
		f.boot, f.swap = &boot, &swap
	}
	if tp.Bootable != nil {
		f.boot = tp.Bootable
	}
	return f, nil
}

func (t *Table) fill(e *label.Entry, tp *label.Template, isNew bool) error {
	if isNew {
		e.Type = label.FormatHexType(TypeLinuxNative)
	}
	if tp.Type != nil {
		v, _ := label.ParseHexType(*tp.Type, 32)
		e.Type = label.FormatHexType(v)
		e.Wholedisk = v == TypeEntireDisk
	}
	return nil
}

// commit applies the label-wide root and swap selection once slot n holds
// its new extent.
func (t *Table) commit(n int, f flags) {
	if f.boot != nil {
		switch {
		case *f.boot:
			t.root = n
		case t.root == n:
			t.root = -1
		}
	}
	if f.swap != nil {
		switch {
		case *f.swap:
			t.swap = n
		case t.swap == n:
			t.swap = -1
		}
	}
}

func (t *Table) SetPartition(n int, tp *label.Template, g *disk.Geometry) error {
	f, err := t.template(tp)
	if err != nil {
		return err
	}
	if err := t.slots.Set(n, tp, g, t.fill); err != nil {
		return err
	}
	t.commit(n, f)
	return nil
}

func (t *Table) AddPartition(tp *label.Template, g *disk.Geometry) (int, error) {
	f, err := t.template(tp)
	if err != nil {
		return -1, err
	}
	n, err := t.slots.Add(tp, g, t.fill)
	if err != nil {
		return -1, err
	}
	t.commit(n, f)
	return n, nil
}

func (t *Table) DeletePartition(n int) error {
	if err := t.slots.Delete(n); err != nil {
		return err
	}
	if t.root == n {
		t.root = -1
	}
	if t.swap == n {
		t.swap = -1
	}
	return nil
}

func partField(n int) uint16 {
	if n < 0 {
		return noPartition
	}
	return uint16(n)
}

func (t *Table) Write(dev backend.Storage, g *disk.Geometry) error {
	w, err := dev.Writable()
	if err != nil {
		return err
	}
	b := make([]byte, labelSize)
	binary.BigEndian.PutUint32(b[0:4], magic)
	binary.BigEndian.PutUint16(b[offRoot:], partField(t.root))
	binary.BigEndian.PutUint16(b[offSwap:], partField(t.swap))
	copy(b[offBootFile:offBootFile+bootFileLen], t.bootFile)
	copy(b[offDevParam:offVolumes], t.devParam[:])
	copy(b[offVolumes:offParts], t.volumes[:])
	for i, e := range t.slots.Entries {
		if !e.Used {
			continue
		}
		if e.Start > maxBlocks || e.Size > maxBlocks {
			return fmt.Errorf("%w: partition %d at %d of %d sectors is not representable", label.ErrEncoding, i, e.Start, e.Size)
		}
		typ, err := label.ParseHexType(e.Type, 32)
		if err != nil {
			return err
		}
		p := b[offParts+i*12:]
		binary.BigEndian.PutUint32(p[0:4], uint32(e.Size))
		binary.BigEndian.PutUint32(p[4:8], uint32(e.Start))
		binary.BigEndian.PutUint32(p[8:12], uint32(typ))
	}
	binary.BigEndian.PutUint32(b[offCsum:], -checksum(b))
	if err := backend.WriteAll(w, b, 0); err != nil {
		return fmt.Errorf("could not write volume header: %w", err)
	}
	return nil
}

func (t *Table) Verify(g *disk.Geometry) []label.Violation {
	out := t.slots.Verify(g)
	if e := t.slots.Entries[EntireDisk]; !e.Used || !e.Wholedisk {
		out = append(out, label.Violation{Partno: EntireDisk, Kind: label.ErrNotFound, Msg: "no entire disk partition"})
	}
	if e := t.slots.Entries[VolumeHeader]; !e.Used || e.Start != 0 {
		out = append(out, label.Violation{Partno: VolumeHeader, Kind: label.ErrNotFound, Msg: "no volume header at sector 0"})
	}
	if t.root >= 0 && !t.slots.Entries[t.root].Used {
		out = append(out, label.Violation{Partno: t.root, Kind: label.ErrNotFound, Msg: "boot partition is not defined"})
	}
	if t.swap >= 0 && !t.slots.Entries[t.swap].Used {
		out = append(out, label.Violation{Partno: t.swap, Kind: label.ErrNotFound, Msg: "swap partition is not defined"})
	}
	return out
}
